package config

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueyaml "cuelang.org/go/encoding/yaml"
)

// configSchema is the CUE contract the raw YAML document must satisfy before
// it is decoded. It catches shape mistakes (unknown drivers, missing ids)
// with positions pointing at the offending document node.
const configSchema = `
#Config: {
	poll_interval?: string
	workers?:       int & >=0
	sources: [...#Source]
	alerts?: [...#Alert]
	logging?: {
		level?:  string
		format?: string
		loki?: {
			enabled?: bool
			url?:     string
			labels?: [string]: string
		}
	}
	telemetry?: {
		enabled?: bool
	}
	server?: {
		enabled?: bool
		listen?:  string
	}
	usage?: {
		log_dir?: string
		pricing?: [string]: {
			input_per_mtok?:       string
			output_per_mtok?:      string
			cache_read_per_mtok?:  string
			cache_write_per_mtok?: string
		}
	}
}

#Source: {
	id:        string & !=""
	driver:    "cli" | "http" | "guestpass"
	interval?: string
	timeout?:  string
	command?:  string
	args?: [...string]
	label?:      string
	url?:        string
	token?:      string
	token_file?: string
	window?:     "five_hour" | "seven_day"
	path?:       string
	share_url?:  string
}

#Alert: {
	id:        string & !=""
	expr:      string & !=""
	severity?: "debug" | "info" | "warn" | "error"
}
`

func validateSchema(data []byte) error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(configSchema)
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile configuration schema: %w", err)
	}
	definition := schema.LookupPath(cue.ParsePath("#Config"))
	if err := definition.Err(); err != nil {
		return fmt.Errorf("lookup configuration schema: %w", err)
	}

	file, err := cueyaml.Extract("config.yaml", data)
	if err != nil {
		return fmt.Errorf("decode configuration: %w", err)
	}
	document := ctx.BuildFile(file)
	if err := document.Err(); err != nil {
		return fmt.Errorf("build configuration document: %w", err)
	}

	unified := definition.Unify(document)
	if err := unified.Validate(cue.Concrete(false)); err != nil {
		return fmt.Errorf("configuration schema: %w", err)
	}
	return nil
}
