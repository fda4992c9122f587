// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package config

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Validate compiles schema and checks instance against it, returning the
// first schema violation as an error rather than exiting the process — the
// daemon config path is a library call, not a CLI entrypoint.
func Validate(schema string, instance json.RawMessage) error {
	sch, err := jsonschema.CompileString("config-schema.json", schema)
	if err != nil {
		return fmt.Errorf("config: compiling schema: %w", err)
	}

	var v any
	if err := json.Unmarshal(instance, &v); err != nil {
		return fmt.Errorf("config: decoding instance: %w", err)
	}

	if err := sch.Validate(v); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}
