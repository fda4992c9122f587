// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package config is the daemon-level configuration for a gsw-ingest/
// gsw-trigger process: where GSW_HOME lives, how verbosely to log, what
// address the read-only status surface binds to, and how (if at all) to
// reach a NATS server for cross-process message-queue mirroring. This is
// deliberately separate from internal/vcm's vehicle configuration file —
// one names ports and measurements, the other names process-level knobs.
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/WillMerges/GSW-2021-sub000/pkg/nats"
)

// DaemonConfig is the format of the daemon config document. See Keys below
// for the defaults.
type DaemonConfig struct {
	// GswHome roots shm/, the default vehicle config directory, and log
	// files. Falls back to $GSW_HOME at Init time if left empty.
	GswHome string `json:"gsw-home"`

	// LogLevel is one of pkg/log's recognized level names.
	LogLevel string `json:"log-level"`

	// HttpAddr is where the read-only status/metrics HTTP surface
	// (internal/api) listens. Empty disables the surface entirely.
	HttpAddr string `json:"http-addr"`

	// Gops, if true, starts a github.com/google/gops/agent listener for
	// live process introspection (near-zero runtime overhead).
	Gops bool `json:"gops"`

	// Nats, if non-nil, is forwarded to pkg/nats.Init so internal/mqueue
	// can mirror named queues across processes. Nil means in-process
	// queues only.
	Nats *nats.NatsConfig `json:"nats"`
}

// Keys holds the global daemon configuration loaded via Init.
var Keys = DaemonConfig{
	LogLevel: "info",
	HttpAddr: ":8080",
}

// Init reads and validates the daemon config document at flagConfigFile
// (a missing file is not an error — the defaults above apply), then
// forwards any NATS block to pkg/nats.Init.
func Init(flagConfigFile string) error {
	raw, err := os.ReadFile(flagConfigFile)
	if err != nil {
		if os.IsNotExist(err) {
			return applyEnvFallback()
		}
		return fmt.Errorf("config: reading %s: %w", flagConfigFile, err)
	}

	if err := Validate(configSchema, raw); err != nil {
		return err
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&Keys); err != nil {
		return fmt.Errorf("config: decoding %s: %w", flagConfigFile, err)
	}

	if err := applyEnvFallback(); err != nil {
		return err
	}

	if Keys.Nats != nil {
		natsRaw, err := json.Marshal(Keys.Nats)
		if err != nil {
			return fmt.Errorf("config: re-marshaling nats block: %w", err)
		}
		if err := nats.Init(natsRaw); err != nil {
			return fmt.Errorf("config: nats: %w", err)
		}
	}

	return nil
}

// applyEnvFallback fills GswHome from $GSW_HOME when the config document
// left it blank, matching internal/vcm.Load's own GSW_HOME-rooted default.
func applyEnvFallback() error {
	if Keys.GswHome == "" {
		Keys.GswHome = os.Getenv("GSW_HOME")
	}
	if Keys.GswHome == "" {
		return fmt.Errorf("config: gsw-home not set in config and GSW_HOME not set in environment")
	}
	return nil
}
