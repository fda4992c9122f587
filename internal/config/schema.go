// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package config

// configSchema validates the daemon config document Init decodes: the
// GSW_HOME root, logging, HTTP status-surface address, and an optional
// NATS block mirroring pkg/nats.ConfigSchema.
var configSchema = `
{
  "type": "object",
  "properties": {
    "gsw-home": {
      "description": "Root directory under which shm/, config/, and log files live. Falls back to $GSW_HOME if empty.",
      "type": "string"
    },
    "log-level": {
      "description": "One of debug, info, notice, warn, err, fatal, crit.",
      "type": "string",
      "enum": ["debug", "info", "notice", "warn", "err", "fatal", "crit"]
    },
    "http-addr": {
      "description": "Address the read-only status/metrics HTTP surface listens on (for example: 'localhost:8080'). Empty disables it.",
      "type": "string"
    },
    "gops": {
      "description": "Listen via github.com/google/gops/agent for live process introspection.",
      "type": "boolean"
    },
    "nats": {
      "description": "NATS connection used to mirror message queues across processes. Omit to run with in-process queues only.",
      "type": "object",
      "properties": {
        "address": {
          "type": "string"
        },
        "username": {
          "type": "string"
        },
        "password": {
          "type": "string"
        },
        "creds-file-path": {
          "type": "string"
        }
      },
      "required": ["address"]
    }
  },
  "required": ["http-addr"]
}`
