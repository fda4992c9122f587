// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "daemon.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestInit_MissingFileFallsBackToEnv(t *testing.T) {
	t.Setenv("GSW_HOME", "/opt/gsw")
	Keys = DaemonConfig{LogLevel: "info", HttpAddr: ":8080"}

	require.NoError(t, Init(filepath.Join(t.TempDir(), "does-not-exist.json")))
	assert.Equal(t, "/opt/gsw", Keys.GswHome)
	assert.Equal(t, ":8080", Keys.HttpAddr)
}

func TestInit_MissingFileAndNoEnvIsError(t *testing.T) {
	t.Setenv("GSW_HOME", "")
	Keys = DaemonConfig{}

	err := Init(filepath.Join(t.TempDir(), "does-not-exist.json"))
	assert.Error(t, err)
}

func TestInit_DecodesDocument(t *testing.T) {
	Keys = DaemonConfig{}
	path := writeConfig(t, `{
		"gsw-home": "/srv/gsw",
		"log-level": "debug",
		"http-addr": "localhost:9090",
		"gops": true
	}`)

	require.NoError(t, Init(path))
	assert.Equal(t, "/srv/gsw", Keys.GswHome)
	assert.Equal(t, "debug", Keys.LogLevel)
	assert.Equal(t, "localhost:9090", Keys.HttpAddr)
	assert.True(t, Keys.Gops)
}

func TestInit_RejectsUnknownFields(t *testing.T) {
	Keys = DaemonConfig{}
	path := writeConfig(t, `{"http-addr": ":8080", "gsw-home": "/x", "bogus": 1}`)

	assert.Error(t, Init(path))
}

func TestInit_RejectsSchemaViolation(t *testing.T) {
	Keys = DaemonConfig{}
	path := writeConfig(t, `{"http-addr": ":8080", "gsw-home": "/x", "log-level": "not-a-level"}`)

	assert.Error(t, Init(path))
}

func TestInit_NatsBlockRequiresAddress(t *testing.T) {
	Keys = DaemonConfig{}
	path := writeConfig(t, `{"http-addr": ":8080", "gsw-home": "/x", "nats": {"username": "u"}}`)

	assert.Error(t, Init(path))
}
