// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package mqueue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/WillMerges/GSW-2021-sub000/internal/gswerr"
)

func TestLogFlag_CreateDefaultsEnabled(t *testing.T) {
	root := t.TempDir()

	f := NewLogFlag(root, "dls")
	require.Equal(t, gswerr.Success, f.Create())
	t.Cleanup(func() { f.Destroy() })

	assert.True(t, f.Enabled())
}

func TestLogFlag_SetEnabledIsVisibleAcrossAttach(t *testing.T) {
	root := t.TempDir()

	owner := NewLogFlag(root, "dls")
	require.Equal(t, gswerr.Success, owner.Create())
	t.Cleanup(func() { owner.Destroy() })

	owner.SetEnabled(false)

	other := NewLogFlag(root, "dls")
	require.Equal(t, gswerr.Success, other.Attach())
	t.Cleanup(func() { other.Detach() })

	assert.False(t, other.Enabled())
}
