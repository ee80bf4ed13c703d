/*
 * Copyright 2026 The FsrMesh Authors.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at https://mozilla.org/MPL/2.0/.
 */

package meshcfg

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "mesh.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadFileParsesPrefixAndPassword(t *testing.T) {
	path := writeTempConfig(t, "mesh_prefix: FsrMesh\npassword: supersecret\n")
	fc, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "FsrMesh", fc.MeshPrefix)
	assert.Equal(t, "supersecret", fc.Password)

	cfg, err := fc.NewConfig()
	require.NoError(t, err)
	assert.Equal(t, "FsrMesh", cfg.Prefix())
}

func TestLoadFileRejectsOverlongPrefix(t *testing.T) {
	path := writeTempConfig(t, "mesh_prefix: "+strings.Repeat("x", MaxPrefixLen+1)+"\npassword: pw\n")
	_, err := LoadFile(path)
	assert.ErrorIs(t, err, ErrPrefixTooLong)
}

func TestLoadFileMissingPathErrors(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
