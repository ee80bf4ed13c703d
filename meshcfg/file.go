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

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// FileConfig is the on-disk shape of a node's static configuration: the
// mesh-wide prefix/password every node must agree on before it can
// scan, join, or advertise a mesh at all. A field deployment pins these
// once per site; everything else in Config (root MAC, tree level) is
// discovered at runtime and never persisted.
type FileConfig struct {
	MeshPrefix string `yaml:"mesh_prefix"`
	Password   string `yaml:"password"`
}

// LoadFile reads and validates a FileConfig from path.
func LoadFile(path string) (*FileConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading config file %s", path)
	}
	var fc FileConfig
	if err := yaml.Unmarshal(raw, &fc); err != nil {
		return nil, errors.Wrapf(err, "parsing config file %s", path)
	}
	if len(fc.MeshPrefix) > MaxPrefixLen {
		return nil, ErrPrefixTooLong
	}
	if len(fc.Password) > MaxPasswordLen {
		return nil, ErrPasswordTooLong
	}
	return &fc, nil
}

// NewConfig builds a Config from fc, allowing CLI flags to override
// either field before the FSM starts (the same layering a daemon's
// package-level flag vars give over a loaded file).
func (fc *FileConfig) NewConfig() (*Config, error) {
	return New(fc.MeshPrefix, fc.Password)
}
