/*
 * Copyright 2026 The FsrMesh Authors.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at https://mozilla.org/MPL/2.0/.
 */

// Package meshcfg holds the process-wide mesh configuration: the SSID
// prefix and PSK shared by every node, the current root's short MAC, and
// this node's tree level, plus the SSID encoding that advertises all
// three over the air.
package meshcfg

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

const (
	// MaxPrefixLen is the maximum length of a mesh_prefix.
	MaxPrefixLen = 15
	// MaxPasswordLen is the maximum length of the shared PSK.
	MaxPasswordLen = 64
	// ShortMACLen is the number of ASCII characters in a short MAC.
	ShortMACLen = 6
	// MaxSSIDLen is the 802.11 SSID length limit.
	MaxSSIDLen = 32
)

var (
	// ErrPrefixTooLong is returned when a mesh_prefix exceeds MaxPrefixLen.
	ErrPrefixTooLong = errors.New("mesh prefix too long")
	// ErrPasswordTooLong is returned when a password exceeds MaxPasswordLen.
	ErrPasswordTooLong = errors.New("mesh password too long")
	// ErrBadShortMAC is returned when a string isn't a valid 6-hex-char short MAC.
	ErrBadShortMAC = errors.New("malformed short MAC")
	// ErrBadLevel is returned when a level falls outside [0, 61].
	ErrBadLevel = errors.New("tree level out of range")
)

var shortMACRE = regexp.MustCompile(`^[0-9A-F]{6}$`)

// ShortMAC is the six uppercase hex characters derived from the last
// three bytes of a node's hardware MAC. It is the mesh-wide node
// identity (spec invariant SHORTMAC).
type ShortMAC string

// RootSentinel is the wire encoding of "this packet targets the root,
// whoever it is" (§3 DataPacket.dest_mac).
const RootSentinel ShortMAC = "000000"

// BroadcastMAC is the wire encoding of "deliver to every node" (§3).
const BroadcastMAC ShortMAC = "FFFFFF"

// Valid reports whether s is a well-formed short MAC (6 upper-hex chars).
func (s ShortMAC) Valid() bool {
	return shortMACRE.MatchString(string(s))
}

// ShortMACFromHWAddr renders the last three bytes of a 6-byte hardware
// MAC as the canonical short MAC string.
func ShortMACFromHWAddr(hw []byte) (ShortMAC, error) {
	if len(hw) < 3 {
		return "", errors.Errorf("hardware address too short: %d bytes", len(hw))
	}
	tail := hw[len(hw)-3:]
	return ShortMAC(strings.ToUpper(fmt.Sprintf("%02X%02X%02X", tail[0], tail[1], tail[2]))), nil
}

// EncodeLevel renders a tree level in [0, 61] as a single base-62 digit:
// 0-9 map to '0'-'9', 10-35 map to 'A'-'Z', 36-61 map to 'a'-'z'.
func EncodeLevel(level int) (byte, error) {
	switch {
	case level < 0 || level > 61:
		return 0, ErrBadLevel
	case level < 10:
		return '0' + byte(level), nil
	case level < 36:
		return 'A' + byte(level-10), nil
	default:
		return 'a' + byte(level-36), nil
	}
}

// DecodeLevel is the inverse of EncodeLevel.
func DecodeLevel(c byte) (int, error) {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0'), nil
	case c >= 'A' && c <= 'Z':
		return int(c-'A') + 10, nil
	case c >= 'a' && c <= 'z':
		return int(c-'a') + 36, nil
	default:
		return 0, ErrBadLevel
	}
}

// FormatSSID builds the mesh SSID: "<prefix>_<root_short_mac>_<level_char>".
// The ordering of root_mac then level is load-bearing: §3 requires
// parent-selection comparisons to read the root MAC before the level.
func FormatSSID(prefix string, root ShortMAC, level int) (string, error) {
	if len(prefix) > MaxPrefixLen {
		return "", ErrPrefixTooLong
	}
	if !root.Valid() {
		return "", ErrBadShortMAC
	}
	lc, err := EncodeLevel(level)
	if err != nil {
		return "", err
	}
	ssid := fmt.Sprintf("%s_%s_%c", prefix, root, lc)
	if len(ssid) > MaxSSIDLen {
		return "", errors.Errorf("generated SSID %q exceeds %d bytes", ssid, MaxSSIDLen)
	}
	return ssid, nil
}

// ParseSSID decomposes a mesh SSID formatted by FormatSSID, given the
// common prefix all nodes in the deployment share. It returns false if
// ssid does not begin with "<prefix>_" or is otherwise malformed.
func ParseSSID(ssid, prefix string) (root ShortMAC, level int, ok bool) {
	want := prefix + "_"
	if !strings.HasPrefix(ssid, want) {
		return "", 0, false
	}
	rest := ssid[len(want):]
	// rest must be exactly "<6 hex chars>_<1 char>"
	if len(rest) != ShortMACLen+2 || rest[ShortMACLen] != '_' {
		return "", 0, false
	}
	mac := ShortMAC(rest[:ShortMACLen])
	if !mac.Valid() {
		return "", 0, false
	}
	lvl, err := DecodeLevel(rest[ShortMACLen+1])
	if err != nil {
		return "", 0, false
	}
	return mac, lvl, true
}

// Config is the process-wide mesh configuration (spec §3 MeshConfig).
// It is written only by the network FSM; all other readers (routing,
// the public API) must treat it as eventually consistent within the
// current election epoch, per §5.
type Config struct {
	mu sync.RWMutex

	meshPrefix string
	password   string
	rootMAC    ShortMAC
	treeLevel  int
	haveRoot   bool
}

// New validates ssid/password and returns an initialized Config with no
// root pinned yet.
func New(meshPrefix, password string) (*Config, error) {
	if len(meshPrefix) > MaxPrefixLen {
		return nil, ErrPrefixTooLong
	}
	if len(password) > MaxPasswordLen {
		return nil, ErrPasswordTooLong
	}
	return &Config{meshPrefix: meshPrefix, password: password}, nil
}

// Prefix returns the mesh_prefix.
func (c *Config) Prefix() string {
	return c.meshPrefix
}

// Password returns the shared PSK.
func (c *Config) Password() string {
	return c.password
}

// RootMAC returns the currently pinned root short MAC and whether one is
// pinned at all.
func (c *Config) RootMAC() (ShortMAC, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.rootMAC, c.haveRoot
}

// SetRoot pins the root short MAC and this node's tree level beneath it.
// Only the FSM task should call this.
func (c *Config) SetRoot(root ShortMAC, level int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rootMAC = root
	c.treeLevel = level
	c.haveRoot = true
}

// ClearRoot un-pins the root, e.g. after a failed join or a disconnect.
// Only the FSM task should call this.
func (c *Config) ClearRoot() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rootMAC = ""
	c.haveRoot = false
}

// Level returns the current tree level (0 at the root).
func (c *Config) Level() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.treeLevel
}

// SetLevel updates the tree level without touching the pinned root. The
// FSM does not call it: becoming root sets the root MAC and level 0
// together through SetRoot.
func (c *Config) SetLevel(level int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.treeLevel = level
}

// SSID returns the SSID this node advertises on its own AP while
// Connected, root or not: the pinned root MAC and this node's level.
func (c *Config) SSID() (string, error) {
	root, ok := c.RootMAC()
	if !ok {
		return "", errors.New("no root pinned")
	}
	return FormatSSID(c.meshPrefix, root, c.Level())
}
