/*
 * Copyright 2026 The FsrMesh Authors.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at https://mozilla.org/MPL/2.0/.
 */

package radio

import (
	"fmt"
	"os"
	"path/filepath"
)

// writeHostapdConf renders a minimal hostapd.conf for the mesh AP role:
// one BSS, WPA2-PSK, advertising cfg.SSID. Grounded on
// ap.wifid/hostapd.go's generateHostAPDConf, trimmed to the handful of
// directives every mesh AP needs (no VLANs, no RADIUS, no per-ring
// bridging — those belong to the product this was adapted from, not to
// a mesh relay).
func writeHostapdConf(iface string, cfg APConfig) (dir, path string, err error) {
	dir, err = os.MkdirTemp("", "fsrmesh-hostapd-*")
	if err != nil {
		return "", "", err
	}

	path = filepath.Join(dir, "hostapd.conf")
	f, err := os.Create(path)
	if err != nil {
		os.RemoveAll(dir)
		return "", "", err
	}
	defer f.Close()

	fmt.Fprintf(f, "interface=%s\n", iface)
	fmt.Fprintf(f, "driver=nl80211\n")
	fmt.Fprintf(f, "ssid=%s\n", cfg.SSID)
	fmt.Fprintf(f, "hw_mode=g\n")
	fmt.Fprintf(f, "channel=6\n")
	fmt.Fprintf(f, "wpa=2\n")
	fmt.Fprintf(f, "wpa_key_mgmt=WPA-PSK\n")
	fmt.Fprintf(f, "rsn_pairwise=CCMP\n")
	fmt.Fprintf(f, "wpa_passphrase=%s\n", cfg.Password)
	fmt.Fprintf(f, "wpa_group_rekey=86400\n")
	fmt.Fprintf(f, "ignore_broadcast_ssid=0\n")
	fmt.Fprintf(f, "beacon_int=100\n")
	fmt.Fprintf(f, "dtim_period=2\n")

	return dir, path, nil
}
