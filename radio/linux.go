/*
 * Copyright 2026 The FsrMesh Authors.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at https://mozilla.org/MPL/2.0/.
 */

package radio

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"os"
	"os/exec"
	"regexp"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/tevino/abool"
	"github.com/vishvananda/netlink"
	"go.uber.org/zap"

	"fsrmesh/binding"
	"fsrmesh/meshcfg"
)

// Command paths. Grounded on ap.networkd/iwinfo.go's "plat.IwCmd"
// convention, flattened here to package vars since there's no
// multi-platform abstraction layer to source them from.
var (
	IwCmd            = "/sbin/iw"
	WpaSupplicantCmd = "/sbin/wpa_supplicant"
	WpaCliCmd        = "/sbin/wpa_cli"
	HostapdCmd       = "/usr/sbin/hostapd"
)

var bssLineRE = regexp.MustCompile(`(?m)^BSS ([0-9a-fA-F:]{17})`)
var ssidLineRE = regexp.MustCompile(`(?m)^\s*SSID: (.*)$`)
var signalLineRE = regexp.MustCompile(`(?m)^\s*signal: (-?\d+(?:\.\d+)?) dBm`)

// LinuxDriver is the Radio implementation for a real Linux wifi NIC. It
// runs two exclusive roles on one physical interface, exactly one at a
// time: STA (wpa_supplicant) or AP (hostapd). Grounded on
// ap.wifid/wifid.go's process-management pattern and
// ap.networkd/iwinfo.go's exec+regexp scraping idiom.
type LinuxDriver struct {
	iface string
	log   *zap.SugaredLogger

	mu        sync.Mutex
	apProc    *exec.Cmd
	apConfDir string
	dhcpSrv   *dhcpServer
	bindTable *binding.Table
	apCancel  context.CancelFunc

	linked *abool.AtomicBool
}

// NewLinuxDriver returns a driver bound to the named wireless interface
// (e.g. "wlan0").
func NewLinuxDriver(iface string, log *zap.SugaredLogger) *LinuxDriver {
	return &LinuxDriver{
		iface:  iface,
		log:    log,
		linked: abool.New(),
	}
}

// HWAddr returns the interface's hardware MAC.
func (d *LinuxDriver) HWAddr() (net.HardwareAddr, error) {
	link, err := netlink.LinkByName(d.iface)
	if err != nil {
		return nil, errors.Wrapf(err, "lookup interface %s", d.iface)
	}
	return link.Attrs().HardwareAddr, nil
}

// Scan shells out to `iw dev <if> scan` and decodes every BSS entry
// whose SSID parses as a mesh SSID under meshPrefix.
func (d *LinuxDriver) Scan(ctx context.Context, meshPrefix string, duration time.Duration) ([]ScanResult, error) {
	scanCtx, cancel := context.WithTimeout(ctx, duration)
	defer cancel()

	out, err := exec.CommandContext(scanCtx, IwCmd, "dev", d.iface, "scan").Output()
	if err != nil {
		return nil, errors.Wrapf(ErrDriverFailure, "iw scan: %v", err)
	}

	return parseScanOutput(out, meshPrefix)
}

func parseScanOutput(out []byte, meshPrefix string) ([]ScanResult, error) {
	bssIdx := bssLineRE.FindAllSubmatchIndex(out, -1)
	var results []ScanResult

	for i, m := range bssIdx {
		start := m[1]
		end := len(out)
		if i+1 < len(bssIdx) {
			end = bssIdx[i+1][0]
		}
		block := out[start:end]
		bssid, err := net.ParseMAC(string(out[m[2]:m[3]]))
		if err != nil {
			continue
		}

		ssidMatch := ssidLineRE.FindSubmatch(block)
		if ssidMatch == nil {
			continue
		}
		ssid := string(bytes.TrimSpace(ssidMatch[1]))

		root, level, ok := meshcfg.ParseSSID(ssid, meshPrefix)
		if !ok {
			continue
		}

		rssi := 0
		if sig := signalLineRE.FindSubmatch(block); sig != nil {
			f, err := strconv.ParseFloat(string(sig[1]), 64)
			if err == nil {
				rssi = int(f)
			}
		}

		results = append(results, ScanResult{
			BSSID:   bssid,
			SSID:    ssid,
			RootMAC: root,
			Level:   level,
			RSSI:    rssi,
		})
	}
	return results, nil
}

// ConnectSTA starts wpa_supplicant with a generated config naming
// cfg.BSSID/cfg.SSID and blocks until `iw` reports the link up or ctx
// expires.
func (d *LinuxDriver) ConnectSTA(ctx context.Context, cfg STAConfig) error {
	confPath, err := writeWpaSupplicantConf(d.iface, cfg)
	if err != nil {
		return err
	}
	defer os.Remove(confPath)

	cmd := exec.CommandContext(ctx, WpaSupplicantCmd, "-B", "-i", d.iface, "-c", confPath)
	if err := cmd.Run(); err != nil {
		return errors.Wrapf(ErrAssociateFailed, "wpa_supplicant: %v", err)
	}

	if !d.waitForLink(ctx) {
		d.DisconnectSTA(ctx)
		return ErrAssociateFailed
	}
	d.linked.Set()
	return nil
}

func (d *LinuxDriver) waitForLink(ctx context.Context) bool {
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
			out, err := exec.Command(IwCmd, "dev", d.iface, "link").Output()
			if err == nil && bytes.Contains(out, []byte("Connected to")) {
				return true
			}
		}
	}
}

// DisconnectSTA tears down any wpa_supplicant instance on the interface.
func (d *LinuxDriver) DisconnectSTA(ctx context.Context) error {
	d.linked.UnSet()
	_ = exec.CommandContext(ctx, WpaCliCmd, "-i", d.iface, "terminate").Run()
	return nil
}

// Linked reports whether the STA link is currently up.
func (d *LinuxDriver) Linked() bool {
	return d.linked.IsSet()
}

// EnableAP assigns cfg.Subnet's first address to the interface, starts
// hostapd advertising cfg.SSID, and brings up the DHCP and binding
// (heartbeat) servers children use once associated.
func (d *LinuxDriver) EnableAP(ctx context.Context, cfg APConfig) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.apProc != nil {
		return ErrAlreadyActive
	}

	link, err := netlink.LinkByName(d.iface)
	if err != nil {
		return errors.Wrap(err, "lookup ap interface")
	}
	selfIP := firstUsableIP(cfg.Subnet)
	addr := &netlink.Addr{IPNet: &net.IPNet{IP: selfIP, Mask: cfg.Subnet.Mask}}
	if err := netlink.AddrReplace(link, addr); err != nil {
		return errors.Wrap(err, "assign ap address")
	}
	if err := netlink.LinkSetUp(link); err != nil {
		return errors.Wrap(err, "bring up ap interface")
	}

	confDir, confPath, err := writeHostapdConf(d.iface, cfg)
	if err != nil {
		return err
	}

	proc := exec.CommandContext(ctx, HostapdCmd, confPath)
	if err := proc.Start(); err != nil {
		os.RemoveAll(confDir)
		return errors.Wrap(err, "start hostapd")
	}

	d.bindTable = binding.NewTable()
	apCtx, cancel := context.WithCancel(context.Background())
	d.apCancel = cancel
	go func() {
		if err := binding.Serve(apCtx, d.bindTable, d.log); err != nil {
			d.log.Errorw("binding server exited", "error", err)
		}
	}()

	srv, err := newDHCPServer(d.iface, selfIP, cfg.Subnet, d.bindTable)
	if err != nil {
		cancel()
		return err
	}
	d.dhcpSrv = srv
	go d.dhcpSrv.run(apCtx, d.log)

	d.apProc = proc
	d.apConfDir = confDir
	return nil
}

// DisableAP stops hostapd and the servers EnableAP started.
func (d *LinuxDriver) DisableAP(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.apProc == nil {
		return ErrNotActive
	}
	if d.apCancel != nil {
		d.apCancel()
	}
	_ = d.apProc.Process.Kill()
	_ = d.apProc.Wait()
	os.RemoveAll(d.apConfDir)

	d.apProc = nil
	d.apConfDir = ""
	d.dhcpSrv = nil
	d.bindTable = nil
	return nil
}

// BindingTable exposes the AP-role binding table for forwarding lookups
// (find_mac_by_ip / get_all_child_macs); nil while no AP is active.
func (d *LinuxDriver) BindingTable() *binding.Table {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.bindTable
}

func firstUsableIP(subnet *net.IPNet) net.IP {
	ip := make(net.IP, len(subnet.IP))
	copy(ip, subnet.IP)
	ip[len(ip)-1]++
	return ip
}

func writeWpaSupplicantConf(iface string, cfg STAConfig) (string, error) {
	f, err := os.CreateTemp("", "fsrmesh-wpa-*.conf")
	if err != nil {
		return "", err
	}
	defer f.Close()

	fmt.Fprintf(f, "ctrl_interface=/var/run/wpa_supplicant\nnetwork={\n\tssid=%q\n\tpsk=%q\n\tbssid=%s\n}\n",
		cfg.SSID, cfg.Password, cfg.BSSID)
	return f.Name(), nil
}
