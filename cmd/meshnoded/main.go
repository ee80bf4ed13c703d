/*
 * Copyright 2026 The FsrMesh Authors.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at https://mozilla.org/MPL/2.0/.
 */

// Command meshnoded is the long-running daemon every mesh node runs: it
// wires the radio driver, mesh configuration, and the two worker tasks
// (FSM + routing) into a running Mesh, then serves a diagnostic HTTP
// endpoint for meshctl and Prometheus scraping.
//
// Grounded on ap.wifid's daemon-entrypoint shape (flag-driven config,
// a zap logger, a signal-aware main loop) — see
// bg/ap.wifid/wifid.go's main().
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"fsrmesh/meshapi"
	"fsrmesh/meshcfg"
	"fsrmesh/meshutil"
	"fsrmesh/radio"
)

var (
	configFile string
	iface      string
	prefix     string
	password   string
	listenAddr string
	logLevel   string
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "meshnoded",
		Short: "Run one node of a FsrMesh self-organizing wifi tree-mesh",
		RunE:  run,
	}

	flags := cmd.Flags()
	flags.StringVar(&configFile, "config", "", "YAML file providing mesh_prefix/password (overridden by --prefix/--password)")
	flags.StringVar(&iface, "iface", "wlan0", "wireless interface this node drives")
	flags.StringVar(&prefix, "prefix", "", "mesh SSID prefix (required unless set in --config)")
	flags.StringVar(&password, "password", "", "mesh PSK (required unless set in --config)")
	flags.StringVar(&listenAddr, "listen", ":8642", "address the diagnostic HTTP endpoint listens on")
	flags.StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	return cmd
}

func loadConfig() (*meshcfg.Config, error) {
	var fc meshcfg.FileConfig
	if configFile != "" {
		loaded, err := meshcfg.LoadFile(configFile)
		if err != nil {
			return nil, err
		}
		fc = *loaded
	}
	if prefix != "" {
		fc.MeshPrefix = prefix
	}
	if password != "" {
		fc.Password = password
	}
	if fc.MeshPrefix == "" {
		return nil, errors.New("mesh prefix is required (--prefix or mesh_prefix in --config)")
	}
	if fc.Password == "" {
		return nil, errors.New("mesh password is required (--password or password in --config)")
	}
	return fc.NewConfig()
}

func run(cmd *cobra.Command, args []string) error {
	if err := meshutil.SetLevel(logLevel); err != nil {
		return errors.Wrap(err, "invalid --log-level")
	}
	log := meshutil.NewLogger(iface)

	cfg, err := loadConfig()
	if err != nil {
		return errors.Wrap(err, "loading mesh configuration")
	}

	drv := radio.NewLinuxDriver(iface, log)
	hw, err := drv.HWAddr()
	if err != nil {
		return errors.Wrap(err, "reading interface hardware address")
	}
	self, err := meshcfg.ShortMACFromHWAddr(hw)
	if err != nil {
		return errors.Wrap(err, "deriving short mac")
	}

	// promhttp.Handler() (wired in meshapi.DiagHandler) serves the
	// default registry, so metrics must register there too.
	metrics := meshutil.NewMetrics(prometheus.DefaultRegisterer)

	mesh := meshapi.New(self, cfg, drv, log, metrics)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Infow("received shutdown signal")
		cancel()
	}()

	diagSrv := &http.Server{Addr: listenAddr, Handler: mesh.DiagHandler()}
	go func() {
		log.Infow("serving diagnostics", "addr", listenAddr)
		if err := diagSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorw("diagnostic server exited", "error", err)
		}
	}()

	log.Infow("starting mesh node", "self", self, "prefix", cfg.Prefix())
	runErr := mesh.Run(ctx)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer shutdownCancel()
	_ = diagSrv.Shutdown(shutdownCtx)

	if runErr != nil && errors.Cause(runErr) != context.Canceled {
		return runErr
	}
	return nil
}

func main() {
	cobra.EnableCommandSorting = false
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
