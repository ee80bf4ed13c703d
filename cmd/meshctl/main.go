/*
 * Copyright 2026 The FsrMesh Authors.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at https://mozilla.org/MPL/2.0/.
 */

// Command meshctl is the operator CLI for inspecting a running
// meshnoded: it talks to the node's diagnostic HTTP endpoint and
// pretty-prints its routing-tree and binding-table dumps.
//
// Grounded on ap-factory/factory.go's cobra command-tree shape: a root
// command carrying a persistent flag, with leaf subcommands doing the
// actual work in RunE.
package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var nodeAddr string

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "meshctl",
		Short: "Inspect a running fsrmesh node",
	}
	root.PersistentFlags().StringVar(&nodeAddr, "node", "localhost:8642", "host:port of the node's diagnostic endpoint")

	root.AddCommand(newTreeCmd())
	root.AddCommand(newBindingsCmd())
	root.AddCommand(newHealthCmd())
	return root
}

func fetchJSON(path string, out interface{}) error {
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(fmt.Sprintf("http://%s%s", nodeAddr, path))
	if err != nil {
		return errors.Wrapf(err, "querying %s", nodeAddr)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("%s%s: unexpected status %s", nodeAddr, path, resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func newTreeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tree",
		Short: "Print the node's routing-tree subtree dump",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var entries []struct {
				MAC    string `json:"mac"`
				Parent string `json:"parent,omitempty"`
			}
			if err := fetchJSON("/tree", &entries); err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Println("(not connected)")
				return nil
			}
			for _, e := range entries {
				if e.Parent == "" {
					fmt.Printf("%s (root)\n", e.MAC)
					continue
				}
				fmt.Printf("%s -> parent %s\n", e.MAC, e.Parent)
			}
			return nil
		},
	}
}

func newBindingsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "bindings",
		Short: "Print the node's MAC/IP binding table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var entries []struct {
				MAC string `json:"mac"`
				IP  string `json:"ip"`
			}
			if err := fetchJSON("/bindings", &entries); err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Println("(no bindings)")
				return nil
			}
			for _, e := range entries {
				fmt.Printf("%s  %s\n", e.MAC, e.IP)
			}
			return nil
		},
	}
}

func newHealthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check whether the node is connected to the mesh",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client := &http.Client{Timeout: 5 * time.Second}
			resp, err := client.Get(fmt.Sprintf("http://%s/healthz", nodeAddr))
			if err != nil {
				return errors.Wrapf(err, "querying %s", nodeAddr)
			}
			defer resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				fmt.Println("connected")
				return nil
			}
			fmt.Println("not connected")
			return errors.Errorf("node reported status %s", resp.Status)
		},
	}
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
