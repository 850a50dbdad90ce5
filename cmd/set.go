// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ffutop/cansimple-gateway/odrive"
)

var setVerify bool

var setCmd = &cobra.Command{
	Use:   "set <endpoint> <value>",
	Short: "Write a parameter over SDO",
	Long: `Write one firmware parameter by its flattened endpoint name. The
value is parsed per the endpoint's declared type; booleans accept
true/false. Writes are unacknowledged on the wire, --verify reads the
endpoint back afterwards.`,
	Args: cobra.ExactArgs(2),
	Run:  runSet,
}

func init() {
	addEndpointFlags(setCmd)
	setCmd.Flags().BoolVar(&setVerify, "verify", false, "Read the endpoint back after writing")
	rootCmd.AddCommand(setCmd)
}

func runSet(cmd *cobra.Command, args []string) {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	driver, eps, cleanup, err := endpointSession(ctx)
	if err != nil {
		fatalf("%v", err)
	}
	defer cleanup()

	name := args[0]
	ep, ok := eps.Get(name)
	if !ok {
		fatalf("Unknown endpoint %q", name)
	}
	value, err := odrive.ParseValue(ep.Kind, args[1])
	if err != nil {
		fatalf("Invalid value for %s: %v", name, err)
	}

	writeCtx, writeCancel := context.WithTimeout(ctx, endpointTimeout)
	defer writeCancel()
	if err := driver.SdoWrite(writeCtx, ep.ID, value); err != nil {
		fatalf("Failed to write %s: %v", name, err)
	}

	if setVerify {
		readback, err := driver.SdoRead(writeCtx, ep.ID, ep.Kind)
		if err != nil {
			fatalf("Failed to read back %s: %v", name, err)
		}
		fmt.Printf("%s = %s\n", name, readback)
	}
}
