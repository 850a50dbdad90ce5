// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ffutop/cansimple-gateway/cansimple"
	"github.com/ffutop/cansimple-gateway/odrive"
)

var (
	endpointNode    uint8
	endpointsFile   string
	endpointTimeout time.Duration
)

var getCmd = &cobra.Command{
	Use:   "get <endpoint>",
	Short: "Read a parameter over SDO",
	Long: `Read one firmware parameter by its flattened endpoint name, e.g.
"vbus_voltage" or "axis0.controller.config.vel_limit". Endpoint names,
indices and types come from the firmware's flat_endpoints.json.`,
	Args: cobra.ExactArgs(1),
	Run:  runGet,
}

func init() {
	addEndpointFlags(getCmd)
	rootCmd.AddCommand(getCmd)
}

func addEndpointFlags(cmd *cobra.Command) {
	cmd.Flags().Uint8VarP(&endpointNode, "node", "n", 0, "Target node id")
	cmd.Flags().StringVarP(&endpointsFile, "endpoints", "e", "flat_endpoints.json", "Path to the firmware's flat_endpoints.json")
	cmd.Flags().DurationVar(&endpointTimeout, "timeout", 2*time.Second, "Reply deadline")
	addBusFlags(cmd.Flags())
}

// endpointSession opens the bus and a running dispatcher for the SDO
// commands. The returned cleanup stops the dispatcher and closes the
// bus.
func endpointSession(ctx context.Context) (*odrive.Driver, *odrive.Endpoints, func(), error) {
	eps, err := odrive.LoadEndpointsFile(endpointsFile)
	if err != nil {
		return nil, nil, nil, err
	}

	bus, err := dialBus(ctx)
	if err != nil {
		return nil, nil, nil, err
	}

	dispatcher := cansimple.NewDispatcher(bus, nil)
	runCtx, stopRun := context.WithCancel(ctx)
	go dispatcher.Run(runCtx)

	cleanup := func() {
		stopRun()
		bus.Close()
	}
	return odrive.NewDriver(dispatcher, endpointNode), eps, cleanup, nil
}

func runGet(cmd *cobra.Command, args []string) {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	driver, eps, cleanup, err := endpointSession(ctx)
	if err != nil {
		fatalf("%v", err)
	}
	defer cleanup()

	readCtx, readCancel := context.WithTimeout(ctx, endpointTimeout)
	defer readCancel()
	value, err := driver.ReadEndpoint(readCtx, eps, args[0])
	if err != nil {
		fatalf("Failed to read %s: %v", args[0], err)
	}
	fmt.Println(value)
}
