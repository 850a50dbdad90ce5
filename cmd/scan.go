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
	scanFrom    uint8
	scanTo      uint8
	scanTimeout time.Duration
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Probe the bus for responding nodes",
	Long: `Probe each node id with a version request and list the nodes that
answered, with their hardware and firmware revisions. Silent ids are
skipped after a short per-node deadline.`,
	Run: runScan,
}

func init() {
	scanCmd.Flags().Uint8Var(&scanFrom, "from", 0, "First node id to probe")
	scanCmd.Flags().Uint8Var(&scanTo, "to", cansimple.MaxNode, "Last node id to probe")
	scanCmd.Flags().DurationVar(&scanTimeout, "timeout", 200*time.Millisecond, "Per-node reply deadline")
	addBusFlags(scanCmd.Flags())
	rootCmd.AddCommand(scanCmd)
}

func runScan(cmd *cobra.Command, args []string) {
	if scanFrom > scanTo || scanTo > cansimple.MaxNode {
		fatalf("Invalid node range %d-%d", scanFrom, scanTo)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	bus, err := dialBus(ctx)
	if err != nil {
		fatalf("Failed to open bus: %v", err)
	}
	defer bus.Close()

	dispatcher := cansimple.NewDispatcher(bus, nil)
	runCtx, stopRun := context.WithCancel(ctx)
	defer stopRun()
	go dispatcher.Run(runCtx)

	found := 0
	for node := scanFrom; ; node++ {
		if ctx.Err() != nil {
			break
		}
		probeCtx, probeCancel := context.WithTimeout(ctx, scanTimeout)
		driver := odrive.NewDriver(dispatcher, node)
		version, err := driver.Version(probeCtx)
		probeCancel()
		if err == nil {
			found++
			fmt.Printf("node %-2d  hw %d.%d variant %d  fw %d.%d.%d%s\n",
				node,
				version.HwMajor, version.HwMinor, version.HwVariant,
				version.FwMajor, version.FwMinor, version.FwRevision,
				unreleasedSuffix(version.FwUnreleased))
		}
		if node == scanTo {
			break
		}
	}
	fmt.Printf("%d node(s) responded\n", found)
}

func unreleasedSuffix(unreleased bool) string {
	if unreleased {
		return " (unreleased)"
	}
	return ""
}
