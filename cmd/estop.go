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
)

var (
	estopNode uint8
	estopAll  bool
)

var estopCmd = &cobra.Command{
	Use:   "estop",
	Short: "Send an emergency stop",
	Long: `Send the emergency stop command to one node (--node) or to every
possible node id (--all). The command is fire-and-forget; affected nodes
disarm and latch the estop error until it is cleared.`,
	Run: runEstop,
}

func init() {
	estopCmd.Flags().Uint8VarP(&estopNode, "node", "n", 0, "Target node id")
	estopCmd.Flags().BoolVar(&estopAll, "all", false, "Stop every node id on the bus")
	addBusFlags(estopCmd.Flags())
	rootCmd.AddCommand(estopCmd)
}

func runEstop(cmd *cobra.Command, args []string) {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	bus, err := dialBus(ctx)
	if err != nil {
		fatalf("Failed to open bus: %v", err)
	}
	defer bus.Close()

	sendCtx, sendCancel := context.WithTimeout(ctx, 2*time.Second)
	defer sendCancel()

	nodes := []uint8{estopNode}
	if estopAll {
		nodes = nodes[:0]
		for n := uint8(0); n <= cansimple.MaxNode; n++ {
			nodes = append(nodes, n)
		}
	}

	for _, node := range nodes {
		frame, err := cansimple.EncodeFrame(node, cansimple.Estop{})
		if err != nil {
			fatalf("%v", err)
		}
		if err := bus.Send(sendCtx, frame); err != nil {
			fatalf("Failed to send estop to node %d: %v", node, err)
		}
	}
	fmt.Printf("estop sent to %d node(s)\n", len(nodes))
}
