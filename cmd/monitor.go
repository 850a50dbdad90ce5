// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ffutop/cansimple-gateway/can"
	"github.com/ffutop/cansimple-gateway/cansimple"
	"github.com/ffutop/cansimple-gateway/internal/gateway"
	"github.com/ffutop/cansimple-gateway/odrive"
	"github.com/ffutop/cansimple-gateway/transport"
)

var monitorNodes string

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Print bus traffic with decoded messages",
	Long: `Print every frame on the bus, candump-style, followed by the decoded
message for known commands. Heartbeats show symbolic state and error
names. A receive-path statistics summary is printed on exit.`,
	Run: runMonitor,
}

func init() {
	monitorCmd.Flags().StringVar(&monitorNodes, "nodes", "", "Only show these node ids, e.g. \"0,1,5-10\"")
	addBusFlags(monitorCmd.Flags())
	rootCmd.AddCommand(monitorCmd)
}

// tapBus passes frames through to a callback on their way into the
// dispatcher, so the monitor prints exactly what the dispatcher counts.
type tapBus struct {
	transport.Downstream
	tap func(can.Frame)
}

func (b *tapBus) Recv(ctx context.Context) (can.Frame, error) {
	frame, err := b.Downstream.Recv(ctx)
	if err == nil {
		b.tap(frame)
	}
	return frame, err
}

func runMonitor(cmd *cobra.Command, args []string) {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	nodeList, err := gateway.ParseNodeIDs(monitorNodes)
	if err != nil {
		fatalf("Invalid --nodes: %v", err)
	}
	var filter map[uint8]struct{}
	if len(nodeList) > 0 {
		filter = make(map[uint8]struct{}, len(nodeList))
		for _, n := range nodeList {
			filter[n] = struct{}{}
		}
	}

	bus, err := dialBus(ctx)
	if err != nil {
		fatalf("Failed to open bus: %v", err)
	}
	defer bus.Close()

	tapped := &tapBus{Downstream: bus, tap: func(frame can.Frame) {
		printFrame(frame, filter)
	}}
	dispatcher := cansimple.NewDispatcher(tapped, nil)

	err = dispatcher.Run(ctx)
	if err != nil && ctx.Err() == nil && !errors.Is(err, can.ErrClosed) {
		fmt.Fprintf(os.Stderr, "monitor stopped: %v\n", err)
	}

	printStats(dispatcher.Stats())
}

func printFrame(frame can.Frame, filter map[uint8]struct{}) {
	if frame.Extended {
		if filter == nil {
			fmt.Println(frame.String())
		}
		return
	}
	id := cansimple.IDFromFrame(frame)
	if filter != nil {
		if _, ok := filter[id.Node()]; !ok {
			return
		}
	}

	if frame.RTR {
		fmt.Printf("%s  node %-2d %s (request)\n", frame.String(), id.Node(), id.Command())
		return
	}
	msg, err := cansimple.DecodeMessage(id.Command(), frame.Payload())
	if err != nil {
		fmt.Printf("%s  node %-2d %v\n", frame.String(), id.Node(), err)
		return
	}
	fmt.Printf("%s  node %-2d %s\n", frame.String(), id.Node(), describe(msg))
}

// describe renders one decoded message, with symbolic names where the
// device driver defines them.
func describe(msg cansimple.Message) string {
	switch m := msg.(type) {
	case cansimple.Heartbeat:
		return fmt.Sprintf("Heartbeat state=%s result=%s trajDone=%t error=%s",
			odrive.AxisState(m.AxisState),
			odrive.ProcedureResult(m.ProcedureResult),
			m.TrajectoryDone,
			odrive.AxisError(m.AxisError))
	case cansimple.ErrorState:
		return fmt.Sprintf("GetError active=%s disarm=%s",
			odrive.AxisError(m.ActiveErrors),
			odrive.AxisError(m.DisarmReason))
	case cansimple.AxisStateRequest:
		return fmt.Sprintf("SetAxisState %s", odrive.AxisState(m.State))
	case cansimple.ControllerMode:
		return fmt.Sprintf("SetControllerMode control=%s input=%s",
			odrive.ControlMode(m.Control), odrive.InputMode(m.Input))
	case cansimple.Reboot:
		return fmt.Sprintf("Reboot %s", odrive.RebootAction(m.Action))
	default:
		return fmt.Sprintf("%s %+v", msg.Command(), msg)
	}
}

func printStats(s cansimple.Stats) {
	fmt.Printf("\nframes %d  completed %d  unsolicited %d  discarded %d  remote %d  extended %d  malformed %d  unknown %d\n",
		s.Frames, s.Completed, s.Unsolicited, s.Discarded, s.Remote, s.Extended, s.Malformed, s.Unknown)
}
