// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var (
	// Global flags
	logLevel string

	// Bus connection flags, shared by the bus-side subcommands
	busInterface string
	busSerial    string
	busConnect   string
)

var rootCmd = &cobra.Command{
	Use:   "cansimple-gateway",
	Short: "CANSimple gateway and bus tools",
	Long: `cansimple-gateway bridges a CAN bus speaking the CANSimple protocol
(ODrive motor controllers) to TCP and WebSocket clients, and bundles the
bus-side tools used to work with the nodes directly.

Bus connection modes:
  SocketCAN: --interface can0                     (Linux only)
  SLCAN:     --serial /dev/ttyACM0[,115200]       (serial adapter)
  Bridge:    --connect tcp://host:port            (another gateway)
             --connect ws://host:port/can`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupDefaultLogger(logLevel)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
}

// addBusFlags registers the connection flags on a subcommand that talks
// to the bus directly.
func addBusFlags(fs *pflag.FlagSet) {
	fs.StringVarP(&busInterface, "interface", "i", "", "SocketCAN interface, e.g. can0")
	fs.StringVarP(&busSerial, "serial", "s", "", "SLCAN serial device, optionally with baud rate: /dev/ttyACM0[,115200]")
	fs.StringVarP(&busConnect, "connect", "c", "", "Bridge address, tcp://host:port or ws://host:port/can")
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// setupDefaultLogger keeps the tools quiet on stderr so frame output on
// stdout stays parseable. The gateway daemon replaces this with the
// configured handler.
func setupDefaultLogger(level string) {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: parseLogLevel(level),
	})
	slog.SetDefault(slog.New(handler))
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
