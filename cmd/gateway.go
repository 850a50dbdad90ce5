// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ffutop/cansimple-gateway/internal/axis"
	"github.com/ffutop/cansimple-gateway/internal/axis/persistence"
	"github.com/ffutop/cansimple-gateway/internal/config"
	"github.com/ffutop/cansimple-gateway/internal/gateway"
	"github.com/ffutop/cansimple-gateway/odrive"
	"github.com/ffutop/cansimple-gateway/transport"
	"github.com/ffutop/cansimple-gateway/transport/local"
	"github.com/ffutop/cansimple-gateway/transport/slcan"
	"github.com/ffutop/cansimple-gateway/transport/socketcan"
	"github.com/ffutop/cansimple-gateway/transport/tcp"
	"github.com/ffutop/cansimple-gateway/transport/ws"
)

var gatewayConfigFile string

var gatewayCmd = &cobra.Command{
	Use:   "gateway",
	Short: "Run the gateway daemon",
	Long: `Run the gateway daemon: each configured gateway attaches to one
downstream CAN bus and serves its traffic to TCP and WebSocket clients.
Frames received from any client are sent to the bus; frames seen on the
bus are broadcast to every client.`,
	Run: runGateway,
}

func init() {
	gatewayCmd.Flags().StringVar(&gatewayConfigFile, "config", "", "Path to config file")
	rootCmd.AddCommand(gatewayCmd)
}

func runGateway(cmd *cobra.Command, args []string) {
	cfg, err := config.LoadConfig(gatewayConfigFile)
	if err != nil {
		fatalf("Failed to load configuration: %v", err)
	}

	setupLogger(cfg.Log)

	slog.Info("Starting CANSimple Gateway...")

	var gateways []*gateway.Gateway

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for _, gwCfg := range cfg.Gateways {
		ds, err := buildDownstream(gwCfg.Downstream)
		if err != nil {
			slog.Error("Failed to build downstream", "gateway", gwCfg.Name, "err", err)
			continue
		}

		nodes, err := gateway.ParseNodeIDs(gwCfg.Nodes)
		if err != nil {
			slog.Error("Invalid node filter", "gateway", gwCfg.Name, "nodes", gwCfg.Nodes, "err", err)
			continue
		}

		var upstreams []transport.Upstream
		for _, usCfg := range gwCfg.Upstreams {
			switch usCfg.Type {
			case "tcp":
				upstreams = append(upstreams, tcp.NewServer(usCfg.Address))
			case "ws":
				upstreams = append(upstreams, ws.NewServer(usCfg.Address, usCfg.Path))
			}
		}

		gateways = append(gateways, gateway.NewGateway(gwCfg.Name, upstreams, ds, nodes))
	}

	if len(gateways) == 0 {
		slog.Error("No valid gateways configured. Exiting.")
		os.Exit(1)
	}

	var wg sync.WaitGroup
	for _, gw := range gateways {
		wg.Add(1)
		go func(g *gateway.Gateway) {
			defer wg.Done()
			if err := g.Start(ctx); err != nil {
				slog.Error("Gateway stopped with error", "name", g.Name, "err", err)
			}
		}(gw)
	}

	// Wait for Signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	slog.Info("Shutting down...")
	cancel()
	wg.Wait()
	slog.Info("Goodbye.")
}

func buildDownstream(cfg config.DownstreamConfig) (transport.Downstream, error) {
	switch cfg.Type {
	case "socketcan":
		return socketcan.Dial(cfg.Interface)
	case "slcan":
		if cfg.Serial.Device != "" {
			return slcan.NewSerialClient(slcan.SerialOptions{
				Device:   cfg.Serial.Device,
				BaudRate: cfg.Serial.BaudRate,
				DataBits: cfg.Serial.DataBits,
				Parity:   cfg.Serial.Parity,
				StopBits: cfg.Serial.StopBits,
				Timeout:  cfg.Serial.Timeout,
				Bitrate:  cfg.Serial.Bitrate,
			}), nil
		}
		return slcan.NewTCPClient(cfg.Address), nil
	case "tcp":
		return tcp.NewClient(cfg.Address), nil
	case "ws":
		return ws.NewClient(cfg.Address), nil
	case "local":
		return buildLocalBus(cfg.Local)
	}
	return nil, fmt.Errorf("unknown downstream type %q", cfg.Type)
}

func buildLocalBus(cfg config.LocalConfig) (transport.Downstream, error) {
	var axes []*axis.Axis
	for _, axCfg := range cfg.Axes {
		var storage persistence.Storage
		switch axCfg.Persistence.Type {
		case "", "memory":
			storage = persistence.NewMemoryStorage()
		case "file":
			storage = persistence.NewFileStorage(axCfg.Persistence.Path)
		case "mmap":
			storage = persistence.NewMmapStorage(axCfg.Persistence.Path)
		case "sql":
			storage = persistence.NewSQLStorage(axCfg.Persistence.Driver, axCfg.Persistence.DSN, "")
		default:
			return nil, fmt.Errorf("axis %d: unknown persistence type %q", axCfg.NodeID, axCfg.Persistence.Type)
		}

		opts := axis.Options{
			HeartbeatPeriod: axCfg.HeartbeatPeriod,
			EncoderPeriod:   axCfg.EncoderPeriod,
		}
		if axCfg.EndpointsFile != "" {
			eps, err := odrive.LoadEndpointsFile(axCfg.EndpointsFile)
			if err != nil {
				return nil, fmt.Errorf("axis %d: %w", axCfg.NodeID, err)
			}
			opts.Endpoints = eps
		}

		a, err := axis.New(axCfg.NodeID, storage, opts)
		if err != nil {
			return nil, err
		}
		axes = append(axes, a)
	}
	return local.NewBus(axes)
}

func setupLogger(cfg config.LogConfig) {
	opts := &slog.HandlerOptions{
		Level: parseLogLevel(cfg.Level),
	}

	var handler slog.Handler
	if cfg.File != "" && cfg.File != "-" {
		f, err := os.OpenFile(cfg.File, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			fmt.Printf("Failed to open log file, falling back to stdout: %v\n", err)
			handler = slog.NewTextHandler(os.Stdout, opts)
		} else {
			handler = slog.NewTextHandler(f, opts)
		}
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
