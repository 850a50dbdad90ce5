// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package cmd

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ffutop/cansimple-gateway/transport"
	"github.com/ffutop/cansimple-gateway/transport/slcan"
	"github.com/ffutop/cansimple-gateway/transport/socketcan"
	"github.com/ffutop/cansimple-gateway/transport/tcp"
	"github.com/ffutop/cansimple-gateway/transport/ws"
)

// dialBus opens the bus selected by the connection flags. Exactly one
// of --interface, --serial and --connect must be given.
func dialBus(ctx context.Context) (transport.Downstream, error) {
	given := 0
	for _, f := range []string{busInterface, busSerial, busConnect} {
		if f != "" {
			given++
		}
	}
	if given != 1 {
		return nil, fmt.Errorf("exactly one of --interface, --serial or --connect is required")
	}

	var bus transport.Downstream
	switch {
	case busInterface != "":
		b, err := socketcan.Dial(busInterface)
		if err != nil {
			return nil, err
		}
		bus = b

	case busSerial != "":
		opts := slcan.SerialOptions{
			Device:   busSerial,
			BaudRate: 115200,
			DataBits: 8,
			Parity:   "N",
			StopBits: 1,
			Timeout:  500 * time.Millisecond,
		}
		if device, baud, ok := strings.Cut(busSerial, ","); ok {
			rate, err := strconv.Atoi(strings.TrimSpace(baud))
			if err != nil {
				return nil, fmt.Errorf("invalid baud rate %q", baud)
			}
			opts.Device = device
			opts.BaudRate = rate
		}
		bus = slcan.NewSerialClient(opts)

	case busConnect != "":
		switch {
		case strings.HasPrefix(busConnect, "tcp://"):
			bus = tcp.NewClient(strings.TrimPrefix(busConnect, "tcp://"))
		case strings.HasPrefix(busConnect, "ws://"), strings.HasPrefix(busConnect, "wss://"):
			bus = ws.NewClient(busConnect)
		default:
			return nil, fmt.Errorf("unsupported connect scheme in %q", busConnect)
		}
	}

	if err := bus.Connect(ctx); err != nil {
		return nil, err
	}
	return bus, nil
}
