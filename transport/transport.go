// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package transport defines the two sides of the gateway: downstreams
// attach to a real (or emulated) CAN bus, upstreams serve bridge
// clients that want to see that bus remotely.
package transport

import (
	"context"

	"github.com/ffutop/cansimple-gateway/can"
)

// FrameHandler receives one frame injected by an upstream client. The
// gateway's handler forwards it to the downstream bus; returning an
// error drops the frame but keeps the client connected.
type FrameHandler func(ctx context.Context, frame can.Frame) error

// Upstream is a bridge server. Remote clients connect to it to inject
// frames onto the bus and to observe bus traffic.
type Upstream interface {
	// Start serves clients and blocks until the context is done. It
	// should be called in its own goroutine.
	Start(ctx context.Context, handler FrameHandler) error

	// Broadcast delivers a bus frame to every connected client. It must
	// never block on a slow client.
	Broadcast(frame can.Frame)

	Close() error
}

// Downstream is a bus attachment: a can.Bus plus an explicit connect
// step so the gateway can retry before traffic flows.
type Downstream interface {
	can.Bus
	Connect(ctx context.Context) error
}
