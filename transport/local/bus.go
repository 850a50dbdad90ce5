// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package local provides an in-process CAN bus backed by emulated
// axes. It stands in for real hardware during development and in
// tests: frames sent to it are handled by the hosted axes and their
// responses, along with periodic telemetry, come back through Recv.
package local

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ffutop/cansimple-gateway/can"
	"github.com/ffutop/cansimple-gateway/internal/axis"
)

const recvQueueLen = 256

// Bus hosts a set of emulated axes behind the can.Bus interface.
type Bus struct {
	axes []*axis.Axis

	mu     sync.Mutex
	recv   chan can.Frame
	closed chan struct{}
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewBus builds a bus over the given axes. Node ids must be unique.
func NewBus(axes []*axis.Axis) (*Bus, error) {
	seen := make(map[uint8]bool, len(axes))
	for _, a := range axes {
		if seen[a.Node()] {
			return nil, fmt.Errorf("local: duplicate axis node id %d", a.Node())
		}
		seen[a.Node()] = true
	}
	return &Bus{
		axes:   axes,
		recv:   make(chan can.Frame, recvQueueLen),
		closed: make(chan struct{}),
	}, nil
}

// Connect starts the axes' periodic telemetry. The axes keep running
// until the bus is closed, not until ctx is done; ctx only bounds the
// call itself, mirroring the dial-style connectors.
func (b *Bus) Connect(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(context.Background())
	b.cancel = cancel
	for _, a := range b.axes {
		b.wg.Add(1)
		go func(a *axis.Axis) {
			defer b.wg.Done()
			a.Run(runCtx, b.emit)
		}(a)
	}
	slog.Info("Local bus started", "axes", len(b.axes))
	return nil
}

func (b *Bus) emit(frame can.Frame) {
	select {
	case <-b.closed:
	case b.recv <- frame:
	default:
		// Telemetry is periodic; a full queue just drops this round.
	}
}

// Send hands the frame to every hosted axis and queues their replies.
func (b *Bus) Send(ctx context.Context, frame can.Frame) error {
	select {
	case <-b.closed:
		return can.ErrClosed
	default:
	}
	for _, a := range b.axes {
		for _, reply := range a.Process(frame) {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-b.closed:
				return can.ErrClosed
			case b.recv <- reply:
			}
		}
	}
	return nil
}

// Recv returns the next frame emitted by the hosted axes.
func (b *Bus) Recv(ctx context.Context) (can.Frame, error) {
	select {
	case frame := <-b.recv:
		return frame, nil
	case <-b.closed:
		return can.Frame{}, can.ErrClosed
	case <-ctx.Done():
		return can.Frame{}, ctx.Err()
	}
}

// Close stops the axes, persists their state and releases storage.
func (b *Bus) Close() error {
	b.mu.Lock()
	select {
	case <-b.closed:
		b.mu.Unlock()
		return nil
	default:
	}
	close(b.closed)
	b.mu.Unlock()

	if b.cancel != nil {
		b.cancel()
	}
	b.wg.Wait()

	var firstErr error
	for _, a := range b.axes {
		if err := a.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
