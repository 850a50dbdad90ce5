// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ffutop/cansimple-gateway/can"
	"github.com/ffutop/cansimple-gateway/cansimple"
	"github.com/ffutop/cansimple-gateway/transport"
)

// Gateway represents a single gateway instance.
// It bridges one downstream CAN bus to multiple Upstream bridge servers,
// optionally filtering traffic by node id in both directions.
type Gateway struct {
	Name       string
	Upstreams  []transport.Upstream
	Downstream transport.Downstream
	Nodes      map[uint8]struct{} // nil means all nodes pass
}

// NewGateway creates a new Gateway instance
func NewGateway(name string, upstreams []transport.Upstream, downstream transport.Downstream, nodes []uint8) *Gateway {
	var set map[uint8]struct{}
	if len(nodes) > 0 {
		set = make(map[uint8]struct{}, len(nodes))
		for _, n := range nodes {
			set[n] = struct{}{}
		}
	}
	return &Gateway{
		Name:       name,
		Upstreams:  upstreams,
		Downstream: downstream,
		Nodes:      set,
	}
}

// ParseNodeIDs parses a string of node IDs (e.g. "1,2,5-10") into a slice of bytes.
// An empty string means no filter.
func ParseNodeIDs(input string) ([]uint8, error) {
	var ids []uint8
	parts := strings.Split(input, ",")
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if strings.Contains(part, "-") {
			// Range
			ranges := strings.Split(part, "-")
			if len(ranges) != 2 {
				return nil, fmt.Errorf("invalid range: %s", part)
			}
			start, err := strconv.Atoi(strings.TrimSpace(ranges[0]))
			if err != nil {
				return nil, fmt.Errorf("invalid start of range: %w", err)
			}
			end, err := strconv.Atoi(strings.TrimSpace(ranges[1]))
			if err != nil {
				return nil, fmt.Errorf("invalid end of range: %w", err)
			}
			if start > end {
				return nil, fmt.Errorf("start of range %d is greater than end %d", start, end)
			}
			for i := start; i <= end; i++ {
				if i < 0 || i > int(cansimple.MaxNode) {
					return nil, fmt.Errorf("id out of range: %d", i)
				}
				ids = append(ids, uint8(i))
			}
		} else {
			// Single
			id, err := strconv.Atoi(part)
			if err != nil {
				return nil, fmt.Errorf("invalid id: %w", err)
			}
			if id < 0 || id > int(cansimple.MaxNode) {
				return nil, fmt.Errorf("id out of range: %d", id)
			}
			ids = append(ids, uint8(id))
		}
	}
	return ids, nil
}

// admit decides whether a frame crosses the gateway. Extended frames
// carry no CANSimple node id, so they pass only when no filter is set.
func (g *Gateway) admit(frame can.Frame) bool {
	if g.Nodes == nil {
		return true
	}
	if frame.Extended {
		return false
	}
	_, ok := g.Nodes[cansimple.IDFromFrame(frame).Node()]
	return ok
}

// Start connects the downstream bus, starts all upstream servers and
// pumps downstream frames to them until ctx is done.
func (g *Gateway) Start(ctx context.Context) error {
	if err := g.connectDownstream(ctx); err != nil {
		return fmt.Errorf("gateway %q: %w", g.Name, err)
	}

	var wg sync.WaitGroup
	for i, us := range g.Upstreams {
		wg.Add(1)
		go func(ups transport.Upstream, idx int) {
			defer wg.Done()
			slog.Info("Starting upstream", "gateway", g.Name, "index", idx)
			if err := ups.Start(ctx, g.handleFrame); err != nil {
				slog.Error("Upstream stopped with error", "gateway", g.Name, "index", idx, "err", err)
			}
		}(us, i)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		g.pump(ctx)
	}()

	<-ctx.Done()

	// Graceful shutdown
	for _, us := range g.Upstreams {
		us.Close()
	}
	g.Downstream.Close()

	wg.Wait()
	return nil
}

// connectDownstream retries with backoff; a bus adapter that is not up
// yet at daemon start usually comes up moments later.
func (g *Gateway) connectDownstream(ctx context.Context) error {
	backoff := time.Second
	for {
		err := g.Downstream.Connect(ctx)
		if err == nil {
			return nil
		}
		slog.Error("Failed to connect downstream", "gateway", g.Name, "err", err, "retry_in", backoff)
		select {
		case <-ctx.Done():
			return err
		case <-time.After(backoff):
		}
		if backoff < 30*time.Second {
			backoff *= 2
		}
	}
}

// pump forwards downstream bus traffic to every upstream.
func (g *Gateway) pump(ctx context.Context) {
	for {
		frame, err := g.Downstream.Recv(ctx)
		if err != nil {
			if ctx.Err() == nil && err != can.ErrClosed {
				slog.Error("Downstream receive failed", "gateway", g.Name, "err", err)
			}
			return
		}
		if !g.admit(frame) {
			continue
		}
		for _, us := range g.Upstreams {
			us.Broadcast(frame)
		}
	}
}

// handleFrame injects an upstream client's frame onto the bus.
func (g *Gateway) handleFrame(ctx context.Context, frame can.Frame) error {
	if !g.admit(frame) {
		slog.Debug("Dropping frame outside node filter", "gateway", g.Name, "frame", frame.String())
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second) // Safety timeout
	defer cancel()

	if err := g.Downstream.Send(ctx, frame); err != nil {
		slog.Error("Downstream send failed", "gateway", g.Name, "frame", frame.String(), "err", err)
		return err
	}
	return nil
}
