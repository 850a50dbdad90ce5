// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package tcp bridges a CAN bus over a plain TCP stream of fixed
// 16-byte frame records, the same layout the kernel uses for
// can_frame. The server fans bus traffic out to every client; clients
// inject frames onto the bus.
package tcp

import (
	"context"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/ffutop/cansimple-gateway/can"
)

const dialTimeout = 10 * time.Second

type inbound struct {
	frame can.Frame
	err   error
}

// Client is the downstream side of a frame bridge: it connects to a
// gateway's TCP upstream (or any other frame-record server) and
// behaves as a can.Bus.
type Client struct {
	Address string

	mu     sync.Mutex // guards conn writes and lifecycle
	conn   net.Conn
	recv   chan inbound
	closed chan struct{}
}

// NewClient allocates a bridge client for the given address.
func NewClient(address string) *Client {
	return &Client{
		Address: address,
		recv:    make(chan inbound, 64),
		closed:  make(chan struct{}),
	}
}

// Connect dials the bridge and starts the reader.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	select {
	case <-c.closed:
		return can.ErrClosed
	default:
	}
	if c.conn != nil {
		return nil
	}

	d := net.Dialer{Timeout: dialTimeout}
	conn, err := d.DialContext(ctx, "tcp", c.Address)
	if err != nil {
		return fmt.Errorf("tcp: could not connect to %s: %w", c.Address, err)
	}
	c.conn = conn

	go c.readLoop(conn)
	return nil
}

func (c *Client) readLoop(conn net.Conn) {
	buf := make([]byte, can.FrameSize)
	for {
		if _, err := io.ReadFull(conn, buf); err != nil {
			c.deliver(inbound{err: fmt.Errorf("tcp: read: %w", err)})
			return
		}
		var frame can.Frame
		if err := frame.UnmarshalBinary(buf); err != nil {
			c.deliver(inbound{err: err})
			continue
		}
		c.deliver(inbound{frame: frame})
	}
}

func (c *Client) deliver(in inbound) {
	select {
	case c.recv <- in:
	case <-c.closed:
	}
}

// Send writes one frame record.
func (c *Client) Send(ctx context.Context, frame can.Frame) error {
	data, err := frame.MarshalBinary()
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	select {
	case <-c.closed:
		return can.ErrClosed
	default:
	}
	if c.conn == nil {
		return fmt.Errorf("tcp: not connected")
	}
	if deadline, ok := ctx.Deadline(); ok {
		c.conn.SetWriteDeadline(deadline)
		defer c.conn.SetWriteDeadline(time.Time{})
	}
	if _, err := c.conn.Write(data); err != nil {
		return fmt.Errorf("tcp: write: %w", err)
	}
	return nil
}

// Recv returns the next frame from the bridge.
func (c *Client) Recv(ctx context.Context) (can.Frame, error) {
	select {
	case in := <-c.recv:
		return in.frame, in.err
	case <-c.closed:
		return can.Frame{}, can.ErrClosed
	case <-ctx.Done():
		return can.Frame{}, ctx.Err()
	}
}

// Close disconnects from the bridge.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	select {
	case <-c.closed:
		return nil
	default:
	}
	close(c.closed)
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}
