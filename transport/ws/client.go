// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package ws bridges a CAN bus over WebSocket, carrying the same
// 16-byte frame records as the TCP bridge in binary messages. It
// exists for clients behind HTTP-only infrastructure.
package ws

import (
	"context"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/ffutop/cansimple-gateway/can"
)

type inbound struct {
	frame can.Frame
	err   error
}

// Client connects to a gateway's WebSocket upstream and behaves as a
// can.Bus.
type Client struct {
	// URL is the full endpoint, e.g. "ws://192.168.1.10:8080/can".
	URL string

	mu     sync.Mutex // guards conn writes and lifecycle
	conn   *websocket.Conn
	recv   chan inbound
	closed chan struct{}
}

// NewClient allocates a bridge client for the given ws:// or wss:// URL.
func NewClient(url string) *Client {
	return &Client{
		URL:    url,
		recv:   make(chan inbound, 64),
		closed: make(chan struct{}),
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

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.URL, nil)
	if err != nil {
		return fmt.Errorf("ws: could not connect to %s: %w", c.URL, err)
	}
	c.conn = conn

	go c.readLoop(conn)
	return nil
}

func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			c.deliver(inbound{err: fmt.Errorf("ws: read: %w", err)})
			return
		}
		if messageType != websocket.BinaryMessage || len(data) != can.FrameSize {
			continue
		}
		var frame can.Frame
		if err := frame.UnmarshalBinary(data); err != nil {
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

// Send writes one frame record as a binary message.
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
		return fmt.Errorf("ws: not connected")
	}
	if deadline, ok := ctx.Deadline(); ok {
		c.conn.SetWriteDeadline(deadline)
	}
	if err := c.conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
		return fmt.Errorf("ws: write: %w", err)
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
