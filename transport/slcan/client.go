// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package slcan

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/grid-x/serial"

	"github.com/ffutop/cansimple-gateway/can"
)

const dialTimeout = 10 * time.Second

// SerialOptions configure the serial-port mode of the client.
type SerialOptions struct {
	Device   string
	BaudRate int
	DataBits int
	Parity   string
	StopBits int
	Timeout  time.Duration
	Bitrate  int // CAN bit rate programmed with the S command
}

type inbound struct {
	frame can.Frame
	err   error
}

// Client attaches to an SLCAN adapter, either a local serial device or
// an EBYTE-style converter reachable over TCP. In serial mode Connect
// programs the bit rate and opens the channel; converters on TCP are
// already open and receive no setup commands.
type Client struct {
	serialOpts *SerialOptions
	address    string

	mu   sync.Mutex // guards port writes and lifecycle
	port io.ReadWriteCloser

	recv   chan inbound
	closed chan struct{}
}

// NewSerialClient attaches through a local serial SLCAN adapter.
func NewSerialClient(opts SerialOptions) *Client {
	return &Client{
		serialOpts: &opts,
		recv:       make(chan inbound, 64),
		closed:     make(chan struct{}),
	}
}

// NewTCPClient attaches through an SLCAN-over-TCP converter.
func NewTCPClient(address string) *Client {
	return &Client{
		address: address,
		recv:    make(chan inbound, 64),
		closed:  make(chan struct{}),
	}
}

// Connect opens the adapter and starts the reader.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	select {
	case <-c.closed:
		return can.ErrClosed
	default:
	}
	if c.port != nil {
		return nil
	}

	if c.serialOpts != nil {
		port, err := serial.Open(&serial.Config{
			Address:  c.serialOpts.Device,
			BaudRate: c.serialOpts.BaudRate,
			DataBits: c.serialOpts.DataBits,
			Parity:   c.serialOpts.Parity,
			StopBits: c.serialOpts.StopBits,
			Timeout:  c.serialOpts.Timeout,
		})
		if err != nil {
			return fmt.Errorf("slcan: could not open %s: %w", c.serialOpts.Device, err)
		}
		if err := c.setup(port); err != nil {
			port.Close()
			return err
		}
		c.port = port
	} else {
		d := net.Dialer{Timeout: dialTimeout}
		conn, err := d.DialContext(ctx, "tcp", c.address)
		if err != nil {
			return fmt.Errorf("slcan: could not connect to %s: %w", c.address, err)
		}
		c.port = conn
	}

	go c.readLoop(c.port)
	return nil
}

// setup closes any stale channel, programs the bit rate, and opens the
// channel. Caller holds the mutex.
func (c *Client) setup(port io.Writer) error {
	bitrate := c.serialOpts.Bitrate
	if bitrate == 0 {
		bitrate = 500000
	}
	speed, err := BitrateCommand(bitrate)
	if err != nil {
		return err
	}
	for _, cmd := range [][]byte{{'C', cr}, speed, {'O', cr}} {
		if _, err := port.Write(cmd); err != nil {
			return fmt.Errorf("slcan: adapter setup: %w", err)
		}
	}
	return nil
}

// readLoop accumulates bytes until CR and decodes each line. A BEL from
// the adapter is surfaced as an error to the next Recv; empty lines
// (bare acknowledgements) are dropped.
func (c *Client) readLoop(port io.Reader) {
	buf := make([]byte, 1)
	line := make([]byte, 0, 32)
	for {
		if _, err := io.ReadAtLeast(port, buf, 1); err != nil {
			c.deliver(inbound{err: fmt.Errorf("slcan: read: %w", err)})
			return
		}
		switch buf[0] {
		case bel:
			c.deliver(inbound{err: fmt.Errorf("slcan: adapter rejected command")})
			line = line[:0]
		case cr:
			if len(line) == 0 {
				continue
			}
			frame, err := Decode(line)
			line = line[:0]
			if err != nil {
				slog.Debug("slcan: dropping line", "err", err)
				continue
			}
			c.deliver(inbound{frame: frame})
		default:
			line = append(line, buf[0])
		}
	}
}

func (c *Client) deliver(in inbound) {
	select {
	case c.recv <- in:
	case <-c.closed:
	}
}

// Send encodes and writes one frame.
func (c *Client) Send(ctx context.Context, frame can.Frame) error {
	data, err := Encode(frame)
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
	if c.port == nil {
		return fmt.Errorf("slcan: not connected")
	}
	if _, err := c.port.Write(data); err != nil {
		return fmt.Errorf("slcan: write: %w", err)
	}
	return nil
}

// Recv returns the next decoded frame or adapter error.
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

// Close closes the channel (serial mode) and releases the port.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	select {
	case <-c.closed:
		return nil
	default:
	}
	close(c.closed)
	if c.port == nil {
		return nil
	}
	if c.serialOpts != nil {
		// Best effort; the adapter may already be gone.
		c.port.Write([]byte{'C', cr})
	}
	err := c.port.Close()
	c.port = nil
	return err
}
