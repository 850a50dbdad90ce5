// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package tcp

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"

	"github.com/ffutop/cansimple-gateway/can"
	"github.com/ffutop/cansimple-gateway/transport"
)

// sendQueueLen bounds the per-client broadcast backlog. A client that
// falls this far behind is disconnected rather than stalling the bus
// pump.
const sendQueueLen = 256

// Server is the upstream side of a frame bridge: it accepts any number
// of clients, injects their frames through the handler, and broadcasts
// bus frames to all of them.
type Server struct {
	Address string

	handler transport.FrameHandler

	mu       sync.Mutex
	listener net.Listener
	conns    map[*serverConn]struct{}
}

type serverConn struct {
	conn net.Conn

	mu    sync.Mutex
	dead  bool
	queue chan []byte
}

func (sc *serverConn) close() {
	sc.mu.Lock()
	if sc.dead {
		sc.mu.Unlock()
		return
	}
	sc.dead = true
	sc.mu.Unlock()
	sc.conn.Close()
	close(sc.queue)
}

// enqueue reports false when the client's queue is full; dead clients
// swallow the frame silently.
func (sc *serverConn) enqueue(data []byte) bool {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	if sc.dead {
		return true
	}
	select {
	case sc.queue <- data:
		return true
	default:
		return false
	}
}

// NewServer creates a bridge server listening on address.
func NewServer(address string) *Server {
	return &Server{
		Address: address,
		conns:   make(map[*serverConn]struct{}),
	}
}

// Start listens and serves clients until the context is done.
func (s *Server) Start(ctx context.Context, handler transport.FrameHandler) error {
	s.handler = handler
	listener, err := net.Listen("tcp", s.Address)
	if err != nil {
		return fmt.Errorf("tcp: failed to listen on %s: %w", s.Address, err)
	}
	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()
	slog.Info("CAN bridge listening", "proto", "tcp", "addr", listener.Addr())

	go func() {
		<-ctx.Done()
		s.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				slog.Error("Failed to accept connection", "err", err)
				continue
			}
		}
		go s.handleConnection(ctx, conn)
	}
}

func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	sc := &serverConn{
		conn:  conn,
		queue: make(chan []byte, sendQueueLen),
	}
	s.mu.Lock()
	s.conns[sc] = struct{}{}
	s.mu.Unlock()
	slog.Info("Bridge client connected", "proto", "tcp", "addr", conn.RemoteAddr())

	defer func() {
		s.mu.Lock()
		delete(s.conns, sc)
		s.mu.Unlock()
		sc.close()
	}()

	// Writer drains the broadcast queue so a slow socket never blocks
	// the bus pump.
	go func() {
		for data := range sc.queue {
			if _, err := conn.Write(data); err != nil {
				sc.close()
				return
			}
		}
	}()

	buf := make([]byte, can.FrameSize)
	for {
		if _, err := io.ReadFull(conn, buf); err != nil {
			if err == io.EOF {
				slog.Info("Bridge client disconnected", "proto", "tcp", "addr", conn.RemoteAddr())
			} else {
				slog.Debug("Bridge client read failed", "addr", conn.RemoteAddr(), "err", err)
			}
			return
		}

		var frame can.Frame
		if err := frame.UnmarshalBinary(buf); err != nil {
			slog.Warn("Dropping malformed frame record", "addr", conn.RemoteAddr(), "err", err)
			continue
		}

		if s.handler == nil {
			continue
		}
		if err := s.handler(ctx, frame); err != nil {
			slog.Warn("Frame rejected", "addr", conn.RemoteAddr(), "frame", frame.String(), "err", err)
		}
	}
}

// Broadcast queues a frame for every connected client. Clients whose
// queue is full are disconnected.
func (s *Server) Broadcast(frame can.Frame) {
	data, err := frame.MarshalBinary()
	if err != nil {
		slog.Warn("Dropping unencodable frame", "err", err)
		return
	}

	s.mu.Lock()
	targets := make([]*serverConn, 0, len(s.conns))
	for sc := range s.conns {
		targets = append(targets, sc)
	}
	s.mu.Unlock()

	for _, sc := range targets {
		if !sc.enqueue(data) {
			slog.Warn("Disconnecting slow bridge client", "addr", sc.conn.RemoteAddr())
			sc.close()
		}
	}
}

// Close stops the listener and disconnects all clients.
func (s *Server) Close() error {
	s.mu.Lock()
	listener := s.listener
	s.listener = nil
	targets := make([]*serverConn, 0, len(s.conns))
	for sc := range s.conns {
		targets = append(targets, sc)
	}
	s.mu.Unlock()

	for _, sc := range targets {
		sc.close()
	}
	if listener != nil {
		return listener.Close()
	}
	return nil
}
