// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package ws

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ffutop/cansimple-gateway/can"
	"github.com/ffutop/cansimple-gateway/transport"
)

const sendQueueLen = 256

// DefaultPath is the endpoint path served when none is configured.
const DefaultPath = "/can"

// Server is the WebSocket upstream: it upgrades HTTP requests on Path
// and then speaks the binary frame-record protocol.
type Server struct {
	Address string
	Path    string

	handler  transport.FrameHandler
	upgrader websocket.Upgrader

	mu     sync.Mutex
	server *http.Server
	conns  map[*serverConn]struct{}
}

type serverConn struct {
	conn *websocket.Conn

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

// NewServer creates a bridge server listening on address, serving the
// given path ("" means DefaultPath).
func NewServer(address, path string) *Server {
	if path == "" {
		path = DefaultPath
	}
	return &Server{
		Address: address,
		Path:    path,
		conns:   make(map[*serverConn]struct{}),
	}
}

// Start serves WebSocket clients until the context is done.
func (s *Server) Start(ctx context.Context, handler transport.FrameHandler) error {
	s.handler = handler

	mux := http.NewServeMux()
	mux.HandleFunc(s.Path, func(w http.ResponseWriter, r *http.Request) {
		s.serveConn(ctx, w, r)
	})

	listener, err := net.Listen("tcp", s.Address)
	if err != nil {
		return fmt.Errorf("ws: failed to listen on %s: %w", s.Address, err)
	}

	server := &http.Server{Handler: mux}
	s.mu.Lock()
	s.server = server
	s.mu.Unlock()
	slog.Info("CAN bridge listening", "proto", "ws", "addr", listener.Addr(), "path", s.Path)

	go func() {
		<-ctx.Done()
		s.Close()
	}()

	if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		select {
		case <-ctx.Done():
			return nil
		default:
			return err
		}
	}
	return nil
}

func (s *Server) serveConn(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("WebSocket upgrade failed", "addr", r.RemoteAddr, "err", err)
		return
	}

	sc := &serverConn{
		conn:  conn,
		queue: make(chan []byte, sendQueueLen),
	}
	s.mu.Lock()
	s.conns[sc] = struct{}{}
	s.mu.Unlock()
	slog.Info("Bridge client connected", "proto", "ws", "addr", conn.RemoteAddr())

	defer func() {
		s.mu.Lock()
		delete(s.conns, sc)
		s.mu.Unlock()
		sc.close()
	}()

	go func() {
		for data := range sc.queue {
			if err := conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
				sc.close()
				return
			}
		}
	}()

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			slog.Info("Bridge client disconnected", "proto", "ws", "addr", conn.RemoteAddr())
			return
		}
		if messageType != websocket.BinaryMessage || len(data) != can.FrameSize {
			continue
		}

		var frame can.Frame
		if err := frame.UnmarshalBinary(data); err != nil {
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

// Close stops the HTTP server and disconnects all clients.
func (s *Server) Close() error {
	s.mu.Lock()
	server := s.server
	s.server = nil
	targets := make([]*serverConn, 0, len(s.conns))
	for sc := range s.conns {
		targets = append(targets, sc)
	}
	s.mu.Unlock()

	for _, sc := range targets {
		sc.close()
	}
	if server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	}
	return nil
}
