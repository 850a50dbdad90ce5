// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package tcp

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/ffutop/cansimple-gateway/can"
)

func TestBridge_InjectAndBroadcast(t *testing.T) {
	// Pre-allocate a port so the server can bind to it immediately.
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := l.Addr().String()
	l.Close()

	s := NewServer(addr)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	injected := make(chan can.Frame, 1)
	handler := func(ctx context.Context, frame can.Frame) error {
		injected <- frame
		return nil
	}

	errChan := make(chan error, 1)
	go func() {
		errChan <- s.Start(ctx, handler)
	}()

	// Connect with retry; the server needs a moment to bind.
	c := NewClient(addr)
	connCtx, connCancel := context.WithTimeout(ctx, 2*time.Second)
	defer connCancel()
	for i := 0; i < 20; i++ {
		if err = c.Connect(connCtx); err == nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("Failed to connect after retries: %v", err)
	}
	defer c.Close()

	// Client injects a frame; the handler must see it.
	out := can.Frame{ID: 0x0A9, RTR: true, Len: 0}
	if err := c.Send(ctx, out); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	select {
	case got := <-injected:
		if got != out {
			t.Errorf("handler saw %v, want %v", got, out)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("handler never saw the injected frame")
	}

	// Broadcast reaches the client.
	in := can.Frame{ID: 0x0A9, Len: 8, Data: [8]byte{0xCD, 0xCC, 0xCC, 0x3D, 0x00, 0x00, 0x80, 0x3F}}
	// The client registers asynchronously, but it must already be in
	// the server's table: its injected frame was handled above.
	s.Broadcast(in)

	recvCtx, recvCancel := context.WithTimeout(ctx, 2*time.Second)
	defer recvCancel()
	got, err := c.Recv(recvCtx)
	if err != nil {
		t.Fatalf("Recv failed: %v", err)
	}
	if got != in {
		t.Errorf("Recv = %v, want %v", got, in)
	}

	// Shutdown is clean.
	cancel()
	select {
	case err := <-errChan:
		if err != nil {
			t.Errorf("Start returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestBridge_MalformedRecordIgnored(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := l.Addr().String()
	l.Close()

	s := NewServer(addr)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	injected := make(chan can.Frame, 2)
	go s.Start(ctx, func(ctx context.Context, frame can.Frame) error {
		injected <- frame
		return nil
	})
	defer s.Close()

	var conn net.Conn
	for i := 0; i < 20; i++ {
		conn, err = net.Dial("tcp", addr)
		if err == nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if conn == nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	defer conn.Close()

	// A record with DLC 9 cannot unmarshal; it must be skipped, and
	// the following valid record still delivered.
	bad := make([]byte, can.FrameSize)
	bad[0] = 0x29
	bad[4] = 9
	good, _ := can.Frame{ID: 0x029, Len: 1, Data: [8]byte{0x42}}.MarshalBinary()
	if _, err := conn.Write(append(bad, good...)); err != nil {
		t.Fatal(err)
	}

	select {
	case got := <-injected:
		if got.ID != 0x029 || got.Len != 1 || got.Data[0] != 0x42 {
			t.Errorf("handler saw %v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("valid frame after malformed record was not delivered")
	}
}
