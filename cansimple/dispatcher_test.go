// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package cansimple

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ffutop/cansimple-gateway/can"
)

// testBus is an in-memory Bus: frames the dispatcher sends land in
// sent, frames pushed into in are handed to Recv.
type testBus struct {
	sent   chan can.Frame
	in     chan can.Frame
	closed chan struct{}
}

func newTestBus() *testBus {
	return &testBus{
		sent:   make(chan can.Frame, 16),
		in:     make(chan can.Frame, 16),
		closed: make(chan struct{}),
	}
}

func (b *testBus) Send(ctx context.Context, frame can.Frame) error {
	select {
	case b.sent <- frame:
		return nil
	case <-b.closed:
		return can.ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *testBus) Recv(ctx context.Context) (can.Frame, error) {
	select {
	case frame := <-b.in:
		return frame, nil
	case <-b.closed:
		return can.Frame{}, can.ErrClosed
	case <-ctx.Done():
		return can.Frame{}, ctx.Err()
	}
}

func (b *testBus) Close() error {
	close(b.closed)
	return nil
}

// startDispatcher runs the receive loop for the duration of the test.
func startDispatcher(t *testing.T) (*Dispatcher, *testBus) {
	t.Helper()
	bus := newTestBus()
	d := NewDispatcher(bus, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		d.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return d, bus
}

// inject encodes a message as a frame from the given node and feeds it
// to the dispatcher's receive path.
func inject(t *testing.T, bus *testBus, node uint8, msg Message) {
	t.Helper()
	frame, err := EncodeFrame(node, msg)
	if err != nil {
		t.Fatalf("EncodeFrame: %v", err)
	}
	bus.in <- frame
}

// expectSent returns the next frame the dispatcher transmitted.
func expectSent(t *testing.T, bus *testBus) can.Frame {
	t.Helper()
	select {
	case frame := <-bus.sent:
		return frame
	case <-time.After(5 * time.Second):
		t.Fatal("no frame transmitted")
		return can.Frame{}
	}
}

// waitStats polls until the predicate holds or the deadline passes.
func waitStats(t *testing.T, d *Dispatcher, pred func(Stats) bool) Stats {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		s := d.Stats()
		if pred(s) {
			return s
		}
		if time.Now().After(deadline) {
			t.Fatalf("stats predicate never held, last %+v", s)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestQueryBusVoltage(t *testing.T) {
	d, bus := startDispatcher(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	type result struct {
		msg Message
		err error
	}
	res := make(chan result, 1)
	go func() {
		msg, err := d.Query(ctx, 5, CmdGetBusVoltageCurrent)
		res <- result{msg, err}
	}()

	req := expectSent(t, bus)
	if !req.RTR {
		t.Error("query did not send an RTR frame")
	}
	if id := IDFromFrame(req); id.Node() != 5 || id.Command() != CmdGetBusVoltageCurrent {
		t.Errorf("request id = %v", id)
	}

	inject(t, bus, 5, BusVoltageCurrent{Voltage: 24.5, Current: 1.75})

	r := <-res
	if r.err != nil {
		t.Fatalf("Query: %v", r.err)
	}
	got, ok := r.msg.(BusVoltageCurrent)
	if !ok {
		t.Fatalf("reply type %T", r.msg)
	}
	if got.Voltage != 24.5 || got.Current != 1.75 {
		t.Errorf("reply = %+v", got)
	}
}

func TestQueryIgnoresOtherNodes(t *testing.T) {
	d, bus := startDispatcher(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	res := make(chan Message, 1)
	go func() {
		msg, err := d.Query(ctx, 5, CmdGetBusVoltageCurrent)
		if err != nil {
			t.Errorf("Query: %v", err)
		}
		res <- msg
	}()
	expectSent(t, bus)

	// A reply from a different node on the same command is another
	// conversation on a multi-drop bus, not ours.
	inject(t, bus, 6, BusVoltageCurrent{Voltage: 99, Current: 99})
	inject(t, bus, 5, BusVoltageCurrent{Voltage: 12, Current: 1})

	msg := <-res
	if got := msg.(BusVoltageCurrent); got.Voltage != 12 {
		t.Errorf("reply = %+v, want the node 5 frame", got)
	}
	s := d.Stats()
	if s.Discarded != 1 {
		t.Errorf("Discarded = %d, want 1", s.Discarded)
	}
}

func TestUnknownCommandReported(t *testing.T) {
	d, bus := startDispatcher(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	res := make(chan Message, 1)
	go func() {
		msg, err := d.Query(ctx, 5, CmdGetBusVoltageCurrent)
		if err != nil {
			t.Errorf("Query: %v", err)
		}
		res <- msg
	}()
	expectSent(t, bus)

	// An unassigned command id for the same node: reported, but the
	// pending request and the loop survive.
	junk, err := can.NewFrame(5<<5|0x08, []byte{1, 2, 3, 4})
	if err != nil {
		t.Fatal(err)
	}
	bus.in <- junk
	inject(t, bus, 5, BusVoltageCurrent{Voltage: 24, Current: 1})

	<-res
	s := d.Stats()
	if s.Unknown != 1 {
		t.Errorf("Unknown = %d, want 1", s.Unknown)
	}
	if s.Completed != 1 {
		t.Errorf("Completed = %d, want 1", s.Completed)
	}
}

func TestDuplicateReplyLeavesResultAlone(t *testing.T) {
	d, bus := startDispatcher(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	res := make(chan Message, 1)
	go func() {
		msg, err := d.Query(ctx, 5, CmdGetBusVoltageCurrent)
		if err != nil {
			t.Errorf("Query: %v", err)
		}
		res <- msg
	}()
	expectSent(t, bus)

	inject(t, bus, 5, BusVoltageCurrent{Voltage: 24, Current: 1})
	first := (<-res).(BusVoltageCurrent)

	// Some command ids double as periodic telemetry; a late duplicate
	// must not re-complete the request or alter the delivered result.
	inject(t, bus, 5, BusVoltageCurrent{Voltage: 99, Current: 9})
	waitStats(t, d, func(s Stats) bool { return s.Discarded == 1 })

	if first.Voltage != 24 {
		t.Errorf("delivered result changed: %+v", first)
	}
	s := d.Stats()
	if s.Completed != 1 {
		t.Errorf("Completed = %d, want 1", s.Completed)
	}
}

func TestMalformedPayloadDoesNotComplete(t *testing.T) {
	d, bus := startDispatcher(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	res := make(chan Message, 1)
	go func() {
		msg, err := d.Query(ctx, 5, CmdGetBusVoltageCurrent)
		if err != nil {
			t.Errorf("Query: %v", err)
		}
		res <- msg
	}()
	expectSent(t, bus)

	// Too short for two floats: surfaced as malformed, not zero-padded
	// into a bogus completion.
	short, err := can.NewFrame(5<<5|uint32(CmdGetBusVoltageCurrent), []byte{1, 2, 3, 4})
	if err != nil {
		t.Fatal(err)
	}
	bus.in <- short
	waitStats(t, d, func(s Stats) bool { return s.Malformed == 1 })

	select {
	case msg := <-res:
		t.Fatalf("request completed by malformed frame: %v", msg)
	default:
	}

	inject(t, bus, 5, BusVoltageCurrent{Voltage: 24, Current: 1})
	if got := (<-res).(BusVoltageCurrent); got.Voltage != 24 {
		t.Errorf("reply = %+v", got)
	}
}

func TestSecondRequestRejected(t *testing.T) {
	d, bus := startDispatcher(t)

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := d.Query(firstCtx, 5, CmdGetBusVoltageCurrent)
		firstErr <- err
	}()
	expectSent(t, bus)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := d.Query(ctx, 5, CmdGetBusVoltageCurrent); !errors.Is(err, ErrPending) {
		t.Fatalf("second query err = %v, want ErrPending", err)
	}

	// A different pair is unaffected.
	go func() {
		d.Query(ctx, 6, CmdGetBusVoltageCurrent)
	}()
	expectSent(t, bus)

	// Cancelling the first request frees the slot.
	cancelFirst()
	if err := <-firstErr; !errors.Is(err, context.Canceled) {
		t.Fatalf("first query err = %v, want context.Canceled", err)
	}

	res := make(chan Message, 1)
	go func() {
		msg, err := d.Query(ctx, 5, CmdGetBusVoltageCurrent)
		if err != nil {
			t.Errorf("third query: %v", err)
		}
		res <- msg
	}()
	expectSent(t, bus)
	inject(t, bus, 5, BusVoltageCurrent{Voltage: 24, Current: 1})
	<-res
}

func TestQueryTimesOut(t *testing.T) {
	d, bus := startDispatcher(t)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := d.Query(ctx, 5, CmdGetBusVoltageCurrent)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
	expectSent(t, bus)

	// The slot must be free again after the timeout.
	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	res := make(chan Message, 1)
	go func() {
		msg, err := d.Query(ctx2, 5, CmdGetBusVoltageCurrent)
		if err != nil {
			t.Errorf("second query: %v", err)
		}
		res <- msg
	}()
	expectSent(t, bus)
	inject(t, bus, 5, BusVoltageCurrent{Voltage: 24, Current: 1})
	<-res
}

func TestQueryOutOfRangeNode(t *testing.T) {
	d, bus := startDispatcher(t)
	ctx := context.Background()

	_, err := d.Query(ctx, 64, CmdGetBusVoltageCurrent)
	var rerr *RangeError
	if !errors.As(err, &rerr) {
		t.Fatalf("err = %v, want RangeError", err)
	}
	select {
	case frame := <-bus.sent:
		t.Fatalf("frame sent despite out-of-range node: %v", frame)
	default:
	}
}

func TestRemoteFrameDoesNotComplete(t *testing.T) {
	d, bus := startDispatcher(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	res := make(chan Message, 1)
	go func() {
		msg, err := d.Query(ctx, 5, CmdGetBusVoltageCurrent)
		if err != nil {
			t.Errorf("Query: %v", err)
		}
		res <- msg
	}()
	expectSent(t, bus)

	// Another master polling the same node: an RTR frame carries no
	// payload and must not resolve our request.
	rtr, err := can.NewRemoteFrame(5<<5|uint32(CmdGetBusVoltageCurrent), 8)
	if err != nil {
		t.Fatal(err)
	}
	bus.in <- rtr
	waitStats(t, d, func(s Stats) bool { return s.Remote == 1 })

	select {
	case msg := <-res:
		t.Fatalf("request completed by RTR frame: %v", msg)
	default:
	}

	inject(t, bus, 5, BusVoltageCurrent{Voltage: 24, Current: 1})
	<-res
}

func TestSubscribeHeartbeats(t *testing.T) {
	d, bus := startDispatcher(t)

	events, cancel := d.Subscribe(3, CmdHeartbeat, 4)
	defer cancel()

	inject(t, bus, 3, Heartbeat{AxisState: 8})
	inject(t, bus, 4, Heartbeat{AxisState: 1}) // different node, not ours
	inject(t, bus, 3, Heartbeat{AxisState: 1, AxisError: 0x100})

	first := (<-events).(Heartbeat)
	if first.AxisState != 8 {
		t.Errorf("first heartbeat = %+v", first)
	}
	second := (<-events).(Heartbeat)
	if second.AxisError != 0x100 {
		t.Errorf("second heartbeat = %+v", second)
	}

	cancel()
	if _, ok := <-events; ok {
		t.Error("channel still open after cancel")
	}
}

func TestExchangeSdo(t *testing.T) {
	d, bus := startDispatcher(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	res := make(chan Message, 1)
	go func() {
		msg, err := d.Exchange(ctx, 2, SdoRequest{Opcode: SdoOpcodeRead, Endpoint: 395}, CmdTxSdo)
		if err != nil {
			t.Errorf("Exchange: %v", err)
		}
		res <- msg
	}()

	req := expectSent(t, bus)
	if req.RTR {
		t.Error("SDO request must be a data frame")
	}
	if id := IDFromFrame(req); id.Command() != CmdRxSdo {
		t.Errorf("request command = %v", id.Command())
	}

	inject(t, bus, 2, SdoResponse{Endpoint: 395, Value: [4]byte{0xb6, 0xf3, 0x9d, 0x3f}})

	got := (<-res).(SdoResponse)
	if got.Endpoint != 395 {
		t.Errorf("response = %+v", got)
	}
}

func TestNotify(t *testing.T) {
	d, bus := startDispatcher(t)
	ctx := context.Background()

	if err := d.Notify(ctx, 1, Estop{}); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	frame := expectSent(t, bus)
	if id := IDFromFrame(frame); id.Node() != 1 || id.Command() != CmdEstop {
		t.Errorf("frame id = %v", id)
	}
	if frame.Len != 0 {
		t.Errorf("estop payload length = %d", frame.Len)
	}
}

func TestRunReturnsOnBusClose(t *testing.T) {
	bus := newTestBus()
	d := NewDispatcher(bus, nil)
	done := make(chan error, 1)
	go func() {
		done <- d.Run(context.Background())
	}()
	bus.Close()
	if err := <-done; !errors.Is(err, can.ErrClosed) {
		t.Fatalf("Run returned %v, want ErrClosed", err)
	}
}
