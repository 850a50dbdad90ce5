// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package cansimple

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ffutop/cansimple-gateway/can"
)

// pendingKey correlates a reply frame with the request awaiting it.
type pendingKey struct {
	node uint8
	cmd  Command
}

// Stats are the dispatcher's receive-path counters.
type Stats struct {
	Frames      uint64 // frames handed to the dispatcher
	Completed   uint64 // frames that completed a pending request
	Unsolicited uint64 // frames delivered to at least one subscriber
	Discarded   uint64 // well-formed frames nobody was waiting for
	Remote      uint64 // RTR frames (other masters' requests)
	Extended    uint64 // 29-bit frames, outside the protocol
	Malformed   uint64 // payload shorter than the command requires
	Unknown     uint64 // command ids outside the fixed table
}

type subscriber struct {
	key pendingKey
	ch  chan Message
}

// Dispatcher multiplexes logical request/reply operations over one CAN
// bus. Requests are correlated by (node, command); at most one request
// per pair may be outstanding, a second is rejected with ErrPending.
// Frames are processed one at a time in receipt order by Run.
//
// The dispatcher never retries and owns no timeout policy; callers bound
// each operation with a context deadline.
type Dispatcher struct {
	bus can.Bus
	log *slog.Logger

	mu      sync.Mutex
	pending map[pendingKey]chan Message
	subs    []*subscriber
	stats   Stats
}

// NewDispatcher wraps a bus. A nil logger falls back to slog.Default().
func NewDispatcher(bus can.Bus, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		bus:     bus,
		log:     logger,
		pending: make(map[pendingKey]chan Message),
	}
}

// Run is the receive loop. It reads frames until the context is
// cancelled or the bus closes, processing each frame to completion
// before the next. Decode errors are counted and logged, never fatal.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		frame, err := d.bus.Recv(ctx)
		if err != nil {
			return err
		}
		d.process(frame)
	}
}

// process applies the receive-path rules to one frame.
func (d *Dispatcher) process(frame can.Frame) {
	d.mu.Lock()
	d.stats.Frames++

	if frame.Extended {
		// CANSimple identifiers are 11-bit only.
		d.stats.Extended++
		d.mu.Unlock()
		return
	}

	id := IDFromFrame(frame)
	key := pendingKey{node: id.Node(), cmd: id.Command()}

	if frame.RTR {
		// A remote frame is another master's request. It carries no
		// payload and can never complete a pending request.
		d.stats.Remote++
		d.mu.Unlock()
		d.log.Debug("ignoring remote frame", "node", key.node, "command", key.cmd.String())
		return
	}

	msg, err := DecodeMessage(key.cmd, frame.Payload())
	if err != nil {
		switch err.(type) {
		case *UnknownCommandError:
			d.stats.Unknown++
		case *PayloadError:
			d.stats.Malformed++
		}
		d.mu.Unlock()
		d.log.Warn("dropping undecodable frame", "node", key.node, "command", key.cmd.String(), "err", err)
		return
	}

	// A pending request consumes the frame. The slot is removed before
	// delivery, so a duplicate finds nothing to complete and flows down
	// the unsolicited path instead of corrupting the delivered result.
	if ch, ok := d.pending[key]; ok {
		delete(d.pending, key)
		d.stats.Completed++
		d.mu.Unlock()
		ch <- msg
		return
	}

	delivered := false
	for _, sub := range d.subs {
		if sub.key != key {
			continue
		}
		select {
		case sub.ch <- msg:
			delivered = true
		default:
			// Subscriber not keeping up; dropping beats stalling the loop.
		}
	}
	if delivered {
		d.stats.Unsolicited++
	} else {
		d.stats.Discarded++
	}
	d.mu.Unlock()
}

// reserve claims the pending slot for a key. The returned channel has
// buffer 1, so completion never blocks the receive loop.
func (d *Dispatcher) reserve(key pendingKey) (chan Message, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.pending[key]; ok {
		return nil, fmt.Errorf("cansimple: %v for node %d: %w", key.cmd, key.node, ErrPending)
	}
	ch := make(chan Message, 1)
	d.pending[key] = ch
	return ch, nil
}

// release frees a slot whose reply will no longer be consumed.
func (d *Dispatcher) release(key pendingKey) {
	d.mu.Lock()
	delete(d.pending, key)
	d.mu.Unlock()
}

// await blocks until the slot completes or the context ends. On context
// expiry the slot is released so the (node, command) pair is usable
// again immediately.
func (d *Dispatcher) await(ctx context.Context, key pendingKey, ch chan Message) (Message, error) {
	select {
	case msg := <-ch:
		return msg, nil
	case <-ctx.Done():
		d.release(key)
		return nil, fmt.Errorf("cansimple: awaiting %v from node %d: %w", key.cmd, key.node, ctx.Err())
	}
}

// Notify encodes and sends a message expecting no reply.
func (d *Dispatcher) Notify(ctx context.Context, node uint8, msg Message) error {
	frame, err := EncodeFrame(node, msg)
	if err != nil {
		return err
	}
	return d.bus.Send(ctx, frame)
}

// Query solicits a command's reply with an RTR frame and awaits the
// matching data frame.
func (d *Dispatcher) Query(ctx context.Context, node uint8, cmd Command) (Message, error) {
	frame, err := RequestFrame(node, cmd)
	if err != nil {
		return nil, err
	}
	key := pendingKey{node: node, cmd: cmd}
	ch, err := d.reserve(key)
	if err != nil {
		return nil, err
	}
	if err := d.bus.Send(ctx, frame); err != nil {
		d.release(key)
		return nil, err
	}
	return d.await(ctx, key, ch)
}

// Exchange sends a data frame and awaits a reply on a possibly different
// command id. The SDO read is the archetype: an RxSdo request is
// answered by a TxSdo frame.
func (d *Dispatcher) Exchange(ctx context.Context, node uint8, msg Message, reply Command) (Message, error) {
	frame, err := EncodeFrame(node, msg)
	if err != nil {
		return nil, err
	}
	if reply > MaxCommand {
		return nil, &RangeError{Field: "command", Value: uint32(reply), Max: MaxCommand}
	}
	key := pendingKey{node: node, cmd: reply}
	ch, err := d.reserve(key)
	if err != nil {
		return nil, err
	}
	if err := d.bus.Send(ctx, frame); err != nil {
		d.release(key)
		return nil, err
	}
	return d.await(ctx, key, ch)
}

// Subscribe delivers unsolicited telemetry for a (node, command) pair:
// frames that arrive with no pending request, such as periodic
// heartbeats. The cancel function detaches the subscription and closes
// the channel. Messages are dropped rather than buffered beyond the
// given capacity.
func (d *Dispatcher) Subscribe(node uint8, cmd Command, buffer int) (<-chan Message, func()) {
	if buffer < 1 {
		buffer = 1
	}
	sub := &subscriber{
		key: pendingKey{node: node, cmd: cmd},
		ch:  make(chan Message, buffer),
	}
	d.mu.Lock()
	d.subs = append(d.subs, sub)
	d.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			d.mu.Lock()
			for i, s := range d.subs {
				if s == sub {
					d.subs = append(d.subs[:i], d.subs[i+1:]...)
					break
				}
			}
			d.mu.Unlock()
			close(sub.ch)
		})
	}
	return sub.ch, cancel
}

// Stats returns a snapshot of the receive-path counters.
func (d *Dispatcher) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats
}
