// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package can

import (
	"context"
	"errors"
)

// Bus is a CAN bus attachment. Implementations must be safe for
// concurrent use by multiple goroutines.
type Bus interface {
	// Send transmits one frame. It may block until the frame is queued
	// for transmission; cancelling the context aborts the wait.
	Send(ctx context.Context, frame Frame) error

	// Recv returns the next inbound frame, blocking until one is
	// available, the context is cancelled, or the bus is closed.
	Recv(ctx context.Context) (Frame, error)

	// Close releases the attachment. Blocked Send/Recv calls return
	// ErrClosed.
	Close() error
}

// ErrClosed reports an operation on a closed bus.
var ErrClosed = errors.New("can: bus closed")
