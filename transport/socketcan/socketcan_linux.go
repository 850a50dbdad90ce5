// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

//go:build linux

package socketcan

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"golang.org/x/sys/unix"

	"github.com/ffutop/cansimple-gateway/can"
)

// Bus is a raw SocketCAN attachment (AF_CAN/CAN_RAW). The socket is
// non-blocking; Send and Recv poll the descriptor so context
// cancellation is honored.
type Bus struct {
	iface  string
	fd     int
	closed chan struct{}
}

// Dial opens a raw CAN socket bound to the named interface, e.g. "can0".
func Dial(iface string) (*Bus, error) {
	fd, err := unix.Socket(unix.AF_CAN, unix.SOCK_RAW|unix.SOCK_CLOEXEC, unix.CAN_RAW)
	if err != nil {
		return nil, fmt.Errorf("socketcan: socket: %w", err)
	}

	netIf, err := net.InterfaceByName(iface)
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("socketcan: interface %s: %w", iface, err)
	}

	if err := unix.Bind(fd, &unix.SockaddrCAN{Ifindex: netIf.Index}); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("socketcan: bind %s: %w", iface, err)
	}

	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("socketcan: nonblock: %w", err)
	}

	return &Bus{iface: iface, fd: fd, closed: make(chan struct{})}, nil
}

// Connect satisfies transport.Downstream; the socket is already open.
func (b *Bus) Connect(ctx context.Context) error {
	select {
	case <-b.closed:
		return can.ErrClosed
	default:
		return nil
	}
}

// Send writes one frame in the 16-byte can_frame layout.
func (b *Bus) Send(ctx context.Context, frame can.Frame) error {
	buf, err := frame.MarshalBinary()
	if err != nil {
		return err
	}
	for {
		select {
		case <-b.closed:
			return can.ErrClosed
		default:
		}
		n, werr := unix.Write(b.fd, buf)
		if werr == nil {
			if n != len(buf) {
				return errors.New("socketcan: short write")
			}
			return nil
		}
		if werr == unix.EAGAIN || werr == unix.EINTR {
			if err := b.wait(ctx, unix.POLLOUT); err != nil {
				return err
			}
			continue
		}
		return fmt.Errorf("socketcan: write: %w", werr)
	}
}

// Recv reads the next frame, blocking until one arrives, the context is
// cancelled, or the bus is closed.
func (b *Bus) Recv(ctx context.Context) (can.Frame, error) {
	buf := make([]byte, can.FrameSize)
	for {
		select {
		case <-b.closed:
			return can.Frame{}, can.ErrClosed
		default:
		}
		n, rerr := unix.Read(b.fd, buf)
		if rerr == nil {
			if n != len(buf) {
				return can.Frame{}, errors.New("socketcan: short read")
			}
			var f can.Frame
			if err := f.UnmarshalBinary(buf); err != nil {
				return can.Frame{}, err
			}
			return f, nil
		}
		if rerr == unix.EAGAIN || rerr == unix.EINTR {
			if err := b.wait(ctx, unix.POLLIN); err != nil {
				return can.Frame{}, err
			}
			continue
		}
		return can.Frame{}, fmt.Errorf("socketcan: read: %w", rerr)
	}
}

// wait polls the descriptor in short slices so ctx cancellation and
// Close are observed without a signal.
func (b *Bus) wait(ctx context.Context, events int16) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		select {
		case <-b.closed:
			return can.ErrClosed
		default:
		}

		timeout := 50 * time.Millisecond
		if deadline, ok := ctx.Deadline(); ok {
			if d := time.Until(deadline); d < timeout {
				timeout = d
			}
		}
		if timeout <= 0 {
			return ctx.Err()
		}

		fds := []unix.PollFd{{Fd: int32(b.fd), Events: events}}
		n, err := unix.Poll(fds, int(timeout.Milliseconds())+1)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return fmt.Errorf("socketcan: poll: %w", err)
		}
		if n > 0 {
			return nil
		}
	}
}

// Close releases the socket. Blocked Send/Recv calls return within one
// poll interval.
func (b *Bus) Close() error {
	select {
	case <-b.closed:
		return nil
	default:
	}
	close(b.closed)
	return unix.Close(b.fd)
}
