// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

//go:build !linux

package socketcan

import (
	"context"
	"errors"

	"github.com/ffutop/cansimple-gateway/can"
)

var errUnsupported = errors.New("socketcan: only available on linux")

// Bus is unavailable on this platform; use the slcan or bridge
// transports instead.
type Bus struct{}

func Dial(iface string) (*Bus, error) { return nil, errUnsupported }

func (b *Bus) Connect(ctx context.Context) error { return errUnsupported }

func (b *Bus) Send(ctx context.Context, frame can.Frame) error { return errUnsupported }

func (b *Bus) Recv(ctx context.Context) (can.Frame, error) { return can.Frame{}, errUnsupported }

func (b *Bus) Close() error { return nil }
