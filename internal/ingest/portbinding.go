// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package ingest

import (
	"context"
	"fmt"
	"net"
	"sync"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/WillMerges/GSW-2021-sub000/internal/gswerr"
)

// PortBinding is one UDP socket, bound SO_REUSEADDR|SO_REUSEPORT so
// multiple ingest instances may coexist during development (§6). It also
// carries the passively-learned source address of the last datagram it
// received, used by Uplink's sendto() — kept exactly as stale-by-design:
// lastAddr is set only by RecvFrom and never cleared.
type PortBinding struct {
	conn *net.UDPConn

	mu       sync.Mutex
	lastAddr *net.UDPAddr
}

// Bind opens a UDP socket at addr (e.g. ":9000") with SO_REUSEADDR and
// SO_REUSEPORT set via the raw socket before it's put in listening state,
// the same ListenConfig.Control idiom used wherever this pack reaches
// below net.Listen for socket options.
func Bind(addr string) (*PortBinding, error) {
	lc := net.ListenConfig{
		Control: func(_, _ string, c syscall.RawConn) error {
			var sockErr error
			err := c.Control(func(fd uintptr) {
				sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
				if sockErr != nil {
					return
				}
				sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1)
			})
			if err != nil {
				return err
			}
			return sockErr
		},
	}

	pc, err := lc.ListenPacket(context.Background(), "udp", addr)
	if err != nil {
		return nil, fmt.Errorf("ingest: bind %s: %w", addr, err)
	}

	conn, ok := pc.(*net.UDPConn)
	if !ok {
		pc.Close()
		return nil, fmt.Errorf("ingest: bind %s: not a UDP connection", addr)
	}

	return &PortBinding{conn: conn}, nil
}

// RecvFrom blocks for the next datagram, copies it into buf, and records
// its source address as the uplink target for this binding.
func (b *PortBinding) RecvFrom(buf []byte) (int, error) {
	n, addr, err := b.conn.ReadFromUDP(buf)
	if err != nil {
		return n, err
	}

	b.mu.Lock()
	b.lastAddr = addr
	b.mu.Unlock()
	return n, nil
}

// LastAddr returns the most recently learned source address, or nil if no
// datagram has ever been received on this binding.
func (b *PortBinding) LastAddr() *net.UDPAddr {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastAddr
}

// SendTo writes data to the last learned address. It refuses
// (gswerr.Failure) rather than guessing when no address has ever been
// learned.
func (b *PortBinding) SendTo(data []byte) gswerr.Result {
	addr := b.LastAddr()
	if addr == nil {
		return gswerr.Failure
	}
	if _, err := b.conn.WriteToUDP(data, addr); err != nil {
		return gswerr.Failure
	}
	return gswerr.Success
}

// Close releases the underlying socket. Safe to call once the owning
// goroutine's recvfrom loop has been asked to stop.
func (b *PortBinding) Close() error {
	return b.conn.Close()
}

// LocalAddr reports the bound local address, for diagnostics.
func (b *PortBinding) LocalAddr() net.Addr {
	return b.conn.LocalAddr()
}
