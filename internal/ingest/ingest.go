// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package ingest is the network edge of the telemetry bus (§4.9): one UDP
// socket per non-virtual packet port feeding TShm.Write, and one uplink
// child per configured network device draining its named mqueue queue and
// calling sendto() to whichever address last received from that device.
// The per-socket loop is modeled on the teacher's NATS worker-pool pattern
// (a goroutine per subscription feeding shared state) with the NATS
// subscription swapped for a raw UDP PortBinding.
package ingest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/WillMerges/GSW-2021-sub000/internal/gswerr"
	"github.com/WillMerges/GSW-2021-sub000/internal/mqueue"
	"github.com/WillMerges/GSW-2021-sub000/internal/tshm"
	"github.com/WillMerges/GSW-2021-sub000/internal/vcm"
	"github.com/WillMerges/GSW-2021-sub000/pkg/log"
)

// maxPacketBytes bounds the recvfrom buffer; no measurement or packet
// declared by the vehicle config grammar can exceed this.
const maxPacketBytes = 65507

// Ingester owns one PortBinding per distinct packet port and writes every
// correctly-sized datagram it receives into the matching TShm slot.
type Ingester struct {
	vehicle *vcm.Vehicle
	shm     *tshm.TShm
	log     *mqueue.Manager

	mu       sync.Mutex
	bindings map[int]*PortBinding
}

// New returns an Ingester for vehicle over an already-Open'd shm handle.
// log, if non-nil, receives one log record per datagram successfully
// ingested, the second of the three log-record producers alongside the
// trigger engine's flush and the message logger.
func New(vehicle *vcm.Vehicle, shm *tshm.TShm, log *mqueue.Manager) *Ingester {
	return &Ingester{
		vehicle:  vehicle,
		shm:      shm,
		log:      log,
		bindings: map[int]*PortBinding{},
	}
}

// Binding returns the PortBinding for port, creating and binding it on
// first use. Uplink shares these bindings so a device's sendto() target is
// learned from the same socket ingest already listens on.
func (g *Ingester) Binding(port int) (*PortBinding, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if b, ok := g.bindings[port]; ok {
		return b, nil
	}
	b, err := Bind(fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, err
	}
	g.bindings[port] = b
	return b, nil
}

// Run binds one socket per non-virtual packet and serves them until ctx is
// canceled, at which point every binding is closed to unblock its
// recvfrom and the call returns.
func (g *Ingester) Run(ctx context.Context) error {
	var wg sync.WaitGroup

	for i, p := range g.vehicle.Packets {
		if p.IsVirtual {
			continue
		}
		binding, err := g.Binding(p.Port)
		if err != nil {
			return err
		}

		wg.Add(1)
		go func(i int, p *vcm.Packet, b *PortBinding) {
			defer wg.Done()
			g.servePacket(ctx, i, p, b)
		}(i, p, binding)
	}

	go func() {
		<-ctx.Done()
		g.closeAll()
	}()

	wg.Wait()
	return nil
}

func (g *Ingester) closeAll() {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, b := range g.bindings {
		b.Close()
	}
}

// servePacket is the per-port recvfrom loop: a correctly-sized datagram is
// written straight into the packet's TShm slot and logged; a mismatched
// one clears the slot to zero and is logged as a transient error (§4.9,
// §9 "Transient I/O errors ... are logged and skipped; the loop
// continues").
func (g *Ingester) servePacket(ctx context.Context, i int, p *vcm.Packet, b *PortBinding) {
	buf := make([]byte, maxPacketBytes)
	for {
		n, err := b.RecvFrom(buf)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Warnf("ingest: packet %d (port %d) recvfrom: %s", i, p.Port, err)
			continue
		}

		if n != p.Size {
			log.Warnf("ingest: packet %d (port %d) size mismatch: got %d want %d", i, p.Port, n, p.Size)
			if res := g.shm.Write(i, make([]byte, p.Size)); res != gswerr.Success {
				log.Warnf("ingest: packet %d: clearing slot after size mismatch failed: %s", i, res)
			}
			continue
		}

		data := append([]byte(nil), buf[:n]...)
		if res := g.shm.Write(i, data); res != gswerr.Success {
			log.Warnf("ingest: packet %d (port %d) write failed: %s", i, p.Port, res)
			continue
		}
		g.logReceived(data)
	}
}

func (g *Ingester) logReceived(data []byte) {
	if g.log == nil {
		return
	}
	now := time.Now()
	g.log.PushLogRecord(&mqueue.LogRecord{
		Sec:     now.Unix(),
		Usec:    int64(now.Nanosecond() / 1000),
		Device:  g.vehicle.Device,
		Payload: data,
	})
}
