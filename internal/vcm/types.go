// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package vcm

import (
	"sync"

	"github.com/WillMerges/GSW-2021-sub000/internal/constants"
)

// Endianness describes the byte order used on the wire or by the host.
type Endianness int

const (
	LittleEndian Endianness = iota
	BigEndian
)

func (e Endianness) String() string {
	if e == BigEndian {
		return "big"
	}
	return "little"
}

// Type is the interpretation applied to a measurement's raw bytes.
type Type int

const (
	Undefined Type = iota
	Int
	Float
	String
)

func (t Type) String() string {
	switch t {
	case Int:
		return "int"
	case Float:
		return "float"
	case String:
		return "string"
	default:
		return "undefined"
	}
}

// Sign distinguishes signed from unsigned integer measurements.
type Sign int

const (
	Signed Sign = iota
	Unsigned
)

// Protocol is the wire protocol a non-virtual packet is received over.
type Protocol int

const (
	ProtocolNotSet Protocol = iota
	UDP
)

// Location is one (packet, byte offset) a measurement occupies.
type Location struct {
	PacketIndex int
	Offset      int
}

// Measurement is a named typed field, present at zero or more locations.
type Measurement struct {
	Name       string
	Size       int
	Type       Type
	Sign       Sign
	Endianness Endianness
	Locations  []Location

	// Offset is this measurement's stable index into Vehicle.Measurements,
	// an allocation-free way to go from name to slot (the same role
	// Level.metrics[offset] plays in a by-name metric lookup).
	Offset int
}

// Packet is a fixed-size byte layout: non-virtual packets are addressed by
// UDP port and carry ingested measurements; virtual packets (port == 0) hold
// derived measurements written by the trigger engine.
type Packet struct {
	Index       int
	Size        int
	Port        int
	IsVirtual   bool
	Measurement []string // measurement names present, in declaration order
}

// NetDevice is an auxiliary network device declaration (`net <name> <mode>
// <args>`). Only its existence and coarse contract are carried here — the
// network-address shared-memory block it would back is out of scope (§1).
type NetDevice struct {
	Name string
	Mode string
	Args []string
}

// Vehicle is the parsed set of packets and measurements for one device.
type Vehicle struct {
	Device        string
	MulticastAddr string
	Port          int
	Protocol      Protocol
	TriggerFile   string
	ConstantsFile string
	ConfigFile    string

	Measurements []*Measurement
	Packets      []*Packet
	NetDevices   []*NetDevice

	SysEndianness  Endianness
	RecvEndianness Endianness

	byName         map[string]*Measurement
	constantsOnce  sync.Once
	constants      *constants.File
}

// GetInfo returns the named measurement, or nil if no measurement with that
// name was declared.
func (v *Vehicle) GetInfo(name string) *Measurement {
	return v.byName[name]
}

// NumPackets returns the number of packets, dense 0..NumPackets()-1 (§3
// invariant 2).
func (v *Vehicle) NumPackets() int {
	return len(v.Packets)
}
