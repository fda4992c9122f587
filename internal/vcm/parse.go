// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package vcm

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"os"
	"strconv"
	"strings"
)

const defaultConfigDir = "config"

// hostIsLittleEndian is detected once at process startup the same way the
// original vcm.cpp branches on the __BYTE_ORDER build constant, except here
// it's a runtime check against the platform's actual native byte order
// rather than a compile-time one — Go has no portable equivalent of
// __BYTE_ORDER and no pack library wraps this, so stdlib encoding/binary's
// NativeEndian is the only available building block.
var hostIsLittleEndian = func() bool {
	var x uint16 = 1
	buf := make([]byte, 2)
	binary.NativeEndian.PutUint16(buf, x)
	return buf[0] == 1
}()

func systemEndianness() Endianness {
	if hostIsLittleEndian {
		return LittleEndian
	}
	return BigEndian
}

// Load reads and parses the vehicle configuration file at path. If path is
// empty, the default is $GSW_HOME/<defaultConfigDir>/config, matching the
// original VCM constructor's GSW_HOME-rooted default.
func Load(path string) (*Vehicle, error) {
	if path == "" {
		home := os.Getenv("GSW_HOME")
		if home == "" {
			return nil, fmt.Errorf("vcm: GSW_HOME is not set and no config path was given")
		}
		path = home + "/" + defaultConfigDir + "/config"
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("vcm: %w", err)
	}
	defer f.Close()

	v := &Vehicle{
		ConfigFile:     path,
		byName:         map[string]*Measurement{},
		SysEndianness:  systemEndianness(),
		RecvEndianness: LittleEndian,
	}

	ports := map[int]bool{}
	var cur *Packet // packet block currently being parsed, nil outside a block
	lineNo := 0

	s := bufio.NewScanner(f)
	for s.Scan() {
		lineNo++
		line := strings.TrimSpace(s.Text())
		if line == "" {
			continue
		}
		if cur == nil && strings.HasPrefix(line, "#") {
			continue
		}

		if line == "}" {
			if cur == nil {
				return nil, fmt.Errorf("vcm:%d: unmatched '}'", lineNo)
			}
			v.Packets = append(v.Packets, cur)
			cur = nil
			continue
		}

		if cur != nil {
			name := strings.Fields(line)[0]
			m, ok := v.byName[name]
			if !ok {
				return nil, fmt.Errorf("vcm:%d: measurement %q referenced in packet block before declaration", lineNo, name)
			}
			offset := cur.Size
			m.Locations = append(m.Locations, Location{PacketIndex: cur.Index, Offset: offset})
			cur.Size += m.Size
			cur.Measurement = append(cur.Measurement, name)
			continue
		}

		if strings.HasSuffix(line, "{") {
			header := strings.TrimSpace(strings.TrimSuffix(line, "{"))
			pkt, err := startPacketBlock(header, len(v.Packets), ports)
			if err != nil {
				return nil, fmt.Errorf("vcm:%d: %w", lineNo, err)
			}
			cur = pkt
			continue
		}

		fields := strings.Fields(line)
		if len(fields) >= 3 && fields[1] == "=" {
			if err := v.applySetting(fields[0], strings.Join(fields[2:], " ")); err != nil {
				return nil, fmt.Errorf("vcm:%d: %w", lineNo, err)
			}
			continue
		}

		if fields[0] == "net" {
			nd, err := parseNetDevice(fields)
			if err != nil {
				return nil, fmt.Errorf("vcm:%d: %w", lineNo, err)
			}
			v.NetDevices = append(v.NetDevices, nd)
			continue
		}

		m, err := parseMeasurement(fields)
		if err != nil {
			return nil, fmt.Errorf("vcm:%d: %w", lineNo, err)
		}
		m.Offset = len(v.Measurements)
		v.Measurements = append(v.Measurements, m)
		v.byName[m.Name] = m
	}
	if err := s.Err(); err != nil {
		return nil, fmt.Errorf("vcm: %w", err)
	}
	if cur != nil {
		return nil, fmt.Errorf("vcm: unterminated packet block at EOF")
	}
	if v.Protocol == ProtocolNotSet {
		return nil, fmt.Errorf("vcm: mandatory 'protocol' setting was never set")
	}

	return v, nil
}

func (v *Vehicle) applySetting(key, value string) error {
	switch key {
	case "protocol":
		switch value {
		case "udp":
			v.Protocol = UDP
		default:
			return fmt.Errorf("unrecognized protocol %q", value)
		}
	case "port":
		p, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid port %q: %w", value, err)
		}
		v.Port = p
	case "multicast":
		v.MulticastAddr = value
	case "name":
		v.Device = value
	case "triggers":
		v.TriggerFile = value
	case "constants":
		v.ConstantsFile = value
	default:
		return fmt.Errorf("unrecognized setting %q", key)
	}
	return nil
}

func parseNetDevice(fields []string) (*NetDevice, error) {
	if len(fields) < 3 {
		return nil, fmt.Errorf("malformed 'net' declaration: %v", fields)
	}
	return &NetDevice{Name: fields[1], Mode: fields[2], Args: fields[3:]}, nil
}

// startPacketBlock handles a block header already stripped of its trailing
// '{', e.g. "8081" or "virtual".
func startPacketBlock(header string, index int, ports map[int]bool) (*Packet, error) {
	if header == "virtual" {
		return &Packet{Index: index, Port: 0, IsVirtual: true}, nil
	}

	port, err := strconv.Atoi(header)
	if err != nil {
		return nil, fmt.Errorf("invalid packet port %q", header)
	}
	if port <= 0 {
		return nil, fmt.Errorf("packet port must be > 0 (0 is reserved for virtual packets)")
	}
	if ports[port] {
		return nil, fmt.Errorf("duplicate packet port %d", port)
	}
	ports[port] = true
	return &Packet{Index: index, Port: port, IsVirtual: false}, nil
}

// parseMeasurement parses "<name> <size> [type] [endianness] [sign]".
func parseMeasurement(fields []string) (*Measurement, error) {
	if len(fields) < 2 {
		return nil, fmt.Errorf("malformed measurement definition: %v", fields)
	}

	size, err := strconv.Atoi(fields[1])
	if err != nil {
		return nil, fmt.Errorf("invalid measurement size %q: %w", fields[1], err)
	}
	if size < 1 || size > 256 {
		return nil, fmt.Errorf("measurement size %d out of range [1,256]", size)
	}

	m := &Measurement{
		Name:       fields[0],
		Size:       size,
		Type:       Undefined,
		Sign:       Signed,
		Endianness: LittleEndian,
	}

	for _, tok := range fields[2:] {
		switch tok {
		case "int":
			m.Type = Int
		case "float":
			m.Type = Float
		case "string":
			m.Type = String
		case "big":
			m.Endianness = BigEndian
		case "little":
			m.Endianness = LittleEndian
		case "signed":
			m.Sign = Signed
		case "unsigned":
			m.Sign = Unsigned
		default:
			return nil, fmt.Errorf("unrecognized measurement token %q", tok)
		}
	}

	return m, nil
}
