// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package vcm

import (
	"fmt"

	"github.com/WillMerges/GSW-2021-sub000/internal/constants"
)

// Constants returns the lazily-parsed constants file for this vehicle, or
// nil if no constants file was configured. Parsing happens on first Get
// call against the returned File, not here.
func (v *Vehicle) Constants() *constants.File {
	if v.ConstantsFile == "" {
		return nil
	}
	v.constantsOnce.Do(func() {
		v.constants = constants.New(v.ConstantsFile)
	})
	return v.constants
}

// Validate checks the cross-referencing invariants of §3 that can't be
// enforced incrementally during parsing: every location lies within its
// packet's bounds, and packet indices are dense.
func (v *Vehicle) Validate() error {
	for i, p := range v.Packets {
		if p.Index != i {
			return fmt.Errorf("vcm: packet index gap at %d (found %d)", i, p.Index)
		}
	}
	for _, m := range v.Measurements {
		for _, loc := range m.Locations {
			p := v.Packets[loc.PacketIndex]
			if loc.Offset+m.Size > p.Size {
				return fmt.Errorf("vcm: measurement %q location (packet %d, offset %d, size %d) exceeds packet size %d",
					m.Name, loc.PacketIndex, loc.Offset, m.Size, p.Size)
			}
		}
	}
	return nil
}
