// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package trigger

import (
	"github.com/WillMerges/GSW-2021-sub000/internal/gswerr"
	"github.com/WillMerges/GSW-2021-sub000/internal/vcm"
	"github.com/WillMerges/GSW-2021-sub000/internal/viewer"
	"github.com/WillMerges/GSW-2021-sub000/internal/writer"
)

// NIST ITS-90 type K inverse-polynomial coefficients, one set per voltage
// range, https://srdata.nist.gov/its90/type_k/kcoefficients_inverse.html.
var (
	kInverseR0 = [...]float64{
		0.0, 2.5173462e1, -1.1662878e0, -1.0833638e0,
		-8.9773540e-1, -3.7342377e-1, -8.6632643e-2, -1.0450598e-2, -5.1920577e-4,
	}
	kInverseR1 = [...]float64{
		0.0, 2.508355e1, 7.860106e-2, -2.503131e-1, 8.315270e-2,
		-1.228034e-2, 9.804036e-4, -4.413030e-5, 1.057734e-6, -1.052755e-8,
	}
	kInverseR2 = [...]float64{
		-1.318058e2, 4.830222e1, -1.646031e0, 5.464731e-2,
		-9.650715e-4, 8.802193e-6, -3.110810e-8,
	}
)

// max31855kThermocouple decodes a MAX31855K cold-junction-compensated
// thermocouple reading (args[0], the chip's raw 32-bit frame) into:
//   args[1] connected status (0/1, as a byte)
//   args[2] remote junction temperature, Celsius
//   args[3] ambient (cold) junction temperature, Celsius
//   args[4] corrected absolute temperature, Celsius
//
// Bit layout and the remote/ambient scale factors come from the MAX31855K
// datasheet; the correction from raw thermocouple voltage to temperature
// uses NIST's type-K inverse polynomial, picked by voltage range.
func max31855kThermocouple(tv *viewer.Viewer, tw *writer.Writer, args []*vcm.Measurement) gswerr.Result {
	raw, res := tv.GetUint(args[0].Name)
	if res != gswerr.Success {
		return gswerr.Failure
	}
	data := uint32(raw)

	connected := uint32(1)
	if data&(1<<16) != 0 {
		connected = 0
	}
	if res := tw.WriteValue(args[1].Name, connected); res != gswerr.Success {
		return gswerr.Failure
	}
	if connected == 0 {
		return gswerr.Success
	}

	// remote junction temperature: top 14 bits, 0.25 degC/LSB
	tr := int16(data >> 18)
	remote := float64(tr) * 0.25
	if res := tw.WriteValue(args[2].Name, remote); res != gswerr.Success {
		return gswerr.Failure
	}

	// cold junction (ambient) temperature: 12 bits starting at bit 4, 0.0625 degC/LSB
	tamb := int16((data >> 4) & 0x0FFF)
	ambient := float64(tamb) * 0.0625
	if res := tw.WriteValue(args[3].Name, ambient); res != gswerr.Success {
		return gswerr.Failure
	}

	// thermocouple EMF implied by the two junction temperatures, millivolts
	// (MAX31855 datasheet: 41.276 uV/degC average Seebeck coefficient)
	vout := (41.276 / 1000) * (remote - ambient)

	var t, e float64
	var coeffs []float64
	switch {
	case vout < -5.891:
		return gswerr.Failure // below range the polynomials cover
	case vout < 0:
		coeffs = kInverseR0[:]
	case vout < 20.644:
		coeffs = kInverseR1[:]
	case vout < 54.886:
		coeffs = kInverseR2[:]
	default:
		return gswerr.Failure // above 1372 degC, out of range
	}

	e = 1.0
	for _, d := range coeffs {
		t += d * e
		e *= vout
	}
	t += ambient

	return tw.WriteValue(args[4].Name, t)
}
