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

// Func is a trigger handler: it reads zero or more measurements through tv
// and writes its result (if any) through tw. It must not call tw.Flush or
// tw.Lock/Unlock — the engine owns those around a whole cycle. The return
// value is one of gswerr.Success (a new value was written), gswerr.NoChange
// (nothing worth writing this cycle), or gswerr.Failure.
type Func func(tv *viewer.Viewer, tw *writer.Writer, args []*vcm.Measurement) gswerr.Result

// entry pairs a registered function with the argument-count bounds its
// trigger-file invocations must satisfy (min == max for fixed-arity
// functions, SUM_UINT being the one variadic exception).
type entry struct {
	fn      Func
	minArgs int
	maxArgs int
}

// sumUintMaxArgs stands in for the original's UINT_MAX upper bound on
// SUM_UINT's argument count — any trigger file is going to list far fewer
// than this many measurements on one line.
const sumUintMaxArgs = 1 << 20

// registry is the fixed mapping from FUNCTION_NAME to handler, matching the
// name, function, and arity bounds of trigger_func_list in the original.
var registry = map[string]entry{
	"COPY":                      {copyFunc, 2, 2},
	"SUM_UINT":                  {sumUint, 3, sumUintMaxArgs},
	"ROLLING_AVG_DOUBLE_20":     {rollingAvgDouble20, 2, 2},
	"MAX_DOUBLE":                {maxDouble, 2, 2},
	"MIN_DOUBLE":                {minDouble, 2, 2},
	"DAQ_ADC_SCALE":             {daqADCScale, 2, 2},
	"MAX31855K_THERMOCOUPLE":    {max31855kThermocouple, 5, 5},
	"PCB1403_CURRENT_EXCITE":    {pcb1403CurrentExcite, 2, 2},
	"PRESSURE_TRANSDUCER_8252":  {pressureTransducer8252, 2, 2},
	"SOLENOID_STATE_TO_STR":     {solenoidStateToStr, 2, 2},
	"IGNITER_STATE_TO_STR":      {igniterStateToStr, 2, 2},
	"MODE_STATE_TO_STR":         {modeStateToStr, 2, 2},
	"SAFE_STATE_TO_STR":         {safeStateToStr, 2, 2},
}

// copyFunc copies args[0]'s raw bytes into args[1]. Both must be the same
// size.
func copyFunc(tv *viewer.Viewer, tw *writer.Writer, args []*vcm.Measurement) gswerr.Result {
	if len(args) != 2 {
		return gswerr.Failure
	}
	if args[0].Size != args[1].Size {
		return gswerr.Failure
	}

	src, res := tv.GetRaw(args[0].Name)
	if res != gswerr.Success {
		return gswerr.Failure
	}

	return tw.WriteRaw(args[1].Name, src)
}

// sumUint writes the uint32 sum of args[1:] into args[0].
func sumUint(tv *viewer.Viewer, tw *writer.Writer, args []*vcm.Measurement) gswerr.Result {
	if len(args) < 2 {
		return gswerr.Failure
	}

	var sum uint32
	for _, a := range args[1:] {
		v, res := tv.GetUint(a.Name)
		if res != gswerr.Success {
			return gswerr.Failure
		}
		sum += uint32(v)
	}

	return tw.WriteValue(args[0].Name, sum)
}

// rollingAvgDouble20 maintains an exponentially weighted running mean in
// which each new sample has weight 1/20: args[0] is the newest sample,
// args[1] is the running mean (read-modify-write). No window of past
// samples is kept.
func rollingAvgDouble20(tv *viewer.Viewer, tw *writer.Writer, args []*vcm.Measurement) gswerr.Result {
	const window = 20

	m, res := tv.GetFloat(args[1].Name)
	if res != gswerr.Success {
		return gswerr.Failure
	}

	x, res := tv.GetFloat(args[0].Name)
	if res != gswerr.Success {
		return gswerr.Failure
	}

	m = m + (x-m)/window

	return tw.WriteValue(args[1].Name, m)
}

// maxDouble tracks a running maximum: args[0] is the newest sample, args[1]
// the current maximum. Returns NoChange when the sample doesn't beat it.
func maxDouble(tv *viewer.Viewer, tw *writer.Writer, args []*vcm.Measurement) gswerr.Result {
	x, res := tv.GetFloat(args[0].Name)
	if res != gswerr.Success {
		return gswerr.Failure
	}
	cur, res := tv.GetFloat(args[1].Name)
	if res != gswerr.Success {
		return gswerr.Failure
	}

	if x > cur {
		return tw.WriteValue(args[1].Name, x)
	}
	return gswerr.NoChange
}

// minDouble is maxDouble's mirror image.
func minDouble(tv *viewer.Viewer, tw *writer.Writer, args []*vcm.Measurement) gswerr.Result {
	x, res := tv.GetFloat(args[0].Name)
	if res != gswerr.Success {
		return gswerr.Failure
	}
	cur, res := tv.GetFloat(args[1].Name)
	if res != gswerr.Success {
		return gswerr.Failure
	}

	if x < cur {
		return tw.WriteValue(args[1].Name, x)
	}
	return gswerr.NoChange
}

// daqADCScaleVref is the DAQ's ADC reference voltage in volts.
const daqADCScaleVref = 2.442

// daqADCScale scales a 24-bit signed ADC reading (args[0]) into a voltage
// (args[1]).
func daqADCScale(tv *viewer.Viewer, tw *writer.Writer, args []*vcm.Measurement) gswerr.Result {
	data, res := tv.GetInt(args[0].Name)
	if res != gswerr.Success {
		return gswerr.Failure
	}

	result := float64(data) * daqADCScaleVref / float64(int64(1)<<23)

	return tw.WriteValue(args[1].Name, result)
}

// solenoidStateToStr, igniterStateToStr, modeStateToStr, and
// safeStateToStr all follow the same shape: read a uint state code out of
// args[0] and write the matching fixed string into args[1] as raw bytes (no
// endianness conversion applies to text).
func stateToStr(tv *viewer.Viewer, tw *writer.Writer, args []*vcm.Measurement, table map[uint64]string, fallback string) gswerr.Result {
	state, res := tv.GetUint(args[0].Name)
	if res != gswerr.Success {
		return gswerr.Failure
	}

	str, ok := table[state]
	if !ok {
		str = fallback
	}

	return tw.WriteRaw(args[1].Name, []byte(str))
}

func solenoidStateToStr(tv *viewer.Viewer, tw *writer.Writer, args []*vcm.Measurement) gswerr.Result {
	return stateToStr(tv, tw, args, map[uint64]string{0: "CLOSED", 1: "OPEN"}, "ERROR")
}

func igniterStateToStr(tv *viewer.Viewer, tw *writer.Writer, args []*vcm.Measurement) gswerr.Result {
	return stateToStr(tv, tw, args, map[uint64]string{0: "OFF", 1: "SPARK"}, "ERROR")
}

func modeStateToStr(tv *viewer.Viewer, tw *writer.Writer, args []*vcm.Measurement) gswerr.Result {
	return stateToStr(tv, tw, args, map[uint64]string{0: "DISABLED", 1: "COLD", 69: "TEST", 99: "HOT"}, "ERROR")
}

func safeStateToStr(tv *viewer.Viewer, tw *writer.Writer, args []*vcm.Measurement) gswerr.Result {
	return stateToStr(tv, tw, args, map[uint64]string{0: "IDLE", 1: "SAFING"}, "ERROR")
}

// pcb1403CurrentExcite converts a PCB 1403 load cell's excitation voltage
// (args[0], 10mA current source, 350 ohm nominal bridge, 2500 lbF full
// scale) into a signed force in lbF (args[1]); pushing reads positive.
func pcb1403CurrentExcite(tv *viewer.Viewer, tw *writer.Writer, args []*vcm.Measurement) gswerr.Result {
	const excitationCurrent = 0.01  // amps
	const nominalResistance = 350.0 // ohms
	const fullScaleForce = 2500.0   // lbF

	vmeas, res := tv.GetFloat(args[0].Name)
	if res != gswerr.Success {
		return gswerr.Failure
	}

	f := -((vmeas / excitationCurrent) / nominalResistance) * fullScaleForce

	return tw.WriteValue(args[1].Name, f)
}

// pressureTransducer8252 converts a 4-20mA current-loop pressure
// transducer's sensed voltage across a 121 ohm shunt (args[0]) into PSI
// (args[1]) over a 0-1500psi linear scale.
func pressureTransducer8252(tv *viewer.Viewer, tw *writer.Writer, args []*vcm.Measurement) gswerr.Result {
	const shuntResistance = 121.0
	const loopMin = 0.004
	const loopSpan = 0.016
	const fullScalePSI = 1500.0

	vmeas, res := tv.GetFloat(args[0].Name)
	if res != gswerr.Success {
		return gswerr.Failure
	}

	p := (((vmeas / shuntResistance) - loopMin) / loopSpan) * fullScalePSI

	return tw.WriteValue(args[1].Name, p)
}
