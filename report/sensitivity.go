package report

import "math"

// Sensitivity converts a generator level into field strength at the device.
//
//	dBµV/m = gen - wireLoss - 20log10(distance) + 20log10(freq) - antFactor + 75.01
//
// freq is in MHz and distance in metres.  ok is false when either is not
// positive.
func Sensitivity(genDBm, freqMHz, distanceM, wireLoss, antFactor float64) (dbuvm, uvm float64, ok bool) {
	if freqMHz <= 0 || distanceM <= 0 {
		return 0, 0, false
	}
	dbuvm = genDBm - wireLoss - 20*math.Log10(distanceM) + 20*math.Log10(freqMHz) - antFactor + 75.01
	uvm = math.Pow(10, dbuvm/20)
	return dbuvm, uvm, true
}

// Field is a level expressed as field strength
type Field struct {
	DBuVm float64 `json:"dbuvm"`
	UVm   float64 `json:"uvm"`
}

// SensitivityRow is a Row converted to field strength.  Zero levels, which
// mean no activation, stay nil
type SensitivityRow struct {
	Angle int    `json:"angle"`
	HAct  *Field `json:"genPolarH_act"`
	HStop *Field `json:"genPolarH_stop"`
	VAct  *Field `json:"genPolarV_act"`
	VStop *Field `json:"genPolarV_stop"`
}

// Link describes the measurement geometry used by Convert
type Link struct {
	FreqMHz   float64 `json:"freq_mhz"`
	DistanceM float64 `json:"distance_m"`
	WireLoss  float64 `json:"wire_loss"`
	AntFactor float64 `json:"ant_factor"`
}

// Convert maps every row of a report to field strength
func (l Link) Convert(rows []Row) ([]SensitivityRow, bool) {
	out := make([]SensitivityRow, len(rows))
	conv := func(v float64) *Field {
		if v == 0 {
			return nil
		}
		db, uv, _ := Sensitivity(v, l.FreqMHz, l.DistanceM, l.WireLoss, l.AntFactor)
		return &Field{DBuVm: db, UVm: uv}
	}
	if _, _, ok := Sensitivity(0, l.FreqMHz, l.DistanceM, 0, 0); !ok {
		return nil, false
	}
	for i, r := range rows {
		out[i] = SensitivityRow{Angle: r.Angle,
			HAct: conv(r.HAct), HStop: conv(r.HStop),
			VAct: conv(r.VAct), VStop: conv(r.VStop)}
	}
	return out, true
}
