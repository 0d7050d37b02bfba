// Package report accumulates sweep measurements into the result grid and
// writes it as the JSON document the dashboard reads.
package report

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/emc-lab/emcbench/fault"
)

// Polarization of the antenna
type Polarization string

const (
	// Horizontal polarization
	Horizontal Polarization = "H"

	// Vertical polarization
	Vertical Polarization = "V"
)

// Valid returns true for H and V
func (p Polarization) Valid() bool {
	return p == Horizontal || p == Vertical
}

// Coordinate identifies one cell of the grid
type Coordinate struct {
	Angle        int
	Polarization Polarization
}

// Row holds both polarizations' levels for one angle, in dBm.
// Levels that were not measured or found no activation are 0.
type Row struct {
	Angle int
	HAct  float64
	HStop float64
	VAct  float64
	VStop float64
}

type wireRow struct {
	Angle string  `json:"angle"`
	HAct  float64 `json:"genPolarH_act"`
	HStop float64 `json:"genPolarH_stop"`
	VAct  float64 `json:"genPolarV_act"`
	VStop float64 `json:"genPolarV_stop"`
}

// MarshalJSON renders the row the way the dashboard expects, angle as "30°"
func (r Row) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireRow{
		Angle: strconv.Itoa(r.Angle) + "°",
		HAct:  r.HAct, HStop: r.HStop,
		VAct: r.VAct, VStop: r.VStop})
}

// UnmarshalJSON parses a dashboard row
func (r *Row) UnmarshalJSON(b []byte) error {
	var w wireRow
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	angle, err := strconv.Atoi(strings.TrimSuffix(strings.TrimSpace(w.Angle), "°"))
	if err != nil {
		return fmt.Errorf("bad angle %q: %w", w.Angle, err)
	}
	*r = Row{Angle: angle, HAct: w.HAct, HStop: w.HStop, VAct: w.VAct, VStop: w.VStop}
	return nil
}

// Grid maps an angle to its row.  It is safe for concurrent use
type Grid struct {
	mu   sync.Mutex
	rows map[int]*Row
}

// NewGrid returns an empty grid
func NewGrid() *Grid {
	return &Grid{rows: make(map[int]*Row)}
}

// Add records a measurement.  The row for angle is created on first use;
// only the fields of pol are written, the other polarization is left as is.
func (g *Grid) Add(angle int, pol Polarization, activation, stop float64) error {
	if !pol.Valid() {
		return fault.New(fault.Usage, "", "add measurement", "polarization must be H or V, got %q", pol)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	r, ok := g.rows[angle]
	if !ok {
		r = &Row{Angle: angle}
		g.rows[angle] = r
	}
	if pol == Horizontal {
		r.HAct, r.HStop = activation, stop
	} else {
		r.VAct, r.VStop = activation, stop
	}
	return nil
}

// Len is the number of angles measured
func (g *Grid) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.rows)
}

// Rows returns a copy of the grid sorted by ascending angle, independent of
// the order measurements were added in
func (g *Grid) Rows() []Row {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]Row, 0, len(g.rows))
	for _, r := range g.rows {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Angle < out[j].Angle })
	return out
}

// MarshalJSON renders the ordered rows
func (g *Grid) MarshalJSON() ([]byte, error) {
	return json.Marshal(g.Rows())
}
