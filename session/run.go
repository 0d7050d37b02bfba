package session

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/emc-lab/emcbench/report"
	"github.com/emc-lab/emcbench/resource"
	"github.com/emc-lab/emcbench/util"
)

// sweep is the procedure proper.  Every resource that connects is appended to
// acquired so the caller can tear it down whatever happens here.
func (s *Session) sweep(ctx context.Context, b Bench, acquired *[]resource.Resource, entry *log.Entry) error {
	p := s.proc
	entry.Info("step 1: connecting resources")
	for _, r := range b.Resources() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := r.Connect(ctx); err != nil {
			return err
		}
		*acquired = append(*acquired, r)
	}

	entry.Info("step 2: initializing bench")
	g := b.Generator
	if err := g.SetFrequency(p.FrequencyHz); err != nil {
		return fmt.Errorf("setup: %w", err)
	}
	if err := g.SetPower(p.Threshold.Start); err != nil {
		return fmt.Errorf("setup: %w", err)
	}
	if err := g.SetOutput(false); err != nil {
		return fmt.Errorf("setup: %w", err)
	}
	if b.Relays != nil {
		if err := b.Relays.OpenAll(); err != nil {
			return fmt.Errorf("setup: %w", err)
		}
	} else {
		entry.Info("no relay bank configured, skipping relay setup")
	}
	if err := g.SetOutput(true); err != nil {
		return fmt.Errorf("setup: %w", err)
	}

	entry.Infof("step 3: sweeping angles %s", util.IntSliceToCSV(p.Angles))
	grid := report.NewGrid()
	th := p.Threshold
	th.OnProbe = s.metrics.Probe
	read := func() (float64, error) { return b.Sensor.ReadVoltage(p.Channel) }
	for _, angle := range p.Angles {
		if err := ctx.Err(); err != nil {
			return err
		}
		aentry := entry.WithField("angle", angle)
		aentry.Info("moving turntable")
		if err := b.Positioner.MoveTurntable(float64(angle)); err != nil {
			return fmt.Errorf("angle %d: %w", angle, err)
		}
		t0 := time.Now()
		if err := b.Positioner.WaitTurntable(ctx, float64(angle), p.TurntableTimeout); err != nil {
			return fmt.Errorf("angle %d: %w", angle, err)
		}
		s.metrics.Waited(time.Since(t0))

		for _, pol := range p.Polarizations {
			if err := ctx.Err(); err != nil {
				return err
			}
			pentry := aentry.WithField("polarization", string(pol))
			pentry.Info("testing polarization")
			if err := setPolarization(b.Positioner, pol); err != nil {
				return fmt.Errorf("angle %d polarization %s: %w", angle, pol, err)
			}
			if err := pause(ctx, p.PolarSettle); err != nil {
				return err
			}
			out, err := th.Run(ctx, g.SetPower, read)
			if err != nil {
				return fmt.Errorf("angle %d polarization %s: %w", angle, pol, err)
			}
			var act, stop float64
			if out.Found() {
				act, stop = *out.Activation, *out.Stop
				s.metrics.Activated(angle, string(pol), act)
				pentry.Infof("activation at %.2f dBm, stop level %.2f dBm", act, stop)
			} else {
				pentry.Info("no activation over the power range")
			}
			if err := grid.Add(angle, pol, act, stop); err != nil {
				return err
			}
		}
	}

	entry.Info("step 4: sequence complete")
	if err := g.SetOutput(false); err != nil {
		return fmt.Errorf("finish: %w", err)
	}
	if p.ReturnHome {
		if err := b.Positioner.MoveTurntable(0); err != nil {
			entry.Warnf("could not return turntable to 0°: %v", err)
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.commit(); err != nil {
		return err
	}
	path, err := s.sink.Write(grid.Rows())
	if err != nil {
		return fmt.Errorf("saving report: %w", err)
	}
	s.artifact.Store(path)
	entry.WithField("path", path).Info("report saved")
	return nil
}

func setPolarization(p Positioner, pol report.Polarization) error {
	if pol == report.Horizontal {
		return p.Horizontal()
	}
	return p.Vertical()
}

func pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
