package sim

import (
	"fmt"
	"strconv"
	"time"

	"github.com/emc-lab/emcbench/axes"
)

// UI implements axes.UI like the CtrlAxes window
type UI struct {
	b *Bench
}

func (u *UI) live() *axis {
	if u.b.mode == axes.Malt {
		return &u.b.malt
	}
	return &u.b.turntable
}

// Text returns captions
func (u *UI) Text(e axes.Element) (string, error) {
	u.b.mu.Lock()
	defer u.b.mu.Unlock()
	if e == axes.GroupSettings {
		return "Settings: " + u.b.mode, nil
	}
	return "", fmt.Errorf("element %s has no caption", e)
}

// Value returns the axis read-outs
func (u *UI) Value(e axes.Element) (string, error) {
	u.b.mu.Lock()
	defer u.b.mu.Unlock()
	now := time.Now()
	switch e {
	case axes.EditTurntable:
		return strconv.FormatFloat(u.b.turntable.pos(u.b.Speed, now), 'f', 2, 64), nil
	case axes.EditMalt:
		return strconv.FormatFloat(u.b.malt.pos(u.b.Speed, now), 'f', 2, 64), nil
	case axes.InputTargetPosition:
		return u.b.target, nil
	case axes.InputStepPosition:
		return u.b.step, nil
	}
	return "", fmt.Errorf("element %s not found", e)
}

// SetText fills the target and step inputs
func (u *UI) SetText(e axes.Element, s string) error {
	u.b.mu.Lock()
	defer u.b.mu.Unlock()
	switch e {
	case axes.InputTargetPosition:
		u.b.target = s
	case axes.InputStepPosition:
		u.b.step = s
	default:
		return fmt.Errorf("element %s is not editable", e)
	}
	return nil
}

// Click presses buttons and switches the settings mode
func (u *UI) Click(e axes.Element) error {
	u.b.mu.Lock()
	defer u.b.mu.Unlock()
	now := time.Now()
	switch e {
	case axes.EditTurntable:
		u.b.mode = axes.Turntable
	case axes.EditMalt:
		u.b.mode = axes.Malt
	case axes.ButtonStop:
		u.b.turntable.halt(u.b.Speed, now)
		u.b.malt.halt(u.b.Speed, now)
		u.b.stops++
	case axes.ButtonMoveToTarget:
		v, err := strconv.ParseFloat(u.b.target, 64)
		if err != nil {
			return fmt.Errorf("target %q: %w", u.b.target, err)
		}
		a := u.live()
		if v < a.min || v > a.max {
			return fmt.Errorf("target %g outside [%g, %g]", v, a.min, a.max)
		}
		a.moveTo(u.b.Speed, v, now)
	case axes.ButtonMoveStep:
		v, err := strconv.ParseFloat(u.b.step, 64)
		if err != nil {
			return fmt.Errorf("step %q: %w", u.b.step, err)
		}
		a := u.live()
		a.moveTo(u.b.Speed, a.to+v, now)
	case axes.ButtonMoveToMin:
		a := u.live()
		a.moveTo(u.b.Speed, a.min, now)
	case axes.ButtonMoveToMax:
		a := u.live()
		a.moveTo(u.b.Speed, a.max, now)
	default:
		return fmt.Errorf("element %s is not clickable", e)
	}
	return nil
}

// Select sets the polarization, only possible in Malt mode
func (u *UI) Select(e axes.Element) error {
	u.b.mu.Lock()
	defer u.b.mu.Unlock()
	if u.b.mode != axes.Malt {
		return fmt.Errorf("element %s is disabled in %s mode", e, u.b.mode)
	}
	switch e {
	case axes.RadioHorizontal:
		u.b.horizontal = true
	case axes.RadioVertical:
		u.b.horizontal = false
	default:
		return fmt.Errorf("element %s is not selectable", e)
	}
	return nil
}

// Focus always succeeds
func (u *UI) Focus(axes.Element) error { return nil }
