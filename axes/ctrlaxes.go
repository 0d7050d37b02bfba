/*
Package axes drives the CtrlAxes positioner application, which controls the
turntable and the antenna mast ("Malt") of the chamber.

CtrlAxes multiplexes one set of controls between the two axes; the settings
group title tells which one is live.  Every mode-specific operation therefore
goes through motion.EnsureMode before touching the shared controls.
*/
package axes

import (
	"context"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/emc-lab/emcbench/fault"
	"github.com/emc-lab/emcbench/motion"
	"github.com/emc-lab/emcbench/resource"
)

// Modes of the settings group
const (
	Turntable = "Turntable"
	Malt      = "Malt"
)

// DefaultTimeout is how long a move may take to converge
const DefaultTimeout = 240 * time.Second

// Controls of the CtrlAxes window
var (
	InputTargetPosition = Element{AutoID: "1020", ControlType: "Edit"}
	InputStepPosition   = Element{AutoID: "1028", ControlType: "Edit"}
	ButtonMoveToTarget  = Element{AutoID: "1021", ControlType: "Button"}
	ButtonMoveStep      = Element{AutoID: "1023", ControlType: "Button"}
	ButtonMoveToMin     = Element{AutoID: "1017", ControlType: "Button"}
	ButtonMoveToMax     = Element{AutoID: "1018", ControlType: "Button"}
	ButtonStop          = Element{AutoID: "1019", ControlType: "Button"}
	RadioHorizontal     = Element{AutoID: "1024", ControlType: "Button"}
	RadioVertical       = Element{AutoID: "1025", ControlType: "Button"}
	EditTurntable       = Element{AutoID: "1014", ControlType: "Edit", Name: "Degres"}
	EditMalt            = Element{AutoID: "1014", ControlType: "Edit", Name: "Height"}
	GroupSettings       = Element{AutoID: "1022", ControlType: "Group"}
)

// CtrlAxes is the positioner
type CtrlAxes struct {
	*resource.Lifecycle
	ui UI

	// Tolerance and Poll tune position waits, motion defaults if zero
	Tolerance float64
	Poll      time.Duration
}

// New returns a positioner driving the application through ui
func New(id string, ui UI) *CtrlAxes {
	return &CtrlAxes{Lifecycle: resource.NewLifecycle(id), ui: ui}
}

// Connect checks that the application window answers
func (c *CtrlAxes) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	mode, err := c.Mode()
	if err != nil {
		return fault.Wrap(fault.Connection, c.ID(), "attach", err)
	}
	c.Logger("ctrlaxes").Infof("attached, settings mode is %s", mode)
	c.SetState(resource.Connected)
	return nil
}

// SafeState halts all motion
func (c *CtrlAxes) SafeState() {
	log := c.Logger("ctrlaxes")
	log.Info("stopping all movement")
	if err := c.Stop(); err != nil {
		log.Errorf("could not stop movement during safe state: %v", err)
		return
	}
	c.SetState(resource.Safe)
}

// Close releases the backend if it holds a connection
func (c *CtrlAxes) Close() error {
	c.SetState(resource.Closed)
	if cl, ok := c.ui.(io.Closer); ok {
		return cl.Close()
	}
	return nil
}

// Stop clicks the stop button
func (c *CtrlAxes) Stop() error {
	return c.wrap("stop", c.ui.Click(ButtonStop))
}

// Mode reads the settings group title, "Settings: Turntable" => "Turntable"
func (c *CtrlAxes) Mode() (string, error) {
	s, err := c.ui.Text(GroupSettings)
	if err != nil {
		return "", c.wrap("read mode", err)
	}
	if i := strings.LastIndexByte(s, ':'); i >= 0 {
		s = s[i+1:]
	}
	return strings.TrimSpace(s), nil
}

// EnsureMode makes mode the live settings context
func (c *CtrlAxes) EnsureMode(mode string) error {
	var edit Element
	switch mode {
	case Turntable:
		edit = EditTurntable
	case Malt:
		edit = EditMalt
	default:
		return fault.New(fault.Usage, c.ID(), "ensure mode", "invalid mode %q, supported modes are %s and %s", mode, Turntable, Malt)
	}
	set := func() error {
		if err := c.ui.Focus(edit); err != nil {
			return err
		}
		return c.ui.Click(edit)
	}
	return fault.Wrap(fault.Setup, c.ID(), "ensure mode", motion.EnsureMode(c.Mode, set, mode))
}

// Degrees returns the turntable position
func (c *CtrlAxes) Degrees() (float64, error) {
	return c.readFloat(EditTurntable)
}

// Height returns the mast height
func (c *CtrlAxes) Height() (float64, error) {
	return c.readFloat(EditMalt)
}

// MoveTurntable starts a turntable move to deg
func (c *CtrlAxes) MoveTurntable(deg float64) error {
	c.Logger("ctrlaxes").Infof("moving turntable to %g degrees", deg)
	return c.moveTo(Turntable, deg)
}

// MoveMalt starts a mast move to height
func (c *CtrlAxes) MoveMalt(height float64) error {
	c.Logger("ctrlaxes").Infof("moving malt to %g", height)
	return c.moveTo(Malt, height)
}

// MoveMaltStep moves the mast by a step increment
func (c *CtrlAxes) MoveMaltStep(step float64) error {
	if err := c.EnsureMode(Malt); err != nil {
		return err
	}
	if err := c.ui.SetText(InputStepPosition, format(step)); err != nil {
		return c.wrap("set step", err)
	}
	return c.wrap("move step", c.ui.Click(ButtonMoveStep))
}

// TurntableMin moves the turntable to its minimum position
func (c *CtrlAxes) TurntableMin() error { return c.clickIn(Turntable, ButtonMoveToMin) }

// TurntableMax moves the turntable to its maximum position
func (c *CtrlAxes) TurntableMax() error { return c.clickIn(Turntable, ButtonMoveToMax) }

// MaltMin moves the mast to its minimum position
func (c *CtrlAxes) MaltMin() error { return c.clickIn(Malt, ButtonMoveToMin) }

// MaltMax moves the mast to its maximum position
func (c *CtrlAxes) MaltMax() error { return c.clickIn(Malt, ButtonMoveToMax) }

// Horizontal sets the antenna polarization to horizontal
func (c *CtrlAxes) Horizontal() error {
	c.Logger("ctrlaxes").Info("setting malt polarization to horizontal")
	return c.selectIn(Malt, RadioHorizontal)
}

// Vertical sets the antenna polarization to vertical
func (c *CtrlAxes) Vertical() error {
	c.Logger("ctrlaxes").Info("setting malt polarization to vertical")
	return c.selectIn(Malt, RadioVertical)
}

// WaitTurntable blocks until the turntable reaches deg
func (c *CtrlAxes) WaitTurntable(ctx context.Context, deg float64, timeout time.Duration) error {
	if err := c.EnsureMode(Turntable); err != nil {
		return err
	}
	return motion.WaitFor(ctx, "turntable", c.Degrees, c.target(deg, timeout))
}

// WaitMalt blocks until the mast reaches height
func (c *CtrlAxes) WaitMalt(ctx context.Context, height float64, timeout time.Duration) error {
	if err := c.EnsureMode(Malt); err != nil {
		return err
	}
	return motion.WaitFor(ctx, "malt", c.Height, c.target(height, timeout))
}

func (c *CtrlAxes) target(v float64, timeout time.Duration) motion.Target {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	t := motion.NewTarget(v, timeout)
	if c.Tolerance > 0 {
		t.Tolerance = c.Tolerance
	}
	if c.Poll > 0 {
		t.Poll = c.Poll
	}
	return t
}

func (c *CtrlAxes) moveTo(mode string, v float64) error {
	if err := c.EnsureMode(mode); err != nil {
		return err
	}
	if err := c.ui.SetText(InputTargetPosition, format(v)); err != nil {
		return c.wrap("set target", err)
	}
	return c.wrap("move", c.ui.Click(ButtonMoveToTarget))
}

func (c *CtrlAxes) clickIn(mode string, e Element) error {
	if err := c.EnsureMode(mode); err != nil {
		return err
	}
	return c.wrap("click "+e.String(), c.ui.Click(e))
}

func (c *CtrlAxes) selectIn(mode string, e Element) error {
	if err := c.EnsureMode(mode); err != nil {
		return err
	}
	return c.wrap("select "+e.String(), c.ui.Select(e))
}

func (c *CtrlAxes) readFloat(e Element) (float64, error) {
	s, err := c.ui.Value(e)
	if err != nil {
		return 0, c.wrap("read "+e.String(), err)
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, c.wrap("read "+e.String(), err)
	}
	return f, nil
}

func (c *CtrlAxes) wrap(op string, err error) error {
	return fault.Wrap(fault.Operation, c.ID(), op, err)
}

func format(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
