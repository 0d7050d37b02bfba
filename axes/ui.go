package axes

import "github.com/emc-lab/emcbench/agent"

// Element identifies a control in the positioner application
type Element struct {
	AutoID      string
	ControlType string

	// Name disambiguates controls that share an AutoID
	Name string
}

func (e Element) String() string {
	if e.Name != "" {
		return e.AutoID + "/" + e.ControlType + "/" + e.Name
	}
	return e.AutoID + "/" + e.ControlType
}

// UI is the automation surface of a running desktop application
type UI interface {
	// Text returns the caption of a control
	Text(Element) (string, error)

	// Value returns the value of an edit control
	Value(Element) (string, error)

	// SetText replaces the contents of an edit control
	SetText(Element, string) error

	// Click invokes a button or control
	Click(Element) error

	// Select selects a radio button
	Select(Element) error

	// Focus gives a control the keyboard focus
	Focus(Element) error
}

// AgentUI implements UI over the bench agent
type AgentUI struct {
	*agent.Client
}

// NewAgentUI returns a UI backed by the agent at addr
func NewAgentUI(addr string) *AgentUI {
	return &AgentUI{Client: agent.New(addr)}
}

func (a *AgentUI) do(verb string, e Element, extra ...string) (string, error) {
	args := append([]string{e.AutoID, e.ControlType, e.Name}, extra...)
	return a.Do(verb, args...)
}

// Text returns the caption of e
func (a *AgentUI) Text(e Element) (string, error) { return a.do("UI.TEXT", e) }

// Value returns the value of e
func (a *AgentUI) Value(e Element) (string, error) { return a.do("UI.VALUE", e) }

// SetText writes s into e
func (a *AgentUI) SetText(e Element, s string) error {
	_, err := a.do("UI.SET", e, s)
	return err
}

// Click invokes e
func (a *AgentUI) Click(e Element) error {
	_, err := a.do("UI.CLICK", e)
	return err
}

// Select selects e
func (a *AgentUI) Select(e Element) error {
	_, err := a.do("UI.SELECT", e)
	return err
}

// Focus focuses e
func (a *AgentUI) Focus(e Element) error {
	_, err := a.do("UI.FOCUS", e)
	return err
}
