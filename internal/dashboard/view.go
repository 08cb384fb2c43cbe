// Package dashboard holds the per-user presentation state of the dashboard.
package dashboard

import (
	"errors"
	"fmt"
	"sync"
)

// Tab is one of the dashboard sections
type Tab string

const (
	TabOverview Tab = "overview"
	TabLaunch   Tab = "launch"
	TabSettings Tab = "settings"
)

// Tabs lists the valid tabs in display order
var Tabs = []Tab{TabOverview, TabLaunch, TabSettings}

var ErrUnknownTab = errors.New("unknown tab")

// ParseTab validates s as a Tab
func ParseTab(s string) (Tab, error) {
	for _, t := range Tabs {
		if string(t) == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownTab, s)
}

// State is a point-in-time copy of a View
type State struct {
	Tab          Tab  `json:"tab"`
	ShowEmbedded bool `json:"show_embedded"`
}

// View is the tab selector and the embedded-frame toggle. It holds values only;
// nothing here affects the bridge.
type View struct {
	mu    sync.Mutex
	state State
}

// NewView starts on the overview tab with the embedded frame hidden
func NewView() *View {
	return &View{state: State{Tab: TabOverview}}
}

func (v *View) State() State {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state
}

// SelectTab switches tabs. An unknown tab leaves the view unchanged.
func (v *View) SelectTab(name string) error {
	tab, err := ParseTab(name)
	if err != nil {
		return err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.state.Tab = tab
	return nil
}

func (v *View) SetShowEmbedded(show bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.state.ShowEmbedded = show
}

// ToggleEmbedded flips the embedded-frame toggle and returns the new value
func (v *View) ToggleEmbedded() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.state.ShowEmbedded = !v.state.ShowEmbedded
	return v.state.ShowEmbedded
}
