package gutter

import "fmt"

// State is a Controller's activation state.
type State int32

const (
	StateInactive State = iota
	StateActivating
	StateActive
	StateRefreshing
)

func (s State) String() string {
	switch s {
	case StateInactive:
		return "inactive"
	case StateActivating:
		return "activating"
	case StateActive:
		return "active"
	case StateRefreshing:
		return "refreshing"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Reason says why a classification was (re)published.
type Reason int

const (
	ReasonInternal Reason = iota
	ReasonBaselineChanged
	ReasonZoomChanged
	ReasonFileAction
	ReasonTextChanged
	ReasonLayoutOnly
	ReasonFormatMapChanged
	ReasonSettingsChanged
)

var reasonNames = [...]string{
	ReasonInternal:         "internal",
	ReasonBaselineChanged:  "baselineChanged",
	ReasonZoomChanged:      "zoomChanged",
	ReasonFileAction:       "fileAction",
	ReasonTextChanged:      "textChanged",
	ReasonLayoutOnly:       "layoutOnly",
	ReasonFormatMapChanged: "formatMapChanged",
	ReasonSettingsChanged:  "settingsChanged",
}

// String returns the reason's wire name.
func (r Reason) String() string {
	if r >= 0 && int(r) < len(reasonNames) {
		return reasonNames[r]
	}
	return fmt.Sprintf("Reason(%d)", int(r))
}

// Reasons returns every reason in declaration order.
func Reasons() []Reason {
	out := make([]Reason, len(reasonNames))
	for i := range out {
		out[i] = Reason(i)
	}
	return out
}
