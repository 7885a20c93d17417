package analysis

import (
	"strings"
	"time"
)

// ThreatLevel enum
type ThreatLevel string

const (
	ThreatLow     ThreatLevel = "low"
	ThreatMedium  ThreatLevel = "medium"
	ThreatHigh    ThreatLevel = "high"
	ThreatUnknown ThreatLevel = "unknown"
)

// ParseThreatLevel maps analyzer-provided level strings onto the closed enum.
// Accepts the enum values and the display forms ("High Risk", "Moderate").
func ParseThreatLevel(s string) (ThreatLevel, bool) {
	v := strings.ToLower(strings.TrimSpace(s))
	v = strings.TrimSuffix(v, " risk")
	switch v {
	case "low":
		return ThreatLow, true
	case "medium", "moderate":
		return ThreatMedium, true
	case "high", "critical":
		return ThreatHigh, true
	default:
		return ThreatUnknown, false
	}
}

// Label is the human readable form used in UIs and notifications.
func (l ThreatLevel) Label() string {
	switch l {
	case ThreatHigh:
		return "High Risk"
	case ThreatMedium:
		return "Medium Risk"
	case ThreatLow:
		return "Low Risk"
	default:
		return "Unknown"
	}
}

// Request is one user submission.
type Request struct {
	RawText          string `json:"logText"`
	SendNotification bool   `json:"sendNotification"`
}

// Result value object produced by the interpreter or the fallback synthesizer.
type Result struct {
	Narrative   string      `json:"analysis"`
	ThreatLevel ThreatLevel `json:"threatLevel"`
	CVEExcerpt  *string     `json:"cveExcerpt"`
	Timestamp   time.Time   `json:"timestamp"`
	Synthetic   bool        `json:"synthetic,omitempty"`

	// Structured holds the analyzer's own JSON document when it emitted one.
	Structured map[string]any `json:"-"`
}

// NotificationMessage is what gets relayed to the messaging sink.
type NotificationMessage struct {
	Text string `json:"text"`
}

// NewNotification renders a human readable summary of r.
func NewNotification(r Result) NotificationMessage {
	var b strings.Builder
	b.WriteString("FusionCloud threat analysis: ")
	b.WriteString(r.ThreatLevel.Label())
	if r.Synthetic {
		b.WriteString(" (synthetic result, analyzer unavailable)")
	}
	b.WriteString("\n\n")
	b.WriteString(strings.TrimSpace(r.Narrative))
	if r.CVEExcerpt != nil && *r.CVEExcerpt != "" {
		b.WriteString("\n\nCVEs: ")
		b.WriteString(*r.CVEExcerpt)
	}
	return NotificationMessage{Text: b.String()}
}
