package offline

import (
	"bufio"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	domain "github.com/bryanwahyu/fusioncloud/internal/domain/analysis"
)

// Action recommended for an anomaly record.
type Action string

const (
	ActionBlock  Action = "BLOCK"
	ActionWarn   Action = "WARN"
	ActionIgnore Action = "IGNORE"
)

// z-scores are negative for anomalies; severity runs 0-10
const (
	zHigh       = -2.0
	zMedium     = -1.0
	severityMed = 7
	severityHi  = 10
)

// ZCategory buckets a z-score. More negative is more anomalous.
func ZCategory(z float64) domain.ThreatLevel {
	switch {
	case z <= zHigh:
		return domain.ThreatHigh
	case z <= zMedium:
		return domain.ThreatMedium
	default:
		return domain.ThreatLow
	}
}

// SeverityCategory buckets a 0-10 severity score.
func SeverityCategory(sev float64) domain.ThreatLevel {
	switch {
	case sev >= severityHi:
		return domain.ThreatHigh
	case sev >= severityMed:
		return domain.ThreatMedium
	default:
		return domain.ThreatLow
	}
}

// DetermineAction blocks a source only when both measures agree; either one
// alone is worth a warning.
func DetermineAction(z, sev float64) Action {
	zc, sc := ZCategory(z), SeverityCategory(sev)
	switch {
	case zc == domain.ThreatHigh && sc != domain.ThreatLow:
		return ActionBlock
	case zc == domain.ThreatHigh || sc != domain.ThreatLow:
		return ActionWarn
	default:
		return ActionIgnore
	}
}

type anomaly struct {
	z        float64
	severity float64
	source   string
	action   Action
}

// anomalies reads anomaly detector output from the log text: a JSON object,
// an array of objects or JSON lines, each carrying z_score. Text that is not
// JSON yields nothing.
func anomalies(text string) []anomaly {
	text = strings.TrimSpace(text)
	if text == "" || (text[0] != '{' && text[0] != '[') {
		return nil
	}

	var docs []map[string]any
	var v any
	if err := json.Unmarshal([]byte(text), &v); err == nil {
		docs = collect(v)
	} else {
		sc := bufio.NewScanner(strings.NewReader(text))
		sc.Buffer(make([]byte, 64*1024), 1<<20)
		for sc.Scan() {
			var line any
			if json.Unmarshal(sc.Bytes(), &line) == nil {
				docs = append(docs, collect(line)...)
			}
		}
	}

	out := make([]anomaly, 0, len(docs))
	for _, d := range docs {
		z, ok := number(d["z_score"])
		if !ok {
			continue
		}
		sev, _ := number(d["severity"])
		a := anomaly{z: z, severity: sev, action: DetermineAction(z, sev)}
		// percentile label from the detector
		if l, ok := d["threat_level"].(string); ok && a.action == ActionIgnore {
			if lvl, ok := domain.ParseThreatLevel(l); ok && lvl == domain.ThreatHigh {
				a.action = ActionWarn
			}
		}
		for _, key := range []string{"source_ip", "ip", "client_ip"} {
			if s, ok := d[key].(string); ok && s != "" {
				a.source = s
				break
			}
		}
		out = append(out, a)
	}
	return out
}

// collect flattens a decoded document into objects. EventBridge style
// envelopes are unwrapped through "detail".
func collect(v any) []map[string]any {
	switch t := v.(type) {
	case map[string]any:
		if d, ok := t["detail"].(map[string]any); ok {
			return []map[string]any{d}
		}
		return []map[string]any{t}
	case []any:
		var out []map[string]any
		for _, it := range t {
			if m, ok := it.(map[string]any); ok {
				out = append(out, m)
			}
		}
		return out
	default:
		return nil
	}
}

func number(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// anomalyFindings summarizes records per action, worst first.
func anomalyFindings(records []anomaly) []Finding {
	var block, warn []anomaly
	for _, a := range records {
		switch a.action {
		case ActionBlock:
			block = append(block, a)
		case ActionWarn:
			warn = append(warn, a)
		}
	}

	var out []Finding
	if len(block) > 0 {
		out = append(out, Finding{
			Title:          "Anomalous source flagged for blocking",
			Severity:       SeverityHigh,
			Summary:        fmt.Sprintf("%d record(s) with z-score <= %.1f and severity >= %d. %s", len(block), zHigh, severityMed, examples(block)),
			Recommendation: "Block the listed sources at the firewall or security group and review what they accessed.",
		})
	}
	if len(warn) > 0 {
		out = append(out, Finding{
			Title:          "Anomalous activity",
			Severity:       SeverityMedium,
			Summary:        fmt.Sprintf("%d record(s) with a high z-score or elevated severity. %s", len(warn), examples(warn)),
			Recommendation: "Review the sources and raise their monitoring; block if the pattern repeats.",
		})
	}
	return out
}

func examples(records []anomaly) string {
	parts := make([]string, 0, 3)
	for _, a := range records {
		if len(parts) == 3 {
			break
		}
		src := a.source
		if src == "" {
			src = "unknown source"
		}
		parts = append(parts, fmt.Sprintf("%s (z=%.2f, severity %g)", src, a.z, a.severity))
	}
	return "Example: " + strings.Join(parts, ", ")
}
