package analysis

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Marker tokens of the heuristic strategy. The scan is case-sensitive and
// substring based: "critical" or "warning" in lower case do not count.
var (
	criticalMarkers = []string{"CRITICAL", "High Risk"}
	warningMarkers  = []string{"WARNING", "Medium Risk"}
)

// CVESectionLabel introduces the vulnerability section of analyzer narratives.
const CVESectionLabel = "Top matching CVEs:"

// section runs until the first blank line or the end of the text
var cveSectionRe = regexp.MustCompile(`(?s)` + regexp.QuoteMeta(CVESectionLabel) + `(.*?)(?:\n\n|\z)`)

// ClassifyText infers a level from marker tokens. Critical-class markers win
// over warning-class markers; text with neither is low.
func ClassifyText(text string) ThreatLevel {
	for _, m := range criticalMarkers {
		if strings.Contains(text, m) {
			return ThreatHigh
		}
	}
	for _, m := range warningMarkers {
		if strings.Contains(text, m) {
			return ThreatMedium
		}
	}
	return ThreatLow
}

// ExtractCVEExcerpt returns the trimmed body of the "Top matching CVEs:"
// section, or nil when the section is missing or empty.
func ExtractCVEExcerpt(text string) *string {
	m := cveSectionRe.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	excerpt := strings.TrimSpace(m[1])
	if excerpt == "" {
		return nil
	}
	return &excerpt
}

// Interpret turns the analyzer's primary output into a Result. The structured
// strategy is tried first; anything it does not recognize goes through the
// heuristic strategy. It never fails.
func Interpret(stdout string, now time.Time) Result {
	if r, ok := InterpretStructured(stdout, now); ok {
		return r
	}
	return InterpretHeuristic(stdout, now)
}

// InterpretStructured accepts a JSON object carrying a non-empty "analysis"
// string. The analyzer's own level and CVE fields are trusted when present.
func InterpretStructured(stdout string, now time.Time) (Result, bool) {
	var doc map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(stdout)), &doc); err != nil {
		return Result{}, false
	}
	narrative, _ := doc["analysis"].(string)
	if strings.TrimSpace(narrative) == "" {
		return Result{}, false
	}

	level := ThreatUnknown
	for _, key := range []string{"threatLevel", "threat_level"} {
		if s, ok := doc[key].(string); ok {
			if l, ok := ParseThreatLevel(s); ok {
				level = l
				break
			}
		}
	}
	if level == ThreatUnknown {
		level = ClassifyText(narrative)
	}

	cve := cveField(doc)
	if cve == nil {
		cve = ExtractCVEExcerpt(narrative)
	}

	return Result{
		Narrative:   narrative,
		ThreatLevel: level,
		CVEExcerpt:  cve,
		Timestamp:   now,
		Structured:  doc,
	}, true
}

// InterpretHeuristic keeps the text verbatim and classifies it by markers.
func InterpretHeuristic(stdout string, now time.Time) Result {
	return Result{
		Narrative:   stdout,
		ThreatLevel: ClassifyText(stdout),
		CVEExcerpt:  ExtractCVEExcerpt(stdout),
		Timestamp:   now,
	}
}

func cveField(doc map[string]any) *string {
	for _, key := range []string{"cveExcerpt", "cve_excerpt", "cve_data"} {
		var s string
		switch v := doc[key].(type) {
		case string:
			s = v
		case []any:
			parts := make([]string, 0, len(v))
			for _, it := range v {
				parts = append(parts, fmt.Sprint(it))
			}
			s = strings.Join(parts, "\n")
		default:
			continue
		}
		if s = strings.TrimSpace(s); s != "" {
			return &s
		}
	}
	return nil
}
