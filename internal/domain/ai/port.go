package ai

import (
	"context"

	"github.com/bryanwahyu/fusioncloud/internal/domain/analysis"
)

// Verdict is the model's assessment of a batch of log text.
type Verdict struct {
	Analysis    string `json:"analysis"`
	ThreatLevel string `json:"threat_level"`
	CVEData     string `json:"cve_data"`
}

type Client interface {
	Assess(ctx context.Context, logText string) (Verdict, error)
}

// ScanResult is the outcome of a local indicator scan.
type ScanResult struct {
	Summary  string
	Level    analysis.ThreatLevel
	CVEData  string
	Findings int
}

// Scanner runs a local, offline indicator scan. It never fails.
type Scanner interface {
	Scan(logText string) ScanResult
}
