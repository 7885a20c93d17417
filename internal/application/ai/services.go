package ai

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/bryanwahyu/fusioncloud/internal/domain/ai"
	"github.com/bryanwahyu/fusioncloud/internal/domain/analysis"
)

// Report is what the threat-agent prints for the pipeline.
type Report struct {
	Analysis    string               `json:"analysis"`
	CVEData     string               `json:"cve_data"`
	ThreatLevel analysis.ThreatLevel `json:"threat_level"`
	Status      string               `json:"status"`
}

// Service assesses log text with the model and the offline scanner in parallel.
// LLM and Alerter are optional; without LLM the offline scan alone is reported.
type Service struct {
	LLM         ai.Client
	Scanner     ai.Scanner
	Alerter     analysis.Notifier
	AlertOnHigh bool
	Log         zerolog.Logger
}

var cveID = regexp.MustCompile(`CVE-\d{4}-\d{4,}`)

func (s *Service) Assess(ctx context.Context, logText string) (Report, error) {
	if strings.TrimSpace(logText) == "" {
		return Report{}, errors.New("log file is empty")
	}

	var (
		verdict ai.Verdict
		scan    ai.ScanResult
	)
	g, gctx := errgroup.WithContext(ctx)
	if s.LLM != nil {
		g.Go(func() error {
			v, err := s.LLM.Assess(gctx, logText)
			if err != nil {
				return fmt.Errorf("ai assessment: %w", err)
			}
			verdict = v
			return nil
		})
	}
	g.Go(func() error {
		scan = s.Scanner.Scan(logText)
		return nil
	})
	if err := g.Wait(); err != nil {
		return Report{}, err
	}

	r := Report{Status: "success"}
	if s.LLM == nil {
		r.Analysis = scan.Summary
		r.ThreatLevel = scan.Level
		r.CVEData = scan.CVEData
	} else {
		r.Analysis = verdict.Analysis
		if scan.Findings > 0 {
			r.Analysis += "\n\nOffline indicator scan:\n" + scan.Summary
		}
		r.ThreatLevel = higher(verdictLevel(verdict), scan.Level)
		r.CVEData = mergeCVEs(verdict.CVEData, scan.CVEData)
	}
	s.Log.Info().Str("threat_level", string(r.ThreatLevel)).Int("indicators", scan.Findings).Msg("assessment finished")

	if r.ThreatLevel == analysis.ThreatHigh && s.AlertOnHigh && s.Alerter != nil {
		msg := analysis.NotificationMessage{Text: fmt.Sprintf("CRITICAL THREAT: %s\n\nCVEs: %s", r.Analysis, r.CVEData)}
		// alert gagal tidak menggagalkan analisis
		if err := s.Alerter.Notify(ctx, msg); err != nil {
			s.Log.Warn().Err(err).Msg("alert failed")
		}
	}
	return r, nil
}

// verdictLevel trusts the model's level when it is recognizable, else reads the markers.
func verdictLevel(v ai.Verdict) analysis.ThreatLevel {
	if level, ok := analysis.ParseThreatLevel(v.ThreatLevel); ok {
		return level
	}
	return analysis.ClassifyText(v.Analysis)
}

func higher(a, b analysis.ThreatLevel) analysis.ThreatLevel {
	rank := map[analysis.ThreatLevel]int{analysis.ThreatLow: 0, analysis.ThreatMedium: 1, analysis.ThreatHigh: 2}
	if rank[b] > rank[a] {
		return b
	}
	return a
}

// mergeCVEs keeps the model's lines and appends scanner ids it did not mention.
func mergeCVEs(model, scanned string) string {
	lines := []string{}
	if m := strings.TrimSpace(model); m != "" {
		lines = append(lines, m)
	}
	mentioned := map[string]bool{}
	for _, id := range cveID.FindAllString(model, -1) {
		mentioned[id] = true
	}
	for _, id := range strings.Split(scanned, "\n") {
		id = strings.TrimSpace(id)
		if id != "" && !mentioned[id] {
			lines = append(lines, id)
		}
	}
	return strings.Join(lines, "\n")
}
