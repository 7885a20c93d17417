package ai

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/bryanwahyu/fusioncloud/internal/domain/ai"
	"github.com/bryanwahyu/fusioncloud/internal/domain/analysis"
)

type stubLLM struct {
	v   ai.Verdict
	err error
}

func (s stubLLM) Assess(ctx context.Context, logText string) (ai.Verdict, error) { return s.v, s.err }

type stubScanner ai.ScanResult

func (s stubScanner) Scan(string) ai.ScanResult { return ai.ScanResult(s) }

type recordingAlerter struct{ msgs []analysis.NotificationMessage }

func (r *recordingAlerter) Notify(ctx context.Context, msg analysis.NotificationMessage) error {
	r.msgs = append(r.msgs, msg)
	return nil
}

func TestAssess_OfflineOnly(t *testing.T) {
	svc := &Service{
		Scanner: stubScanner{Summary: "WARNING: scan (Medium Risk)", Level: analysis.ThreatMedium, CVEData: "", Findings: 1},
		Log:     zerolog.Nop(),
	}
	r, err := svc.Assess(context.Background(), "nmap")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.ThreatLevel != analysis.ThreatMedium || r.Status != "success" || r.Analysis != "WARNING: scan (Medium Risk)" {
		t.Errorf("report = %+v", r)
	}
}

func TestAssess_CombinesModelAndScan(t *testing.T) {
	alerter := &recordingAlerter{}
	svc := &Service{
		LLM:         stubLLM{v: ai.Verdict{Analysis: "WARNING: odd logins", ThreatLevel: "medium", CVEData: "CVE-2021-44228: Log4Shell"}},
		Scanner:     stubScanner{Summary: "CRITICAL: jndi", Level: analysis.ThreatHigh, CVEData: "CVE-2021-44228\nCVE-2021-45046", Findings: 1},
		Alerter:     alerter,
		AlertOnHigh: true,
		Log:         zerolog.Nop(),
	}
	r, err := svc.Assess(context.Background(), "${jndi:ldap://x/a}")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.ThreatLevel != analysis.ThreatHigh {
		t.Errorf("level = %q, want high (scanner outranks model)", r.ThreatLevel)
	}
	if r.CVEData != "CVE-2021-44228: Log4Shell\nCVE-2021-45046" {
		t.Errorf("cve_data = %q", r.CVEData)
	}
	if !strings.Contains(r.Analysis, "Offline indicator scan:\nCRITICAL: jndi") {
		t.Errorf("analysis = %q", r.Analysis)
	}
	if len(alerter.msgs) != 1 || !strings.HasPrefix(alerter.msgs[0].Text, "CRITICAL THREAT: ") {
		t.Errorf("alerts = %+v", alerter.msgs)
	}
}

func TestAssess_NoAlertBelowHigh(t *testing.T) {
	alerter := &recordingAlerter{}
	svc := &Service{
		LLM:         stubLLM{v: ai.Verdict{Analysis: "All normal", ThreatLevel: "Low Risk"}},
		Scanner:     stubScanner{Level: analysis.ThreatLow},
		Alerter:     alerter,
		AlertOnHigh: true,
		Log:         zerolog.Nop(),
	}
	r, err := svc.Assess(context.Background(), "GET / 200")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.ThreatLevel != analysis.ThreatLow || r.Analysis != "All normal" {
		t.Errorf("report = %+v", r)
	}
	if len(alerter.msgs) != 0 {
		t.Errorf("alerts = %d, want 0", len(alerter.msgs))
	}
}

func TestAssess_UnknownModelLevelUsesMarkers(t *testing.T) {
	svc := &Service{
		LLM:     stubLLM{v: ai.Verdict{Analysis: "CRITICAL: root shell", ThreatLevel: "severe"}},
		Scanner: stubScanner{Level: analysis.ThreatLow},
		Log:     zerolog.Nop(),
	}
	r, _ := svc.Assess(context.Background(), "x")
	if r.ThreatLevel != analysis.ThreatHigh {
		t.Errorf("level = %q, want high", r.ThreatLevel)
	}
}

func TestAssess_ModelFailure(t *testing.T) {
	svc := &Service{
		LLM:     stubLLM{err: ai.ErrQuotaExceeded},
		Scanner: stubScanner{},
		Log:     zerolog.Nop(),
	}
	if _, err := svc.Assess(context.Background(), "x"); !errors.Is(err, ai.ErrQuotaExceeded) {
		t.Errorf("err = %v, want ErrQuotaExceeded", err)
	}
}

func TestAssess_EmptyLog(t *testing.T) {
	svc := &Service{Scanner: stubScanner{}, Log: zerolog.Nop()}
	if _, err := svc.Assess(context.Background(), " \n"); err == nil {
		t.Error("empty log should fail")
	}
}
