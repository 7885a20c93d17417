package analysis

import (
	"strings"
	"sync"
	"testing"
)

func TestSynthesize_FixedSelector(t *testing.T) {
	for _, level := range ScenarioLevels {
		r := Synthesize(FixedSelector(level), fixedNow)
		if r.ThreatLevel != level {
			t.Errorf("level = %q, want %q", r.ThreatLevel, level)
		}
		if !r.Synthetic {
			t.Error("synthetic flag should be set")
		}
		if r.Narrative == "" {
			t.Error("narrative should not be empty")
		}
		// the canned narrative must classify to its own level
		if got := ClassifyText(r.Narrative); got != level {
			t.Errorf("narrative for %q classifies as %q", level, got)
		}
	}
}

func TestSynthesize_UnknownLevelDegradesToLow(t *testing.T) {
	r := Synthesize(FixedSelector(ThreatUnknown), fixedNow)
	if r.ThreatLevel != ThreatLow {
		t.Errorf("level = %q, want %q", r.ThreatLevel, ThreatLow)
	}
}

func TestRandomSelector_StaysInSet(t *testing.T) {
	sel := NewRandomSelector(42)
	seen := map[ThreatLevel]int{}
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				l := sel.Select()
				mu.Lock()
				seen[l]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	for l := range seen {
		if l != ThreatLow && l != ThreatMedium && l != ThreatHigh {
			t.Errorf("unexpected level %q", l)
		}
	}
	if len(seen) != 3 {
		t.Errorf("expected all three levels over 400 draws, got %v", seen)
	}
}

func TestNewNotification(t *testing.T) {
	cve := "CVE-2023-1234"
	msg := NewNotification(Result{Narrative: "CRITICAL: x\n", ThreatLevel: ThreatHigh, CVEExcerpt: &cve})
	if !strings.Contains(msg.Text, "High Risk") || !strings.Contains(msg.Text, "CVEs: CVE-2023-1234") {
		t.Errorf("text = %q", msg.Text)
	}
	synthetic := NewNotification(Synthesize(FixedSelector(ThreatLow), fixedNow))
	if !strings.Contains(synthetic.Text, "synthetic") {
		t.Errorf("synthetic results should be labelled: %q", synthetic.Text)
	}
}
