package analysis

import (
	"math/rand"
	"sync"
	"time"
)

// canned narratives, one per level
var scenarios = map[ThreatLevel]string{
	ThreatHigh: `CRITICAL THREAT DETECTED: Analysis indicates a sophisticated attack pattern in the logs.

There appears to be an unauthorized access attempt using a known exploit pattern. The IP address 192.168.1.45 has made multiple failed login attempts followed by a successful login with elevated privileges. This pattern is consistent with a brute force attack followed by privilege escalation.

Recommendation: Block the source IP address immediately and investigate the compromised account. Review all actions taken by this account since the time of compromise.`,
	ThreatMedium: `WARNING: Potential security issue detected in logs.

Multiple failed authentication attempts detected from IP 203.45.67.89. While access was not gained, the pattern suggests a potential reconnaissance activity or password spraying attack.

Recommendation: Monitor this IP address for further suspicious activity and consider implementing rate limiting for authentication attempts.`,
	ThreatLow: `LOW RISK ACTIVITY: Minor anomalies detected in logs.

Unusual access patterns detected from internal IP addresses during non-business hours. This may be legitimate maintenance activity, but warrants verification.

Recommendation: Confirm if this activity was scheduled maintenance or authorized access. If not, investigate further.`,
}

// ScenarioLevels are the levels a synthetic result can carry.
var ScenarioLevels = []ThreatLevel{ThreatLow, ThreatMedium, ThreatHigh}

// Synthesize builds a synthetic result for the level chosen by sel.
// Levels outside ScenarioLevels degrade to low.
func Synthesize(sel ScenarioSelector, now time.Time) Result {
	level := sel.Select()
	narrative, ok := scenarios[level]
	if !ok {
		level = ThreatLow
		narrative = scenarios[ThreatLow]
	}
	return Result{
		Narrative:   narrative,
		ThreatLevel: level,
		Timestamp:   now,
		Synthetic:   true,
	}
}

// RandomSelector picks a scenario uniformly. Safe for concurrent use.
type RandomSelector struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

func NewRandomSelector(seed int64) *RandomSelector {
	return &RandomSelector{rnd: rand.New(rand.NewSource(seed))}
}

func (s *RandomSelector) Select() ThreatLevel {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ScenarioLevels[s.rnd.Intn(len(ScenarioLevels))]
}

// FixedSelector always picks the same level. Used to pin outcomes.
type FixedSelector ThreatLevel

func (f FixedSelector) Select() ThreatLevel { return ThreatLevel(f) }
