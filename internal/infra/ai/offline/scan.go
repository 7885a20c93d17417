package offline

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/bryanwahyu/fusioncloud/internal/domain/ai"
	domain "github.com/bryanwahyu/fusioncloud/internal/domain/analysis"
)

// Severity of a finding.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

type Finding struct {
	Title          string   `json:"title"`
	Severity       Severity `json:"severity"`
	Summary        string   `json:"summary"`
	Recommendation string   `json:"recommendation"`
	CVEs           []string `json:"cves,omitempty"`
}

type Counts struct {
	Critical int `json:"critical"`
	High     int `json:"high"`
	Medium   int `json:"medium"`
	Low      int `json:"low"`
	Total    int `json:"total"`
}

// Report is the outcome of an indicator scan over log text.
type Report struct {
	Counts   Counts    `json:"counts"`
	Findings []Finding `json:"findings"`
	CVEs     []string  `json:"cves"`
}

type detector struct {
	re             *regexp.Regexp
	severity       Severity
	title          string
	recommendation string
	cves           []string
}

// indicators of attack commonly seen in auth, web and application logs
var detectors = []detector{
	// exploit payloads with well known CVEs
	{regexp.MustCompile(`\$\{jndi:(?:ldap|ldaps|rmi|dns|iiop|http)s?:`), SeverityCritical, "Log4Shell JNDI lookup payload", "Patch log4j to 2.17.1 or later, block outbound LDAP/RMI from application hosts and hunt for follow-up downloads.", []string{"CVE-2021-44228", "CVE-2021-45046"}},
	{regexp.MustCompile(`\(\)\s*\{\s*:;\s*\};`), SeverityCritical, "Shellshock payload in request", "Patch bash, disable CGI where not needed and review the targeted endpoints.", []string{"CVE-2014-6271"}},
	{regexp.MustCompile(`(?i)/cgi-bin/(?:\.%2e|%2e%2e|\.\.)/`), SeverityCritical, "Apache path traversal to cgi-bin", "Upgrade Apache httpd past 2.4.51 and deny access outside the document root.", []string{"CVE-2021-41773", "CVE-2021-42013"}},
	{regexp.MustCompile(`(?i)class\.module\.classLoader`), SeverityCritical, "Spring4Shell class loader manipulation", "Upgrade Spring Framework to 5.3.18+ and restrict data binding on exposed controllers.", []string{"CVE-2022-22965"}},
	{regexp.MustCompile(`(?i)%\{\(#[a-z_]+=|\$\{#context\[`), SeverityCritical, "Apache Struts OGNL injection", "Upgrade Struts and block OGNL expressions at the edge.", []string{"CVE-2017-5638"}},

	// command execution and injection
	{regexp.MustCompile(`(?i)(?:;|\|\||&&|\|)\s*(?:wget|curl)\s+https?://`), SeverityCritical, "Remote payload download via command injection", "Isolate the host, capture the downloaded payload and patch the injectable parameter.", nil},
	{regexp.MustCompile(`(?i)(?:/bin/(?:ba)?sh\s+-i|nc\s+-e\s+/bin/|bash\s+-c\s+.*?/dev/tcp/)`), SeverityCritical, "Reverse shell command", "Treat the host as compromised: isolate it, rotate credentials and investigate the parent process.", nil},
	{regexp.MustCompile(`(?i)(?:union(?:\s|%20|\+)+(?:all(?:\s|%20|\+)+)?select|'\s*or\s*'?1'?\s*=\s*'?1|information_schema|sleep\(\d+\)|benchmark\(\d+)`), SeverityHigh, "SQL injection attempt", "Use parameterized queries, enable WAF SQLi rules and check the database for unexpected reads.", nil},
	{regexp.MustCompile(`(?i)(?:\.\./|\.\.\\|%2e%2e%2f|%2e%2e/|\.\.%2f){2,}`), SeverityHigh, "Path traversal attempt", "Normalize and validate file paths server-side and confirm no sensitive files were served.", nil},
	{regexp.MustCompile(`(?i)(?:<script\b|javascript:|onerror\s*=|onload\s*=)`), SeverityMedium, "Cross-site scripting probe", "Encode output, set a strict Content-Security-Policy and review the reflected parameters.", nil},

	// privilege escalation and persistence
	{regexp.MustCompile(`(?i)sudo:.*COMMAND=(?:/bin/(?:ba)?sh|/usr/bin/(?:ba)?sh|.*?/etc/shadow|.*?chmod\s+[0-7]*777)`), SeverityHigh, "Privilege escalation through sudo", "Review sudoers entries, restrict shell access and audit the commands run as root.", nil},
	{regexp.MustCompile(`(?i)(?:useradd|usermod\s+-aG\s+(?:sudo|wheel|root)|new user: name=)`), SeverityHigh, "Account created or added to admin group", "Verify the account change was authorized; remove unknown accounts and audit group membership.", nil},
	{regexp.MustCompile(`(?i)(?:crontab\s+-[el]|/etc/cron\.d/|authorized_keys)`), SeverityMedium, "Persistence mechanism touched", "Check cron entries and authorized_keys for unknown additions.", nil},

	// credentials leaking into logs
	{regexp.MustCompile(`-----BEGIN (?:RSA |EC |DSA |OPENSSH )?PRIVATE KEY-----`), SeverityCritical, "Private key material in logs", "Rotate the key immediately and scrub it from log storage.", nil},
	{regexp.MustCompile(`AKIA[0-9A-Z]{16}`), SeverityCritical, "AWS access key in logs", "Revoke the access key and audit CloudTrail for its usage.", nil},
	{regexp.MustCompile(`gh[pousr]_[A-Za-z0-9_]{20,}|github_pat_[A-Za-z0-9_]{20,}`), SeverityCritical, "GitHub token in logs", "Revoke the token and redact it from log sinks.", nil},
	{regexp.MustCompile(`xox[baprs]-[A-Za-z0-9\-]{10,}`), SeverityCritical, "Slack token in logs", "Revoke the token in Slack admin and redact it from log sinks.", nil},
	{regexp.MustCompile(`(?i)authorization\s*[:=]\s*["']?bearer\s+[A-Za-z0-9\-\._~\+\/]{16,}=*`), SeverityHigh, "Bearer token in logs", "Stop logging authorization headers and invalidate the exposed sessions.", nil},
	{regexp.MustCompile(`://[^\s/:@]+:[^\s/@]+@`), SeverityHigh, "Credentials embedded in URL", "Strip credentials from URLs and rotate the exposed password.", nil},

	// reconnaissance
	{regexp.MustCompile(`(?i)(?:sqlmap|nikto|nmap|masscan|dirbuster|gobuster|wpscan|zgrab|nuclei)`), SeverityMedium, "Scanner or recon tool signature", "Rate limit or block the source and make sure nothing sensitive is exposed on the probed paths.", nil},
}

var (
	failedLogin   = regexp.MustCompile(`(?i)(?:failed password|authentication failure|invalid user|login failed|failed login)`)
	acceptedLogin = regexp.MustCompile(`(?i)(?:accepted (?:password|publickey)|session opened for user root|login successful)`)
)

// bruteForceThreshold is the number of failed logins treated as a brute force attack.
const bruteForceThreshold = 5

// Scan inspects log text for indicators of attack. It never fails.
func Scan(text string) Report {
	trim := func(s string, n int) string {
		if len(s) <= n {
			return s
		}
		return s[:n] + "..."
	}

	var out Report
	findings := make([]Finding, 0, 8)
	add := func(f Finding) {
		findings = append(findings, f)
		switch f.Severity {
		case SeverityCritical:
			out.Counts.Critical++
		case SeverityHigh:
			out.Counts.High++
		case SeverityMedium:
			out.Counts.Medium++
		case SeverityLow:
			out.Counts.Low++
		}
	}

	for _, d := range detectors {
		match := d.re.FindString(text)
		if match == "" {
			continue
		}
		add(Finding{
			Title:          d.title,
			Severity:       d.severity,
			Summary:        "Example: " + trim(strings.TrimSpace(match), 64),
			Recommendation: d.recommendation,
			CVEs:           d.cves,
		})
	}

	// login patterns are counted, not matched once
	failures := len(failedLogin.FindAllStringIndex(text, -1))
	switch {
	case failures >= bruteForceThreshold && acceptedLogin.MatchString(text):
		add(Finding{
			Title:          "Brute force followed by successful login",
			Severity:       SeverityCritical,
			Summary:        fmt.Sprintf("%d failed logins before an accepted login.", failures),
			Recommendation: "Lock the account, block the source address and review everything the session did.",
		})
	case failures >= bruteForceThreshold:
		add(Finding{
			Title:          "Brute force login attempts",
			Severity:       SeverityHigh,
			Summary:        fmt.Sprintf("%d failed logins.", failures),
			Recommendation: "Enable rate limiting or fail2ban and require key-based authentication.",
		})
	case failures > 0:
		add(Finding{
			Title:          "Failed login attempts",
			Severity:       SeverityLow,
			Summary:        fmt.Sprintf("%d failed logins.", failures),
			Recommendation: "Keep monitoring the source; a few failures are usually typos.",
		})
	}

	for _, f := range anomalyFindings(anomalies(text)) {
		add(f)
	}

	if len(findings) > 20 {
		findings = findings[:20]
	}
	out.Findings = findings
	out.Counts.Total = out.Counts.Critical + out.Counts.High + out.Counts.Medium + out.Counts.Low

	seen := map[string]bool{}
	out.CVEs = []string{}
	for _, f := range findings {
		for _, id := range f.CVEs {
			if !seen[id] {
				seen[id] = true
				out.CVEs = append(out.CVEs, id)
			}
		}
	}
	sort.Strings(out.CVEs)
	return out
}

// Level maps the findings onto the threat level scale.
func (r Report) Level() domain.ThreatLevel {
	switch {
	case r.Counts.Critical+r.Counts.High > 0:
		return domain.ThreatHigh
	case r.Counts.Medium > 0:
		return domain.ThreatMedium
	default:
		return domain.ThreatLow
	}
}

// Narrative renders the report with the markers the result interpreter
// understands (CRITICAL / WARNING, High Risk / Medium Risk) and a
// "Top matching CVEs:" section when any CVE matched.
func (r Report) Narrative() string {
	cves := r.CVESection()
	if cves == "" {
		return r.Summary()
	}
	return r.Summary() + "\n\n" + domain.CVESectionLabel + "\n" + cves
}

// Summary is the narrative without the CVE section.
func (r Report) Summary() string {
	var b strings.Builder
	switch r.Level() {
	case domain.ThreatHigh:
		fmt.Fprintf(&b, "CRITICAL: %d indicator(s) of attack found in the logs (High Risk).\n", r.Counts.Total)
	case domain.ThreatMedium:
		fmt.Fprintf(&b, "WARNING: %d suspicious indicator(s) found in the logs (Medium Risk).\n", r.Counts.Total)
	default:
		b.WriteString("No significant threat indicators found in the logs (Low Risk).\n")
	}

	for _, f := range r.Findings {
		fmt.Fprintf(&b, "\n- [%s] %s. %s\n  Recommendation: %s", f.Severity, f.Title, f.Summary, f.Recommendation)
	}
	return strings.TrimRight(b.String(), "\n")
}

// CVESection lists matched CVE ids one per line, or "" when none matched.
func (r Report) CVESection() string {
	return strings.Join(r.CVEs, "\n")
}

// Scanner adapts Scan to the assessment service.
type Scanner struct{}

func (Scanner) Scan(logText string) ai.ScanResult {
	r := Scan(logText)
	return ai.ScanResult{
		Summary:  r.Summary(),
		Level:    r.Level(),
		CVEData:  r.CVESection(),
		Findings: r.Counts.Total,
	}
}
