package prompt

import (
	"fmt"
	"unicode/utf8"
)

// maxLogRunes keeps the user prompt inside the model context window.
const maxLogRunes = 24000

// GetSystemPrompt provides strict directions and schema for JSON output.
func GetSystemPrompt() string {
	return `You are a senior security operations analyst reviewing raw system, authentication and web server logs. You must produce one valid JSON object only (no markdown, no commentary) that follows the schema below. Do not include code fences.

Requirements:
- Output must be a single JSON object.
- threat_level is one of: low, medium, high.
- analysis is plain text. Start it with "CRITICAL:" for high threats or "WARNING:" for medium threats, and state the risk as "High Risk", "Medium Risk" or "Low Risk".
- Describe the attack pattern, the affected hosts, users and source addresses, and give concrete recommendations.
- cve_data lists CVE identifiers that plausibly match the observed activity, one per line as "CVE-YYYY-NNNN: short description". Use an empty string when none match. Never invent identifiers.
- If the logs are benign say so; do not exaggerate.

Schema (example with empty values):
{
  "analysis": "<string>",
  "threat_level": "<low|medium|high>",
  "cve_data": "<string>"
}`
}

// GetUserPrompt wraps the log text, truncated to fit the context window.
func GetUserPrompt(logText string) string {
	truncated := ""
	if utf8.RuneCountInString(logText) > maxLogRunes {
		logText = string([]rune(logText)[:maxLogRunes])
		truncated = "\n[log truncated]"
	}
	return fmt.Sprintf("Analyze these logs for security threats and respond with the JSON per schema.\n\nLOGS:\n%s%s", logText, truncated)
}
