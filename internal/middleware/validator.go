package middleware

import (
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// Input validation and sanitization utilities

// maxMessageLen follows Slack's limit for the text field of a message.
const maxMessageLen = 40000

// ValidateMessage checks a relay message before it is forwarded
func ValidateMessage(message string) error {
	if strings.TrimSpace(message) == "" {
		return fmt.Errorf("message is required")
	}
	if utf8.RuneCountInString(message) > maxMessageLen {
		return fmt.Errorf("message too long (max %d characters)", maxMessageLen)
	}
	return nil
}

// SanitizeFileName keeps only the base name of an uploaded file, for display
func SanitizeFileName(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = SanitizeString(filepath.Base(name))
	if name == "." || name == "/" {
		return ""
	}
	if utf8.RuneCountInString(name) > 255 {
		name = string([]rune(name)[:255])
	}
	return name
}

// SanitizeString removes dangerous characters from strings
func SanitizeString(input string) string {
	input = strings.ReplaceAll(input, "\x00", "")

	var result strings.Builder
	for _, r := range input {
		if r >= 32 || r == '\t' || r == '\n' {
			result.WriteRune(r)
		}
	}

	return strings.TrimSpace(result.String())
}
