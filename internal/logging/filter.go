// Package logging keeps credentials out of fabrica's log output. The worker
// environment carries an Anthropic API key for the agent CLI, a GitHub token
// for gh, and an npm token for registry publishes; any of them can leak into
// agent stderr or git output that ends up in log messages.
package logging

import (
	"io"
	"regexp"

	"github.com/rs/zerolog"
)

// RedactedValue replaces any matched credential in log output.
const RedactedValue = "[REDACTED]"

// secretPatterns match the credential formats fabrica's toolchain uses plus
// generic key=value assignments that smell like secrets.
var secretPatterns = []*regexp.Regexp{ //nolint:gochecknoglobals // compiled once, read-only
	// Anthropic API keys passed to the agent CLI.
	regexp.MustCompile(`sk-ant-[a-zA-Z0-9_-]{10,}`),

	// GitHub tokens used by gh for pull requests.
	regexp.MustCompile(`gh[pousr]_[a-zA-Z0-9]{20,}`),

	// npm granular and legacy tokens used for publishing.
	regexp.MustCompile(`npm_[a-zA-Z0-9]{20,}`),

	// .npmrc auth lines (//registry.npmjs.org/:_authToken=...).
	regexp.MustCompile(`(?i)_authToken\s*=\s*\S+`),

	// PEM private key blocks, as found in Temporal mTLS material.
	regexp.MustCompile(`-----BEGIN[A-Z ]*PRIVATE KEY-----`),

	// Bearer and Authorization header values.
	regexp.MustCompile(`(?i)(?:bearer|authorization)\s*[:= ]\s*["']?[a-zA-Z0-9._+/=-]{16,}["']?`),

	// Generic assignments: api_key=..., token: "...", password=... and kin.
	regexp.MustCompile(`(?i)(?:api[_-]?key|token|secret|password|passwd|credential)\s*[:=]\s*["']?[^\s"']{8,}["']?`),
}

// Redact replaces every credential match in s with RedactedValue.
func Redact(s string) string {
	for _, p := range secretPatterns {
		s = p.ReplaceAllString(s, RedactedValue)
	}
	return s
}

// ContainsSecret reports whether s matches any known credential pattern.
func ContainsSecret(s string) bool {
	for _, p := range secretPatterns {
		if p.MatchString(s) {
			return true
		}
	}
	return false
}

// SensitiveDataHook flags log events whose message matches a credential
// pattern. Zerolog hooks cannot rewrite the message itself, so the actual
// redaction happens in the FilteringWriter that sits in front of the log
// file; the flag makes leaky call sites easy to find.
type SensitiveDataHook struct{}

// NewSensitiveDataHook returns a hook for attaching to a zerolog logger.
func NewSensitiveDataHook() *SensitiveDataHook {
	return &SensitiveDataHook{}
}

// Run implements zerolog.Hook.
func (h *SensitiveDataHook) Run(e *zerolog.Event, _ zerolog.Level, msg string) {
	if ContainsSecret(msg) {
		e.Bool("contains_filtered_data", true)
	}
}

// FilteringWriter redacts credentials from everything written through it. It
// wraps the rotating log file writer so secrets never reach disk regardless
// of which field or message carried them.
type FilteringWriter struct {
	w io.Writer
}

// NewFilteringWriter wraps w with credential redaction.
func NewFilteringWriter(w io.Writer) *FilteringWriter {
	return &FilteringWriter{w: w}
}

// Write implements io.Writer. It reports the original length on success so
// callers do not mistake redaction shrinkage for a short write.
func (fw *FilteringWriter) Write(p []byte) (int, error) {
	if _, err := fw.w.Write([]byte(Redact(string(p)))); err != nil {
		return 0, err
	}
	return len(p), nil
}
