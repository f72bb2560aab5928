package mcp

import (
	"context"
	"unicode/utf8"

	"github.com/mdombrov-33/go-promptguard/detector"
)

const maxScreenLen = 1000

// promptGuard runs the pattern and statistical detectors only, no LLM judge.
var promptGuard = detector.New(
	detector.WithThreshold(0.6),
	detector.WithAllDetectors(),
	detector.WithMaxInputLength(maxScreenLen),
)

// detectInjection reports whether text looks like a prompt injection
// attempt. Index descriptions are written by uploaders, so they are screened
// before being handed to an agent.
var detectInjection = func(text string) bool {
	if len(text) == 0 {
		return false
	}
	text = truncateUTF8(text, maxScreenLen)
	result := promptGuard.Detect(context.Background(), text)
	return !result.Safe
}

// truncateUTF8 cuts s to at most n bytes without splitting a rune.
func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
