package emailpipeline

import (
	"regexp"
	"strings"
)

// spamKeywords mirrors the teacher's blocked_words content_filter list,
// generalized from "reject on any match" to "contribute points per match".
var spamKeywords = []string{
	"win money", "you've won", "claim your prize", "act now", "limited time offer",
	"risk free", "100% free", "no cost", "cash bonus", "click here now",
	"viagra", "weight loss miracle", "work from home", "make money fast",
}

// spamPatterns mirrors the teacher's regex_filter guardrail kind.
var spamPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\$\$\$+`),
	regexp.MustCompile(`(?i)!!!+`),
	regexp.MustCompile(`(?i)\bunsubscribe\b.*\bhere\b`),
	regexp.MustCompile(`(?i)\b[A-Z]{6,}\b`),
}

// SpamScore returns a score in [0,100]. Each keyword hit contributes 15
// points, each pattern hit contributes 10, capped at 100.
func SpamScore(msg Message) int {
	text := strings.ToLower(msg.Subject + " " + msg.BodyText)
	score := 0
	for _, kw := range spamKeywords {
		if strings.Contains(text, kw) {
			score += 15
		}
	}
	for _, pat := range spamPatterns {
		if pat.MatchString(msg.Subject + " " + msg.BodyText) {
			score += 10
		}
	}
	if score > 100 {
		score = 100
	}
	return score
}

// Whitelist checks a configured sender-address/domain allow-list.
type Whitelist struct {
	addresses map[string]bool
	domains   map[string]bool
}

// NewWhitelist builds a Whitelist from address and domain lists.
func NewWhitelist(addresses, domains []string) *Whitelist {
	w := &Whitelist{addresses: map[string]bool{}, domains: map[string]bool{}}
	for _, a := range addresses {
		w.addresses[strings.ToLower(a)] = true
	}
	for _, d := range domains {
		w.domains[strings.ToLower(d)] = true
	}
	return w
}

// Allows reports whether the sender address or its domain is whitelisted.
func (w *Whitelist) Allows(from string) bool {
	if w.addresses[strings.ToLower(from)] {
		return true
	}
	return w.domains[senderDomain(from)]
}
