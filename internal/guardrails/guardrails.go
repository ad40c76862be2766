// Package guardrails evaluates input and output text against a set of
// configured safety rules before it reaches, or after it leaves, an AI
// Gateway completion call.
//
// Supported rule kinds:
//   - content_filter: keyword/phrase blocklist
//   - pii_detection: regex-based PII detection (emails, phone numbers, SSN, credit cards)
//   - topic_restriction: allowed/blocked topic keywords
//   - max_length: character/word length limits
//   - regex_filter: custom regex pattern matching
//   - prompt_injection: heuristic prompt injection detection
//
// Adapted from the teacher's internal/guardrails.CommunityGuardrailService:
// same evaluators, generalized away from the Kitchen-scoped
// pkg/models.Guardrail config type to a self-contained Rule so this package
// has no dependency on any tenant/plan concept.
package guardrails

import (
	"context"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Stage controls whether a Rule runs against the prompt, the model's
// response, or both.
type Stage string

const (
	StageInput  Stage = "input"
	StageOutput Stage = "output"
	StageBoth   Stage = "both"
)

// Kind names a built-in evaluator.
type Kind string

const (
	ContentFilter    Kind = "content_filter"
	PIIDetection     Kind = "pii_detection"
	TopicRestriction Kind = "topic_restriction"
	MaxLength        Kind = "max_length"
	RegexFilter      Kind = "regex_filter"
	PromptInjection  Kind = "prompt_injection"
)

// Rule is one configured guardrail check.
type Rule struct {
	Kind    Kind
	Stage   Stage
	Enabled bool
	Config  map[string]interface{}
}

// Result is the outcome of evaluating a single Rule.
type Result struct {
	Passed  bool
	Kind    Kind
	Stage   string
	Message string
}

// Evaluation is the outcome of evaluating every applicable Rule for one
// stage.
type Evaluation struct {
	Passed  bool
	Results []Result
}

// Service evaluates Rules using built-in heuristics and regex patterns —
// no network calls, no LLM-judge round trip.
type Service struct{}

// EvaluateInput runs input-stage rules against a prompt before it is sent
// to the AI Gateway.
func (s *Service) EvaluateInput(ctx context.Context, rules []Rule, text string) (*Evaluation, error) {
	return evaluate(rules, text, "input"), nil
}

// EvaluateOutput runs output-stage rules against a completion response
// before it is returned to the caller.
func (s *Service) EvaluateOutput(ctx context.Context, rules []Rule, text string) (*Evaluation, error) {
	return evaluate(rules, text, "output"), nil
}

func evaluate(rules []Rule, text string, stage string) *Evaluation {
	eval := &Evaluation{Passed: true, Results: make([]Result, 0, len(rules))}

	for _, r := range rules {
		if !r.Enabled {
			continue
		}
		if !appliesToStage(r.Stage, stage) {
			continue
		}
		result := evaluateOne(r, text, stage)
		eval.Results = append(eval.Results, result)
		if !result.Passed {
			eval.Passed = false
		}
	}

	return eval
}

func appliesToStage(ruleStage Stage, currentStage string) bool {
	switch ruleStage {
	case StageBoth:
		return true
	case StageInput:
		return currentStage == "input"
	case StageOutput:
		return currentStage == "output"
	default:
		return true
	}
}

func evaluateOne(r Rule, text string, stage string) Result {
	switch r.Kind {
	case ContentFilter:
		return evalContentFilter(r, text, stage)
	case PIIDetection:
		return evalPIIDetection(r, text, stage)
	case TopicRestriction:
		return evalTopicRestriction(r, text, stage)
	case MaxLength:
		return evalMaxLength(r, text, stage)
	case RegexFilter:
		return evalRegexFilter(r, text, stage)
	case PromptInjection:
		return evalPromptInjection(r, text, stage)
	default:
		return Result{Passed: true, Kind: r.Kind, Stage: stage, Message: "unknown guardrail kind"}
	}
}

// ── Content Filter ──────────────────────────────────────────
// Config: { "blocked_words": ["word1", "word2"], "case_sensitive": false }

func evalContentFilter(r Rule, text string, stage string) Result {
	blockedRaw, _ := r.Config["blocked_words"].([]interface{})
	caseSensitive, _ := r.Config["case_sensitive"].(bool)

	checkText := text
	if !caseSensitive {
		checkText = strings.ToLower(text)
	}

	for _, bRaw := range blockedRaw {
		word, ok := bRaw.(string)
		if !ok {
			continue
		}
		checkWord := word
		if !caseSensitive {
			checkWord = strings.ToLower(word)
		}
		if strings.Contains(checkText, checkWord) {
			return Result{Passed: false, Kind: r.Kind, Stage: stage, Message: "blocked content detected: contains prohibited word/phrase"}
		}
	}

	return Result{Passed: true, Kind: r.Kind, Stage: stage}
}

// ── PII Detection ───────────────────────────────────────────
// Config: { "patterns": ["email", "phone", "ssn", "credit_card"] }
// If "patterns" is empty, all built-in patterns are checked.

var builtInPIIPatterns = map[string]*regexp.Regexp{
	"email":       regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`),
	"phone":       regexp.MustCompile(`(\+?1[-.\s]?)?\(?\d{3}\)?[-.\s]?\d{3}[-.\s]?\d{4}`),
	"ssn":         regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`),
	"credit_card": regexp.MustCompile(`\b(?:\d{4}[-\s]?){3}\d{4}\b`),
}

func evalPIIDetection(r Rule, text string, stage string) Result {
	patternsRaw, _ := r.Config["patterns"].([]interface{})

	var patternsToCheck []string
	if len(patternsRaw) > 0 {
		for _, p := range patternsRaw {
			if s, ok := p.(string); ok {
				patternsToCheck = append(patternsToCheck, s)
			}
		}
	} else {
		for k := range builtInPIIPatterns {
			patternsToCheck = append(patternsToCheck, k)
		}
	}

	for _, name := range patternsToCheck {
		re, ok := builtInPIIPatterns[name]
		if !ok {
			continue
		}
		if re.MatchString(text) {
			return Result{Passed: false, Kind: r.Kind, Stage: stage, Message: "PII detected: " + name + " pattern matched"}
		}
	}

	return Result{Passed: true, Kind: r.Kind, Stage: stage}
}

// ── Topic Restriction ───────────────────────────────────────
// Config: { "allowed_topics": [...], "blocked_topics": [...] }

func evalTopicRestriction(r Rule, text string, stage string) Result {
	lower := strings.ToLower(text)

	blockedRaw, _ := r.Config["blocked_topics"].([]interface{})
	for _, bRaw := range blockedRaw {
		topic, ok := bRaw.(string)
		if !ok {
			continue
		}
		if strings.Contains(lower, strings.ToLower(topic)) {
			return Result{Passed: false, Kind: r.Kind, Stage: stage, Message: "blocked topic detected: " + topic}
		}
	}

	allowedRaw, _ := r.Config["allowed_topics"].([]interface{})
	if len(allowedRaw) > 0 {
		found := false
		for _, aRaw := range allowedRaw {
			topic, ok := aRaw.(string)
			if !ok {
				continue
			}
			if strings.Contains(lower, strings.ToLower(topic)) {
				found = true
				break
			}
		}
		if !found {
			return Result{Passed: false, Kind: r.Kind, Stage: stage, Message: "message does not match any allowed topic"}
		}
	}

	return Result{Passed: true, Kind: r.Kind, Stage: stage}
}

// ── Max Length ───────────────────────────────────────────────
// Config: { "max_characters": 5000, "max_words": 1000 }

func evalMaxLength(r Rule, text string, stage string) Result {
	if maxChars, ok := getIntConfig(r.Config, "max_characters"); ok && maxChars > 0 {
		if utf8.RuneCountInString(text) > maxChars {
			return Result{Passed: false, Kind: r.Kind, Stage: stage, Message: "message exceeds maximum character limit"}
		}
	}

	if maxWords, ok := getIntConfig(r.Config, "max_words"); ok && maxWords > 0 {
		if len(strings.Fields(text)) > maxWords {
			return Result{Passed: false, Kind: r.Kind, Stage: stage, Message: "message exceeds maximum word limit"}
		}
	}

	return Result{Passed: true, Kind: r.Kind, Stage: stage}
}

// ── Regex Filter ────────────────────────────────────────────
// Config: { "pattern": "regex_string", "block_on_match": true }

func evalRegexFilter(r Rule, text string, stage string) Result {
	pattern, _ := r.Config["pattern"].(string)
	if pattern == "" {
		return Result{Passed: true, Kind: r.Kind, Stage: stage}
	}

	re, err := regexp.Compile(pattern)
	if err != nil {
		return Result{Passed: true, Kind: r.Kind, Stage: stage, Message: "invalid regex pattern: " + err.Error()}
	}

	blockOnMatch := true
	if b, ok := r.Config["block_on_match"].(bool); ok {
		blockOnMatch = b
	}

	matched := re.MatchString(text)
	if matched && blockOnMatch {
		return Result{Passed: false, Kind: r.Kind, Stage: stage, Message: "content matched blocked regex pattern"}
	}
	if !matched && !blockOnMatch {
		return Result{Passed: false, Kind: r.Kind, Stage: stage, Message: "content did not match required regex pattern"}
	}

	return Result{Passed: true, Kind: r.Kind, Stage: stage}
}

// ── Prompt Injection Detection ──────────────────────────────
// Config: { "sensitivity": "high" | "medium" | "low" }

var injectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)ignore\s+(all\s+)?(previous|prior|above)\s+(instructions?|prompts?|rules?|directions?)`),
	regexp.MustCompile(`(?i)disregard\s+(all\s+)?(previous|prior|above)\s+(instructions?|prompts?|rules?)`),
	regexp.MustCompile(`(?i)forget\s+(all\s+)?(previous|prior|above|your)\s+(instructions?|prompts?|rules?|context)`),
	regexp.MustCompile(`(?i)you\s+are\s+now\s+(a|an|my)\s+`),
	regexp.MustCompile(`(?i)new\s+instructions?:\s*`),
	regexp.MustCompile(`(?i)system\s*:\s*you\s+are`),
	regexp.MustCompile(`(?i)\bdo\s+anything\s+now\b`),
	regexp.MustCompile(`(?i)\bjailbreak\b`),
	regexp.MustCompile(`(?i)pretend\s+you\s+(are|have)\s+no\s+(restrictions?|rules?|guidelines?)`),
	regexp.MustCompile(`(?i)act\s+as\s+if\s+you\s+have\s+no\s+(restrictions?|rules?|filters?)`),
}

var highSensitivityPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)override\s+(your|the|all)\s+`),
	regexp.MustCompile(`(?i)bypass\s+(your|the|all)\s+`),
	regexp.MustCompile(`(?i)reveal\s+(your|the)\s+(system\s+)?(prompt|instructions?)`),
	regexp.MustCompile(`(?i)what\s+(is|are)\s+your\s+(system\s+)?(prompt|instructions?|rules?)`),
	regexp.MustCompile(`(?i)repeat\s+(your|the)\s+(system\s+)?(prompt|instructions?)\s+verbatim`),
}

func evalPromptInjection(r Rule, text string, stage string) Result {
	sensitivity, _ := r.Config["sensitivity"].(string)
	if sensitivity == "" {
		sensitivity = "medium"
	}

	for _, re := range injectionPatterns {
		if re.MatchString(text) {
			return Result{Passed: false, Kind: r.Kind, Stage: stage, Message: "potential prompt injection detected"}
		}
	}

	if sensitivity == "high" {
		for _, re := range highSensitivityPatterns {
			if re.MatchString(text) {
				return Result{Passed: false, Kind: r.Kind, Stage: stage, Message: "potential prompt injection detected (high sensitivity)"}
			}
		}
	}

	return Result{Passed: true, Kind: r.Kind, Stage: stage}
}

// ── Helpers ─────────────────────────────────────────────────

func getIntConfig(config map[string]interface{}, key string) (int, bool) {
	v, ok := config[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	case int64:
		return int(n), true
	default:
		return 0, false
	}
}

// DefaultRules is the baseline rule set applied to every Persistent Agent
// completion: reject prompt injection attempts on input, and catch PII
// that slips into a model response on output. Deployments needing
// content/topic filters supply their own Rule slice; this baseline is
// deliberately small since every caller has already cleared the auth
// chain.
func DefaultRules() []Rule {
	return []Rule{
		{Kind: PromptInjection, Stage: StageInput, Enabled: true, Config: map[string]interface{}{"sensitivity": "medium"}},
		{Kind: PIIDetection, Stage: StageOutput, Enabled: true, Config: map[string]interface{}{}},
	}
}
