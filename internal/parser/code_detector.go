package parser

import (
	"math"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/mixelka/otprelay/pkg/models"
)

// Pattern ids, in priority order
const (
	PatternKeywordEN       = "keyword_en"
	PatternKeywordIntl     = "keyword_intl"
	PatternAlphanumeric    = "alphanumeric"
	PatternDashGrouped     = "dash_grouped"
	PatternImperative      = "imperative"
	PatternTrailing        = "trailing"
	PatternStandaloneShort = "standalone_short"
)

const (
	baseConfidence     = 0.5
	keywordBonus       = 0.2
	sixDigitBonus      = 0.1
	doNotShareBonus    = 0.1
	shortMessageBonus  = 0.1
	shortMessageLength = 200

	// standalone 6-digit fallback only applies to messages this short
	standaloneMaxLength = 160
)

var (
	securityVocabRegex = regexp.MustCompile(`(?i)(?:\bcode\b|\botp\b|\bpin\b|verif|passcode|password|security|login|log[- ]in|sign[- ]?in|authenticat|\b2fa\b|验证|校验|动态码|код|пароль|подтвержд|c[óo]digo|best[äa]tigung)`)
	doNotShareRegex    = regexp.MustCompile(`(?i)(?:do\s+not\s+share|don'?t\s+share|never\s+share|not\s+share\s+this|не\s+сообщайте|никому\s+не|请勿|切勿|不要(?:告诉|泄露|透露|分享))`)
	sixDigitRegex      = regexp.MustCompile(`^\d{6}$`)
)

// CodeDetector extracts a single verification code from message text.
// Rules are tried in order and the first one that yields a valid code wins.
type CodeDetector struct {
	patterns []*codePattern
}

type codePattern struct {
	ID    string
	Regex *regexp.Regexp

	maxLength int               // rule only applies to texts up to this many runes
	unique    bool              // rule requires exactly one occurrence
	valid     func(string) bool // optional post-check of the raw capture
}

// NewCodeDetector creates a new code detector
func NewCodeDetector() *CodeDetector {
	return &CodeDetector{
		patterns: []*codePattern{
			// "Your code is 123456", "PIN: 1234"
			{
				ID:    PatternKeywordEN,
				Regex: regexp.MustCompile(`(?i)\b(?:code|otp|pin|passcode|password)\b(?:\s+is)?\s*[:：#=-]?\s*(\d{4,8})\b`),
			},
			// "您的验证码是 123456", "Код подтверждения: 1234"
			{
				ID:    PatternKeywordIntl,
				Regex: regexp.MustCompile(`(?i)(?:验证码|校验码|动态码|код(?:\s+подтверждения)?|пароль|c[óo]digo(?:\s+de\s+verifica[çc][ãa]o)?|best[äa]tigungscode|code\s+de\s+v[ée]rification)\s*(?:是|为|為|:|：|-|es|ist|est)?\s*[:：]?\s*(\d{4,8})\b`),
			},
			// "code: G7K2QX"
			{
				ID:    PatternAlphanumeric,
				Regex: regexp.MustCompile(`(?i)\b(?:code|otp|pin|passcode)\b(?:\s+is)?\s*[:：#=-]?\s*([A-Z0-9]{4,10})\b`),
				valid: containsDigit,
			},
			// "123-456", "1234-5678", "123 456"
			{
				ID:    PatternDashGrouped,
				Regex: regexp.MustCompile(`\b(\d{3}-\d{3}|\d{4}-\d{4}|\d{3} \d{3})\b`),
			},
			// "Enter 123456 to verify"
			{
				ID:    PatternImperative,
				Regex: regexp.MustCompile(`(?i)\b(?:enter|use|type|input)\s+(?:the\s+code\s+)?(\d{4,8})\b`),
			},
			// "123456 is your login code"
			{
				ID:    PatternTrailing,
				Regex: regexp.MustCompile(`(?i)\b(\d{4,8})\s+is\s+(?:your|the)\b`),
			},
			// A lone 6-digit number in a short message
			{
				ID:        PatternStandaloneShort,
				Regex:     regexp.MustCompile(`\b(\d{6})\b`),
				maxLength: standaloneMaxLength,
				unique:    true,
			},
		},
	}
}

// Extract returns the best-guess code in a message, or nil if no rule matched
func (d *CodeDetector) Extract(subject, body string) *models.ExtractedCandidate {
	text := strings.TrimSpace(strings.TrimSpace(subject) + "\n" + body)
	if text == "" {
		return nil
	}
	length := utf8.RuneCountInString(text)

	for _, pattern := range d.patterns {
		if pattern.maxLength > 0 && length > pattern.maxLength {
			continue
		}

		code, ok := pattern.find(text)
		if !ok {
			continue
		}

		return &models.ExtractedCandidate{
			Code:       code,
			Confidence: score(text, length, code),
			PatternID:  pattern.ID,
		}
	}

	return nil
}

// find returns the first valid normalized capture of the pattern
func (p *codePattern) find(text string) (string, bool) {
	matches := p.Regex.FindAllStringSubmatch(text, -1)
	if p.unique && len(matches) != 1 {
		return "", false
	}

	for _, match := range matches {
		if len(match) < 2 {
			continue
		}
		if p.valid != nil && !p.valid(match[1]) {
			continue
		}
		code := NormalizeCode(match[1])
		if code != "" {
			return code, true
		}
	}
	return "", false
}

// score computes the confidence heuristic for a code found in text
func score(text string, length int, code string) float64 {
	confidence := baseConfidence

	if securityVocabRegex.MatchString(text) {
		confidence += keywordBonus
	}
	if sixDigitRegex.MatchString(code) {
		confidence += sixDigitBonus
	}
	if doNotShareRegex.MatchString(text) {
		confidence += doNotShareBonus
	}
	if length <= shortMessageLength {
		confidence += shortMessageBonus
	}

	return math.Min(1.0, math.Round(confidence*100)/100)
}

// NormalizeCode strips dashes and whitespace from a captured code
func NormalizeCode(raw string) string {
	return strings.Map(func(r rune) rune {
		if r == '-' || unicode.IsSpace(r) {
			return -1
		}
		return r
	}, raw)
}

func containsDigit(s string) bool {
	return strings.ContainsFunc(s, unicode.IsDigit)
}
