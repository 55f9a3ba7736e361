package parser

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtract_Priority(t *testing.T) {
	d := NewCodeDetector()

	tests := []struct {
		name      string
		subject   string
		body      string
		code      string
		patternID string
	}{
		{"english keyword", "", "Your code is 123456", "123456", PatternKeywordEN},
		{"chinese keyword", "", "您的验证码是 123456", "123456", PatternKeywordIntl},
		{"russian keyword", "", "Код подтверждения: 4821", "4821", PatternKeywordIntl},
		{"dash grouped", "", "Your verification code: 123-456", "123456", PatternDashGrouped},
		{"alphanumeric", "", "Your login code: G7K2QX", "G7K2QX", PatternAlphanumeric},
		{"imperative", "", "Please enter 884422 to verify your account", "884422", PatternImperative},
		{"trailing", "", "731902 is your Acme sign-in number", "731902", PatternTrailing},
		{"standalone", "", "Acme: 509113", "509113", PatternStandaloneShort},
		{"subject only", "Your code is 246810", "", "246810", PatternKeywordEN},
		{"keyword beats later dash group", "", "Call 555-123 later. Your code is 998877", "998877", PatternKeywordEN},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := d.Extract(tt.subject, tt.body)
			require.NotNil(t, got)
			assert.Equal(t, tt.code, got.Code)
			assert.Equal(t, tt.patternID, got.PatternID)
		})
	}
}

func TestExtract_NoCandidate(t *testing.T) {
	d := NewCodeDetector()

	assert.Nil(t, d.Extract("", ""))
	assert.Nil(t, d.Extract("Weekly newsletter", "Nothing to see here, just words."))
	assert.Nil(t, d.Extract("", "Your code is ready"), "alphanumeric rule needs a digit")
	assert.Nil(t, d.Extract("", "Order 123456 and order 654321 shipped"), "standalone rule needs a single run")

	long := "Your order 123456 shipped. " + strings.Repeat("Thanks for shopping with us. ", 10)
	assert.Nil(t, d.Extract("", long), "standalone rule only applies to short messages")
}

func TestExtract_ConfidenceMonotonicity(t *testing.T) {
	d := NewCodeDetector()

	warned := d.Extract("", "Your code is 123456. Do not share this with anyone.")
	plain := d.Extract("", "Your code is 654321")
	require.NotNil(t, warned)
	require.NotNil(t, plain)

	assert.Greater(t, warned.Confidence, plain.Confidence)
	assert.LessOrEqual(t, warned.Confidence, 1.0)
}

func TestExtract_ConfidenceBonuses(t *testing.T) {
	d := NewCodeDetector()

	sixDigits := d.Extract("", "Your code is 123456")
	fourDigits := d.Extract("", "Your code is 1234")
	require.NotNil(t, sixDigits)
	require.NotNil(t, fourDigits)
	assert.Greater(t, sixDigits.Confidence, fourDigits.Confidence)

	noKeyword := d.Extract("", "Acme: 509113")
	require.NotNil(t, noKeyword)
	assert.InDelta(t, 0.7, noKeyword.Confidence, 0.001)

	long := d.Extract("", "Your code is 123456. "+strings.Repeat("Lorem ipsum dolor sit amet. ", 10))
	require.NotNil(t, long)
	assert.Less(t, long.Confidence, sixDigits.Confidence)
}

func TestNormalizeCode(t *testing.T) {
	assert.Equal(t, "123456", NormalizeCode("123-456"))
	assert.Equal(t, "123456", NormalizeCode(" 123 456 "))
	assert.Equal(t, "AB12", NormalizeCode("AB-12"))
}
