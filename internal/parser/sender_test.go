package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatchesPattern(t *testing.T) {
	tests := []struct {
		sender  string
		pattern string
		want    bool
	}{
		{"noreply@acme.com", "*@acme.com", true},
		{"noreply@other.com", "*@acme.com", false},
		{"NoReply@ACME.com", "*@acme.com", true},
		{"noreply@acme.com", "noreply@acme.???", true},
		{"noreply@acme.co", "noreply@acme.???", false},
		{"noreplyXacme.com", "noreply@acme.com", false},
		{"noreply@acmeXcom", "noreply@acme.com", false},
		{"a+b@acme.com", "a+b@*", true},
		{"security@acme.com.evil.io", "*@acme.com", false},
		{"", "*", true},
	}

	for _, tt := range tests {
		t.Run(tt.sender+" "+tt.pattern, func(t *testing.T) {
			assert.Equal(t, tt.want, MatchesPattern(tt.sender, tt.pattern))
		})
	}
}

func TestMentionsSender(t *testing.T) {
	assert.True(t, MentionsSender("Welcome to ACME Inc", "acme inc"))
	assert.True(t, MentionsSender("Your Acme verification code", "Acme Inc"), "token match")
	assert.False(t, MentionsSender("Your Globex verification code", "Acme Inc"))
	assert.False(t, MentionsSender("Co-op code 1234", "AB Co"), "tokens shorter than 3 chars are ignored")
	assert.True(t, MentionsSender("anything", ""), "empty hint is not a constraint")
}
