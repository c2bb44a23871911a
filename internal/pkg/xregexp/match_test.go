package xregexp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatchString(t *testing.T) {
	tests := []struct {
		name     string
		pattern  string
		str      string
		expected bool
	}{
		{
			name:     "exact match",
			pattern:  "finance-reports",
			str:      "finance-reports",
			expected: true,
		},
		{
			name:     "exact no match",
			pattern:  "finance-reports",
			str:      "finance-invoices",
			expected: false,
		},
		{
			name:     "wildcard match",
			pattern:  "finance-.*",
			str:      "finance-reports",
			expected: true,
		},
		{
			name:     "wildcard match multiple segments",
			pattern:  "finance-.*",
			str:      "finance-reports-q3",
			expected: true,
		},
		{
			name:     "wildcard no match",
			pattern:  "finance-.*",
			str:      "patient-records",
			expected: false,
		},
		{
			name:     "character class",
			pattern:  "tier-[12]",
			str:      "tier-2",
			expected: true,
		},
		{
			name:     "character class no match",
			pattern:  "tier-[12]",
			str:      "tier-3",
			expected: false,
		},
		{
			name:     "alternation",
			pattern:  "(patient|clinical)-records",
			str:      "clinical-records",
			expected: true,
		},
		{
			name:     "complex pattern",
			pattern:  "backup-[a-z]+(-archive)?",
			str:      "backup-daily-archive",
			expected: true,
		},
		{
			name:     "empty pattern matches empty string",
			pattern:  "",
			str:      "",
			expected: true,
		},
		{
			name:     "empty pattern no match non-empty",
			pattern:  "",
			str:      "finance-reports",
			expected: false,
		},
		{
			name:     "invalid regex returns false",
			pattern:  "finance-[",
			str:      "finance-[",
			expected: false,
		},
		{
			name:     "invalid regex returns false for any string",
			pattern:  "finance-[",
			str:      "finance-reports",
			expected: false,
		},
		{
			name:     "escaped dot literal",
			pattern:  "records\\.v2",
			str:      "records.v2",
			expected: true,
		},
		{
			name:     "escaped dot no match",
			pattern:  "records\\.v2",
			str:      "records-v2",
			expected: false,
		},
		{
			name:     "anchors are implicit",
			pattern:  "patient-records",
			str:      "eu-patient-records-v2",
			expected: false,
		},
		{
			name:     "partial match needs explicit wildcards",
			pattern:  ".*patient-records.*",
			str:      "eu-patient-records-v2",
			expected: true,
		},
		{
			name:     "lookahead exclusion no match",
			pattern:  "(?i)^(?=.*secret)(?!.*redacted).*$",
			str:      "secret-ledger-redacted",
			expected: false,
		},
		{
			name:     "lookahead exclusion match",
			pattern:  "(?i)^(?=.*secret)(?!.*redacted).*$",
			str:      "secret-ledger",
			expected: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := MatchString(tt.pattern, tt.str)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestSearchString(t *testing.T) {
	tests := []struct {
		name     string
		pattern  string
		str      string
		expected bool
	}{
		{
			name:     "literal substring",
			pattern:  "records",
			str:      "patient-records-2024",
			expected: true,
		},
		{
			name:     "literal absent",
			pattern:  "records",
			str:      "finance-invoices",
			expected: false,
		},
		{
			name:     "unanchored regex inside text",
			pattern:  `\d{3}-\d{2}-\d{4}`,
			str:      "ssn is 123-45-6789 thanks",
			expected: true,
		},
		{
			name:     "case-insensitive modifier",
			pattern:  "(?i)password",
			str:      "My PASSWORD is set",
			expected: true,
		},
		{
			name:     "invalid pattern never matches",
			pattern:  "([invalid",
			str:      "([invalid",
			expected: false,
		},
		{
			name:     "empty string",
			pattern:  "x",
			str:      "",
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := SearchString(tt.pattern, tt.str)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestFilter(t *testing.T) {
	tests := []struct {
		name     string
		items    []string
		pattern  string
		expected []string
	}{
		{
			name:     "exact match single",
			items:    []string{"finance-reports", "finance-invoices", "patient-records"},
			pattern:  "finance-reports",
			expected: []string{"finance-reports"},
		},
		{
			name:     "wildcard match multiple",
			items:    []string{"finance-reports", "finance-invoices", "patient-records"},
			pattern:  "finance-.*",
			expected: []string{"finance-reports", "finance-invoices"},
		},
		{
			name:     "no matches",
			items:    []string{"finance-reports", "finance-invoices", "patient-records"},
			pattern:  "legal-.*",
			expected: []string{},
		},
		{
			name:     "empty pattern",
			items:    []string{"finance-reports", "finance-invoices"},
			pattern:  "",
			expected: []string{},
		},
		{
			name:     "empty items",
			items:    []string{},
			pattern:  "finance-.*",
			expected: []string{},
		},
		{
			name:     "character class",
			items:    []string{"tier-1", "tier-2", "tier-3"},
			pattern:  "tier-[12]",
			expected: []string{"tier-1", "tier-2"},
		},
		{
			name:     "invalid regex returns empty",
			items:    []string{"finance-reports", "finance-["},
			pattern:  "finance-[",
			expected: []string{},
		},
		{
			name:     "alternation",
			items:    []string{"finance-reports", "patient-records", "backup-daily", "legal-briefs"},
			pattern:  "(finance-reports|backup-daily)",
			expected: []string{"finance-reports", "backup-daily"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Filter(tt.items, tt.pattern)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestContainsRegexChars(t *testing.T) {
	tests := []struct {
		name     string
		pattern  string
		expected bool
	}{
		{
			name:     "no regex chars",
			pattern:  "finance-reports",
			expected: false,
		},
		{
			name:     "asterisk",
			pattern:  "finance-*",
			expected: true,
		},
		{
			name:     "question mark",
			pattern:  "finance-?",
			expected: true,
		},
		{
			name:     "brackets",
			pattern:  "tier-[12]",
			expected: true,
		},
		{
			name:     "braces",
			pattern:  "tier-{1,2}",
			expected: true,
		},
		{
			name:     "parentheses",
			pattern:  "tier-(1)",
			expected: true,
		},
		{
			name:     "caret",
			pattern:  "^finance",
			expected: true,
		},
		{
			name:     "dollar",
			pattern:  "finance$",
			expected: true,
		},
		{
			name:     "dot",
			pattern:  "records.v2",
			expected: true,
		},
		{
			name:     "pipe",
			pattern:  "finance|legal",
			expected: true,
		},
		{
			name:     "backslash",
			pattern:  "finance\\-reports",
			expected: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := containsRegexChars(tt.pattern)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestPatternCacheTypes(t *testing.T) {
	exactPattern := "finance-reports"
	cached := getOrCreatePattern(exactPattern)
	require.NotNil(t, cached)
	assert.True(t, cached.exactMatch)
	assert.Nil(t, cached.regex)
	assert.False(t, cached.compileErr)

	regexPattern := "finance-.*"
	cached = getOrCreatePattern(regexPattern)
	require.NotNil(t, cached)
	assert.False(t, cached.exactMatch)
	assert.NotNil(t, cached.regex)
	assert.False(t, cached.compileErr)

	invalidPattern := "finance-["
	cached = getOrCreatePattern(invalidPattern)
	require.NotNil(t, cached)
	assert.False(t, cached.exactMatch)
	assert.Nil(t, cached.regex)
	assert.True(t, cached.compileErr)
}

func TestEnsureAnchored(t *testing.T) {
	tests := []struct {
		name     string
		pattern  string
		expected string
	}{
		{
			name:     "no anchors",
			pattern:  "finance-.*",
			expected: "^finance-.*$",
		},
		{
			name:     "start anchor only",
			pattern:  "^finance-.*",
			expected: "^finance-.*$",
		},
		{
			name:     "end anchor only",
			pattern:  "finance-.*$",
			expected: "^finance-.*$",
		},
		{
			name:     "both anchors",
			pattern:  "^finance-.*$",
			expected: "^finance-.*$",
		},
		{
			name:     "case insensitive with start anchor",
			pattern:  "(?i)^finance-.*",
			expected: "(?i)^finance-.*$",
		},
		{
			name:     "case insensitive with both anchors",
			pattern:  "(?i)^finance-.*$",
			expected: "(?i)^finance-.*$",
		},
		{
			name:     "lookahead pattern with anchors",
			pattern:  "(?i)^(?=.*secret)(?!.*redacted).*$",
			expected: "(?i)^(?=.*secret)(?!.*redacted).*$",
		},
		{
			name:     "multiline modifier with start anchor",
			pattern:  "(?m)^finance-.*",
			expected: "(?m)^finance-.*$",
		},
		{
			name:     "multiple modifiers with start anchor",
			pattern:  "(?is)^finance-.*",
			expected: "(?is)^finance-.*$",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ensureAnchored(tt.pattern)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func BenchmarkMatchStringExact(b *testing.B) {
	pattern := "finance-reports"
	str := "finance-reports"

	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		MatchString(pattern, str)
	}
}

func BenchmarkMatchStringRegex(b *testing.B) {
	pattern := "backup-[a-z]+(-archive)?"
	str := "backup-daily-archive"

	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		MatchString(pattern, str)
	}
}

func BenchmarkFilterByPattern(b *testing.B) {
	items := []string{
		"finance-reports", "finance-invoices", "patient-records", "clinical-records",
		"backup-daily", "backup-weekly", "legal-briefs", "legal-contracts",
	}
	pattern := "finance-.*"

	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		Filter(items, pattern)
	}
}
