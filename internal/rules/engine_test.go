package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGlob(t *testing.T) {
	tests := []struct {
		s, pattern string
		want       bool
	}{
		{"anything", "*", true},
		{"", "*", true},
		{"", "", true},
		{"a", "", false},
		{"https://h/openKey/key?x=1", "https://h/openKey/key*", true},
		{"https://h/openKey/keys", "https://h/openKey/key*", true},
		{"https://h/openKey/ke", "https://h/openKey/key*", false},
		{"https://h/a/b/c", "https://*/c", true},
		{"https://h/a/b/c", "https://*/d", false},
		{"abc", "a?c", true},
		{"ac", "a?c", false},
		{"aXbYc", "a*b*c", true},
		{"abcbc", "a*bc", true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Glob(tt.s, tt.pattern), "%q ~ %q", tt.s, tt.pattern)
	}
}

func TestURLPattern(t *testing.T) {
	m := URLPattern("https://cdszzx.tfsmy.com/cbase/bud-cloud-governance-biz/openKey/key*")
	assert.True(t, m.Match(Ctx{URL: "https://cdszzx.tfsmy.com/cbase/bud-cloud-governance-biz/openKey/key?app=1"}))
	assert.False(t, m.Match(Ctx{URL: "https://cdszzx.tfsmy.com/cbase/other"}))
	assert.True(t, Matcher{}.Match(Ctx{URL: "x"}))
}

func TestMatcherConditions(t *testing.T) {
	m := Matcher{
		AllOf: []Condition{
			{Type: "url", Mode: "prefix", Pattern: "https://h/"},
			{Type: "method", Values: []string{"get"}},
		},
		AnyOf: []Condition{
			{Type: "header", Key: "Authorization", Op: "contains", Value: "Bearer"},
			{Type: "query", Key: "token", Op: "regex", Value: `^\d+$`},
		},
		NoneOf: []Condition{
			{Type: "url", Mode: "regex", Pattern: `\.js$`},
		},
	}

	ok := Ctx{URL: "https://h/api", Method: "GET", Headers: map[string]string{"authorization": "Bearer x"}}
	assert.True(t, m.Match(ok))

	byQuery := Ctx{URL: "https://h/api", Method: "GET", Query: map[string]string{"token": "123"}}
	assert.True(t, m.Match(byQuery))

	assert.False(t, m.Match(Ctx{URL: "https://h/api", Method: "POST", Headers: ok.Headers}))
	assert.False(t, m.Match(Ctx{URL: "https://h/app.js", Method: "GET", Headers: ok.Headers}))
	assert.False(t, m.Match(Ctx{URL: "https://h/api", Method: "GET"}))
}

func TestConditionOps(t *testing.T) {
	c := Ctx{URL: "https://h/x", Headers: map[string]string{"x-a": "v1"}}
	assert.True(t, cond(c, Condition{Type: "url", Mode: "exact", Pattern: "https://h/x"}))
	assert.True(t, cond(c, Condition{Type: "header", Key: "X-A", Op: "equals", Value: "v1"}))
	assert.True(t, cond(c, Condition{Type: "header", Key: "x-a"}))
	assert.False(t, cond(c, Condition{Type: "header", Key: "x-b"}))
	assert.False(t, cond(c, Condition{Type: "url", Mode: "regex", Pattern: "("}))
	assert.False(t, cond(c, Condition{Type: "cookie", Key: "a"}))
}
