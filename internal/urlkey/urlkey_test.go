package urlkey

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReplaceOpenKey(t *testing.T) {
	tests := []struct {
		name  string
		url   string
		token string
		want  string
	}{
		{
			name:  "hash param replaced in order",
			url:   "http://x/y#a=1&openKey=OLD&b=2",
			token: "NEW",
			want:  "http://x/y#a=1&openKey=NEW&b=2",
		},
		{
			name:  "query param replaced",
			url:   "https://h/p?a=1&openKey=old&z=9#/r",
			token: "tok",
			want:  "https://h/p?a=1&openKey=tok&z=9#/r",
		},
		{
			name:  "query duplicates collapsed",
			url:   "https://h/p?openKey=1&a=2&openKey=3",
			token: "n",
			want:  "https://h/p?openKey=n&a=2",
		},
		{
			name:  "appended to hash not query",
			url:   "https://h/p?a=1#x=1",
			token: "k",
			want:  "https://h/p?a=1#x=1&openKey=k",
		},
		{
			name:  "hash route gets query separator",
			url:   "https://h/app/#/page",
			token: "k",
			want:  "https://h/app/#/page?openKey=k",
		},
		{
			name:  "hash route param replaced",
			url:   "https://h/app/#/page?openKey=old&x=1",
			token: "new",
			want:  "https://h/app/#/page?openKey=new&x=1",
		},
		{
			name:  "no hash creates one",
			url:   "https://h/p",
			token: "k",
			want:  "https://h/p#openKey=k",
		},
		{
			name:  "empty hash",
			url:   "https://h/p#",
			token: "k",
			want:  "https://h/p#openKey=k",
		},
		{
			name:  "token is encoded",
			url:   "https://h/p#a=1",
			token: "a b/c",
			want:  "https://h/p#a=1&openKey=a%20b%2Fc",
		},
		{
			name:  "hash values re-encoded",
			url:   "https://h/p#msg=hello%20world&openKey=o",
			token: "n",
			want:  "https://h/p#msg=hello%20world&openKey=n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ReplaceOpenKey(tt.url, tt.token))
		})
	}
}

func TestReplaceOpenKeyFallback(t *testing.T) {
	tests := []struct {
		name string
		url  string
		want string
	}{
		{"relative hash replace", "/app#/r?openKey=old&x=1", "/app#/r?openKey=T&x=1"},
		{"relative hash append route", "/app#/r", "/app#/r?openKey=T"},
		{"relative hash append params", "/app#/r?x=1", "/app#/r?x=1&openKey=T"},
		{"no hash no query", "/app", "/app?openKey=T"},
		{"no hash with query", "/app?a=1", "/app?a=1&openKey=T"},
		{"lookalike key untouched", "/app#xopenKey=1", "/app#xopenKey=1&openKey=T"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := Parse(tt.url)
			assert.False(t, m.Structured())
			assert.Equal(t, tt.want, m.WithOpenKey("T").String())
		})
	}
}

func TestParseRoundTrip(t *testing.T) {
	for _, raw := range []string{
		"https://h/p?a=1#/r?b=2",
		"/rel",
		"https://h/p#",
		"https://h/p?",
	} {
		assert.Equal(t, raw, Parse(raw).String())
	}
}

func TestEncodeURIComponent(t *testing.T) {
	assert.Equal(t, "a%20b", EncodeURIComponent("a b"))
	assert.Equal(t, "!'()*-_.~", EncodeURIComponent("!'()*-_.~"))
	assert.Equal(t, "%3D%26%3F%23", EncodeURIComponent("=&?#"))
	assert.Equal(t, "%E4%B8%AD", EncodeURIComponent("中"))
}
