package rules

import (
	"regexp"
	"strings"
	"sync"
)

// Condition 单个匹配条件
type Condition struct {
	Type    string   `json:"type" yaml:"type"` // url | method | header | query
	Mode    string   `json:"mode,omitempty" yaml:"mode,omitempty"`
	Pattern string   `json:"pattern,omitempty" yaml:"pattern,omitempty"`
	Values  []string `json:"values,omitempty" yaml:"values,omitempty"`
	Key     string   `json:"key,omitempty" yaml:"key,omitempty"`
	Op      string   `json:"op,omitempty" yaml:"op,omitempty"`
	Value   string   `json:"value,omitempty" yaml:"value,omitempty"`
}

// Matcher 判断请求是否属于需要捕获的 openKey 请求
type Matcher struct {
	AllOf  []Condition `json:"allOf,omitempty" yaml:"allOf,omitempty"`
	AnyOf  []Condition `json:"anyOf,omitempty" yaml:"anyOf,omitempty"`
	NoneOf []Condition `json:"noneOf,omitempty" yaml:"noneOf,omitempty"`
}

// Ctx 匹配上下文，header 名需为小写
type Ctx struct {
	URL     string
	Method  string
	Headers map[string]string
	Query   map[string]string
}

// URLPattern 以 glob 模式匹配 URL 的 Matcher
func URLPattern(pattern string) Matcher {
	return Matcher{AllOf: []Condition{{Type: "url", Mode: "glob", Pattern: pattern}}}
}

// Capture URL glob 与额外条件的组合，extra 的 AllOf 追加在 URL 条件之后
func Capture(pattern string, extra Matcher) Matcher {
	m := URLPattern(pattern)
	m.AllOf = append(m.AllOf, extra.AllOf...)
	m.AnyOf = extra.AnyOf
	m.NoneOf = extra.NoneOf
	return m
}

// Match 空 Matcher 匹配所有请求
func (m Matcher) Match(ctx Ctx) bool {
	ok := true
	if len(m.AllOf) > 0 {
		ok = ok && allOf(ctx, m.AllOf)
	}
	if len(m.AnyOf) > 0 {
		ok = ok && anyOf(ctx, m.AnyOf)
	}
	if len(m.NoneOf) > 0 {
		ok = ok && !anyOf(ctx, m.NoneOf)
	}
	return ok
}

func allOf(ctx Ctx, cs []Condition) bool {
	for i := range cs {
		if !cond(ctx, cs[i]) {
			return false
		}
	}
	return true
}

func anyOf(ctx Ctx, cs []Condition) bool {
	for i := range cs {
		if cond(ctx, cs[i]) {
			return true
		}
	}
	return false
}

func cond(ctx Ctx, c Condition) bool {
	switch c.Type {
	case "url":
		switch c.Mode {
		case "prefix":
			return strings.HasPrefix(ctx.URL, c.Pattern)
		case "regex":
			return matchRegex(ctx.URL, c.Pattern)
		case "exact":
			return ctx.URL == c.Pattern
		default:
			return Glob(ctx.URL, c.Pattern)
		}
	case "method":
		for _, v := range c.Values {
			if strings.EqualFold(ctx.Method, v) {
				return true
			}
		}
		return false
	case "header":
		v, ok := ctx.Headers[strings.ToLower(c.Key)]
		return ok && op(v, c)
	case "query":
		v, ok := ctx.Query[strings.ToLower(c.Key)]
		return ok && op(v, c)
	default:
		return false
	}
}

func op(v string, c Condition) bool {
	switch c.Op {
	case "equals":
		return v == c.Value
	case "contains":
		return strings.Contains(v, c.Value)
	case "regex":
		return matchRegex(v, c.Value)
	default:
		return true
	}
}

type cache struct {
	mu sync.RWMutex
	m  map[string]*regexp.Regexp
}

var regexCache = &cache{m: make(map[string]*regexp.Regexp)}

func (c *cache) Get(pattern string) (*regexp.Regexp, error) {
	c.mu.RLock()
	re, ok := c.m[pattern]
	c.mu.RUnlock()
	if ok {
		return re, nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.m[pattern] = re
	c.mu.Unlock()
	return re, nil
}

func matchRegex(s, pattern string) bool {
	re, err := regexCache.Get(pattern)
	if err != nil {
		return false
	}
	return re.MatchString(s)
}

// Glob 通配匹配：* 匹配任意个字符，? 匹配单个字符，与 Fetch.enable 的 urlPattern 语义一致
func Glob(s, pattern string) bool {
	si, pi := 0, 0
	star, mark := -1, 0
	for si < len(s) {
		switch {
		case pi < len(pattern) && (pattern[pi] == '?' || pattern[pi] == s[si]):
			si++
			pi++
		case pi < len(pattern) && pattern[pi] == '*':
			star = pi
			mark = si
			pi++
		case star >= 0:
			pi = star + 1
			mark++
			si = mark
		default:
			return false
		}
	}
	for pi < len(pattern) && pattern[pi] == '*' {
		pi++
	}
	return pi == len(pattern)
}
