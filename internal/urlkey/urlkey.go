// Package urlkey 在 URL 的查询串或 hash 参数中写入 openKey。
//
// URL 先按文本切分为 base、query、fragment 三段；能被结构化解析（带 scheme）的 URL 走
// 结构化策略，否则走字符串回退策略。两种策略共用同一套 fragment 参数处理。
package urlkey

import (
	"net/url"
	"strings"
)

// ParamName 写入的参数名
const ParamName = "openKey"

// Model URL 的文本分段
type Model struct {
	Base        string
	Query       string
	Fragment    string
	HasQuery    bool
	HasFragment bool

	structured bool
}

// Parse 切分 URL，并记录是否可以结构化解析
func Parse(raw string) Model {
	var m Model
	rest := raw
	if i := strings.IndexByte(rest, '#'); i >= 0 {
		m.Fragment = rest[i+1:]
		m.HasFragment = true
		rest = rest[:i]
	}
	if i := strings.IndexByte(rest, '?'); i >= 0 {
		m.Query = rest[i+1:]
		m.HasQuery = true
		rest = rest[:i]
	}
	m.Base = rest

	u, err := url.Parse(raw)
	m.structured = err == nil && u.Scheme != ""
	return m
}

// Structured 是否可按结构化 URL 处理
func (m Model) Structured() bool { return m.structured }

func (m Model) String() string {
	var b strings.Builder
	b.WriteString(m.Base)
	if m.HasQuery {
		b.WriteByte('?')
		b.WriteString(m.Query)
	}
	if m.HasFragment {
		b.WriteByte('#')
		b.WriteString(m.Fragment)
	}
	return b.String()
}

// WithOpenKey 返回写入 openKey 后的新模型
func (m Model) WithOpenKey(token string) Model {
	if m.structured {
		return m.structuredSet(token)
	}
	return m.fallbackSet(token)
}

// ReplaceOpenKey 替换或追加 URL 中的 openKey 参数
func ReplaceOpenKey(rawURL, token string) string {
	return Parse(rawURL).WithOpenKey(token).String()
}

// structuredSet 依次尝试：查询串已有 openKey → hash 参数已有 openKey → 追加到 hash
func (m Model) structuredSet(token string) Model {
	if q, ok := replaceQueryParam(m.Query, ParamName, token); m.HasQuery && ok {
		m.Query = q
		return m
	}

	if m.Fragment != "" {
		hp := parseHashParams(m.Fragment)
		if hp.has(ParamName) {
			hp.set(ParamName, token)
			m.Fragment = hp.encode()
			return m
		}
	}

	m.Fragment = appendFragmentParam(m.Fragment, token)
	m.HasFragment = true
	return m
}

// fallbackSet 不解析查询串：有 hash 时原地替换或追加到 hash，无 hash 时追加到整个 URL
func (m Model) fallbackSet(token string) Model {
	if !m.HasFragment {
		if m.HasQuery {
			if m.Query != "" && !strings.HasSuffix(m.Query, "&") {
				m.Query += "&"
			}
			m.Query += ParamName + "=" + EncodeURIComponent(token)
		} else {
			m.Query = ParamName + "=" + EncodeURIComponent(token)
			m.HasQuery = true
		}
		return m
	}

	if f, ok := replaceInPlace(m.Fragment, token); ok {
		m.Fragment = f
		return m
	}
	m.Fragment = appendFragmentParam(m.Fragment, token)
	return m
}

// replaceQueryParam 只改写第一个同名参数的值，其余同名参数删除，其他片段原样保留
func replaceQueryParam(query, key, value string) (string, bool) {
	if query == "" {
		return query, false
	}
	parts := strings.Split(query, "&")
	out := parts[:0:0]
	found := false
	for _, p := range parts {
		k := p
		if i := strings.IndexByte(p, '='); i >= 0 {
			k = p[:i]
		}
		if dk, err := url.QueryUnescape(k); err == nil {
			k = dk
		}
		if k != key {
			out = append(out, p)
			continue
		}
		if found {
			continue
		}
		found = true
		out = append(out, key+"="+url.QueryEscape(value))
	}
	return strings.Join(out, "&"), found
}

// replaceInPlace 在 fragment 的参数段中原地替换 openKey 的值
func replaceInPlace(fragment, token string) (string, bool) {
	needle := ParamName + "="
	for start := 0; start < len(fragment); {
		i := strings.Index(fragment[start:], needle)
		if i < 0 {
			return fragment, false
		}
		i += start
		if i == 0 || fragment[i-1] == '?' || fragment[i-1] == '&' {
			end := i + len(needle)
			for end < len(fragment) && fragment[end] != '&' {
				end++
			}
			return fragment[:i] + needle + EncodeURIComponent(token) + fragment[end:], true
		}
		start = i + len(needle)
	}
	return fragment, false
}

// appendFragmentParam 追加 openKey：参数段存在时用 &，纯路由用 ?。
// 纯路由 #/page 得到 #/page?openKey=，而非一律用 & 拼接的 #/page&openKey=
func appendFragmentParam(fragment, token string) string {
	pair := ParamName + "=" + EncodeURIComponent(token)
	switch {
	case fragment == "":
		return pair
	case strings.HasSuffix(fragment, "?") || strings.HasSuffix(fragment, "&"):
		return fragment + pair
	case strings.ContainsAny(fragment, "?="):
		return fragment + "&" + pair
	default:
		return fragment + "?" + pair
	}
}
