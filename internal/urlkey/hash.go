package urlkey

import (
	"net/url"
	"strings"
)

// hashParams fragment 中的参数段，保留插入顺序
//
// 形如 "/route?a=1&b=2" 的 hash 路由，"?" 之前的部分作为 prefix 原样保留。
type hashParams struct {
	prefix string
	keys   []string
	values map[string]string
	bare   map[string]bool
}

func parseHashParams(fragment string) hashParams {
	hp := hashParams{values: map[string]string{}, bare: map[string]bool{}}
	space := fragment
	if i := strings.IndexByte(fragment, '?'); i >= 0 {
		hp.prefix = fragment[:i+1]
		space = fragment[i+1:]
	}
	if !strings.ContainsAny(space, "&=") {
		hp.prefix = fragment
		return hp
	}

	for _, pair := range strings.Split(space, "&") {
		if pair == "" {
			continue
		}
		k, v, hasValue := strings.Cut(pair, "=")
		k = decodeURIComponent(k)
		if _, seen := hp.values[k]; !seen {
			hp.keys = append(hp.keys, k)
		}
		if hasValue {
			hp.values[k] = decodeURIComponent(v)
			delete(hp.bare, k)
		} else {
			hp.values[k] = ""
			hp.bare[k] = true
		}
	}
	return hp
}

func (hp *hashParams) has(key string) bool {
	_, ok := hp.values[key]
	return ok
}

func (hp *hashParams) set(key, value string) {
	if !hp.has(key) {
		hp.keys = append(hp.keys, key)
	}
	hp.values[key] = value
	delete(hp.bare, key)
}

func (hp *hashParams) encode() string {
	pairs := make([]string, 0, len(hp.keys))
	for _, k := range hp.keys {
		if hp.bare[k] {
			pairs = append(pairs, EncodeURIComponent(k))
			continue
		}
		pairs = append(pairs, EncodeURIComponent(k)+"="+EncodeURIComponent(hp.values[k]))
	}
	return hp.prefix + strings.Join(pairs, "&")
}

var uriComponentUnescaper = strings.NewReplacer(
	"+", "%20",
	"%21", "!",
	"%27", "'",
	"%28", "(",
	"%29", ")",
	"%2A", "*",
)

// EncodeURIComponent 按浏览器 encodeURIComponent 的字符集转义
func EncodeURIComponent(s string) string {
	return uriComponentUnescaper.Replace(url.QueryEscape(s))
}

func decodeURIComponent(s string) string {
	out, err := url.PathUnescape(s)
	if err != nil {
		return s
	}
	return out
}
