package traffic

import (
	"encoding/json"
	"sort"
	"strings"
)

// Header 小写键的请求头，便于大小写不敏感查找
type Header map[string]string

// Get 获取指定 Header 的值（大小写不敏感）
func (h Header) Get(key string) string {
	if h == nil {
		return ""
	}
	return h[strings.ToLower(key)]
}

// Set 设置指定 Header 的值（自动转换为小写）
func (h Header) Set(key, value string) {
	h[strings.ToLower(key)] = value
}

// Del 删除指定 Header
func (h Header) Del(key string) {
	delete(h, strings.ToLower(key))
}

// HeaderEntry 保留原始大小写的请求头条目，序列化形如 {"name":..,"value":..}
type HeaderEntry struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Request 中立的请求模型
type Request struct {
	ID            string            // 事务唯一ID
	URL           string            // 完整URL
	Method        string            // HTTP方法
	Headers       Header            // 请求头（小写键）
	HeaderEntries []HeaderEntry     // 原始请求头列表，按名称排序
	ResourceType  string            // 资源类型 (如 Document, XHR)
	Query         map[string]string // 预解析的查询参数
}

// NewRequest 创建初始化请求对象
func NewRequest() *Request {
	return &Request{
		Headers: make(Header),
		Query:   make(map[string]string),
	}
}

// AddHeader 同时写入小写索引和原始列表
func (r *Request) AddHeader(name, value string) {
	r.Headers.Set(name, value)
	r.HeaderEntries = append(r.HeaderEntries, HeaderEntry{Name: name, Value: value})
	sort.SliceStable(r.HeaderEntries, func(i, j int) bool {
		return r.HeaderEntries[i].Name < r.HeaderEntries[j].Name
	})
}

// SerializeHeaders 将请求头列表序列化为 JSON 数组字符串
func (r *Request) SerializeHeaders() string {
	entries := r.HeaderEntries
	if entries == nil {
		entries = []HeaderEntry{}
	}
	b, err := json.Marshal(entries)
	if err != nil {
		return "[]"
	}
	return string(b)
}
