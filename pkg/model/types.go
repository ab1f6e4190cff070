package model

type TargetID string

// TargetInfo 浏览器中的一个页面目标（标签页）
type TargetInfo struct {
	ID        TargetID `json:"id"`
	Type      string   `json:"type"`
	URL       string   `json:"url"`
	Title     string   `json:"title"`
	IsCurrent bool     `json:"isCurrent"`
}

// CachedRequest 最近一次捕获的 openKey 请求模板，Headers 为请求头列表的 JSON 序列化
type CachedRequest struct {
	URL     string `json:"url"`
	Headers string `json:"headers"`
}

// OpenKeyResult 一次重放请求的结果
type OpenKeyResult struct {
	Success    bool   `json:"success"`
	URL        string `json:"url,omitempty"`
	Status     int    `json:"status,omitempty"`
	StatusText string `json:"statusText,omitempty"`
	Response   string `json:"response,omitempty"`
	Error      string `json:"error,omitempty"`
	Timestamp  string `json:"timestamp"`

	// Err 保留原始错误供 errors.Is 判断
	Err error `json:"-"`
}

type OpenKeyPayload struct {
	OpenKey string `json:"openKey"`
	T       string `json:"t"`
}

// OpenKeyData 接口返回体
type OpenKeyData struct {
	Code   int            `json:"code"`
	Result OpenKeyPayload `json:"result"`
	Msg    *string        `json:"msg"`
}

type OpenKeyParseResult struct {
	Success bool         `json:"success"`
	Data    *OpenKeyData `json:"data,omitempty"`
	Error   string       `json:"error,omitempty"`
}

// Token 成功时返回 openKey，否则为空
func (r OpenKeyParseResult) Token() string {
	if !r.Success || r.Data == nil {
		return ""
	}
	return r.Data.Result.OpenKey
}

// RawIframe 页面中枚举出的 iframe 原始信息，HashContent 含前导 #
type RawIframe struct {
	Index       int    `json:"index"`
	Src         string `json:"src,omitempty"`
	HashContent string `json:"hashContent,omitempty"`
}

// IframeInfo 处理后的 iframe 信息
type IframeInfo struct {
	Index         int                 `json:"index"`
	Src           string              `json:"src,omitempty"`
	HashContent   string              `json:"hashContent,omitempty"`
	OpenKeyResult *OpenKeyParseResult `json:"openKeyResult,omitempty"`
	UpdatedURL    string              `json:"updatedUrl,omitempty"`
}

type IframeDetectionResult struct {
	Count   int          `json:"count"`
	Iframes []IframeInfo `json:"iframes"`
}

// DetectorState iframe 检测流程的可观察状态快照
type DetectorState struct {
	IsProcessing   bool         `json:"isProcessing"`
	Message        string       `json:"message"`
	CopiedContent  string       `json:"copiedContent"`
	IframeList     []IframeInfo `json:"iframeList"`
	SelectedIframe *IframeInfo  `json:"selectedIframe"`
}

type Settings struct {
	HostPrefix string `json:"hostPrefix"`
}

// CaptureEvent 后台捕获到匹配请求时发出的事件
type CaptureEvent struct {
	ID        string   `json:"id"`
	Target    TargetID `json:"target"`
	URL       string   `json:"url"`
	Method    string   `json:"method"`
	Headers   int      `json:"headers"`
	Timestamp int64    `json:"timestamp"`
	Error     string   `json:"error,omitempty"`
}

// CurrentTabResponse get-current-tab 的响应
type CurrentTabResponse struct {
	Title string `json:"title,omitempty"`
}

// TabPrev tab-prev 推送，携带上一个标签页标题
type TabPrev struct {
	Title string `json:"title,omitempty"`
}

// SessionStorageRequest 请求读取 iframe 的 sessionStorage
type SessionStorageRequest struct {
	Type string `json:"type"`
	Key  string `json:"key"`
}

type SessionStorageResponse struct {
	Type    string `json:"type"`
	Key     string `json:"key"`
	Data    any    `json:"data"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// IframeSessionStorageResult get-iframe-session-storage 的响应
type IframeSessionStorageResult struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}
