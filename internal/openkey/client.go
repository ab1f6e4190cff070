package openkey

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"openkeytool/internal/errs"
	"openkeytool/internal/logger"
	"openkeytool/internal/storage"
	"openkeytool/pkg/model"

	"github.com/go-resty/resty/v2"
	"github.com/tidwall/gjson"
)

// DefaultTimeout 重放请求的默认超时
const DefaultTimeout = 10 * time.Second

const timestampLayout = "2006/1/2 15:04:05"

// Client 读取缓存的请求模板并重放以获取 openKey
type Client struct {
	kv   storage.KV
	http *resty.Client
	log  logger.Logger
	now  func() time.Time
}

// Options 客户端配置
type Options struct {
	HTTP   *resty.Client
	Logger logger.Logger
	Now    func() time.Time
}

func NewClient(kv storage.KV, opts Options) *Client {
	c := &Client{kv: kv, http: opts.HTTP, log: opts.Logger, now: opts.Now}
	if c.http == nil {
		c.http = resty.New().SetHeader("User-Agent", "openkeytool/1.0")
	}
	if c.log == nil {
		c.log = logger.NewNop()
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c
}

// CachedRequest 读取缓存的请求模板，缺失或无 url 时返回 ErrConfig
func (c *Client) CachedRequest(ctx context.Context) (model.CachedRequest, error) {
	var req model.CachedRequest
	ok, err := storage.GetJSON(ctx, c.kv, storage.KeyCachedRequest, &req)
	if err != nil {
		return req, fmt.Errorf("%w: %v", errs.ErrConfig, err)
	}
	if !ok || req.URL == "" {
		return req, errs.ErrConfig
	}
	return req, nil
}

// HasValidOpenKeyConfig 是否已捕获可用的请求模板
func (c *Client) HasValidOpenKeyConfig(ctx context.Context) bool {
	_, err := c.CachedRequest(ctx)
	return err == nil
}

// GetOpenKey 重放缓存的请求。失败不返回 error，而是体现在结果的 Success/Error 中
func (c *Client) GetOpenKey(ctx context.Context, timeout time.Duration) model.OpenKeyResult {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	cached, err := c.CachedRequest(ctx)
	if err != nil {
		return c.failure(err)
	}
	headers := ParseHeaders(cached.Headers)

	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := c.now()
	resp, err := c.http.R().
		SetContext(reqCtx).
		SetHeaders(headers).
		Get(cached.URL)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(reqCtx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("%w (%s): %v", errs.ErrAbort, timeout, err)
		} else {
			err = fmt.Errorf("%w: %v", errs.ErrNetwork, err)
		}
		c.log.Warn("重放openKey请求失败", "url", cached.URL, "error", err.Error())
		return c.failure(err)
	}

	c.log.Debug("重放openKey请求完成", "url", cached.URL, "status", resp.StatusCode(), "duration", c.now().Sub(start))
	return model.OpenKeyResult{
		Success:    resp.IsSuccess(),
		URL:        cached.URL,
		Status:     resp.StatusCode(),
		StatusText: statusText(resp),
		Response:   resp.String(),
		Timestamp:  c.timestamp(),
	}
}

// GetAndParseOpenKey 获取并解析 openKey
func (c *Client) GetAndParseOpenKey(ctx context.Context, timeout time.Duration) model.OpenKeyParseResult {
	result := c.GetOpenKey(ctx, timeout)
	if !result.Success || result.Response == "" {
		msg := result.Error
		if msg == "" {
			msg = "OpenKey获取失败"
		}
		return model.OpenKeyParseResult{Success: false, Error: msg}
	}
	return ParseOpenKeyResponse(result.Response)
}

// ParseOpenKeyResponse 解析接口响应，code 为 200 且 openKey 非空才算成功
func ParseOpenKeyResponse(text string) model.OpenKeyParseResult {
	if !gjson.Valid(text) {
		return model.OpenKeyParseResult{Success: false, Error: errs.ErrParse.Error()}
	}
	doc := gjson.Parse(text)
	code := doc.Get("code")
	openKey := doc.Get("result.openKey")

	if code.Type == gjson.Number && code.Int() == 200 && (openKey.Type == gjson.String || openKey.Type == gjson.Number) && truthy(openKey) {
		data := &model.OpenKeyData{
			Code: int(code.Int()),
			Result: model.OpenKeyPayload{
				OpenKey: openKey.String(),
				T:       doc.Get("result.t").String(),
			},
		}
		if msg := doc.Get("msg"); msg.Exists() && msg.Type != gjson.Null {
			s := msg.String()
			data.Msg = &s
		}
		return model.OpenKeyParseResult{Success: true, Data: data}
	}

	msg := doc.Get("msg")
	if truthy(msg) {
		return model.OpenKeyParseResult{Success: false, Error: msg.String()}
	}
	return model.OpenKeyParseResult{Success: false, Error: "API返回无效数据"}
}

// truthy 按 JS 真值规则判断：null、false、0、空串为假
func truthy(r gjson.Result) bool {
	switch r.Type {
	case gjson.Null, gjson.False:
		return false
	case gjson.Number:
		return r.Num != 0
	case gjson.String:
		return r.Str != ""
	default:
		return r.Exists()
	}
}

// ParseHeaders 解析缓存的请求头：{name,value} 数组或对象均可，格式错误时返回空 map
func ParseHeaders(raw string) map[string]string {
	out := make(map[string]string)
	if raw == "" || !gjson.Valid(raw) {
		return out
	}
	doc := gjson.Parse(raw)
	switch {
	case doc.IsArray():
		doc.ForEach(func(_, h gjson.Result) bool {
			if name := h.Get("name").String(); name != "" {
				out[name] = h.Get("value").String()
			}
			return true
		})
	case doc.IsObject():
		doc.ForEach(func(k, v gjson.Result) bool {
			out[k.String()] = v.String()
			return true
		})
	}
	return out
}

// FormatResult 将结果格式化为缩进 JSON，用于导出到剪切板
func FormatResult(result model.OpenKeyResult) string {
	b, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(b)
}

func (c *Client) failure(err error) model.OpenKeyResult {
	return model.OpenKeyResult{
		Success:   false,
		Error:     err.Error(),
		Timestamp: c.timestamp(),
		Err:       err,
	}
}

func (c *Client) timestamp() string {
	return c.now().Format(timestampLayout)
}

func statusText(resp *resty.Response) string {
	return strings.TrimSpace(strings.TrimPrefix(resp.Status(), strconv.Itoa(resp.StatusCode())))
}
