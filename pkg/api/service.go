package api

import (
	"context"
	"io"

	"openkeytool/internal/config"
	"openkeytool/internal/logger"
	"openkeytool/internal/service"
	"openkeytool/pkg/model"
)

// Service 服务接口
type Service interface {
	// Detect 检测当前标签页中的 iframe，单个时直接复制改写后的链接
	Detect(ctx context.Context) (model.DetectorState, error)

	// DetectHTML 检测保存的 HTML 文档中的 iframe
	DetectHTML(ctx context.Context, r io.Reader, base string) (model.DetectorState, error)

	// Select 从最近一次检测结果中按序号选择 iframe
	Select(ctx context.Context, index int) (model.DetectorState, error)

	// State 最近一次检测的状态
	State() model.DetectorState

	// FetchOpenKey 重放缓存的 openKey 请求
	FetchOpenKey(ctx context.Context) model.OpenKeyResult

	// ParseOpenKey 获取并解析 openKey
	ParseOpenKey(ctx context.Context) model.OpenKeyParseResult

	// CopyText 复制到剪切板
	CopyText(ctx context.Context, text string) error

	// Rewrite 在 URL 中写入 openKey
	Rewrite(rawURL, token string) string

	// BuildURL 用 host 前缀拼接路径
	BuildURL(path string) string

	Settings() model.Settings
	UpdateHostPrefix(ctx context.Context, host string) error
	ResetSettings(ctx context.Context) error

	History(ctx context.Context) []string
	PushHistory(ctx context.Context, text string) error
	ClearHistory(ctx context.Context) error

	// ListTargets 列出浏览器标签页
	ListTargets(ctx context.Context) ([]model.TargetInfo, error)

	// CurrentTab 当前标签页标题
	CurrentTab(ctx context.Context) (model.CurrentTabResponse, error)

	// SessionStorage 读取页面 frame 中的 sessionStorage
	SessionStorage(ctx context.Context, key string) (model.SessionStorageResponse, error)

	// Capture 捕获 openKey 请求直到 ctx 结束
	Capture(ctx context.Context, events chan<- model.CaptureEvent, notes chan<- model.TabPrev) error

	// Close 释放资源
	Close() error
}

// NewService 创建并返回服务接口实现
func NewService(cfg *config.Config, l logger.Logger) (Service, error) {
	s, err := service.New(cfg, l)
	if err != nil {
		return nil, err
	}
	return s, nil
}
