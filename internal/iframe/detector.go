// Package iframe 检测当前页面中的 iframe，为其 hash 路由链接写入新的 openKey 并复制到剪切板
package iframe

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"openkeytool/internal/clipboard"
	"openkeytool/internal/errs"
	"openkeytool/internal/logger"
	"openkeytool/internal/retry"
	"openkeytool/internal/storage"
	"openkeytool/internal/urlkey"
	"openkeytool/pkg/model"
)

const (
	msgDetecting   = "正在检测页面中的iframe..."
	msgNoConfig    = "未找到有效的OpenKey配置，请先访问目标页面"
	msgNoIframe    = "当前页面没有找到iframe"
	msgChooseFmt   = "找到 %d 个iframe，请选择其中一个"
	msgUpdated     = "成功获取openKey并更新URL，已复制到剪切板"
	msgHashOnly    = "成功获取iframe内容，但openKey获取失败"
	msgNotHash     = "iframe链接不是hash路由"
	msgKeyFailFmt  = " (openKey获取失败: %s)"
	msgCopied      = "已复制到剪切板"
	msgUnknown     = "未知错误"
	msgKeyFailed   = "OpenKey获取失败"
	msgRetryFailed = "重试%d次后仍然失败: %s"
)

// DefaultMaxRetries 每个 iframe 获取 openKey 的最大尝试次数
const DefaultMaxRetries = 3

// Source 提供当前标签页及其 iframe 列表
type Source interface {
	ActiveTab(ctx context.Context) (model.TargetInfo, error)
	ListIframes(ctx context.Context) ([]model.RawIframe, error)
}

// KeyFetcher openKey 获取
type KeyFetcher interface {
	HasValidOpenKeyConfig(ctx context.Context) bool
	GetAndParseOpenKey(ctx context.Context, timeout time.Duration) model.OpenKeyParseResult
}

// URLBuilder 将 hash 内容拼接到 host 前缀
type URLBuilder interface {
	BuildURL(path string) string
}

// Config 检测器依赖
type Config struct {
	Source    Source
	Keys      KeyFetcher
	URLs      URLBuilder
	Clipboard clipboard.Writer
	KV        storage.KV

	MaxRetries int
	Backoff    time.Duration
	Timeout    time.Duration
	Sleeper    retry.Sleeper
	Now        func() time.Time
	Logger     logger.Logger
}

// Detector iframe 检测流程及其状态
type Detector struct {
	cfg Config
	log logger.Logger

	mu    sync.Mutex
	state model.DetectorState
}

func New(cfg Config) *Detector {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = time.Second
	}
	if cfg.Sleeper == nil {
		cfg.Sleeper = retry.SleepContext
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Clipboard == nil {
		cfg.Clipboard = clipboard.System{}
	}
	l := cfg.Logger
	if l == nil {
		l = logger.NewNop()
	}
	return &Detector{cfg: cfg, log: l}
}

// State 返回状态快照
func (d *Detector) State() model.DetectorState {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := d.state
	s.IframeList = append([]model.IframeInfo(nil), d.state.IframeList...)
	if d.state.SelectedIframe != nil {
		sel := *d.state.SelectedIframe
		s.SelectedIframe = &sel
	}
	return s
}

func (d *Detector) update(fn func(s *model.DetectorState)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	fn(&d.state)
}

func (d *Detector) setMessage(msg string) {
	d.update(func(s *model.DetectorState) { s.Message = msg })
}

// ProcessIframeWithOpenKey 获取 openKey 并改写 iframe 链接，失败按线性退避重试
func (d *Detector) ProcessIframeWithOpenKey(ctx context.Context, raw model.RawIframe, maxRetries int) model.IframeInfo {
	if maxRetries <= 0 {
		maxRetries = d.cfg.MaxRetries
	}
	info := model.IframeInfo{Index: raw.Index, Src: raw.Src, HashContent: raw.HashContent}

	out := retry.DoWith(ctx, retry.Linear(maxRetries, d.cfg.Backoff), d.cfg.Sleeper,
		func(ctx context.Context, attempt int) (model.OpenKeyParseResult, error) {
			parsed := d.cfg.Keys.GetAndParseOpenKey(ctx, d.cfg.Timeout)
			token := parsed.Token()
			switch {
			case token != "" && raw.HashContent != "":
				info.UpdatedURL = urlkey.ReplaceOpenKey(d.cfg.URLs.BuildURL(raw.HashContent), token)
				return parsed, nil
			case token != "":
				// 已拿到 openKey 但没有可改写的 hash，重试无意义
				return parsed, retry.Stop(errors.New(msgKeyFailed))
			}
			msg := parsed.Error
			if msg == "" {
				msg = msgKeyFailed
			}
			d.log.Debug("获取openKey失败", "index", raw.Index, "attempt", attempt, "error", msg)
			return parsed, errors.New(msg)
		})

	parsed := out.Value
	info.OpenKeyResult = &parsed
	if !parsed.Success && out.Last() != nil {
		info.OpenKeyResult = &model.OpenKeyParseResult{
			Success: false,
			Error:   fmt.Sprintf(msgRetryFailed, maxRetries, out.Last().Error()),
		}
	}
	return info
}

// GetIframeInfo 枚举当前标签页的 iframe 并逐个处理
func (d *Detector) GetIframeInfo(ctx context.Context) (model.IframeDetectionResult, error) {
	d.update(func(s *model.DetectorState) {
		s.IsProcessing = true
		s.Message = msgDetecting
	})
	defer d.update(func(s *model.DetectorState) { s.IsProcessing = false })

	tab, err := d.cfg.Source.ActiveTab(ctx)
	if err != nil {
		return model.IframeDetectionResult{}, fmt.Errorf("无法获取当前标签页信息: %w", err)
	}

	raws, err := d.cfg.Source.ListIframes(ctx)
	if err != nil {
		return model.IframeDetectionResult{}, err
	}
	d.log.Info("检测到iframe", "tab", tab.Title, "count", len(raws))

	iframes := make([]model.IframeInfo, 0, len(raws))
	for _, raw := range raws {
		iframes = append(iframes, d.ProcessIframeWithOpenKey(ctx, raw, d.cfg.MaxRetries))
	}
	return model.IframeDetectionResult{Count: len(raws), Iframes: iframes}, nil
}

// HandleIframeDetection 完整检测流程：单个 iframe 自动复制，多个时等待选择
func (d *Detector) HandleIframeDetection(ctx context.Context) model.DetectorState {
	d.update(func(s *model.DetectorState) {
		s.Message = ""
		s.IframeList = nil
		s.SelectedIframe = nil
	})

	if !d.cfg.Keys.HasValidOpenKeyConfig(ctx) {
		d.setMessage(msgNoConfig)
		return d.State()
	}

	result, err := d.GetIframeInfo(ctx)
	if err == nil && result.Count == 0 {
		d.setMessage(msgNoIframe)
		return d.State()
	}
	if err == nil {
		d.update(func(s *model.DetectorState) { s.IframeList = result.Iframes })
		if result.Count == 1 {
			err = d.report(ctx, result.Iframes[0])
		} else {
			d.setMessage(fmt.Sprintf(msgChooseFmt, result.Count))
		}
	}

	if err != nil {
		d.log.Err(err, "iframe检测失败")
		d.update(func(s *model.DetectorState) {
			s.Message = err.Error()
			s.IframeList = nil
			s.SelectedIframe = nil
		})
	}
	return d.State()
}

// SelectIframe 选择一个 iframe 并复制其链接
func (d *Detector) SelectIframe(ctx context.Context, info model.IframeInfo) model.DetectorState {
	if err := d.report(ctx, info); err != nil {
		d.setMessage(err.Error())
	}
	return d.State()
}

// SelectIndex 按序号从当前列表中选择
func (d *Detector) SelectIndex(ctx context.Context, index int) (model.DetectorState, error) {
	for _, info := range d.State().IframeList {
		if info.Index == index {
			return d.SelectIframe(ctx, info), nil
		}
	}
	return d.State(), fmt.Errorf("%w: 没有序号为 %d 的iframe", errs.ErrValidation, index)
}

func (d *Detector) report(ctx context.Context, info model.IframeInfo) error {
	selected := info
	d.update(func(s *model.DetectorState) { s.SelectedIframe = &selected })

	var msg string
	switch {
	case info.UpdatedURL != "":
		if err := d.CopyToClipboard(ctx, info.UpdatedURL); err != nil {
			return err
		}
		msg = msgUpdated
	case info.HashContent != "":
		if err := d.CopyToClipboard(ctx, info.HashContent); err != nil {
			return err
		}
		msg = msgHashOnly
	default:
		msg = msgNotHash
	}

	if info.OpenKeyResult == nil || !info.OpenKeyResult.Success {
		reason := msgUnknown
		if info.OpenKeyResult != nil && info.OpenKeyResult.Error != "" {
			reason = info.OpenKeyResult.Error
		}
		msg += fmt.Sprintf(msgKeyFailFmt, reason)
	}
	d.setMessage(msg)
	return nil
}

// CopyToClipboard 写入剪切板并记录最近一次复制的内容
func (d *Detector) CopyToClipboard(ctx context.Context, text string) error {
	if err := d.cfg.Clipboard.WriteText(text); err != nil {
		d.log.Warn("写入剪切板失败", "error", err.Error())
		return errs.ErrClipboard
	}
	d.update(func(s *model.DetectorState) {
		s.CopiedContent = text
		s.Message = msgCopied
	})

	if d.cfg.KV == nil {
		return nil
	}
	if err := d.cfg.KV.Set(ctx, storage.KeyLastCopiedContent, text); err != nil {
		d.log.Err(err, "保存复制内容失败")
		return errs.ErrClipboard
	}
	if err := d.cfg.KV.Set(ctx, storage.KeyCopyTime, d.cfg.Now().UTC().Format(time.RFC3339Nano)); err != nil {
		d.log.Err(err, "保存复制时间失败")
		return errs.ErrClipboard
	}
	return nil
}
