package service

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"openkeytool/internal/bus"
	"openkeytool/internal/cdp"
	"openkeytool/internal/clipboard"
	"openkeytool/internal/config"
	"openkeytool/internal/ctxkeys"
	"openkeytool/internal/errs"
	"openkeytool/internal/handler"
	"openkeytool/internal/history"
	"openkeytool/internal/iframe"
	"openkeytool/internal/logger"
	"openkeytool/internal/openkey"
	"openkeytool/internal/rules"
	"openkeytool/internal/session"
	"openkeytool/internal/settings"
	"openkeytool/internal/storage"
	"openkeytool/internal/urlkey"
	"openkeytool/pkg/model"

	"github.com/go-resty/resty/v2"
)

// Browser 浏览器侧能力，默认由 cdp.Manager 提供
type Browser interface {
	iframe.Source
	ListTargets(ctx context.Context) ([]model.TargetInfo, error)
	AttachTarget(ctx context.Context, id model.TargetID) (model.TargetInfo, error)
	Attached() bool
	Detach() error
	SessionStorageItem(ctx context.Context, key string) (string, bool, error)
	Bind(ctx context.Context, name, script string, fn func(payload string)) error
	EnableCapture(ctx context.Context, pattern string, h cdp.RequestHandler) error
	DisableCapture(ctx context.Context) error
}

// Options 可替换的依赖，零值使用默认实现
type Options struct {
	Browser   Browser
	Clipboard clipboard.Writer
	HTTP      *resty.Client
	Sleeper   func(ctx context.Context, d time.Duration) error
}

// Service 组合存储、设置、历史、openKey 获取与浏览器会话
type Service struct {
	cfg *config.Config
	log logger.Logger

	store    *storage.Store
	settings *settings.Manager
	history  *history.History
	keys     *openkey.Client
	browser  Browser
	bus      *bus.Bus
	tabs     *session.Manager
	clip     clipboard.Writer
	sleeper  func(ctx context.Context, d time.Duration) error

	mu       sync.Mutex
	detector *iframe.Detector
}

// New 使用默认依赖创建服务
func New(cfg *config.Config, l logger.Logger) (*Service, error) {
	return NewWithOptions(cfg, l, Options{})
}

// NewWithOptions 创建服务并加载设置
func NewWithOptions(cfg *config.Config, l logger.Logger, opts Options) (*Service, error) {
	if cfg == nil {
		cfg = config.NewConfig()
	}
	if l == nil {
		l = logger.NewNop()
	}

	store, err := storage.Open(storage.Options{DSN: cfg.Sqlite.Dsn, Prefix: cfg.Sqlite.Prefix, Logger: l})
	if err != nil {
		return nil, err
	}

	s := &Service{
		cfg:      cfg,
		log:      l,
		store:    store,
		settings: settings.New(store, l),
		history:  history.New(store, l),
		keys:     openkey.NewClient(store, openkey.Options{HTTP: opts.HTTP, Logger: l}),
		browser:  opts.Browser,
		bus:      bus.New(l),
		clip:     opts.Clipboard,
		sleeper:  opts.Sleeper,
	}
	if s.browser == nil {
		s.browser = cdp.New(cfg.DevTools.URL, l)
	}
	if s.clip == nil {
		s.clip = clipboard.System{}
	}
	s.tabs = session.NewManager(l, func(p model.TabPrev) {
		s.bus.Publish(bus.KindTabPrev, p)
	})
	bus.RegisterDefaults(s.bus, s.tabs, s.browser)

	s.settings.Load(context.Background())
	return s, nil
}

// begin 为一次操作生成 traceId
func (s *Service) begin(ctx context.Context, op string) (context.Context, logger.Logger) {
	ctx = ctxkeys.WithTraceID(ctx)
	return ctx, s.log.With("traceId", ctxkeys.TraceID(ctx), "op", op)
}

func (s *Service) ensureAttached(ctx context.Context) error {
	if s.browser.Attached() {
		return nil
	}
	_, err := s.browser.AttachTarget(ctx, "")
	return err
}

func (s *Service) newDetector(src iframe.Source, l logger.Logger) *iframe.Detector {
	return iframe.New(iframe.Config{
		Source:     src,
		Keys:       s.keys,
		URLs:       s.settings,
		Clipboard:  s.clip,
		KV:         s.store,
		MaxRetries: s.cfg.OpenKey.MaxRetries,
		Backoff:    time.Duration(s.cfg.OpenKey.BackoffMS) * time.Millisecond,
		Timeout:    s.timeout(),
		Sleeper:    s.sleeper,
		Logger:     l,
	})
}

func (s *Service) timeout() time.Duration {
	return time.Duration(s.cfg.OpenKey.TimeoutMS) * time.Millisecond
}

// Detect 检测当前标签页的 iframe
func (s *Service) Detect(ctx context.Context) (model.DetectorState, error) {
	ctx, l := s.begin(ctx, "detect")
	if err := s.ensureAttached(ctx); err != nil {
		return model.DetectorState{}, err
	}
	return s.detect(ctx, s.browser, l), nil
}

// DetectHTML 检测保存的 HTML 文档中的 iframe
func (s *Service) DetectHTML(ctx context.Context, r io.Reader, base string) (model.DetectorState, error) {
	ctx, l := s.begin(ctx, "detect-html")
	src, err := iframe.NewHTMLSource(r, base)
	if err != nil {
		return model.DetectorState{}, err
	}
	return s.detect(ctx, src, l), nil
}

func (s *Service) detect(ctx context.Context, src iframe.Source, l logger.Logger) model.DetectorState {
	d := s.newDetector(src, l)
	s.mu.Lock()
	s.detector = d
	s.mu.Unlock()
	state := d.HandleIframeDetection(ctx)
	l.Info("iframe检测完成", "message", state.Message, "count", len(state.IframeList))
	return state
}

// Select 从最近一次检测结果中选择 iframe
func (s *Service) Select(ctx context.Context, index int) (model.DetectorState, error) {
	ctx, _ = s.begin(ctx, "select")
	s.mu.Lock()
	d := s.detector
	s.mu.Unlock()
	if d == nil {
		return model.DetectorState{}, fmt.Errorf("%w: 请先检测iframe", errs.ErrValidation)
	}
	return d.SelectIndex(ctx, index)
}

// State 最近一次检测的状态
func (s *Service) State() model.DetectorState {
	s.mu.Lock()
	d := s.detector
	s.mu.Unlock()
	if d == nil {
		return model.DetectorState{}
	}
	return d.State()
}

// FetchOpenKey 重放缓存的请求
func (s *Service) FetchOpenKey(ctx context.Context) model.OpenKeyResult {
	ctx, l := s.begin(ctx, "openkey")
	res := s.keys.GetOpenKey(ctx, s.timeout())
	l.Info("获取openKey", "success", res.Success, "status", res.Status)
	return res
}

// ParseOpenKey 获取并解析 openKey
func (s *Service) ParseOpenKey(ctx context.Context) model.OpenKeyParseResult {
	ctx, _ = s.begin(ctx, "openkey-parse")
	return s.keys.GetAndParseOpenKey(ctx, s.timeout())
}

// CopyText 复制文本并记录
func (s *Service) CopyText(ctx context.Context, text string) error {
	ctx, l := s.begin(ctx, "copy")
	return s.newDetector(nil, l).CopyToClipboard(ctx, text)
}

// Rewrite 在 URL 中写入 openKey
func (s *Service) Rewrite(rawURL, token string) string {
	return urlkey.ReplaceOpenKey(rawURL, token)
}

// BuildURL 用 host 前缀拼接路径
func (s *Service) BuildURL(path string) string {
	return s.settings.BuildURL(path)
}

func (s *Service) Settings() model.Settings { return s.settings.Settings() }

func (s *Service) UpdateHostPrefix(ctx context.Context, host string) error {
	ctx, _ = s.begin(ctx, "settings")
	return s.settings.UpdateHostPrefix(ctx, host)
}

func (s *Service) ResetSettings(ctx context.Context) error {
	ctx, _ = s.begin(ctx, "settings-reset")
	return s.settings.Reset(ctx)
}

func (s *Service) History(ctx context.Context) []string {
	return s.history.List(ctx)
}

func (s *Service) PushHistory(ctx context.Context, text string) error {
	return s.history.Push(ctx, text)
}

func (s *Service) ClearHistory(ctx context.Context) error {
	ctx, _ = s.begin(ctx, "history-clear")
	return s.history.Clear(ctx)
}

// ListTargets 列出浏览器标签页
func (s *Service) ListTargets(ctx context.Context) ([]model.TargetInfo, error) {
	targets, err := s.browser.ListTargets(ctx)
	if err != nil {
		return nil, err
	}
	s.tabs.Observe(targets)
	return targets, nil
}

// CurrentTab 返回当前标签页标题
func (s *Service) CurrentTab(ctx context.Context) (model.CurrentTabResponse, error) {
	ctx, _ = s.begin(ctx, "current-tab")
	if _, ok := s.tabs.Current(); !ok {
		if _, err := s.ListTargets(ctx); err != nil {
			return model.CurrentTabResponse{}, err
		}
	}
	return bus.Request[any, model.CurrentTabResponse](ctx, s.bus, bus.KindGetCurrentTab, nil)
}

// SessionStorage 读取页面 frame 中的 sessionStorage
func (s *Service) SessionStorage(ctx context.Context, key string) (model.SessionStorageResponse, error) {
	ctx, _ = s.begin(ctx, "session-storage")
	if err := s.ensureAttached(ctx); err != nil {
		return model.SessionStorageResponse{}, err
	}
	return bus.Request[model.SessionStorageRequest, model.SessionStorageResponse](ctx, s.bus,
		bus.KindRequestSessionStorage,
		model.SessionStorageRequest{Type: string(bus.KindRequestSessionStorage), Key: key})
}

// Capture 启用请求捕获、菜单点击记录与标签页跟踪，阻塞直到 ctx 结束。
// events 与 notes 可为空，发送均为非阻塞
func (s *Service) Capture(ctx context.Context, events chan<- model.CaptureEvent, notes chan<- model.TabPrev) error {
	ctx, l := s.begin(ctx, "capture")
	if err := s.ensureAttached(ctx); err != nil {
		return err
	}

	h := handler.New(handler.Config{
		KV:      s.store,
		Matcher: rules.Capture(s.cfg.Capture.Pattern, s.cfg.Capture.Match),
		Events:  events,
		Logger:  l,
	})
	if err := s.browser.EnableCapture(ctx, s.cfg.Capture.Pattern, h); err != nil {
		return err
	}

	tracker := history.NewTracker(s.history, s.cfg.Capture.TargetHost, s.cfg.Capture.HomeLabel, l)
	if err := tracker.Start(ctx, s.browser); err != nil {
		l.Warn("菜单点击记录启动失败", "error", err.Error())
	}

	sub, unsubscribe := s.bus.Subscribe(bus.KindTabPrev, 8)
	defer unsubscribe()
	go s.tabs.Watch(ctx, s.browser, time.Duration(s.cfg.Capture.PollMS)*time.Millisecond)

	l.Info("开始捕获", "pattern", s.cfg.Capture.Pattern)
	for {
		select {
		case <-ctx.Done():
			stopCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := s.browser.DisableCapture(stopCtx); err != nil {
				l.Debug("关闭请求拦截失败", "error", err.Error())
			}
			l.Info("停止捕获")
			return nil
		case msg := <-sub:
			p, ok := msg.(model.TabPrev)
			if !ok || notes == nil {
				continue
			}
			select {
			case notes <- p:
			default:
			}
		}
	}
}

// Close 断开浏览器并关闭存储
func (s *Service) Close() error {
	if err := s.browser.Detach(); err != nil {
		s.log.Warn("断开浏览器失败", "error", err.Error())
	}
	return s.store.Close()
}
