package iframe

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"openkeytool/internal/clipboard"
	"openkeytool/internal/errs"
	"openkeytool/internal/storage"
	"openkeytool/internal/storage/storagetest"
	"openkeytool/pkg/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	tab     model.TargetInfo
	tabErr  error
	iframes []model.RawIframe
	listErr error
}

func (f *fakeSource) ActiveTab(context.Context) (model.TargetInfo, error) { return f.tab, f.tabErr }
func (f *fakeSource) ListIframes(context.Context) ([]model.RawIframe, error) {
	return f.iframes, f.listErr
}

type fakeKeys struct {
	configured bool
	results    []model.OpenKeyParseResult
	calls      int
}

func (f *fakeKeys) HasValidOpenKeyConfig(context.Context) bool { return f.configured }

func (f *fakeKeys) GetAndParseOpenKey(context.Context, time.Duration) model.OpenKeyParseResult {
	i := f.calls
	f.calls++
	if i >= len(f.results) {
		i = len(f.results) - 1
	}
	return f.results[i]
}

type hostBuilder string

func (h hostBuilder) BuildURL(path string) string { return string(h) + "/" + strings.TrimPrefix(path, "/") }

func okKey(token string) model.OpenKeyParseResult {
	return model.OpenKeyParseResult{
		Success: true,
		Data:    &model.OpenKeyData{Code: 200, Result: model.OpenKeyPayload{OpenKey: token}},
	}
}

func failKey(msg string) model.OpenKeyParseResult {
	return model.OpenKeyParseResult{Success: false, Error: msg}
}

type harness struct {
	det   *Detector
	src   *fakeSource
	keys  *fakeKeys
	clip  *clipboard.Memory
	kv    storage.KV
	waits []time.Duration
}

func newHarness(t *testing.T, keys *fakeKeys, iframes ...model.RawIframe) *harness {
	t.Helper()
	h := &harness{
		src:  &fakeSource{tab: model.TargetInfo{ID: "t1", Title: "页面"}, iframes: iframes},
		keys: keys,
		clip: &clipboard.Memory{},
		kv:   storagetest.New(t),
	}
	h.det = New(Config{
		Source:    h.src,
		Keys:      keys,
		URLs:      hostBuilder("http://localhost:4000"),
		Clipboard: h.clip,
		KV:        h.kv,
		Sleeper: func(ctx context.Context, d time.Duration) error {
			h.waits = append(h.waits, d)
			return nil
		},
		Now: func() time.Time { return time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC) },
	})
	return h
}

func TestProcessIframeSuccess(t *testing.T) {
	h := newHarness(t, &fakeKeys{configured: true, results: []model.OpenKeyParseResult{okKey("K1")}})

	info := h.det.ProcessIframeWithOpenKey(context.Background(),
		model.RawIframe{Index: 0, Src: "https://a/#/p?x=1", HashContent: "#/p?x=1"}, 3)

	require.NotNil(t, info.OpenKeyResult)
	assert.True(t, info.OpenKeyResult.Success)
	assert.Equal(t, "http://localhost:4000/#/p?x=1&openKey=K1", info.UpdatedURL)
	assert.Equal(t, 1, h.keys.calls)
	assert.Empty(t, h.waits)
}

func TestProcessIframeRetriesWithLinearBackoff(t *testing.T) {
	h := newHarness(t, &fakeKeys{configured: true, results: []model.OpenKeyParseResult{
		failKey("网络错误"), failKey(""), okKey("K3"),
	}})

	info := h.det.ProcessIframeWithOpenKey(context.Background(),
		model.RawIframe{Index: 0, HashContent: "#/p"}, 3)

	assert.True(t, info.OpenKeyResult.Success)
	assert.Equal(t, "http://localhost:4000/#/p?openKey=K3", info.UpdatedURL)
	assert.Equal(t, 3, h.keys.calls)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, h.waits)
}

func TestProcessIframeExhausted(t *testing.T) {
	h := newHarness(t, &fakeKeys{configured: true, results: []model.OpenKeyParseResult{failKey("bad")}})

	info := h.det.ProcessIframeWithOpenKey(context.Background(),
		model.RawIframe{Index: 2, HashContent: "#/p"}, 3)

	assert.Equal(t, 3, h.keys.calls)
	assert.Empty(t, info.UpdatedURL)
	require.NotNil(t, info.OpenKeyResult)
	assert.False(t, info.OpenKeyResult.Success)
	assert.Equal(t, "重试3次后仍然失败: bad", info.OpenKeyResult.Error)
}

func TestProcessIframeWithoutHashStopsEarly(t *testing.T) {
	h := newHarness(t, &fakeKeys{configured: true, results: []model.OpenKeyParseResult{okKey("K")}})

	info := h.det.ProcessIframeWithOpenKey(context.Background(), model.RawIframe{Index: 0, Src: "https://a/p"}, 3)

	assert.Equal(t, 1, h.keys.calls)
	assert.Empty(t, info.UpdatedURL)
	assert.True(t, info.OpenKeyResult.Success)
}

func TestHandleIframeDetectionNoConfig(t *testing.T) {
	h := newHarness(t, &fakeKeys{configured: false, results: []model.OpenKeyParseResult{okKey("K")}})

	st := h.det.HandleIframeDetection(context.Background())
	assert.Equal(t, "未找到有效的OpenKey配置，请先访问目标页面", st.Message)
	assert.Zero(t, h.keys.calls)
}

func TestHandleIframeDetectionNoIframes(t *testing.T) {
	h := newHarness(t, &fakeKeys{configured: true, results: []model.OpenKeyParseResult{okKey("K")}})

	st := h.det.HandleIframeDetection(context.Background())
	assert.Equal(t, "当前页面没有找到iframe", st.Message)
	assert.False(t, st.IsProcessing)
	assert.Empty(t, st.IframeList)
}

func TestHandleIframeDetectionSingle(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, &fakeKeys{configured: true, results: []model.OpenKeyParseResult{okKey("K")}},
		model.RawIframe{Index: 0, Src: "https://a/#/p", HashContent: "#/p"})

	st := h.det.HandleIframeDetection(ctx)
	assert.Equal(t, "成功获取openKey并更新URL，已复制到剪切板", st.Message)
	assert.Equal(t, "http://localhost:4000/#/p?openKey=K", h.clip.Text)
	assert.Equal(t, h.clip.Text, st.CopiedContent)
	require.NotNil(t, st.SelectedIframe)
	assert.Equal(t, 0, st.SelectedIframe.Index)

	copied, ok, err := h.kv.Get(ctx, storage.KeyLastCopiedContent)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, h.clip.Text, copied)
	at, _, err := h.kv.Get(ctx, storage.KeyCopyTime)
	require.NoError(t, err)
	assert.Equal(t, "2025-03-01T08:00:00Z", at)
}

func TestHandleIframeDetectionSingleKeyFailed(t *testing.T) {
	h := newHarness(t, &fakeKeys{configured: true, results: []model.OpenKeyParseResult{failKey("expired")}},
		model.RawIframe{Index: 0, HashContent: "#/p"})

	st := h.det.HandleIframeDetection(context.Background())
	assert.Equal(t, "成功获取iframe内容，但openKey获取失败 (openKey获取失败: 重试3次后仍然失败: expired)", st.Message)
	assert.Equal(t, "#/p", h.clip.Text)
}

func TestHandleIframeDetectionSingleNotHash(t *testing.T) {
	h := newHarness(t, &fakeKeys{configured: true, results: []model.OpenKeyParseResult{okKey("K")}},
		model.RawIframe{Index: 0, Src: "https://a/p"})

	st := h.det.HandleIframeDetection(context.Background())
	assert.Equal(t, "iframe链接不是hash路由", st.Message)
	assert.Empty(t, h.clip.Text)
}

func TestHandleIframeDetectionMultipleThenSelect(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, &fakeKeys{configured: true, results: []model.OpenKeyParseResult{okKey("K")}},
		model.RawIframe{Index: 0, HashContent: "#/a"},
		model.RawIframe{Index: 1, HashContent: "#/b"})

	st := h.det.HandleIframeDetection(ctx)
	assert.Equal(t, "找到 2 个iframe，请选择其中一个", st.Message)
	assert.Len(t, st.IframeList, 2)
	assert.Nil(t, st.SelectedIframe)
	assert.Empty(t, h.clip.Text)

	st, err := h.det.SelectIndex(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "成功获取openKey并更新URL，已复制到剪切板", st.Message)
	assert.Equal(t, "http://localhost:4000/#/b?openKey=K", h.clip.Text)

	_, err = h.det.SelectIndex(ctx, 9)
	assert.ErrorIs(t, err, errs.ErrValidation)
}

func TestHandleIframeDetectionSourceError(t *testing.T) {
	h := newHarness(t, &fakeKeys{configured: true, results: []model.OpenKeyParseResult{okKey("K")}})
	h.src.tabErr = errors.New("detached")

	st := h.det.HandleIframeDetection(context.Background())
	assert.Contains(t, st.Message, "无法获取当前标签页信息")
	assert.Empty(t, st.IframeList)
	assert.False(t, st.IsProcessing)
}

func TestCopyFailureClearsSelection(t *testing.T) {
	h := newHarness(t, &fakeKeys{configured: true, results: []model.OpenKeyParseResult{okKey("K")}},
		model.RawIframe{Index: 0, HashContent: "#/p"})
	h.clip.Err = errors.New("no display")

	st := h.det.HandleIframeDetection(context.Background())
	assert.Equal(t, "复制到剪切板失败", st.Message)
	assert.Nil(t, st.SelectedIframe)
	assert.Empty(t, st.IframeList)
}

func TestSelectIframeCopyFailure(t *testing.T) {
	h := newHarness(t, &fakeKeys{configured: true, results: []model.OpenKeyParseResult{okKey("K")}})
	h.clip.Err = errors.New("no display")

	st := h.det.SelectIframe(context.Background(), model.IframeInfo{Index: 3, UpdatedURL: "http://u"})
	assert.Equal(t, "复制到剪切板失败", st.Message)
	require.NotNil(t, st.SelectedIframe)
	assert.Equal(t, 3, st.SelectedIframe.Index)
}
