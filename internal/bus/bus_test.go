package bus

import (
	"context"
	"errors"
	"testing"

	"openkeytool/pkg/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedTabs struct {
	tab model.TargetInfo
	ok  bool
}

func (f fixedTabs) Current() (model.TargetInfo, bool) { return f.tab, f.ok }

type fakeStorage struct {
	values map[string]string
	err    error
	calls  int
}

func (f *fakeStorage) SessionStorageItem(_ context.Context, key string) (string, bool, error) {
	f.calls++
	if f.err != nil {
		return "", false, f.err
	}
	v, ok := f.values[key]
	return v, ok, nil
}

func TestRequestUnknownKind(t *testing.T) {
	b := New(nil)
	_, err := Request[any, model.CurrentTabResponse](context.Background(), b, "nope", nil)
	assert.ErrorIs(t, err, ErrUnknownKind)
}

func TestRequestTypeMismatch(t *testing.T) {
	b := New(nil)
	On(b, "echo", func(_ context.Context, s string) (string, error) { return s, nil })

	out, err := Request[string, string](context.Background(), b, "echo", "hi")
	require.NoError(t, err)
	assert.Equal(t, "hi", out)

	_, err = Request[int, string](context.Background(), b, "echo", 1)
	assert.Error(t, err)
	_, err = Request[string, int](context.Background(), b, "echo", "hi")
	assert.Error(t, err)
}

func TestGetCurrentTab(t *testing.T) {
	ctx := context.Background()

	b := New(nil)
	RegisterDefaults(b, fixedTabs{tab: model.TargetInfo{Title: "工作台"}, ok: true}, &fakeStorage{})
	resp, err := Request[any, model.CurrentTabResponse](ctx, b, KindGetCurrentTab, nil)
	require.NoError(t, err)
	assert.Equal(t, "工作台", resp.Title)

	empty := New(nil)
	RegisterDefaults(empty, fixedTabs{}, &fakeStorage{})
	resp, err = Request[any, model.CurrentTabResponse](ctx, empty, KindGetCurrentTab, nil)
	require.NoError(t, err)
	assert.Empty(t, resp.Title)
}

func TestGetIframeSessionStorage(t *testing.T) {
	b := New(nil)
	RegisterDefaults(b, fixedTabs{}, &fakeStorage{})
	resp, err := Request[any, model.IframeSessionStorageResult](context.Background(), b, KindGetIframeSessionStorage, nil)
	require.NoError(t, err)
	assert.False(t, resp.Success)
	assert.Equal(t, "此功能已移至content script处理", resp.Error)
}

func TestRequestSessionStorage(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name      string
		key       string
		storage   *fakeStorage
		wantData  any
		wantOK    bool
		wantError string
		wantCalls int
	}{
		{
			name:      "json value decoded",
			key:       LoginDataKey,
			storage:   &fakeStorage{values: map[string]string{LoginDataKey: `{"user":"u1","id":7}`}},
			wantData:  map[string]any{"user": "u1", "id": float64(7)},
			wantOK:    true,
			wantCalls: 1,
		},
		{
			name:      "raw string kept",
			key:       LoginDataKey,
			storage:   &fakeStorage{values: map[string]string{LoginDataKey: "plain-token"}},
			wantData:  "plain-token",
			wantOK:    true,
			wantCalls: 1,
		},
		{
			name:      "missing value",
			key:       LoginDataKey,
			storage:   &fakeStorage{},
			wantOK:    true,
			wantCalls: 1,
		},
		{
			name:      "other key not looked up",
			key:       "OTHER",
			storage:   &fakeStorage{values: map[string]string{"OTHER": "x"}},
			wantOK:    true,
			wantCalls: 0,
		},
		{
			name:      "evaluation failure",
			key:       LoginDataKey,
			storage:   &fakeStorage{err: errors.New("frame detached")},
			wantError: "frame detached",
			wantCalls: 1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := New(nil)
			RegisterDefaults(b, fixedTabs{}, tt.storage)

			resp, err := Request[model.SessionStorageRequest, model.SessionStorageResponse](ctx, b,
				KindRequestSessionStorage, model.SessionStorageRequest{Type: string(KindRequestSessionStorage), Key: tt.key})
			require.NoError(t, err)
			assert.Equal(t, "SESSION_STORAGE_RESPONSE", resp.Type)
			assert.Equal(t, tt.key, resp.Key)
			assert.Equal(t, tt.wantOK, resp.Success)
			assert.Equal(t, tt.wantData, resp.Data)
			assert.Equal(t, tt.wantError, resp.Error)
			assert.Equal(t, tt.wantCalls, tt.storage.calls)
		})
	}
}

func TestPublishSubscribe(t *testing.T) {
	b := New(nil)
	ch, cancel := b.Subscribe(KindTabPrev, 1)

	b.Publish(KindTabPrev, model.TabPrev{Title: "甲"})
	// 缓冲已满，丢弃而不阻塞
	b.Publish(KindTabPrev, model.TabPrev{Title: "乙"})
	b.Publish(KindGetCurrentTab, "ignored")

	msg := <-ch
	assert.Equal(t, model.TabPrev{Title: "甲"}, msg)

	cancel()
	cancel()
	_, open := <-ch
	assert.False(t, open)
	b.Publish(KindTabPrev, model.TabPrev{Title: "丙"})
}
