package settings

import (
	"context"
	"testing"

	"openkeytool/internal/errs"
	"openkeytool/internal/storage"
	"openkeytool/internal/storage/storagetest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadSeedsDefault(t *testing.T) {
	ctx := context.Background()
	kv := storagetest.New(t)
	m := New(kv, nil)

	m.Load(ctx)
	assert.Equal(t, DefaultHost, m.HostPrefix())

	raw, ok, err := kv.Get(ctx, storage.KeySettings)
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `{"hostPrefix":"http://localhost:4000"}`, raw)
}

func TestLoadExisting(t *testing.T) {
	ctx := context.Background()
	kv := storagetest.New(t)
	require.NoError(t, kv.Set(ctx, storage.KeySettings, `{"hostPrefix":"http://h:1","theme":"dark"}`))

	m := New(kv, nil)
	m.Load(ctx)
	assert.Equal(t, "http://h:1", m.HostPrefix())

	// 保存时保留未知字段
	require.NoError(t, m.UpdateHostPrefix(ctx, "http://h:2"))
	raw, _, err := kv.Get(ctx, storage.KeySettings)
	require.NoError(t, err)
	assert.JSONEq(t, `{"hostPrefix":"http://h:2","theme":"dark"}`, raw)
}

func TestLoadInvalidStoredValue(t *testing.T) {
	ctx := context.Background()
	kv := storagetest.New(t)
	require.NoError(t, kv.Set(ctx, storage.KeySettings, `{"hostPrefix":42}`))

	m := New(kv, nil)
	m.Load(ctx)
	assert.Equal(t, DefaultHost, m.HostPrefix())
}

func TestUpdateHostPrefix(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{"full url", "https://api.example.com", "https://api.example.com", false},
		{"missing scheme", "localhost:3000", "http://localhost:3000", false},
		{"bare host", "example.com", "http://example.com", false},
		{"empty", "   ", "", true},
		{"http prefix but invalid", "httpnope", "", true},
		{"garbage", "http://", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := New(storagetest.New(t), nil)
			err := m.UpdateHostPrefix(context.Background(), tt.input)
			if tt.wantErr {
				assert.ErrorIs(t, err, errs.ErrValidation)
				assert.Equal(t, DefaultHost, m.HostPrefix())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, m.HostPrefix())
		})
	}
}

func TestReset(t *testing.T) {
	ctx := context.Background()
	m := New(storagetest.New(t), nil)
	require.NoError(t, m.UpdateHostPrefix(ctx, "http://other"))
	require.NoError(t, m.Reset(ctx))
	assert.Equal(t, DefaultHost, m.Settings().HostPrefix)
}

func TestBuildURL(t *testing.T) {
	m := New(storagetest.New(t), nil)
	require.NoError(t, m.UpdateHostPrefix(context.Background(), "http://h/"))

	assert.Equal(t, "http://full/path", m.BuildURL("http://full/path"))
	assert.Equal(t, "https://full/path", m.BuildURL("https://full/path"))
	assert.Equal(t, "http://h/p", m.BuildURL("/p"))
	assert.Equal(t, "http://h/p", m.BuildURL("p"))
	assert.Equal(t, "http://h/#/route?a=1", m.BuildURL("#/route?a=1"))
	assert.Equal(t, "http://h/", m.BuildURL(""))
}
