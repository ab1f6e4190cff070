// Package storagetest 提供测试用的内存 sqlite 键值存储
package storagetest

import (
	"testing"

	"openkeytool/internal/storage"

	"github.com/stretchr/testify/require"
)

// New 打开一个内存库，测试结束时自动关闭
func New(t testing.TB) *storage.Store {
	t.Helper()
	s, err := storage.Open(storage.Options{DSN: ":memory:", Prefix: "test_"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}
