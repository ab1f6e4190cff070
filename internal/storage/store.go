package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"openkeytool/internal/logger"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/schema"
)

// 持久化键名
const (
	KeyCachedRequest     = "key_req_host"
	KeySettings          = "popup-settings"
	KeySearchHistory     = "li-search-history"
	KeyLastCopiedContent = "lastCopiedContent"
	KeyCopyTime          = "copyTime"
)

// KV 键值存储，值统一为字符串
type KV interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// KVEntry 键值表的一行
type KVEntry struct {
	Name      string `gorm:"primaryKey;size:191"`
	Value     string `gorm:"type:text"`
	UpdatedAt time.Time
}

// Options 存储配置
type Options struct {
	DSN    string
	Prefix string
	Logger logger.Logger
}

// Store 基于 sqlite 的键值存储
type Store struct {
	db  *gorm.DB
	log logger.Logger
}

// Open 打开数据库并迁移键值表
func Open(opts Options) (*Store, error) {
	l := opts.Logger
	if l == nil {
		l = logger.NewNop()
	}
	dsn := opts.DSN
	if dsn == "" {
		dsn = ":memory:"
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         NewGormLogger(l),
		NamingStrategy: schema.NamingStrategy{TablePrefix: opts.Prefix},
	})
	if err != nil {
		return nil, fmt.Errorf("打开数据库失败: %w", err)
	}

	// sqlite 单写连接，内存库也依赖同一连接保持数据
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("获取数据库连接失败: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&KVEntry{}); err != nil {
		return nil, fmt.Errorf("迁移键值表失败: %w", err)
	}

	l.Debug("键值存储已打开", "dsn", dsn)
	return &Store{db: db, log: l}, nil
}

// Close 关闭底层连接
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Get 读取键值，键不存在时 ok 为 false
func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	var e KVEntry
	err := s.db.WithContext(ctx).Where("name = ?", key).Take(&e).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		s.log.Err(err, "读取存储失败", "key", key)
		return "", false, err
	}
	return e.Value, true, nil
}

// Set 写入键值，已存在时覆盖
func (s *Store) Set(ctx context.Context, key, value string) error {
	e := KVEntry{Name: key, Value: value, UpdatedAt: time.Now()}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&e).Error
	if err != nil {
		s.log.Err(err, "写入存储失败", "key", key)
		return err
	}
	return nil
}

// Delete 删除键，不存在时不报错
func (s *Store) Delete(ctx context.Context, key string) error {
	return s.db.WithContext(ctx).Where("name = ?", key).Delete(&KVEntry{}).Error
}

// GetJSON 读取并解码 JSON 值
func GetJSON(ctx context.Context, kv KV, key string, out any) (bool, error) {
	raw, ok, err := kv.Get(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return false, err
	}
	return true, nil
}

// SetJSON 编码为 JSON 后写入
func SetJSON(ctx context.Context, kv KV, key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return kv.Set(ctx, key, string(b))
}

// SaveArray 将数组以 JSON 字符串形式保存
func SaveArray[T any](ctx context.Context, kv KV, key string, data []T) error {
	if data == nil {
		data = []T{}
	}
	if err := SetJSON(ctx, kv, key, data); err != nil {
		return fmt.Errorf("保存数据到存储失败 (%s): %w", key, err)
	}
	return nil
}

// GetArray 读取 JSON 数组，键不存在、读取失败或内容不是数组时返回空切片
func GetArray[T any](ctx context.Context, kv KV, key string) []T {
	var out []T
	ok, err := GetJSON(ctx, kv, key, &out)
	if err != nil || !ok || out == nil {
		return []T{}
	}
	return out
}
