package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"openkeytool/internal/rules"

	"github.com/goccy/go-yaml"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix 环境变量前缀，如 OPENKEY_DEVTOOLS_URL
const EnvPrefix = "OPENKEY"

// Config 配置文件结构体
type Config struct {
	Version string `yaml:"version"`

	Sqlite SqliteConfig `yaml:"sqlite"`

	Log LogConfig `yaml:"log"`

	DevTools DevToolsConfig `yaml:"devtools"`

	Capture CaptureConfig `yaml:"capture"`

	OpenKey OpenKeyConfig `yaml:"openKey"`
}

// SqliteConfig 本地键值存储
type SqliteConfig struct {
	Dsn    string `yaml:"dsn"`
	Prefix string `yaml:"prefix"`
}

// LogConfig 日志输出
type LogConfig struct {
	Level  string   `yaml:"level"`
	Writer []string `yaml:"writer"`
	File   string   `yaml:"file"`
}

// DevToolsConfig 浏览器调试端口
type DevToolsConfig struct {
	URL string `yaml:"url"`
}

// CaptureConfig 请求捕获与菜单点击记录
type CaptureConfig struct {
	Pattern    string `yaml:"pattern"`
	TargetHost string `yaml:"targetHost" split_words:"true"`
	HomeLabel  string `yaml:"homeLabel" split_words:"true"`
	PollMS     int    `yaml:"pollMS" split_words:"true"`

	// Match 在 Pattern 之外追加的匹配条件，如限定方法或请求头
	Match rules.Matcher `yaml:"match" ignored:"true"`
}

// OpenKeyConfig openKey 获取与重试
type OpenKeyConfig struct {
	TimeoutMS  int `yaml:"timeoutMS" split_words:"true"`
	MaxRetries int `yaml:"maxRetries" split_words:"true"`
	BackoffMS  int `yaml:"backoffMS" split_words:"true"`
}

// NewConfig 创建默认配置
func NewConfig() *Config {
	return &Config{
		Version: "1.0.0",
		Sqlite: SqliteConfig{
			Dsn:    "openkeytool.sqlite3",
			Prefix: "openkey_",
		},
		Log: LogConfig{
			Level:  "info",
			Writer: []string{"file"},
			File:   "openkeytool.log",
		},
		DevTools: DevToolsConfig{
			URL: "http://127.0.0.1:9222",
		},
		Capture: CaptureConfig{
			Pattern:    "https://cdszzx.tfsmy.com/cbase/bud-cloud-governance-biz/openKey/key*",
			TargetHost: "cdszzx.tfsmy.com",
			HomeLabel:  "首页",
			PollMS:     1000,
		},
		OpenKey: OpenKeyConfig{
			TimeoutMS:  10000,
			MaxRetries: 3,
			BackoffMS:  1000,
		},
	}
}

// Load 依次应用默认值、YAML 配置文件、.env 与环境变量覆盖。
// path 为空或文件不存在时跳过文件这一层。
func Load(path string) (*Config, error) {
	cfg := NewConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("解析配置文件失败: %w", err)
			}
		}
	}

	// .env 可选
	_ = godotenv.Load()

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("加载环境变量失败: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate 校验取值范围
func (c *Config) Validate() error {
	if c.DevTools.URL == "" {
		return errors.New("devtools.url 不能为空")
	}
	if c.Capture.Pattern == "" {
		return errors.New("capture.pattern 不能为空")
	}
	if c.OpenKey.TimeoutMS <= 0 {
		return fmt.Errorf("openKey.timeoutMS 必须大于 0: %d", c.OpenKey.TimeoutMS)
	}
	if c.OpenKey.MaxRetries <= 0 {
		return fmt.Errorf("openKey.maxRetries 必须大于 0: %d", c.OpenKey.MaxRetries)
	}
	if c.OpenKey.BackoffMS < 0 {
		return fmt.Errorf("openKey.backoffMS 不能为负数: %d", c.OpenKey.BackoffMS)
	}
	return nil
}
