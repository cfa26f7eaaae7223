package app

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration 包装 time.Duration，让 YAML 里可以写 "30s" 这类人读时长。
type Duration time.Duration

// Std 返回标准库时长。
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Config 存放应用级配置：远端服务地址、本地缓存与导出目录、日志行为。
type Config struct {
	// ServerBaseURL 是案件管理服务端的基础地址。
	ServerBaseURL string `yaml:"server_base_url"`

	// RequestTimeout 是单次远端调用的超时时间。
	RequestTimeout Duration `yaml:"request_timeout"`

	// Investigator 写入同步留痕的操作人。
	Investigator string `yaml:"investigator"`

	DBPath     string `yaml:"db_path"`
	ExportDir  string `yaml:"export_dir"`
	ArchiveDir string `yaml:"archive_dir"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// DefaultConfig 返回本地开发环境的默认配置。
func DefaultConfig() Config {
	return Config{
		ServerBaseURL:  "http://127.0.0.1:8180",
		RequestTimeout: Duration(30 * time.Second),
		Investigator:   "system",
		DBPath:         "data/custody.db",
		ExportDir:      "data/exports",
		ArchiveDir:     "data/archives",
		LogLevel:       "info",
		LogFormat:      "console",
	}
}

// LoadConfig 从 YAML 文件装载配置，未设置的字段保持默认值。
// path 为空时直接返回默认配置；文件不存在不算错误。
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	path = strings.TrimSpace(path)
	if path == "" {
		return cfg, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	if strings.TrimSpace(cfg.ServerBaseURL) == "" {
		return cfg, fmt.Errorf("server_base_url is required")
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultConfig().RequestTimeout
	}
	return cfg, nil
}
