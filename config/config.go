// Package config 加载扫码登录服务的配置：默认值 -> 配置文件（可选） -> 环境变量。
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// PathEnvVar 指定配置文件路径的环境变量
const PathEnvVar = "CONFIG_PATH"

// DefaultPaths 未指定 CONFIG_PATH 时依次查找的配置文件
var DefaultPaths = []string{"config.yaml", "config.yml"}

const (
	BackendAPI  = "api"
	BackendMock = "mock"
	BackendSDK  = "sdk"
)

type Config struct {
	Server  ServerConfig  `koanf:"server"`
	WeChat  WeChatConfig  `koanf:"wechat"`
	Cache   CacheConfig   `koanf:"cache"`
	Logging LoggingConfig `koanf:"logging"`
}

type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// Addr 返回监听地址
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type WeChatConfig struct {
	AppID       string        `koanf:"app_id"`
	AppSecret   string        `koanf:"app_secret"`
	Token       string        `koanf:"token"`
	Backend     string        `koanf:"backend"`
	APIBase     string        `koanf:"api_base"`
	HTTPTimeout time.Duration `koanf:"http_timeout"`
}

// CacheConfig 是 access_token 缓存配置
type CacheConfig struct {
	Driver          string   `koanf:"driver"`
	RedisAddr       string   `koanf:"redis_addr"`
	RedisPassword   string   `koanf:"redis_password"`
	RedisDB         int      `koanf:"redis_db"`
	MemcacheServers []string `koanf:"memcache_servers"`
}

type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ShutdownTimeout: 10 * time.Second,
		},
		WeChat: WeChatConfig{
			Backend:     BackendAPI,
			APIBase:     "https://api.weixin.qq.com",
			HTTPTimeout: 10 * time.Second,
		},
		Cache: CacheConfig{
			Driver:          "memory",
			RedisAddr:       "127.0.0.1:6379",
			MemcacheServers: []string{"127.0.0.1:11211"},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

var envMappings = map[string]string{
	"http_host":        "server.host",
	"port":             "server.port",
	"shutdown_timeout": "server.shutdown_timeout",

	"wechat_app_id":       "wechat.app_id",
	"wechat_app_secret":   "wechat.app_secret",
	"wechat_token":        "wechat.token",
	"wechat_backend":      "wechat.backend",
	"wechat_api_base":     "wechat.api_base",
	"wechat_http_timeout": "wechat.http_timeout",

	"token_cache":      "cache.driver",
	"redis_addr":       "cache.redis_addr",
	"redis_password":   "cache.redis_password",
	"redis_db":         "cache.redis_db",
	"memcache_servers": "cache.memcache_servers",

	"log_level":  "logging.level",
	"log_format": "logging.format",
}

// envTransform 把环境变量名映射为配置路径，未登记的变量返回空串被忽略
func envTransform(key string) string {
	return envMappings[strings.ToLower(key)]
}

// Load 读取配置并校验
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("加载默认配置失败: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("加载配置文件 %s 失败: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransform), nil); err != nil {
		return nil, fmt.Errorf("加载环境变量失败: %w", err)
	}

	// MEMCACHE_SERVERS 以逗号分隔
	if raw, ok := k.Get("cache.memcache_servers").(string); ok {
		if err := k.Set("cache.memcache_servers", splitList(raw)); err != nil {
			return nil, err
		}
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate 检查无法运行的配置；缺少微信凭证不算错误，见 Warnings
func (c *Config) Validate() error {
	var errs []error
	switch c.WeChat.Backend {
	case BackendAPI, BackendMock, BackendSDK:
	default:
		errs = append(errs, fmt.Errorf("wechat.backend 取值无效: %q", c.WeChat.Backend))
	}
	switch c.Cache.Driver {
	case "none", "memory", "redis", "memcache":
	default:
		errs = append(errs, fmt.Errorf("cache.driver 取值无效: %q", c.Cache.Driver))
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port 取值无效: %d", c.Server.Port))
	}
	if c.WeChat.HTTPTimeout <= 0 {
		errs = append(errs, errors.New("wechat.http_timeout 必须大于 0"))
	}
	return errors.Join(errs...)
}

// Warnings 返回不影响启动、但会让部分接口失败的配置问题
func (c *Config) Warnings() []string {
	if c.WeChat.Backend == BackendMock {
		return nil
	}
	var warns []string
	if c.WeChat.AppID == "" || c.WeChat.AppSecret == "" {
		warns = append(warns, "未设置 WECHAT_APP_ID 或 WECHAT_APP_SECRET，获取二维码将失败")
	}
	if c.WeChat.Token == "" {
		warns = append(warns, "未设置 WECHAT_TOKEN，微信回调签名校验将全部失败")
	}
	return warns
}

func findConfigFile() string {
	if p := os.Getenv(PathEnvVar); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	for _, p := range DefaultPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

func splitList(raw string) []string {
	var out []string
	for _, s := range strings.Split(raw, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
