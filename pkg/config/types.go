package config

import (
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"
	"time"
)

// FileName 默认配置文件名,位于工作目录
const FileName = "application.properties"

// 配置项键名
const (
	KeyAppPort            = "app.port"
	KeyAppWorkers         = "app.workers"
	KeyAppProgress        = "app.progress"
	KeyAppLogLevel        = "app.log_level"
	KeySFTPHost           = "sftp.host"
	KeySFTPPort           = "sftp.port"
	KeySFTPUser           = "sftp.user"
	KeySFTPPass           = "sftp.pass"
	KeySFTPKnownHosts     = "sftp.known_hosts"
	KeySFTPConnectTimeout = "sftp.connect_timeout"
	KeySFTPKeepAlive      = "sftp.keepalive_interval"
	KeyStrictHostChecking = "feature.strict_host_checking"
)

const (
	DefaultAppPort            = 9999
	DefaultWorkers            = 1
	DefaultLogLevel           = "info"
	DefaultSFTPPort           = 22
	DefaultKnownHosts         = "~/.ssh/known_hosts"
	DefaultStrictHostChecking = "no"
)

// SFTP 远程服务器连接参数。Host/User/Password 为空表示未配置,
// 只在发起传输时才会报错
type SFTP struct {
	Host              string
	Port              int
	User              string
	Password          string
	KnownHosts        string
	ConnectTimeout    time.Duration
	KeepAliveInterval time.Duration
}

// Configuration 启动时构建一次,之后只读。
// 按值传递给各组件,调用方后续修改自己的副本不会影响已构建的组件
type Configuration struct {
	AppPort            int
	Workers            int
	Progress           bool
	LogLevel           string
	SFTP               SFTP
	StrictHostChecking string

	raw map[string]string
}

// FromMap 由原始键值对构建配置,缺省项取默认值;数值/布尔/时长格式错误时返回错误
func FromMap(m map[string]string) (*Configuration, error) {
	cfg := &Configuration{
		raw: maps.Clone(m),
	}
	if cfg.raw == nil {
		cfg.raw = map[string]string{}
	}

	var err error
	if cfg.AppPort, err = cfg.intValue(KeyAppPort, DefaultAppPort); err != nil {
		return nil, err
	}
	if cfg.Workers, err = cfg.intValue(KeyAppWorkers, DefaultWorkers); err != nil {
		return nil, err
	}
	if cfg.Workers < 1 {
		return nil, fmt.Errorf("%s must be at least 1, got %d", KeyAppWorkers, cfg.Workers)
	}
	if cfg.Progress, err = cfg.boolValue(KeyAppProgress, false); err != nil {
		return nil, err
	}
	cfg.LogLevel = strings.ToLower(cfg.stringValue(KeyAppLogLevel, DefaultLogLevel))
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return nil, fmt.Errorf("invalid %s %q", KeyAppLogLevel, cfg.LogLevel)
	}

	cfg.SFTP.Host = strings.TrimSpace(cfg.raw[KeySFTPHost])
	cfg.SFTP.User = cfg.raw[KeySFTPUser]
	cfg.SFTP.Password = cfg.raw[KeySFTPPass]
	cfg.SFTP.KnownHosts = cfg.stringValue(KeySFTPKnownHosts, DefaultKnownHosts)
	if cfg.SFTP.Port, err = cfg.intValue(KeySFTPPort, DefaultSFTPPort); err != nil {
		return nil, err
	}
	if cfg.SFTP.ConnectTimeout, err = cfg.durationValue(KeySFTPConnectTimeout); err != nil {
		return nil, err
	}
	if cfg.SFTP.KeepAliveInterval, err = cfg.durationValue(KeySFTPKeepAlive); err != nil {
		return nil, err
	}

	// 原样转交给 SSH 层解释,不做大小写和空白处理
	cfg.StrictHostChecking = DefaultStrictHostChecking
	if v, ok := cfg.raw[KeyStrictHostChecking]; ok && strings.TrimSpace(v) != "" {
		cfg.StrictHostChecking = v
	}
	return cfg, nil
}

// Get 读取原始配置值
func (c *Configuration) Get(key string) (string, bool) {
	v, ok := c.raw[key]
	return v, ok
}

// Keys 返回所有原始键,已排序
func (c *Configuration) Keys() []string {
	return slices.Sorted(maps.Keys(c.raw))
}

func (c *Configuration) stringValue(key, def string) string {
	if v, ok := c.raw[key]; ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return def
}

func (c *Configuration) intValue(key string, def int) (int, error) {
	v, ok := c.raw[key]
	if !ok || strings.TrimSpace(v) == "" {
		return def, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return n, nil
}

func (c *Configuration) boolValue(key string, def bool) (bool, error) {
	v, ok := c.raw[key]
	if !ok || strings.TrimSpace(v) == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return b, nil
}

func (c *Configuration) durationValue(key string) (time.Duration, error) {
	v, ok := c.raw[key]
	if !ok || strings.TrimSpace(v) == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s must not be negative, got %s", key, d)
	}
	return d, nil
}
