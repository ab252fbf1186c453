package config

import (
	"errors"
	"fmt"

	"github.com/magiconair/properties"
	"gopkg.in/yaml.v3"
)

// ErrLoad 配置文件不存在或无法解析
var ErrLoad = errors.New("could not load configuration")

type Store interface {
	Load() (*Configuration, error)
}

type propertiesStore struct {
	Path string
}

// NewPropertiesStore 从 key=value 格式的 properties 文件加载配置
func NewPropertiesStore(path string) Store {
	return &propertiesStore{Path: path}
}

func (s *propertiesStore) Load() (*Configuration, error) {
	// 关闭 ${...} 展开,密码等值按原样读取
	loader := &properties.Loader{
		Encoding:         properties.UTF8,
		DisableExpansion: true,
	}
	p, err := loader.LoadFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("%w from %s: %w", ErrLoad, s.Path, err)
	}
	cfg, err := FromMap(p.Map())
	if err != nil {
		return nil, fmt.Errorf("%w from %s: %w", ErrLoad, s.Path, err)
	}
	return cfg, nil
}

const maskedPassword = "******"

// yamlView 用于展示的配置结构,密码已脱敏
type yamlView struct {
	App struct {
		Port     int    `yaml:"port"`
		Workers  int    `yaml:"workers"`
		Progress bool   `yaml:"progress"`
		LogLevel string `yaml:"log_level"`
	} `yaml:"app"`
	SFTP struct {
		Host              string `yaml:"host"`
		Port              int    `yaml:"port"`
		User              string `yaml:"user"`
		Pass              string `yaml:"pass"`
		KnownHosts        string `yaml:"known_hosts"`
		ConnectTimeout    string `yaml:"connect_timeout"`
		KeepAliveInterval string `yaml:"keepalive_interval"`
	} `yaml:"sftp"`
	Feature struct {
		StrictHostChecking string `yaml:"strict_host_checking"`
	} `yaml:"feature"`
}

// YAML 以 YAML 格式输出生效的配置
func (c *Configuration) YAML() ([]byte, error) {
	var v yamlView
	v.App.Port = c.AppPort
	v.App.Workers = c.Workers
	v.App.Progress = c.Progress
	v.App.LogLevel = c.LogLevel
	v.SFTP.Host = c.SFTP.Host
	v.SFTP.Port = c.SFTP.Port
	v.SFTP.User = c.SFTP.User
	if c.SFTP.Password != "" {
		v.SFTP.Pass = maskedPassword
	}
	v.SFTP.KnownHosts = c.SFTP.KnownHosts
	v.SFTP.ConnectTimeout = c.SFTP.ConnectTimeout.String()
	v.SFTP.KeepAliveInterval = c.SFTP.KeepAliveInterval.String()
	v.Feature.StrictHostChecking = c.StrictHostChecking
	return yaml.Marshal(&v)
}
