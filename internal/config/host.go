package config

import (
	"errors"
	"flag"
	"fmt"
	"time"
)

// HostConfig — конфигурация хост-приложения.
type HostConfig struct {
	Broker          string
	ClientID        string
	Username        string
	Password        string
	HostID          string
	Consumers       []string // group/node или group/node/device
	SettleDelay     time.Duration
	PublishInterval time.Duration
	Address         NetAddress
	DatabaseDSN     string
	RedisAddr       string
	WebhookURL      string
	AuditFile       string
	GRPCAddress     string
	TrustedSubnet   string
	LogLevel        string
}

// HostFileConfig — конфигурация хост-приложения в файле JSON/YAML.
type HostFileConfig struct {
	Broker          string   `json:"broker" yaml:"broker"`
	ClientID        string   `json:"client_id" yaml:"client_id"`
	Username        string   `json:"username" yaml:"username"`
	Password        string   `json:"password" yaml:"password"`
	HostID          string   `json:"host_id" yaml:"host_id"`
	Consumers       []string `json:"consumers" yaml:"consumers"`
	SettleDelay     string   `json:"settle_delay" yaml:"settle_delay"`         // "1s"
	PublishInterval string   `json:"publish_interval" yaml:"publish_interval"` // "1s"
	Address         string   `json:"address" yaml:"address"`
	DatabaseDSN     string   `json:"database_dsn" yaml:"database_dsn"`
	RedisAddr       string   `json:"redis_addr" yaml:"redis_addr"`
	WebhookURL      string   `json:"webhook_url" yaml:"webhook_url"`
	AuditFile       string   `json:"audit_file" yaml:"audit_file"`
	GRPCAddress     string   `json:"grpc_address" yaml:"grpc_address"`
	TrustedSubnet   string   `json:"trusted_subnet" yaml:"trusted_subnet"`
	LogLevel        string   `json:"log_level" yaml:"log_level"`
}

// LoadHostFileConfig загружает конфигурацию хоста из файла.
func LoadHostFileConfig(filePath string) (*HostFileConfig, error) {
	cfg := &HostFileConfig{}
	if err := loadConfigFile(filePath, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadHostConfig собирает конфигурацию хоста из аргументов, файла и окружения.
//
// Приоритет: переменные окружения, затем явно заданные флаги, затем файл, затем значения по умолчанию.
func LoadHostConfig(args []string) (*HostConfig, error) {
	cfg := &HostConfig{
		Broker:   "tcp://localhost:1883",
		HostID:   "SparkplugHost",
		LogLevel: "info",
	}

	fs := flag.NewFlagSet("host", flag.ContinueOnError)
	fs.StringVar(&cfg.Broker, FlagBroker, cfg.Broker, "MQTT broker URL")
	fs.StringVar(&cfg.ClientID, FlagClientID, "", "MQTT client id (generated when empty)")
	fs.StringVar(&cfg.Username, FlagUsername, "", "MQTT username")
	fs.StringVar(&cfg.Password, FlagPassword, "", "MQTT password")
	fs.StringVar(&cfg.HostID, FlagHostID, cfg.HostID, "Host application id")
	consumers := fs.String(FlagConsumers, "", "Comma-separated consumers group/node[/device]")
	settle := fs.String(FlagSettleDelay, "1s", "Delay between subscription and online state")
	interval := fs.String(FlagPublishInterval, "1s", "Command aggregation interval")
	addr := AddressFlag(fs, FlagAddress, NetAddress{Host: "localhost", Port: 8080}, "HTTP address host:port")
	fs.StringVar(&cfg.DatabaseDSN, FlagDatabaseDSN, "", "PostgreSQL DSN")
	fs.StringVar(&cfg.RedisAddr, FlagRedisAddr, "", "Redis address")
	fs.StringVar(&cfg.WebhookURL, FlagWebhookURL, "", "Webhook URL for metric updates")
	fs.StringVar(&cfg.AuditFile, FlagAuditFile, "", "JSON-lines file for metric updates")
	fs.StringVar(&cfg.GRPCAddress, FlagGRPCAddress, "", "gRPC health address")
	fs.StringVar(&cfg.TrustedSubnet, FlagTrustedSubnet, "", "Trusted subnet CIDR for gRPC")
	fs.StringVar(&cfg.LogLevel, FlagLogLevel, cfg.LogLevel, "Log level")
	configPath := fs.String(FlagConfig, "", "Config file (JSON or YAML)")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	set := explicitFlags(fs)
	cfg.Consumers = SplitList(*consumers)

	if path := ConfigFilePath(*configPath); path != "" {
		fc, err := LoadHostFileConfig(path)
		if err != nil {
			return nil, err
		}
		fc.apply(cfg, set)
		if fc.SettleDelay != "" && !set[FlagSettleDelay] {
			*settle = fc.SettleDelay
		}
		if fc.PublishInterval != "" && !set[FlagPublishInterval] {
			*interval = fc.PublishInterval
		}
		if fc.Address != "" && !set[FlagAddress] {
			if err := addr.Set(fc.Address); err != nil {
				return nil, fmt.Errorf("config address: %w", err)
			}
		}
	}

	var err error
	if cfg.SettleDelay, err = ParseDuration(*settle); err != nil {
		return nil, fmt.Errorf("settle delay: %w", err)
	}
	if cfg.PublishInterval, err = ParseDuration(*interval); err != nil {
		return nil, fmt.Errorf("publish interval: %w", err)
	}
	if err := EnvServer(addr, EnvAddress); err != nil {
		return nil, err
	}
	cfg.Address = *addr

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (fc *HostFileConfig) apply(cfg *HostConfig, set map[string]bool) {
	fileString(&cfg.Broker, fc.Broker, set[FlagBroker])
	fileString(&cfg.ClientID, fc.ClientID, set[FlagClientID])
	fileString(&cfg.Username, fc.Username, set[FlagUsername])
	fileString(&cfg.Password, fc.Password, set[FlagPassword])
	fileString(&cfg.HostID, fc.HostID, set[FlagHostID])
	fileString(&cfg.DatabaseDSN, fc.DatabaseDSN, set[FlagDatabaseDSN])
	fileString(&cfg.RedisAddr, fc.RedisAddr, set[FlagRedisAddr])
	fileString(&cfg.WebhookURL, fc.WebhookURL, set[FlagWebhookURL])
	fileString(&cfg.AuditFile, fc.AuditFile, set[FlagAuditFile])
	fileString(&cfg.GRPCAddress, fc.GRPCAddress, set[FlagGRPCAddress])
	fileString(&cfg.TrustedSubnet, fc.TrustedSubnet, set[FlagTrustedSubnet])
	fileString(&cfg.LogLevel, fc.LogLevel, set[FlagLogLevel])
	if len(fc.Consumers) > 0 && !set[FlagConsumers] {
		cfg.Consumers = append([]string(nil), fc.Consumers...)
	}
}

func (cfg *HostConfig) applyEnv() error {
	envString(&cfg.Broker, EnvBroker)
	envString(&cfg.ClientID, EnvClientID)
	envString(&cfg.Username, EnvUsername)
	envString(&cfg.Password, EnvPassword)
	envString(&cfg.HostID, EnvHostID)
	envString(&cfg.DatabaseDSN, EnvDatabaseDSN)
	envString(&cfg.RedisAddr, EnvRedisAddr)
	envString(&cfg.WebhookURL, EnvWebhookURL)
	envString(&cfg.AuditFile, EnvAuditFile)
	envString(&cfg.GRPCAddress, EnvGRPCAddress)
	envString(&cfg.TrustedSubnet, EnvTrustedSubnet)
	envString(&cfg.LogLevel, EnvLogLevel)
	if list := EnvList(EnvConsumers); len(list) > 0 {
		cfg.Consumers = list
	}

	settle, err := EnvDuration(EnvSettleDelay)
	if err != nil {
		return err
	}
	if settle > 0 {
		cfg.SettleDelay = settle
	}
	interval, err := EnvDuration(EnvPublishInterval)
	if err != nil {
		return err
	}
	if interval > 0 {
		cfg.PublishInterval = interval
	}
	return nil
}

// Validate проверяет обязательные параметры.
func (cfg *HostConfig) Validate() error {
	if cfg.Broker == "" {
		return errors.New("broker is required")
	}
	if cfg.HostID == "" {
		return errors.New("host id is required")
	}
	if cfg.PublishInterval <= 0 {
		return errors.New("publish interval must be positive")
	}
	if cfg.SettleDelay < 0 {
		return errors.New("settle delay must not be negative")
	}
	return nil
}
