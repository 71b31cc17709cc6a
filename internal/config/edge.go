package config

import (
	"errors"
	"flag"
	"fmt"
	"time"
)

// EdgeConfig — конфигурация edge-узла.
type EdgeConfig struct {
	Broker          string
	ClientID        string
	Username        string
	Password        string
	Group           string
	Node            string
	Device          string
	PrimaryHostID   string
	UseAlias        bool
	PublishInterval time.Duration
	Metrics         []MetricDef
	StoreFile       string
	Restore         bool
	WebhookURL      string
	SystemMetrics   bool
	GRPCAddress     string
	LogLevel        string
}

// EdgeFileConfig — конфигурация edge-узла в файле JSON/YAML.
type EdgeFileConfig struct {
	Broker          string      `json:"broker" yaml:"broker"`
	ClientID        string      `json:"client_id" yaml:"client_id"`
	Username        string      `json:"username" yaml:"username"`
	Password        string      `json:"password" yaml:"password"`
	Group           string      `json:"group" yaml:"group"`
	Node            string      `json:"node" yaml:"node"`
	Device          string      `json:"device" yaml:"device"`
	PrimaryHostID   string      `json:"primary_host_id" yaml:"primary_host_id"`
	UseAlias        *bool       `json:"use_alias" yaml:"use_alias"`
	PublishInterval string      `json:"publish_interval" yaml:"publish_interval"` // "1s"
	Metrics         []MetricDef `json:"metrics" yaml:"metrics"`
	StoreFile       string      `json:"store_file" yaml:"store_file"`
	Restore         *bool       `json:"restore" yaml:"restore"`
	WebhookURL      string      `json:"webhook_url" yaml:"webhook_url"`
	SystemMetrics   *bool       `json:"system_metrics" yaml:"system_metrics"`
	GRPCAddress     string      `json:"grpc_address" yaml:"grpc_address"`
	LogLevel        string      `json:"log_level" yaml:"log_level"`
}

// LoadEdgeFileConfig загружает конфигурацию edge-узла из файла.
func LoadEdgeFileConfig(filePath string) (*EdgeFileConfig, error) {
	cfg := &EdgeFileConfig{}
	if err := loadConfigFile(filePath, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadEdgeConfig собирает конфигурацию edge-узла из аргументов, файла и окружения.
//
// Приоритет: переменные окружения, затем явно заданные флаги, затем файл, затем значения по умолчанию.
func LoadEdgeConfig(args []string) (*EdgeConfig, error) {
	cfg := &EdgeConfig{
		Broker:          "tcp://localhost:1883",
		Group:           "Sparkplug",
		Node:            "Edge1",
		PublishInterval: time.Second,
		StoreFile:       "edge_metrics.json",
		Restore:         true,
		SystemMetrics:   true,
		LogLevel:        "info",
	}

	fs := flag.NewFlagSet("edge", flag.ContinueOnError)
	fs.StringVar(&cfg.Broker, FlagBroker, cfg.Broker, "MQTT broker URL")
	fs.StringVar(&cfg.ClientID, FlagClientID, "", "MQTT client id (generated when empty)")
	fs.StringVar(&cfg.Username, FlagUsername, "", "MQTT username")
	fs.StringVar(&cfg.Password, FlagPassword, "", "MQTT password")
	fs.StringVar(&cfg.Group, FlagGroup, cfg.Group, "Sparkplug group id")
	fs.StringVar(&cfg.Node, FlagNode, cfg.Node, "Edge node id")
	fs.StringVar(&cfg.Device, FlagDevice, "", "Device id (device-level producer when set)")
	fs.StringVar(&cfg.PrimaryHostID, FlagPrimaryHost, "", "Primary host id")
	fs.BoolVar(&cfg.UseAlias, FlagUseAlias, false, "Publish data by alias")
	interval := fs.String(FlagPublishInterval, "1s", "Publish interval")
	fs.StringVar(&cfg.StoreFile, FlagStoreFile, cfg.StoreFile, "Metric snapshot file")
	fs.BoolVar(&cfg.Restore, FlagRestore, cfg.Restore, "Restore metrics from snapshot at startup")
	fs.StringVar(&cfg.WebhookURL, FlagWebhookURL, "", "Webhook URL for metric updates")
	fs.BoolVar(&cfg.SystemMetrics, FlagSystemMetrics, cfg.SystemMetrics, "Publish runtime and host metrics")
	fs.StringVar(&cfg.GRPCAddress, FlagGRPCAddress, "", "gRPC health address")
	fs.StringVar(&cfg.LogLevel, FlagLogLevel, cfg.LogLevel, "Log level")
	configPath := fs.String(FlagConfig, "", "Config file (JSON or YAML)")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	set := explicitFlags(fs)

	if path := ConfigFilePath(*configPath); path != "" {
		fc, err := LoadEdgeFileConfig(path)
		if err != nil {
			return nil, err
		}
		fc.apply(cfg, set)
		if fc.PublishInterval != "" && !set[FlagPublishInterval] {
			*interval = fc.PublishInterval
		}
	}

	d, err := ParseDuration(*interval)
	if err != nil {
		return nil, fmt.Errorf("publish interval: %w", err)
	}
	cfg.PublishInterval = d

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (fc *EdgeFileConfig) apply(cfg *EdgeConfig, set map[string]bool) {
	fileString(&cfg.Broker, fc.Broker, set[FlagBroker])
	fileString(&cfg.ClientID, fc.ClientID, set[FlagClientID])
	fileString(&cfg.Username, fc.Username, set[FlagUsername])
	fileString(&cfg.Password, fc.Password, set[FlagPassword])
	fileString(&cfg.Group, fc.Group, set[FlagGroup])
	fileString(&cfg.Node, fc.Node, set[FlagNode])
	fileString(&cfg.Device, fc.Device, set[FlagDevice])
	fileString(&cfg.PrimaryHostID, fc.PrimaryHostID, set[FlagPrimaryHost])
	fileBool(&cfg.UseAlias, fc.UseAlias, set[FlagUseAlias])
	fileString(&cfg.StoreFile, fc.StoreFile, set[FlagStoreFile])
	fileBool(&cfg.Restore, fc.Restore, set[FlagRestore])
	fileString(&cfg.WebhookURL, fc.WebhookURL, set[FlagWebhookURL])
	fileBool(&cfg.SystemMetrics, fc.SystemMetrics, set[FlagSystemMetrics])
	fileString(&cfg.GRPCAddress, fc.GRPCAddress, set[FlagGRPCAddress])
	fileString(&cfg.LogLevel, fc.LogLevel, set[FlagLogLevel])
	cfg.Metrics = append(cfg.Metrics, fc.Metrics...)
}

func (cfg *EdgeConfig) applyEnv() error {
	envString(&cfg.Broker, EnvBroker)
	envString(&cfg.ClientID, EnvClientID)
	envString(&cfg.Username, EnvUsername)
	envString(&cfg.Password, EnvPassword)
	envString(&cfg.Group, EnvGroup)
	envString(&cfg.Node, EnvNode)
	envString(&cfg.Device, EnvDevice)
	envString(&cfg.PrimaryHostID, EnvPrimaryHost)
	envString(&cfg.StoreFile, EnvStoreFile)
	envString(&cfg.WebhookURL, EnvWebhookURL)
	envString(&cfg.GRPCAddress, EnvGRPCAddress)
	envString(&cfg.LogLevel, EnvLogLevel)

	for key, dst := range map[string]*bool{
		EnvUseAlias:      &cfg.UseAlias,
		EnvRestore:       &cfg.Restore,
		EnvSystemMetrics: &cfg.SystemMetrics,
	} {
		if err := envBool(dst, key); err != nil {
			return err
		}
	}

	d, err := EnvDuration(EnvPublishInterval)
	if err != nil {
		return err
	}
	if d > 0 {
		cfg.PublishInterval = d
	}
	return nil
}

// Validate проверяет обязательные параметры.
func (cfg *EdgeConfig) Validate() error {
	if cfg.Broker == "" {
		return errors.New("broker is required")
	}
	if cfg.Group == "" || cfg.Node == "" {
		return errors.New("group and node are required")
	}
	if cfg.PublishInterval <= 0 {
		return errors.New("publish interval must be positive")
	}
	for _, m := range cfg.Metrics {
		if m.Name == "" || m.Type == "" {
			return fmt.Errorf("metric definition %+v: name and type are required", m)
		}
	}
	return nil
}
