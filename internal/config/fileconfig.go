package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Имена переменных окружения.
const (
	EnvBroker          = "MQTT_BROKER"
	EnvClientID        = "MQTT_CLIENT_ID"
	EnvUsername        = "MQTT_USERNAME"
	EnvPassword        = "MQTT_PASSWORD"
	EnvGroup           = "GROUP_ID"
	EnvNode            = "EDGE_NODE_ID"
	EnvDevice          = "DEVICE_ID"
	EnvPrimaryHost     = "PRIMARY_HOST_ID"
	EnvHostID          = "HOST_ID"
	EnvUseAlias        = "USE_ALIAS"
	EnvPublishInterval = "PUBLISH_INTERVAL"
	EnvSettleDelay     = "SETTLE_DELAY"
	EnvConsumers       = "CONSUMERS"
	EnvAddress         = "ADDRESS"
	EnvDatabaseDSN     = "DATABASE_DSN"
	EnvRedisAddr       = "REDIS_ADDR"
	EnvWebhookURL      = "WEBHOOK_URL"
	EnvAuditFile       = "AUDIT_FILE"
	EnvGRPCAddress     = "GRPC_ADDRESS"
	EnvTrustedSubnet   = "TRUSTED_SUBNET"
	EnvStoreFile       = "FILE_STORAGE_PATH"
	EnvRestore         = "RESTORE"
	EnvSystemMetrics   = "SYSTEM_METRICS"
	EnvLogLevel        = "LOG_LEVEL"
	EnvConfig          = "CONFIG"
)

// Имена флагов командной строки.
const (
	FlagBroker          = "b"
	FlagClientID        = "id"
	FlagUsername        = "user"
	FlagPassword        = "password"
	FlagGroup           = "g"
	FlagNode            = "n"
	FlagDevice          = "device"
	FlagPrimaryHost     = "primary"
	FlagHostID          = "host"
	FlagUseAlias        = "alias"
	FlagPublishInterval = "i"
	FlagSettleDelay     = "settle"
	FlagConsumers       = "consumers"
	FlagAddress         = "a"
	FlagDatabaseDSN     = "d"
	FlagRedisAddr       = "redis"
	FlagWebhookURL      = "webhook"
	FlagAuditFile       = "audit-file"
	FlagGRPCAddress     = "grpc"
	FlagTrustedSubnet   = "t"
	FlagStoreFile       = "f"
	FlagRestore         = "r"
	FlagSystemMetrics   = "sys"
	FlagLogLevel        = "log-level"
	FlagConfig          = "c"
)

// MetricDef — объявление метрики в файле конфигурации edge-узла.
type MetricDef struct {
	Name  string  `json:"name" yaml:"name"`
	Alias *uint64 `json:"alias,omitempty" yaml:"alias,omitempty"`
	Type  string  `json:"type" yaml:"type"`
	Value string  `json:"value,omitempty" yaml:"value,omitempty"`
}

// loadConfigFile читает файл конфигурации: .yaml/.yml через yaml.v3, остальные как JSON.
func loadConfigFile(filePath string, v any) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(filePath)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, v)
	default:
		err = json.Unmarshal(data, v)
	}
	if err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

// ConfigFilePath возвращает путь к файлу конфигурации: флаг имеет приоритет над CONFIG.
func ConfigFilePath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	return EnvString(EnvConfig)
}

// fileString переносит значение из файла, если оно задано и флаг не указан явно.
func fileString(dst *string, v string, flagSet bool) {
	if v != "" && !flagSet {
		*dst = v
	}
}

func fileBool(dst *bool, v *bool, flagSet bool) {
	if v != nil && !flagSet {
		*dst = *v
	}
}

func envString(dst *string, key string) {
	if v := EnvString(key); v != "" {
		*dst = v
	}
}

func envBool(dst *bool, key string) error {
	v, ok, err := EnvBool(key)
	if err != nil {
		return err
	}
	if ok {
		*dst = v
	}
	return nil
}
