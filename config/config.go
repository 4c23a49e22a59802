// Package config provides configuration management for the Redsys merchant
// gateway service. Configuration is loaded from a YAML file and can be
// overridden by environment variables.
package config

import (
	"fmt"
	"sync"

	"github.com/ilyakaznacheev/cleanenv"

	"redsys/entity"
)

// Config holds all configuration for the service. Environment variables take
// precedence over YAML values.
type Config struct {
	IsDebug    bool  `yaml:"is_debug" env:"DEBUG" env-default:"false"`
	LogRecords int64 `yaml:"log_records" env:"LOG_RECORDS" env-default:"0"`
	Listen     struct {
		BindIP   string `yaml:"bind_ip" env:"BIND_IP" env-default:"0.0.0.0"`
		Port     string `yaml:"port" env:"PORT" env-default:"5200"`
		TLS      bool   `yaml:"tls_enabled" env:"TLS_ENABLED" env-default:"false"`
		CertFile string `yaml:"cert_file" env:"TLS_CERT_FILE" env-default:""`
		KeyFile  string `yaml:"key_file" env:"TLS_KEY_FILE" env-default:""`
	} `yaml:"listen"`
	Mongo struct {
		Enabled  bool   `yaml:"enabled" env:"MONGO_ENABLED" env-default:"false"`
		Host     string `yaml:"host" env:"MONGO_HOST" env-default:"127.0.0.1"`
		Port     string `yaml:"port" env:"MONGO_PORT" env-default:"27017"`
		User     string `yaml:"user" env:"MONGO_USER" env-default:"admin"`
		Password string `yaml:"password" env:"MONGO_PASSWORD" env-default:"pass"`
		Database string `yaml:"database" env:"MONGO_DATABASE" env-default:""`
	} `yaml:"mongo"`
	Shop struct {
		// BaseUrl is prepended to the callback endpoints handed to the processor
		BaseUrl string `yaml:"base_url" env:"SHOP_BASE_URL" env-default:"http://localhost:5200"`
		// DefaultCurrency applies when an origin record exposes no currency
		DefaultCurrency string `yaml:"default_currency" env:"SHOP_DEFAULT_CURRENCY" env-default:"978"`
		// PaymentMethods is the merchant's ordered payment method list; the
		// first entry tagged "redsys" with a gateway is the active config
		PaymentMethods []entity.PaymentMethod `yaml:"payment_methods"`
	} `yaml:"shop"`
}

var instance *Config
var once sync.Once

// GetConfig loads configuration from the specified YAML file path. It uses a
// singleton pattern and only loads the config once.
func GetConfig(path string) (*Config, error) {
	var err error
	once.Do(func() {
		instance = &Config{}
		if err = cleanenv.ReadConfig(path, instance); err != nil {
			desc, _ := cleanenv.GetDescription(instance, nil)
			err = fmt.Errorf("load config: %w; %s", err, desc)
			instance = nil
		}
	})
	return instance, err
}
