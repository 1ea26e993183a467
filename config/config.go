package config

import (
	"fmt"

	"github.com/spf13/viper"
)

type Config struct {
	Server struct {
		Host         string `mapstructure:"host"`
		Port         int64  `mapstructure:"port"`
		KeysFilePath string `mapstructure:"keys_file_path"`
	} `mapstructure:"server"`

	Database struct {
		DSN string `mapstructure:"dsn"`
	} `mapstructure:"database"`

	Redis struct {
		Host     string `mapstructure:"host"`
		Port     string `mapstructure:"port"`
		User     string `mapstructure:"user"`
		Password string `mapstructure:"password"`
		DB       int    `mapstructure:"db"`
	} `mapstructure:"redis"`

	BlockStorage struct {
		Host      string `mapstructure:"host"`
		Region    string `mapstructure:"region"`
		AccessKey string `mapstructure:"access_key"`
		SecretKey string `mapstructure:"secret"`
		Bucket    string `mapstructure:"bucket"`
	} `mapstructure:"block_storage"`

	Datadog struct {
		Host string `mapstructure:"host"`
		Port string `mapstructure:"port"`
	} `mapstructure:"datadog"`

	Auth struct {
		JwtSecret string `mapstructure:"jwt_secret"`
	} `mapstructure:"auth"`

	Encryption struct {
		Secret string `mapstructure:"secret"`
	} `mapstructure:"encryption"`
}

// ReadConfig reads the named config file from the working directory,
// with environment variables taking precedence.
func ReadConfig(configName string) (Config, error) {
	var cfg Config
	viper.SetConfigName(configName)
	viper.AddConfigPath(".")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		return cfg, fmt.Errorf("fail to read config file, err: %w", err)
	}
	if err := viper.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("fail to unmarshal config, err: %w", err)
	}
	return cfg, nil
}
