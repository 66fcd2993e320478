package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Docker transport selection values.
const (
	DockerTransportSocket = "socket"
	DockerTransportHTTP   = "http"
)

// DockerConfig describes how to reach the local container runtime.
type DockerConfig struct {
	Transport string `mapstructure:"transport"`
	Socket    string `mapstructure:"socket"`
	Endpoint  string `mapstructure:"endpoint"`
	Runtime   string `mapstructure:"runtime"`
}

// KubernetesConfig describes how to reach the cluster API. An empty
// kubeconfig path selects the in-cluster service account.
type KubernetesConfig struct {
	Kubeconfig string `mapstructure:"kubeconfig"`
}

// CollectorConfig holds the idle-reclamation settings shared by every
// reconciliation pass. Read-only after startup.
type CollectorConfig struct {
	Namespace               string `mapstructure:"namespace"`
	ApplicationPort         int    `mapstructure:"application_port"`
	CleanupFrequencySeconds int    `mapstructure:"cleanup_frequency_seconds"`
	BackoffSeconds          int    `mapstructure:"backoff_seconds"`
	Workers                 int    `mapstructure:"workers"`
}

// ServerConfig holds the health/metrics listener settings.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// LoggingConfig holds the logging-related configuration.
type LoggingConfig struct {
	Level string `mapstructure:"log_level"`
}

// Config is the top-level configuration struct.
type Config struct {
	Docker     DockerConfig     `mapstructure:"docker"`
	Kubernetes KubernetesConfig `mapstructure:"kubernetes"`
	Collector  CollectorConfig  `mapstructure:"collector"`
	Server     ServerConfig     `mapstructure:"server"`
	Logging    LoggingConfig    `mapstructure:"log"`
}

// InitConfig performs the initial configuration: setting defaults, specifying the config file, and reading it.
func InitConfig() error {
	// Set defaults for each sub-configuration.
	viper.SetDefault("docker.transport", DockerTransportSocket)
	viper.SetDefault("docker.socket", "/var/run/docker.sock")
	viper.SetDefault("docker.endpoint", "tcp://localhost:2375")
	viper.SetDefault("docker.runtime", "")
	viper.SetDefault("kubernetes.kubeconfig", "")
	viper.SetDefault("collector.namespace", "default")
	viper.SetDefault("collector.application_port", 8080)
	viper.SetDefault("collector.cleanup_frequency_seconds", 300)
	viper.SetDefault("collector.backoff_seconds", 360)
	viper.SetDefault("collector.workers", 4)
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 9090)
	viper.SetDefault("log.log_level", "INFO")

	// Specify the config file details.
	viper.SetConfigName("config") // Looks for config.yaml
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".") // current directory

	// Read the config file if available.
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
		// If the file is not found, just continue with defaults and env vars.
	}

	// Enable automatic environment variable binding.
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	return nil
}

// Load unmarshals the configuration into the Config struct.
func Load() (*Config, error) {
	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}
	if err := config.validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *Config) validate() error {
	switch c.Docker.Transport {
	case DockerTransportSocket, DockerTransportHTTP:
	default:
		return fmt.Errorf("docker.transport must be %q or %q, got %q",
			DockerTransportSocket, DockerTransportHTTP, c.Docker.Transport)
	}
	if c.Collector.CleanupFrequencySeconds <= 0 {
		return fmt.Errorf("collector.cleanup_frequency_seconds must be positive")
	}
	if c.Collector.BackoffSeconds <= 0 {
		return fmt.Errorf("collector.backoff_seconds must be positive")
	}
	if c.Collector.Workers <= 0 {
		return fmt.Errorf("collector.workers must be positive")
	}
	return nil
}
