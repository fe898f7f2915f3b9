package main

import (
	"os"
	"strings"

	"github.com/rs/zerolog"
	"go.mau.fi/zeroconfig"
)

type QueueConfiguration struct {
	URL               string `yaml:"url"`
	Workers           int    `yaml:"workers"`
	MaxAttempts       int    `yaml:"max_attempts"`
	RetryDelaySeconds int    `yaml:"retry_delay_seconds"`
}

type RedisConfiguration struct {
	Enable bool   `yaml:"enable"`
	Addr   string `yaml:"addr"`
}

type Configuration struct {
	// Database settings
	DBConnectionString string `yaml:"db_connection_string"`

	// Webhook verification (hub.challenge handshake)
	WebhookVerifyToken     string `yaml:"webhook_verify_token"`
	WebhookVerifyTokenFile string `yaml:"webhook_verify_token_file"`

	// Channel health settings
	ChannelAuthErrorThreshold int `yaml:"channel_auth_error_threshold"`

	// Queue settings
	Queue QueueConfiguration `yaml:"queue"`

	// Redis-backed locking, for multi-node deployments. Disabled means
	// in-process locks.
	Redis RedisConfiguration `yaml:"redis"`

	// Graph API settings
	GraphBaseURL string `yaml:"graph_base_url"`

	// HTTP listener settings
	ListenPort int `yaml:"listen_port"`

	// Logging configuration
	Logging zeroconfig.Config `yaml:"logging"`
}

func (c *Configuration) GetWebhookVerifyToken(log *zerolog.Logger) (string, error) {
	if c.WebhookVerifyTokenFile == "" {
		return c.WebhookVerifyToken, nil
	}
	log.Debug().Str("verify_token_file", c.WebhookVerifyTokenFile).Msg("reading webhook verify token from file")
	buf, err := os.ReadFile(c.WebhookVerifyTokenFile)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(buf)), nil
}
