package config

import (
	"fmt"
	"time"
)

type NATSConfig struct {
	Url     string        `koanf:"url"`
	Timeout time.Duration `koanf:"timeout"`
}

func (c *NATSConfig) Validate() error {
	if c.Url == "" {
		return fmt.Errorf("NATS URL is not configured")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("NATS dial timeout is not configured")
	}
	return nil
}

// SubscriberConfig drives the JetStream consumer used by the index projector.
type SubscriberConfig struct {
	Stream   string        `koanf:"stream"`
	Subject  string        `koanf:"subject"`
	Consumer string        `koanf:"consumer"`
	Batch    int           `koanf:"batch"`
	Timeout  time.Duration `koanf:"timeout"`
	Interval time.Duration `koanf:"interval"`
	Workers  int           `koanf:"workers"`
}

func (c *SubscriberConfig) Validate() error {
	if c.Stream == "" {
		return fmt.Errorf("subscriber: stream is not configured")
	}
	if c.Subject == "" {
		return fmt.Errorf("subscriber: subject is not configured")
	}
	if c.Consumer == "" {
		return fmt.Errorf("subscriber: consumer is not configured")
	}
	if c.Batch <= 0 {
		return fmt.Errorf("subscriber: batch must be greater than zero")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("subscriber: timeout must be greater than zero")
	}
	if c.Interval <= 0 {
		return fmt.Errorf("subscriber: interval must be greater than zero")
	}
	if c.Workers <= 0 {
		return fmt.Errorf("subscriber: workers must be greater than zero")
	}
	return nil
}
