package main

import (
	"testing"

	"kiranabook/backend/internal/config"
)

func validConfig() config.Config {
	return config.Config{Port: "8080", LogFormat: "json", AllowedOrigin: "http://127.0.0.1:3000"}
}

func TestValidateConfigRejectsBadValues(t *testing.T) {
	cases := map[string]func(*config.Config){
		"port not numeric":   func(c *config.Config) { c.Port = "http" },
		"port out of range":  func(c *config.Config) { c.Port = "70000" },
		"unknown log format": func(c *config.Config) { c.LogFormat = "xml" },
		"negative redis db":  func(c *config.Config) { c.RedisDB = -1 },
		"missing origin":     func(c *config.Config) { c.AllowedOrigin = " " },
	}
	for name, mutate := range cases {
		cfg := validConfig()
		mutate(&cfg)
		if err := validateConfig(cfg); err == nil {
			t.Fatalf("%s: expected config to be rejected", name)
		}
	}
}

func TestValidateConfigAcceptsDefaults(t *testing.T) {
	if err := validateConfig(validConfig()); err != nil {
		t.Fatalf("expected valid config to pass, got %v", err)
	}
}
