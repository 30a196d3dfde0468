package config

import (
	"testing"
	"time"
)

func validBase() Config {
	return Config{
		App:    AppConfig{Env: "local", Port: 8080},
		DB:     DBConfig{Host: "localhost", Port: 5432, User: "postgres", Password: "x", Name: "calling", SSLMode: ""},
		Redis:  RedisConfig{Host: "localhost", Port: 6379},
		Auth:   AuthConfig{JWTSecret: "secret"},
		Twilio: TwilioConfig{AccountSID: "AC000", AuthToken: "token"},
		Billing: BillingConfig{
			CallbackBaseURL: "https://api.example.com",
		},
	}
}

func TestValidate_ReportsMissingRequired(t *testing.T) {
	c := Config{}
	if err := c.Validate(); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestValidate_ProductionRequiresSSLMode(t *testing.T) {
	c := validBase()
	c.App.Env = "production"
	c.Auth.JWTIssuer = "calling-platform"
	c.Auth.JWTAudience = "api"
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error for production without DB_SSLMODE")
	}
}

func TestValidate_LocalDefaultsSSLMode(t *testing.T) {
	c := validBase()
	if err := c.Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if c.DB.SSLMode != "disable" {
		t.Fatalf("expected sslmode disable default, got %q", c.DB.SSLMode)
	}
}

func TestValidate_BillingDefaults(t *testing.T) {
	c := validBase()
	if err := c.Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if c.Billing.PendingCallTTL != 2*time.Hour {
		t.Fatalf("expected pending TTL default 2h, got %v", c.Billing.PendingCallTTL)
	}
	if c.Billing.ReaperInterval != 5*time.Minute {
		t.Fatalf("expected reaper interval default 5m, got %v", c.Billing.ReaperInterval)
	}
}

func TestValidate_RejectsRelativeCallbackURL(t *testing.T) {
	c := validBase()
	c.Billing.CallbackBaseURL = "api.example.com"
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error for non-absolute SERVER_URL")
	}
}
