package main

import (
	"context"
	"testing"

	appconfig "github.com/carelane/scheduling-platform/internal/config"
	"github.com/carelane/scheduling-platform/pkg/logging"
)

func TestBuildEmailSenderUnconfigured(t *testing.T) {
	sender := buildEmailSender(context.Background(), &appconfig.Config{}, logging.Default())
	if sender != nil {
		t.Fatalf("expected nil sender without sendgrid or ses config, got %T", sender)
	}
}

func TestBuildEmailSenderPrefersSendGrid(t *testing.T) {
	cfg := &appconfig.Config{
		SendGridAPIKey:    "sg-key",
		SendGridFromEmail: "noreply@example.com",
		SESFromEmail:      "noreply@example.com",
	}
	sender := buildEmailSender(context.Background(), cfg, logging.Default())
	if sender == nil {
		t.Fatal("expected sendgrid sender")
	}
}

func TestBuildRedisClientDisabled(t *testing.T) {
	client := buildRedisClient(context.Background(), &appconfig.Config{}, logging.Default())
	if client != nil {
		t.Fatal("expected nil client when no redis address is configured")
	}
}

func TestRedisPingerNilClient(t *testing.T) {
	if redisPinger(nil) != nil {
		t.Fatal("expected nil pinger for nil client")
	}
}
