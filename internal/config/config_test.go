package config

import (
	"errors"
	"testing"
	"time"

	"github.com/MEDVONJOSON/GOVCHATBOT-sub000/internal/routing"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")

	c, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.AutoReplyThreshold != 0.70 || c.HumanReviewThreshold != 0.69 {
		t.Errorf("thresholds = %v/%v, want 0.70/0.69", c.AutoReplyThreshold, c.HumanReviewThreshold)
	}
	if c.PipelineTimeout != 25*time.Second {
		t.Errorf("PipelineTimeout = %s, want 25s", c.PipelineTimeout)
	}
	if c.AgencyQueuePrefix != "cases" || c.AMQPURL != "" {
		t.Errorf("agency settings = %q/%q", c.AgencyQueuePrefix, c.AMQPURL)
	}
	if c.TrustedProxyHops != 0 {
		t.Errorf("TrustedProxyHops = %d, want 0", c.TrustedProxyHops)
	}
	if c.Router() != routing.DefaultRouter() {
		t.Errorf("Router() = %+v, want default", c.Router())
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("AUTO_REPLY_THRESHOLD", "0.8")
	t.Setenv("HUMAN_REVIEW_THRESHOLD", "0.6")
	t.Setenv("PIPELINE_TIMEOUT", "10s")
	t.Setenv("WORKERS", "8")
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("APP_ENV", "production")

	c, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.AutoReplyThreshold != 0.8 || c.HumanReviewThreshold != 0.6 {
		t.Errorf("thresholds = %v/%v", c.AutoReplyThreshold, c.HumanReviewThreshold)
	}
	if c.PipelineTimeout != 10*time.Second || c.Workers != 8 {
		t.Errorf("PipelineTimeout/Workers = %s/%d", c.PipelineTimeout, c.Workers)
	}
	if c.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want lower-cased", c.LogLevel)
	}
	if !c.IsProduction() {
		t.Error("IsProduction = false")
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"threshold above one", map[string]string{"AUTO_REPLY_THRESHOLD": "1.5"}},
		{"negative threshold", map[string]string{"HUMAN_REVIEW_THRESHOLD": "-0.1"}},
		{"threshold not a number", map[string]string{"AUTO_REPLY_THRESHOLD": "high"}},
		{"timeout above target", map[string]string{"PIPELINE_TIMEOUT": "45s"}},
		{"zero timeout", map[string]string{"PIPELINE_TIMEOUT": "0s"}},
		{"bad duration", map[string]string{"MODERATION_SLA": "two hours"}},
		{"zero workers", map[string]string{"WORKERS": "0"}},
		{"negative proxy hops", map[string]string{"TRUSTED_PROXY_HOPS": "-1"}},
		{"bad log level", map[string]string{"LOG_LEVEL": "verbose"}},
		{"missing jwt secret", map[string]string{"JWT_SECRET": ""}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("JWT_SECRET", "secret")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			if !errors.Is(err, ErrConfiguration) {
				t.Errorf("Load() error = %v, want ErrConfiguration", err)
			}
		})
	}
}

func TestLoad_InvertedThresholdsAllowed(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("AUTO_REPLY_THRESHOLD", "0.5")
	t.Setenv("HUMAN_REVIEW_THRESHOLD", "0.9")

	c, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !c.Router().Inverted() {
		t.Error("Router().Inverted() = false, want true")
	}
}
