package tracing_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/ogulcanaydogan/Budget-Deviation-Guardian/internal/tracing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() tracing.Config {
	return tracing.Config{
		Enabled:     true,
		Endpoint:    "http://collector:4318",
		ServiceName: "bdg",
		Timeout:     5 * time.Second,
		SampleRate:  0.5,
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*tracing.Config)
		want   error
	}{
		{"valid", func(*tracing.Config) {}, nil},
		{"disabled skips checks", func(c *tracing.Config) { c.Enabled = false; c.Endpoint = "" }, nil},
		{"missing endpoint", func(c *tracing.Config) { c.Endpoint = "" }, tracing.ErrEndpointRequired},
		{"endpoint without host", func(c *tracing.Config) { c.Endpoint = "collector" }, tracing.ErrEndpointInvalid},
		{"missing service", func(c *tracing.Config) { c.ServiceName = "" }, tracing.ErrServiceNameRequired},
		{"zero timeout", func(c *tracing.Config) { c.Timeout = 0 }, tracing.ErrTimeoutInvalid},
		{"rate above one", func(c *tracing.Config) { c.SampleRate = 1.5 }, tracing.ErrSampleRateInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestSetup_Disabled(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	shutdown, err := tracing.Setup(context.Background(), tracing.Config{}, "dev", logger)
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	assert.NoError(t, shutdown(context.Background()))
}

func TestSetup_Invalid(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := validConfig()
	cfg.Endpoint = ""

	shutdown, err := tracing.Setup(context.Background(), cfg, "dev", logger)
	assert.ErrorIs(t, err, tracing.ErrEndpointRequired)
	assert.Nil(t, shutdown)
}
