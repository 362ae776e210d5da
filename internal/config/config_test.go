package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalYAML = `
server:
  port: 8080
database:
  driver: memory
payment:
  webhook_secret: 0123456789abcdef
`

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte(minimalYAML))
	require.NoError(t, err)

	assert.Equal(t, 2*time.Hour, cfg.Booking.WindowDuration)
	assert.Equal(t, 15*time.Minute, cfg.Booking.HoldTTL)
	assert.Equal(t, "sandbox", cfg.Payment.Gateway)
	assert.Equal(t, "usd", cfg.Payment.Currency)
	assert.Equal(t, 10*time.Second, cfg.Payment.CaptureTimeout)
	assert.True(t, cfg.PlatformFeeRate().Equal(decimal.RequireFromString("0.10")))
	assert.True(t, cfg.MinimumAmount().Equal(decimal.RequireFromString("1.00")))
	assert.Equal(t, "memory", cfg.Settlement.Queue)
	assert.Equal(t, 5, cfg.Settlement.MaxAttempts)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "0 * * * * *", cfg.Scheduler.ExpirePendingReservations)
}

func TestParse_EnvOverrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "9999")
	t.Setenv("PAYOUT_PLATFORM_FEE_RATE", "0.15")
	t.Setenv("BOOKING_HOLD_TTL", "5m")

	cfg, err := Parse([]byte(minimalYAML))
	require.NoError(t, err)

	assert.Equal(t, 9999, cfg.Server.Port)
	assert.True(t, cfg.PlatformFeeRate().Equal(decimal.RequireFromString("0.15")))
	assert.Equal(t, 5*time.Minute, cfg.Booking.HoldTTL)
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "missing port",
			yaml:    "database:\n  driver: memory\npayment:\n  webhook_secret: 0123456789abcdef\n",
			wantErr: "invalid server port",
		},
		{
			name:    "postgres without host",
			yaml:    "server:\n  port: 1\ndatabase:\n  driver: postgres\npayment:\n  webhook_secret: 0123456789abcdef\n",
			wantErr: "database host is required",
		},
		{
			name:    "short webhook secret",
			yaml:    "server:\n  port: 1\ndatabase:\n  driver: memory\npayment:\n  webhook_secret: short\n",
			wantErr: "at least 16 characters",
		},
		{
			name:    "fee rate above one",
			yaml:    "server:\n  port: 1\ndatabase:\n  driver: memory\npayment:\n  webhook_secret: 0123456789abcdef\npayout:\n  platform_fee_rate: \"1.5\"\n",
			wantErr: "between 0 and 1",
		},
		{
			name:    "amqp without url",
			yaml:    "server:\n  port: 1\ndatabase:\n  driver: memory\npayment:\n  webhook_secret: 0123456789abcdef\nsettlement:\n  queue: amqp\n",
			wantErr: "requires amqp_url",
		},
		{
			name:    "omise without keys",
			yaml:    "server:\n  port: 1\ndatabase:\n  driver: memory\npayment:\n  gateway: omise\n  webhook_secret: 0123456789abcdef\n",
			wantErr: "requires public and secret keys",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(minimalYAML), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.GetServerAddress())

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
