package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnvDefaults(t *testing.T) {
	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, 6, cfg.OTP.Length)
	assert.Equal(t, 10*time.Minute, cfg.OTP.Validity)
	assert.Equal(t, 30*time.Minute, cfg.Token.ApplicantTTL)
	assert.Equal(t, Limit{Requests: 5, Window: time.Hour}, cfg.RateLimit.CreateByIP)
	assert.Equal(t, Limit{Requests: 5, Window: 15 * time.Minute}, cfg.RateLimit.OTPVerifyByApp)
	assert.True(t, cfg.RateLimit.Enabled)
	assert.Empty(t, cfg.Kafka.Brokers)
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("ONBOARDING_ADDR", ":9090")
	t.Setenv("KAFKA_BROKERS", "a:9092, b:9092,")
	t.Setenv("RATELIMIT_CREATE_IP", "3/10m")
	t.Setenv("ACCOUNT_BANK_CODE", "abna")

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Addr)
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, Limit{Requests: 3, Window: 10 * time.Minute}, cfg.RateLimit.CreateByIP)
	assert.Equal(t, "ABNA", cfg.AccountNumber.BankCode)
}

func TestFromEnvInvalidValues(t *testing.T) {
	tests := []struct {
		key   string
		value string
	}{
		{"OTP_LENGTH", "six"},
		{"SHUTDOWN_TIMEOUT", "soon"},
		{"RATELIMIT_OTP_SEND_IP", "10"},
		{"RATELIMIT_OTP_SEND_IP", "0/1h"},
		{"DISABLE_RATE_LIMITING", "maybe"},
	}
	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := FromEnv()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.key)
		})
	}
}
