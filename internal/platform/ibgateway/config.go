// Package ibgateway implements the stateful session protocol spoken by the
// IB-style market data gateway: a TCP connection carrying framed request
// messages outward and asynchronous bar, completion and error events inward,
// all correlated by integer request ids.
package ibgateway

import (
	"os"
	"strconv"
	"time"
)

// Config holds connection settings for the data gateway.
type Config struct {
	Host string
	Port int

	// ClientID identifies the equity/index session; OptionClientID the
	// option session. The gateway rejects two live sessions sharing an
	// identity, so concurrently-active sessions must use distinct ids.
	ClientID       int
	OptionClientID int

	ConnectTimeout time.Duration // dial + handshake bound
	RequestTimeout time.Duration // per-request wait for the terminal event
	SettleDelay    time.Duration // pause after connect before first request
	Cooldown       time.Duration // pause after disconnect before the identity may reconnect
}

// LoadConfig loads gateway configuration from environment variables.
func LoadConfig() Config {
	return Config{
		Host:           envOr("IB_HOST", "127.0.0.1"),
		Port:           envIntOr("IB_PORT", 7496),
		ClientID:       envIntOr("IB_CLIENT_ID", 123),
		OptionClientID: envIntOr("IB_OPTION_CLIENT_ID", 124),
		ConnectTimeout: 10 * time.Second,
		RequestTimeout: 30 * time.Second,
		SettleDelay:    time.Second,
		Cooldown:       2 * time.Second,
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envIntOr(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
