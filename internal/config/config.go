package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	HTTPAddr    string
	DatabaseURL string // empty: track jobs in memory
	AMQPURL     string // empty: billing outcome relay disabled

	GatewaySendURL    string
	GatewayBulkURL    string
	GatewayReportURLs []string
	GatewayUser       string
	GatewayPass       string
	GatewayInsecure   bool // relax TLS verification, non-production only
	GatewayTimeout    time.Duration

	AsyncThreshold int
	FallbackWindow int
	WindowPause    time.Duration
	MaxMessageLen  int
}

func FromEnv() Config {
	return Config{
		HTTPAddr:    getenv("HTTP_ADDR", ":8080"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		AMQPURL:     os.Getenv("AMQP_URL"),

		GatewaySendURL: getenv("GATEWAY_SEND_URL", "http://localhost:9090/sms/send"),
		GatewayBulkURL: getenv("GATEWAY_BULK_URL", "http://localhost:9090/sms/bulk"),
		GatewayReportURLs: getenvList("GATEWAY_REPORT_URLS",
			"http://localhost:9090/sms/report,http://localhost:9090/report"),
		GatewayUser:     getenv("GATEWAY_USER", "user"),
		GatewayPass:     getenv("GATEWAY_PASS", "pass"),
		GatewayInsecure: getenvBool("GATEWAY_INSECURE_TLS", false),
		GatewayTimeout:  getenvDuration("GATEWAY_TIMEOUT", 15*time.Second),

		AsyncThreshold: getenvInt("ASYNC_THRESHOLD", 1000),
		FallbackWindow: getenvInt("FALLBACK_WINDOW", 20),
		WindowPause:    getenvDuration("WINDOW_PAUSE", 200*time.Millisecond),
		MaxMessageLen:  getenvInt("MAX_MESSAGE_LEN", 180),
	}
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getenvInt(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getenvBool(k string, def bool) bool {
	if v := os.Getenv(k); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func getenvDuration(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getenvList(k, def string) []string {
	raw := getenv(k, def)
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
