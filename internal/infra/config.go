package infra

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv         string
	APIBaseURL     string
	AccessToken    string
	UserID         string
	WalletAddress  string
	WalletRPCURL   string
	TreasuryAddr   string
	HistoryDir     string
	GatewayPort    string
	ReceiptTimeout time.Duration
	PollInterval   time.Duration

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
}

// LoadConfig loads configuration from environment variables and applies
// defaults where needed. A .env file is honoured when present.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load(".env", ".env.local")

	cfg := &Config{
		AppEnv:           getEnv("APP_ENV", "development"),
		APIBaseURL:       getEnv("API_BASE_URL", "http://localhost:8001"),
		AccessToken:      os.Getenv("ACCESS_TOKEN"),
		UserID:           os.Getenv("USER_ID"),
		WalletAddress:    os.Getenv("WALLET_ADDRESS"),
		WalletRPCURL:     getEnv("WALLET_RPC_URL", "https://rpc.testnet.arc.network"),
		TreasuryAddr:     os.Getenv("ARC_TREASURY_ADDRESS"),
		HistoryDir:       getEnv("HISTORY_DIR", defaultHistoryDir()),
		GatewayPort:      getEnv("GATEWAY_PORT", "8090"),
		ReceiptTimeout:   time.Second * time.Duration(getEnvInt("RECEIPT_TIMEOUT_SECONDS", 180)),
		PollInterval:     time.Second * time.Duration(getEnvInt("JOB_POLL_INTERVAL_SECONDS", 2)),
		HTTPReadTimeout:  time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout: time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 30)),
		HTTPIdleTimeout:  time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
	}

	if cfg.APIBaseURL == "" {
		return nil, fmt.Errorf("API_BASE_URL is required")
	}

	return cfg, nil
}

func defaultHistoryDir() string {
	if home, err := os.UserHomeDir(); err == nil && home != "" {
		return home + "/.studio/history"
	}
	return "./history"
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}
