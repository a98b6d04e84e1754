package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// NetworkConfig is one supported chain: an ordered endpoint list and the
// chain ID transactions on it must be signed with.
type NetworkConfig struct {
	Name      string
	Endpoints []string
	ChainID   int64
}

type Config struct {
	ApiPort         int
	DbConnectionUrl string
	JwtSecret       string
	LlmEndpoint     string

	Networks map[string]NetworkConfig

	MaxRetryAttempts  int
	ReceiptTimeoutSec int
	GasBufferPct      int64
	FeeBumpPct        int64
}

func NewConfig(envPath string) (Config, error) {
	if err := godotenv.Load(envPath); err != nil {
		return Config{}, err
	}

	cfg := Config{
		ApiPort:           getEnvAsInt("PORT", 31338),
		DbConnectionUrl:   getEnv("DB_CONNECTION_URL", ""),
		JwtSecret:         getEnv("JWT_SECRET", ""),
		LlmEndpoint:       getEnv("LLM_ENDPOINT", ""),
		MaxRetryAttempts:  getEnvAsInt("MAX_RETRY_ATTEMPTS", 3),
		ReceiptTimeoutSec: getEnvAsInt("RECEIPT_TIMEOUT_SEC", 90),
		GasBufferPct:      int64(getEnvAsInt("GAS_BUFFER_PCT", 20)),
		FeeBumpPct:        int64(getEnvAsInt("FEE_BUMP_PCT", 150)),
		Networks:          map[string]NetworkConfig{},
	}

	for _, name := range splitCSV(getEnv("NETWORKS", "sepolia")) {
		key := strings.ToUpper(name)
		endpoints := splitCSV(getEnv(key+"_RPC_URLS", ""))
		if len(endpoints) == 0 {
			return Config{}, fmt.Errorf("network %s: no endpoints configured (%s_RPC_URLS)", name, key)
		}
		chainID := getEnvAsInt(key+"_CHAIN_ID", 0)
		if chainID == 0 {
			return Config{}, fmt.Errorf("network %s: missing %s_CHAIN_ID", name, key)
		}
		cfg.Networks[name] = NetworkConfig{
			Name:      name,
			Endpoints: endpoints,
			ChainID:   int64(chainID),
		}
	}

	return cfg, nil
}

func getEnv(key string, defaultVal string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultVal
}

func getEnvAsInt(name string, defaultVal int) int {
	valueStr := getEnv(name, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultVal
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
