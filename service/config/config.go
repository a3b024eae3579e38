package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

const (
	// DefaultContractAddress is the SIGN token contract on Ethereum mainnet.
	DefaultContractAddress = "0x868fced65edbf0056c4163515dd840e9f287a4c3"

	maxFetchPageSize = 10000
	minPollInterval  = time.Second
)

var validPageSizes = []int{10, 20, 50, 100}

// Config holds all application configuration loaded from environment variables.
// All required fields are validated at startup to ensure fail-fast behavior.
type Config struct {
	// Server configuration
	ServerAddr string
	LogLevel   string

	// Etherscan configuration
	EtherscanAPIURL string
	EtherscanAPIKey string
	ContractAddress string
	ExplorerBaseURL string
	FetchPageSize   int

	// Polling configuration
	PollInterval time.Duration
	AutoRefresh  bool
	FetchTimeout time.Duration

	// Dashboard configuration
	DefaultPageSize int
	DisplayTimezone string
	DisplayLocation *time.Location

	// NATS configuration; empty disables publishing
	NATSURL string
}

// Load reads configuration from environment variables and validates all required fields.
// Returns an error listing every missing or invalid setting.
func Load() (*Config, error) {
	cfg := &Config{}
	var errs []error

	// Server configuration
	cfg.ServerAddr = getEnvOrDefault("SERVER_ADDR", ":8080")
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")

	// Etherscan configuration
	cfg.EtherscanAPIURL = getEnvOrDefault("ETHERSCAN_API_URL", "https://api.etherscan.io/api")
	cfg.EtherscanAPIKey = os.Getenv("ETHERSCAN_API_KEY")
	cfg.ContractAddress = strings.ToLower(getEnvOrDefault("CONTRACT_ADDRESS", DefaultContractAddress))
	cfg.ExplorerBaseURL = getEnvOrDefault("EXPLORER_BASE_URL", "https://etherscan.io")

	pageSize, err := parseInt("FETCH_PAGE_SIZE", 100)
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.FetchPageSize = pageSize
	}

	// Polling configuration
	interval, err := parseDuration("POLL_INTERVAL", "60s")
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.PollInterval = interval
	}

	autoRefresh, err := parseBool("AUTO_REFRESH", true)
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.AutoRefresh = autoRefresh
	}

	timeout, err := parseDuration("FETCH_TIMEOUT", "30s")
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.FetchTimeout = timeout
	}

	// Dashboard configuration
	defaultPageSize, err := parseInt("DEFAULT_PAGE_SIZE", 20)
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.DefaultPageSize = defaultPageSize
	}

	cfg.DisplayTimezone = getEnvOrDefault("DISPLAY_TIMEZONE", "UTC")
	loc, err := time.LoadLocation(cfg.DisplayTimezone)
	if err != nil {
		errs = append(errs, fmt.Errorf("DISPLAY_TIMEZONE: unknown time zone %q: %w", cfg.DisplayTimezone, err))
	} else {
		cfg.DisplayLocation = loc
	}

	// NATS configuration
	cfg.NATSURL = os.Getenv("NATS_URL")

	errs = append(errs, cfg.validate()...)

	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %v", errs)
	}

	return cfg, nil
}

// MustLoad is like Load but panics if configuration is invalid.
// Useful for server initialization where misconfiguration should halt startup.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}

// Validate checks if the configuration is valid.
// This is useful for testing configuration without loading from env.
func (c *Config) Validate() error {
	if errs := c.validate(); len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %v", errs)
	}
	return nil
}

func (c *Config) validate() []error {
	var errs []error

	if c.EtherscanAPIKey == "" {
		errs = append(errs, fmt.Errorf("ETHERSCAN_API_KEY is required"))
	}

	if err := ValidateContractAddress(c.ContractAddress); err != nil {
		errs = append(errs, fmt.Errorf("CONTRACT_ADDRESS: %w", err))
	}

	if err := validateURL(c.EtherscanAPIURL); err != nil {
		errs = append(errs, fmt.Errorf("ETHERSCAN_API_URL: %w", err))
	}

	if err := validateURL(c.ExplorerBaseURL); err != nil {
		errs = append(errs, fmt.Errorf("EXPLORER_BASE_URL: %w", err))
	}

	if c.FetchPageSize < 1 || c.FetchPageSize > maxFetchPageSize {
		errs = append(errs, fmt.Errorf("FETCH_PAGE_SIZE must be between 1 and %d, got %d", maxFetchPageSize, c.FetchPageSize))
	}

	if c.PollInterval < minPollInterval {
		errs = append(errs, fmt.Errorf("POLL_INTERVAL must be at least 1 second, got %v", c.PollInterval))
	}

	if c.FetchTimeout < 0 {
		errs = append(errs, fmt.Errorf("FETCH_TIMEOUT cannot be negative"))
	}

	if !validPageSize(c.DefaultPageSize) {
		errs = append(errs, fmt.Errorf("DEFAULT_PAGE_SIZE must be one of %v, got %d", validPageSizes, c.DefaultPageSize))
	}

	return errs
}

// ValidateContractAddress reports whether addr is a 20-byte hex address.
func ValidateContractAddress(addr string) error {
	if !common.IsHexAddress(addr) {
		return fmt.Errorf("%q is not a hex address", addr)
	}
	return nil
}

// ChecksumContractAddress returns the EIP-55 form of the contract address.
func (c *Config) ChecksumContractAddress() string {
	return common.HexToAddress(c.ContractAddress).Hex()
}

func validPageSize(n int) bool {
	for _, size := range validPageSizes {
		if size == n {
			return true
		}
	}
	return false
}

func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid URL %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid URL %q: scheme must be http or https", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("invalid URL %q: missing host", raw)
	}
	return nil
}

// getEnvOrDefault returns the environment variable value or a default if not set.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parseDuration parses a duration from an environment variable or uses a default.
func parseDuration(key, defaultValue string) (time.Duration, error) {
	value := getEnvOrDefault(key, defaultValue)
	duration, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", key, value, err)
	}
	return duration, nil
}

// parseInt parses an integer from an environment variable or uses a default.
func parseInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	result, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q: %w", key, value, err)
	}
	return result, nil
}

// parseBool parses a boolean from an environment variable or uses a default.
func parseBool(key string, defaultValue bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	result, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("%s: invalid boolean %q: %w", key, value, err)
	}
	return result, nil
}
