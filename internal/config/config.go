// =================================
// File: internal/config/config.go
// =================================
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/viper"
)

// VenueConfig is one exchange in probe order.
type VenueConfig struct {
	ID      string `mapstructure:"id"`
	Name    string `mapstructure:"name"`
	Factory string `mapstructure:"factory"`
	Router  string `mapstructure:"router"`
}

// Config holds application settings loaded from config.json.
type Config struct {
	RPCList    []string      `mapstructure:"rpc_list"`
	ChainID    int64         `mapstructure:"chain_id"`
	BaseToken  string        `mapstructure:"base_token"`
	Venues     []VenueConfig `mapstructure:"venues"`
	PrivateKey string        `mapstructure:"private_key"`

	PollInterval       time.Duration `mapstructure:"-"`
	PollIntervalMS     int           `mapstructure:"poll_interval"`
	PriceInterval      time.Duration `mapstructure:"-"`
	PriceIntervalMS    int           `mapstructure:"price_interval"`
	LiquidityTimeout   time.Duration `mapstructure:"-"`
	LiquidityTimeoutMS int           `mapstructure:"liquidity_timeout"`
	TxDeadline         time.Duration `mapstructure:"-"`
	TxDeadlineSec      int           `mapstructure:"tx_deadline"`
	ConfirmTimeout     time.Duration `mapstructure:"-"`
	ConfirmTimeoutMS   int           `mapstructure:"confirm_timeout"`
	SessionTTL         time.Duration `mapstructure:"-"`
	SessionTTLMin      int           `mapstructure:"session_ttl"`

	GasLimit     uint64  `mapstructure:"gas_limit"`
	Retries      int     `mapstructure:"retries"`
	RPCRateLimit float64 `mapstructure:"rpc_rate_limit"`
	MaxBuyETH    string  `mapstructure:"max_buy_eth"`

	SecurityCheck      bool    `mapstructure:"security_check"`
	MaxOwnerPercentage float64 `mapstructure:"max_owner_percentage"`

	AlertProfitTargetPct float64       `mapstructure:"alert_profit_target_pct"`
	AlertLossLimitPct    float64       `mapstructure:"alert_loss_limit_pct"`
	AlertCooldown        time.Duration `mapstructure:"-"`
	AlertCooldownSec     int           `mapstructure:"alert_cooldown"`

	EventBuffer  int    `mapstructure:"event_buffer"`
	DebugLogging bool   `mapstructure:"debug_logging"`
	LogFile      string `mapstructure:"log_file"`
	MetricsAddr  string `mapstructure:"metrics_addr"`
	ExportDir    string `mapstructure:"export_dir"`
}

const (
	DefaultChainID            = 8453
	DefaultBaseToken          = "0x4200000000000000000000000000000000000006"
	DefaultRPC                = "https://mainnet.base.org"
	DefaultPollIntervalMS     = 500
	DefaultPriceIntervalMS    = 2000
	DefaultLiquidityTimeoutMS = 5000
	DefaultTxDeadlineSec      = 60
	DefaultConfirmTimeoutMS   = 120000
	DefaultSessionTTLMin      = 60
	DefaultGasLimit           = 500000
	DefaultRetries            = 3
	DefaultRPCRateLimit       = 20
	DefaultMaxBuyETH          = "10"
	DefaultMaxOwnerPercentage = 50
	DefaultEventBuffer        = 256
)

// DefaultVenues are the Base mainnet Uniswap V2 and SushiSwap V2
// deployments, in probe order.
func DefaultVenues() []VenueConfig {
	return []VenueConfig{
		{
			ID:      "uniswap_v2",
			Name:    "Uniswap V2",
			Factory: "0x8909Dc15e40173Ff4699343b6eB8132c65e18eC6",
			Router:  "0x4752ba5DBc23f44D87826276BF6Fd6b1C372aD24",
		},
		{
			ID:      "sushiswap_v2",
			Name:    "SushiSwap V2",
			Factory: "0x71524B4f93c58fcbF659783284E38825f0622859",
			Router:  "0x6BDED42c6DA8FBf0d2bA55B2fa120C5e0c8D7891",
		},
	}
}

func setDefaults(v *viper.Viper) {
	defaults := map[string]interface{}{
		"rpc_list":                []string{DefaultRPC},
		"chain_id":                DefaultChainID,
		"base_token":              DefaultBaseToken,
		"poll_interval":           DefaultPollIntervalMS,
		"price_interval":          DefaultPriceIntervalMS,
		"liquidity_timeout":       DefaultLiquidityTimeoutMS,
		"tx_deadline":             DefaultTxDeadlineSec,
		"confirm_timeout":         DefaultConfirmTimeoutMS,
		"session_ttl":             DefaultSessionTTLMin,
		"gas_limit":               DefaultGasLimit,
		"retries":                 DefaultRetries,
		"rpc_rate_limit":          DefaultRPCRateLimit,
		"max_buy_eth":             DefaultMaxBuyETH,
		"security_check":          true,
		"max_owner_percentage":    DefaultMaxOwnerPercentage,
		"alert_profit_target_pct": 50,
		"alert_loss_limit_pct":    20,
		"alert_cooldown":          300,
		"event_buffer":            DefaultEventBuffer,
		"debug_logging":           false,
		"export_dir":              "exports",
	}
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
}

// LoadConfig reads configuration from path and performs validation. An
// empty path loads defaults plus environment overrides only.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config error: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal error: %w", err)
	}
	if len(cfg.Venues) == 0 {
		cfg.Venues = DefaultVenues()
	}

	loadEnvironmentVariables(v, &cfg)

	// Convert ms to Duration
	cfg.PollInterval = time.Duration(cfg.PollIntervalMS) * time.Millisecond
	cfg.PriceInterval = time.Duration(cfg.PriceIntervalMS) * time.Millisecond
	cfg.LiquidityTimeout = time.Duration(cfg.LiquidityTimeoutMS) * time.Millisecond
	cfg.ConfirmTimeout = time.Duration(cfg.ConfirmTimeoutMS) * time.Millisecond
	cfg.TxDeadline = time.Duration(cfg.TxDeadlineSec) * time.Second
	cfg.SessionTTL = time.Duration(cfg.SessionTTLMin) * time.Minute
	cfg.AlertCooldown = time.Duration(cfg.AlertCooldownSec) * time.Second

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// validate checks required fields and ranges.
func (c *Config) validate() error {
	if len(c.RPCList) == 0 {
		return errors.New("rpc_list must contain at least one RPC endpoint")
	}
	for _, rpcURL := range c.RPCList {
		if err := validateURLWithCache(rpcURL, "http"); err != nil {
			return fmt.Errorf("rpc_list: %s: %w", c.MaskRPCForLogging(rpcURL), err)
		}
	}
	if c.ChainID <= 0 {
		return errors.New("invalid chain_id")
	}
	if !common.IsHexAddress(c.BaseToken) {
		return errors.New("base_token must be an address")
	}
	if err := validateVenues(c.Venues); err != nil {
		return err
	}
	if err := validateNumericParams(c); err != nil {
		return err
	}
	if c.PrivateKey != "" {
		if len(strings.TrimPrefix(c.PrivateKey, "0x")) != 64 {
			return errors.New("private_key must be 32 bytes of hex")
		}
	}
	return nil
}

func validateVenues(venues []VenueConfig) error {
	seen := make(map[string]bool, len(venues))
	for i, venue := range venues {
		id := strings.ToLower(strings.TrimSpace(venue.ID))
		if id == "" {
			return fmt.Errorf("venues[%d]: id is required", i)
		}
		if seen[id] {
			return fmt.Errorf("venues[%d]: duplicate id %q", i, venue.ID)
		}
		seen[id] = true
		if !common.IsHexAddress(venue.Factory) || !common.IsHexAddress(venue.Router) {
			return fmt.Errorf("venue %q: factory and router must be addresses", venue.ID)
		}
	}
	return nil
}

func validateNumericParams(c *Config) error {
	switch {
	case c.PollIntervalMS <= 0:
		return errors.New("invalid poll_interval")
	case c.PriceIntervalMS <= 0:
		return errors.New("invalid price_interval")
	case c.LiquidityTimeoutMS < 0:
		return errors.New("invalid liquidity_timeout")
	case c.TxDeadlineSec <= 0:
		return errors.New("invalid tx_deadline")
	case c.ConfirmTimeoutMS <= 0:
		return errors.New("invalid confirm_timeout")
	case c.SessionTTLMin < 0:
		return errors.New("invalid session_ttl")
	case c.GasLimit == 0:
		return errors.New("invalid gas_limit")
	case c.Retries < 0:
		return errors.New("invalid retries count")
	case c.RPCRateLimit < 0:
		return errors.New("invalid rpc_rate_limit")
	case c.MaxOwnerPercentage < 0 || c.MaxOwnerPercentage > 100:
		return errors.New("max_owner_percentage must be between 0 and 100")
	case c.EventBuffer < 0:
		return errors.New("invalid event_buffer")
	}
	return nil
}

var urlCache sync.Map

func validateURLWithCache(rawURL string, protocol string) error {
	if _, ok := urlCache.Load(rawURL); ok {
		return nil
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return errors.New("invalid URL format")
	}
	if !strings.HasPrefix(parsed.Scheme, protocol) && !strings.HasPrefix(parsed.Scheme, "ws") {
		return errors.New("invalid URL protocol")
	}
	urlCache.Store(rawURL, parsed)
	return nil
}

func loadEnvironmentVariables(v *viper.Viper, cfg *Config) {
	v.SetEnvPrefix("SNIPER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if key := strings.TrimSpace(v.GetString("PRIVATE_KEY")); key != "" {
		cfg.PrivateKey = key
	}

	envRPCList := v.GetString("RPC_LIST")
	if envRPCList != "" {
		rpcs := strings.Split(envRPCList, ",")
		var cleanRPCs []string
		for _, rpc := range rpcs {
			clean := strings.TrimSpace(rpc)
			if clean != "" {
				cleanRPCs = append(cleanRPCs, clean)
			}
		}
		if len(cleanRPCs) > 0 {
			cfg.RPCList = cleanRPCs
		}
	}
}

// MaskRPCForLogging hides API keys carried in RPC URLs, either as query
// parameters or as the last path segment (Alchemy, Infura style).
func (c *Config) MaskRPCForLogging(rpcURL string) string {
	parsed, err := url.Parse(rpcURL)
	if err != nil {
		return rpcURL
	}
	masked := rpcURL
	for _, values := range parsed.Query() {
		for _, secret := range values {
			if secret != "" {
				masked = strings.ReplaceAll(masked, secret, "***")
			}
		}
	}
	segments := strings.Split(parsed.Path, "/")
	if last := segments[len(segments)-1]; len(last) >= 16 {
		masked = strings.Replace(masked, last, "***", 1)
	}
	return masked
}

// GetMaskedRPCList returns RPC list with masked API keys for logging
func (c *Config) GetMaskedRPCList() []string {
	masked := make([]string, len(c.RPCList))
	for i, rpc := range c.RPCList {
		masked[i] = c.MaskRPCForLogging(rpc)
	}
	return masked
}
