package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Dec is a yaml-decodable arbitrary-precision decimal. All money and price
// thresholds are parsed from the raw scalar so no binary float ever enters
// the computation path.
type Dec struct {
	decimal.Decimal
}

func (d *Dec) UnmarshalYAML(value *yaml.Node) error {
	if value.Value == "" {
		d.Decimal = decimal.Zero
		return nil
	}
	parsed, err := decimal.NewFromString(value.Value)
	if err != nil {
		return fmt.Errorf("invalid decimal %q: %w", value.Value, err)
	}
	d.Decimal = parsed
	return nil
}

func (d Dec) MarshalYAML() (interface{}, error) {
	return d.Decimal.String(), nil
}

// MustDec parses a decimal literal and panics on failure. Intended for tests
// and static defaults only.
func MustDec(s string) Dec {
	return Dec{decimal.RequireFromString(s)}
}

type Config struct {
	Log        LoggingConfig    `yaml:"log"`
	Chain      ChainConfig      `yaml:"chain"`
	Cex        CexConfig        `yaml:"cex"`
	Email      EmailConfig      `yaml:"email"`
	State      StateConfig      `yaml:"state"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Accounting AccountingConfig `yaml:"accounting"`
	Preflight  PreflightConfig  `yaml:"preflight"`
	Interval   time.Duration    `yaml:"interval"`
	Pairs      []PairConfig     `yaml:"pairs"`

	pairIndex map[string]int
}

type LoggingConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

type ChainConfig struct {
	Endpoint  string          `yaml:"endpoint"`
	TxTimeout time.Duration   `yaml:"tx_timeout"`
	TxRetries int             `yaml:"tx_retries"`
	Contracts ContractsConfig `yaml:"contracts"`
}

// ContractsConfig pins the deployed protocol contract addresses for the
// target chain.
type ContractsConfig struct {
	SystemSettings string `yaml:"system_settings"`
	ExchangeReader string `yaml:"exchange_reader"`
	SakePerp       string `yaml:"sake_perp"`
	SakePerpViewer string `yaml:"sake_perp_viewer"`
	SakePerpState  string `yaml:"sake_perp_state"`
	SakePerpVault  string `yaml:"sake_perp_vault"`
}

type CexConfig struct {
	Platform   string `yaml:"platform"`
	Subaccount string `yaml:"subaccount"`
}

type EmailConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	User string `yaml:"user"`
	Pass string `yaml:"pass"`
	To   string `yaml:"to"`
}

type StateConfig struct {
	SQLitePath string `yaml:"sqlite_path"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

type AccountingConfig struct {
	Enabled         bool          `yaml:"enabled"`
	DSN             string        `yaml:"dsn"`
	Schema          string        `yaml:"schema"`
	QueueSize       int           `yaml:"queue_size"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// PreflightConfig holds the account-level gates checked before any pair is
// touched in a cycle.
type PreflightConfig struct {
	BlockFreshnessThreshold time.Duration `yaml:"block_freshness_threshold"`
	GasBalanceThreshold     Dec           `yaml:"gas_balance_threshold"`
	QuoteBalanceThreshold   Dec           `yaml:"quote_balance_threshold"`
	CexBalanceThreshold     Dec           `yaml:"cex_balance_threshold"`
	CexMarginRatioThreshold Dec           `yaml:"cex_margin_ratio_threshold"`
	CexLiquidationRatio     Dec           `yaml:"cex_liquidation_ratio"`
}

// PairConfig is the per-exchange trading configuration, keyed by the
// "BASE-QUOTE" pair string derived from the on-chain exchange state.
// Immutable after load.
type PairConfig struct {
	Pair                       string `yaml:"pair"`
	Enabled                    bool   `yaml:"enabled"`
	AssetCap                   Dec    `yaml:"asset_cap"`
	Leverage                   Dec    `yaml:"leverage"`
	MinTradeNotional           Dec    `yaml:"min_trade_notional"`
	LongEntryTrigger           Dec    `yaml:"long_entry_trigger"`
	LongCloseTrigger           Dec    `yaml:"long_close_trigger"`
	LongOpenPriceSpread        Dec    `yaml:"long_open_price_spread"`
	LongCexStopSpread          Dec    `yaml:"long_cex_stop_spread"`
	ShortEntryTrigger          Dec    `yaml:"short_entry_trigger"`
	ShortCloseTrigger          Dec    `yaml:"short_close_trigger"`
	ShortOpenPriceSpread       Dec    `yaml:"short_open_price_spread"`
	ShortCexStopSpread         Dec    `yaml:"short_cex_stop_spread"`
	AdjustMarginRatioThreshold Dec    `yaml:"adjust_margin_ratio_threshold"`
	MaxSlippageRatio           Dec    `yaml:"max_slippage_ratio"`
	FeeRate                    Dec    `yaml:"fee_rate"`
	CexMarketID                string `yaml:"cex_market_id"`
	CexMinTradeSize            Dec    `yaml:"cex_min_trade_size"`
}

func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	cfg.pairIndex = make(map[string]int, len(cfg.Pairs))
	for i := range cfg.Pairs {
		cfg.pairIndex[cfg.Pairs[i].Pair] = i
	}
	return &cfg, nil
}

// PairFor resolves the configuration for a derived pair key. Exchanges
// without a configured entry are skipped by the cycle.
func (c *Config) PairFor(pair string) (PairConfig, bool) {
	if c.pairIndex != nil {
		i, ok := c.pairIndex[pair]
		if !ok {
			return PairConfig{}, false
		}
		return c.Pairs[i], true
	}
	for i := range c.Pairs {
		if c.Pairs[i].Pair == pair {
			return c.Pairs[i], true
		}
	}
	return PairConfig{}, false
}

func applyDefaults(cfg *Config) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Interval == 0 {
		cfg.Interval = time.Minute
	}
	if cfg.Chain.TxTimeout == 0 {
		cfg.Chain.TxTimeout = 2 * time.Minute
	}
	if cfg.Chain.TxRetries == 0 {
		cfg.Chain.TxRetries = 3
	}
	if cfg.State.SQLitePath == "" {
		cfg.State.SQLitePath = "data/arbitrageur.db"
	}
	if cfg.Metrics.Listen == "" {
		cfg.Metrics.Listen = ":9090"
	}
	if cfg.Preflight.BlockFreshnessThreshold == 0 {
		cfg.Preflight.BlockFreshnessThreshold = time.Minute
	}
	if cfg.Email.Port == 0 {
		cfg.Email.Port = 587
	}
	for i := range cfg.Pairs {
		if cfg.Pairs[i].FeeRate.IsZero() {
			cfg.Pairs[i].FeeRate = MustDec("0.001")
		}
	}
}

func validate(cfg *Config) error {
	if cfg.Chain.Endpoint == "" {
		return errors.New("chain.endpoint is required")
	}
	if cfg.Cex.Platform == "" {
		return errors.New("cex.platform is required")
	}
	contracts := cfg.Chain.Contracts
	for name, addr := range map[string]string{
		"system_settings":  contracts.SystemSettings,
		"exchange_reader":  contracts.ExchangeReader,
		"sake_perp":        contracts.SakePerp,
		"sake_perp_viewer": contracts.SakePerpViewer,
		"sake_perp_state":  contracts.SakePerpState,
		"sake_perp_vault":  contracts.SakePerpVault,
	} {
		if addr == "" {
			return fmt.Errorf("chain.contracts.%s is required", name)
		}
	}
	if len(cfg.Pairs) == 0 {
		return errors.New("at least one pair is required")
	}
	seen := make(map[string]struct{}, len(cfg.Pairs))
	for _, pair := range cfg.Pairs {
		if pair.Pair == "" {
			return errors.New("pair key is required")
		}
		if _, dup := seen[pair.Pair]; dup {
			return fmt.Errorf("duplicate pair %s", pair.Pair)
		}
		seen[pair.Pair] = struct{}{}
		if !pair.Enabled {
			continue
		}
		if pair.Leverage.Sign() <= 0 {
			return fmt.Errorf("pair %s: leverage must be > 0", pair.Pair)
		}
		if pair.AssetCap.Sign() <= 0 {
			return fmt.Errorf("pair %s: asset_cap must be > 0", pair.Pair)
		}
		if pair.MaxSlippageRatio.Sign() < 0 {
			return fmt.Errorf("pair %s: max_slippage_ratio must be >= 0", pair.Pair)
		}
		if pair.CexMarketID == "" {
			return fmt.Errorf("pair %s: cex_market_id is required", pair.Pair)
		}
	}
	return nil
}
