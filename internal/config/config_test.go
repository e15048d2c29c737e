package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const validYAML = `
chain:
  endpoint: wss://bsc.example.com/ws
  contracts:
    system_settings: "0x0000000000000000000000000000000000000001"
    exchange_reader: "0x0000000000000000000000000000000000000002"
    sake_perp: "0x0000000000000000000000000000000000000003"
    sake_perp_viewer: "0x0000000000000000000000000000000000000004"
    sake_perp_state: "0x0000000000000000000000000000000000000005"
    sake_perp_vault: "0x0000000000000000000000000000000000000006"
cex:
  platform: ftx
preflight:
  gas_balance_threshold: "0.5"
  quote_balance_threshold: "1000"
pairs:
  - pair: BTC-BUSD
    enabled: true
    asset_cap: "2000"
    leverage: "5"
    min_trade_notional: "10"
    long_entry_trigger: "-0.02"
    short_entry_trigger: "0.02"
    max_slippage_ratio: "0.002"
    cex_market_id: BTC-PERP
    cex_min_trade_size: "0.001"
  - pair: ETH-BUSD
    enabled: false
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, validYAML))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Interval != time.Minute {
		t.Fatalf("interval = %s, want default 1m", cfg.Interval)
	}
	if cfg.Chain.TxTimeout != 2*time.Minute || cfg.Chain.TxRetries != 3 {
		t.Fatalf("tx defaults = %s / %d", cfg.Chain.TxTimeout, cfg.Chain.TxRetries)
	}
	if cfg.Log.Level != "info" {
		t.Fatalf("log level = %s", cfg.Log.Level)
	}
	pair, ok := cfg.PairFor("BTC-BUSD")
	if !ok {
		t.Fatal("BTC-BUSD should resolve")
	}
	if !pair.FeeRate.Equal(MustDec("0.001").Decimal) {
		t.Fatalf("fee rate default = %s", pair.FeeRate)
	}
}

func TestDecimalsParseExactly(t *testing.T) {
	cfg, err := Load(writeConfig(t, validYAML))
	if err != nil {
		t.Fatal(err)
	}
	if !cfg.Preflight.GasBalanceThreshold.Equal(MustDec("0.5").Decimal) {
		t.Fatalf("gas threshold = %s", cfg.Preflight.GasBalanceThreshold)
	}
	pair, _ := cfg.PairFor("BTC-BUSD")
	if pair.LongEntryTrigger.String() != "-0.02" {
		t.Fatalf("long trigger = %s", pair.LongEntryTrigger)
	}
}

func TestPairForUnknownPair(t *testing.T) {
	cfg, err := Load(writeConfig(t, validYAML))
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := cfg.PairFor("DOGE-BUSD"); ok {
		t.Fatal("unknown pair should not resolve")
	}
}

func TestValidationErrors(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(string) string
		wantErr string
	}{
		{
			"missing endpoint",
			func(s string) string { return strings.Replace(s, "endpoint: wss://bsc.example.com/ws", "", 1) },
			"chain.endpoint",
		},
		{
			"missing platform",
			func(s string) string { return strings.Replace(s, "platform: ftx", "", 1) },
			"cex.platform",
		},
		{
			"missing contract",
			func(s string) string {
				return strings.Replace(s, `sake_perp: "0x0000000000000000000000000000000000000003"`, "", 1)
			},
			"chain.contracts.sake_perp",
		},
		{
			"duplicate pair",
			func(s string) string { return strings.Replace(s, "pair: ETH-BUSD", "pair: BTC-BUSD", 1) },
			"duplicate pair",
		},
		{
			"bad leverage",
			func(s string) string { return strings.Replace(s, `leverage: "5"`, `leverage: "0"`, 1) },
			"leverage",
		},
		{
			"missing cex market",
			func(s string) string { return strings.Replace(s, "cex_market_id: BTC-PERP", "", 1) },
			"cex_market_id",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.mutate(validYAML)))
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("error %q does not mention %q", err, tc.wantErr)
			}
		})
	}
}

func TestInvalidDecimalRejected(t *testing.T) {
	body := strings.Replace(validYAML, `asset_cap: "2000"`, `asset_cap: "not-a-number"`, 1)
	if _, err := Load(writeConfig(t, body)); err == nil {
		t.Fatal("expected decimal parse error")
	}
}
