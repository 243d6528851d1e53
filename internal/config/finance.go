package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// FinanceConfig holds the tunable knobs of ledger calculation and
// anomaly detection. Thresholds are configuration, not constants, so
// operators can adjust them without a release.
type FinanceConfig struct {
	// SpikeMultiplier flags a ledger whose gross revenue exceeds the
	// partner's trailing average by this factor.
	SpikeMultiplier float64 `mapstructure:"spikeMultiplier"`
	// SpikeLookbackMonths is the trailing window used for the baseline.
	SpikeLookbackMonths int `mapstructure:"spikeLookbackMonths"`
	// ExpenseRatioBound flags a ledger whose expenses exceed this share
	// of gross revenue.
	ExpenseRatioBound float64 `mapstructure:"expenseRatioBound"`
	// SupportedCurrencies whitelists event currencies.
	SupportedCurrencies []string `mapstructure:"supportedCurrencies"`
}

func DefaultFinanceConfig() FinanceConfig {
	return FinanceConfig{
		SpikeMultiplier:     2.0,
		SpikeLookbackMonths: 6,
		ExpenseRatioBound:   0.5,
		SupportedCurrencies: []string{"USD", "EUR", "GBP"},
	}
}

func (c FinanceConfig) SupportsCurrency(currency string) bool {
	for _, cur := range c.SupportedCurrencies {
		if strings.EqualFold(cur, currency) {
			return true
		}
	}
	return false
}

// FinanceConfigHolder publishes the current finance config and hot
// reloads it when the config file changes on disk.
type FinanceConfigHolder struct {
	current atomic.Value // holds FinanceConfig
}

func NewFinanceConfigHolder() (*FinanceConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("finance")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/finledger/config") // Volume-mounted config
	v.AddConfigPath("/etc/finledger")            // System config
	v.AddConfigPath(".")                         // Current directory (dev mode)

	v.SetEnvPrefix("FINLEDGER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultFinanceConfig()
	v.SetDefault("finance.spikeMultiplier", defaults.SpikeMultiplier)
	v.SetDefault("finance.spikeLookbackMonths", defaults.SpikeLookbackMonths)
	v.SetDefault("finance.expenseRatioBound", defaults.ExpenseRatioBound)
	v.SetDefault("finance.supportedCurrencies", defaults.SupportedCurrencies)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg FinanceConfig
	if err := v.UnmarshalKey("finance", &cfg); err != nil {
		return nil, err
	}
	if err := validateFinanceConfig(cfg); err != nil {
		return nil, err
	}

	holder := &FinanceConfigHolder{}
	holder.current.Store(cfg)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated FinanceConfig
		if err := v.UnmarshalKey("finance", &updated); err != nil {
			log.Printf("[finance-config] reload failed: %v", err)
			return
		}
		if err := validateFinanceConfig(updated); err != nil {
			log.Printf("[finance-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[finance-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

// NewStaticFinanceConfigHolder wraps a fixed config, used by tests.
func NewStaticFinanceConfigHolder(cfg FinanceConfig) *FinanceConfigHolder {
	holder := &FinanceConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func (h *FinanceConfigHolder) Get() FinanceConfig {
	return h.current.Load().(FinanceConfig)
}

func validateFinanceConfig(cfg FinanceConfig) error {
	if cfg.SpikeMultiplier <= 1 {
		return errors.New("finance.spikeMultiplier must be greater than 1")
	}
	if cfg.SpikeLookbackMonths <= 0 {
		return errors.New("finance.spikeLookbackMonths must be positive")
	}
	if cfg.ExpenseRatioBound <= 0 || cfg.ExpenseRatioBound >= 1 {
		return errors.New("finance.expenseRatioBound must be in (0,1)")
	}
	if len(cfg.SupportedCurrencies) == 0 {
		return errors.New("finance.supportedCurrencies cannot be empty")
	}
	return nil
}
