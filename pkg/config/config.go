package config

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
)

// MissingKeyError reports a required setting that was not provided.
type MissingKeyError struct {
	Key string
}

func (e *MissingKeyError) Error() string {
	return fmt.Sprintf("missing %s in environment", e.Key)
}

// Config holds the whole run configuration. It is built once at startup and
// handed to the payer and card sources; nothing reads the environment after
// Build returns.
type Config struct {
	PortalURL     string
	AmountPerCard decimal.Decimal
	ZipCode       string
	Username      string
	Password      string

	CardsCSV      string
	Headless      bool
	KeepOpen      bool
	TargetPayment decimal.Decimal
	HasTarget     bool
}

var requiredKeys = []string{
	"PORTAL_URL",
	"AMOUNT_PER_CARD",
	"ZIP_CODE",
	"USERNAME",
	"PASSWORD",
}

var optionalKeys = []string{
	"CARDS_CSV",
	"HEADLESS",
	"KEEP_OPEN",
	"TARGET_PAYMENT",
}

// flagOverrides maps run command flags onto configuration keys. A flag the
// user actually set wins over both the environment and the config file.
var flagOverrides = map[string]string{
	"cards":  "CARDS_CSV",
	"amount": "AMOUNT_PER_CARD",
	"target": "TARGET_PAYMENT",
}

// Build loads configuration from an optional YAML config file, the
// environment (with .env autoload) and flag overrides, in that order of
// precedence. Missing required keys fail before any session work happens.
func Build(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	_ = gotenv.Load()

	v := viper.New()
	v.SetDefault("HEADLESS", true)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	for _, key := range requiredKeys {
		_ = v.BindEnv(key)
	}
	for _, key := range optionalKeys {
		_ = v.BindEnv(key)
	}

	if flags != nil {
		for name, key := range flagOverrides {
			if f := flags.Lookup(name); f != nil && f.Changed {
				v.Set(key, f.Value.String())
			}
		}
	}

	for _, key := range requiredKeys {
		if v.GetString(key) == "" {
			return nil, &MissingKeyError{Key: key}
		}
	}

	cfg := &Config{
		PortalURL: v.GetString("PORTAL_URL"),
		ZipCode:   v.GetString("ZIP_CODE"),
		Username:  v.GetString("USERNAME"),
		Password:  v.GetString("PASSWORD"),
		CardsCSV:  v.GetString("CARDS_CSV"),
		Headless:  v.GetBool("HEADLESS"),
		KeepOpen:  v.GetBool("KEEP_OPEN"),
	}

	amount, err := decimal.NewFromString(v.GetString("AMOUNT_PER_CARD"))
	if err != nil {
		return nil, fmt.Errorf("invalid AMOUNT_PER_CARD %q: %w", v.GetString("AMOUNT_PER_CARD"), err)
	}
	cfg.AmountPerCard = amount

	if raw := v.GetString("TARGET_PAYMENT"); raw != "" {
		target, err := decimal.NewFromString(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid TARGET_PAYMENT %q: %w", raw, err)
		}
		cfg.TargetPayment = target
		cfg.HasTarget = true
	}

	return cfg, nil
}

// TargetConfigured reports whether the stop rule is armed for this run.
func (c *Config) TargetConfigured() bool {
	return c.HasTarget
}

// KeepSessionOpen reports whether the session should stay open at run end.
// A visible (non-headless) run keeps the portal open for inspection, same
// as an explicit KEEP_OPEN.
func (c *Config) KeepSessionOpen() bool {
	return c.KeepOpen || !c.Headless
}
