package config

import (
	"errors"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// PlatformPricing controls the per-student subscription charge raised
// against each school when it generates a term's invoices.
type PlatformPricing struct {
	PricePerStudent     int64  `mapstructure:"pricePerStudent"`
	MinBillableStudents int64  `mapstructure:"minBillableStudents"`
	DueDays             int    `mapstructure:"dueDays"`
	GraceDays           int    `mapstructure:"graceDays"`
	Currency            string `mapstructure:"currency"`
}

func DefaultPlatformPricing() PlatformPricing {
	return PlatformPricing{
		PricePerStudent:     500,
		MinBillableStudents: 100,
		DueDays:             14,
		GraceDays:           14,
		Currency:            "NGN",
	}
}

type PlatformConfigHolder struct {
	current atomic.Value // holds PlatformPricing
}

// NewStaticPlatformConfigHolder is used by tests and the CLI where no reload is wanted.
func NewStaticPlatformConfigHolder(p PlatformPricing) *PlatformConfigHolder {
	holder := &PlatformConfigHolder{}
	holder.current.Store(p)
	return holder
}

func NewPlatformConfigHolder(log *zap.Logger) (*PlatformConfigHolder, error) {
	log = log.Named("config.platform")
	v := viper.New()

	v.SetConfigName("platform")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/schoolpay")
	v.AddConfigPath(".")

	v.SetEnvPrefix("SCHOOLPAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultPlatformPricing()
	v.SetDefault("platform.pricePerStudent", defaults.PricePerStudent)
	v.SetDefault("platform.minBillableStudents", defaults.MinBillableStudents)
	v.SetDefault("platform.dueDays", defaults.DueDays)
	v.SetDefault("platform.graceDays", defaults.GraceDays)
	v.SetDefault("platform.currency", defaults.Currency)

	watch := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		watch = false
	}

	var cfg PlatformPricing
	if err := v.UnmarshalKey("platform", &cfg); err != nil {
		return nil, err
	}
	if err := validatePlatformPricing(cfg); err != nil {
		return nil, err
	}

	holder := &PlatformConfigHolder{}
	holder.current.Store(cfg)

	if watch {
		v.WatchConfig()
		v.OnConfigChange(func(e fsnotify.Event) {
			var updated PlatformPricing
			if err := v.UnmarshalKey("platform", &updated); err != nil {
				log.Warn("platform pricing reload failed", zap.Error(err))
				return
			}
			if err := validatePlatformPricing(updated); err != nil {
				log.Warn("invalid platform pricing ignored", zap.Error(err))
				return
			}
			holder.current.Store(updated)
			log.Info("platform pricing reloaded", zap.String("file", e.Name))
		})
	}

	return holder, nil
}

func (h *PlatformConfigHolder) Get() PlatformPricing {
	return h.current.Load().(PlatformPricing)
}

func validatePlatformPricing(cfg PlatformPricing) error {
	if cfg.PricePerStudent < 0 {
		return errors.New("platform.pricePerStudent cannot be negative")
	}
	if cfg.MinBillableStudents < 0 {
		return errors.New("platform.minBillableStudents cannot be negative")
	}
	if cfg.DueDays < 0 || cfg.GraceDays < 0 {
		return errors.New("platform.dueDays and platform.graceDays cannot be negative")
	}
	if strings.TrimSpace(cfg.Currency) == "" {
		return errors.New("platform.currency is required")
	}
	return nil
}
