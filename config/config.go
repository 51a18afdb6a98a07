package config

import (
	"fmt"
	"os"
	"strings"

	postgres_wrapper "github.com/TaXueWWL/matchEngine-x/pkg/infra/postgres"
	redis_wrapper "github.com/TaXueWWL/matchEngine-x/pkg/infra/redis"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

type AppConfig struct {
	ServiceName string                           `yaml:"service_name"`
	Pipeline    *PipelineConfig                  `yaml:"pipeline"`
	Trading     *TradingConfig                   `yaml:"trading"`
	Kafka       *KafkaConfig                     `yaml:"kafka"`
	MarketCache *redis_wrapper.RedisConfig       `yaml:"market_cache"`
	ArchiveDB   *postgres_wrapper.PostgresConfig `yaml:"archive_db"`
}

type PipelineConfig struct {
	// Size must be a power of two.
	Size int `yaml:"size"`
}

type KafkaConfig struct {
	Brokers          []string `yaml:"brokers"`
	TradeTopic       string   `yaml:"trade_topic"`
	OrderUpdateTopic string   `yaml:"order_update_topic"`
	ArchiveGroupID   string   `yaml:"archive_group_id"`
}

// Decimal wraps decimal.Decimal so amounts can be written as plain
// scalars in the YAML config.
type Decimal struct {
	decimal.Decimal
}

func (d *Decimal) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := decimal.NewFromString(value.Value)
	if err != nil {
		return fmt.Errorf("invalid decimal %q: %w", value.Value, err)
	}
	d.Decimal = parsed
	return nil
}

type TradingPair struct {
	Symbol       string  `yaml:"symbol"`
	BaseAsset    string  `yaml:"base_asset"`
	QuoteAsset   string  `yaml:"quote_asset"`
	MinPrice     Decimal `yaml:"min_price"`
	MaxPrice     Decimal `yaml:"max_price"`
	PriceStep    Decimal `yaml:"price_step"`
	MinQuantity  Decimal `yaml:"min_quantity"`
	MaxQuantity  Decimal `yaml:"max_quantity"`
	QuantityStep Decimal `yaml:"quantity_step"`
	Enabled      bool    `yaml:"enabled"`
}

type TradingConfig struct {
	Pairs map[string]*TradingPair `yaml:"pairs"`

	// MarketPriceFallback is used to estimate the cost of a market buy
	// when the book has no asks to price against.
	MarketPriceFallback Decimal `yaml:"market_price_fallback"`
}

const usdtSuffix = "USDT"

func (c *TradingConfig) IsValidSymbol(symbol string) bool {
	pair := c.Pairs[symbol]
	return pair != nil && pair.Enabled
}

func (c *TradingConfig) Pair(symbol string) *TradingPair {
	return c.Pairs[symbol]
}

func (c *TradingConfig) EnabledSymbols() []string {
	var symbols []string
	for symbol, pair := range c.Pairs {
		if pair.Enabled {
			symbols = append(symbols, symbol)
		}
	}
	return symbols
}

// BaseCurrency returns the base asset of a symbol, falling back to
// suffix parsing when the pair is not configured.
func (c *TradingConfig) BaseCurrency(symbol string) string {
	if pair := c.Pairs[symbol]; pair != nil {
		return pair.BaseAsset
	}
	zap.S().Warnf("trading pair not found for symbol %s, using fallback parsing", symbol)
	if strings.HasSuffix(symbol, usdtSuffix) {
		return symbol[:len(symbol)-len(usdtSuffix)]
	}
	return symbol[:3]
}

// QuoteCurrency returns the quote asset of a symbol, falling back to
// USDT when the pair is not configured.
func (c *TradingConfig) QuoteCurrency(symbol string) string {
	if pair := c.Pairs[symbol]; pair != nil {
		return pair.QuoteAsset
	}
	zap.S().Warnf("trading pair not found for symbol %s, using fallback parsing", symbol)
	return usdtSuffix
}

// Load load config from file and environment variables.
func Load(filePath string) (*AppConfig, error) {
	if len(filePath) == 0 {
		filePath = os.Getenv("CONFIG_FILE")
	}

	fields := []interface{}{
		"func",
		"config.readFromFile",
		"filePath",
		filePath,
	}

	sugar := zap.S().With(fields...)

	sugar.Debug("Load config...")
	zap.S().Debugf("CONFIG_FILE=%v", filePath)

	configBytes, err := os.ReadFile(filePath)
	if err != nil {
		sugar.Error("Failed to load config file")
		return nil, err
	}
	configBytes = []byte(os.ExpandEnv(string(configBytes)))

	cfg := &AppConfig{}

	err = yaml.Unmarshal(configBytes, cfg)
	if err != nil {
		sugar.Error("Failed to parse config file")
		return nil, err
	}

	zap.S().Debugf("config: %+v", cfg)

	return cfg, nil
}
