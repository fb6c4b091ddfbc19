package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	DataDir string `json:"data_dir"`
	DBPath  string `json:"db_path"`

	LLMProvider    string `json:"llm_provider"`
	Model          string `json:"model"`
	BackendURL     string `json:"backend_url"`
	DeepSeekAPIKey string `json:"deepseek_api_key"`
	OpenAIAPIKey   string `json:"openai_api_key"`

	// Chain access
	RPCURL     string `json:"rpc_url"`
	ChainID    int64  `json:"chain_id"`
	PrivateKey string `json:"private_key"`

	// Data sources
	MarketDataURL string `json:"market_data_url"`
	SentimentURL  string `json:"sentiment_url"`
	OracleURL     string `json:"oracle_url"`
	RetrievalURL  string `json:"retrieval_url"`

	// Trading loop
	TargetAsset      string `json:"target_asset"`
	CollateralAsset  string `json:"collateral_asset"`
	TradeIntervalMin int    `json:"trade_interval_min"`
	CandleLookback   int    `json:"candle_lookback_days"`

	Debug bool `json:"debug"`
}

func DefaultConfig() *Config {
	currentDir, _ := os.Getwd()

	cfg := &Config{
		DataDir: filepath.Join(currentDir, "data"),
		DBPath:  filepath.Join(currentDir, "data", "perpmind.db"),

		LLMProvider: "deepseek",
		Model:       "deepseek-chat",
		BackendURL:  "",

		RPCURL:  "https://arb1.arbitrum.io/rpc",
		ChainID: 42161,

		MarketDataURL: "https://api.coingecko.com/api/v3",
		SentimentURL:  "https://cryptopanic.com/api/v1",
		OracleURL:     "https://arbitrum-api.gmxinfra.io",
		RetrievalURL:  "",

		TargetAsset:      "ETH",
		CollateralAsset:  "ETH",
		TradeIntervalMin: 10,
		CandleLookback:   30,

		Debug: false,
	}

	// Load environment variables from .env file
	_ = godotenv.Load()

	cfg.loadFromEnv()

	return cfg
}

func (c *Config) loadFromEnv() {
	if val := os.Getenv("DATA_DIR"); val != "" {
		c.DataDir = val
		c.DBPath = filepath.Join(val, "perpmind.db")
	}
	if val := os.Getenv("DB_PATH"); val != "" {
		c.DBPath = val
	}

	if val := os.Getenv("LLM_PROVIDER"); val != "" {
		c.LLMProvider = val
	}
	if val := os.Getenv("LLM_MODEL"); val != "" {
		c.Model = val
	}
	if val := os.Getenv("BACKEND_URL"); val != "" {
		c.BackendURL = val
	}
	if val := os.Getenv("DEEPSEEK_API_KEY"); val != "" {
		c.DeepSeekAPIKey = val
	}
	if val := os.Getenv("OPENAI_API_KEY"); val != "" {
		c.OpenAIAPIKey = val
	}

	if val := os.Getenv("RPC_URL"); val != "" {
		c.RPCURL = val
	}
	if val := os.Getenv("CHAIN_ID"); val != "" {
		if id, err := strconv.ParseInt(val, 10, 64); err == nil {
			c.ChainID = id
		}
	}
	if val := os.Getenv("PRIVATE_KEY"); val != "" {
		c.PrivateKey = val
	}

	if val := os.Getenv("MARKET_DATA_URL"); val != "" {
		c.MarketDataURL = val
	}
	if val := os.Getenv("SENTIMENT_URL"); val != "" {
		c.SentimentURL = val
	}
	if val := os.Getenv("ORACLE_URL"); val != "" {
		c.OracleURL = val
	}
	if val := os.Getenv("RETRIEVAL_URL"); val != "" {
		c.RetrievalURL = val
	}

	if val := os.Getenv("TARGET_ASSET"); val != "" {
		c.TargetAsset = val
	}
	if val := os.Getenv("COLLATERAL_ASSET"); val != "" {
		c.CollateralAsset = val
	}
	if val := os.Getenv("TRADE_INTERVAL_MIN"); val != "" {
		if n, err := strconv.Atoi(val); err == nil && n > 0 {
			c.TradeIntervalMin = n
		}
	}
	if val := os.Getenv("CANDLE_LOOKBACK_DAYS"); val != "" {
		if n, err := strconv.Atoi(val); err == nil && n > 1 {
			c.CandleLookback = n
		}
	}

	if val := os.Getenv("DEBUG"); val != "" {
		if debug, err := strconv.ParseBool(val); err == nil {
			c.Debug = debug
		}
	}
}

// Validate checks that the configuration is complete enough for the chat
// surface; trading additionally needs ValidateTrading.
func (c *Config) Validate() error {
	switch c.LLMProvider {
	case "deepseek":
		if c.DeepSeekAPIKey == "" {
			return fmt.Errorf("DEEPSEEK_API_KEY is required for the deepseek provider")
		}
	case "openai":
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required for the openai provider")
		}
	default:
		return fmt.Errorf("unsupported llm provider %q", c.LLMProvider)
	}
	return nil
}

func (c *Config) ValidateTrading() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.PrivateKey == "" {
		return fmt.Errorf("PRIVATE_KEY is required for trading")
	}
	if c.RPCURL == "" {
		return fmt.Errorf("RPC_URL is required for trading")
	}
	return nil
}

func (c *Config) EnsureDirectories() error {
	dirs := []string{c.DataDir, filepath.Dir(c.DBPath)}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return nil
}
