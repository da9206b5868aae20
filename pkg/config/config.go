package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string   `yaml:"environment" default:"development" validate:"required"`
	Symbols     []string `yaml:"symbols" default:"[\"USDJPY\"]" validate:"min=1,dive,required"`
	Server      struct {
		Enabled         bool          `yaml:"enabled" default:"true"`
		Port            int           `yaml:"port" default:"8080" validate:"gt=0,lte=65535"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"10s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
	} `yaml:"server"`
	Log struct {
		Level  string `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
		Format string `yaml:"format" default:"console" validate:"oneof=console json"`
		Output string `yaml:"output" default:"stdout"`
	} `yaml:"log"`
	Metrics struct {
		Enabled bool   `yaml:"enabled" default:"true"`
		Path    string `yaml:"path" default:"/metrics"`
	} `yaml:"metrics"`
	ClickHouse struct {
		Host             string        `yaml:"host" default:"localhost"`
		Port             int           `yaml:"port" default:"9000"`
		Database         string        `yaml:"database" default:"fxforecast"`
		User             string        `yaml:"user" default:"default"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout      time.Duration `yaml:"read_timeout" default:"10s"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"60s"`
	} `yaml:"clickhouse"`
	Kafka struct {
		Enabled           bool     `yaml:"enabled"`
		Brokers           []string `yaml:"brokers" default:"[\"localhost:9092\"]"`
		ForecastTopic     string   `yaml:"forecast_topic" default:"fx.forecasts"`
		TrainingTopic     string   `yaml:"training_topic" default:"fx.training"`
		TrainRequestTopic string   `yaml:"train_request_topic" default:"fx.train.requests"`
		RequiredAcks      int      `yaml:"required_acks" default:"-1"`
		Compression       string   `yaml:"compression" default:"gzip" validate:"oneof=gzip snappy lz4 zstd"`
		Producer          struct {
			MaxAttempts  int           `yaml:"max_attempts" default:"3"`
			Linger       time.Duration `yaml:"linger" default:"100ms"`
			BatchSize    int           `yaml:"batch_size" default:"100"`
			WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
			ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
		} `yaml:"producer"`
		Consumer struct {
			GroupID    string        `yaml:"group_id" default:"fxforecast-trainer"`
			Workers    int           `yaml:"workers" default:"1"`
			BufferSize int           `yaml:"buffer_size" default:"16"`
			RetryMax   int           `yaml:"retry_max" default:"1"`
			BackoffMin time.Duration `yaml:"backoff_min" default:"500ms"`
			BackoffMax time.Duration `yaml:"backoff_max" default:"10s"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Host     string `yaml:"host" default:"localhost"`
		Port     int    `yaml:"port" default:"6379"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		Prefix   string `yaml:"prefix" default:"fxforecast"`
	} `yaml:"redis"`
	Artifacts struct {
		Backend string `yaml:"backend" default:"file" validate:"oneof=file redis"`
		Dir     string `yaml:"dir" default:"models"`
	} `yaml:"artifacts"`
	Data struct {
		Timeframe         string  `yaml:"timeframe" default:"1d" validate:"oneof=1h 4h 1d"`
		HistoryBars       int     `yaml:"history_bars" default:"1500" validate:"gt=0"`
		TargetColumn      string  `yaml:"target_column" default:"close" validate:"oneof=open high low close"`
		PredictionHorizon int     `yaml:"prediction_horizon" default:"1" validate:"gte=1"`
		TrainRatio        float64 `yaml:"train_ratio" default:"0.7" validate:"gt=0,lt=1"`
		ValRatio          float64 `yaml:"val_ratio" default:"0.15" validate:"gte=0,lt=1"`
		VolWindow         int     `yaml:"vol_window" default:"20" validate:"gt=1"`
	} `yaml:"data"`
	Features struct {
		PriceAction bool `yaml:"price_action" default:"true"`
		Technical   bool `yaml:"technical" default:"true"`
		Lags        bool `yaml:"lags" default:"true"`
		Rolling     bool `yaml:"rolling" default:"true"`
		Calendar    bool `yaml:"calendar" default:"true"`
	} `yaml:"features"`
	Sequence struct {
		SequenceLength int     `yaml:"sequence_length" default:"60" validate:"gt=0"`
		Units          []int   `yaml:"units" default:"[128,64,32]" validate:"min=1,dive,gt=0"`
		DenseUnits     []int   `yaml:"dense_units" default:"[64,32]" validate:"dive,gt=0"`
		Dropout        float64 `yaml:"dropout" default:"0.2" validate:"gte=0,lt=1"`
		DenseDropout   bool    `yaml:"dense_dropout" default:"true"`
		LearningRate   float64 `yaml:"learning_rate" default:"0.001" validate:"gt=0"`
		Epochs         int     `yaml:"epochs" default:"100" validate:"gt=0"`
		BatchSize      int     `yaml:"batch_size" default:"32" validate:"gt=0"`
		MCSimulations  int     `yaml:"mc_simulations" default:"100" validate:"gt=0"`
		Seed           int64   `yaml:"seed" default:"42"`
		Patience       int     `yaml:"patience" default:"20" validate:"gt=0"`
		LRPatience     int     `yaml:"lr_patience" default:"10" validate:"gt=0"`
	} `yaml:"sequence"`
	Tree struct {
		Objective           string  `yaml:"objective" default:"reg:squarederror" validate:"eq=reg:squarederror"`
		NEstimators         int     `yaml:"n_estimators" default:"100" validate:"gt=0"`
		MaxDepth            int     `yaml:"max_depth" default:"6" validate:"gt=0"`
		LearningRate        float64 `yaml:"learning_rate" default:"0.1" validate:"gt=0"`
		Subsample           float64 `yaml:"subsample" default:"0.8" validate:"gt=0,lte=1"`
		ColSampleByTree     float64 `yaml:"colsample_bytree" default:"0.8" validate:"gt=0,lte=1"`
		TreeMethod          string  `yaml:"tree_method" default:"hist" validate:"oneof=hist exact"`
		MaxBins             int     `yaml:"max_bins" default:"256" validate:"gte=2"`
		Seed                int64   `yaml:"seed" default:"42"`
		EarlyStoppingRounds int     `yaml:"early_stopping_rounds" default:"50" validate:"gte=0"`
		ConfidenceLevel     float64 `yaml:"confidence_level" default:"0.95" validate:"gt=0,lt=1"`
		Explain             bool    `yaml:"explain" default:"true"`
		Tune                bool    `yaml:"tune"`
		CVSplits            int     `yaml:"cv_splits" default:"5" validate:"gte=2"`
		Workers             int     `yaml:"workers"`
	} `yaml:"tree"`
	Ensemble struct {
		SequenceWeight float64 `yaml:"sequence_weight" default:"0.6"`
		TreeWeight     float64 `yaml:"tree_weight" default:"0.4"`
		Strategy       string  `yaml:"strategy" default:"weighted_average" validate:"oneof=weighted_average meta_learner voting"`
		UseMetaLearner bool    `yaml:"use_meta_learner"`
	} `yaml:"ensemble"`
	Schedule struct {
		Enabled      bool   `yaml:"enabled"`
		ForecastCron string `yaml:"forecast_cron" default:"0 5 0 * * 1-5"`
		RetrainCron  string `yaml:"retrain_cron" default:"0 0 3 * * 6"`
	} `yaml:"schedule"`
}

var validate = validator.New()

// Default returns a configuration populated only with default values.
func Default() (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}
	return &c, nil
}

// Load reads and parses a YAML configuration file. Defaults are applied first
// so that explicit zero values in the file (e.g. `lags: false`) survive.
func Load(path string) (*Config, error) {
	c, err := Default()
	if err != nil {
		return nil, err
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("FX_SYMBOLS"); v != "" {
		c.Symbols = strings.Split(v, ",")
	}
	if v := os.Getenv("CLICKHOUSE_HOST"); v != "" {
		c.ClickHouse.Host = v
	}
	if v := os.Getenv("CLICKHOUSE_PASSWORD"); v != "" {
		c.ClickHouse.Password = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("REDIS_HOST"); v != "" {
		c.Redis.Host = v
	}
	if v := os.Getenv("REDIS_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			c.Redis.Port = p
		}
	}
	if v := os.Getenv("ARTIFACT_DIR"); v != "" {
		c.Artifacts.Dir = v
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	if c.Data.TrainRatio+c.Data.ValRatio >= 1 {
		return fmt.Errorf("data.train_ratio + data.val_ratio must be < 1, got %.2f", c.Data.TrainRatio+c.Data.ValRatio)
	}
	if c.Ensemble.Strategy == "meta_learner" && !c.Ensemble.UseMetaLearner {
		return fmt.Errorf("ensemble.strategy 'meta_learner' requires ensemble.use_meta_learner")
	}
	if c.Artifacts.Backend == "redis" && !c.Redis.Enabled {
		return fmt.Errorf("artifacts.backend 'redis' requires redis.enabled")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty when kafka is enabled")
	}
	return nil
}
