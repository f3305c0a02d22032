package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kanna-karuppasamy/home-energy-monitor/internal/cost"
	"github.com/kanna-karuppasamy/home-energy-monitor/internal/poller"
)

// Config holds all application configuration
type Config struct {
	Sense     SenseConfig     `yaml:"sense"`
	Poller    PollerConfig    `yaml:"poller"`
	Cost      CostConfig      `yaml:"cost"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	Processor ProcessorConfig `yaml:"processor"`
	HTTP      HTTPConfig      `yaml:"http"`
	Insights  InsightsConfig  `yaml:"insights"`
	Log       LogConfig       `yaml:"log"`
}

// SenseConfig holds Sense API credentials and settings
type SenseConfig struct {
	Email    string        `yaml:"email"`
	Password string        `yaml:"password"`
	BaseURL  string        `yaml:"base_url"`
	Timeout  time.Duration `yaml:"timeout"`
}

// PollerConfig holds the refresh intervals
type PollerConfig struct {
	RealtimeInterval time.Duration `yaml:"realtime_interval"`
	TrendInterval    time.Duration `yaml:"trend_interval"`
}

// CostConfig holds the rate structure
type CostConfig struct {
	EnergyRate       float64           `yaml:"energy_rate"`
	DistributionRate float64           `yaml:"distribution_rate"`
	SolarCredit      float64           `yaml:"solar_credit"`
	Currency         string            `yaml:"currency"`
	FixedCharges     float64           `yaml:"fixed_charges"`
	DaysInMonth      int               `yaml:"days_in_month"`
	TimeOfUse        []TimeOfUsePeriod `yaml:"time_of_use"`
}

// TimeOfUsePeriod is a named rate period; Hours holds [start, end) pairs
type TimeOfUsePeriod struct {
	Name  string   `yaml:"name"`
	Rate  *float64 `yaml:"rate"`
	Hours [][2]int `yaml:"hours"`
}

// InfluxDBConfig holds InfluxDB-related configuration
type InfluxDBConfig struct {
	Enabled      bool          `yaml:"enabled"`
	URL          string        `yaml:"url"`
	Org          string        `yaml:"org"`
	Token        string        `yaml:"token"`
	Bucket       string        `yaml:"bucket"`
	BatchSize    int           `yaml:"batch_size"`
	BatchTimeout time.Duration `yaml:"batch_timeout"`
}

// KafkaConfig holds Kafka-related configuration
type KafkaConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Brokers       []string      `yaml:"brokers"`
	SnapshotTopic string        `yaml:"snapshot_topic"`
	CommandTopic  string        `yaml:"command_topic"`
	GroupID       string        `yaml:"group_id"`
	BatchSize     int           `yaml:"batch_size"`
	BatchTimeout  time.Duration `yaml:"batch_timeout"`
}

// MQTTConfig holds MQTT state publishing configuration
type MQTTConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Broker      string `yaml:"broker"`
	ClientID    string `yaml:"client_id"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	TopicPrefix string `yaml:"topic_prefix"`
	Retain      bool   `yaml:"retain"`
	QoS         int    `yaml:"qos"`
}

// ProcessorConfig holds processor-related configuration
type ProcessorConfig struct {
	WorkerCount        int           `yaml:"worker_count"`
	QueueSize          int           `yaml:"queue_size"`
	EnableAggregations bool          `yaml:"enable_aggregations"`
	BucketDuration     time.Duration `yaml:"bucket_duration"`
	FlushInterval      time.Duration `yaml:"flush_interval"`
}

// HTTPConfig holds the API listener configuration
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// InsightsConfig holds the narrative insight settings
type InsightsConfig struct {
	Enabled     bool            `yaml:"enabled"`
	Provider    string          `yaml:"provider"`
	Endpoint    string          `yaml:"endpoint"`
	APIKey      string          `yaml:"api_key"`
	Model       string          `yaml:"model"`
	TokenBudget string          `yaml:"token_budget"`
	Timeout     time.Duration   `yaml:"timeout"`
	Features    map[string]bool `yaml:"features"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load loads configuration from environment variables with sensible defaults,
// then overlays the YAML file named by CONFIG_FILE when set
func Load() (*Config, error) {
	cfg := &Config{
		Sense: SenseConfig{
			Email:    getEnv("SENSE_EMAIL", ""),
			Password: getEnv("SENSE_PASSWORD", ""),
			BaseURL:  getEnv("SENSE_BASE_URL", "https://api.sense.com/apiservice/api/v1"),
			Timeout:  getEnvDuration("SENSE_TIMEOUT", 30*time.Second),
		},
		Poller: PollerConfig{
			RealtimeInterval: getEnvDuration("POLLER_REALTIME_INTERVAL", poller.DefaultRealtimeInterval),
			TrendInterval:    getEnvDuration("POLLER_TREND_INTERVAL", poller.DefaultTrendInterval),
		},
		Cost: CostConfig{
			EnergyRate:       getEnvFloat("COST_ENERGY_RATE", cost.DefaultEnergyRate),
			DistributionRate: getEnvFloat("COST_DISTRIBUTION_RATE", 0),
			SolarCredit:      getEnvFloat("COST_SOLAR_CREDIT", cost.DefaultSolarCredit),
			Currency:         getEnv("COST_CURRENCY", "USD"),
			FixedCharges:     getEnvFloat("COST_FIXED_CHARGES", cost.DefaultFixedCharges),
			DaysInMonth:      getEnvInt("COST_DAYS_IN_MONTH", cost.DefaultDaysInMonth),
		},
		InfluxDB: InfluxDBConfig{
			Enabled:      getEnvBool("INFLUXDB_ENABLED", false),
			URL:          getEnv("INFLUXDB_URL", "http://localhost:8086"),
			Org:          getEnv("INFLUXDB_ORG", "home"),
			Token:        getEnv("INFLUX_TOKEN", ""),
			Bucket:       getEnv("INFLUXDB_BUCKET", "home-energy"),
			BatchSize:    getEnvInt("INFLUXDB_BATCH_SIZE", 500),
			BatchTimeout: getEnvDuration("INFLUXDB_BATCH_TIMEOUT", time.Second),
		},
		Kafka: KafkaConfig{
			Enabled:       getEnvBool("KAFKA_ENABLED", false),
			Brokers:       getEnvStringSlice("KAFKA_BROKERS", []string{"localhost:9092"}),
			SnapshotTopic: getEnv("KAFKA_SNAPSHOT_TOPIC", "home-energy-snapshots"),
			CommandTopic:  getEnv("KAFKA_COMMAND_TOPIC", "home-energy-commands"),
			GroupID:       getEnv("KAFKA_GROUP_ID", "home-energy-monitor"),
			BatchSize:     getEnvInt("KAFKA_BATCH_SIZE", 100),
			BatchTimeout:  getEnvDuration("KAFKA_BATCH_TIMEOUT", time.Second),
		},
		MQTT: MQTTConfig{
			Enabled:     getEnvBool("MQTT_ENABLED", false),
			Broker:      getEnv("MQTT_BROKER", "tcp://localhost:1883"),
			ClientID:    getEnv("MQTT_CLIENT_ID", "home-energy-monitor"),
			Username:    getEnv("MQTT_USERNAME", ""),
			Password:    getEnv("MQTT_PASSWORD", ""),
			TopicPrefix: getEnv("MQTT_TOPIC_PREFIX", "sense"),
			Retain:      getEnvBool("MQTT_RETAIN", true),
			QoS:         getEnvInt("MQTT_QOS", 0),
		},
		Processor: ProcessorConfig{
			WorkerCount:        getEnvInt("PROCESSOR_WORKER_COUNT", 2),
			QueueSize:          getEnvInt("PROCESSOR_QUEUE_SIZE", 256),
			EnableAggregations: getEnvBool("PROCESSOR_ENABLE_AGGREGATIONS", true),
			BucketDuration:     getEnvDuration("PROCESSOR_BUCKET_DURATION", time.Minute),
			FlushInterval:      getEnvDuration("PROCESSOR_FLUSH_INTERVAL", 30*time.Second),
		},
		HTTP: HTTPConfig{
			Addr: getEnv("HTTP_ADDR", ":8080"),
		},
		Insights: InsightsConfig{
			Enabled:     getEnvBool("INSIGHTS_ENABLED", false),
			Provider:    getEnv("INSIGHTS_PROVIDER", "built_in"),
			Endpoint:    getEnv("INSIGHTS_ENDPOINT", ""),
			APIKey:      getEnv("INSIGHTS_API_KEY", ""),
			Model:       getEnv("INSIGHTS_MODEL", ""),
			TokenBudget: getEnv("INSIGHTS_TOKEN_BUDGET", "medium"),
			Timeout:     getEnvDuration("INSIGHTS_TIMEOUT", 60*time.Second),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "text"),
		},
	}

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// Validate checks the values the monitor cannot run without
func (c *Config) Validate() error {
	if c.Sense.Email == "" || c.Sense.Password == "" {
		return errors.New("config: SENSE_EMAIL and SENSE_PASSWORD are required")
	}
	if err := poller.ValidateRealtimeInterval(c.Poller.RealtimeInterval); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if err := c.Cost.RateConfig().Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if c.Cost.DaysInMonth <= 0 {
		return fmt.Errorf("config: days in month must be positive, got %d", c.Cost.DaysInMonth)
	}
	if c.Processor.WorkerCount <= 0 || c.Processor.QueueSize <= 0 {
		return errors.New("config: processor worker count and queue size must be positive")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return errors.New("config: kafka enabled without brokers")
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		return fmt.Errorf("config: invalid MQTT QoS %d", c.MQTT.QoS)
	}
	switch c.Insights.TokenBudget {
	case "low", "medium", "high":
	default:
		return fmt.Errorf("config: unknown insights token budget %q", c.Insights.TokenBudget)
	}
	if c.Insights.Enabled && c.Insights.Provider == "http" && c.Insights.Endpoint == "" {
		return errors.New("config: insights provider http requires INSIGHTS_ENDPOINT")
	}
	return nil
}

// RateConfig converts the cost section into a cost model configuration
func (c CostConfig) RateConfig() cost.Config {
	periods := make([]cost.Period, 0, len(c.TimeOfUse))
	for _, p := range c.TimeOfUse {
		hours := make([]cost.HourRange, 0, len(p.Hours))
		for _, h := range p.Hours {
			hours = append(hours, cost.HourRange{Start: h[0], End: h[1]})
		}
		periods = append(periods, cost.Period{Name: p.Name, Rate: p.Rate, Hours: hours})
	}
	return cost.Config{
		EnergyRate:       c.EnergyRate,
		DistributionRate: c.DistributionRate,
		SolarCredit:      c.SolarCredit,
		TimeOfUse:        periods,
	}
}

// Helper functions to get environment variables with defaults
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value, exists := os.LookupEnv(key); exists {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvStringSlice(key string, defaultValue []string) []string {
	if value, exists := os.LookupEnv(key); exists {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out
	}
	return defaultValue
}
