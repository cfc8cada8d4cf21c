package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Telegram  TelegramConfig  `mapstructure:"telegram"`
	Database  DatabaseConfig  `mapstructure:"database"`
	OpenAI    OpenAIConfig    `mapstructure:"openai"`
	GetCourse GetCourseConfig `mapstructure:"getcourse"`
	Funnel    FunnelConfig    `mapstructure:"funnel"`
	Webhook   WebhookConfig   `mapstructure:"webhook"`
}

type TelegramConfig struct {
	Token    string  `mapstructure:"token"`
	AdminIDs []int64 `mapstructure:"admin_ids"`
}

type DatabaseConfig struct {
	Host        string `mapstructure:"host"`
	Port        int    `mapstructure:"port"`
	User        string `mapstructure:"user"`
	Password    string `mapstructure:"password"`
	DBName      string `mapstructure:"dbname"`
	SSLMode     string `mapstructure:"sslmode"`
	UseInMemory bool   `mapstructure:"use_in_memory"`
}

type OpenAIConfig struct {
	APIKey            string `mapstructure:"api_key"`
	AssistantID       string `mapstructure:"assistant_id"`
	RunTimeoutSeconds int    `mapstructure:"run_timeout_seconds"`
}

type GetCourseConfig struct {
	APIURL     string `mapstructure:"api_url"`
	APIKey     string `mapstructure:"api_key"`
	BalanceURL string `mapstructure:"balance_url"`
	AccountURL string `mapstructure:"account_url"`
}

type FunnelConfig struct {
	// Prices are per tariff in whole rubles; offers are the platform's
	// offer codes for the same tariffs.
	PriceBasic  int    `mapstructure:"price_basic"`
	PriceVIP    int    `mapstructure:"price_vip"`
	PriceCourse int    `mapstructure:"price_course"`
	OfferBasic  string `mapstructure:"offer_basic"`
	OfferVIP    string `mapstructure:"offer_vip"`
	OfferCourse string `mapstructure:"offer_course"`

	ReferralBonus int     `mapstructure:"referral_bonus"`
	PermanentIDs  []int64 `mapstructure:"permanent_ids"`

	ContentDir      string   `mapstructure:"content_dir"`
	Timezone        string   `mapstructure:"timezone"`
	PromoResetDates []string `mapstructure:"promo_reset_dates"`
	ReportHour      int      `mapstructure:"report_hour"`
	ReportMinute    int      `mapstructure:"report_minute"`
}

type WebhookConfig struct {
	Addr string `mapstructure:"addr"`
}

func parseDatabaseURL(dbURL string) (DatabaseConfig, error) {
	u, err := url.Parse(dbURL)
	if err != nil {
		return DatabaseConfig{}, err
	}

	password, _ := u.User.Password()
	port := 5432 // default PostgreSQL port
	if u.Port() != "" {
		fmt.Sscanf(u.Port(), "%d", &port)
	}

	// Remove leading slash from path to get database name
	dbName := strings.TrimPrefix(u.Path, "/")

	return DatabaseConfig{
		Host:     u.Hostname(),
		Port:     port,
		User:     u.User.Username(),
		Password: password,
		DBName:   dbName,
		SSLMode:  "disable",
	}, nil
}

func LoadConfig(path string) (*Config, error) {
	v := viper.New()

	// Set default values
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.use_in_memory", false)
	v.SetDefault("openai.run_timeout_seconds", 60)
	v.SetDefault("funnel.referral_bonus", 500)
	v.SetDefault("funnel.content_dir", "content")
	v.SetDefault("funnel.timezone", "Europe/Moscow")
	v.SetDefault("funnel.report_hour", 21)
	v.SetDefault("funnel.report_minute", 0)
	v.SetDefault("webhook.addr", ":8080")

	// Enable environment variable support
	v.AutomaticEnv()

	// Read the config file
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	// Check for DATABASE_URL environment variable
	if dbURL := v.GetString("DATABASE_URL"); dbURL != "" {
		dbConfig, err := parseDatabaseURL(dbURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse DATABASE_URL: %v", err)
		}
		config.Database = dbConfig
	}

	// Get other environment variables
	if token := v.GetString("TELEGRAM_TOKEN"); token != "" {
		config.Telegram.Token = token
	}

	if apiKey := v.GetString("OPENAI_API_KEY"); apiKey != "" {
		config.OpenAI.APIKey = apiKey
	}

	if assistantID := v.GetString("OPENAI_ASSISTANT_ID"); assistantID != "" {
		config.OpenAI.AssistantID = assistantID
	}

	if gcKey := v.GetString("GETCOURSE_API_KEY"); gcKey != "" {
		config.GetCourse.APIKey = gcKey
	}

	return &config, nil
}
