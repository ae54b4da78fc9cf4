package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server         ServerConfig      `mapstructure:"server"`
	Database       DatabaseConfig    `mapstructure:"database"`
	RegionDatabase DatabaseConfig    `mapstructure:"region_database"`
	Inference      InferenceConfig   `mapstructure:"inference"`
	OCR            OCRConfig         `mapstructure:"ocr"`
	Preprocess     PreprocessConfig  `mapstructure:"preprocess"`
	RegionTable    RegionTableConfig `mapstructure:"region_table"`
	Records        RecordsConfig     `mapstructure:"records"`
	Auth           AuthConfig        `mapstructure:"auth"`
	Log            LogConfig         `mapstructure:"log"`
}

type ServerConfig struct {
	Port        string   `mapstructure:"port"`
	CORSOrigins []string `mapstructure:"cors_origins"`
	MaxUploadMB int64    `mapstructure:"max_upload_mb"`
}

type DatabaseConfig struct {
	DSN string `mapstructure:"dsn"`
}

type InferenceConfig struct {
	BaseURL       string        `mapstructure:"base_url"`
	APIKey        string        `mapstructure:"api_key"`
	VehicleModel  string        `mapstructure:"vehicle_model"`
	ColorModel    string        `mapstructure:"color_model"`
	PlateModel    string        `mapstructure:"plate_model"`
	FallbackModel string        `mapstructure:"fallback_model"`
	Timeout       time.Duration `mapstructure:"timeout"`
}

type OCRConfig struct {
	Language    string        `mapstructure:"language"`
	AllowHyphen bool          `mapstructure:"allow_hyphen"`
	Timeout     time.Duration `mapstructure:"timeout"`

	// MaxConcurrent caps engine instances, including ones left running by cancelled runs.
	MaxConcurrent int `mapstructure:"max_concurrent"`
}

type PreprocessConfig struct {
	ScaleFactor int `mapstructure:"scale_factor"`
	PaddingPx   int `mapstructure:"padding_px"`
}

type RegionTableConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	BaseDelay   time.Duration `mapstructure:"base_delay"`
	Multiplier  float64       `mapstructure:"multiplier"`

	// Seed is written to the region store at startup when its table is empty.
	Seed []RegionSeedRow `mapstructure:"seed"`
}

type RegionSeedRow struct {
	Code     string `mapstructure:"code"`
	State    string `mapstructure:"state"`
	District string `mapstructure:"district"`
}

type RecordsConfig struct {
	Timezone string `mapstructure:"timezone"`
}

type AuthConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`

	// AdminID and AdminPassword seed the admins table when the id is not present yet.
	AdminID       string `mapstructure:"admin_id"`
	AdminPassword string `mapstructure:"admin_password"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.max_upload_mb", 10)

	v.SetDefault("inference.base_url", "https://detect.roboflow.com")
	v.SetDefault("inference.vehicle_model", "car_name-mshpx/2")
	v.SetDefault("inference.color_model", "color-u7k6u/2")
	v.SetDefault("inference.plate_model", "numplate-man88/1")
	v.SetDefault("inference.fallback_model", "car-detect-mceyl/4")
	v.SetDefault("inference.timeout", 15*time.Second)

	v.SetDefault("ocr.language", "eng")
	v.SetDefault("ocr.allow_hyphen", true)
	v.SetDefault("ocr.timeout", 20*time.Second)
	v.SetDefault("ocr.max_concurrent", 4)

	v.SetDefault("preprocess.scale_factor", 4)
	v.SetDefault("preprocess.padding_px", 40)

	v.SetDefault("region_table.max_attempts", 3)
	v.SetDefault("region_table.base_delay", time.Second)
	v.SetDefault("region_table.multiplier", 2.0)

	v.SetDefault("records.timezone", "Local")

	v.SetDefault("auth.token_ttl", 12*time.Hour)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
}

// Load reads the optional config file named by ANPR_CONFIG (default config.yaml)
// and applies ANPR_* environment overrides.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("ANPR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnv(v)

	path := os.Getenv("ANPR_CONFIG")
	if path == "" {
		path = "config.yaml"
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if cfg.RegionDatabase.DSN == "" {
		cfg.RegionDatabase.DSN = cfg.Database.DSN
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// AutomaticEnv only sees keys viper already knows, so keys without defaults are bound here.
func bindEnv(v *viper.Viper) {
	for _, key := range []string{
		"database.dsn",
		"region_database.dsn",
		"inference.api_key",
		"auth.jwt_secret",
		"auth.admin_id",
		"auth.admin_password",
	} {
		_ = v.BindEnv(key)
	}
}

func (c *Config) Validate() error {
	var errs []error
	if c.Database.DSN == "" {
		errs = append(errs, errors.New("database.dsn is required"))
	}
	if c.Inference.APIKey == "" {
		errs = append(errs, errors.New("inference.api_key is required"))
	}
	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("auth.jwt_secret is required"))
	}
	if (c.Auth.AdminID == "") != (c.Auth.AdminPassword == "") {
		errs = append(errs, errors.New("auth.admin_id and auth.admin_password must be set together"))
	}
	if c.Preprocess.ScaleFactor < 1 {
		errs = append(errs, fmt.Errorf("preprocess.scale_factor must be >= 1, got %d", c.Preprocess.ScaleFactor))
	}
	if c.Preprocess.PaddingPx < 0 {
		errs = append(errs, fmt.Errorf("preprocess.padding_px must be >= 0, got %d", c.Preprocess.PaddingPx))
	}
	if c.OCR.MaxConcurrent < 1 {
		errs = append(errs, fmt.Errorf("ocr.max_concurrent must be >= 1, got %d", c.OCR.MaxConcurrent))
	}
	for i, row := range c.RegionTable.Seed {
		if len(strings.TrimSpace(row.Code)) < 2 {
			errs = append(errs, fmt.Errorf("region_table.seed[%d]: code %q is too short", i, row.Code))
		}
	}
	if c.RegionTable.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("region_table.max_attempts must be >= 1, got %d", c.RegionTable.MaxAttempts))
	}
	if _, err := time.LoadLocation(c.Records.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("records.timezone: %w", err))
	}
	return errors.Join(errs...)
}
