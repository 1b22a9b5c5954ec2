package config

import (
	"encoding/hex"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port           string        `mapstructure:"PORT"`
	Env            string        `mapstructure:"ENV"`
	DatabaseURL    string        `mapstructure:"DATABASE_URL"`
	DBMaxConns     int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns     int32         `mapstructure:"DB_MIN_CONNS"`
	RedisURL       string        `mapstructure:"REDIS_URL"`
	CORSOrigins    []string      `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS   float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst int           `mapstructure:"RATE_LIMIT_BURST"`
	RequestTimeout time.Duration `mapstructure:"REQUEST_TIMEOUT"`

	JWTSigningKey  string        `mapstructure:"JWT_SIGNING_KEY"`
	JWTIssuer      string        `mapstructure:"JWT_ISSUER"`
	AccessTokenTTL time.Duration `mapstructure:"ACCESS_TOKEN_TTL"`

	VerificationCodeTTL     time.Duration `mapstructure:"VERIFICATION_CODE_TTL"`
	VerificationCooldown    time.Duration `mapstructure:"VERIFICATION_RESEND_COOLDOWN"`
	VerificationMaxAttempts int           `mapstructure:"VERIFICATION_MAX_ATTEMPTS"`

	SMTPHost     string `mapstructure:"SMTP_HOST"`
	SMTPPort     int    `mapstructure:"SMTP_PORT"`
	SMTPUsername string `mapstructure:"SMTP_USERNAME"`
	SMTPPassword string `mapstructure:"SMTP_PASSWORD"`
	SMTPFrom     string `mapstructure:"SMTP_FROM"`
	SMTPFromName string `mapstructure:"SMTP_FROM_NAME"`

	FacilitiesHTMLPath string `mapstructure:"FACILITIES_HTML_PATH"`

	ImageModelURL   string        `mapstructure:"IMAGE_MODEL_URL"`
	TabularModelURL string        `mapstructure:"TABULAR_MODEL_URL"`
	ModelTimeout    time.Duration `mapstructure:"MODEL_TIMEOUT"`

	PredictionMinConfidence    float64 `mapstructure:"PREDICTION_MIN_CONFIDENCE"`
	PredictionStrongConfidence float64 `mapstructure:"PREDICTION_STRONG_CONFIDENCE"`
	PredictionMaxEntropy       float64 `mapstructure:"PREDICTION_MAX_ENTROPY"`
	HighRiskConfidence         float64 `mapstructure:"HIGH_RISK_CONFIDENCE"`
}

var keys = []string{
	"PORT", "ENV", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS", "REDIS_URL",
	"CORS_ORIGINS", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST", "REQUEST_TIMEOUT",
	"JWT_SIGNING_KEY", "JWT_ISSUER", "ACCESS_TOKEN_TTL",
	"VERIFICATION_CODE_TTL", "VERIFICATION_RESEND_COOLDOWN", "VERIFICATION_MAX_ATTEMPTS",
	"SMTP_HOST", "SMTP_PORT", "SMTP_USERNAME", "SMTP_PASSWORD", "SMTP_FROM", "SMTP_FROM_NAME",
	"FACILITIES_HTML_PATH",
	"IMAGE_MODEL_URL", "TABULAR_MODEL_URL", "MODEL_TIMEOUT",
	"PREDICTION_MIN_CONFIDENCE", "PREDICTION_STRONG_CONFIDENCE", "PREDICTION_MAX_ENTROPY",
	"HIGH_RISK_CONFIDENCE",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("CORS_ORIGINS", "*")
	v.SetDefault("RATE_LIMIT_RPS", 100)
	v.SetDefault("RATE_LIMIT_BURST", 200)
	v.SetDefault("REQUEST_TIMEOUT", "30s")
	v.SetDefault("JWT_ISSUER", "cad-backend")
	v.SetDefault("ACCESS_TOKEN_TTL", "30m")
	v.SetDefault("VERIFICATION_CODE_TTL", "24h")
	v.SetDefault("VERIFICATION_RESEND_COOLDOWN", "15m")
	v.SetDefault("VERIFICATION_MAX_ATTEMPTS", 5)
	v.SetDefault("SMTP_HOST", "smtp.gmail.com")
	v.SetDefault("SMTP_PORT", 465)
	v.SetDefault("SMTP_FROM_NAME", "Healthcare Diagnostic System")
	v.SetDefault("FACILITIES_HTML_PATH", "./modelFiles/facilities.html")
	v.SetDefault("IMAGE_MODEL_URL", "http://localhost:8501/v1/models/cad_inception:predict")
	v.SetDefault("TABULAR_MODEL_URL", "http://localhost:8502/v1/models/cad_metadata:predict")
	v.SetDefault("MODEL_TIMEOUT", "30s")
	v.SetDefault("PREDICTION_MIN_CONFIDENCE", 0.6)
	v.SetDefault("PREDICTION_STRONG_CONFIDENCE", 0.75)
	v.SetDefault("PREDICTION_MAX_ENTROPY", 0.75)
	v.SetDefault("HIGH_RISK_CONFIDENCE", 0.8)

	// Bind env vars explicitly so Unmarshal picks them up
	for _, k := range keys {
		v.BindEnv(k)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if origins := v.GetString("CORS_ORIGINS"); origins != "" {
		cfg.CORSOrigins = splitList(origins)
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.IsDev() && cfg.JWTSigningKey == "" {
		log.Println("WARNING: JWT_SIGNING_KEY is not set; a random key will be generated and tokens will not survive a restart.")
	}

	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Validate checks that the configuration is safe to run. In production the
// JWT signing key must be a hex string of at least 32 bytes. Prediction
// thresholds must be probabilities and the TTLs must be positive.
func (c *Config) Validate() error {
	if c.IsProduction() && c.JWTSigningKey == "" {
		return fmt.Errorf("JWT_SIGNING_KEY is required in production")
	}
	if c.JWTSigningKey != "" {
		keyBytes, err := hex.DecodeString(c.JWTSigningKey)
		if err != nil {
			return fmt.Errorf("JWT_SIGNING_KEY is not valid hex: %w", err)
		}
		if len(keyBytes) < 32 {
			return fmt.Errorf("JWT_SIGNING_KEY must be at least 32 bytes (64 hex chars), got %d bytes", len(keyBytes))
		}
	}

	thresholds := map[string]float64{
		"PREDICTION_MIN_CONFIDENCE":    c.PredictionMinConfidence,
		"PREDICTION_STRONG_CONFIDENCE": c.PredictionStrongConfidence,
		"PREDICTION_MAX_ENTROPY":       c.PredictionMaxEntropy,
		"HIGH_RISK_CONFIDENCE":         c.HighRiskConfidence,
	}
	for name, val := range thresholds {
		if val < 0 || val > 1 {
			return fmt.Errorf("%s must be between 0 and 1, got %v", name, val)
		}
	}
	if c.PredictionMinConfidence > c.PredictionStrongConfidence {
		return fmt.Errorf("PREDICTION_MIN_CONFIDENCE (%v) must not exceed PREDICTION_STRONG_CONFIDENCE (%v)",
			c.PredictionMinConfidence, c.PredictionStrongConfidence)
	}

	durations := map[string]time.Duration{
		"ACCESS_TOKEN_TTL":             c.AccessTokenTTL,
		"VERIFICATION_CODE_TTL":        c.VerificationCodeTTL,
		"VERIFICATION_RESEND_COOLDOWN": c.VerificationCooldown,
	}
	for name, d := range durations {
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, d)
		}
	}
	if c.VerificationMaxAttempts <= 0 {
		return fmt.Errorf("VERIFICATION_MAX_ATTEMPTS must be positive, got %d", c.VerificationMaxAttempts)
	}

	return nil
}
