package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

const (
	TaxModeFlat        = "flat"
	TaxModeProgressive = "progressive"
)

type Config struct {
	Addr                string
	DatabaseURL         string
	DBMaxConns          int
	JWTSecret           string
	TokenTTL            time.Duration
	Environment         string
	SeedAdminEmail      string
	SeedAdminPassword   string
	SeedDepartments     []string
	EmailFrom           string
	EmailEnabled        bool
	SMTPHost            string
	SMTPPort            int
	SMTPUser            string
	SMTPPassword        string
	SMTPUseTLS          bool
	RunMigrations       bool
	RunSeed             bool
	MaxBodyBytes        int64
	RateLimitPerMinute  int
	ReadTimeout         time.Duration
	WriteTimeout        time.Duration
	MetricsEnabled      bool
	RedisURL            string
	DashboardCacheTTL   time.Duration
	PayrollTaxMode      string
	PayrollFlatTaxRate  decimal.Decimal
	PayrollPensionRate  decimal.Decimal
	EmployeeEmailDomain string
	AnomalyThreshold    float64
}

// Load reads the process environment. Values from an optional .env file
// (APP_ENV_FILE, default ".env") fill in variables that are not already set.
func Load() Config {
	_ = godotenv.Load(getEnv("APP_ENV_FILE", ".env"))

	return Config{
		Addr:                getEnv("APP_ADDR", ":8080"),
		DatabaseURL:         getEnv("DATABASE_URL", ""),
		DBMaxConns:          getEnvInt("DB_MAX_CONNS", 10),
		JWTSecret:           getEnv("JWT_SECRET", ""),
		TokenTTL:            getEnvDuration("TOKEN_TTL", 8*time.Hour),
		Environment:         getEnv("APP_ENV", "development"),
		SeedAdminEmail:      getEnv("SEED_ADMIN_EMAIL", ""),
		SeedAdminPassword:   getEnv("SEED_ADMIN_PASSWORD", ""),
		SeedDepartments:     getEnvList("SEED_DEPARTMENTS", []string{"Engineering", "Finance", "Human Resources", "Operations"}),
		EmailFrom:           getEnv("EMAIL_FROM", "no-reply@example.com"),
		EmailEnabled:        getEnvBool("EMAIL_ENABLED", false),
		SMTPHost:            getEnv("SMTP_HOST", ""),
		SMTPPort:            getEnvInt("SMTP_PORT", 587),
		SMTPUser:            getEnv("SMTP_USER", ""),
		SMTPPassword:        getEnv("SMTP_PASSWORD", ""),
		SMTPUseTLS:          getEnvBool("SMTP_USE_TLS", true),
		RunMigrations:       getEnvBool("RUN_MIGRATIONS", true),
		RunSeed:             getEnvBool("RUN_SEED", true),
		MaxBodyBytes:        int64(getEnvInt("MAX_BODY_BYTES", 1048576)),
		RateLimitPerMinute:  getEnvInt("RATE_LIMIT_PER_MINUTE", 60),
		ReadTimeout:         getEnvDuration("HTTP_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:        getEnvDuration("HTTP_WRITE_TIMEOUT", 30*time.Second),
		MetricsEnabled:      getEnvBool("METRICS_ENABLED", true),
		RedisURL:            getEnv("REDIS_URL", ""),
		DashboardCacheTTL:   getEnvDuration("DASHBOARD_CACHE_TTL", time.Minute),
		PayrollTaxMode:      strings.ToLower(getEnv("PAYROLL_TAX_MODE", TaxModeFlat)),
		PayrollFlatTaxRate:  getEnvDecimal("PAYROLL_FLAT_TAX_RATE", decimal.RequireFromString("0.10")),
		PayrollPensionRate:  getEnvDecimal("PAYROLL_PENSION_RATE", decimal.Zero),
		EmployeeEmailDomain: strings.ToLower(getEnv("EMPLOYEE_EMAIL_DOMAIN", "company.com")),
		AnomalyThreshold:    getEnvFloat("ANOMALY_Z_THRESHOLD", 2.5),
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvFloat(key string, fallback float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvDecimal(key string, fallback decimal.Decimal) decimal.Decimal {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := decimal.NewFromString(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvList(key string, fallback []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.DatabaseURL) == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.Environment == "production" {
		if strings.TrimSpace(c.JWTSecret) == "" {
			return fmt.Errorf("JWT_SECRET must be set to a strong value in production")
		}
		if c.RunSeed && strings.TrimSpace(c.SeedAdminPassword) == "" {
			return fmt.Errorf("SEED_ADMIN_PASSWORD must be changed or RUN_SEED disabled in production")
		}
	}
	if c.MaxBodyBytes < 1024 {
		return fmt.Errorf("MAX_BODY_BYTES must be at least 1024")
	}
	if c.RateLimitPerMinute <= 0 {
		return fmt.Errorf("RATE_LIMIT_PER_MINUTE must be positive")
	}
	if c.DBMaxConns <= 0 {
		return fmt.Errorf("DB_MAX_CONNS must be positive")
	}
	if c.EmailEnabled && c.SMTPHost == "" {
		return fmt.Errorf("SMTP_HOST must be set when EMAIL_ENABLED is true")
	}
	if c.PayrollTaxMode != TaxModeFlat && c.PayrollTaxMode != TaxModeProgressive {
		return fmt.Errorf("PAYROLL_TAX_MODE must be %q or %q", TaxModeFlat, TaxModeProgressive)
	}
	if c.PayrollFlatTaxRate.IsNegative() || c.PayrollFlatTaxRate.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("PAYROLL_FLAT_TAX_RATE must be between 0 and 1")
	}
	if c.PayrollPensionRate.IsNegative() || c.PayrollPensionRate.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("PAYROLL_PENSION_RATE must be between 0 and 1")
	}
	if strings.TrimSpace(c.EmployeeEmailDomain) == "" || strings.Contains(c.EmployeeEmailDomain, "@") {
		return fmt.Errorf("EMPLOYEE_EMAIL_DOMAIN must be a bare domain such as company.com")
	}
	return nil
}
