package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
	"github.com/tutorbill/tutorbill/internal/types"
)

type Configuration struct {
	Deployment DeploymentConfig `validate:"required"`
	Server     ServerConfig     `validate:"required"`
	Logging    LoggingConfig    `validate:"required"`
	Postgres   PostgresConfig
	Billing    BillingConfig `validate:"required"`
	Settlement SettlementConfig
}

type DeploymentConfig struct {
	Mode types.RunMode `validate:"required"`
}

type ServerConfig struct {
	Address string `validate:"required"`
	// AllowedOrigin is the origin browsers may call the API from.
	AllowedOrigin string `mapstructure:"allowed_origin"`
}

type LoggingConfig struct {
	Level types.LogLevel `validate:"required"`
}

type PostgresConfig struct {
	Host                   string
	Port                   int
	User                   string
	Password               string
	DBName                 string
	SSLMode                string
	MaxOpenConns           int `mapstructure:"max_open_conns"`
	MaxIdleConns           int `mapstructure:"max_idle_conns"`
	ConnMaxLifetimeMinutes int `mapstructure:"conn_max_lifetime_minutes"`
}

// BillingConfig holds the tenant-wide billing policy constants. These are
// injected into the fee calculator and the subscription state machine so
// tests and tenants can vary them.
type BillingConfig struct {
	// PerStudentFloor is the minimum subscription charge per student seat,
	// in currency units.
	PerStudentFloor float64 `mapstructure:"per_student_floor"`
	// RevenueShareRate is the platform's share of a batch's monthly fee.
	RevenueShareRate float64 `mapstructure:"revenue_share_rate"`
	// BaseFee is the flat teacher-level subscription fee covering
	// IncludedStudents seats.
	BaseFee          float64 `mapstructure:"base_fee"`
	IncludedStudents int     `mapstructure:"included_students"`
	// ObligationDueDay is the day of the month a student obligation falls due.
	ObligationDueDay int `mapstructure:"obligation_due_day"`
	// GraceWindow is how long an unpaid subscription stays usable past its
	// billing date before materials are locked.
	GraceWindow time.Duration `mapstructure:"grace_window"`
	// PendingPaymentTimeout is how long an online payment attempt may stay
	// Pending before the sweep returns it to Due.
	PendingPaymentTimeout time.Duration `mapstructure:"pending_payment_timeout"`
	// ExpiryWindow is how long an account with no successful payment may stay
	// unpaid before it is expired.
	ExpiryWindow time.Duration `mapstructure:"expiry_window"`
}

func (b BillingConfig) PerStudentFloorAmount() decimal.Decimal {
	return decimal.NewFromFloat(b.PerStudentFloor)
}

func (b BillingConfig) RevenueShareRateAmount() decimal.Decimal {
	return decimal.NewFromFloat(b.RevenueShareRate)
}

func (b BillingConfig) BaseFeeAmount() decimal.Decimal {
	return decimal.NewFromFloat(b.BaseFee)
}

// SettlementConfig configures the online settlement provider.
type SettlementConfig struct {
	ServerKey   string `mapstructure:"server_key"`
	Environment string `mapstructure:"environment"`
	CallbackURL string `mapstructure:"callback_url"`
}

func NewConfig() (*Configuration, error) {
	// Local development keeps overrides in a .env file; missing is fine.
	_ = godotenv.Load()

	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./internal/config")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/tutorbill")

	v.SetEnvPrefix("TUTORBILL")
	v.SetEnvKeyReplacer(strings.NewReplacer(
		".", "_",
		"-", "_",
	))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, err
		}
	}

	var config Configuration
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.allowed_origin", "*")
	v.SetDefault("billing.per_student_floor", 35.0)
	v.SetDefault("billing.revenue_share_rate", 0.07)
	v.SetDefault("billing.base_fee", 700.0)
	v.SetDefault("billing.included_students", 20)
	v.SetDefault("billing.obligation_due_day", 5)
	v.SetDefault("billing.grace_window", 7*24*time.Hour)
	v.SetDefault("billing.pending_payment_timeout", 30*time.Minute)
	v.SetDefault("billing.expiry_window", 60*24*time.Hour)
}

func (c Configuration) Validate() error {
	validate := validator.New()
	return validate.Struct(c)
}

// GetDefaultConfig returns a default configuration for local development
// and tests.
func GetDefaultConfig() *Configuration {
	return &Configuration{
		Deployment: DeploymentConfig{Mode: types.ModeLocal},
		Server:     ServerConfig{Address: ":8080", AllowedOrigin: "*"},
		Logging:    LoggingConfig{Level: types.LogLevelDebug},
		Billing:    DefaultBillingConfig(),
	}
}

// DefaultBillingConfig returns the observed production billing policy.
func DefaultBillingConfig() BillingConfig {
	return BillingConfig{
		PerStudentFloor:       35,
		RevenueShareRate:      0.07,
		BaseFee:               700,
		IncludedStudents:      20,
		ObligationDueDay:      5,
		GraceWindow:           7 * 24 * time.Hour,
		PendingPaymentTimeout: 30 * time.Minute,
		ExpiryWindow:          60 * 24 * time.Hour,
	}
}

func (c PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"user=%s password=%s dbname=%s host=%s port=%d sslmode=%s",
		c.User, c.Password, c.DBName, c.Host, c.Port, c.SSLMode,
	)
}
