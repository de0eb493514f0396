package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"
)

const (
	StoreDriverMySQL  = "mysql"
	StoreDriverMemory = "memory"

	minTokenSecretLength = 32
)

type Config struct {
	HTTPHost    string
	HTTPPort    string
	GRPCHost    string
	GRPCPort    string
	StoreDriver string
	MySQLDSN    string
	BaseURL     string
	Log         LogConfig
	Tokens      TokenConfig
	Session     SessionConfig
	Password    PasswordConfig
	Mail        MailConfig
	Features    Features
}

type LogConfig struct {
	Level  string
	Format string
}

type TokenConfig struct {
	Secret    string
	VerifyTTL time.Duration
	ResetTTL  time.Duration
}

type SessionConfig struct {
	TTL          time.Duration
	CookieName   string
	CookieSecure bool
}

type PasswordConfig struct {
	BcryptCost int
	Policy     PasswordPolicy
}

type MailConfig struct {
	From string
}

// Features switches whole operations on or off. It is resolved once by Load
// and never changes while the process runs.
type Features struct {
	CreateAccount       bool
	VerifyAccount       bool
	VerifyAccountResend bool
	Login               bool
	Logout              bool
	ResetPassword       bool
	ChangePassword      bool
	CloseAccount        bool
}

// AllFeatures returns a Features value with every operation enabled.
func AllFeatures() Features {
	return Features{
		CreateAccount:       true,
		VerifyAccount:       true,
		VerifyAccountResend: true,
		Login:               true,
		Logout:              true,
		ResetPassword:       true,
		ChangePassword:      true,
		CloseAccount:        true,
	}
}

type PasswordPolicy struct {
	MinLength        int
	RequireUppercase bool
	RequireLowercase bool
	RequireNumber    bool
	RequireSpecial   bool
}

func (p PasswordPolicy) Validate(password string) error {
	if len(password) < p.MinLength {
		return fmt.Errorf("password must be at least %d characters long", p.MinLength)
	}

	var hasUpper, hasLower, hasNumber, hasSpecial bool
	for _, ch := range password {
		switch {
		case unicode.IsUpper(ch):
			hasUpper = true
		case unicode.IsLower(ch):
			hasLower = true
		case unicode.IsDigit(ch):
			hasNumber = true
		case unicode.IsPunct(ch) || unicode.IsSymbol(ch):
			hasSpecial = true
		}
	}

	var missing []string
	if p.RequireUppercase && !hasUpper {
		missing = append(missing, "uppercase letter")
	}
	if p.RequireLowercase && !hasLower {
		missing = append(missing, "lowercase letter")
	}
	if p.RequireNumber && !hasNumber {
		missing = append(missing, "number")
	}
	if p.RequireSpecial && !hasSpecial {
		missing = append(missing, "special character")
	}

	if len(missing) > 0 {
		return fmt.Errorf("password must contain at least one: %s", strings.Join(missing, ", "))
	}

	return nil
}

func Load() (*Config, error) {
	// Load .env file if it exists (ignores error if not found)
	_ = godotenv.Load()

	secret := os.Getenv("TOKEN_SECRET")
	if secret == "" {
		return nil, errors.New("TOKEN_SECRET environment variable is required")
	}
	if len(secret) < minTokenSecretLength {
		return nil, fmt.Errorf("TOKEN_SECRET must be at least %d bytes long", minTokenSecretLength)
	}

	driver := strings.ToLower(getEnv("STORE_DRIVER", StoreDriverMySQL))
	mysqlDSN := os.Getenv("MYSQL_DSN")
	switch driver {
	case StoreDriverMySQL:
		if mysqlDSN == "" {
			return nil, errors.New("MYSQL_DSN environment variable is required")
		}
	case StoreDriverMemory:
	default:
		return nil, fmt.Errorf("unsupported STORE_DRIVER %q", driver)
	}

	httpPort := getEnv("HTTP_PORT", "8080")

	return &Config{
		HTTPHost:    getEnv("HTTP_HOST", ""),
		HTTPPort:    httpPort,
		GRPCHost:    getEnv("GRPC_HOST", ""),
		GRPCPort:    getEnv("GRPC_PORT", "9090"),
		StoreDriver: driver,
		MySQLDSN:    mysqlDSN,
		BaseURL:     strings.TrimRight(getEnv("BASE_URL", "http://localhost:"+httpPort), "/"),
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Tokens: TokenConfig{
			Secret:    secret,
			VerifyTTL: getDurationEnv("VERIFY_TOKEN_TTL", 24*time.Hour),
			ResetTTL:  getDurationEnv("RESET_TOKEN_TTL", 1*time.Hour),
		},
		Session: SessionConfig{
			TTL:          getDurationEnv("SESSION_TTL", 14*24*time.Hour),
			CookieName:   getEnv("SESSION_COOKIE_NAME", "account_session"),
			CookieSecure: getBoolEnv("SESSION_COOKIE_SECURE", true),
		},
		Password: PasswordConfig{
			BcryptCost: getIntEnv("BCRYPT_COST", bcrypt.DefaultCost),
			Policy:     loadPasswordPolicy(),
		},
		Mail: MailConfig{
			From: getEnv("MAIL_FROM", "no-reply@localhost"),
		},
		Features: loadFeatures(),
	}, nil
}

func (c *Config) DSN() string {
	return c.MySQLDSN
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if minutes, err := strconv.Atoi(value); err == nil && minutes > 0 {
			return time.Duration(minutes) * time.Minute
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func loadPasswordPolicy() PasswordPolicy {
	return PasswordPolicy{
		MinLength:        getIntEnv("PASSWORD_MIN_LENGTH", 8),
		RequireUppercase: getBoolEnv("PASSWORD_REQUIRE_UPPERCASE", false),
		RequireLowercase: getBoolEnv("PASSWORD_REQUIRE_LOWERCASE", false),
		RequireNumber:    getBoolEnv("PASSWORD_REQUIRE_NUMBER", false),
		RequireSpecial:   getBoolEnv("PASSWORD_REQUIRE_SPECIAL", false),
	}
}

func loadFeatures() Features {
	return Features{
		CreateAccount:       getBoolEnv("FEATURE_CREATE_ACCOUNT", true),
		VerifyAccount:       getBoolEnv("FEATURE_VERIFY_ACCOUNT", true),
		VerifyAccountResend: getBoolEnv("FEATURE_VERIFY_ACCOUNT_RESEND", true),
		Login:               getBoolEnv("FEATURE_LOGIN", true),
		Logout:              getBoolEnv("FEATURE_LOGOUT", true),
		ResetPassword:       getBoolEnv("FEATURE_RESET_PASSWORD", true),
		ChangePassword:      getBoolEnv("FEATURE_CHANGE_PASSWORD", true),
		CloseAccount:        getBoolEnv("FEATURE_CLOSE_ACCOUNT", true),
	}
}
