package auth

import (
	"errors"
	"os"
	"strconv"
	"time"
)

// Startup configuration errors.
var (
	ErrMissingAdminEmail = errors.New("ADMIN_EMAIL is required")
	ErrMissing2FAEmail   = errors.New("ADMIN_2FA_EMAIL is required")
)

// Config holds authentication-related configuration.
type Config struct {
	// AdminEmail is the single address that resolves to the admin role.
	AdminEmail string
	// Admin2FAEmail receives the admin's verification codes.
	Admin2FAEmail string
	// AdminPassword seeds the admin account in the local provider when set.
	AdminPassword string
	// PasswordHashAlgorithm specifies the hashing algorithm (bcrypt or argon2).
	PasswordHashAlgorithm string
	// BcryptCost is the bcrypt cost factor (default: 12).
	BcryptCost int
	// Argon2Time is the argon2 time parameter.
	Argon2Time uint32
	// Argon2Memory is the argon2 memory parameter in KB.
	Argon2Memory uint32
	// Argon2Threads is the argon2 parallelism parameter.
	Argon2Threads uint8
	// TwoFactorThrottle is the minimum interval between code sends.
	TwoFactorThrottle time.Duration
	// EnableAuditLog enables authentication audit logging.
	EnableAuditLog bool
}

// LoadConfig loads auth configuration from environment variables. A
// missing admin address is a startup error.
func LoadConfig() (Config, error) {
	cfg := Config{
		AdminEmail:            NormalizeEmail(getenv("ADMIN_EMAIL", "")),
		Admin2FAEmail:         getenv("ADMIN_2FA_EMAIL", ""),
		AdminPassword:         getenv("ADMIN_PASSWORD", ""),
		PasswordHashAlgorithm: getenv("AUTH_HASH_ALGORITHM", "bcrypt"),
		BcryptCost:            getInt("AUTH_BCRYPT_COST", 12),
		Argon2Time:            uint32(getInt("AUTH_ARGON2_TIME", 1)),
		Argon2Memory:          uint32(getInt("AUTH_ARGON2_MEMORY", 64*1024)),
		Argon2Threads:         uint8(getInt("AUTH_ARGON2_THREADS", 4)),
		TwoFactorThrottle:     getDuration("TWO_FACTOR_THROTTLE", 30*time.Second),
		EnableAuditLog:        getBool("AUTH_ENABLE_AUDIT", true),
	}
	if cfg.AdminEmail == "" {
		return cfg, ErrMissingAdminEmail
	}
	if cfg.Admin2FAEmail == "" {
		return cfg, ErrMissing2FAEmail
	}
	return cfg, nil
}

func getenv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func getInt(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getDuration(key string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getBool(key string, def bool) bool {
	if v, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseBool(v); err == nil {
			return parsed
		}
	}
	return def
}
