package config

import (
	"errors"
	"os"
	"strconv"
)

type Config struct {
	Port                  string
	DatabaseDSN           string
	JWTSecret             string
	Env                   string
	AccessTokenTTLMinutes int
	PartySeats            int
	LiveKitHost           string
	LiveKitAPIKey         string
	LiveKitAPISecret      string
	RedisURL              string
}

func getenv(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func getenvInt(key string, def int) int {
	v, err := strconv.Atoi(getenv(key, ""))
	if err != nil || v <= 0 {
		return def
	}
	return v
}

func Load() Config {
	return Config{
		Port:                  getenv("APP_PORT", "9048"),
		DatabaseDSN:           getenv("DATABASE_DSN", "host=localhost user=postgres password=postgres dbname=hiva port=5432 sslmode=disable TimeZone=UTC"),
		JWTSecret:             getenv("JWT_SECRET", "dev-secret-change-me"),
		Env:                   getenv("APP_ENV", "dev"),
		AccessTokenTTLMinutes: getenvInt("ACCESS_TOKEN_TTL_MINUTES", 60),
		PartySeats:            getenvInt("PARTY_SEATS", 7),
		LiveKitHost:           getenv("LIVEKIT_HOST", "http://localhost:7880"),
		LiveKitAPIKey:         getenv("LIVEKIT_API_KEY", ""),
		LiveKitAPISecret:      getenv("LIVEKIT_API_SECRET", ""),
		RedisURL:              getenv("REDIS_URL", ""),
	}
}

// Validate 校验启动配置，生产环境禁止使用默认密钥。
func Validate(cfg Config) error {
	if cfg.Port == "" {
		return errors.New("port is required")
	}
	if cfg.DatabaseDSN == "" {
		return errors.New("database dsn is required")
	}
	if cfg.JWTSecret == "" {
		return errors.New("jwt secret is required")
	}
	if cfg.Env != "dev" && cfg.JWTSecret == "dev-secret-change-me" {
		return errors.New("default jwt secret not allowed outside dev")
	}
	if cfg.PartySeats < 1 || cfg.PartySeats > 50 {
		return errors.New("party seats out of range")
	}
	return nil
}
