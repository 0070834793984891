package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Addr string

	StoreBackend string // "memory" or "mongo"
	MongoURI     string
	MongoDB      string

	RedisAddr string // empty disables the cross-node relay

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// Load reads .env (if present) and the environment.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Addr: getEnv("CYNETICS_ADDR", "127.0.0.1:8090"),

		StoreBackend: getEnv("CYNETICS_STORE", "memory"),
		MongoURI:     getEnv("CYNETICS_MONGO_URI", "mongodb://localhost:27017"),
		MongoDB:      getEnv("CYNETICS_MONGO_DB", "cynetics"),

		RedisAddr: getEnv("REDIS_ADDR", ""),

		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}
}
