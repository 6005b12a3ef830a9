package env

import (
	"os"
	"strconv"
	"time"

	"log/slog"
)

func Must(key string) string {
	res := os.Getenv(key)
	if len(res) == 0 {
		slog.Error("env var must be set", "key", key)
		os.Exit(1)
	}
	return res
}

// Get returns the value of key, or def when it is unset or empty.
func Get(key, def string) string {
	if res := os.Getenv(key); len(res) > 0 {
		return res
	}
	return def
}

func Bool(key string, def bool) bool {
	res, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return def
	}
	return res
}

func Duration(key string, def time.Duration) time.Duration {
	res, err := time.ParseDuration(os.Getenv(key))
	if err != nil {
		return def
	}
	return res
}
