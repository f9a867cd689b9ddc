package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

type Config struct {
	Port                  string
	AllowedOrigin         string
	DatabaseURL           string
	RedisAddr             string
	RedisPassword         string
	RedisDB               int
	AuthSecret            string
	AccessTokenTTLMinutes int
	Currency              string
	MoneyDecimals         int
	ShopName              string
	OverviewTTLSeconds    int
}

func Load() Config {
	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	tokenTTL, err := strconv.Atoi(getEnv("ACCESS_TOKEN_TTL_MINUTES", "480"))
	if err != nil || tokenTTL < 1 {
		tokenTTL = 480
	}
	overviewTTL, err := strconv.Atoi(getEnv("OVERVIEW_CACHE_TTL_SECONDS", "30"))
	if err != nil || overviewTTL < 1 {
		overviewTTL = 30
	}

	currency := strings.ToUpper(getEnv("CURRENCY", "KHR"))

	cfg := Config{
		Port:                  getEnv("PORT", "8080"),
		AllowedOrigin:         getEnv("ALLOWED_ORIGIN", "http://127.0.0.1:5173"),
		DatabaseURL:           os.Getenv("DATABASE_URL"),
		RedisAddr:             os.Getenv("REDIS_ADDR"),
		RedisPassword:         os.Getenv("REDIS_PASSWORD"),
		RedisDB:               redisDB,
		AuthSecret:            strings.TrimSpace(os.Getenv("AUTH_SECRET")),
		AccessTokenTTLMinutes: tokenTTL,
		Currency:              currency,
		MoneyDecimals:         decimalsForCurrency(currency),
		ShopName:              getEnv("SHOP_NAME", "Shoe Repair Shop"),
		OverviewTTLSeconds:    overviewTTL,
	}

	return cfg
}

// decimalsForCurrency fixes the minor-unit scale per deployment.
// KHR is a zero-decimal currency; everything else uses two decimal places.
func decimalsForCurrency(currency string) int {
	if currency == "KHR" {
		return 0
	}
	return 2
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func getEnv(key string, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}
