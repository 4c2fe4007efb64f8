// Package config handles application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
)

const (
	defaultSendRate = 20
	maxSendRate     = 30
)

// Config holds the application configuration.
type Config struct {
	TelegramBotToken string
	DatabasePath     string
	LogLevel         string
	AllowedUsers     []int64
	// DefaultSite is used for board codes given without a "site/" prefix.
	DefaultSite string
	// SendRate limits outgoing notifications, in messages per second.
	SendRate int
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	token := os.Getenv("TELEGRAM_BOT_TOKEN")
	if token == "" {
		return nil, fmt.Errorf("TELEGRAM_BOT_TOKEN is required")
	}

	dbPath := os.Getenv("DATABASE_PATH")
	if dbPath == "" {
		dbPath = "./data/bot.db"
	}

	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}

	var allowedUsers []int64
	if raw := os.Getenv("ALLOWED_USERS"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			s = strings.TrimSpace(s)
			if s == "" {
				continue
			}
			uid, err := strconv.ParseInt(s, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid user ID %q in ALLOWED_USERS: %w", s, err)
			}
			allowedUsers = append(allowedUsers, uid)
		}
	}

	site := strings.ToLower(strings.TrimSpace(os.Getenv("DEFAULT_SITE")))
	if site == "" {
		site = "4chan"
	}
	if strings.Contains(site, "/") {
		return nil, fmt.Errorf("invalid DEFAULT_SITE %q: must not contain '/'", site)
	}

	sendRate := defaultSendRate
	if raw := strings.TrimSpace(os.Getenv("SEND_RATE")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid SEND_RATE %q: %w", raw, err)
		}
		if n < 1 || n > maxSendRate {
			return nil, fmt.Errorf("SEND_RATE must be between 1 and %d, got %d", maxSendRate, n)
		}
		sendRate = n
	}

	return &Config{
		TelegramBotToken: token,
		DatabasePath:     dbPath,
		LogLevel:         logLevel,
		AllowedUsers:     allowedUsers,
		DefaultSite:      site,
		SendRate:         sendRate,
	}, nil
}

// IsUserAllowed checks whether a user ID is in the allow list.
// Returns true if the allow list is empty (all users permitted).
func (c *Config) IsUserAllowed(userID int64) bool {
	if len(c.AllowedUsers) == 0 {
		return true
	}
	return slices.Contains(c.AllowedUsers, userID)
}
