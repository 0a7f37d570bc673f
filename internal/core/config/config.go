// Package config provides configuration management for the modmail bot.
package config

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/solatis/modmail/internal/types"
)

// Config is the complete service configuration.
type Config struct {
	Reddit RedditConfig
	Server ServerConfig
}

// RedditConfig holds API credentials and what to watch.
type RedditConfig struct {
	ClientID     string
	ClientSecret string // environment only
	Username     string
	Password     string // environment only
	UserAgent    string

	BaseURL  string
	TokenURL string
	WikiPage string

	Subreddits     []string
	SubredditsFile string
	States         []types.MailboxState

	PollInterval   time.Duration
	RequestTimeout time.Duration
	MaxRetries     int
}

// ServerConfig holds the optional listener addresses. Empty disables a server.
type ServerConfig struct {
	MetricsAddr string
	HealthAddr  string
}

// DefaultConfig returns configuration with default values.
func DefaultConfig() *Config {
	return &Config{
		Reddit: RedditConfig{
			UserAgent:      "modmail-bot/1.0",
			BaseURL:        "https://oauth.reddit.com",
			TokenURL:       "https://www.reddit.com/api/v1/access_token",
			WikiPage:       "reddit_modmail",
			SubredditsFile: "subreddits.txt",
			States:         append([]types.MailboxState(nil), types.DefaultStates...),
			PollInterval:   30 * time.Second,
			RequestTimeout: 30 * time.Second,
			MaxRetries:     5,
		},
	}
}

// ValidateCredentials checks that everything needed to log in is present.
// Only commands that talk to Reddit call it.
func (c *RedditConfig) ValidateCredentials() error {
	var missing []string
	if c.ClientID == "" {
		missing = append(missing, "reddit.client_id")
	}
	if c.ClientSecret == "" {
		missing = append(missing, "MODMAIL_REDDIT_CLIENT_SECRET")
	}
	if c.Username == "" {
		missing = append(missing, "reddit.username")
	}
	if c.Password == "" {
		missing = append(missing, "MODMAIL_REDDIT_PASSWORD")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing reddit credentials: %s", strings.Join(missing, ", "))
	}
	return nil
}

// AllSubreddits merges the configured list with the subreddits file.
// Order is preserved and duplicates are dropped case-insensitively.
func (c *RedditConfig) AllSubreddits() ([]string, error) {
	fromFile, err := LoadSubreddits(c.SubredditsFile)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var out []string
	for _, name := range append(append([]string(nil), c.Subreddits...), fromFile...) {
		name = normalizeSubreddit(name)
		if name == "" || seen[strings.ToLower(name)] {
			continue
		}
		seen[strings.ToLower(name)] = true
		out = append(out, name)
	}
	return out, nil
}

// LoadSubreddits reads one subreddit per line. Blank lines and lines starting
// with '#' are ignored. A missing file yields an empty list.
func LoadSubreddits(path string) ([]string, error) {
	if path == "" {
		return nil, nil
	}

	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open subreddits file: %w", err)
	}
	defer f.Close()

	var names []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if name := normalizeSubreddit(line); name != "" {
			names = append(names, name)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read subreddits file: %w", err)
	}
	return names, nil
}

// normalizeSubreddit strips whitespace and an optional r/ or /r/ prefix.
func normalizeSubreddit(name string) string {
	name = strings.TrimSpace(name)
	name = strings.TrimPrefix(name, "/")
	if len(name) > 2 && strings.EqualFold(name[:2], "r/") {
		name = name[2:]
	}
	return strings.TrimSpace(name)
}
