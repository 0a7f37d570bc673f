package config

import (
	"fmt"
	"strings"

	"github.com/solatis/modmail/internal/types"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Environment variables that may carry secrets. Never read from config files.
const (
	EnvClientSecret = "MODMAIL_REDDIT_CLIENT_SECRET"
	EnvPassword     = "MODMAIL_REDDIT_PASSWORD"
)

// flagKeys maps CLI flag names to config keys for BindPFlag.
var flagKeys = map[string]string{
	"subreddit":    "reddit.subreddits",
	"state":        "reddit.states",
	"wiki-page":    "reddit.wiki_page",
	"metrics-addr": "server.metrics_addr",
	"health-addr":  "server.health_addr",
}

// LoadConfig loads configuration from file using viper.
// CLI flags > environment > config file > defaults precedence. flags may be nil;
// only flags named in flagKeys that the caller defines are bound.
func LoadConfig(configPath string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	// Set defaults matching DefaultConfig
	def := DefaultConfig()
	v.SetDefault("reddit.client_id", "")
	v.SetDefault("reddit.username", "")
	v.SetDefault("reddit.user_agent", def.Reddit.UserAgent)
	v.SetDefault("reddit.base_url", def.Reddit.BaseURL)
	v.SetDefault("reddit.token_url", def.Reddit.TokenURL)
	v.SetDefault("reddit.wiki_page", def.Reddit.WikiPage)
	v.SetDefault("reddit.subreddits", []string{})
	v.SetDefault("reddit.subreddits_file", def.Reddit.SubredditsFile)
	v.SetDefault("reddit.states", stateNames(def.Reddit.States))
	v.SetDefault("reddit.poll_interval", "30s")
	v.SetDefault("reddit.request_timeout", "30s")
	v.SetDefault("reddit.max_retries", def.Reddit.MaxRetries)
	v.SetDefault("server.metrics_addr", "")
	v.SetDefault("server.health_addr", "")

	// Bind environment variables with MODMAIL_ prefix
	v.SetEnvPrefix("MODMAIL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	// Load config file if provided
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Security check: reject secrets in config files
	if err := validateNoSecretsInConfig(v); err != nil {
		return nil, err
	}

	states, err := parseStates(splitList(v.GetStringSlice("reddit.states")))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Reddit: RedditConfig{
			ClientID:       v.GetString("reddit.client_id"),
			ClientSecret:   v.GetString("reddit.client_secret"),
			Username:       v.GetString("reddit.username"),
			Password:       v.GetString("reddit.password"),
			UserAgent:      v.GetString("reddit.user_agent"),
			BaseURL:        strings.TrimRight(v.GetString("reddit.base_url"), "/"),
			TokenURL:       v.GetString("reddit.token_url"),
			WikiPage:       v.GetString("reddit.wiki_page"),
			Subreddits:     splitList(v.GetStringSlice("reddit.subreddits")),
			SubredditsFile: v.GetString("reddit.subreddits_file"),
			States:         states,
			PollInterval:   v.GetDuration("reddit.poll_interval"),
			RequestTimeout: v.GetDuration("reddit.request_timeout"),
			MaxRetries:     v.GetInt("reddit.max_retries"),
		},
		Server: ServerConfig{
			MetricsAddr: v.GetString("server.metrics_addr"),
			HealthAddr:  v.GetString("server.health_addr"),
		},
	}

	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validateConfig checks positive durations and retries and a usable user agent.
func validateConfig(cfg *Config) error {
	r := cfg.Reddit
	if strings.TrimSpace(r.UserAgent) == "" {
		return fmt.Errorf("user_agent must not be empty")
	}
	if r.BaseURL == "" || r.TokenURL == "" {
		return fmt.Errorf("base_url and token_url must not be empty")
	}
	if r.WikiPage == "" {
		return fmt.Errorf("wiki_page must not be empty")
	}
	if r.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be positive, got %v", r.PollInterval)
	}
	if r.RequestTimeout <= 0 {
		return fmt.Errorf("request_timeout must be positive, got %v", r.RequestTimeout)
	}
	if r.MaxRetries <= 0 {
		return fmt.Errorf("max_retries must be positive, got %d", r.MaxRetries)
	}
	if len(r.States) == 0 {
		return fmt.Errorf("states must not be empty")
	}
	return nil
}

// validateNoSecretsInConfig enforces environment-only secrets (12-factor principle).
func validateNoSecretsInConfig(v *viper.Viper) error {
	for _, key := range []string{"reddit.client_secret", "reddit.password", "client_secret", "password"} {
		if v.InConfig(key) {
			return fmt.Errorf("reddit secrets not allowed in config files (use %s and %s environment variables)", EnvClientSecret, EnvPassword)
		}
	}
	return nil
}

// splitList flattens comma- or space-separated entries; environment values
// arrive as a single string.
func splitList(items []string) []string {
	var out []string
	for _, item := range items {
		for _, part := range strings.FieldsFunc(item, func(r rune) bool { return r == ',' || r == ' ' }) {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func parseStates(names []string) ([]types.MailboxState, error) {
	states := make([]types.MailboxState, 0, len(names))
	seen := make(map[types.MailboxState]bool, len(names))
	for _, name := range names {
		s, err := types.ParseMailboxState(name)
		if err != nil {
			return nil, fmt.Errorf("reddit.states: %w", err)
		}
		if !seen[s] {
			seen[s] = true
			states = append(states, s)
		}
	}
	return states, nil
}

func stateNames(states []types.MailboxState) []string {
	out := make([]string, len(states))
	for i, s := range states {
		out[i] = string(s)
	}
	return out
}
