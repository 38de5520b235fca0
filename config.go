// config.go
//
// Command line and environment configuration.
// Every flag can also be set as REELFLING_<FLAG> (dashes become underscores),
// either in the environment or in a .env file loaded at startup.

package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/robalobadob/reelfling/internal/movies"
	"github.com/robalobadob/reelfling/internal/results"
	"github.com/robalobadob/reelfling/internal/session"
)

const devTokenSecret = "dev_secret_change_me"

type Config struct {
	bind          string
	port          int
	logLevel      string
	prettyLogs    bool
	dbDriver      string
	dbDSN         string
	moviesFile    string
	tmdbAPIKey    string
	tmdbBaseURL   string
	tmdbTimeout   time.Duration
	dailySalt     string
	tokenSecret   string
	clientOrigin  string
	hintPolicy    string
	lobbyTimeout  time.Duration
	playerTimeout time.Duration
	sessionTTL    time.Duration
	publicURL     string
}

func (c *Config) validate() error {
	if c.port < 1 || c.port > 65535 {
		return fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.port)
	}
	if _, err := zerolog.ParseLevel(c.logLevel); err != nil {
		return fmt.Errorf("invalid --log-level %q", c.logLevel)
	}
	if _, err := results.DialectFor(c.dbDriver); err != nil {
		return err
	}
	if c.dbDSN == "" {
		return errors.New("--db-dsn must not be empty")
	}
	if _, err := session.ParseHintPolicy(c.hintPolicy); err != nil {
		return fmt.Errorf("invalid --hint-policy %q (difficulty|fixed)", c.hintPolicy)
	}
	if c.tmdbTimeout <= 0 {
		return errors.New("--tmdb-timeout must be positive")
	}
	if c.lobbyTimeout < 0 || c.playerTimeout < 0 || c.sessionTTL < 0 {
		return errors.New("--lobby-timeout, --player-timeout and --session-ttl must not be negative")
	}
	if c.tokenSecret == "" {
		return errors.New("--token-secret must not be empty")
	}
	return nil
}

// policy is the parsed hint policy; call after validate.
func (c *Config) policy() session.HintPolicy {
	p, _ := session.ParseHintPolicy(c.hintPolicy)
	return p
}

func newCmd(cfg *Config) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("REELFLING")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:           "reelfling",
		Short:         "Movie title guessing game server: single player, daily challenge and multiplayer lobbies.",
		Args:          cobra.ExactArgs(0),
		SilenceErrors: true,
		Version:       releaseVersion,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.validate(); err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}

	fs := cmd.Flags()

	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.StringVarP(&cfg.bind, "bind", "b", "0.0.0.0", "address to bind to (env: REELFLING_BIND)")
	fs.IntVarP(&cfg.port, "port", "p", 5175, "port to listen on (env: REELFLING_PORT)")
	fs.StringVar(&cfg.logLevel, "log-level", "info", "trace|debug|info|warn|error (env: REELFLING_LOG_LEVEL)")
	fs.BoolVar(&cfg.prettyLogs, "pretty-logs", false, "human-readable console logs instead of JSON (env: REELFLING_PRETTY_LOGS)")
	fs.StringVar(&cfg.dbDriver, "db-driver", "sqlite3", "results database: sqlite3|postgres|mysql (env: REELFLING_DB_DRIVER)")
	fs.StringVar(&cfg.dbDSN, "db-dsn", "./data/app.db", "results database DSN or sqlite path (env: REELFLING_DB_DSN)")
	fs.StringVar(&cfg.moviesFile, "movies-file", "", "JSON movie catalog, embedded catalog when empty (env: REELFLING_MOVIES_FILE)")
	fs.StringVar(&cfg.tmdbAPIKey, "tmdb-api-key", "", "TMDb API key, catalog only when empty (env: REELFLING_TMDB_API_KEY)")
	fs.StringVar(&cfg.tmdbBaseURL, "tmdb-base-url", movies.DefaultTMDbBaseURL, "TMDb API base URL (env: REELFLING_TMDB_BASE_URL)")
	fs.DurationVar(&cfg.tmdbTimeout, "tmdb-timeout", 5*time.Second, "TMDb request timeout (env: REELFLING_TMDB_TIMEOUT)")
	fs.StringVar(&cfg.dailySalt, "daily-salt", "local_dev_salt", "secret mixed into the daily movie choice (env: REELFLING_DAILY_SALT)")
	fs.StringVar(&cfg.tokenSecret, "token-secret", devTokenSecret, "HMAC secret for lobby player tokens (env: REELFLING_TOKEN_SECRET)")
	fs.StringVar(&cfg.clientOrigin, "client-origin", "http://localhost:5173", "allowed CORS origin (env: REELFLING_CLIENT_ORIGIN)")
	fs.StringVar(&cfg.hintPolicy, "hint-policy", string(session.PolicyDifficulty), "difficulty|fixed (env: REELFLING_HINT_POLICY)")
	fs.DurationVar(&cfg.lobbyTimeout, "lobby-timeout", 30*time.Minute, "time before idle lobbies are closed, 0 disables (env: REELFLING_LOBBY_TIMEOUT)")
	fs.DurationVar(&cfg.playerTimeout, "player-timeout", 2*time.Minute, "time before silent players are removed, 0 disables (env: REELFLING_PLAYER_TIMEOUT)")
	fs.DurationVar(&cfg.sessionTTL, "session-ttl", time.Hour, "time before idle single-player games are forgotten, 0 disables (env: REELFLING_SESSION_TTL)")
	fs.StringVar(&cfg.publicURL, "public-url", "", "base URL encoded in lobby QR codes, request host when empty (env: REELFLING_PUBLIC_URL)")

	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("reelfling v{{.Version}}\n")

	cmd.SilenceErrors = true
	cmd.SilenceUsage = true

	return cmd
}
