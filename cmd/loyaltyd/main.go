package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/MarkoPoloResearchLab/loyalty/internal/httpapi"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	envPrefix = "LOYALTYD"

	flagDatabaseURL       = "database-url"
	flagRedisURL          = "redis-url"
	flagCatalogPath       = "catalog"
	flagListenAddr        = "listen-addr"
	flagAllowedOrigins    = "allowed-origins"
	flagSessionSigningKey = "session-signing-key"
	flagSessionIssuer     = "session-issuer"
	flagSessionCookie     = "session-cookie"
	flagRequestTimeout    = "request-timeout"
	flagRateLimitFailOpen = "rate-limit-fail-open"

	configKeyDatabaseURL       = "database_url"
	configKeyRedisURL          = "redis_url"
	configKeyCatalogPath       = "catalog"
	configKeyListenAddr        = "listen_addr"
	configKeyAllowedOrigins    = "allowed_origins"
	configKeySessionSigningKey = "session_signing_key"
	configKeySessionIssuer     = "session_issuer"
	configKeySessionCookie     = "session_cookie"
	configKeyRequestTimeout    = "request_timeout"
	configKeyRateLimitFailOpen = "rate_limit_fail_open"

	defaultDatabaseURL = "sqlite:///tmp/loyalty.db"
)

type runtimeConfig struct {
	DatabaseURL       string
	RedisURL          string
	CatalogPath       string
	RateLimitFailOpen bool
	HTTP              httpapi.Config
}

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "loyaltyd: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cfg := &runtimeConfig{}
	cmd := &cobra.Command{
		Use:           "loyaltyd",
		Short:         "Restaurant loyalty points service",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return loadConfig(cmd, cfg)
		},
	}

	flags := cmd.PersistentFlags()
	flags.String(flagDatabaseURL, defaultDatabaseURL, "PostgreSQL URL or SQLite path")
	flags.String(flagRedisURL, "", "Redis URL for shared rate-limit counters")
	flags.String(flagCatalogPath, "", "YAML catalog with locations and rewards")
	flags.Bool(flagRateLimitFailOpen, true, "allow code submissions when counters are unavailable")

	cmd.AddCommand(newServeCommand(cfg))
	cmd.AddCommand(newGenerateCodesCommand(cfg))
	return cmd
}

func loadConfig(cmd *cobra.Command, cfg *runtimeConfig) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}

	config := viper.New()
	config.SetEnvPrefix(envPrefix)
	config.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	config.AutomaticEnv()
	if err := config.BindEnv(configKeyDatabaseURL, envPrefix+"_DATABASE_URL", "DATABASE_URL"); err != nil {
		return err
	}
	if err := config.BindEnv(configKeyRedisURL, envPrefix+"_REDIS_URL", "REDIS_URL"); err != nil {
		return err
	}

	bindings := map[string]string{
		configKeyDatabaseURL:       flagDatabaseURL,
		configKeyRedisURL:          flagRedisURL,
		configKeyCatalogPath:       flagCatalogPath,
		configKeyRateLimitFailOpen: flagRateLimitFailOpen,
		configKeyListenAddr:        flagListenAddr,
		configKeyAllowedOrigins:    flagAllowedOrigins,
		configKeySessionSigningKey: flagSessionSigningKey,
		configKeySessionIssuer:     flagSessionIssuer,
		configKeySessionCookie:     flagSessionCookie,
		configKeyRequestTimeout:    flagRequestTimeout,
	}
	for key, flagName := range bindings {
		flag := cmd.Flags().Lookup(flagName)
		if flag == nil {
			continue
		}
		if err := config.BindPFlag(key, flag); err != nil {
			return err
		}
	}

	cfg.DatabaseURL = config.GetString(configKeyDatabaseURL)
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		cfg.DatabaseURL = defaultDatabaseURL
	}
	cfg.RedisURL = strings.TrimSpace(config.GetString(configKeyRedisURL))
	cfg.CatalogPath = strings.TrimSpace(config.GetString(configKeyCatalogPath))
	cfg.RateLimitFailOpen = config.GetBool(configKeyRateLimitFailOpen)
	cfg.HTTP = httpapi.Config{
		ListenAddr:        config.GetString(configKeyListenAddr),
		AllowedOrigins:    httpapi.ParseAllowedOrigins(config.GetString(configKeyAllowedOrigins)),
		SessionSigningKey: config.GetString(configKeySessionSigningKey),
		SessionIssuer:     config.GetString(configKeySessionIssuer),
		SessionCookieName: config.GetString(configKeySessionCookie),
		RequestTimeout:    config.GetDuration(configKeyRequestTimeout),
	}
	return nil
}

func newServeCommand(cfg *runtimeConfig) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the loyalty HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), cfg)
		},
	}
	cmd.Flags().String(flagListenAddr, ":8080", "HTTP listen address")
	cmd.Flags().String(flagAllowedOrigins, "", "comma-separated CORS origins")
	cmd.Flags().String(flagSessionSigningKey, "", "TAuth session signing key")
	cmd.Flags().String(flagSessionIssuer, "tauth", "TAuth session issuer")
	cmd.Flags().String(flagSessionCookie, "app_session", "TAuth session cookie name")
	cmd.Flags().Duration(flagRequestTimeout, 5*time.Second, "per-request store timeout")
	return cmd
}
