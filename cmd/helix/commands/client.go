package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	iauth "github.com/fivetwenty-io/helix/internal/auth"
	"github.com/fivetwenty-io/helix/internal/constants"
	"github.com/fivetwenty-io/helix/internal/logger"
	"github.com/fivetwenty-io/helix/pkg/auth"
	"github.com/fivetwenty-io/helix/pkg/helix"
	"github.com/fivetwenty-io/helix/pkg/helixclient"
	"github.com/spf13/viper"
	"golang.org/x/term"
)

// cliLogger returns the helix.Logger used by every command.
func cliLogger() helix.Logger {
	return logger.NewAdapter(logger.New(viper.GetBool("verbose")))
}

// authOptions returns the provider options shared by every command.
func authOptions(config *Config, log helix.Logger) []auth.Option {
	opts := []auth.Option{auth.WithLogger(log)}

	if config.AuthBaseURL != "" {
		opts = append(opts, auth.WithAuthBaseURL(config.AuthBaseURL))
	}

	return opts
}

// userProvider builds a refreshing provider whose rotated tokens are written
// back to the config file.
func userProvider(config *Config, log helix.Logger) (*auth.RefreshingProvider, error) {
	if config.ClientSecret == "" {
		return nil, constants.ErrNoClientSecret
	}

	if config.RefreshToken == "" {
		return nil, constants.ErrNoRefreshToken
	}

	path, err := configFilePath()
	if err != nil {
		return nil, err
	}

	token := config.Token()
	manager := iauth.NewConfigTokenManager(NewConfigPersister(path, helix.TokenTypeUser), config.ClientID, token, log)

	return auth.NewUserProvider(config.ClientID, config.ClientSecret, token,
		append(authOptions(config, log), auth.WithOnRefresh(manager.Persist))...)
}

// appProvider builds a client-credentials provider whose app tokens are
// written back to the config file.
func appProvider(ctx context.Context, config *Config, log helix.Logger) (*auth.ClientCredentialsProvider, error) {
	if config.ClientSecret == "" {
		return nil, constants.ErrNoClientSecret
	}

	path, err := configFilePath()
	if err != nil {
		return nil, err
	}

	manager := iauth.NewConfigTokenManager(NewConfigPersister(path, helix.TokenTypeApp), config.ClientID, nil, log)

	return auth.NewClientCredentialsProvider(ctx, config.ClientID, config.ClientSecret,
		append(authOptions(config, log), auth.WithOnRefresh(manager.Persist))...)
}

// newAuthProvider picks a provider for the stored credentials: a refreshable
// user token, a bare token, or the client-credentials grant.
func newAuthProvider(ctx context.Context, config *Config, log helix.Logger) (helix.AuthProvider, error) {
	if config.ClientID == "" {
		return nil, constants.ErrNoClientID
	}

	switch {
	case config.TokenType == string(helix.TokenTypeApp) && config.ClientSecret != "":
		return appProvider(ctx, config, log)
	case config.RefreshToken != "" && config.ClientSecret != "":
		return userProvider(config, log)
	case config.AccessToken != "":
		tokenType := helix.TokenTypeUser
		if config.TokenType == string(helix.TokenTypeApp) {
			tokenType = helix.TokenTypeApp
		}

		return auth.NewStaticProvider(config.ClientID, config.Token(),
			append(authOptions(config, log), auth.WithValidation(), auth.WithTokenType(tokenType))...)
	case config.ClientSecret != "":
		return appProvider(ctx, config, log)
	default:
		return nil, constants.ErrNotAuthenticated
	}
}

// newClient builds an API client from config. The returned closer releases
// the response cache backend.
func newClient(ctx context.Context, config *Config) (helix.Client, func(), error) {
	log := cliLogger()

	provider, err := newAuthProvider(ctx, config, log)
	if err != nil {
		return nil, nil, err
	}

	cache, err := newCache(ctx, config)
	if err != nil {
		return nil, nil, err
	}

	client, err := helixclient.New(ctx, &helix.Config{
		AuthProvider:  provider,
		BaseURL:       config.APIBaseURL,
		AuthBaseURL:   config.AuthBaseURL,
		HTTPTimeout:   constants.DefaultHTTPTimeout,
		ProactiveRate: config.ProactiveRate,
		Debug:         viper.GetBool("verbose"),
		Logger:        log,
		Cache:         cache,
	})
	if err != nil {
		closeCache(cache)

		return nil, nil, err
	}

	return client, func() { closeCache(cache) }, nil
}

// newCache returns nil when no cache is configured.
func newCache(ctx context.Context, config *Config) (helix.Cache, error) {
	if config.Cache == nil || config.Cache.Type == "" || config.Cache.Type == string(helix.CacheTypeNone) {
		return nil, nil //nolint:nilnil
	}

	cacheConfig := &helix.CacheConfig{Type: helix.CacheType(config.Cache.Type)}

	switch cacheConfig.Type {
	case helix.CacheTypeMemory:
		size := config.Cache.MaxSize
		if size <= 0 {
			size = constants.DefaultCacheSize
		}

		cacheConfig.Memory = &helix.MemoryCacheConfig{MaxSize: size}
	case helix.CacheTypeRedis:
		cacheConfig.Redis = &helix.RedisCacheConfig{
			Addr:     config.Cache.RedisAddr,
			Password: config.Cache.RedisPassword,
			DB:       config.Cache.RedisDB,
		}
	case helix.CacheTypeNATS:
		cacheConfig.NATS = &helix.NATSKVConfig{
			URL:    config.Cache.NATSURL,
			Bucket: config.Cache.NATSBucket,
			TTL:    config.CacheTTL(),
		}
	}

	cache, err := helix.NewCacheFromConfig(ctx, cacheConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create cache: %w", err)
	}

	return cache, nil
}

func closeCache(cache helix.Cache) {
	switch c := cache.(type) {
	case interface{ Close() error }:
		_ = c.Close()
	case interface{ Close() }:
		c.Close()
	}
}

// readSecret prompts for a secret without echo when stdin is a terminal.
func readSecret(out io.Writer, prompt string) (string, error) {
	fd := int(os.Stdin.Fd()) //nolint:gosec

	if !term.IsTerminal(fd) {
		return "", constants.ErrNoClientSecret
	}

	_, _ = fmt.Fprint(out, prompt)

	secret, err := term.ReadPassword(fd)

	_, _ = fmt.Fprintln(out)

	if err != nil {
		return "", fmt.Errorf("failed to read secret: %w", err)
	}

	return strings.TrimSpace(string(secret)), nil
}
