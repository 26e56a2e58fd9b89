package commands

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/fivetwenty-io/helix/internal/constants"
	"github.com/fivetwenty-io/helix/pkg/helix"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config represents the CLI configuration file.
type Config struct {
	ClientID     string `json:"client_id,omitempty"     yaml:"client_id,omitempty"`
	ClientSecret string `json:"client_secret,omitempty" yaml:"client_secret,omitempty"`
	RedirectURI  string `json:"redirect_uri,omitempty"  yaml:"redirect_uri,omitempty"`
	APIBaseURL   string `json:"api_base_url,omitempty"  yaml:"api_base_url,omitempty"`
	AuthBaseURL  string `json:"auth_base_url,omitempty" yaml:"auth_base_url,omitempty"`

	AccessToken   string     `json:"access_token,omitempty"   yaml:"access_token,omitempty"`
	RefreshToken  string     `json:"refresh_token,omitempty"  yaml:"refresh_token,omitempty"`
	TokenType     string     `json:"token_type,omitempty"     yaml:"token_type,omitempty"`
	Scopes        []string   `json:"scopes,omitempty"         yaml:"scopes,omitempty"`
	ExpiresIn     *int       `json:"expires_in,omitempty"     yaml:"expires_in,omitempty"`
	ObtainedAt    *time.Time `json:"obtained_at,omitempty"    yaml:"obtained_at,omitempty"`
	LastRefreshed *time.Time `json:"last_refreshed,omitempty" yaml:"last_refreshed,omitempty"`

	Output        string         `json:"output,omitempty"         yaml:"output,omitempty"`
	ProactiveRate float64        `json:"proactive_rate,omitempty" yaml:"proactive_rate,omitempty"`
	Cache         *CacheSettings `json:"cache,omitempty"          yaml:"cache,omitempty"`
}

// CacheSettings selects the response cache backend.
type CacheSettings struct {
	Type          string `json:"type,omitempty"           yaml:"type,omitempty"`
	TTL           string `json:"ttl,omitempty"            yaml:"ttl,omitempty"`
	MaxSize       int    `json:"max_size,omitempty"       yaml:"max_size,omitempty"`
	RedisAddr     string `json:"redis_addr,omitempty"     yaml:"redis_addr,omitempty"`
	RedisPassword string `json:"redis_password,omitempty" yaml:"redis_password,omitempty"`
	RedisDB       int    `json:"redis_db,omitempty"       yaml:"redis_db,omitempty"`
	NATSURL       string `json:"nats_url,omitempty"       yaml:"nats_url,omitempty"`
	NATSBucket    string `json:"nats_bucket,omitempty"    yaml:"nats_bucket,omitempty"`
}

// Token returns the stored access token, or nil when none is stored.
func (c *Config) Token() *helix.AccessToken {
	if c.AccessToken == "" && c.RefreshToken == "" {
		return nil
	}

	token := &helix.AccessToken{
		AccessToken:  c.AccessToken,
		RefreshToken: c.RefreshToken,
		Scopes:       c.Scopes,
		ExpiresIn:    c.ExpiresIn,
	}

	if c.ObtainedAt != nil {
		token.ObtainedAt = *c.ObtainedAt
	}

	return token
}

// SetToken stores token. An empty refresh token keeps the stored one.
func (c *Config) SetToken(token *helix.AccessToken, tokenType helix.TokenType) {
	c.AccessToken = token.AccessToken
	if token.RefreshToken != "" {
		c.RefreshToken = token.RefreshToken
	}

	c.TokenType = string(tokenType)
	c.Scopes = token.Scopes
	c.ExpiresIn = token.ExpiresIn

	obtainedAt := token.ObtainedAt
	c.ObtainedAt = &obtainedAt
}

// ClearToken removes every stored token field.
func (c *Config) ClearToken() {
	c.AccessToken = ""
	c.RefreshToken = ""
	c.TokenType = ""
	c.Scopes = nil
	c.ExpiresIn = nil
	c.ObtainedAt = nil
	c.LastRefreshed = nil
}

// CacheTTL returns the configured response cache TTL.
func (c *Config) CacheTTL() time.Duration {
	if c.Cache == nil || c.Cache.TTL == "" {
		return constants.DefaultCacheTTL
	}

	ttl, err := time.ParseDuration(c.Cache.TTL)
	if err != nil {
		return constants.DefaultCacheTTL
	}

	return ttl
}

type configSetter func(config *Config, value string) error

func stringSetter(field func(*Config) *string) configSetter {
	return func(config *Config, value string) error {
		*field(config) = value

		return nil
	}
}

func cacheSettings(config *Config) *CacheSettings {
	if config.Cache == nil {
		config.Cache = &CacheSettings{}
	}

	return config.Cache
}

var configSetters = map[string]configSetter{
	"client_id":     stringSetter(func(c *Config) *string { return &c.ClientID }),
	"client_secret": stringSetter(func(c *Config) *string { return &c.ClientSecret }),
	"redirect_uri":  stringSetter(func(c *Config) *string { return &c.RedirectURI }),
	"api_base_url":  stringSetter(func(c *Config) *string { return &c.APIBaseURL }),
	"auth_base_url": stringSetter(func(c *Config) *string { return &c.AuthBaseURL }),
	"access_token":  stringSetter(func(c *Config) *string { return &c.AccessToken }),
	"refresh_token": stringSetter(func(c *Config) *string { return &c.RefreshToken }),
	"output": func(config *Config, value string) error {
		switch value {
		case constants.FormatTable, constants.FormatJSON, constants.FormatYAML:
			config.Output = value

			return nil
		default:
			return fmt.Errorf("%w: %s", constants.ErrUnsupportedFormat, value)
		}
	},
	"proactive_rate": func(config *Config, value string) error {
		rate, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid proactive_rate: %w", err)
		}

		config.ProactiveRate = rate

		return nil
	},
	"cache.type": func(config *Config, value string) error {
		cacheSettings(config).Type = value

		return nil
	},
	"cache.ttl": func(config *Config, value string) error {
		_, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid cache.ttl: %w", err)
		}

		cacheSettings(config).TTL = value

		return nil
	},
	"cache.max_size": func(config *Config, value string) error {
		size, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid cache.max_size: %w", err)
		}

		cacheSettings(config).MaxSize = size

		return nil
	},
	"cache.redis_addr": func(config *Config, value string) error {
		cacheSettings(config).RedisAddr = value

		return nil
	},
	"cache.redis_password": func(config *Config, value string) error {
		cacheSettings(config).RedisPassword = value

		return nil
	},
	"cache.redis_db": func(config *Config, value string) error {
		db, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid cache.redis_db: %w", err)
		}

		cacheSettings(config).RedisDB = db

		return nil
	},
	"cache.nats_url": func(config *Config, value string) error {
		cacheSettings(config).NATSURL = value

		return nil
	},
	"cache.nats_bucket": func(config *Config, value string) error {
		cacheSettings(config).NATSBucket = value

		return nil
	},
}

// SetConfigValue assigns value to the configuration key.
func SetConfigValue(config *Config, key, value string) error {
	setter, ok := configSetters[key]
	if !ok {
		return fmt.Errorf("%w: %s", constants.ErrUnknownConfigKey, key)
	}

	return setter(config, value)
}

// ConfigKeys lists the keys accepted by 'config set'.
func ConfigKeys() []string {
	keys := make([]string, 0, len(configSetters))
	for key := range configSetters {
		keys = append(keys, key)
	}

	sort.Strings(keys)

	return keys
}

// NewConfigCommand creates the config command group.
func NewConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage CLI configuration",
		Long:  "Manage helix CLI configuration including credentials and cache settings",
	}

	cmd.AddCommand(newConfigShowCommand())
	cmd.AddCommand(newConfigSetCommand())

	return cmd
}

func newConfigShowCommand() *cobra.Command {
	var showSecrets bool

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		Long:  "Display the effective configuration, including environment overrides",
		RunE: func(cmd *cobra.Command, args []string) error {
			config := loadConfig()
			if !showSecrets {
				config = maskSecrets(config)
			}

			return renderOutput(cmd.OutOrStdout(), outputFormat(), config, func(table *tablewriter.Table) error {
				return configTable(table, config)
			})
		},
	}

	cmd.Flags().BoolVar(&showSecrets, "show-secrets", false, "print secrets and tokens unmasked")

	return cmd
}

func newConfigSetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "set KEY VALUE",
		Short: "Set a configuration value",
		Long:  "Set a configuration value. Valid keys: " + strings.Join(ConfigKeys(), ", "),
		Args:  cobra.ExactArgs(2), //nolint:mnd
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := configFilePath()
			if err != nil {
				return err
			}

			config, err := readConfigFile(path)
			if err != nil {
				return err
			}

			err = SetConfigValue(config, args[0], args[1])
			if err != nil {
				return err
			}

			err = writeConfigFile(path, config)
			if err != nil {
				return err
			}

			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Set %s\n", args[0])

			return nil
		},
	}
}

// loadConfig builds the effective configuration from the config file, the
// HELIX_* environment and bound flags.
func loadConfig() *Config {
	config := &Config{
		ClientID:     viper.GetString("client_id"),
		ClientSecret: viper.GetString("client_secret"),
		RedirectURI:  viper.GetString("redirect_uri"),
		APIBaseURL:   viper.GetString("api_base_url"),
		AuthBaseURL:  viper.GetString("auth_base_url"),
		AccessToken:  viper.GetString("access_token"),
		RefreshToken: viper.GetString("refresh_token"),
		TokenType:    viper.GetString("token_type"),
		Scopes:       viper.GetStringSlice("scopes"),
		Output:       viper.GetString("output"),

		ProactiveRate: viper.GetFloat64("proactive_rate"),
	}

	if viper.IsSet("expires_in") {
		expiresIn := viper.GetInt("expires_in")
		config.ExpiresIn = &expiresIn
	}

	if viper.IsSet("obtained_at") {
		obtainedAt := viper.GetTime("obtained_at")
		config.ObtainedAt = &obtainedAt
	}

	if viper.IsSet("last_refreshed") {
		lastRefreshed := viper.GetTime("last_refreshed")
		config.LastRefreshed = &lastRefreshed
	}

	if viper.IsSet("cache.type") {
		config.Cache = &CacheSettings{
			Type:          viper.GetString("cache.type"),
			TTL:           viper.GetString("cache.ttl"),
			MaxSize:       viper.GetInt("cache.max_size"),
			RedisAddr:     viper.GetString("cache.redis_addr"),
			RedisPassword: viper.GetString("cache.redis_password"),
			RedisDB:       viper.GetInt("cache.redis_db"),
			NATSURL:       viper.GetString("cache.nats_url"),
			NATSBucket:    viper.GetString("cache.nats_bucket"),
		}
	}

	return config
}

// configFilePath returns the file 'config set' and token persistence write to.
func configFilePath() (string, error) {
	configFile := viper.ConfigFileUsed()
	if configFile != "" {
		return configFile, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	return filepath.Join(home, ".helix", "config.yml"), nil
}

// readConfigFile reads path without environment overrides. A missing file
// yields an empty configuration.
func readConfigFile(path string) (*Config, error) {
	// path comes from the --config flag or the user's home directory
	// #nosec G304
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return &Config{}, nil
	}

	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := &Config{}

	err = yaml.Unmarshal(data, config)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

func writeConfigFile(path string, config *Config) error {
	err := os.MkdirAll(filepath.Dir(path), constants.ConfigDirPerm)
	if err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config to YAML: %w", err)
	}

	err = os.WriteFile(path, data, constants.ConfigFilePerm)
	if err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

func maskSecrets(config *Config) *Config {
	masked := *config

	for _, field := range []*string{&masked.ClientSecret, &masked.AccessToken, &masked.RefreshToken} {
		if *field != "" {
			*field = constants.MaskedSecret
		}
	}

	if config.Cache != nil && config.Cache.RedisPassword != "" {
		cache := *config.Cache
		cache.RedisPassword = constants.MaskedSecret
		masked.Cache = &cache
	}

	return &masked
}

func configTable(table *tablewriter.Table, config *Config) error {
	table.Header("Property", "Value")

	rows := [][]string{
		{"Client ID", valueOrNA(config.ClientID)},
		{"Client Secret", valueOrNA(config.ClientSecret)},
		{"Redirect URI", valueOrNA(config.RedirectURI)},
		{"API Base URL", valueOr(config.APIBaseURL, constants.DefaultAPIBaseURL)},
		{"Auth Base URL", valueOr(config.AuthBaseURL, constants.DefaultAuthBaseURL)},
		{"Access Token", valueOrNA(config.AccessToken)},
		{"Refresh Token", valueOrNA(config.RefreshToken)},
		{"Token Type", valueOrNA(config.TokenType)},
		{"Scopes", valueOrNA(strings.Join(config.Scopes, " "))},
		{"Token Expires", formatExpiry(config.Token())},
		{"Output", valueOr(config.Output, constants.FormatTable)},
	}

	if config.ProactiveRate > 0 {
		rows = append(rows, []string{"Proactive Rate", strconv.FormatFloat(config.ProactiveRate, 'f', -1, 64)})
	}

	if config.Cache != nil {
		rows = append(rows,
			[]string{"Cache Type", valueOrNA(config.Cache.Type)},
			[]string{"Cache TTL", config.CacheTTL().String()},
		)
	}

	for _, row := range rows {
		err := table.Append(row[0], row[1])
		if err != nil {
			return fmt.Errorf("failed to append table row: %w", err)
		}
	}

	return nil
}

// outputFormat resolves --output, HELIX_OUTPUT and the config file in that order.
func outputFormat() string {
	return viper.GetString("output")
}

func valueOrNA(value string) string {
	return valueOr(value, constants.NotAvailable)
}

func valueOr(value, fallback string) string {
	if value == "" {
		return fallback
	}

	return value
}

func formatExpiry(token *helix.AccessToken) string {
	expiresAt, ok := token.ExpiresAt()
	if !ok {
		return constants.NotAvailable
	}

	return expiresAt.Local().Format(time.RFC3339)
}

// writeLine ignores write errors to the terminal.
func writeLine(w io.Writer, format string, args ...interface{}) {
	_, _ = fmt.Fprintf(w, format+"\n", args...)
}
