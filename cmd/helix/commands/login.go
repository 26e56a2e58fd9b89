package commands

import (
	"github.com/fivetwenty-io/helix/internal/constants"
	"github.com/fivetwenty-io/helix/pkg/auth"
	"github.com/fivetwenty-io/helix/pkg/helix"
	"github.com/google/uuid"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

// NewLoginCommand creates the login command.
func NewLoginCommand() *cobra.Command {
	var (
		code         string
		redirectURI  string
		clientSecret string
		printURL     bool
		scopes       []string
		saveSecret   bool
	)

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Authorize a user",
		Long: `Authorize the CLI on behalf of a user.

Run 'helix login --url --scope <scope>' to print the authorization URL, open it
in a browser, then run 'helix login --code <code>' with the code the redirect
received. The resulting user token is stored in the config file.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			config := loadConfig()
			if config.ClientID == "" {
				return constants.ErrNoClientID
			}

			if redirectURI == "" {
				redirectURI = config.RedirectURI
			}

			if redirectURI == "" {
				return constants.ErrRedirectURIMissing
			}

			if printURL {
				url := auth.AuthorizationURL(config.ClientID, redirectURI, uuid.NewString(), scopes,
					authOptions(config, cliLogger())...)
				writeLine(cmd.OutOrStdout(), "%s", url)

				return nil
			}

			if code == "" {
				return constants.ErrNoAuthFlow
			}

			if clientSecret == "" {
				clientSecret = config.ClientSecret
			}

			if clientSecret == "" {
				secret, err := readSecret(cmd.ErrOrStderr(), "Client secret: ")
				if err != nil {
					return err
				}

				clientSecret = secret
			}

			return runLogin(cmd, config, code, redirectURI, clientSecret, saveSecret)
		},
	}

	cmd.Flags().StringVar(&code, "code", "", "authorization code received by the redirect URI")
	cmd.Flags().StringVar(&redirectURI, "redirect-uri", "", "redirect URI registered for the application")
	cmd.Flags().StringVar(&clientSecret, "client-secret", "", "client secret (prompted when not configured)")
	cmd.Flags().BoolVar(&printURL, "url", false, "print the authorization URL instead of exchanging a code")
	cmd.Flags().StringSliceVar(&scopes, "scope", nil, "scope to request with --url (repeatable)")
	cmd.Flags().BoolVar(&saveSecret, "save-secret", false, "store the client secret in the config file")

	return cmd
}

func runLogin(cmd *cobra.Command, config *Config, code, redirectURI, clientSecret string, saveSecret bool) error {
	token, err := auth.ExchangeCode(commandContext(cmd), config.ClientID, clientSecret, code, redirectURI,
		authOptions(config, cliLogger())...)
	if err != nil {
		return err
	}

	path, err := configFilePath()
	if err != nil {
		return err
	}

	fileConfig, err := readConfigFile(path)
	if err != nil {
		return err
	}

	fileConfig.ClientID = config.ClientID
	fileConfig.RedirectURI = redirectURI
	fileConfig.ClearToken()
	fileConfig.SetToken(token, helix.TokenTypeUser)

	if saveSecret {
		fileConfig.ClientSecret = clientSecret
	}

	err = writeConfigFile(path, fileConfig)
	if err != nil {
		return err
	}

	return renderOutput(cmd.OutOrStdout(), outputFormat(), maskToken(token), func(table *tablewriter.Table) error {
		return tokenTable(table, token)
	})
}
