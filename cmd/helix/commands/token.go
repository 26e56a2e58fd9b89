package commands

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/fivetwenty-io/helix/internal/constants"
	"github.com/fivetwenty-io/helix/pkg/auth"
	"github.com/fivetwenty-io/helix/pkg/helix"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

// NewTokenCommand creates the token command group.
func NewTokenCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Manage access tokens",
		Long:  "Validate, refresh, obtain and revoke the stored access token",
	}

	cmd.AddCommand(newTokenValidateCommand())
	cmd.AddCommand(newTokenRefreshCommand())
	cmd.AddCommand(newTokenAppCommand())
	cmd.AddCommand(newTokenRevokeCommand())

	return cmd
}

func commandContext(cmd *cobra.Command) context.Context {
	ctx := cmd.Context()
	if ctx == nil {
		return context.Background()
	}

	return ctx
}

func newTokenValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the stored token",
		Long:  "Ask the validation endpoint which client, user and scopes the current token belongs to",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd)

			client, closeClient, err := newClient(ctx, loadConfig())
			if err != nil {
				return err
			}
			defer closeClient()

			info, err := client.TokenInfo(ctx)
			if err != nil {
				return err
			}

			return renderOutput(cmd.OutOrStdout(), outputFormat(), info, func(table *tablewriter.Table) error {
				return tokenInfoTable(table, info)
			})
		},
	}
}

func newTokenRefreshCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Refresh the stored user token",
		Long:  "Exchange the stored refresh token for a new user token and store the result",
		RunE: func(cmd *cobra.Command, args []string) error {
			config := loadConfig()
			if config.ClientID == "" {
				return constants.ErrNoClientID
			}

			provider, err := userProvider(config, cliLogger())
			if err != nil {
				return err
			}

			token, err := provider.Refresh(commandContext(cmd))
			if err != nil {
				return err
			}

			return renderOutput(cmd.OutOrStdout(), outputFormat(), maskToken(token), func(table *tablewriter.Table) error {
				return tokenTable(table, token)
			})
		},
	}
}

func newTokenAppCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "app",
		Short: "Obtain an app token",
		Long:  "Obtain an app token with the client-credentials grant and store it",
		RunE: func(cmd *cobra.Command, args []string) error {
			config := loadConfig()
			if config.ClientID == "" {
				return constants.ErrNoClientID
			}

			provider, err := appProvider(commandContext(cmd), config, cliLogger())
			if err != nil {
				return err
			}

			token := provider.CurrentToken()

			return renderOutput(cmd.OutOrStdout(), outputFormat(), maskToken(token), func(table *tablewriter.Table) error {
				return tokenTable(table, token)
			})
		},
	}
}

func newTokenRevokeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "revoke",
		Short: "Revoke the stored token",
		Long:  "Revoke the stored access token and remove it from the config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			config := loadConfig()
			if config.ClientID == "" {
				return constants.ErrNoClientID
			}

			if config.AccessToken == "" {
				return constants.ErrNotAuthenticated
			}

			err := auth.RevokeToken(commandContext(cmd), config.ClientID, config.AccessToken,
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

			fileConfig.ClearToken()

			err = writeConfigFile(path, fileConfig)
			if err != nil {
				return err
			}

			writeLine(cmd.OutOrStdout(), "Token revoked")

			return nil
		},
	}
}

// maskToken hides the credential strings of token for display.
func maskToken(token *helix.AccessToken) *helix.AccessToken {
	if token == nil {
		return nil
	}

	masked := *token
	masked.AccessToken = constants.MaskedSecret

	if masked.RefreshToken != "" {
		masked.RefreshToken = constants.MaskedSecret
	}

	return &masked
}

func tokenTable(table *tablewriter.Table, token *helix.AccessToken) error {
	table.Header("Property", "Value")

	if token == nil {
		return constants.ErrNotAuthenticated
	}

	rows := [][]string{
		{"Scopes", valueOrNA(strings.Join(token.Scopes, " "))},
		{"Expires", formatExpiry(token)},
		{"Refreshable", strconv.FormatBool(token.RefreshToken != "")},
	}

	for _, row := range rows {
		err := table.Append(row[0], row[1])
		if err != nil {
			return fmt.Errorf("failed to append table row: %w", err)
		}
	}

	return nil
}

func tokenInfoTable(table *tablewriter.Table, info *helix.TokenInfo) error {
	table.Header("Property", "Value")

	expiresIn := constants.NotAvailable
	if info.ExpiresIn != nil {
		expiresIn = strconv.Itoa(*info.ExpiresIn) + "s"
	}

	rows := [][]string{
		{"Client ID", info.ClientID},
		{"Login", valueOrNA(info.Login)},
		{"User ID", valueOrNA(info.UserID)},
		{"Scopes", valueOrNA(strings.Join(info.Scopes, " "))},
		{"Expires In", expiresIn},
	}

	for _, row := range rows {
		err := table.Append(row[0], row[1])
		if err != nil {
			return fmt.Errorf("failed to append table row: %w", err)
		}
	}

	return nil
}
