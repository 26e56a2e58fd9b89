package commands

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/fivetwenty-io/helix/internal/constants"
	"github.com/fivetwenty-io/helix/pkg/helix"
	"github.com/spf13/cobra"
)

// NewGetCommand creates the generic paginated fetch command.
func NewGetCommand() *cobra.Command {
	var (
		params   []string
		first    int
		all      bool
		scope    string
		cacheTTL time.Duration
	)

	cmd := &cobra.Command{
		Use:   "get PATH",
		Short: "Fetch a paginated API resource",
		Long: `Fetch any paginated Helix endpoint and print its items.

Examples:
  helix get /users --param login=someone
  helix get /channels/followers --param broadcaster_id=123 --scope moderator:read:followers --all`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query, err := parseParams(params)
			if err != nil {
				return err
			}

			config := loadConfig()

			descriptor := &helix.CallDescriptor{
				URL:   normalizePath(args[0]),
				Query: query,
				Scope: scope,
			}

			if first > 0 {
				descriptor.Pagination = &helix.PaginationOverrides{PageSize: first}
			}

			if cacheTTL > 0 {
				descriptor.CacheTTL = cacheTTL
			} else if config.Cache != nil {
				descriptor.CacheTTL = config.CacheTTL()
			}

			ctx := commandContext(cmd)

			client, closeClient, err := newClient(ctx, config)
			if err != nil {
				return err
			}
			defer closeClient()

			request, err := helix.NewPaginatedRequest(client, descriptor, helix.IdentityMapper[json.RawMessage]())
			if err != nil {
				return err
			}

			var items []json.RawMessage
			if all {
				items, err = request.GetAll(ctx)
			} else {
				items, err = request.GetNext(ctx)
			}

			if err != nil {
				return err
			}

			err = renderItems(cmd.OutOrStdout(), outputFormat(), items)
			if err != nil {
				return err
			}

			if !all && !request.Exhausted() {
				writeLine(cmd.ErrOrStderr(), "More results available, use --all to fetch every page")
			}

			return nil
		},
	}

	cmd.Flags().StringArrayVarP(&params, "param", "p", nil, "query parameter as key=value (repeatable)")
	cmd.Flags().IntVar(&first, "first", 0, "page size sent as the 'first' parameter")
	cmd.Flags().BoolVar(&all, "all", false, "fetch every page")
	cmd.Flags().StringVar(&scope, "scope", "", "scope the endpoint requires")
	cmd.Flags().DurationVar(&cacheTTL, "cache-ttl", 0, "cache responses for this long (requires a configured cache)")

	return cmd
}

// parseParams turns key=value pairs into a query. Repeated keys accumulate.
func parseParams(params []string) (url.Values, error) {
	query := url.Values{}

	for _, param := range params {
		key, value, ok := strings.Cut(param, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("%w: %s", constants.ErrInvalidParam, param)
		}

		query.Add(key, value)
	}

	return query, nil
}

func normalizePath(path string) string {
	if strings.HasPrefix(path, "/") || strings.Contains(path, "://") {
		return path
	}

	return "/" + path
}
