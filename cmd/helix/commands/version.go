package commands

import (
	"fmt"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

// VersionInfo describes the running binary.
type VersionInfo struct {
	Version string `json:"version" yaml:"version"`
	Commit  string `json:"commit"  yaml:"commit"`
	Built   string `json:"built"   yaml:"built"`
}

// NewVersionCommand creates the version command.
func NewVersionCommand(version, commit, date string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Display version information",
		Long:  "Display detailed version information about the helix CLI",
		RunE: func(cmd *cobra.Command, args []string) error {
			info := VersionInfo{Version: version, Commit: commit, Built: date}

			return renderOutput(cmd.OutOrStdout(), outputFormat(), info, func(table *tablewriter.Table) error {
				table.Header("Property", "Value")

				for _, row := range [][]string{{"Version", version}, {"Commit", commit}, {"Built", date}} {
					err := table.Append(row[0], row[1])
					if err != nil {
						return fmt.Errorf("failed to append table row: %w", err)
					}
				}

				return nil
			})
		},
	}
}
