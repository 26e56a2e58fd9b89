package commands_test

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// findSubcommand finds a subcommand by name within a cobra command.
func findSubcommand(cmd *cobra.Command, name string) *cobra.Command {
	for _, c := range cmd.Commands() {
		if c.Name() == name {
			return c
		}
	}

	return nil
}

// useTempConfig points viper at a config file in a fresh directory and
// resets viper when the test ends. Tests using it must not run in parallel.
func useTempConfig(t *testing.T, settings map[string]interface{}) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yml")

	viper.Reset()
	viper.SetConfigFile(path)
	viper.Set("output", "json")

	for key, value := range settings {
		viper.Set(key, value)
	}

	t.Cleanup(viper.Reset)

	return path
}

// execute runs cmd with args and returns what it printed.
func execute(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer

	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)

	err := cmd.Execute()

	return out.String(), err
}
