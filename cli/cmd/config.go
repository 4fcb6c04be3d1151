package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var configCmd = &cobra.Command{
	Use:   "config [key] [value]",
	Short: "Shows or sets configuration values.",
	Long: `Without arguments, prints the effective configuration. With a key, prints
that value. With a key and a value, stores the value in the config file.`,
	Args: cobra.MaximumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		switch len(args) {
		case 0:
			keys := viper.AllKeys()
			sort.Strings(keys)
			for _, k := range keys {
				fmt.Fprintf(out, "%s: %v\n", k, viper.Get(k))
			}
		case 1:
			fmt.Fprintln(out, viper.Get(args[0]))
		default:
			viper.Set(args[0], args[1])
			path := viper.ConfigFileUsed()
			if path == "" {
				home, err := os.UserHomeDir()
				if err != nil {
					return err
				}
				path = filepath.Join(home, ".livebid.yaml")
			}
			if err := viper.WriteConfigAs(path); err != nil {
				return fmt.Errorf("write config: %w", err)
			}
			fmt.Fprintf(out, "%s set to %s in %s\n", args[0], args[1], path)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
}
