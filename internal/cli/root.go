package cli

import (
	"github.com/spf13/cobra"

	"github.com/lazypower/tiermem/internal/client"
	"github.com/lazypower/tiermem/internal/config"
)

var (
	configPath string
	serverURL  string
)

var rootCmd = &cobra.Command{
	Use:   "tiermem",
	Short: "Tiered associative memory store",
	Long: "tiermem keeps traces in working, short-term, long-term and permanent tiers. " +
		"Traces decay, consolidate upward when they earn it, and are evicted under capacity pressure.",
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default $TIERMEM_CONFIG or ~/.tiermem/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&serverURL, "url", "", "server URL for client commands (default $TIERMEM_URL or http://127.0.0.1:37778)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(storeCmd)
	rootCmd.AddCommand(retrieveCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(forgetCmd)
	rootCmd.AddCommand(tickCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(pathCmd)
	rootCmd.AddCommand(pressureCmd)
	rootCmd.AddCommand(evictionsCmd)
}

func loadConfig() (config.Config, error) {
	path := configPath
	if path == "" {
		path = config.DefaultPath()
	}
	return config.Load(path)
}

func newClient() *client.Client {
	return client.New(serverURL)
}
