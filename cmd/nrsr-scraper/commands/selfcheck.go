package commands

import (
	"log/slog"

	"github.com/spf13/cobra"

	"nrsr-backend/internal/nrsr"
	"nrsr-backend/lib/webcache"
)

func init() {
	rootCmd.AddCommand(selfCheckCmd)
	rootCmd.AddCommand(clearCacheCmd)
}

var selfCheckCmd = &cobra.Command{
	Use:   "selfcheck",
	Short: "Verifies the parsers still match the live website.",
	Run: func(cmd *cobra.Command, args []string) {
		config, err := readConfig()
		if err != nil {
			fatal("failed to read config", err)
		}
		cache, err := webcache.OpenFile(config.Cache)
		if err != nil {
			fatal("failed to open page cache", err)
		}

		source := nrsr.NewClient(cache)
		err = source.SelfCheck(cmd.Context())
		if err != nil {
			fatal("self-check failed", err)
		}
		slog.Info("all parsers check out")
	},
}

var clearCacheCmd = &cobra.Command{
	Use:   "clear-cache",
	Short: "Drops all cached source pages.",
	Run: func(cmd *cobra.Command, args []string) {
		config, err := readConfig()
		if err != nil {
			fatal("failed to read config", err)
		}
		cache, err := webcache.OpenFile(config.Cache)
		if err != nil {
			fatal("failed to open page cache", err)
		}
		err = cache.Clear(cmd.Context())
		if err != nil {
			fatal("failed to clear page cache", err)
		}
		slog.Info("page cache cleared")
	},
}
