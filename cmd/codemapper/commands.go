package main

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/VAC4EU/Codemapper-sub000/internal/gateway/config"
	"github.com/VAC4EU/Codemapper-sub000/internal/logging"
)

var (
	cfg    *config.Config
	logger *logrus.Logger

	portFlag       string
	logLevelFlag   string
	cacheFlag      string
	descendersFlag string
	codingSystem   string

	rootCmd = &cobra.Command{
		Use:           "codemapper",
		Short:         "Resolve descendant codes in clinical coding systems",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			applyFlags(cmd, loaded)
			if err := loaded.Validate(); err != nil {
				return err
			}
			l, err := logging.New(loaded.LogLevel, loaded.LogFormat)
			if err != nil {
				return err
			}
			cfg, logger = loaded, l
			return nil
		},
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE:  runServe, // cmd_serve.go
	}

	descendantsCmd = &cobra.Command{
		Use:   "descendants --coding-system SYSTEM CODE...",
		Short: "Print the descendants of codes as JSON",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runDescendants, // cmd_descendants.go
	}

	cacheCmd = &cobra.Command{
		Use:   "cache",
		Short: "Manage the descendants cache",
	}
	cacheEvictCmd = &cobra.Command{
		Use:   "evict N",
		Short: "Remove the N oldest cache entries",
		Args:  cobra.ExactArgs(1),
		RunE:  runCacheEvict, // cmd_cache.go
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "override LOG_LEVEL")
	rootCmd.PersistentFlags().StringVar(&cacheFlag, "cache", "", "cache backend: postgres, badger, memory or none")
	rootCmd.PersistentFlags().StringVar(&descendersFlag, "descenders", "", "YAML strategy table")
	serveCmd.Flags().StringVar(&portFlag, "port", "", "listen port")
	descendantsCmd.Flags().StringVar(&codingSystem, "coding-system", "", "coding system abbreviation")
	_ = descendantsCmd.MarkFlagRequired("coding-system")

	cacheCmd.AddCommand(cacheEvictCmd)
	rootCmd.AddCommand(serveCmd, descendantsCmd, cacheCmd)
}

// applyFlags lets explicitly set flags win over the environment.
func applyFlags(cmd *cobra.Command, c *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("port") {
		c.Port = config.NormalizePort(portFlag)
	}
	if flags.Changed("log-level") {
		c.LogLevel = logLevelFlag
	}
	if flags.Changed("cache") {
		c.Cache.Backend = cacheFlag
	}
	if flags.Changed("descenders") {
		c.DescendersFile = descendersFlag
	}
}
