package main

import (
	"github.com/spf13/cobra"

	"github.com/loykin/braindump/internal/config"
)

// GlobalFlags holds persistent flags shared by every command.
type GlobalFlags struct {
	ConfigPath string
	EnvFiles   []string
}

func buildRoot() *cobra.Command {
	global := &GlobalFlags{}
	root := &cobra.Command{
		Use:   "braindump",
		Short: "Blog backend with resilient storage access",
		Long: `braindump serves a small blog API backed by PostgreSQL, SQLite or a hosted
REST table, and keeps serving while the database comes and goes.

Examples:
  braindump serve --config braindump.yaml
  braindump keepalive --url http://localhost:8001/health
  braindump migrate
  braindump posts list --category idea
  braindump posts create --title "Hello" --content "First post"
  braindump watch`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return config.LoadEnvFiles(global.EnvFiles...)
		},
	}
	root.PersistentFlags().StringVar(&global.ConfigPath, "config", "", "path to a YAML/TOML/JSON config file (optional)")
	root.PersistentFlags().StringSliceVar(&global.EnvFiles, "env-file", []string{".env"}, "dotenv files loaded before reading config")

	root.AddCommand(
		createServeCommand(global),
		createKeepAliveCommand(global),
		createMigrateCommand(global),
		createPostsCommand(),
		createWatchCommand(),
	)
	return root
}
