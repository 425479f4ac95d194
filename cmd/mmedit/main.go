package main

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/youruser/mmedit/internal/config"
	"github.com/youruser/mmedit/internal/logging"
)

//go:embed version.txt
var version string

// buildCommit is set via -ldflags or falls back to VCS info from debug.ReadBuildInfo.
var buildCommit string

var (
	log = logging.Get()

	configPath string
	serverURL  string

	rootCmd = &cobra.Command{
		Use:   "mmedit",
		Short: "Mindmap documentation editor controller",
		Long: "mmedit drives a mindmap documentation editor. Without a subcommand it\n" +
			"serves the JSON-lines protocol on stdin/stdout.",
		SilenceUsage: true,
		RunE:         runServe,
	}
)

func main() {
	defer log.Close()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config.json (default ~/.config/mmedit/config.json)")
	rootCmd.PersistentFlags().StringVarP(&serverURL, "server", "s", "", "Editor server URL, overrides server_url")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(treeCmd)
	rootCmd.AddCommand(filesCmd)
	rootCmd.AddCommand(assistCmd)
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(versionCmd)
}

// getBuildCommit returns the short commit hash, resolving from VCS build info if needed.
func getBuildCommit() string {
	if buildCommit != "" {
		return buildCommit
	}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, setting := range info.Settings {
		if setting.Key == "vcs.revision" && len(setting.Value) >= 7 {
			return setting.Value[:7]
		}
	}
	return ""
}

func versionString() string {
	v := strings.TrimSpace(version)
	if commit := getBuildCommit(); commit != "" {
		return v + " (" + commit + ")"
	}
	return v
}

// loadConfig reads the config file and applies the --server flag.
func loadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if configPath != "" {
		cfg, err = config.LoadFrom(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}

	if serverURL != "" {
		cfg.ServerURL = strings.TrimSuffix(serverURL, "/")
		ws, err := config.DeriveWSURL(cfg.ServerURL)
		if err != nil {
			return nil, err
		}
		cfg.WSURL = ws
	}
	return cfg, nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the mmedit version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "mmedit %s\n", versionString())
	},
}
