package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/castortech/gopwsh"
	"github.com/castortech/gopwsh/internal/logger"
)

var (
	debugMode  bool
	configPath string
	executable string
	maxWait    time.Duration

	versionStr, commitStr, dateStr string
)

func setVersionInfo(v, c, d string) {
	versionStr, commitStr, dateStr = v, c, d
}

var rootCmd = &cobra.Command{
	Use:   "gopwsh",
	Short: "Run PowerShell commands and scripts through a persistent console session",
	Long: `gopwsh opens one long-lived PowerShell console, sends it commands over
stdin and captures each command's output without restarting the shell
between commands.

Session behavior (executable path, deadlines, preference variables) can
be configured with a YAML file passed via --config.`,
	Example: `  gopwsh run 'Get-Date'                  # One command in a fresh session
  gopwsh run --max-wait 30s 'Get-Process'
  gopwsh script ./deploy.ps1 -- -Env prod
  gopwsh --config gopwsh.yaml run '$PSVersionTable.PSVersion'`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	cobra.OnInitialize(initLogging)
	rootCmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a YAML session config")
	rootCmd.PersistentFlags().StringVar(&executable, "executable", "", "PowerShell executable to launch")
	rootCmd.PersistentFlags().DurationVar(&maxWait, "max-wait", 0, "Per-command deadline (e.g. 30s)")

	// Hide the auto-generated completion command
	rootCmd.CompletionOptions.HiddenDefaultCmd = true
}

func initLogging() {
	logger.SetDebug(debugMode)
}

// sessionConfig builds the session configuration from the config file
// and any flag overrides on top.
func sessionConfig() (*gopwsh.Config, error) {
	cfg := &gopwsh.Config{}
	if configPath != "" {
		loaded, err := gopwsh.LoadConfig(configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if executable != "" {
		cfg.Executable = executable
	}
	if maxWait > 0 {
		cfg.MaxWait = &gopwsh.Duration{Duration: maxWait}
	}
	return cfg, nil
}

// execute runs the root command
func execute() error {
	rootCmd.Version = versionStr
	rootCmd.SetVersionTemplate(versionTemplate())
	return rootCmd.Execute()
}

func versionTemplate() string {
	if commitStr != "none" && commitStr != "" {
		return fmt.Sprintf("gopwsh %s\n  commit: %s\n  built:  %s\n", versionStr, commitStr, dateStr)
	}
	return fmt.Sprintf("gopwsh %s\n", versionStr)
}
