package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/castortech/gopwsh"
)

var scriptCmd = &cobra.Command{
	Use:   "script <path> [-- args...]",
	Short: "Execute a PowerShell script file in a fresh session",
	Long: `Stages the script into a temp file with an end-of-script marker and
runs it through a session, so completion is detected reliably even for
scripts with long quiet stretches.

Positional arguments after -- are appended to the script invocation.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runScript,
}

func init() {
	rootCmd.AddCommand(scriptCmd)
}

func runScript(cmd *cobra.Command, args []string) error {
	cfg, err := sessionConfig()
	if err != nil {
		return err
	}

	session, err := gopwsh.OpenSessionWithConfig(cfg)
	if err != nil {
		return err
	}
	defer session.Close()

	resp, err := session.ExecuteScript(args[0], args[1:]...)
	if err != nil {
		var fault *gopwsh.ScriptFault
		if errors.As(err, &fault) {
			return fmt.Errorf("script raised %s: %s", fault.Category, fault.Message)
		}
		return err
	}
	return printResponse(resp)
}
