package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/castortech/gopwsh"
)

var runCmd = &cobra.Command{
	Use:   "run <command>",
	Short: "Execute one PowerShell command in a fresh session",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := sessionConfig()
	if err != nil {
		return err
	}

	session, err := gopwsh.OpenSessionWithConfig(cfg)
	if err != nil {
		return err
	}
	defer session.Close()

	resp, err := session.Execute(strings.Join(args, " "))
	if err != nil {
		var fault *gopwsh.ScriptFault
		if errors.As(err, &fault) {
			return fmt.Errorf("command raised %s: %s", fault.Category, fault.Message)
		}
		return err
	}
	return printResponse(resp)
}

func printResponse(resp *gopwsh.Response) error {
	if resp.Output != "" {
		fmt.Println(resp.Output)
	}
	if resp.ErrorOutput != "" {
		fmt.Fprintln(os.Stderr, resp.ErrorOutput)
	}
	if resp.IsTimeout {
		return errors.New("command timed out")
	}
	if resp.IsError {
		return errors.New("command failed")
	}
	return nil
}
