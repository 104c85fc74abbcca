package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var scriptCmd = &cobra.Command{
	Use:   "script <name> [args...]",
	Short: "Run a Risor script against the database",
	Long:  "Runs an embedded script (or one from --scripts-dir) with the query functions as globals. Remaining arguments are visible to the script as args.",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runScript,
}

func runScript(cmd *cobra.Command, args []string) error {
	name := args[0]
	command := "script " + name

	engine, err := openEngine()
	if err != nil {
		return outputError(command, err)
	}
	defer engine.Close()

	res, err := engine.RunScript(context.Background(), name, args[1:])
	if err != nil {
		return outputError(command, err)
	}
	return outputResult(CLIResult{Command: command, Results: res})
}

var scriptsCmd = &cobra.Command{
	Use:   "scripts",
	Short: "List the available scripts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, err := openEngine()
		if err != nil {
			return outputError("scripts", err)
		}
		defer engine.Close()

		names, err := engine.Scripts()
		if err != nil {
			return outputError("scripts", fmt.Errorf("listing scripts: %w", err))
		}
		return outputResult(CLIResult{Command: "scripts", Results: names})
	},
}
