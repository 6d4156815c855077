package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/gookit/color"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/geeth24/codeflow/sandbox"
)

var (
	inputFile    string
	configFile   string
	timeoutFlag  time.Duration
	maxStepsFlag int
	allowFlag    []string
	showOutput   bool
)

var runCmd = &cobra.Command{
	Use:   "run FILE",
	Short: "Trace one program and print its steps as JSON",
	Args:  cobra.ExactArgs(1),
	Run:   runCommand,
}

func init() {
	runCmd.Flags().StringVar(&inputFile, "input", "", "File with the program's standard input ('-' for stdin)")
	runCmd.Flags().StringVar(&configFile, "config", "", "TOML sandbox configuration file")
	runCmd.Flags().DurationVar(&timeoutFlag, "timeout", 0, "Wall-clock limit for the run (e.g. 1.5s)")
	runCmd.Flags().IntVar(&maxStepsFlag, "max-steps", 0, "Instruction budget for the run")
	runCmd.Flags().StringSliceVar(&allowFlag, "allow", nil, "Importable module names (replaces the default allow-list)")
	runCmd.Flags().BoolVar(&showOutput, "show-output", false, "Echo the traced program's print output to stderr")
}

func runCommand(cmd *cobra.Command, args []string) {
	code, err := os.ReadFile(args[0])
	if err != nil {
		log.Fatal().Err(err).Msg("Couldn't read program file")
	}

	var input []byte
	if inputFile == "-" {
		input, err = io.ReadAll(os.Stdin)
		if err != nil {
			log.Fatal().Err(err).Msg("Couldn't read stdin")
		}
	} else if inputFile != "" {
		input, err = os.ReadFile(inputFile)
		if err != nil {
			log.Fatal().Err(err).Msg("Couldn't read input file")
		}
	}

	var opts []sandbox.Option
	if configFile != "" {
		conf, err := sandbox.LoadConfigFromFile(configFile)
		if err != nil {
			log.Fatal().Err(err).Msg("Couldn't load config file")
		}
		opts = conf.Options()
	}
	// Flags win over config.
	if timeoutFlag > 0 {
		opts = append(opts, sandbox.WithTimeout(timeoutFlag))
	}
	if maxStepsFlag > 0 {
		opts = append(opts, sandbox.WithMaxSteps(maxStepsFlag))
	}
	if len(allowFlag) > 0 {
		opts = append(opts, sandbox.WithAllowedModules(allowFlag))
	}

	exec := sandbox.New(opts...)
	steps := exec.TraceExecution(context.Background(), string(code), string(input))

	b, err := json.MarshalIndent(steps, "", "  ")
	if err != nil {
		log.Fatal().Err(err).Msg("Couldn't serialize steps")
	}
	fmt.Println(string(b))

	if showOutput && exec.Output() != "" {
		fmt.Fprintln(os.Stderr, color.Cyan.Sprint("Program output:"))
		fmt.Fprint(os.Stderr, exec.Output())
	}

	last := steps[len(steps)-1]
	if last.Error != "" {
		fmt.Fprintln(os.Stderr, color.Red.Sprintf("✗ Run failed: %s", last.Error))
		os.Exit(1)
	}
	fmt.Fprintln(os.Stderr, color.Green.Sprintf("✓ Traced %d steps", len(steps)))
}
