package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/gookit/color"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/geeth24/codeflow/vm"
)

var compileOut string

var compileCmd = &cobra.Command{
	Use:   "compile FILE",
	Short: "Compile a program to bytecode without running it",
	Args:  cobra.ExactArgs(1),
	Run:   compileCommand,
}

func init() {
	compileCmd.Flags().StringVarP(&compileOut, "out", "o", "", "Write serialized bytecode to this file")
}

func compileCommand(cmd *cobra.Command, args []string) {
	prog, err := vm.CompilePath(args[0])
	if err != nil {
		log.Fatal().Err(err).Msg("Compilation failed")
	}

	if compileOut != "" {
		f, err := os.Create(compileOut)
		if err != nil {
			log.Fatal().Err(err).Msg("Couldn't create output file")
		}
		defer f.Close()
		if err := prog.Serialize(f); err != nil {
			log.Fatal().Err(err).Msg("Couldn't serialize program")
		}
		fmt.Fprintln(os.Stderr, color.Green.Sprintf("✓ Wrote %s", compileOut))
		return
	}

	// No output file: print a disassembly listing.
	printFunction(prog, "<module>", prog.Main)
	for _, fn := range prog.Code {
		fmt.Println()
		printFunction(prog, fn.Name, fn)
	}
}

func printFunction(prog *vm.Program, name string, fn *vm.Function) {
	params := make([]string, len(fn.Params))
	for i, p := range fn.Params {
		params[i] = p.Name
	}
	fmt.Printf("%s(%s):\n", name, strings.Join(params, ", "))
	for i, op := range fn.Bytecode {
		fmt.Printf("  %4d  %s\n", i, op.String())
	}
}
