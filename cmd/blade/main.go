// Command blade is the launcher for the Blade scripting language: it
// compiles and runs a script, disassembles or compile-checks one, or
// drops into an interactive REPL when given no script at all (spec §6).
package main

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"
	"github.com/urfave/cli/v2"

	"github.com/blade-lang/blade/pkg/bytecode"
	"github.com/blade-lang/blade/pkg/compiler"
	"github.com/blade-lang/blade/pkg/module"
	"github.com/blade-lang/blade/pkg/stdlib"
	"github.com/blade-lang/blade/pkg/value"
	"github.com/blade-lang/blade/pkg/vm"
)

const version = "0.1.0"

func main() {
	app := &cli.App{
		Name:                 "blade",
		Usage:                "the Blade scripting language",
		Version:              version,
		UsageText:            "blade [options] [script] [args...]",
		EnableBashCompletion: true,
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "debug", Aliases: []string{"d"}, Usage: "emit bytecode disassembly before executing, and attach the interactive debugger"},
			&cli.BoolFlag{Name: "just-compile", Aliases: []string{"j"}, Usage: "parse-check only; do not execute"},
			&cli.BoolFlag{Name: "buffer-output", Aliases: []string{"b"}, Usage: "buffer stdout and flush once at exit"},
			&cli.IntFlag{Name: "gc-threshold", Aliases: []string{"g"}, Usage: "initial GC object-count threshold override"},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	if c.NArg() == 0 {
		return runREPL(c)
	}
	return runScript(c, c.Args().Slice())
}

// newVM builds a VM per the CLI's flags. The returned flush func drains a
// buffered stdout (the `-b` flag); callers must defer it before any
// os.Exit so buffered output is not lost.
func newVM(c *cli.Context, scriptDir string, scriptArgs []string) (*vm.VM, func()) {
	flush := func() {}
	registry := module.NewRegistry()
	stdlib.RegisterAll(registry, scriptArgs)

	opts := vm.Options{
		ScriptDir: scriptDir,
		LibDir:    os.Getenv("BLADE_LIB"),
		Registry:  registry,
	}
	if c.Bool("buffer-output") {
		w := bufio.NewWriter(os.Stdout)
		opts.Stdout = w
		flush = func() { w.Flush() }
	}
	m := vm.New(opts)

	if threshold := c.Int("gc-threshold"); threshold > 0 {
		m.Collector().SetThreshold(threshold)
	}
	return m, flush
}

func runScript(c *cli.Context, args []string) error {
	path := args[0]
	src, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("cannot read %s: %w", path, err)
	}

	scriptDir, _ := filepath.Abs(filepath.Dir(path))
	m, flush := newVM(c, scriptDir, args[1:])

	comp := compiler.New(string(src), path, m)
	blob := comp.Compile()
	if comp.HadError() {
		for _, e := range comp.Errors() {
			fmt.Fprintln(os.Stderr, e)
		}
		flush()
		os.Exit(65)
	}

	if c.Bool("debug") {
		fmt.Fprintln(os.Stderr, bytecode.Disassemble(blob, path))
		vm.NewDebugger(m).Enable()
	}
	if c.Bool("just-compile") {
		flush()
		return nil
	}

	if err := m.Run(blob); err != nil {
		flush()
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCodeFor(err))
	}
	flush()
	return nil
}

// exitCodeFor maps a terminal runtime error to spec §7's exit-code table:
// StackOverflow is its own documented fatal exit code, every other
// uncaught exception exits 70.
func exitCodeFor(err error) int {
	if re, ok := err.(*vm.RuntimeError); ok && re.Kind == "StackOverflow" {
		return 71
	}
	return 70
}

// runREPL implements spec §6's "no script" mode: statements terminated by
// a blank line, evaluated in the top-level module, with the last
// expression's value printed.
func runREPL(c *cli.Context) error {
	fmt.Printf("blade %s\n", version)
	fmt.Println("blank line to evaluate; Ctrl-D to exit")

	wd, _ := os.Getwd()
	m, flush := newVM(c, wd, nil)
	defer flush()

	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	var buf strings.Builder
	for {
		prompt := "blade> "
		if buf.Len() > 0 {
			prompt = "   ... "
		}
		input, err := line.Prompt(prompt)
		if err != nil {
			fmt.Println()
			return nil
		}
		if strings.TrimSpace(input) == "" && buf.Len() > 0 {
			evalREPL(m, buf.String())
			buf.Reset()
			continue
		}
		if strings.TrimSpace(input) == "" {
			continue
		}
		line.AppendHistory(input)
		buf.WriteString(input)
		buf.WriteString("\n")
	}
}

func evalREPL(m *vm.VM, src string) {
	comp := compiler.New(src, "<repl>", m)
	blob := comp.Compile()
	if comp.HadError() {
		for _, e := range comp.Errors() {
			fmt.Fprintln(os.Stderr, e)
		}
		return
	}
	printsResult := exposeLastExpr(blob)
	if err := m.Run(blob); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return
	}
	if printsResult {
		fmt.Println(value.ToString(m.LastValue()))
	}
}

// exposeLastExpr rewrites a compiled top-level Blob's implicit trailing
// "discard the last expression statement's value, then return nil" tail
// (the statement's own OpPop, then the OpNil, OpReturn that compiler.endFunc
// appends) into "return the last
// expression statement's value directly", so a REPL session can print it.
// Reports whether the rewrite applied; a Blob whose last statement was not
// a bare expression (a declaration, loop, etc.) is left untouched.
func exposeLastExpr(blob *bytecode.Blob) bool {
	n := len(blob.Code)
	if n < 3 {
		return false
	}
	if blob.Code[n-1].Op != bytecode.OpReturn || blob.Code[n-2].Op != bytecode.OpNil || blob.Code[n-3].Op != bytecode.OpPop {
		return false
	}
	blob.Code = append(blob.Code[:n-3], blob.Code[n-1])
	return true
}
