// Command vela is the CLI front end for the interpreter: run a script,
// drop into a REPL, or disassemble/trace a chunk's compiled bytecode.
//
// Built as a cobra-based subcommand tree (run/repl/version) with
// distinct exit codes (0 success, 64 usage, 65 compile error, 70
// runtime error, 74 I/O error).
package main

import (
	"fmt"
	"os"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kristofer/vela/internal/config"
	"github.com/kristofer/vela/pkg/archive"
	"github.com/kristofer/vela/pkg/compiler"
	"github.com/kristofer/vela/pkg/disasm"
	"github.com/kristofer/vela/pkg/value"
	"github.com/kristofer/vela/pkg/vm"
)

const version = "0.1.0"

const (
	exitOK        = 0
	exitUsage     = 64
	exitCompile   = 65
	exitRuntime   = 70
	exitIOError   = 74
)

var (
	configPath string
	verbose    bool

	disasmFlag   bool
	traceFlag    bool
	emitVLCPath  string
	disasmFormat string
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	root := newRootCmd()
	root.SetArgs(args)
	if err := root.Execute(); err != nil {
		if code, ok := err.(exitError); ok {
			return int(code)
		}
		return exitUsage
	}
	return exitOK
}

// exitError lets a subcommand's RunE carry a specific process exit code
// back through cobra's plain error return.
type exitError int

func (e exitError) Error() string { return fmt.Sprintf("exit %d", int(e)) }

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "vela",
		Short:         "vela is a bytecode interpreter for a small dynamic, class-based scripting language",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRepl()
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", ".vela.yaml", "path to a .vela.yaml config file")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable structured diagnostic logging")

	runCmd := &cobra.Command{
		Use:   "run <file>",
		Short: "compile and run a source file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFile(args[0])
		},
	}
	runCmd.Flags().BoolVar(&disasmFlag, "disasm", false, "print the compiled chunk's disassembly before running")
	runCmd.Flags().BoolVar(&traceFlag, "trace", false, "print each instruction as it executes")
	runCmd.Flags().StringVar(&emitVLCPath, "emit-vlc", "", "write the compiled chunk to a .vlc archive and exit")
	runCmd.Flags().StringVar(&disasmFormat, "format", "text", "disassembly output format: text or yaml")

	replCmd := &cobra.Command{
		Use:   "repl",
		Short: "start an interactive read-eval-print loop",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRepl()
		},
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "print the vela version",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Printf("vela version %s\n", version)
			return nil
		},
	}

	root.AddCommand(runCmd, replCmd, versionCmd)
	return root
}

// newLogger builds the VM's diagnostic logger, used for GC cycles and
// per-instruction dispatch lines. --trace forces debug level regardless
// of --verbose, since tracing is meaningless above that level; zap's
// development config already logs at debug level, so --verbose alone
// shows the dispatch lines too.
func newLogger() *zap.Logger {
	if !verbose && !traceFlag {
		return zap.NewNop()
	}
	cfg := zap.NewDevelopmentConfig()
	if traceFlag {
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	logger, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

func loadConfig() config.Config {
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: %v\n", err)
		return config.Default()
	}
	return cfg
}

func runFile(filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading file: %v\n", err)
		return exitError(exitIOError)
	}

	logger := newLogger()
	defer logger.Sync()

	machine := vm.New(os.Stdout, logger, loadConfig())
	c := compiler.New(machine.Strings())
	fn, err := c.Compile(string(data))
	if err != nil {
		return exitError(exitCompile)
	}

	if disasmFlag {
		if err := printDisasm(filename, fn); err != nil {
			fmt.Fprintf(os.Stderr, "Error rendering disassembly: %v\n", err)
			return exitError(exitIOError)
		}
	}

	if emitVLCPath != "" {
		out, err := os.Create(emitVLCPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error creating archive: %v\n", err)
			return exitError(exitIOError)
		}
		defer out.Close()
		if err := archive.Encode(fn, out); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing archive: %v\n", err)
			return exitError(exitIOError)
		}
		fmt.Printf("Wrote %s\n", emitVLCPath)
		return nil
	}

	if err := machine.Interpret(fn); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return exitError(exitRuntime)
	}
	return nil
}

func printDisasm(name string, fn *value.ObjFunction) error {
	if disasmFormat == "yaml" {
		out, err := disasm.ToYAML(name, fn.Chunk)
		if err != nil {
			return err
		}
		fmt.Print(out)
		return nil
	}
	fmt.Print(disasm.Chunk(name, fn.Chunk))
	return nil
}

func runRepl() error {
	logger := newLogger()
	defer logger.Sync()

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "vela> ",
		HistoryFile:     historyFilePath(),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error starting REPL: %v\n", err)
		return exitError(exitIOError)
	}
	defer rl.Close()

	machine := vm.New(os.Stdout, logger, loadConfig())
	c := compiler.New(machine.Strings())

	fmt.Printf("vela %s -- Ctrl-D to exit\n", version)
	for {
		line, err := rl.Readline()
		if err != nil {
			break
		}
		if line == "" {
			continue
		}
		fn, err := c.Compile(line)
		if err != nil {
			continue
		}
		if err := machine.Interpret(fn); err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
		}
	}
	return nil
}

func historyFilePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".vela_history"
	}
	return home + "/.vela_history"
}
