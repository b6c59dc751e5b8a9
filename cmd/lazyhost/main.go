package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/term"

	"lazyhost/pkg/config"
	"lazyhost/pkg/driver"
	"lazyhost/pkg/errors"
	"lazyhost/pkg/lazy"
)

func main() {
	exprFlag := flag.String("e", "", "Run the given expression and exit")
	statsFlag := flag.Bool("stats", false, "Show module materialization statistics after execution")
	preloadFlag := flag.String("preload", "", "Comma-separated modules to build before running")
	flag.Parse()

	if flag.NArg() > 1 || (*exprFlag != "" && flag.NArg() > 0) {
		fmt.Fprintf(os.Stderr, "Usage: lazyhost [script] or lazyhost -e \"expression\"\n")
		os.Exit(64) // Exit code 64: command line usage error
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(64)
	}

	logger, err := newLogger(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(64)
	}
	defer logger.Sync()
	lazy.SetLogger(logger.Named("lazy"))
	driver.SetLogger(logger.Named("driver"))

	session, err := driver.NewSession(cfg, append([]string{"lazyhost"}, flag.Args()...))
	if err != nil {
		fmt.Fprintf(os.Stderr, "session: %v\n", err)
		os.Exit(70) // Exit code 70: internal software error
	}

	code := run(session, *exprFlag, *preloadFlag)
	if *statsFlag {
		printStats(os.Stderr, session.Registry().Stats())
	}
	if err := session.Close(); err != nil {
		logger.Warn("closing modules", zap.Error(err))
	}
	if code != 0 {
		os.Exit(code)
	}
}

func run(session *driver.Session, expr, preload string) int {
	if err := session.Preload(splitList(preload)...); err != nil {
		errors.DisplayErrors(os.Stderr, multierr.Errors(err))
		return 70
	}

	switch {
	case expr != "":
		value, err := session.RunString(expr)
		if !session.DisplayResult(os.Stdout, value, err) {
			return 70
		}
	case flag.NArg() == 1:
		value, err := session.RunFile(flag.Arg(0))
		if err != nil {
			session.DisplayResult(os.Stderr, value, err)
			return 70
		}
	default:
		runRepl(session)
	}
	return 0
}

// runRepl starts the Read-Eval-Print Loop.
func runRepl(session *driver.Session) {
	reader := bufio.NewReader(os.Stdin)
	interactive := term.IsTerminal(int(os.Stdin.Fd()))
	if interactive {
		fmt.Println("lazyhost (Ctrl+D to exit)")
	}

	for {
		if interactive {
			fmt.Print("> ")
		}
		line, err := reader.ReadString('\n')
		if strings.TrimSpace(line) != "" {
			value, runErr := session.RunString(line)
			_ = session.DisplayResult(os.Stdout, value, runErr) // Ignore the bool return in REPL
		}
		if err != nil {
			if err != io.EOF {
				fmt.Fprintf(os.Stderr, "Error reading input: %s\n", err)
			} else if interactive {
				fmt.Println()
			}
			return
		}
	}
}

// newLogger builds a console logger for terminals and development, JSON
// otherwise.
func newLogger(cfg config.LogConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	var zc zap.Config
	if cfg.Development || term.IsTerminal(int(os.Stderr.Fd())) {
		zc = zap.NewDevelopmentConfig()
	} else {
		zc = zap.NewProductionConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.Development = cfg.Development
	return zc.Build()
}

func printStats(w io.Writer, s driver.Stats) {
	fmt.Fprintf(w, "modules: %d declared, %d materialized, %d degenerate, %d pending\n",
		s.Declared, s.Materialized, s.Degenerate, s.Pending())
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
