package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/golang/glog"
	"golang.org/x/term"

	"github.com/hpungsan/pied/internal/config"
	"github.com/hpungsan/pied/internal/db"
	"github.com/hpungsan/pied/internal/mcp"
	"github.com/hpungsan/pied/internal/remote"
)

// Version is set via -ldflags at build time.
var Version = "dev"

// cliCommands contains known CLI subcommands.
var cliCommands = map[string]bool{
	"serve": true, "fetch": true, "save": true, "watch": true,
	"profile": true, "cache": true,
	"help": true,
}

// isCLIMode determines if we should run CLI vs MCP server.
func isCLIMode() bool {
	if len(os.Args) < 2 {
		return false // No args → MCP server
	}
	arg := os.Args[1]
	if cliCommands[arg] {
		return true
	}
	if isGlobalFlag(arg) {
		return true
	}
	return arg == "--help" || arg == "-h" || arg == "--version" || arg == "-v"
}

// isGlobalFlag reports whether arg is an app-level flag that precedes a subcommand.
func isGlobalFlag(arg string) bool {
	return arg == "--verbosity" || strings.HasPrefix(arg, "--verbosity=")
}

// isHelpOrVersion returns true if the user is requesting help or version info.
func isHelpOrVersion() bool {
	if len(os.Args) < 2 {
		return false
	}
	arg := os.Args[1]
	return arg == "--help" || arg == "-h" || arg == "--version" || arg == "-v" || arg == "help"
}

// isTerminal returns true if stdin is a terminal (not piped).
func isTerminal() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// printBanner displays a friendly banner when run interactively without args.
func printBanner() {
	fmt.Println(`
   ____  _          _
  |  _ \(_) ___  __| |
  | |_) | |/ _ \/ _' |
  |  __/| |  __/ (_| |
  |_|   |_|\___|\__,_|

  Shared rich-text boxes, last write wins

  Usage: pied <command> [options]
         pied --help

  MCP server mode requires piped input.`)
}

func main() {
	// glog defaults to files under /tmp; a CLI wants stderr.
	_ = flag.Set("logtostderr", "true")
	defer glog.Flush()

	// No args + interactive terminal → show banner and exit
	if len(os.Args) < 2 && isTerminal() {
		printBanner()
		return
	}

	// Handle --help/--version before DB init (no DB needed)
	if isHelpOrVersion() {
		app := newCLIApp(nil, nil, dialRelay)
		if err := app.Run(os.Args); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: could not determine home directory: %v\n", err)
		os.Exit(1)
	}

	baseDir := filepath.Join(homeDir, ".pied")

	cwd, err := os.Getwd()
	if err != nil {
		cwd = baseDir
	}
	cfg, err := config.LoadWithRepo(baseDir, cwd)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: failed to load config: %v\n", err)
		os.Exit(1)
	}

	database, err := db.Init(baseDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: failed to initialize database: %v\n", err)
		os.Exit(1)
	}
	defer database.Close()
	db.ConfigurePool(database, cfg)

	// CLI mode: known subcommand
	if isCLIMode() {
		app := newCLIApp(database, cfg, dialRelay)
		if err := app.Run(os.Args); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	// Unknown argument + terminal → show error (don't start MCP server)
	if len(os.Args) >= 2 && isTerminal() {
		fmt.Fprintf(os.Stderr, "error: unknown command %q\n", os.Args[1])
		fmt.Fprintf(os.Stderr, "Run 'pied --help' for usage.\n")
		os.Exit(1)
	}

	// MCP server mode (default)
	client, err := remote.Dial(context.Background(), cfg.ServerURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: cannot reach relay at %s: %v\n", cfg.ServerURL, err)
		os.Exit(1)
	}
	defer client.Close()

	if err := mcp.Run(client, database, cfg, Version); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
