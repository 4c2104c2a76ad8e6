package main

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/golang/glog"
	"github.com/urfave/cli/v2"

	"github.com/hpungsan/pied/internal/box"
	"github.com/hpungsan/pied/internal/config"
	"github.com/hpungsan/pied/internal/errors"
	"github.com/hpungsan/pied/internal/field"
	"github.com/hpungsan/pied/internal/ops"
	"github.com/hpungsan/pied/internal/profile"
	"github.com/hpungsan/pied/internal/remote"
	"github.com/hpungsan/pied/internal/web"
)

// connector opens the remote store box commands sync through.
// The returned func releases it.
type connector func(ctx context.Context, cfg *config.Config) (field.Store, func(), error)

// dialRelay connects to the relay at cfg.ServerURL.
func dialRelay(ctx context.Context, cfg *config.Config) (field.Store, func(), error) {
	client, err := remote.Dial(ctx, cfg.ServerURL)
	if err != nil {
		return nil, nil, fmt.Errorf("cannot reach relay at %s: %w", cfg.ServerURL, err)
	}
	return client, func() { _ = client.Close() }, nil
}

// newCLIApp creates the CLI application with all commands.
func newCLIApp(db *sql.DB, cfg *config.Config, connect connector) *cli.App {
	app := &cli.App{
		Name:    "pied",
		Usage:   "Shared rich-text boxes synced through a relay",
		Version: Version,
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "verbosity", Usage: "Log verbosity (glog -v level)"},
		},
		Before: func(c *cli.Context) error {
			if c.IsSet("verbosity") {
				return flag.Set("v", strconv.Itoa(c.Int("verbosity")))
			}
			return nil
		},
		Commands: []*cli.Command{
			serveCmd(db, cfg),
			fetchCmd(db, cfg, connect),
			saveCmd(db, cfg, connect),
			watchCmd(db, cfg, connect),
			profileCmd(db),
			cacheCmd(db, cfg),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

// serveCmd creates the serve command.
func serveCmd(db *sql.DB, cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the relay (websocket store plus HTTP box API)",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "bind", Usage: "Interface to listen on (default from config)"},
			&cli.IntFlag{Name: "port", Aliases: []string{"p"}, Usage: "Port to listen on (default from config)"},
		},
		Action: func(c *cli.Context) error {
			bind := cfg.Bind
			if c.IsSet("bind") {
				bind = c.String("bind")
			}
			port := cfg.Port
			if c.IsSet("port") {
				port = c.Int("port")
			}
			if port <= 0 || port > 65535 {
				return outputError(errors.NewInvalidRequest("port must be between 1 and 65535"))
			}

			tree, err := remote.NewTree(c.Context, db)
			if err != nil {
				return outputError(errors.NewInternal(err))
			}

			srv := web.NewServer(db, cfg, tree, Version, bind, port)
			if err := web.Run(srv); err != nil {
				return outputError(err)
			}
			return nil
		},
	}
}

// fetchCmd creates the fetch command.
func fetchCmd(db *sql.DB, cfg *config.Config, connect connector) *cli.Command {
	return &cli.Command{
		Name:      "fetch",
		Usage:     "Fetch a box's content and last editor",
		ArgsUsage: "<box>",
		Action: func(c *cli.Context) error {
			id, err := boxArg(c, cfg)
			if err != nil {
				return outputError(err)
			}

			store, release, err := connect(c.Context, cfg)
			if err != nil {
				glog.Warningf("fetch: %v; reading local cache", err)
				output, cacheErr := ops.FetchCached(c.Context, db, cfg, ops.FetchInput{Box: id})
				if cacheErr != nil {
					if errors.Is(cacheErr, errors.ErrNotFound) {
						return outputError(err)
					}
					return outputError(cacheErr)
				}
				return outputJSON(output)
			}
			defer release()

			output, err := ops.Fetch(c.Context, store, db, cfg, ops.FetchInput{Box: id})
			if err != nil {
				return outputError(err)
			}

			return outputJSON(output)
		},
	}
}

// saveCmd creates the save command.
func saveCmd(db *sql.DB, cfg *config.Config, connect connector) *cli.Command {
	return &cli.Command{
		Name:      "save",
		Usage:     "Save a box (reads content from stdin)",
		ArgsUsage: "<box>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "format", Aliases: []string{"f"}, Value: ops.FormatHTML, Usage: "Content format: html|markdown"},
			&cli.StringFlag{Name: "editor", Aliases: []string{"e"}, Usage: "Editor name (defaults to the profile name)"},
		},
		Action: func(c *cli.Context) error {
			id, err := boxArg(c, cfg)
			if err != nil {
				return outputError(err)
			}

			// Require stdin input
			if !stdinHasData() {
				return outputError(errors.NewInvalidRequest("content must be piped via stdin"))
			}
			content, err := readStdin()
			if err != nil {
				return outputError(errors.NewInternal(err))
			}

			input := ops.SaveInput{
				Box:     id,
				Content: content,
				Format:  c.String("format"),
			}
			if c.IsSet("editor") {
				editor := c.String("editor")
				input.Editor = &editor
			}

			store, release, err := connect(c.Context, cfg)
			if err != nil {
				return outputError(err)
			}
			defer release()

			output, err := ops.Save(c.Context, store, db, cfg, input)
			if output != nil {
				if jsonErr := outputJSON(output); jsonErr != nil {
					return jsonErr
				}
			}
			if err != nil {
				return outputError(err)
			}
			return nil
		},
	}
}

// watchCmd creates the watch command.
func watchCmd(db *sql.DB, cfg *config.Config, connect connector) *cli.Command {
	return &cli.Command{
		Name:      "watch",
		Usage:     "Print a box's view as JSON lines whenever it changes (Ctrl-C to stop)",
		ArgsUsage: "<box>",
		Action: func(c *cli.Context) error {
			id, err := boxArg(c, cfg)
			if err != nil {
				return outputError(err)
			}

			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()

			store, release, err := connect(ctx, cfg)
			if err != nil {
				return outputError(err)
			}
			defer release()

			enc := json.NewEncoder(os.Stdout)
			err = ops.Watch(ctx, store, db, cfg, ops.WatchInput{Box: id}, func(v ops.BoxView) {
				if err := enc.Encode(v); err != nil {
					glog.Warningf("watch: write view: %v", err)
				}
			})
			if err != nil {
				return outputError(err)
			}
			return nil
		},
	}
}

// profileCmd creates the profile command and its subcommands.
func profileCmd(db *sql.DB) *cli.Command {
	return &cli.Command{
		Name:  "profile",
		Usage: "Show or change the display name saved with your edits",
		Subcommands: []*cli.Command{
			{
				Name:  "get",
				Usage: "Show the display name",
				Action: func(c *cli.Context) error {
					name, err := profile.Get(c.Context, db)
					if err != nil {
						return outputError(err)
					}
					return outputJSON(map[string]string{"name": name})
				},
			},
			{
				Name:      "set",
				Usage:     "Set the display name (blank resets to Anonymous)",
				ArgsUsage: "<name>",
				Action: func(c *cli.Context) error {
					name, err := profile.Set(c.Context, db, strings.Join(c.Args().Slice(), " "))
					if err != nil {
						return outputError(err)
					}
					return outputJSON(map[string]string{"name": name})
				},
			},
		},
	}
}

// cacheCmd creates the cache command and its subcommands.
func cacheCmd(db *sql.DB, cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "cache",
		Usage: "Manage the local box cache",
		Subcommands: []*cli.Command{
			{
				Name:  "import",
				Usage: "Import a browser local storage dump (JSON object)",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "path", Aliases: []string{"p"}, Required: true, Usage: "Dump file path (.json)"},
					&cli.StringFlag{Name: "mode", Aliases: []string{"m"}, Value: string(ops.ImportModeReplace), Usage: "Existing entries: replace|skip"},
				},
				Action: func(c *cli.Context) error {
					input := ops.ImportInput{
						Path: c.String("path"),
						Mode: ops.ImportMode(c.String("mode")),
					}

					output, err := ops.ImportCache(c.Context, db, cfg, input)
					if err != nil {
						return outputError(err)
					}

					return outputJSON(output)
				},
			},
		},
	}
}

// Helper functions

// boxArg parses the first positional argument as a box id.
func boxArg(c *cli.Context, cfg *config.Config) (int, error) {
	if c.NArg() == 0 {
		return 0, errors.NewInvalidRequest("box is required")
	}
	return box.Parse(c.Args().First(), cfg.BoxCount)
}

// outputJSON marshals result to stdout as JSON.
func outputJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputError formats error for CLI.
func outputError(err error) error {
	var pErr *errors.PiedError
	if stderrors.As(err, &pErr) {
		return cli.Exit(fmt.Sprintf("[%s] %s", pErr.Code, pErr.Message), 1)
	}
	return cli.Exit(err.Error(), 1)
}

// stdinHasData returns true if stdin has piped data (not a terminal).
func stdinHasData() bool {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) == 0
}

// readStdin reads all content from stdin.
func readStdin() (string, error) {
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
