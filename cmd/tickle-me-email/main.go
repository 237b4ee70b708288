package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/lamby/tickle-me-email/internal/app/config"
	"github.com/lamby/tickle-me-email/internal/app/tickler"
)

func main() {
	// An external interrupt terminates immediately, without attempting
	// connection teardown.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		os.Exit(2)
	}()

	app := &cli.App{
		Name:  "tickle-me-email",
		Usage: "GTD-style tickler-file automation for IMAP mailboxes",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config",
				Value: config.DefaultFilepath(),
				Usage: "filepath to configuration file",
			},
			&cli.StringFlag{
				Name:  "env-file",
				Value: "./.env",
				Usage: "filepath to environment variables file",
			},
		},
		Commands: commands(),
	}

	// ExitCoder errors are printed and exited on by the framework
	// itself; anything else is a handled failure too.
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// withApp loads configuration, builds the execution context and
// guarantees its teardown on every exit path of the action.
func withApp(fn func(*tickler.App, *cli.Context) error) cli.ActionFunc {
	return func(cCtx *cli.Context) error {
		cfg, err := config.Load(cCtx.String("config"), cCtx.String("env-file"))
		if err != nil {
			return cli.Exit(fmt.Sprintf("failed to load configuration: %s", err), 1)
		}

		logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: logLevel(cfg.LogLevel),
		}))

		app := tickler.New(cfg, logger)
		defer app.Close()

		if err := fn(app, cCtx); err != nil {
			// Usage errors are already exit-coded; don't re-wrap them.
			if _, ok := err.(cli.ExitCoder); ok {
				return err
			}
			logger.Error(fmt.Sprintf("command failed: %s", err), slog.String("module", "main"))
			return cli.Exit(err.Error(), 1)
		}
		return nil
	}
}

func logLevel(name string) slog.Level {
	switch strings.ToLower(name) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func commands() []*cli.Command {
	return []*cli.Command{
		{
			Name:  "list",
			Usage: "print all mailbox names",
			Action: withApp(func(app *tickler.App, cCtx *cli.Context) error {
				if cCtx.NArg() != 0 {
					return usageError("list")
				}
				return app.List()
			}),
		},
		{
			Name:      "move",
			Usage:     "move every message from one mailbox to another",
			ArgsUsage: "<source> <target>",
			Action: withApp(func(app *tickler.App, cCtx *cli.Context) error {
				args, err := parseMoveArgs(cCtx)
				if err != nil {
					return err
				}
				return app.Move(args.Source, args.Target)
			}),
		},
		{
			Name:      "rotate",
			Usage:     "shift messages through numbered tickler folders",
			ArgsUsage: "<template> <start> <stop> <target>",
			Action: withApp(func(app *tickler.App, cCtx *cli.Context) error {
				args, err := parseRotateArgs(cCtx)
				if err != nil {
					return err
				}
				return app.Rotate(args.Template, args.Start, args.Stop, args.Target)
			}),
		},
		{
			Name:      "create-folders",
			Usage:     "create sequentially numbered mailboxes",
			ArgsUsage: "<template> <start> <count>",
			Action: withApp(func(app *tickler.App, cCtx *cli.Context) error {
				args, err := parseCreateFoldersArgs(cCtx)
				if err != nil {
					return err
				}
				return app.CreateFolders(args.Template, args.Start, args.Count)
			}),
		},
		{
			Name:      "sendmail",
			Usage:     "queue a complete message for the next send-later run",
			ArgsUsage: "[<file>]",
			Action: withApp(func(app *tickler.App, cCtx *cli.Context) error {
				if cCtx.NArg() > 1 {
					return usageError("sendmail [<file>]")
				}
				return app.SendMail(cCtx.Args().Get(0), os.Stdin)
			}),
		},
		{
			Name:      "send-later",
			Usage:     "relay queued messages via SMTP and delete the relayed ones",
			ArgsUsage: "<source> [<max-count>]",
			Action: withApp(func(app *tickler.App, cCtx *cli.Context) error {
				args, err := parseSendLaterArgs(cCtx)
				if err != nil {
					return err
				}
				return app.SendLater(args.Source, args.MaxCount)
			}),
		},
		{
			Name:      "todo",
			Usage:     "append a TODO entry, or print existing ones when called bare",
			ArgsUsage: "[<words>...]",
			Action: withApp(func(app *tickler.App, cCtx *cli.Context) error {
				return app.Todo(cCtx.Args().Slice(), os.Stdin)
			}),
		},
		{
			Name:      "draft",
			Usage:     "append a draft message",
			ArgsUsage: "<words>...",
			Action: withApp(func(app *tickler.App, cCtx *cli.Context) error {
				if cCtx.NArg() == 0 {
					return usageError("draft <words>...")
				}
				return app.Draft(cCtx.Args().Slice(), os.Stdin)
			}),
		},
		{
			Name:      "mbox",
			Usage:     "import a raw message into the TODO mailbox",
			ArgsUsage: "<raw-message-text>",
			Action: withApp(func(app *tickler.App, cCtx *cli.Context) error {
				if cCtx.NArg() != 1 {
					return usageError("mbox <raw-message-text>")
				}
				return app.Mbox(cCtx.Args().Get(0))
			}),
		},
		{
			Name:      "subjects",
			Usage:     "print decoded subjects per mailbox ('-' reads names from stdin)",
			ArgsUsage: "[<mailbox>...]",
			Action: withApp(func(app *tickler.App, cCtx *cli.Context) error {
				if cCtx.NArg() == 0 {
					return usageError("subjects <mailbox>...")
				}
				return app.Subjects(cCtx.Args().Slice(), os.Stdin)
			}),
		},
		{
			Name:  "sent",
			Usage: "print recipient and subject of messages sent today",
			Action: withApp(func(app *tickler.App, cCtx *cli.Context) error {
				if cCtx.NArg() != 0 {
					return usageError("sent")
				}
				return app.Sent()
			}),
		},
		{
			Name:      "sent-history",
			Usage:     "print per-day sent-message counts",
			ArgsUsage: "[<days>]",
			Action: withApp(func(app *tickler.App, cCtx *cli.Context) error {
				args, err := parseSentHistoryArgs(cCtx)
				if err != nil {
					return err
				}
				return app.SentHistory(args.Days)
			}),
		},
		{
			Name:  "config",
			Usage: "print the resolved configuration with secrets redacted",
			Action: withApp(func(app *tickler.App, cCtx *cli.Context) error {
				if cCtx.NArg() != 0 {
					return usageError("config")
				}
				return app.PrintConfig()
			}),
		},
	}
}

// Per-command argument records, validated before any network activity.

type moveArgs struct {
	Source string
	Target string
}

func parseMoveArgs(cCtx *cli.Context) (moveArgs, error) {
	if cCtx.NArg() != 2 {
		return moveArgs{}, usageError("move <source> <target>")
	}
	return moveArgs{
		Source: cCtx.Args().Get(0),
		Target: cCtx.Args().Get(1),
	}, nil
}

type rotateArgs struct {
	Template string
	Start    int
	Stop     int
	Target   string
}

func parseRotateArgs(cCtx *cli.Context) (rotateArgs, error) {
	if cCtx.NArg() != 4 {
		return rotateArgs{}, usageError("rotate <template> <start> <stop> <target>")
	}
	start, err := parsePositiveInt(cCtx.Args().Get(1), "start")
	if err != nil {
		return rotateArgs{}, err
	}
	stop, err := parsePositiveInt(cCtx.Args().Get(2), "stop")
	if err != nil {
		return rotateArgs{}, err
	}
	if start > stop {
		return rotateArgs{}, usageError("rotate: start must not exceed stop")
	}
	return rotateArgs{
		Template: cCtx.Args().Get(0),
		Start:    start,
		Stop:     stop,
		Target:   cCtx.Args().Get(3),
	}, nil
}

type createFoldersArgs struct {
	Template string
	Start    int
	Count    int
}

func parseCreateFoldersArgs(cCtx *cli.Context) (createFoldersArgs, error) {
	if cCtx.NArg() != 3 {
		return createFoldersArgs{}, usageError("create-folders <template> <start> <count>")
	}
	start, err := parsePositiveInt(cCtx.Args().Get(1), "start")
	if err != nil {
		return createFoldersArgs{}, err
	}
	count, err := parsePositiveInt(cCtx.Args().Get(2), "count")
	if err != nil {
		return createFoldersArgs{}, err
	}
	return createFoldersArgs{
		Template: cCtx.Args().Get(0),
		Start:    start,
		Count:    count,
	}, nil
}

type sendLaterArgs struct {
	Source   string
	MaxCount int
}

func parseSendLaterArgs(cCtx *cli.Context) (sendLaterArgs, error) {
	if cCtx.NArg() < 1 || cCtx.NArg() > 2 {
		return sendLaterArgs{}, usageError("send-later <source> [<max-count>]")
	}
	args := sendLaterArgs{Source: cCtx.Args().Get(0)}
	if cCtx.NArg() == 2 {
		maxCount, err := parsePositiveInt(cCtx.Args().Get(1), "max-count")
		if err != nil {
			return sendLaterArgs{}, err
		}
		args.MaxCount = maxCount
	}
	return args, nil
}

type sentHistoryArgs struct {
	Days int
}

func parseSentHistoryArgs(cCtx *cli.Context) (sentHistoryArgs, error) {
	if cCtx.NArg() > 1 {
		return sentHistoryArgs{}, usageError("sent-history [<days>]")
	}
	args := sentHistoryArgs{Days: 7}
	if cCtx.NArg() == 1 {
		days, err := parsePositiveInt(cCtx.Args().Get(0), "days")
		if err != nil {
			return sentHistoryArgs{}, err
		}
		args.Days = days
	}
	return args, nil
}

func parsePositiveInt(s, name string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, usageError(fmt.Sprintf("%s must be a non-negative integer, got %q", name, s))
	}
	return n, nil
}

func usageError(usage string) error {
	return cli.Exit(fmt.Sprintf("usage: tickle-me-email %s", usage), 1)
}
