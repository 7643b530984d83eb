package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/mymmrac/telego"
	"github.com/spf13/pflag"

	"git.skobk.in/skobkin/study-group-sync/cache"
	"git.skobk.in/skobkin/study-group-sync/chat"
	"git.skobk.in/skobkin/study-group-sync/config"
	"git.skobk.in/skobkin/study-group-sync/course"
	"git.skobk.in/skobkin/study-group-sync/events"
	"git.skobk.in/skobkin/study-group-sync/remote"
	"git.skobk.in/skobkin/study-group-sync/repository"
	"git.skobk.in/skobkin/study-group-sync/storage"
	"git.skobk.in/skobkin/study-group-sync/workflow"
)

const usage = `Usage: study-group-sync [-v|-vv] [--env FILE] <command> [flags] [args]

Commands:
  list                       show owned, joined, available and pending groups
  courses                    show the course catalog
  create                     create a group (--name, --course, --description, --private)
  join <group-id>            join a public group or request to join a private one
  leave <group-id>           leave a group
  delete <group-id>          delete a group you own (asks for confirmation unless --yes)
  requests <group-id>        list join requests of a group you own
  approve <group-id> <member-id>
  reject <group-id> <member-id>
  pending                    list join requests you sent from this device
  watch                      reload on a schedule and post new groups to Telegram
  cache [show|reset]         show or clear the groups saved on this device
`

func main() {
	flags := pflag.NewFlagSet("study-group-sync", pflag.ContinueOnError)
	flags.SetInterspersed(false)
	flags.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		flags.PrintDefaults()
	}
	verbosity := flags.CountP("verbose", "v", "Enable verbose logging (-v info, -vv debug)")
	envFile := flags.String("env", "", "Load environment from this file instead of .env")

	if err := flags.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		os.Exit(2)
	}

	// Set up logging
	setLogLevel(*verbosity >= 1, *verbosity >= 2)

	slog.Debug("main: Command-line flags parsed", "verbosity", *verbosity)

	args := flags.Args()
	if len(args) == 0 {
		flags.Usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var envFiles []string
	if *envFile != "" {
		envFiles = append(envFiles, *envFile)
	}

	cfg, err := config.Load(envFiles...)
	if err != nil {
		slog.Error("main: Failed to load configuration", "error", err)
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	a, err := newApp(cfg)
	if err != nil {
		slog.Error("main: Failed to initialize", "error", err)
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	defer a.close()

	if err := a.run(ctx, args[0], args[1:]); err != nil {
		if errors.Is(err, errUsage) {
			flags.Usage()
			os.Exit(2)
		}
		slog.Error("main: Command failed", "command", args[0], "error", err)
		fmt.Fprintf(os.Stderr, "%s: %v\n", args[0], err)
		os.Exit(1)
	}
}

func newApp(cfg config.Config) (*app, error) {
	// Initialize storage
	slog.Debug("main: Initializing storage", "db_path", cfg.DatabasePath)
	store, err := storage.New(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	client, err := remote.NewClient(remote.Config{
		BaseURL: cfg.APIBaseURL,
		Token:   cfg.APIToken,
		Timeout: cfg.APITimeout,
	})
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to initialize API client: %w", err)
	}

	catalog, err := course.Load(cfg.CourseCatalogPath)
	if err != nil {
		store.Close()
		return nil, err
	}

	repo := repository.New(client, cache.New(store), repository.DefaultPolicy())
	engine := workflow.NewEngine(repo, cfg.UserID)
	broadcaster := events.NewBroadcaster()

	a := &app{
		cfg:        cfg,
		store:      store,
		catalog:    catalog,
		engine:     engine,
		events:     broadcaster,
		membership: workflow.NewMembership(engine, broadcaster),
		requests:   workflow.NewJoinRequests(engine),
		out:        os.Stdout,
		in:         os.Stdin,
	}

	if cfg.TelegramEnabled() {
		slog.Debug("main: Initializing Telegram notifier", "chat_id", cfg.TelegramChatID)
		bot, err := telego.NewBot(cfg.TelegramToken)
		if err != nil {
			store.Close()
			return nil, fmt.Errorf("failed to initialize bot: %w", err)
		}
		a.notifier = chat.NewNotifier(bot, cfg.TelegramChatID, engine.Find)
		a.subscription = a.notifier.Attach(broadcaster)
	}

	return a, nil
}

// setLogLevel configures the logging level based on the provided flags
func setLogLevel(verbose, veryVerbose bool) {
	// Determine logging level based on flags
	logLevel := slog.LevelWarn // Default level
	if veryVerbose {
		logLevel = slog.LevelDebug
	} else if verbose {
		logLevel = slog.LevelInfo
	}

	// Command output goes to stdout, so logs use stderr
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	slog.Debug("main: Log level set to", "level", logLevel.String())
}
