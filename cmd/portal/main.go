// Package main - точка входа школьного портала.
//
// Один бинарник обслуживает две оболочки: команды терминала
// (portal signin, portal dashboard, ...) и локальный HTTP API
// (portal serve), из которого UI забирает состояние сессии.
//
// Слои:
// - Domain: сессия, роли, оценки и статистика без внешних зависимостей
// - Application: резолвер сессии, запросы кабинета, обработчики событий
// - Infrastructure: клиенты бэкенда, хранилища, планировщик
// - Interface: HTTP API
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/jkcollege/school-portal/config"
	"github.com/jkcollege/school-portal/internal/domain/shared"
	"github.com/jkcollege/school-portal/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// MAIN
// ══════════════════════════════════════════════════════════════════════════════

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		if !errors.Is(err, errUsage) {
			printError(os.Stderr, err)
		}
		os.Exit(1)
	}
}

// errUsage означает, что справка уже напечатана.
var errUsage = errors.New("usage")

// env - то, что получает каждая команда.
type env struct {
	app    *app
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
	json   bool
}

// command - одна подкоманда CLI.
type command struct {
	usage   string
	summary string
	flags   func(fs *flag.FlagSet) func(ctx context.Context, e *env) error
}

func commands() map[string]command {
	return map[string]command{
		"status":    {"status", "show the restored session and where the app would route", statusCmd},
		"signin":    {"signin -email EMAIL [-role ROLE] [-password-stdin]", "sign in with email and password", signInCmd},
		"signup":    {"signup -email EMAIL [-name NAME] [-role ROLE] [-password-stdin]", "create an account", signUpCmd},
		"oauth":     {"oauth [-role ROLE]", "sign in with Google in the browser", oauthCmd},
		"signout":   {"signout", "sign out and clear the stored session", signOutCmd},
		"onboard":   {"onboard", "mark the onboarding screens as seen", onboardCmd},
		"dashboard": {"dashboard", "show the student dashboard", dashboardCmd},
		"result":    {"result ID", "show one exam result", resultCmd},
		"classes":   {"classes", "show class statistics (admin)", classesCmd},
		"roster":    {"roster [-date YYYY-MM-DD]", "show today's class register (teacher)", rosterCmd},
		"attend":    {"attend [-date YYYY-MM-DD] [-mark ID=STATUS,...] [-all-present]", "save the class register (teacher)", attendCmd},
		"features":  {"features", "list feature flags and their rollout", featuresCmd},
		"serve":     {"serve", "run the local HTTP API and background jobs", serveCmd},
	}
}

// run разбирает аргументы, собирает приложение и выполняет команду.
func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	cmds := commands()
	if len(args) == 0 || args[0] == "help" || args[0] == "-h" || args[0] == "--help" {
		printUsage(stderr, cmds)
		return errUsage
	}

	cmd, ok := cmds[args[0]]
	if !ok {
		fmt.Fprintf(stderr, "unknown command %q\n\n", args[0])
		printUsage(stderr, cmds)
		return errUsage
	}

	e := &env{stdin: stdin, stdout: stdout, stderr: stderr}

	fs := flag.NewFlagSet("portal "+args[0], flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.BoolVar(&e.json, "json", false, "print JSON instead of text")
	ephemeral := fs.Bool("ephemeral", false, "keep the session in memory only")
	fs.Usage = func() {
		fmt.Fprintf(stderr, "usage: portal %s\n\n%s\n\n", cmd.usage, cmd.summary)
		fs.PrintDefaults()
	}
	exec := cmd.flags(fs)
	if err := fs.Parse(args[1:]); err != nil {
		// flag has already printed the problem and the usage.
		return errUsage
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if *ephemeral {
		cfg.Storage.Driver = config.StorageMemory
	}
	log := newLogger(cfg.Observability, stderr)

	a, err := newApp(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("startup: %w", err)
	}
	defer func() {
		if cerr := a.Close(); cerr != nil {
			log.Warn("shutdown incomplete", logger.Err(cerr))
		}
	}()
	e.app = a

	// Every command starts from the persisted session.
	if _, err := a.resolver.Restore(ctx); err != nil {
		return err
	}

	return exec(ctx, e)
}

func printUsage(w io.Writer, cmds map[string]command) {
	names := make([]string, 0, len(cmds))
	for name := range cmds {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Fprintln(w, "usage: portal <command> [flags]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "commands:")
	for _, name := range names {
		fmt.Fprintf(w, "  %-10s %s\n", name, cmds[name].summary)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Configuration is read from the environment and .env (see PORTAL_ENV_FILE).")
}

// printError печатает ошибку как алерт: заголовок и сообщение.
func printError(w io.Writer, err error) {
	alert := shared.UserMessage(err)
	if !shared.IsUserFacing(err) {
		fmt.Fprintf(w, "%s: %v\n", alert.Title, err)
		return
	}
	fmt.Fprintf(w, "%s: %s\n", alert.Title, alert.Message)
}
