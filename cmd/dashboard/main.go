// Command dashboard is the operator console for the analytics API.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"pulsetrail/api/dashboard"
	"pulsetrail/api/logging"
)

const usage = `usage: dashboard [-server=<url>] [-token=<token>] [-state-dir=<path>] [-yes] <command> [<args>]

Flags:

   -server     The analytics API root. ANALYTICS_SERVER is used if this flag is not set.
   -token      The operator token. When omitted the token saved by the last login is used.
   -state-dir  Where the operator token is kept between runs.
   -yes        Skip confirmation prompts.
   -timeout    Request timeout.

Commands:
   show        Print the summary and every event
   delete      Delete one event by id and print the updated summary
   clear       Delete all events
   logout      Forget the saved token
   help        Display this message
`

var (
	serverFlag  = flag.String("server", "", "analytics API root")
	tokenFlag   = flag.String("token", "", "operator token")
	stateFlag   = flag.String("state-dir", defaultStateDir(), "token directory")
	yesFlag     = flag.Bool("yes", false, "skip confirmation prompts")
	timeoutFlag = flag.Duration("timeout", 15*time.Second, "request timeout")
)

func main() {
	_ = godotenv.Load()
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()
	logging.Init(logging.Config{Level: os.Getenv("LOG_LEVEL"), Format: "console"})

	if flag.NArg() == 0 {
		fmt.Fprint(os.Stderr, "missing command\n\n", usage)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, flag.Arg(0), flag.Args()[1:]); err != nil {
		logging.Error().Err(err).Str("command", flag.Arg(0)).Msg("command failed")
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, cmd string, args []string) error {
	if cmd == "help" {
		fmt.Print(usage)
		return nil
	}

	server := *serverFlag
	if server == "" {
		server = envOr("ANALYTICS_SERVER", "http://localhost:8080")
	}
	client, err := dashboard.New(dashboard.Config{
		BaseURL: server,
		Timeout: *timeoutFlag,
		Tokens:  dashboard.FileTokenStore{Dir: *stateFlag},
	})
	if err != nil {
		return err
	}

	if cmd == "logout" {
		return client.Reset()
	}

	if err := authenticate(ctx, client); err != nil {
		return err
	}

	var confirm dashboard.Confirmer = stdinConfirmer{}
	if *yesFlag {
		confirm = dashboard.AlwaysConfirm
	}

	switch cmd {
	case "show":
	case "delete":
		if len(args) != 1 {
			return errors.New("delete takes exactly one event id")
		}
		sent, err := client.DeleteEvent(ctx, args[0], confirm)
		if err != nil {
			return err
		}
		if !sent {
			logging.Info().Msg("delete cancelled")
			return nil
		}
	case "clear":
		sent, err := client.ClearAll(ctx, confirm)
		if err != nil {
			return err
		}
		if !sent {
			logging.Info().Msg("clear cancelled")
			return nil
		}
	default:
		fmt.Fprint(os.Stderr, usage)
		return fmt.Errorf("unknown command: %s", cmd)
	}

	data, ok := client.Snapshot()
	if !ok {
		return errors.New("no data loaded")
	}
	return render(os.Stdout, data, time.Local)
}

func authenticate(ctx context.Context, client *dashboard.Client) error {
	if *tokenFlag != "" {
		return client.Login(ctx, *tokenFlag)
	}
	if err := client.Resume(ctx); err != nil {
		return err
	}
	if client.State() == dashboard.StateUnauthenticated {
		return errors.New("not logged in: pass -token")
	}
	return nil
}

// stdinConfirmer asks on the terminal and accepts y or yes.
type stdinConfirmer struct{}

func (stdinConfirmer) Confirm(prompt string) bool {
	fmt.Fprintf(os.Stderr, "%s [y/N] ", prompt)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	}
	return false
}

func defaultStateDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "pulsetrail")
	}
	return ".pulsetrail"
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
