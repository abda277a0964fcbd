// Package admin implements panelctl, the operator tool for schema
// migrations, account management and session cleanup.
package admin

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/snoreguard/panel/core"
	"github.com/snoreguard/panel/internal/config"
	"github.com/snoreguard/panel/internal/flagx"
	"github.com/snoreguard/panel/internal/logging"
	"github.com/snoreguard/panel/internal/storage"
	"github.com/snoreguard/panel/pkg/crypto"
	"github.com/snoreguard/panel/services"
)

// readPassword is a test seam for term.ReadPassword.
var readPassword = term.ReadPassword

var ErrUsage = errors.New("usage: panelctl <migrate|useradd|deactivate|sweep> [flags]")

type Tool struct {
	cfg   *config.Config
	in    *bufio.Reader
	out   io.Writer
	store *storage.Store

	auth     *services.AuthService
	sessions *services.SessionManager
	activity *services.ActivityLogger
}

// Run executes the subcommand in args[0]. Storage flags (-d, -driver, -c)
// are read by the config loader; the rest belong to the subcommand.
func Run(ctx context.Context, args []string, getenv func(string) string, stdin io.Reader, stdout io.Writer) error {
	if len(args) == 0 {
		return ErrUsage
	}
	command, rest := args[0], args[1:]

	cfg, err := config.Load(rest, getenv)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	store, err := storage.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	t := newTool(cfg, store, stdin, stdout)
	defer t.activity.Close()

	switch command {
	case "migrate":
		fmt.Fprintf(t.out, "schema is up to date (%s)\n", store.Driver)
		return nil
	case "useradd":
		return t.userAdd(ctx, rest)
	case "deactivate":
		return t.deactivate(ctx, rest)
	case "sweep":
		return t.sweep(ctx)
	default:
		return fmt.Errorf("%w: unknown command %q", ErrUsage, command)
	}
}

func newTool(cfg *config.Config, store *storage.Store, stdin io.Reader, stdout io.Writer) *Tool {
	log := logging.New(io.Discard, cfg.LogLevel)

	credentials := services.NewCredentialStore(store, crypto.NewArgon2(), log)
	sessions := services.NewSessionManager(cfg.SessionConfig(), store, nil, []byte(cfg.Secret), services.WithSessionLogger(log))
	activity := services.NewActivityLogger(store, log, 16)

	return &Tool{
		cfg:      cfg,
		in:       bufio.NewReader(stdin),
		out:      stdout,
		store:    store,
		auth:     services.NewAuthService(credentials, sessions, activity, store, log),
		sessions: sessions,
		activity: activity,
	}
}

func subcommandFlags(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

func (t *Tool) userAdd(ctx context.Context, args []string) error {
	fs := subcommandFlags("useradd")
	username := fs.String("username", "", "login name")
	email := fs.String("email", "", "email address")
	fullName := fs.String("full-name", "", "display name")
	passwordStdin := fs.Bool("password-stdin", false, "read the password from stdin")

	if err := fs.Parse(flagx.FilterArgs(args, []string{"-username", "-email", "-full-name", "-password-stdin"})); err != nil {
		return err
	}
	if *username == "" || *email == "" {
		return fmt.Errorf("%w: useradd needs -username and -email", ErrUsage)
	}

	password, err := t.password(*passwordStdin)
	if err != nil {
		return err
	}

	user, err := t.auth.Register(ctx, core.RegisterInput{
		Username: *username,
		Email:    *email,
		Password: password,
		FullName: *fullName,
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(t.out, "created user %s (id %d)\n", user.Username, user.ID)
	return nil
}

func (t *Tool) password(fromStdin bool) (string, error) {
	if fromStdin {
		line, err := t.in.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return "", err
		}
		return strings.TrimRight(line, "\r\n"), nil
	}

	fd := int(os.Stdin.Fd())
	fmt.Fprint(t.out, "Enter password: ")
	first, err := readPassword(fd)
	fmt.Fprintln(t.out)
	if err != nil {
		return "", err
	}
	fmt.Fprint(t.out, "Repeat password: ")
	second, err := readPassword(fd)
	fmt.Fprintln(t.out)
	if err != nil {
		return "", err
	}
	if !bytes.Equal(first, second) {
		return "", errors.New("passwords do not match")
	}
	return string(first), nil
}

func (t *Tool) deactivate(ctx context.Context, args []string) error {
	fs := subcommandFlags("deactivate")
	username := fs.String("username", "", "login name")
	if err := fs.Parse(flagx.FilterArgs(args, []string{"-username"})); err != nil {
		return err
	}
	if *username == "" {
		return fmt.Errorf("%w: deactivate needs -username", ErrUsage)
	}

	user, err := t.store.GetUserByUsername(ctx, *username)
	if err != nil {
		return fmt.Errorf("lookup %q: %w", *username, err)
	}
	if err := t.auth.Deactivate(ctx, user.ID); err != nil {
		return err
	}

	fmt.Fprintf(t.out, "deactivated %s, sessions revoked\n", user.Username)
	return nil
}

func (t *Tool) sweep(ctx context.Context) error {
	n, err := t.sessions.SweepExpired(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(t.out, "removed %d expired sessions\n", n)
	return nil
}
