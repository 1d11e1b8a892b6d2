package login

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/lifedraft/vrt-cli/internal/cmdutil"
	"github.com/lifedraft/vrt-cli/internal/config"
)

// NewCmd returns the login command, which stores the session cookie.
func NewCmd(f *cmdutil.Factory) *cli.Command {
	return &cli.Command{
		Name:  "login",
		Usage: "Store the server session cookie",
		Description: "Copy the session cookie value from a browser logged in to the server.\n" +
			"It is kept in the OS keyring when available, otherwise in the config file.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "session", Usage: "Session cookie value (read from stdin when omitted)"},
			&cli.StringFlag{Name: "server", Usage: "Also set the server URL"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			session := cmd.String("session")
			if session == "" {
				var err error
				session, err = readSession()
				if err != nil {
					return err
				}
			}
			if session == "" {
				return errors.New("session value is required; pass --session or pipe it on stdin")
			}

			if server := cmd.String("server"); server != "" {
				if err := config.Set(f.ConfigPath, "server", server); err != nil {
					return err
				}
			}

			source, err := config.SetSession(f.ConfigPath, session)
			if err != nil {
				return err
			}
			switch source {
			case config.SessionSourceKeyring:
				fmt.Fprintln(os.Stderr, "Session stored in the OS keyring.")
			default:
				fmt.Fprintln(os.Stderr, "Keyring unavailable; session stored in the config file.")
			}
			return nil
		},
	}
}

// NewLogoutCmd returns the logout command.
func NewLogoutCmd(f *cmdutil.Factory) *cli.Command {
	return &cli.Command{
		Name:  "logout",
		Usage: "Forget the stored session cookie",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if err := config.ClearSession(f.ConfigPath); err != nil {
				return err
			}
			fmt.Fprintln(os.Stderr, "Session removed.")
			return nil
		},
	}
}

func readSession() (string, error) {
	fmt.Fprint(os.Stderr, "Session cookie: ")
	sc := bufio.NewScanner(os.Stdin)
	if !sc.Scan() {
		if err := sc.Err(); err != nil {
			return "", fmt.Errorf("reading session: %w", err)
		}
		return "", nil
	}
	return strings.TrimSpace(sc.Text()), nil
}
