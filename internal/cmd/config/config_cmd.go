package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/lifedraft/vrt-cli/internal/api"
	"github.com/lifedraft/vrt-cli/internal/cmdutil"
	internalconfig "github.com/lifedraft/vrt-cli/internal/config"
	"github.com/lifedraft/vrt-cli/internal/output"
)

func NewCmd(f *cmdutil.Factory) *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Manage CLI configuration",
		Commands: []*cli.Command{
			newGetCmd(f),
			newSetCmd(f),
			newListCmd(f),
			newPathCmd(f),
		},
	}
}

func validKeys() string {
	return strings.Join(internalconfig.Keys, ", ")
}

func newGetCmd(f *cmdutil.Factory) *cli.Command {
	return &cli.Command{
		Name:      "get",
		Usage:     "Get a config value",
		ArgsUsage: "<key>",
		Flags:     []cli.Flag{cmdutil.OutputFlag()},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			key := cmd.Args().First()
			if key == "" {
				return fmt.Errorf("key argument is required (valid keys: %s)", validKeys())
			}
			val, err := internalconfig.Get(f.ConfigPath, key)
			if err != nil {
				return err
			}
			if cmdutil.IsJSON(cmd) {
				return output.PrintJSON(os.Stdout, map[string]string{key: val})
			}
			fmt.Println(val)
			return nil
		},
	}
}

func newSetCmd(f *cmdutil.Factory) *cli.Command {
	return &cli.Command{
		Name:      "set",
		Usage:     "Set a config value",
		ArgsUsage: "<key> <value>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.Args().Len() < 2 {
				return errors.New("usage: vrt config set <key> <value>")
			}
			key := cmd.Args().Get(0)
			value := cmd.Args().Get(1)
			if err := internalconfig.Set(f.ConfigPath, key, value); err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "Set %s successfully\n", key)
			return nil
		},
	}
}

func maskSession(session string) string {
	if len(session) > 8 {
		return session[:4] + "..." + session[len(session)-4:]
	}
	if session != "" {
		return "****"
	}
	return ""
}

// effectiveValues returns the settings in use, with the session masked and
// defaults filled in for unset cookie name and timeout.
func effectiveValues(cfg *internalconfig.Config, source internalconfig.SessionSource) map[string]any {
	cookie := cfg.SessionCookie
	if cookie == "" {
		cookie = api.DefaultSessionCookie
	}
	timeout := cfg.Timeout
	if timeout == "" {
		timeout = api.DefaultTimeout.String()
	}
	return map[string]any{
		"server":         cfg.Server,
		"session":        maskSession(cfg.Session),
		"session_source": source,
		"session_cookie": cookie,
		"timeout":        timeout,
	}
}

func newListCmd(f *cmdutil.Factory) *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List all config values",
		Flags: []cli.Flag{cmdutil.OutputFlag()},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := internalconfig.Load(f.ConfigPath)
			if err != nil {
				return err
			}
			source, err := internalconfig.ResolveSessionSource(f.ConfigPath)
			if err != nil {
				return err
			}
			values := effectiveValues(cfg, source)
			if cmdutil.IsJSON(cmd) {
				return output.PrintJSON(os.Stdout, values)
			}
			for _, key := range internalconfig.Keys {
				line := fmt.Sprintf("%-15s %s", key+":", values[key])
				if key == "session" {
					line += fmt.Sprintf(" (%s)", source)
				}
				fmt.Println(strings.TrimRight(line, " "))
			}
			return nil
		},
	}
}

func newPathCmd(f *cmdutil.Factory) *cli.Command {
	return &cli.Command{
		Name:  "path",
		Usage: "Show the config file path",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if f.ConfigPath != "" {
				fmt.Println(f.ConfigPath)
				return nil
			}
			fmt.Println(internalconfig.DefaultPath())
			return nil
		},
	}
}
