package bugreport

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/lifedraft/vrt-cli/internal/api"
	"github.com/lifedraft/vrt-cli/internal/cmdutil"
	"github.com/lifedraft/vrt-cli/internal/config"
	"github.com/lifedraft/vrt-cli/internal/output"
)

const (
	issuesPath = "/lifedraft/vrt-cli/issues/new"
	maxURLLen  = 8000
	maxStack   = 1500
)

// Info is what bug-report knows about the local setup. It never carries
// the session value itself.
type Info struct {
	CLIVersion    string `json:"cli_version"`
	GoVersion     string `json:"go_version"`
	OS            string `json:"os"`
	Arch          string `json:"arch"`
	ConfigPath    string `json:"config_path"`
	ConfigFound   bool   `json:"config_found"`
	Server        string `json:"server,omitempty"`
	ServerStatus  string `json:"server_status,omitempty"`
	SessionCookie string `json:"session_cookie,omitempty"`
	SessionSource string `json:"session_source,omitempty"`
	Timeout       string `json:"timeout,omitempty"`
}

// Collect gathers diagnostic information. A configured server is pinged.
func Collect(f *cmdutil.Factory, version string) Info {
	info := Info{
		CLIVersion: version,
		GoVersion:  runtime.Version(),
		OS:         runtime.GOOS,
		Arch:       runtime.GOARCH,
		ConfigPath: f.ConfigPath,
	}
	if info.ConfigPath == "" {
		info.ConfigPath = config.DefaultPath()
	}
	if _, err := os.Stat(info.ConfigPath); err == nil {
		info.ConfigFound = true
	}

	if src, err := config.ResolveSessionSource(info.ConfigPath); err == nil {
		info.SessionSource = string(src)
	}

	cfg, err := f.Config()
	if err != nil || cfg.Server == "" {
		return info
	}
	info.Server = cfg.Server
	info.SessionCookie = cfg.SessionCookie
	if info.SessionCookie == "" {
		info.SessionCookie = api.DefaultSessionCookie
	}
	info.Timeout = cfg.Timeout
	if info.Timeout == "" {
		info.Timeout = api.DefaultTimeout.String()
	}
	info.ServerStatus = pingServer(f)
	return info
}

func pingServer(f *cmdutil.Factory) string {
	client, err := f.Client()
	if err != nil {
		return "misconfigured"
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx); err != nil {
		return "unreachable"
	}
	return "reachable"
}

// FormatText renders info as aligned "label: value" lines.
func FormatText(info Info) string {
	lines := [][2]string{
		{"CLI version", info.CLIVersion},
		{"Go version", info.GoVersion},
		{"OS/Arch", info.OS + "/" + info.Arch},
		{"Config path", info.ConfigPath},
		{"Config found", fmt.Sprint(info.ConfigFound)},
	}
	if info.SessionSource != "" {
		lines = append(lines, [2]string{"Session", info.SessionSource})
	}
	if info.Server != "" {
		lines = append(lines,
			[2]string{"Server", info.Server},
			[2]string{"Status", info.ServerStatus},
			[2]string{"Cookie", info.SessionCookie},
			[2]string{"Timeout", info.Timeout},
		)
	}

	var b strings.Builder
	for _, l := range lines {
		fmt.Fprintf(&b, "%-14s%s\n", l[0]+":", l[1])
	}
	return b.String()
}

func fenced(s string) string {
	return "```\n" + strings.TrimSuffix(s, "\n") + "\n```"
}

// issueURL builds a new-issue link with the first body that keeps the URL
// under GitHub's length limit.
func issueURL(params map[string]string, bodies ...string) string {
	u := url.URL{Scheme: "https", Host: "github.com", Path: issuesPath}
	q := url.Values{}
	for k, v := range params {
		q.Set(k, v)
	}
	bodies = append(bodies, "Environment info too long. Please paste the output of `vrt bug-report`.")
	for _, body := range bodies {
		q.Set("body", body)
		u.RawQuery = q.Encode()
		if len(u.String()) <= maxURLLen {
			break
		}
	}
	return u.String()
}

// BuildIssueURL returns a bug report link pre-filled with info.
func BuildIssueURL(info Info) string {
	body := "## Environment\n\n" + fenced(FormatText(info)) + `

## Description

<!-- Describe the bug -->

## Steps to Reproduce

1.

## Expected Behavior

<!-- What did you expect to happen? -->
`
	return issueURL(map[string]string{
		"title":    "Bug: [describe]",
		"labels":   "bug",
		"template": "bug_report.yml",
	}, body)
}

// BuildPanicIssueURL returns a crash report link. The stack is truncated,
// and dropped entirely when the link would get too long.
func BuildPanicIssueURL(info Info, panicVal any, stack []byte) string {
	trace := string(stack)
	if len(trace) > maxStack {
		trace = trace[:maxStack] + "\n... (truncated)"
	}

	crash := func(detail string) string {
		return "## Crash Report\n\nvrt panicked unexpectedly.\n\n### Panic\n" +
			fenced(detail) +
			"\n\n### Environment\n\n" + fenced(FormatText(info)) +
			"\n\n### What were you doing?\n\n<!-- What command did you run? Any other context? -->\n"
	}
	msg := fmt.Sprintf("panic: %v", panicVal)

	return issueURL(map[string]string{
		"title":  fmt.Sprintf("Crash: %v", panicVal),
		"labels": "bug,crash",
	}, crash(msg+"\n\n"+trace), crash(msg))
}

// HandlePanic reports a recovered panic on stderr with a crash report link.
// Call it from a deferred recover() in main.
func HandlePanic(f *cmdutil.Factory, version string, recovered any) {
	buf := make([]byte, 4096)
	stack := buf[:runtime.Stack(buf, false)]

	fmt.Fprintf(os.Stderr, "\nvrt crashed: %v\n\n%s\n", recovered, stack)
	link := BuildPanicIssueURL(Collect(f, version), recovered, stack)
	fmt.Fprintf(os.Stderr, "Please report this issue:\n  %s\n\nOr run: vrt bug-report --mode open\n", link)
}

// platformCommand returns the per-OS helper for opening URLs or filling the
// clipboard.
func platformCommand(ctx context.Context, darwin, linux, windows []string) (*exec.Cmd, error) {
	var argv []string
	switch runtime.GOOS {
	case "darwin":
		argv = darwin
	case "linux":
		argv = linux
	case "windows":
		argv = windows
	default:
		return nil, fmt.Errorf("unsupported platform: %s", runtime.GOOS)
	}
	return exec.CommandContext(ctx, argv[0], argv[1:]...), nil
}

func openBrowser(ctx context.Context, link string) error {
	cmd, err := platformCommand(ctx,
		[]string{"open", link},
		[]string{"xdg-open", link},
		[]string{"cmd", "/c", "start", link},
	)
	if err != nil {
		return err
	}
	return cmd.Run()
}

func copyToClipboard(ctx context.Context, text string) error {
	cmd, err := platformCommand(ctx,
		[]string{"pbcopy"},
		[]string{"xclip", "-selection", "clipboard"},
		[]string{"clip"},
	)
	if err != nil {
		return err
	}
	cmd.Stdin = strings.NewReader(text)
	return cmd.Run()
}

// NewCmd creates the bug-report command.
func NewCmd(f *cmdutil.Factory, version string) *cli.Command {
	return &cli.Command{
		Name:  "bug-report",
		Usage: "Print diagnostics or open a pre-filled bug report",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "mode",
				Usage: "terminal, json, open or clipboard",
				Value: "terminal",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			mode := cmd.String("mode")
			switch mode {
			case "terminal", "json", "open", "clipboard":
			default:
				return fmt.Errorf("unknown mode %q (valid: terminal, json, open, clipboard)", mode)
			}

			info := Collect(f, version)
			switch mode {
			case "json":
				return output.PrintJSON(os.Stdout, info)
			case "open":
				fmt.Fprintln(os.Stderr, "Opening GitHub issue form in your browser...")
				return openBrowser(ctx, BuildIssueURL(info))
			case "clipboard":
				if err := copyToClipboard(ctx, FormatText(info)); err != nil {
					return fmt.Errorf("copying to clipboard: %w", err)
				}
				fmt.Fprintln(os.Stderr, "Diagnostic info copied to clipboard.")
			default:
				fmt.Print(FormatText(info))
			}
			return nil
		},
	}
}
