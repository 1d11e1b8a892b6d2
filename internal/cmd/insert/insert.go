package insert

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"

	"github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"github.com/lifedraft/vrt-cli/internal/api"
	"github.com/lifedraft/vrt-cli/internal/cmdutil"
	"github.com/lifedraft/vrt-cli/internal/editor"
	"github.com/lifedraft/vrt-cli/internal/inserter"
	"github.com/lifedraft/vrt-cli/internal/output"
)

const (
	// DefaultLabel is the status line label shown when the command is idle.
	DefaultLabel = "Insert Fields"
	// DefaultJobs bounds concurrent requests in batch mode.
	DefaultJobs = 4
)

// Report is the JSON result of a run.
type Report struct {
	OK          bool   `json:"ok"`
	Status      int    `json:"status,omitempty"`
	Message     string `json:"message,omitempty"`
	Detail      string `json:"detail,omitempty"`
	Hint        string `json:"hint,omitempty"`
	Destination string `json:"destination"`
	Bytes       int    `json:"bytes,omitempty"`
}

// Options holds everything a single run needs.
type Options struct {
	Buffer    *editor.FileBuffer
	Form      editor.Form
	Submitter inserter.Submitter
	Logger    *zap.Logger
	Label     string
	Quiet     bool
	JSON      bool
	Stdout    io.Writer
	Stderr    io.Writer

	// AlertPrefix precedes every alert; "insert_fields: " when empty.
	AlertPrefix string
}

func NewCmd(f *cmdutil.Factory) *cli.Command {
	return &cli.Command{
		Name:      "insert-fields",
		Usage:     "Insert the fields of a datasource into VRT files",
		ArgsUsage: "<vrt-file|-> [vrt-file...]",
		Description: "Sends each VRT file to the server's insert_fields action and replaces the file\n" +
			"with the server's answer. Use - to read stdin and write the result to stdout.\n" +
			"Several files are processed concurrently, each as its own request.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "name", Aliases: []string{"n"}, Usage: "Input name"},
			&cli.StringFlag{Name: "foreign-table", Aliases: []string{"t"}, Usage: "Foreign table id"},
			&cli.StringFlag{Name: "dest", Aliases: []string{"d"}, Usage: "Write the result here instead of the input file (- for stdout)"},
			&cli.StringFlag{Name: "label", Value: DefaultLabel, Usage: "Status line label"},
			&cli.BoolFlag{Name: "quiet", Aliases: []string{"q"}, Usage: "Do not show a status line"},
			&cli.IntFlag{Name: "jobs", Aliases: []string{"j"}, Value: DefaultJobs, Usage: "Requests in flight when several files are given"},
			cmdutil.OutputFlag(),
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			paths := cmd.Args().Slice()
			if len(paths) == 0 {
				return errors.New("vrt file argument is required; usage: vrt insert-fields [flags] <vrt-file|->")
			}
			form := editor.Form{
				inserter.FieldName:         cmd.String("name"),
				inserter.FieldForeignTable: cmd.String("foreign-table"),
			}

			if len(paths) > 1 {
				if cmd.String("dest") != "" {
					return errors.New("--dest cannot be combined with several files")
				}
				if slices.Contains(paths, editor.StdioPath) {
					return errors.New("- (stdin) cannot be combined with other files")
				}
				client, err := f.Client()
				if err != nil {
					return err
				}
				return RunBatch(ctx, BatchOptions{
					Paths:     paths,
					Jobs:      cmd.Int("jobs"),
					Form:      form,
					Submitter: client,
					Logger:    f.Logger(),
					JSON:      cmdutil.IsJSON(cmd),
					Stdout:    os.Stdout,
					Stderr:    os.Stderr,
				})
			}

			buf := editor.NewFileBuffer(paths[0])
			buf.Output = cmd.String("dest")
			if cmdutil.IsJSON(cmd) && buf.Destination() == editor.StdioPath {
				return errors.New("--output json needs a file destination; pass --dest <file>")
			}

			client, err := f.Client()
			if err != nil {
				return err
			}
			if err := buf.Load(); err != nil {
				return err
			}

			return Run(ctx, Options{
				Buffer:    buf,
				Form:      form,
				Submitter: client,
				Logger:    f.Logger(),
				Label:     cmd.String("label"),
				Quiet:     cmd.Bool("quiet"),
				JSON:      cmdutil.IsJSON(cmd),
				Stdout:    os.Stdout,
				Stderr:    os.Stderr,
			})
		},
	}
}

// Run performs one insert_fields call against opts.Buffer and waits for it
// to settle.
func Run(ctx context.Context, opts Options) error {
	report, err := execute(ctx, opts)
	if err != nil {
		return err
	}

	if opts.JSON {
		if err := output.PrintJSON(opts.Stdout, report); err != nil {
			return err
		}
	} else {
		if report.Detail != "" && report.Detail != report.Message {
			fmt.Fprintf(opts.Stderr, "Server said: %s\n", report.Detail)
		}
		if report.Hint != "" {
			fmt.Fprintf(opts.Stderr, "Hint: %s\n", report.Hint)
		}
		if report.OK && report.Destination != "stdout" {
			fmt.Fprintf(opts.Stderr, "Wrote %d bytes to %s\n", report.Bytes, report.Destination)
		}
	}
	return report.failure()
}

// execute runs the inserter and describes the settled call. The error is
// only set for local problems such as a failed write.
func execute(ctx context.Context, opts Options) (Report, error) {
	var trigger inserter.Control
	alerts := opts.Stderr
	if !opts.Quiet {
		line := editor.NewStatusLine(opts.Stderr, opts.Label)
		trigger = line
		alerts = line.Writer()
	}
	prefix := opts.AlertPrefix
	if prefix == "" {
		prefix = "insert_fields: "
	}
	notifier := editor.StderrNotifier{W: alerts, Prefix: prefix}

	in := inserter.New(opts.Buffer, opts.Form, notifier, opts.Submitter, inserter.WithLogger(opts.Logger))
	out, err := in.InsertDatasourceFields(ctx, trigger).Wait(ctx)
	if err != nil {
		return Report{}, err
	}

	report := Report{
		OK:          out.OK,
		Status:      out.Status,
		Message:     out.Message,
		Destination: destinationName(opts.Buffer),
	}
	if !out.OK {
		report.Detail = out.Detail
		report.Hint = api.HintFor(out.Status, out.Message, out.Detail)
		return report, nil
	}
	if err := opts.Buffer.Err(); err != nil {
		return report, err
	}
	report.Bytes = len(out.Text)
	return report, nil
}

func (r Report) failure() error {
	switch {
	case r.OK:
		return nil
	case r.Status == 0:
		return errors.New("insert_fields request failed")
	default:
		return fmt.Errorf("insert_fields request failed with HTTP %d", r.Status)
	}
}

func destinationName(b *editor.FileBuffer) string {
	if b.Destination() == editor.StdioPath {
		return "stdout"
	}
	return b.Destination()
}
