package insert

import (
	"context"
	"fmt"
	"io"

	"github.com/samber/lo"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/lifedraft/vrt-cli/internal/editor"
	"github.com/lifedraft/vrt-cli/internal/inserter"
	"github.com/lifedraft/vrt-cli/internal/output"
)

// BatchOptions configures RunBatch.
type BatchOptions struct {
	Paths     []string
	Jobs      int
	Form      editor.Form
	Submitter inserter.Submitter
	Logger    *zap.Logger
	JSON      bool
	Stdout    io.Writer
	Stderr    io.Writer
}

// RunBatch rewrites every file in opts.Paths, each through its own
// inserter, with at most opts.Jobs requests in flight. A failing file does
// not stop the others.
func RunBatch(ctx context.Context, opts BatchOptions) error {
	jobs := opts.Jobs
	if jobs < 1 {
		jobs = DefaultJobs
	}
	// Alerts from concurrent runs share one stream.
	stderr := zapcore.Lock(zapcore.AddSync(opts.Stderr))

	reports := make([]Report, len(opts.Paths))
	group := errgroup.Group{}
	group.SetLimit(jobs)

	for i, path := range opts.Paths {
		group.Go(func() error {
			reports[i] = Report{Destination: path}

			buf := editor.NewFileBuffer(path)
			if err := buf.Load(); err != nil {
				reports[i].Message = err.Error()
				return err
			}
			report, err := execute(ctx, Options{
				Buffer:      buf,
				Form:        opts.Form,
				Submitter:   opts.Submitter,
				Logger:      opts.Logger,
				Quiet:       true,
				Stderr:      stderr,
				AlertPrefix: "insert_fields: " + path + ": ",
			})
			if err != nil {
				reports[i].Message = err.Error()
				return fmt.Errorf("%s: %w", path, err)
			}
			reports[i] = report
			return nil
		})
	}
	localErr := group.Wait()

	if opts.JSON {
		if err := output.PrintJSON(opts.Stdout, reports); err != nil {
			return err
		}
	} else {
		for _, r := range reports {
			if r.OK {
				fmt.Fprintf(stderr, "Wrote %d bytes to %s\n", r.Bytes, r.Destination)
				continue
			}
			if r.Detail != "" && r.Detail != r.Message {
				fmt.Fprintf(stderr, "%s: Server said: %s\n", r.Destination, r.Detail)
			}
			if r.Hint != "" {
				fmt.Fprintf(stderr, "%s: Hint: %s\n", r.Destination, r.Hint)
			}
		}
	}

	if localErr != nil {
		return localErr
	}
	failed := lo.CountBy(reports, func(r Report) bool { return !r.OK })
	if failed > 0 {
		return fmt.Errorf("insert_fields failed for %d of %d files", failed, len(reports))
	}
	return nil
}
