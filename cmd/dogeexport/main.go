// Command dogeexport downloads DOGE government-data categories and writes one
// spreadsheet per category.
//
// Usage:
//
//	dogeexport --all
//	dogeexport --data-type grants --filter "agency=GSA,year=2025"
//	dogeexport --all --output-dir exports --no-timestamp -v
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"dogeexport/internal/apiclient"
	"dogeexport/internal/config"
	"dogeexport/internal/export"
	"dogeexport/internal/filters"
	"dogeexport/internal/logging"
	"dogeexport/internal/metrics"
	"dogeexport/internal/metrics/datadog"
	"dogeexport/internal/metrics/prompush"
	"dogeexport/internal/writer"
	_ "dogeexport/internal/writer/sqlite"
)

// Exit codes.
const (
	exitOK         = 0
	exitParam      = 1
	exitConnection = 2
	exitTimeout    = 3
	exitUnexpected = 99
)

// jobName tags every metric this command emits.
const jobName = "dogeexport"

// backendCloser is the minimal interface used by this command to manage a metrics backend.
type backendCloser interface {
	metrics.Backend
	Close() error
}

// deps are external seams for testability.
//
// When to use:
//   - Unit tests: inject a lookup instead of the process environment, a fake
//     backend factory and an HTTP transport, and capture stdout/stderr.
//
// Errors:
//   - BackendFactory returns (nil, nil) when metrics are disabled and a
//     non-nil error for fatal initialization failures.
type deps struct {
	Stdout io.Writer
	Stderr io.Writer

	// Lookup replaces the environment/.env lookup when set.
	Lookup config.LookupFunc

	BackendFactory func(ctx context.Context, cfg config.Config, runID string) (backendCloser, error)
	Transport      http.RoundTripper
	Now            func() time.Time
	NewRunID       func() string
}

// cliFlags holds the parsed command line.
type cliFlags struct {
	All         bool
	DataType    string
	Filter      string
	OutputDir   string
	NoTimestamp bool
	Verbose     bool
}

// main is intentionally small: it wires real dependencies and exits with a code.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], deps{
		Stdout:         os.Stdout,
		Stderr:         os.Stderr,
		BackendFactory: newBackend,
		Now:            time.Now,
		NewRunID:       uuid.NewString,
	})
	stop()
	os.Exit(code)
}

// run executes one export and returns an exit code.
//
// Exit codes:
//   - 0: success, or --all with at least one category written
//   - 1: bad parameters or configuration
//   - 2: connection error
//   - 3: timeout
//   - 99: anything else
func run(ctx context.Context, args []string, d deps) (code int) {
	if d.Stdout == nil {
		d.Stdout = io.Discard
	}
	if d.Stderr == nil {
		d.Stderr = io.Discard
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.NewRunID == nil {
		d.NewRunID = uuid.NewString
	}
	if d.BackendFactory == nil {
		fmt.Fprintln(d.Stderr, "internal error: BackendFactory is nil")
		return exitUnexpected
	}
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(d.Stdout, "\n❌ Unexpected error: %v\n", r)
			fmt.Fprintln(d.Stdout, "Please check the logs for more details.")
			code = exitUnexpected
		}
	}()

	f, err := parseFlags(args)
	if err != nil {
		var ue *usageError
		if errors.As(err, &ue) && ue.help {
			fmt.Fprint(d.Stdout, ue.text)
			return exitOK
		}
		fmt.Fprintln(d.Stderr, err.Error())
		return exitParam
	}

	params, err := filters.Parse(f.Filter)
	if err != nil {
		fmt.Fprintf(d.Stdout, "\n❌ Parameter error: %v\n", err)
		fmt.Fprintln(d.Stdout, "Please check your command line arguments and try again.")
		return exitParam
	}

	lookup := d.Lookup
	if lookup == nil {
		lookup, err = config.DotEnvLookup(os.Getenv("DOGE_ENV_FILE"))
		if err != nil {
			fmt.Fprintln(d.Stderr, err.Error())
			return exitParam
		}
	}
	cfg, err := config.Load(lookup)
	if err != nil {
		fmt.Fprintln(d.Stderr, err.Error())
		return exitParam
	}
	cfg = cfg.Apply(config.Overrides{OutputDir: f.OutputDir, NoTimestamp: f.NoTimestamp, Verbose: f.Verbose})

	if f.DataType != "" {
		if _, ok := cfg.Category(f.DataType); !ok {
			fmt.Fprintf(d.Stderr, "invalid --data-type %q (choose from %s)\n", f.DataType, strings.Join(cfg.CategoryNames(), ", "))
			return exitParam
		}
	}

	runID := d.NewRunID()
	logger, logCloser, err := logging.New(logging.Config{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		File:   cfg.LogPath(),
		Stderr: d.Stderr,
	})
	if err != nil {
		fmt.Fprintln(d.Stderr, err.Error())
		return exitParam
	}
	defer logCloser.Close()
	logger = logger.With("run_id", runID)

	backend, err := d.BackendFactory(ctx, cfg, runID)
	if err != nil {
		fmt.Fprintf(d.Stderr, "metrics backend init failed: %v\n", err)
		return exitParam
	}
	if backend != nil {
		metrics.SetBackend(backend)
		defer func() {
			if err := metrics.Flush(); err != nil {
				logger.Warn("metrics flush failed", "err", err)
			}
			_ = backend.Close()
			metrics.SetBackend(nil)
		}()
	}

	client, err := apiclient.New(apiclient.Config{
		BaseURL:    cfg.BaseURL,
		APIKey:     cfg.APIKey,
		APIVersion: cfg.APIVersion,
		Timeout:    cfg.RequestTimeout,
		Policy:     apiclient.DefaultRetryPolicy(cfg.MaxRetries),
		PageSize:   cfg.PageSize(),
		MaxPages:   cfg.MaxPages,
		Logger:     logger,
		Transport:  d.Transport,
	})
	if err != nil {
		fmt.Fprintln(d.Stderr, err.Error())
		return exitParam
	}
	w := writer.New(writer.Config{
		OutputDir:        cfg.OutputDir,
		IncludeTimestamp: cfg.IncludeTimestamp,
		Engine:           cfg.Engine,
		Logger:           logger,
		Now:              d.Now,
	})
	exp, err := export.New(cfg.Categories, client, w, logger)
	if err != nil {
		fmt.Fprintln(d.Stderr, err.Error())
		return exitParam
	}

	logger.Info("starting export", "all", f.All, "data_type", f.DataType, "filters", params.String(),
		"output_dir", cfg.OutputDir, "engine", cfg.Engine, "base_url", cfg.BaseURL)

	if f.All {
		sum := exp.ExportAll(ctx, params)
		printSummary(d.Stdout, sum)
		if sum.Succeeded() > 0 {
			return exitOK
		}
		return reportFailure(d.Stdout, sum.FirstErr())
	}

	res := exp.ExportCategory(ctx, f.DataType, params)
	if res.OK() {
		fmt.Fprintf(d.Stdout, "\n✅ Successfully exported %s data to: %s\n", f.DataType, res.Path)
		return exitOK
	}
	fmt.Fprintf(d.Stdout, "\n❌ Failed to export %s data\n", f.DataType)
	return reportFailure(d.Stdout, res.Err)
}

func printSummary(w io.Writer, sum export.Summary) {
	fmt.Fprintln(w, "\nExport Summary:")
	for _, r := range sum.Results {
		if r.OK() {
			fmt.Fprintf(w, "✅ %s: %s\n", r.Category, r.Path)
		} else {
			fmt.Fprintf(w, "❌ %s: Failed to export\n", r.Category)
		}
	}
}

// reportFailure prints the hint for err's class and returns its exit code.
func reportFailure(w io.Writer, err error) int {
	code := exitCode(err)
	switch code {
	case exitParam:
		fmt.Fprintf(w, "\n❌ Parameter error: %v\n", err)
		fmt.Fprintln(w, "Please check your command line arguments and try again.")
	case exitConnection:
		fmt.Fprintf(w, "\n❌ Connection error: %v\n", err)
		fmt.Fprintln(w, "Please check your internet connection and API configuration.")
	case exitTimeout:
		fmt.Fprintf(w, "\n❌ Timeout error: %v\n", err)
		fmt.Fprintln(w, "Try increasing DOGE_REQUEST_TIMEOUT or check server status.")
	case exitUnexpected:
		fmt.Fprintf(w, "\n❌ Unexpected error: %v\n", err)
		fmt.Fprintln(w, "Please check the logs for more details.")
	}
	return code
}

// exitCode maps a category failure to the process exit code. A nil error (an
// empty dataset) is not an error. A non-2xx response exits like a parameter
// error.
func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, filters.ErrParam), errors.Is(err, apiclient.ErrHTTPStatus):
		return exitParam
	case errors.Is(err, apiclient.ErrConnection):
		return exitConnection
	case errors.Is(err, apiclient.ErrTimeout):
		return exitTimeout
	default:
		return exitUnexpected
	}
}

// usageError carries the captured usage text. help is set for -h/--help.
type usageError struct {
	text string
	help bool
}

func (e *usageError) Error() string { return e.text }

// parseFlags parses command arguments.
//
// Errors:
//   - unknown flags, stray positional arguments
//   - neither or both of --all and --data-type
//   - -h/--help, as a *usageError with help set (not a failure)
func parseFlags(args []string) (cliFlags, error) {
	fs := flag.NewFlagSet("dogeexport", flag.ContinueOnError)

	// Capture help/usage text instead of writing to stdout.
	var usageBuf strings.Builder
	fs.SetOutput(&usageBuf)
	fs.Usage = func() {
		fmt.Fprintf(&usageBuf, "Usage: %s (--all | --data-type NAME) [flags]\n\n", fs.Name())
		fs.PrintDefaults()
		fmt.Fprint(&usageBuf, `
Examples:
  dogeexport --all
  dogeexport --data-type departments
  dogeexport --data-type employees --filter "department=Treasury"
  dogeexport --all --output-dir exports
  dogeexport --all --no-timestamp
`)
	}

	var f cliFlags
	fs.BoolVar(&f.All, "all", false, "Export all data types")
	fs.StringVar(&f.DataType, "data-type", "", "Data type to export (grants, contracts, leases, departments, employees, budget, efficiency_metrics, projects)")
	fs.StringVar(&f.Filter, "filter", "", "Filter in format 'key1=value1,key2=value2'")
	fs.StringVar(&f.OutputDir, "output-dir", "", "Output directory for exported files")
	fs.BoolVar(&f.NoTimestamp, "no-timestamp", false, "Disable timestamp in filenames")
	fs.BoolVar(&f.Verbose, "verbose", false, "Enable verbose output")
	fs.BoolVar(&f.Verbose, "v", false, "Enable verbose output (shorthand)")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return cliFlags{}, &usageError{text: usageBuf.String(), help: true}
		}
		return cliFlags{}, &usageError{text: fmt.Sprintf("%v\n\n%s", err, usageBuf.String())}
	}
	if fs.NArg() > 0 {
		return cliFlags{}, fmt.Errorf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}

	f.DataType = strings.TrimSpace(f.DataType)
	switch {
	case f.All && f.DataType != "":
		return cliFlags{}, errors.New("--all and --data-type are mutually exclusive")
	case !f.All && f.DataType == "":
		return cliFlags{}, errors.New("one of --all or --data-type is required")
	}
	return f, nil
}

// newBackend builds the metrics backend selected by DOGE_METRICS_BACKEND.
func newBackend(ctx context.Context, cfg config.Config, runID string) (backendCloser, error) {
	switch strings.ToLower(cfg.MetricsBackend) {
	case "datadog":
		tags := append(datadog.ParseTagsCSV(cfg.MetricsTags), "run_id:"+runID)
		b, err := datadog.NewBackend(ctx, datadog.Options{JobName: jobName, Tags: tags})
		if err != nil {
			return nil, err
		}
		return b, nil
	case "pushgateway":
		var opts []prompush.Option
		for _, tag := range datadog.ParseTagsCSV(cfg.MetricsTags) {
			if k, v, ok := strings.Cut(tag, ":"); ok && k != "" && v != "" {
				opts = append(opts, prompush.WithGrouping(k, v))
			}
		}
		b, err := prompush.NewBackend(jobName, cfg.PushgatewayURL, opts...)
		if err != nil {
			return nil, err
		}
		return pushBackend{b}, nil
	default:
		return nil, nil
	}
}

// pushBackend adapts prompush to backendCloser. The deferred Flush already
// pushed everything, so Close has nothing left to do.
type pushBackend struct{ *prompush.Backend }

func (pushBackend) Close() error { return nil }
