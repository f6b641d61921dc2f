// Package writer persists transformed tables as spreadsheet files.
//
// A Writer tries engines in order (the configured one, then the excelize
// engines) and falls back to CSV when none succeeds. Every attempt goes to a
// temp file in the output directory that is renamed into place on success, so a
// failed engine never leaves a partial file behind.
package writer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"dogeexport/internal/transformer"
)

// Built-in engine names.
const (
	EngineExcelizeStream = "excelize-stream"
	EngineExcelize       = "excelize"
	EngineCSV            = "csv"
)

// TimestampLayout is appended to file names as "_" + now.Format(TimestampLayout).
const TimestampLayout = "20060102_150405"

// DefaultSheet is used when the caller passes an empty sheet name.
const DefaultSheet = "Data"

// Config holds the Writer defaults.
type Config struct {
	OutputDir        string
	IncludeTimestamp bool
	// Engine is the preferred engine name; unknown names are skipped with a warning.
	Engine string
	Logger *slog.Logger
	// Now is the clock used for file name timestamps. Defaults to time.Now.
	Now func() time.Time
}

// Options override Config for a single Write call.
type Options struct {
	OutputDir string
	// Timestamp, when non-nil, overrides Config.IncludeTimestamp.
	Timestamp *bool
}

// Writer writes tables to files. It is safe for sequential use only.
type Writer struct {
	cfg   Config
	log   *slog.Logger
	now   func() time.Time
	chain []string
}

// New returns a Writer.
func New(cfg Config) *Writer {
	w := &Writer{cfg: cfg, log: cfg.Logger, now: cfg.Now}
	if w.log == nil {
		w.log = slog.New(slog.DiscardHandler)
	}
	if w.now == nil {
		w.now = time.Now
	}
	w.chain = buildChain(cfg.Engine)
	return w
}

// Chain returns the engine names tried for a write, in order and deduplicated.
// The CSV fallback is always last.
func (w *Writer) Chain() []string {
	return append([]string(nil), w.chain...)
}

func buildChain(preferred string) []string {
	var out []string
	seen := map[string]bool{}
	for _, name := range []string{preferred, EngineExcelizeStream, EngineExcelize, EngineCSV} {
		name = strings.TrimSpace(name)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	return out
}

// Write saves t as base[_YYYYMMDD_HHMMSS].ext in the output directory and
// returns the path actually written.
//
// Edge cases:
//   - an empty table writes nothing and returns "", nil (a warning is logged)
//   - an empty sheet name becomes DefaultSheet; other names are sanitized to
//     spreadsheet rules
//
// Errors:
//   - the output directory cannot be created
//   - every engine in Chain failed (errors from all attempts are joined)
func (w *Writer) Write(ctx context.Context, t transformer.Table, base, sheet string, opts Options) (string, error) {
	if t.Empty() {
		w.log.Warn("no data to save", "file", base)
		return "", nil
	}

	dir := w.cfg.OutputDir
	if opts.OutputDir != "" {
		dir = opts.OutputDir
	}
	if dir == "" {
		dir = "."
	}
	stamp := w.cfg.IncludeTimestamp
	if opts.Timestamp != nil {
		stamp = *opts.Timestamp
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("writer: create output dir %q: %w", dir, err)
	}

	name := base
	if stamp {
		name += "_" + w.now().Format(TimestampLayout)
	}
	sheet = SanitizeSheetName(sheet)

	var errs []error
	for _, engineName := range w.chain {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		eng, ok := Lookup(engineName)
		if !ok {
			w.log.Warn("spreadsheet engine not registered", "engine", engineName)
			errs = append(errs, fmt.Errorf("engine %q not registered", engineName))
			continue
		}

		path := filepath.Join(dir, name+eng.Ext())
		start := time.Now()
		if err := writeAtomic(ctx, eng, path, sheet, t); err != nil {
			w.log.Warn("spreadsheet engine failed", "engine", engineName, "file", path, "err", err)
			errs = append(errs, fmt.Errorf("engine %q: %w", engineName, err))
			continue
		}

		if engineName == EngineCSV && len(errs) > 0 {
			w.log.Warn("saved as CSV fallback", "file", path)
		}
		w.log.Info("saved file",
			"file", path,
			"engine", engineName,
			"rows", t.Len(),
			"columns", len(t.Columns),
			"took", time.Since(start),
		)
		return path, nil
	}

	err := fmt.Errorf("writer: all engines failed for %s: %w", name, errors.Join(errs...))
	w.log.Error("failed to save file", "file", name, "err", err)
	return "", err
}

// writeAtomic lets eng write into a temp file next to path and renames it into
// place on success.
func writeAtomic(ctx context.Context, eng Engine, path, sheet string, t transformer.Table) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".dogeexport-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}

	if err := eng.Write(ctx, tmpName, sheet, t); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return nil
}

// MaxSheetNameLen is Excel's sheet name limit in characters.
const MaxSheetNameLen = 31

// SanitizeSheetName makes name acceptable as a worksheet name: the characters
// : \ / ? * [ ] become '_', leading and trailing apostrophes are dropped, and the
// result is cut to MaxSheetNameLen characters.
func SanitizeSheetName(name string) string {
	name = strings.Map(func(r rune) rune {
		switch r {
		case ':', '\\', '/', '?', '*', '[', ']':
			return '_'
		}
		return r
	}, strings.TrimSpace(name))
	name = strings.Trim(name, "'")

	if r := []rune(name); len(r) > MaxSheetNameLen {
		name = strings.TrimRight(string(r[:MaxSheetNameLen]), "'")
	}
	if name == "" {
		return DefaultSheet
	}
	return name
}
