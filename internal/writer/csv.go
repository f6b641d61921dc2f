package writer

import (
	"bufio"
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"time"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"dogeexport/internal/transformer"
)

func init() {
	Register(EngineCSV, csvEngine{})
}

// csvEngine is the last-resort fallback. Output is UTF-8 with a byte order mark
// so spreadsheet applications detect the encoding.
type csvEngine struct{}

func (csvEngine) Ext() string { return ".csv" }

func (csvEngine) Write(ctx context.Context, path, _ string, t transformer.Table) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}

	bw := bufio.NewWriter(f)
	tw := transform.NewWriter(bw, unicode.UTF8BOM.NewEncoder())
	cw := csv.NewWriter(tw)

	werr := func() error {
		if err := cw.Write(t.Columns); err != nil {
			return err
		}
		rec := make([]string, len(t.Columns))
		for i, row := range t.Rows {
			if i%1000 == 0 {
				if err := ctx.Err(); err != nil {
					return err
				}
			}
			for j := range rec {
				rec[j] = ""
				if j < len(row) {
					rec[j] = FormatCell(row[j])
				}
			}
			if err := cw.Write(rec); err != nil {
				return fmt.Errorf("row %d: %w", i+1, err)
			}
		}
		cw.Flush()
		if err := cw.Error(); err != nil {
			return err
		}
		if err := tw.Close(); err != nil {
			return err
		}
		return bw.Flush()
	}()

	closeErr := f.Close()
	if werr != nil {
		return werr
	}
	return closeErr
}

// FormatCell renders a cell value as text for delimited output.
func FormatCell(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case int:
		return strconv.Itoa(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case time.Time:
		if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 && t.Nanosecond() == 0 {
			return t.Format("2006-01-02")
		}
		return t.Format("2006-01-02 15:04:05")
	default:
		return fmt.Sprint(t)
	}
}
