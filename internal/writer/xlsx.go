package writer

import (
	"context"
	"fmt"
	"os"

	"github.com/xuri/excelize/v2"

	"dogeexport/internal/transformer"
)

func init() {
	Register(EngineExcelizeStream, streamEngine{})
	Register(EngineExcelize, workbookEngine{})
}

// defaultWorkbookSheet is the sheet excelize.NewFile creates.
const defaultWorkbookSheet = "Sheet1"

// streamEngine writes rows through excelize's StreamWriter, which keeps memory
// flat for large categories.
type streamEngine struct{}

func (streamEngine) Ext() string { return ".xlsx" }

func (streamEngine) Write(ctx context.Context, path, sheet string, t transformer.Table) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := renameDefaultSheet(f, sheet); err != nil {
		return err
	}
	headerStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("header style: %w", err)
	}

	sw, err := f.NewStreamWriter(sheet)
	if err != nil {
		return fmt.Errorf("stream writer: %w", err)
	}
	if err := sw.SetPanes(&excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"}); err != nil {
		return fmt.Errorf("freeze header: %w", err)
	}

	header := make([]interface{}, len(t.Columns))
	for i, c := range t.Columns {
		header[i] = excelize.Cell{StyleID: headerStyle, Value: c}
	}
	if err := sw.SetRow("A1", header); err != nil {
		return fmt.Errorf("header row: %w", err)
	}

	for i, row := range t.Rows {
		if i%1000 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := sw.SetRow(cell, row); err != nil {
			return fmt.Errorf("row %d: %w", i+1, err)
		}
	}
	if err := sw.Flush(); err != nil {
		return fmt.Errorf("flush: %w", err)
	}
	return saveWorkbook(f, path)
}

// workbookEngine builds the whole sheet in memory with SetSheetRow. Slower than
// streaming, but it does not depend on rows arriving in order.
type workbookEngine struct{}

func (workbookEngine) Ext() string { return ".xlsx" }

func (workbookEngine) Write(ctx context.Context, path, sheet string, t transformer.Table) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := renameDefaultSheet(f, sheet); err != nil {
		return err
	}

	header := make([]interface{}, len(t.Columns))
	for i, c := range t.Columns {
		header[i] = c
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("header row: %w", err)
	}
	for i := range t.Rows {
		if i%1000 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &t.Rows[i]); err != nil {
			return fmt.Errorf("row %d: %w", i+1, err)
		}
	}
	return saveWorkbook(f, path)
}

func renameDefaultSheet(f *excelize.File, sheet string) error {
	if sheet == defaultWorkbookSheet {
		return nil
	}
	if err := f.SetSheetName(defaultWorkbookSheet, sheet); err != nil {
		return fmt.Errorf("sheet name %q: %w", sheet, err)
	}
	return nil
}

// saveWorkbook writes through f.Write rather than SaveAs, since the target is a
// temp file whose name has no .xlsx extension.
func saveWorkbook(f *excelize.File, path string) error {
	out, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := f.Write(out); err != nil {
		_ = out.Close()
		return fmt.Errorf("save workbook: %w", err)
	}
	return out.Close()
}
