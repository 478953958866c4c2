// Package export writes table snapshots to spreadsheet files for handoff
// outside the tool.
package export

import (
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/talent-ops/intake-cli/internal/model"
)

// DefaultSheetName is the sheet the snapshot is written to.
const DefaultSheetName = "候補者一覧"

// WriteXLSX writes the snapshot as a single-sheet workbook at path. The
// first row is the header, id and timestamp first, then the schema columns
// in order.
func WriteXLSX(path string, snap model.Snapshot, sheetName string) error {
	if sheetName == "" {
		sheetName = DefaultSheetName
	}

	f := xlsx.NewFile()
	sheet, err := f.AddSheet(sheetName)
	if err != nil {
		return eris.Wrapf(err, "export: add sheet %s", sheetName)
	}

	header := sheet.AddRow()
	for _, col := range snap.Header() {
		header.AddCell().SetString(col)
	}

	for _, rec := range snap.Rows {
		row := sheet.AddRow()
		row.AddCell().SetString(strconv.Itoa(rec.ID))
		row.AddCell().SetString(rec.Timestamp)
		for _, col := range snap.Columns {
			row.AddCell().SetString(rec.Get(col))
		}
	}

	if err := f.Save(path); err != nil {
		return eris.Wrapf(err, "export: save %s", path)
	}
	return nil
}
