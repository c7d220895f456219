package infra

import (
	"fmt"
	"io"

	"blendpos-ledger/internal/dto"

	"github.com/xuri/excelize/v2"
)

const historySheet = "Sessions"

var historyHeadings = []string{
	"Session ID", "Scope", "Status", "Opened by", "Opened at", "Opening balance",
	"Closed by", "Closed at", "Expected", "Counted", "Variance", "Variance %", "Class", "Notes",
}

// WriteSessionsXLSX writes one row per caja session into a workbook streamed to w.
func WriteSessionsXLSX(w io.Writer, sessions []dto.CajaSessionResponse) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", historySheet); err != nil {
		return fmt.Errorf("xlsx: rename sheet: %w", err)
	}

	for i, h := range historyHeadings {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(historySheet, cell, h); err != nil {
			return fmt.Errorf("xlsx: heading: %w", err)
		}
	}

	for i, s := range sessions {
		values := []interface{}{
			s.ID,
			s.Scope,
			s.Status,
			s.OpenedBy,
			s.OpenedAt,
			s.OpeningBalance.InexactFloat64(),
			deref(s.ClosedBy),
			deref(s.ClosedAt),
			nil, nil, nil, nil, "",
			deref(s.Notes),
		}
		if s.ClosingBalanceExpected != nil {
			values[8] = s.ClosingBalanceExpected.InexactFloat64()
		}
		if s.ClosingBalanceCounted != nil {
			values[9] = s.ClosingBalanceCounted.InexactFloat64()
		}
		if s.Variance != nil {
			values[10] = s.Variance.Amount.InexactFloat64()
			values[11] = s.Variance.Percentage.InexactFloat64()
			values[12] = s.Variance.Classification
		}

		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(historySheet, cell, &values); err != nil {
			return fmt.Errorf("xlsx: row %d: %w", i+2, err)
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("xlsx: write: %w", err)
	}
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
