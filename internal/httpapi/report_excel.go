package httpapi

import (
	"bytes"
	"fmt"
	"time"

	"fisio-telemetry/internal/models"

	"github.com/xuri/excelize/v2"
)

// SampleSheetHeader 采样表表头
var SampleSheetHeader = []string{
	"Time Of Reading",
	"Flex Measurement",
	"EMG Measurement",
}

// CommentSheetHeader 备注表表头
var CommentSheetHeader = []string{
	"Timestamp",
	"Comment",
}

// GenerateSessionReport 生成会话报表 Excel：
// Summary（汇总指标）、Samples（全部采样）、Comments（备注）三个工作表
func GenerateSessionReport(summary *models.SessionSummary, records []models.PersistedRecord, comments []models.Comment) ([]byte, error) {
	f := excelize.NewFile()
	// Note: Don't defer Close() here, because WriteTo needs the file to be open

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{
			Bold: true,
		},
		Fill: excelize.Fill{
			Type:    "pattern",
			Color:   []string{"#E6F3FF"},
			Pattern: 1,
		},
		Alignment: &excelize.Alignment{
			Horizontal: "center",
			Vertical:   "center",
		},
	})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	if err := writeSummarySheet(f, headerStyle, summary); err != nil {
		f.Close()
		return nil, err
	}
	if err := writeSamplesSheet(f, headerStyle, records); err != nil {
		f.Close()
		return nil, err
	}
	if err := writeCommentsSheet(f, headerStyle, comments); err != nil {
		f.Close()
		return nil, err
	}

	// 删除默认的 Sheet1
	f.DeleteSheet("Sheet1")

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write excel file: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("failed to close excel file: %w", err)
	}
	return buf.Bytes(), nil
}

func writeSummarySheet(f *excelize.File, headerStyle int, summary *models.SessionSummary) error {
	const sheetName = "Summary"
	index, err := f.NewSheet(sheetName)
	if err != nil {
		return fmt.Errorf("failed to create sheet %s: %w", sheetName, err)
	}
	f.SetActiveSheet(index)

	topFlex := ""
	for i, v := range summary.TopFlexValues {
		if i > 0 {
			topFlex += ", "
		}
		topFlex += fmt.Sprintf("%.2f", v)
	}

	rows := [][]any{
		{"Session ID", summary.SessionID},
		{"Max Flex", summary.MaxFlex},
		{"Max EMG", summary.MaxEmg},
		{"Top Flex Values", topFlex},
		{"Duration (s)", summary.Duration},
		{"Sample Count", summary.SampleCount},
	}
	for rowIdx, row := range rows {
		for colIdx, value := range row {
			cell, err := excelize.CoordinatesToCellName(colIdx+1, rowIdx+1)
			if err != nil {
				return fmt.Errorf("failed to convert coordinates: %w", err)
			}
			if err := f.SetCellValue(sheetName, cell, value); err != nil {
				return fmt.Errorf("failed to set cell %s: %w", cell, err)
			}
			if colIdx == 0 {
				if err := f.SetCellStyle(sheetName, cell, cell, headerStyle); err != nil {
					return fmt.Errorf("failed to set cell style: %w", err)
				}
			}
		}
	}

	if err := f.SetColWidth(sheetName, "A", "A", 20); err != nil {
		return fmt.Errorf("failed to set column width: %w", err)
	}
	if err := f.SetColWidth(sheetName, "B", "B", 40); err != nil {
		return fmt.Errorf("failed to set column width: %w", err)
	}
	return nil
}

func writeSamplesSheet(f *excelize.File, headerStyle int, records []models.PersistedRecord) error {
	const sheetName = "Samples"
	if _, err := f.NewSheet(sheetName); err != nil {
		return fmt.Errorf("failed to create sheet %s: %w", sheetName, err)
	}

	if err := writeHeaderRow(f, sheetName, headerStyle, SampleSheetHeader); err != nil {
		return err
	}

	for rowIdx, rec := range records {
		row := rowIdx + 2
		values := []any{
			rec.TimeOfReading.Format(time.RFC3339Nano),
			rec.FlexMeasurement,
			rec.EmgMeasurement,
		}
		for colIdx, value := range values {
			cell, err := excelize.CoordinatesToCellName(colIdx+1, row)
			if err != nil {
				return fmt.Errorf("failed to convert coordinates: %w", err)
			}
			if err := f.SetCellValue(sheetName, cell, value); err != nil {
				return fmt.Errorf("failed to set cell %s: %w", cell, err)
			}
		}
	}

	if err := f.SetColWidth(sheetName, "A", "A", 32); err != nil {
		return fmt.Errorf("failed to set column width: %w", err)
	}
	if err := f.SetColWidth(sheetName, "B", "C", 18); err != nil {
		return fmt.Errorf("failed to set column width: %w", err)
	}
	return nil
}

func writeCommentsSheet(f *excelize.File, headerStyle int, comments []models.Comment) error {
	const sheetName = "Comments"
	if _, err := f.NewSheet(sheetName); err != nil {
		return fmt.Errorf("failed to create sheet %s: %w", sheetName, err)
	}

	if err := writeHeaderRow(f, sheetName, headerStyle, CommentSheetHeader); err != nil {
		return err
	}

	for rowIdx, c := range comments {
		row := rowIdx + 2
		values := []any{
			c.Timestamp.Format(time.RFC3339Nano),
			c.Comment,
		}
		for colIdx, value := range values {
			cell, err := excelize.CoordinatesToCellName(colIdx+1, row)
			if err != nil {
				return fmt.Errorf("failed to convert coordinates: %w", err)
			}
			if err := f.SetCellValue(sheetName, cell, value); err != nil {
				return fmt.Errorf("failed to set cell %s: %w", cell, err)
			}
		}
	}

	if err := f.SetColWidth(sheetName, "A", "A", 32); err != nil {
		return fmt.Errorf("failed to set column width: %w", err)
	}
	if err := f.SetColWidth(sheetName, "B", "B", 60); err != nil {
		return fmt.Errorf("failed to set column width: %w", err)
	}
	return nil
}

func writeHeaderRow(f *excelize.File, sheetName string, headerStyle int, headers []string) error {
	for col, header := range headers {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return fmt.Errorf("failed to convert coordinates: %w", err)
		}
		if err := f.SetCellValue(sheetName, cell, header); err != nil {
			return fmt.Errorf("failed to set header cell %s: %w", cell, err)
		}
		if err := f.SetCellStyle(sheetName, cell, cell, headerStyle); err != nil {
			return fmt.Errorf("failed to set header style: %w", err)
		}
	}
	return nil
}
