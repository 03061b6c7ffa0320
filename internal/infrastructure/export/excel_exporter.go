package export

import (
	"context"
	"fmt"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/garyjia/agency-ops/internal/domain/entity"
)

const (
	sheetName     = "Invoice"
	lineItemStart = 10
	dateLayout    = "2006-01-02"
)

// ExcelConfig configures the spreadsheet layout
type ExcelConfig struct {
	CompanyName string
	// TemplatePath, when set, is an .xlsx whose first sheet receives the cells
	TemplatePath string
}

// ExcelExporter renders invoices as .xlsx workbooks
type ExcelExporter struct {
	config ExcelConfig
	logger *zap.Logger
}

// NewExcelExporter creates a new Excel exporter
func NewExcelExporter(config ExcelConfig, logger *zap.Logger) *ExcelExporter {
	return &ExcelExporter{config: config, logger: logger}
}

// ContentType returns the MIME type of the generated document
func (e *ExcelExporter) ContentType() string {
	return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
}

// Extension returns the file extension including the dot
func (e *ExcelExporter) Extension() string {
	return ".xlsx"
}

// Export writes the invoice header, one row per line item and the total
func (e *ExcelExporter) Export(ctx context.Context, invoice *entity.Invoice, project *entity.Project) ([]byte, error) {
	if invoice == nil || project == nil {
		return nil, fmt.Errorf("invoice and project are required")
	}

	f, sheet, err := e.open()
	if err != nil {
		return nil, err
	}
	defer f.Close()

	// Header block
	e.setCell(f, sheet, "A1", e.config.CompanyName)
	e.setCell(f, sheet, "A3", "Invoice")
	e.setCell(f, sheet, "B3", invoice.InvoiceNumber)
	e.setCell(f, sheet, "A4", "Project")
	e.setCell(f, sheet, "B4", project.Name)
	e.setCell(f, sheet, "A5", "Issue date")
	e.setCell(f, sheet, "B5", invoice.IssueDate.Format(dateLayout))
	e.setCell(f, sheet, "A6", "Due date")
	e.setCell(f, sheet, "B6", invoice.DueDate.Format(dateLayout))
	e.setCell(f, sheet, "A7", "Status")
	e.setCell(f, sheet, "B7", string(invoice.Status))

	// Line item table
	for col, title := range []string{"Description", "Hours", "Rate", "Total"} {
		cell, _ := excelize.CoordinatesToCellName(col+1, lineItemStart-1)
		e.setCell(f, sheet, cell, title)
	}

	row := lineItemStart
	for _, item := range invoice.Metadata.LineItems {
		e.setRow(f, sheet, row, item.Description, item.Quantity, item.UnitAmount, item.Total)
		row++
	}

	totalRow := row + 1
	e.setCell(f, sheet, fmt.Sprintf("C%d", totalRow), "Total")
	e.setCell(f, sheet, fmt.Sprintf("D%d", totalRow), invoice.Amount)

	if invoice.Metadata.Notes != "" {
		e.setCell(f, sheet, fmt.Sprintf("A%d", totalRow+2), invoice.Metadata.Notes)
	}

	if style, err := f.NewStyle(&excelize.Style{NumFmt: 2}); err == nil {
		_ = f.SetCellStyle(sheet, fmt.Sprintf("C%d", lineItemStart), fmt.Sprintf("D%d", totalRow), style)
	}
	_ = f.SetColWidth(sheet, "A", "A", 48)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}

	e.logger.Info("Invoice exported",
		zap.String("invoice_number", invoice.InvoiceNumber),
		zap.Int("line_items", len(invoice.Metadata.LineItems)))

	return buf.Bytes(), nil
}

// open returns the workbook and the sheet to fill
func (e *ExcelExporter) open() (*excelize.File, string, error) {
	if e.config.TemplatePath != "" {
		f, err := excelize.OpenFile(e.config.TemplatePath)
		if err != nil {
			return nil, "", fmt.Errorf("failed to open template: %w", err)
		}
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			f.Close()
			return nil, "", fmt.Errorf("template has no sheets")
		}
		return f, sheets[0], nil
	}

	f := excelize.NewFile()
	if err := f.SetSheetName(f.GetSheetName(0), sheetName); err != nil {
		f.Close()
		return nil, "", fmt.Errorf("failed to name sheet: %w", err)
	}
	return f, sheetName, nil
}

func (e *ExcelExporter) setRow(f *excelize.File, sheet string, row int, values ...interface{}) {
	for i, v := range values {
		cell, err := excelize.CoordinatesToCellName(i+1, row)
		if err != nil {
			continue
		}
		e.setCell(f, sheet, cell, v)
	}
}

func (e *ExcelExporter) setCell(f *excelize.File, sheet, cell string, value interface{}) {
	if err := f.SetCellValue(sheet, cell, value); err != nil {
		e.logger.Warn("Failed to set cell value",
			zap.String("sheet", sheet),
			zap.String("cell", cell),
			zap.Error(err))
	}
}
