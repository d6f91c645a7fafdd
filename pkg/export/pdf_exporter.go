package export

import (
	"bytes"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/jung-kurt/gofpdf"
)

const (
	rowHeight    = 6.0
	headerHeight = 8.0
	minColumn    = 12.0
	// mmPerRune approximates the width of one character at the body font size.
	mmPerRune = 1.6
)

// Document is the framing printed around a PDF table.
type Document struct {
	Title   string
	Summary []string
	// Highlight, when set, shades the rows it returns true for.
	Highlight func(row []string) bool
}

// PDFExporter renders a Dataset as an A4 table.
type PDFExporter struct{}

// NewPDFExporter constructs a PDF exporter.
func NewPDFExporter() *PDFExporter {
	return &PDFExporter{}
}

// Render prints the title, the summary lines and the table. Tables wider than six columns
// are printed in landscape; column widths follow their longest cell, and the header row is
// repeated on every page. Pages are numbered in the footer.
func (e *PDFExporter) Render(data Dataset, doc Document) ([]byte, error) {
	if len(data.Headers) == 0 {
		return nil, fmt.Errorf("pdf requires at least one header")
	}
	orientation, width := "P", 190.0
	if len(data.Headers) > 6 {
		orientation, width = "L", 277.0
	}
	pdf := gofpdf.New(orientation, "mm", "A4", "")
	pdf.SetMargins(10, 15, 10)
	pdf.SetAutoPageBreak(false, 15)
	pdf.AliasNbPages("")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetFooterFunc(func() {
		pdf.SetY(-12)
		pdf.SetFont("Arial", "I", 7)
		pdf.CellFormat(0, 5, fmt.Sprintf("Page %d/{nb}", pdf.PageNo()), "", 0, "R", false, 0, "")
	})
	pdf.AddPage()

	if doc.Title != "" {
		pdf.SetFont("Arial", "B", 14)
		pdf.CellFormat(0, 10, tr(strings.ToUpper(doc.Title)), "", 1, "C", false, 0, "")
		pdf.Ln(2)
	}
	if len(doc.Summary) > 0 {
		pdf.SetFont("Arial", "", 9)
		for _, line := range doc.Summary {
			pdf.CellFormat(0, 5, tr(line), "", 1, "", false, 0, "")
		}
		pdf.Ln(3)
	}

	widths := columnWidths(data, width)
	header := func() {
		pdf.SetFont("Arial", "B", 8)
		pdf.SetFillColor(220, 220, 220)
		for i, h := range data.Headers {
			pdf.CellFormat(widths[i], headerHeight, tr(h), "1", 0, "C", true, 0, "")
		}
		pdf.Ln(-1)
		pdf.SetFont("Arial", "", 7)
	}
	header()

	_, pageHeight := pdf.GetPageSize()
	_, _, _, bottom := pdf.GetMargins()
	pdf.SetFillColor(253, 226, 226)
	for _, row := range data.Rows {
		if pdf.GetY()+rowHeight > pageHeight-bottom {
			pdf.AddPage()
			header()
			pdf.SetFillColor(253, 226, 226)
		}
		fill := doc.Highlight != nil && doc.Highlight(row)
		for i, cell := range row {
			pdf.CellFormat(widths[i], rowHeight, tr(fit(cell, widths[i])), "1", 0, "", fill, 0, "")
		}
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

// columnWidths shares total between the columns in proportion to their longest cell,
// with no column narrower than minColumn.
func columnWidths(data Dataset, total float64) []float64 {
	longest := make([]float64, len(data.Headers))
	for i, h := range data.Headers {
		longest[i] = float64(utf8.RuneCountInString(h))
	}
	for _, row := range data.Rows {
		for i, cell := range row {
			if n := float64(utf8.RuneCountInString(cell)); n > longest[i] {
				longest[i] = n
			}
		}
	}
	var sum float64
	for _, n := range longest {
		sum += n
	}
	widths := make([]float64, len(longest))
	if sum == 0 {
		for i := range widths {
			widths[i] = total / float64(len(widths))
		}
		return widths
	}

	spare := total - minColumn*float64(len(widths))
	if spare < 0 {
		spare = 0
	}
	for i, n := range longest {
		widths[i] = minColumn + spare*n/sum
	}
	return widths
}

// fit truncates cell with an ellipsis when it cannot fit in width millimetres.
func fit(cell string, width float64) string {
	max := int(width / mmPerRune)
	if max < 2 || utf8.RuneCountInString(cell) <= max {
		return cell
	}
	runes := []rune(cell)
	return string(runes[:max-1]) + "~"
}
