package report

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"
)

// PDFOptions tweaks the rendered repair report.
type PDFOptions struct {
	Title string
	// QRSize is the QR code edge in millimetres. Zero uses 30; negative
	// disables the code.
	QRSize float64
}

// SavePDF renders the report into a PDF file.
func SavePDF(rep DecodeReport, out string, opts PDFOptions) error {
	pdf, err := buildPDF(rep, opts)
	if err != nil {
		return err
	}
	return pdf.OutputFileAndClose(out)
}

// WritePDF renders the report to w.
func WritePDF(rep DecodeReport, w io.Writer, opts PDFOptions) error {
	pdf, err := buildPDF(rep, opts)
	if err != nil {
		return err
	}
	return pdf.Output(w)
}

func buildPDF(rep DecodeReport, opts PDFOptions) (*gofpdf.Fpdf, error) {
	title := opts.Title
	if title == "" {
		title = "Inmarsat Repair Report"
	}
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle(title, false)
	pdf.SetAuthor("readinmarsat", false)
	pdf.SetCreator("readinmarsat", false)
	pdf.SetMargins(15, 20, 15)
	pdf.SetAutoPageBreak(true, 20)
	pdf.AddPage()

	if err := addQRCode(pdf, rep.InputSHA256, opts.QRSize); err != nil {
		return nil, err
	}
	addPDFTitle(pdf, title)
	addSummarySection(pdf, rep)
	addInsertionsSection(pdf, rep.Insertions)
	addMessagesSection(pdf, rep.Messages)
	addRejectedSection(pdf, rep.Rejected)

	if pdf.Err() {
		return nil, pdf.Error()
	}
	return pdf, nil
}

func addQRCode(pdf *gofpdf.Fpdf, hash string, size float64) error {
	if size < 0 || hash == "" {
		return nil
	}
	if size == 0 {
		size = 30
	}
	png, err := HashToQR(hash, 256)
	if err != nil {
		return err
	}
	const name = "input-sha256"
	pdf.RegisterImageOptionsReader(name, gofpdf.ImageOptions{ImageType: "PNG"}, bytes.NewReader(png))
	pageW, _ := pdf.GetPageSize()
	_, _, right, _ := pdf.GetMargins()
	pdf.ImageOptions(name, pageW-right-size, 12, size, size, false, gofpdf.ImageOptions{ImageType: "PNG"}, 0, "")
	return nil
}

func addPDFTitle(pdf *gofpdf.Fpdf, title string) {
	pdf.SetFont("Helvetica", "B", 18)
	pdf.Cell(0, 10, title)
	pdf.Ln(12)
}

func addSummarySection(pdf *gofpdf.Fpdf, rep DecodeReport) {
	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 8, "Summary")
	pdf.Ln(8)

	pdf.SetFont("Helvetica", "", 11)
	items := []struct {
		label string
		value string
	}{
		{label: "Source", value: emptyFallback(rep.Source, "-")},
		{label: "Input SHA-256", value: shortHash(rep.InputSHA256)},
		{label: "Generated", value: rep.GeneratedAt.Format(time.RFC3339)},
		{label: "Padding Strategy", value: emptyFallback(rep.Padding, "-")},
		{label: "Input Bytes", value: strconv.Itoa(rep.Summary.InputBytes)},
		{label: "Repaired Bytes", value: strconv.Itoa(rep.Summary.RepairedBytes)},
		{label: "Markers", value: strconv.Itoa(rep.Summary.Markers)},
		{label: "Messages", value: strconv.Itoa(rep.Summary.Messages)},
		{label: "Rejected", value: strconv.Itoa(rep.Summary.Rejected)},
		{label: "Bytes Inserted", value: strconv.Itoa(rep.Summary.Inserted)},
	}
	for _, item := range items {
		pdf.CellFormat(50, 6, item.label, "", 0, "L", false, 0, "")
		pdf.CellFormat(0, 6, item.value, "", 1, "L", false, 0, "")
	}
	pdf.Ln(4)
}

func addInsertionsSection(pdf *gofpdf.Fpdf, rows []InsertionRow) {
	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 8, "Insertions")
	pdf.Ln(9)

	if len(rows) == 0 {
		pdf.SetFont("Helvetica", "", 11)
		pdf.MultiCell(0, 6, "Input needed no repair.", "", "L", false)
		pdf.Ln(2)
		return
	}

	headers := []string{"Corrector", "Marker", "Offset", "Fill"}
	widths := []float64{60, 35, 35, 50}
	renderTableHeader(pdf, widths, headers)
	pdf.SetFont("Helvetica", "", 9)
	for _, row := range rows {
		renderTableRow(pdf, widths, []string{
			row.Corrector,
			strconv.Itoa(row.Marker),
			strconv.Itoa(row.Offset),
			row.Fill,
		}, 5)
	}
	pdf.Ln(4)
}

func addMessagesSection(pdf *gofpdf.Fpdf, msgs []MessageRow) {
	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 8, "Messages")
	pdf.Ln(9)

	if len(msgs) == 0 {
		pdf.SetFont("Helvetica", "", 11)
		pdf.MultiCell(0, 6, "Not an inmarsat message.", "", "L", false)
		return
	}

	for i, m := range msgs {
		pdf.SetFont("Helvetica", "B", 10)
		pdf.MultiCell(0, 5, fmt.Sprintf("%d. %s ref %d at offset %d", i+1, m.Type, m.RefNo, m.Offset), "", "L", false)
		pdf.SetFont("Helvetica", "", 9)
		pdf.MultiCell(0, 4, strings.Join(m.Header, "  "), "", "L", false)
		if len(m.Body) > 0 {
			pdf.MultiCell(0, 4, strings.Join(m.Body, "  "), "", "L", false)
		} else {
			pdf.MultiCell(0, 4, "No BODY", "", "L", false)
		}
		pdf.Ln(2)
	}
}

func addRejectedSection(pdf *gofpdf.Fpdf, rows []RejectedRow) {
	if len(rows) == 0 {
		return
	}
	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 8, "Rejected")
	pdf.Ln(9)

	widths := []float64{25, 30, 125}
	renderTableHeader(pdf, widths, []string{"Offset", "Stage", "Error"})
	pdf.SetFont("Helvetica", "", 9)
	for _, row := range rows {
		renderTableRow(pdf, widths, []string{strconv.Itoa(row.Offset), row.Stage, row.Error}, 5)
	}
}

func renderTableHeader(pdf *gofpdf.Fpdf, widths []float64, headers []string) {
	pdf.SetFillColor(240, 240, 240)
	pdf.SetFont("Helvetica", "B", 10)
	for i, h := range headers {
		pdf.CellFormat(widths[i], 7, h, "1", 0, "L", true, 0, "")
	}
	pdf.Ln(-1)
}

func renderTableRow(pdf *gofpdf.Fpdf, widths []float64, values []string, lineHeight float64) {
	xStart := pdf.GetX()
	yStart := pdf.GetY()
	maxLines := 1
	splitCols := make([][]string, len(values))
	for i, val := range values {
		lines := pdf.SplitText(emptyFallback(val, "-"), widths[i]-2)
		if len(lines) == 0 {
			lines = []string{""}
		}
		splitCols[i] = lines
		if len(lines) > maxLines {
			maxLines = len(lines)
		}
	}
	x := xStart
	for i, lines := range splitCols {
		pdf.SetXY(x, yStart)
		pdf.MultiCell(widths[i], lineHeight, strings.Join(lines, "\n"), "1", "L", false)
		x += widths[i]
	}
	pdf.SetXY(xStart, yStart+float64(maxLines)*lineHeight)
}

func shortHash(h string) string {
	if len(h) > 16 {
		return h[:16] + "..."
	}
	return emptyFallback(h, "-")
}

func emptyFallback(val, fallback string) string {
	if strings.TrimSpace(val) == "" {
		return fallback
	}
	return val
}
