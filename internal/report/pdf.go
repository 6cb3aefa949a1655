package report

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"
)

// SaveSummaryPDF renders a run summary. When the output digest is known a
// QR code of it is placed beside the title.
func SaveSummaryPDF(s Summary, out string) error {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("OCL Filter Run", false)
	pdf.SetAuthor("oclctl", false)
	pdf.SetCreator("oclctl", false)
	pdf.SetMargins(15, 20, 15)
	pdf.SetAutoPageBreak(true, 20)
	pdf.AddPage()

	addPDFTitle(pdf, "OCL Filter Run")
	if err := addDigestQR(pdf, s.OutputSHA256); err != nil {
		return err
	}
	addRunSection(pdf, s)
	addTotalsSection(pdf, s)
	addCountTable(pdf, "Bottom Depth Sources", "Source", s.BottomSources)
	addCountTable(pdf, "Rejections", "Reason", s.Rejections)

	if pdf.Err() {
		return pdf.Error()
	}
	return pdf.OutputFileAndClose(out)
}

func addPDFTitle(pdf *gofpdf.Fpdf, title string) {
	pdf.SetFont("Helvetica", "B", 18)
	pdf.Cell(0, 10, title)
	pdf.Ln(12)
}

func addDigestQR(pdf *gofpdf.Fpdf, digest string) error {
	if sanitizeDigest(digest) == "" {
		return nil
	}
	png, err := DigestToQR(digest, 256)
	if err != nil {
		return err
	}
	opts := gofpdf.ImageOptions{ImageType: "PNG"}
	pdf.RegisterImageOptionsReader("digest-qr", opts, bytes.NewReader(png))
	pageW, _ := pdf.GetPageSize()
	_, _, right, _ := pdf.GetMargins()
	pdf.ImageOptions("digest-qr", pageW-right-30, 15, 30, 30, false, opts, 0, "")
	return nil
}

func addRunSection(pdf *gofpdf.Fpdf, s Summary) {
	addHeading(pdf, "Run")
	items := []struct {
		label string
		value string
	}{
		{"Run ID", emptyFallback(s.RunID, "-")},
		{"Input", emptyFallback(s.Input, "-")},
		{"Output", emptyFallback(s.Output, "-")},
		{"Started", formatTime(s.StartedAt)},
		{"Finished", formatTime(s.FinishedAt)},
		{"Status", statusLabel(s.Error)},
	}
	pdf.SetFont("Helvetica", "", 11)
	for _, item := range items {
		pdf.CellFormat(40, 6, item.label, "", 0, "L", false, 0, "")
		pdf.MultiCell(0, 6, item.value, "", "L", false)
	}
	if s.OutputSHA256 != "" {
		pdf.SetFont("Courier", "", 8)
		pdf.MultiCell(0, 4, "sha256 "+s.OutputSHA256, "", "L", false)
	}
	pdf.Ln(4)
}

func addTotalsSection(pdf *gofpdf.Fpdf, s Summary) {
	addHeading(pdf, "Totals")
	rows := [][]string{
		{"Stations", fmt.Sprintf("%d / %d", s.OutputStations, s.TotalStations)},
		{"Bytes", fmt.Sprintf("%d / %d", s.OutputBytes, s.TotalBytes)},
		{"Skipped", strconv.FormatInt(s.SkippedStations, 10)},
		{"Rejected", strconv.FormatInt(s.RejectedStations, 10)},
		{"Truncated profiles", strconv.FormatInt(s.TruncatedProfile, 10)},
		{"Flagged levels", strconv.FormatInt(s.FlaggedLevels, 10)},
	}
	if d := s.BottomDepth; d != nil {
		rows = append(rows,
			[]string{"Bottom depth range", fmt.Sprintf("%.1f - %.1f m (%d stations)", d.Min, d.Max, d.Count)},
			[]string{"Bottom depth mean", fmt.Sprintf("%.1f m (sd %.1f)", d.Mean, d.StdDev)},
		)
	}
	widths := []float64{60, 100}
	pdf.SetFont("Helvetica", "", 10)
	for _, row := range rows {
		renderTableRow(pdf, widths, row, 6)
	}
	pdf.Ln(4)
}

func addCountTable(pdf *gofpdf.Fpdf, title, keyHeader string, counts map[string]int64) {
	if len(counts) == 0 {
		return
	}
	addHeading(pdf, title)
	widths := []float64{60, 40}
	pdf.SetFillColor(240, 240, 240)
	pdf.SetFont("Helvetica", "B", 10)
	for i, h := range []string{keyHeader, "Stations"} {
		pdf.CellFormat(widths[i], 7, h, "1", 0, "L", true, 0, "")
	}
	pdf.Ln(-1)

	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pdf.SetFont("Helvetica", "", 9)
	for _, k := range keys {
		renderTableRow(pdf, widths, []string{k, strconv.FormatInt(counts[k], 10)}, 5)
	}
	pdf.Ln(4)
}

func addHeading(pdf *gofpdf.Fpdf, title string) {
	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 8, title)
	pdf.Ln(9)
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

func statusLabel(errText string) string {
	if errText == "" {
		return "COMPLETE"
	}
	return "FAILED: " + errText
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format(time.RFC3339)
}

func emptyFallback(val, fallback string) string {
	if strings.TrimSpace(val) == "" {
		return fallback
	}
	return val
}
