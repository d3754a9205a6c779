package report

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf"
)

const ContentTypePDF = "application/pdf"

// PDFFileName is the download name of a verification's PDF report.
func PDFFileName(verificationID string) string {
	return "kyc-verification-" + verificationID + ".pdf"
}

// ExportPDF renders the report as a one-page A4 summary.
func ExportPDF(r Report) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("KYC Verification "+r.VerificationID, false)
	pdf.SetAuthor("kycflow", false)
	pdf.SetMargins(20, 20, 20)
	pdf.SetAutoPageBreak(true, 20)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 18)
	pdf.CellFormat(0, 10, "KYC Verification Report", "", 1, "C", false, 0, "")
	hr(pdf)
	pdf.Ln(3)

	kvLine(pdf, "Verification ID", r.VerificationID)
	kvLine(pdf, "Status", r.Status)
	kvLine(pdf, "Timestamp", r.Timestamp)
	if r.ScannerType != "" {
		kvLine(pdf, "Scanner", r.ScannerType)
	}
	pdf.Ln(2)
	hr(pdf)

	pdf.SetFont("Helvetica", "B", 13)
	pdf.CellFormat(0, 8, "Documents", "", 1, "L", false, 0, "")
	kvLine(pdf, "Document front", yesNo(r.Documents.DocumentFront))
	kvLine(pdf, "Document back", yesNo(r.Documents.DocumentBack))
	kvLine(pdf, "Selfie", yesNo(r.Documents.Selfie))
	kvLine(pdf, "MRZ scan", yesNo(r.Documents.MRZScan))

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render pdf report: %w", err)
	}
	return buf.Bytes(), nil
}

func kvLine(pdf *gofpdf.Fpdf, key, value string) {
	pdf.SetFont("Helvetica", "B", 11)
	pdf.CellFormat(50, 7, key+":", "", 0, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 11)
	pdf.CellFormat(0, 7, value, "", 1, "L", false, 0, "")
}

func hr(pdf *gofpdf.Fpdf) {
	left, _, right, _ := pdf.GetMargins()
	width, _ := pdf.GetPageSize()
	y := pdf.GetY() + 1
	pdf.Line(left, y, width-right, y)
	pdf.Ln(2)
}

func yesNo(v bool) string {
	if v {
		return "Yes"
	}
	return "No"
}
