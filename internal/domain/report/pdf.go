// Package report renders a scan record as a printable medical report and
// saves it upstream once per record.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	"github.com/phpdave11/gofpdf"

	"github.com/animus/animus/internal/domain/gate"
	"github.com/animus/animus/internal/domain/scan"
)

const Disclaimer = "Disclaimer: This report is generated by an AI-powered health monitoring system and is for " +
	"informational purposes only. It is not a substitute for professional medical advice, diagnosis, or " +
	"treatment. Always seek the advice of your physician or other qualified health provider with any " +
	"questions you may have regarding a medical condition."

// Patient is shown in the report header.
type Patient struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

var defaultPatient = Patient{Name: "Animus User", Email: "user@example.com"}

// PatientFrom reads name and email from a profile document, either at the
// top level or under "user". Missing values fall back to the defaults.
func PatientFrom(profile json.RawMessage) Patient {
	p := defaultPatient
	if len(profile) == 0 {
		return p
	}
	var doc struct {
		Patient
		User *Patient `json:"user"`
	}
	if err := json.Unmarshal(profile, &doc); err != nil {
		return p
	}
	src := doc.Patient
	if doc.User != nil {
		src = *doc.User
	}
	if strings.TrimSpace(src.Name) != "" {
		p.Name = src.Name
	}
	if strings.TrimSpace(src.Email) != "" {
		p.Email = src.Email
	}
	return p
}

// Document is everything one report shows.
type Document struct {
	Record         scan.Record
	Patient        Patient
	Classification *gate.Classification
	PersistedEntry string
	GeneratedAt    time.Time
}

// Render writes the report as PDF to w.
func Render(w io.Writer, doc Document) error {
	pdf := build(doc)
	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("write pdf: %w", err)
	}
	return nil
}

func build(doc Document) *gofpdf.Fpdf {
	rec := doc.Record
	a := rec.Analysis
	generated := doc.GeneratedAt
	if generated.IsZero() {
		generated = time.Now().UTC()
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(14, 14, 14)
	pdf.SetAutoPageBreak(true, 14)
	pdf.SetTitle("Animus - Medical Report", false)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 16)
	pdf.CellFormat(0, 9, "Medical Report", "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 10)
	pdf.SetTextColor(60, 60, 60)
	pdf.CellFormat(0, 6, "Generated at: "+generated.Format("2006-01-02 15:04:05 MST"), "", 1, "L", false, 0, "")
	pdf.Ln(2)

	sectionTitle(pdf, "Patient Information")
	kv(pdf, "Name", doc.Patient.Name)
	kv(pdf, "Email", doc.Patient.Email)
	pdf.Ln(2)

	sectionTitle(pdf, "Scan Details")
	kv(pdf, "Scan Type", rec.Type.DisplayName())
	kv(pdf, "Date of Scan", fmtDate(rec.Date))
	kv(pdf, "Scan ID", rec.ID)
	kv(pdf, "Raw Data", rawData(rec.Data))
	pdf.Ln(2)

	sectionTitle(pdf, "AI Analysis Findings")
	kv(pdf, "Summary", firstNonEmpty(a.Summary, a.Analysis, a.Headline()))
	kv(pdf, "Possible Conditions", firstNonEmpty(strings.Join(a.TopConditions, ", "), a.ScanDetails))
	kv(pdf, "Insights", firstNonEmpty(a.Insights, a.Suggestions))
	kv(pdf, "AI Confidence", fmt.Sprintf("%d%%", int(math.Round(a.Confidence*100))))
	pdf.Ln(2)

	if cls := doc.Classification; cls != nil {
		sectionTitle(pdf, "Recommendations & Urgency")
		u := cls.Urgency
		if u == scan.UrgencyNone {
			u = a.Urgency
		}
		r, g, b := urgencyRGB(u)
		pdf.SetTextColor(r, g, b)
		kvColored(pdf, "Urgency", string(u))
		kv(pdf, "Recommendations", string(cls.Recommendations))
		if doc.PersistedEntry != "" {
			pdf.SetFont("Helvetica", "B", 10)
			pdf.SetTextColor(192, 57, 43)
			pdf.MultiCell(0, 5, "This result has been saved to your medical history.", "", "L", false)
		}
		pdf.Ln(2)
	}

	pdf.SetFont("Helvetica", "I", 8)
	pdf.SetTextColor(110, 110, 110)
	pdf.MultiCell(0, 4, Disclaimer, "", "L", false)
	return pdf
}

func sectionTitle(pdf *gofpdf.Fpdf, title string) {
	pdf.SetFont("Helvetica", "B", 12)
	pdf.SetTextColor(20, 20, 20)
	pdf.CellFormat(0, 7, title, "", 1, "L", false, 0, "")
}

func kv(pdf *gofpdf.Fpdf, key, value string) {
	pdf.SetTextColor(20, 20, 20)
	kvColored(pdf, key, value)
}

// kvColored prints value in the current text color.
func kvColored(pdf *gofpdf.Fpdf, key, value string) {
	if strings.TrimSpace(value) == "" {
		value = "-"
	}
	r, g, b := pdf.GetTextColor()
	pdf.SetFont("Helvetica", "B", 10)
	pdf.SetTextColor(20, 20, 20)
	pdf.CellFormat(42, 5.2, key+":", "", 0, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 10)
	pdf.SetTextColor(r, g, b)
	pdf.MultiCell(0, 5.2, safeText(value), "", "L", false)
}

func urgencyRGB(u scan.Urgency) (int, int, int) {
	switch scan.UrgencyColor(u) {
	case scan.ColorGreen:
		return 39, 174, 96
	case scan.ColorAmber:
		return 230, 126, 34
	case scan.ColorRed:
		return 192, 57, 43
	default:
		return 20, 20, 20
	}
}

func rawData(p scan.Payload) string {
	switch d := p.(type) {
	case scan.VitalsData:
		return fmt.Sprintf("BP %s/%s mmHg, HR %s bpm, SpO2 %s%%, Temp %s",
			num(d.BPSystolic), num(d.BPDiastolic), num(d.HeartRate), num(d.O2), num(d.Temperature))
	case scan.SymptomData:
		return d.Symptoms
	case scan.CardiacData:
		return d.Diagnosis
	case nil:
		return ""
	default:
		return scan.ImageURL(p)
	}
}

func num(f float64) string {
	if f == 0 {
		return "-"
	}
	return fmt.Sprintf("%g", f)
}

func fmtDate(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format("2006-01-02 15:04")
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// safeText flattens whitespace and replaces characters the core fonts cannot
// draw with '?'.
func safeText(s string) string {
	s = strings.NewReplacer("\r", " ", "\n", " ", "\t", " ").Replace(s)
	s = strings.TrimSpace(s)
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= 32 && r <= 126 {
			b.WriteRune(r)
		} else {
			b.WriteRune('?')
		}
	}
	return b.String()
}
