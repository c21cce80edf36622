// Package report renders a consultation's medical record as a PDF download.
package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/signintech/gopdf"

	"clinical-scribe/internal/consultation"
)

type Service struct {
	fontPaths []string
}

// NewService takes TTF candidates tried in order until one loads.
func NewService(fontPaths []string) *Service {
	return &Service{fontPaths: fontPaths}
}

func (s *Service) Render(c *consultation.Consultation) ([]byte, error) {
	pdf := gopdf.GoPdf{}
	pdf.Start(gopdf.Config{PageSize: *gopdf.PageSizeA4})
	pdf.AddPage()

	var fontErr error
	fontLoaded := false
	for _, path := range s.fontPaths {
		if err := pdf.AddTTFFont("body", path); err == nil {
			fontLoaded = true
			break
		} else {
			fontErr = err
		}
	}
	if !fontLoaded {
		return nil, fmt.Errorf("no usable report font, last error: %w", fontErr)
	}

	if err := pdf.SetFont("body", "", 18); err != nil {
		return nil, err
	}
	pdf.Cell(nil, "Medical Record")
	pdf.Br(26)

	if err := pdf.SetFont("body", "", 10); err != nil {
		return nil, err
	}
	pdf.Cell(nil, fmt.Sprintf("Consultation: %s", c.ID))
	pdf.Br(14)
	if c.PatientName != nil {
		pdf.Cell(nil, fmt.Sprintf("Patient: %s", *c.PatientName))
		pdf.Br(14)
	}
	pdf.Cell(nil, fmt.Sprintf("Started: %s", c.StartedAt.Format("2006-01-02 15:04")))
	pdf.Br(14)
	if c.EndedAt != nil {
		pdf.Cell(nil, fmt.Sprintf("Ended: %s", c.EndedAt.Format("2006-01-02 15:04")))
		pdf.Br(14)
	}
	pdf.Cell(nil, fmt.Sprintf("Generated: %s", time.Now().Format("2006-01-02 15:04")))
	pdf.Br(22)

	sections := []struct {
		title string
		body  *string
	}{
		{"Clinical Summary", c.Summary},
		{"Anamnesis", c.Anamnesis},
		{"Prescription", c.Prescription},
		{"Suggested Medications", c.SuggestedMedications},
		{"Doctor's Notes", c.DoctorNotes},
	}
	for _, sec := range sections {
		if sec.body == nil || strings.TrimSpace(*sec.body) == "" {
			continue
		}
		if err := s.writeSection(&pdf, sec.title, *sec.body); err != nil {
			return nil, err
		}
	}

	if len(c.SuggestedQuestions) > 0 {
		if err := s.writeSection(&pdf, "Suggested Questions", "- "+strings.Join(c.SuggestedQuestions, "\n- ")); err != nil {
			return nil, err
		}
	}

	return pdf.GetBytesPdf(), nil
}

func (s *Service) writeSection(pdf *gopdf.GoPdf, title, body string) error {
	if err := pdf.SetFont("body", "", 13); err != nil {
		return err
	}
	pdf.Cell(nil, title)
	pdf.Br(16)

	if err := pdf.SetFont("body", "", 10); err != nil {
		return err
	}
	for _, line := range strings.Split(body, "\n") {
		wrapped, err := pdf.SplitTextWithWordWrap(line, gopdf.PageSizeA4.W-2*margin)
		if err != nil {
			// Lines the splitter cannot handle (e.g. empty) render as-is.
			wrapped = []string{line}
		}
		for _, w := range wrapped {
			pdf.Cell(nil, w)
			pdf.Br(12)
		}
	}
	pdf.Br(10)
	return nil
}

const margin = 40.0
