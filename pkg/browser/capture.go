package browser

import (
	"fmt"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/entrhq/browser-sidecar/pkg/browser/driver"
)

// elementScreenshotTimeout bounds each candidate of an element screenshot.
const elementScreenshotTimeout = 5 * time.Second

var (
	screenshotFormats = []string{"png", "jpeg"}
	pdfFormats        = []string{"Letter", "Legal", "Tabloid", "Ledger", "A0", "A1", "A2", "A3", "A4", "A5", "A6"}
)

// ScreenshotRequest captures the viewport, the full page or one element.
type ScreenshotRequest struct {
	FullPage bool   `json:"full_page,omitempty"`
	Ref      string `json:"ref,omitempty"`
	Selector string `json:"selector,omitempty"`
	Format   string `json:"format,omitempty"`
	Quality  int    `json:"quality,omitempty"`
}

// Validate normalizes the format and checks option combinations.
func (r *ScreenshotRequest) Validate() error {
	r.Format = strings.ToLower(strings.TrimSpace(r.Format))
	if r.Format == "" || r.Format == "jpg" {
		r.Format = lo.Ternary(r.Format == "", "png", "jpeg")
	}
	if !lo.Contains(screenshotFormats, r.Format) {
		return Validationf("format must be png or jpeg")
	}
	if r.Quality < 0 || r.Quality > 100 {
		return Validationf("quality must be between 0 and 100")
	}
	if r.Quality > 0 && r.Format != "jpeg" {
		return Validationf("quality only applies to jpeg screenshots")
	}

	element := r.Ref != "" || r.Selector != ""
	if element && r.FullPage {
		return Validationf("full_page cannot be combined with ref or selector")
	}
	if element && r.Format != "png" {
		return Validationf("element screenshots are always png")
	}
	return nil
}

// Screenshot captures a target and returns its id and the image bytes.
func (s *ProfileSession) Screenshot(targetID string, req ScreenshotRequest) (string, []byte, error) {
	id, tab, err := s.Tab(targetID)
	if err != nil {
		return "", nil, err
	}

	if req.Ref == "" && req.Selector == "" {
		data, err := tab.Screenshot(driver.ScreenshotOptions{FullPage: req.FullPage, Format: req.Format, Quality: req.Quality})
		if err != nil {
			return id, nil, fmt.Errorf("screenshot: %w", err)
		}
		return id, data, nil
	}

	_, candidates, err := s.resolveCandidates(id, req.Ref, req.Selector)
	if err != nil {
		return id, nil, err
	}
	var attempts []Attempt
	for _, sel := range candidates {
		data, err := tab.Locator(sel).Screenshot(elementScreenshotTimeout)
		if err == nil {
			return id, data, nil
		}
		attempts = append(attempts, Attempt{Method: MethodSelector, Selector: sel, Error: err.Error()})
	}
	return id, nil, &ActionExhaustionError{Kind: "screenshot", Attempts: attempts}
}

// PDFRequest renders the target as a PDF document.
type PDFRequest struct {
	Format          string `json:"format,omitempty"`
	Landscape       bool   `json:"landscape,omitempty"`
	PrintBackground bool   `json:"print_background,omitempty"`
}

// Validate normalizes the paper format.
func (r *PDFRequest) Validate() error {
	if strings.TrimSpace(r.Format) == "" {
		r.Format = "A4"
		return nil
	}
	for _, f := range pdfFormats {
		if strings.EqualFold(f, strings.TrimSpace(r.Format)) {
			r.Format = f
			return nil
		}
	}
	return Validationf("format must be one of %s", strings.Join(pdfFormats, ", "))
}

// PDF renders a target and returns its id and the document bytes.
func (s *ProfileSession) PDF(targetID string, req PDFRequest) (string, []byte, error) {
	id, tab, err := s.Tab(targetID)
	if err != nil {
		return "", nil, err
	}
	data, err := tab.PDF(driver.PDFOptions{Format: req.Format, Landscape: req.Landscape, PrintBackground: req.PrintBackground})
	if err != nil {
		return id, nil, fmt.Errorf("pdf: %w", err)
	}
	return id, data, nil
}
