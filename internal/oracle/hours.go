package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// HoursEntry is one extracted day of work.
type HoursEntry struct {
	Date  string          `json:"date"`
	Hours decimal.Decimal `json:"hours"`
}

// HoursExtraction is the structured result of reading a timesheet screenshot.
type HoursExtraction struct {
	Entries    []HoursEntry
	TotalHours decimal.Decimal
	Notes      string
}

// HoursRequest carries one timesheet image plus the billing period the hours
// must fall into. PeriodStart/PeriodEnd are YYYY-MM-DD.
type HoursRequest struct {
	ImageBase64 string
	ImageType   string // MIME type, defaults to image/png
	PeriodStart string
	PeriodEnd   string
}

// HoursExtractor reads per-day work hours out of a timesheet image. The chat
// Extractor handles free-form conversation; this is the narrow fast path the
// quick-invoice flow uses.
type HoursExtractor interface {
	// ExtractHours runs one vision round-trip. A *HoursFailure error means
	// the model looked at the image and reported it could not read the data;
	// any other error is a transport or decoding problem.
	ExtractHours(ctx context.Context, req HoursRequest) (*HoursExtraction, error)
}

// HoursFailure is the model's own "I cannot read this" verdict, as opposed to
// a transport error. The reason is safe to show to the user.
type HoursFailure struct {
	Reason string
}

// Error implements the error interface.
func (e *HoursFailure) Error() string { return e.Reason }

var _ HoursExtractor = (*OpenRouter)(nil)

// ExtractHours implements HoursExtractor on the OpenRouter client. The image
// travels inline as a data URL; temperature is kept very low because the
// output is pure transcription.
func (c *OpenRouter) ExtractHours(ctx context.Context, req HoursRequest) (*HoursExtraction, error) {
	imageType := req.ImageType
	if imageType == "" {
		imageType = "image/png"
	}

	system := buildHoursPrompt(c.now(), req.PeriodStart, req.PeriodEnd)
	user := wireMessage{Role: "user", Content: []wirePart{
		{Type: "image_url", ImageURL: &wireImageURL{
			URL: fmt.Sprintf("data:%s;base64,%s", imageType, req.ImageBase64),
		}},
		{Type: "text", Text: fmt.Sprintf(
			"Extract the work hours from this image for the period %s to %s. Return only JSON.",
			req.PeriodStart, req.PeriodEnd)},
	}}

	raw, err := c.complete(ctx, completionRequest{
		Model:       c.model,
		Messages:    []wireMessage{{Role: "system", Content: system}, user},
		Temperature: 0.1,
		MaxTokens:   2000,
	})
	if err != nil {
		return nil, err
	}
	return ParseHoursExtraction(raw)
}

// buildHoursPrompt assembles the system prompt for one timesheet read. Like
// the extraction prompt it embeds today's date so the model does not guess
// the wrong year.
func buildHoursPrompt(now time.Time, periodStart, periodEnd string) string {
	return fmt.Sprintf(`You are a data extraction assistant. Extract work hours from the image.

Today's date is %s. The billing period is %s to %s.

Extract ALL dates and hours you can see in the image. Return ONLY valid JSON in this format:
{
    "success": true,
    "hours_entries": [
        {"date": "YYYY-MM-DD", "hours": 5.0},
        {"date": "YYYY-MM-DD", "hours": 7.0}
    ],
    "total_hours": 35.0,
    "notes": "Any relevant notes about the extraction"
}

If you cannot extract the data, return:
{
    "success": false,
    "error": "Description of the problem"
}

RULES:
- Include ALL dates in the billing period, even if hours are 0
- Use the year from the billing period dates
- Only include dates within the specified period
- Be precise with decimal hours (5.5, 7.0, etc.)`,
		now.Format("2006-01-02"), periodStart, periodEnd)
}

// wireHours mirrors the JSON the hours prompt instructs the model to emit.
type wireHours struct {
	Success    bool            `json:"success"`
	Entries    []HoursEntry    `json:"hours_entries"`
	TotalHours decimal.Decimal `json:"total_hours"`
	Notes      string          `json:"notes"`
	Error      string          `json:"error"`
}

// ParseHoursExtraction decodes the model output, salvaging the outermost
// {...} block when the JSON is wrapped in prose or code fences (the same
// tolerance ParseExtraction applies). A success:false payload becomes a
// *HoursFailure carrying the model's reason.
func ParseHoursExtraction(raw string) (*HoursExtraction, error) {
	w, ok := tryDecodeHours(raw)
	if !ok {
		start := strings.Index(raw, "{")
		end := strings.LastIndex(raw, "}")
		if start != -1 && end > start {
			w, ok = tryDecodeHours(raw[start : end+1])
		}
	}
	if !ok {
		return nil, fmt.Errorf("hours extraction: unparseable response: %s", truncate(raw, 200))
	}
	if !w.Success {
		reason := w.Error
		if reason == "" {
			reason = "could not extract hours from the image"
		}
		return nil, &HoursFailure{Reason: reason}
	}

	out := &HoursExtraction{
		Entries:    w.Entries,
		TotalHours: w.TotalHours,
		Notes:      w.Notes,
	}
	if out.TotalHours.IsZero() {
		for _, e := range out.Entries {
			out.TotalHours = out.TotalHours.Add(e.Hours)
		}
	}
	return out, nil
}

func tryDecodeHours(s string) (*wireHours, bool) {
	var w wireHours
	if err := json.Unmarshal([]byte(s), &w); err != nil {
		return nil, false
	}
	if !w.Success && w.Error == "" && len(w.Entries) == 0 {
		// Parsed JSON, but not the shape we asked for.
		return nil, false
	}
	return &w, true
}
