package oracle

import (
	"encoding/json"
	"strings"
)

// wireExtraction mirrors the JSON the model is instructed to emit.
type wireExtraction struct {
	Status      string        `json:"status"`
	Question    string        `json:"question"`
	Context     string        `json:"context"`
	InvoiceData *InvoiceDraft `json:"invoice_data"`
}

// ParseExtraction turns raw model output into an Extraction. The model is
// told to emit bare JSON but routinely wraps it in prose or code fences, so
// after a direct parse fails we salvage the outermost {...} block. If no
// JSON can be recovered at all, the whole response becomes a clarification
// question so the conversation keeps moving instead of failing.
func ParseExtraction(raw string) *Extraction {
	if ext, ok := tryDecode(raw); ok {
		return ext
	}

	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start != -1 && end > start {
		if ext, ok := tryDecode(raw[start : end+1]); ok {
			return ext
		}
	}

	return &Extraction{
		Status:   StatusClarification,
		Question: raw,
		Context:  "Could not parse structured response",
	}
}

func tryDecode(s string) (*Extraction, bool) {
	var w wireExtraction
	if err := json.Unmarshal([]byte(s), &w); err != nil {
		return nil, false
	}
	switch ExtractionStatus(w.Status) {
	case StatusReady:
		draft := w.InvoiceData
		if draft == nil {
			draft = &InvoiceDraft{}
		}
		return &Extraction{Status: StatusReady, Draft: draft}, true
	case StatusClarification:
		q := w.Question
		if q == "" {
			q = "Could you provide more details?"
		}
		return &Extraction{Status: StatusClarification, Question: q, Context: w.Context}, true
	default:
		// Parsed JSON without a recognizable status is still unusable.
		return nil, false
	}
}
