package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/lshimizu/invoice-chat-backend/internal/config"
)

// OpenRouter is the production Extractor. It speaks the OpenAI
// chat-completions wire format against the OpenRouter gateway.
type OpenRouter struct {
	apiKey  string
	model   string
	baseURL string
	httpc   *http.Client

	// now is swappable for tests (the system prompt embeds today's date).
	now func() time.Time
}

var _ Extractor = (*OpenRouter)(nil)

// NewOpenRouter builds a client from config. The HTTP timeout bounds one
// whole completion round-trip.
func NewOpenRouter(cfg config.OracleConfig) *OpenRouter {
	return &OpenRouter{
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		httpc:   &http.Client{Timeout: cfg.Timeout},
		now:     time.Now,
	}
}

// --- OpenAI chat-completions wire types ---

type wireMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"` // string or []wirePart
}

type wirePart struct {
	Type     string        `json:"type"`
	Text     string        `json:"text,omitempty"`
	ImageURL *wireImageURL `json:"image_url,omitempty"`
}

type wireImageURL struct {
	URL string `json:"url"`
}

type completionRequest struct {
	Model       string        `json:"model"`
	Messages    []wireMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type completionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Extract implements Extractor. Low temperature keeps the structured output
// stable; malformed model output degrades via ParseExtraction rather than
// erroring.
func (c *OpenRouter) Extract(ctx context.Context, req Request) (*Extraction, error) {
	system := buildExtractionPrompt(c.now(), req.ClientContext, req.CurrentPreviewJSON, req.SessionInvoices)

	msgs := make([]wireMessage, 0, len(req.History)+2)
	msgs = append(msgs, wireMessage{Role: "system", Content: system})
	for _, h := range req.History {
		msgs = append(msgs, wireMessage{Role: h.Role, Content: enrichHistoryContent(h)})
	}
	msgs = append(msgs, userMessage(req.Message, req.ImageURLs))

	raw, err := c.complete(ctx, completionRequest{
		Model:       c.model,
		Messages:    msgs,
		Temperature: 0.3,
		MaxTokens:   2000,
	})
	if err != nil {
		return nil, err
	}
	return ParseExtraction(raw), nil
}

// userMessage builds the final user turn; with images attached it becomes a
// multimodal parts array (images first, text last, as the extraction prompt
// expects).
func userMessage(text string, imageURLs []string) wireMessage {
	if len(imageURLs) == 0 {
		return wireMessage{Role: "user", Content: text}
	}
	parts := make([]wirePart, 0, len(imageURLs)+1)
	for _, u := range imageURLs {
		parts = append(parts, wirePart{Type: "image_url", ImageURL: &wireImageURL{URL: u}})
	}
	parts = append(parts, wirePart{Type: "text", Text: text})
	return wireMessage{Role: "user", Content: parts}
}

// enrichHistoryContent annotates a prior turn with its preview summary and
// image count so the model can resolve references to earlier drafts.
func enrichHistoryContent(h HistoryMessage) string {
	content := h.Content
	if h.PreviewJSON != "" {
		var p struct {
			ClientName    string      `json:"client_name"`
			TotalAmount   json.Number `json:"total_amount"`
			InvoiceNumber string      `json:"invoice_number"`
		}
		if err := json.Unmarshal([]byte(h.PreviewJSON), &p); err == nil {
			name := p.ClientName
			if name == "" {
				name = "Unknown"
			}
			num := p.InvoiceNumber
			if num == "" {
				num = "N/A"
			}
			total := p.TotalAmount.String()
			if total == "" {
				total = "0"
			}
			content += fmt.Sprintf("\n[PREVIEW: %s - $%s, Invoice #%s]", name, total, num)
		}
	}
	if n := len(h.ImageURLs); n > 0 {
		content += fmt.Sprintf("\n[%d image(s) attached]", n)
	}
	return content
}

// complete performs one chat-completions POST and returns the assistant text.
func (c *OpenRouter) complete(ctx context.Context, body completionRequest) (string, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return "", err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpc.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("oracle request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("oracle response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("oracle status %d: %s", resp.StatusCode, truncate(string(data), 300))
	}

	var out completionResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return "", fmt.Errorf("oracle decode: %w", err)
	}
	if out.Error != nil {
		return "", fmt.Errorf("oracle error: %s", out.Error.Message)
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("oracle returned no choices")
	}
	return out.Choices[0].Message.Content, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
