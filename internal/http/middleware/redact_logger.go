// RedactingLogger is the access logger used in production. Chat messages and
// client records carry real contact details, and those leak into query
// strings and headers more often than anyone intends, so the logger scrubs
// emails, phone numbers, and UUIDs from request metadata before emitting.
// Request and response bodies are never logged.
package middleware

import (
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// RedactOptions configures extra scrub behavior.
//
// MaskHeaders lists additional header names whose values are replaced whole
// with "[REDACTED]". Matching is case-insensitive and merged with the
// built-in set (Authorization, Cookie, Set-Cookie, X-Api-Key).
type RedactOptions struct {
	MaskHeaders []string
}

// RedactingLogger logs one structured line per request with sensitive values
// scrubbed, and stores a request-scoped zerolog.Logger under the "logger"
// context key so handler-side failures (see handlers' 5xx path via
// LoggerFrom) log with the same correlation fields.
//
// Levels follow the response status: error for 5xx, warn for 4xx, info
// otherwise. UUIDs are redacted before phone numbers so the phone pattern
// cannot match the digit runs inside an ID.
func RedactingLogger(opts RedactOptions) gin.HandlerFunc {
	uuidRE := regexp.MustCompile(`(?i)\b[0-9a-f]{8}\-[0-9a-f]{4}\-[1-5][0-9a-f]{3}\-[89ab][0-9a-f]{3}\-[0-9a-f]{12}\b`)
	emailRE := regexp.MustCompile(`(?i)\b[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}\b`)
	// Digits-only phone pattern, so hex segments of an already-redacted UUID
	// are never touched. Matches "+1 212-555-1212", "(212) 555-1212", etc.
	phoneRE := regexp.MustCompile(`\b(?:\+?\d{1,3}[ .-]?)?(?:\(?\d{2,4}\)?[ .-]?)?\d{3,4}[ .-]?\d{4}\b`)

	redact := func(s string) string {
		if s == "" {
			return s
		}
		out := uuidRE.ReplaceAllString(s, "[REDACTED:id]")
		out = emailRE.ReplaceAllString(out, "[REDACTED:email]")
		out = phoneRE.ReplaceAllString(out, "[REDACTED:phone]")
		return out
	}

	// X-Api-Key is built in: it is how the oracle and storage credentials
	// would travel if a proxy ever echoed them back.
	maskHeaders := map[string]struct{}{
		"authorization": {},
		"cookie":        {},
		"set-cookie":    {},
		"x-api-key":     {},
	}
	for _, h := range opts.MaskHeaders {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			maskHeaders[h] = struct{}{}
		}
	}

	return func(c *gin.Context) {
		start := time.Now()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		safeQuery := redact(c.Request.URL.RawQuery)

		safeHeaders := make(map[string]string, len(c.Request.Header))
		for k, vv := range c.Request.Header {
			val := strings.Join(vv, ", ")
			if _, ok := maskHeaders[strings.ToLower(k)]; ok {
				safeHeaders[k] = "[REDACTED]"
				continue
			}
			safeHeaders[k] = redact(val)
		}

		// RequestID() runs earlier in the chain and writes the response
		// header before handlers execute; fall back to the request header
		// when the stack is assembled without it.
		reqID := c.Writer.Header().Get("X-Request-ID")
		if reqID == "" {
			reqID = c.GetHeader("X-Request-ID")
		}

		scoped := log.With().
			Str("request_id", reqID).
			Str("method", c.Request.Method).
			Str("path", path).
			Logger()
		c.Set("logger", &scoped)

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()
		size := c.Writer.Size()

		ev := scoped.Info()
		switch {
		case status >= 500:
			ev = scoped.Error()
		case status >= 400:
			ev = scoped.Warn()
		}

		ev.
			Str("query", safeQuery).
			Int("status", status).
			Int("bytes", size).
			Dur("latency", latency).
			Interface("headers", safeHeaders).
			Msg("http_request")
	}
}
