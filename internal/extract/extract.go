// Package extract pulls contact details out of chat exchanges in the
// background. Extraction is best-effort: failures are logged and never
// surface to the chat path, and the merge rules in the lead store guarantee
// that a weak extraction can't erase data a stronger one already captured.
package extract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"

	"github.com/leadgate/leadgate/internal/lead"
)

// maxExtractResponseBytes limits LLM response size before JSON parsing (10 KB).
const maxExtractResponseBytes = 10 * 1024

// defaultExtractTimeout bounds a single extraction completion call.
const defaultExtractTimeout = 30 * time.Second

// salesExtractionPrompt extracts full contact details from a single user
// message. %s placeholder: the message.
const salesExtractionPrompt = `You are a contact information extraction system. Analyze the following user message from a sales chat and extract any contact details the user provided about THEMSELVES.

User message: "%s"

Rules:
1. Only extract information the user is clearly providing about themselves
2. Do not extract names or details of other people mentioned in conversation
3. Do not guess or infer values that are not stated
4. Use empty strings for fields that are not present

Respond ONLY with valid JSON in this exact format:
{"contact_name": "", "email": "", "mobile": "", "country": ""}

Examples:
- "I'm John Smith, reach me at john@acme.com" → {"contact_name": "John Smith", "email": "john@acme.com", "mobile": "", "country": ""}
- "my number is +65 8123 4567" → {"contact_name": "", "email": "", "mobile": "+65 8123 4567", "country": ""}
- "what are your prices?" → {"contact_name": "", "email": "", "mobile": "", "country": ""}

Analyze the message and respond:`

// genericExtractionPrompt detects self-introductions in a single user
// message. %s placeholder: the message.
const genericExtractionPrompt = `You are a name detection assistant. Analyze the following user message and determine if the user is introducing themselves or providing their name.

User message: "%s"

Rules:
1. Only detect when the user is clearly providing THEIR OWN name
2. Don't extract names of other people mentioned in conversation
3. Don't extract names from phrases like "My name is not..." or "I don't want to give my name"
4. Look for patterns like: "I'm [Name]", "My name is [Name]", "Call me [Name]", "I go by [Name]", etc.

Respond ONLY with valid JSON in this exact format:
{"name_detected": true/false, "contact_name": "extracted name here or empty string"}

Examples:
- "Hi, I'm John Smith" → {"name_detected": true, "contact_name": "John Smith"}
- "My name is Sarah" → {"name_detected": true, "contact_name": "Sarah"}
- "John called me yesterday" → {"name_detected": false, "contact_name": ""}
- "What's the weather like?" → {"name_detected": false, "contact_name": ""}

Analyze the message and respond:`

// Job carries one completed exchange into the extraction pipeline.
type Job struct {
	SessionID   string
	UserInput   string
	BotResponse string
	RequestType lead.RequestType
}

// LeadStore is the slice of the lead store the pipeline depends on.
type LeadStore interface {
	LockRequestType(ctx context.Context, sessionID string, requestType lead.RequestType) error
	SaveExtraction(ctx context.Context, sessionID string, ex lead.Extraction, requestType lead.RequestType) error
}

// Config contains all required parameters for the Pipeline.
type Config struct {
	Genkit    *genkit.Genkit
	Leads     LeadStore
	Logger    *slog.Logger
	ModelName string

	// Timeout bounds a single extraction completion (zero-value uses default).
	Timeout time.Duration
}

// Pipeline runs the extraction steps for one exchange.
//
// Pipeline is stateless and safe for concurrent use.
type Pipeline struct {
	g         *genkit.Genkit
	leads     LeadStore
	logger    *slog.Logger
	modelName string
	timeout   time.Duration
}

// NewPipeline creates a Pipeline with required configuration.
func NewPipeline(cfg Config) (*Pipeline, error) {
	if cfg.Genkit == nil {
		return nil, errors.New("genkit instance is required")
	}
	if cfg.Leads == nil {
		return nil, errors.New("lead store is required")
	}
	if cfg.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if cfg.ModelName == "" {
		return nil, errors.New("model name is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultExtractTimeout
	}

	return &Pipeline{
		g:         cfg.Genkit,
		leads:     cfg.Leads,
		logger:    cfg.Logger,
		modelName: cfg.ModelName,
		timeout:   timeout,
	}, nil
}

// Run processes one exchange. Errors are logged, never returned; the chat
// path must not observe extraction failures.
func (p *Pipeline) Run(ctx context.Context, job Job) {
	// Settle the classification on an existing record first. Sessions
	// without a record are untouched here; a record only appears once
	// SaveExtraction has contact details to store, and it carries the
	// classification itself.
	if err := p.leads.LockRequestType(ctx, job.SessionID, job.RequestType); err != nil {
		p.logger.Warn("locking request type", "session_id", job.SessionID, "error", err)
	}

	ex, ok := p.extract(ctx, job)
	if !ok {
		return
	}

	ex.Metadata = map[string]any{
		"info_detected_from_message": job.UserInput,
		"detection_method":           "llm",
		"detection_timestamp":        time.Now().UTC().Format(time.RFC3339),
	}

	if err := p.leads.SaveExtraction(ctx, job.SessionID, ex, job.RequestType); err != nil {
		p.logger.Warn("saving extraction", "session_id", job.SessionID, "error", err)
		return
	}
	p.logger.Debug("saved extraction",
		"session_id", job.SessionID,
		"request_type", job.RequestType,
	)
}

// extract runs the completion and parses the result. ok is false when the
// message yielded nothing worth saving.
func (p *Pipeline) extract(ctx context.Context, job Job) (lead.Extraction, bool) {
	var prompt string
	if job.RequestType == lead.RequestTypeSales {
		prompt = fmt.Sprintf(salesExtractionPrompt, job.UserInput)
	} else {
		prompt = fmt.Sprintf(genericExtractionPrompt, job.UserInput)
	}

	genCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	resp, err := genkit.Generate(genCtx, p.g,
		ai.WithModelName(p.modelName),
		ai.WithPrompt(prompt),
	)
	if err != nil {
		p.logger.Warn("extraction completion failed", "session_id", job.SessionID, "error", err)
		return lead.Extraction{}, false
	}

	text := resp.Text()
	var ex lead.Extraction
	if job.RequestType == lead.RequestTypeSales {
		ex, err = parseSalesResponse(text)
	} else {
		ex, err = parseGenericResponse(text)
	}
	if err != nil {
		// Malformed model output means "nothing detected", not a failure.
		p.logger.Debug("unparseable extraction response",
			"session_id", job.SessionID, "error", err)
		return lead.Extraction{}, false
	}

	if !sufficient(ex, job.RequestType) {
		p.logger.Debug("extraction found nothing to save", "session_id", job.SessionID)
		return lead.Extraction{}, false
	}
	return ex, true
}

// salesResult is the JSON shape the sales prompt asks for.
type salesResult struct {
	ContactName string `json:"contact_name"`
	Email       string `json:"email"`
	Mobile      string `json:"mobile"`
	Country     string `json:"country"`
}

// genericResult is the JSON shape the generic prompt asks for.
type genericResult struct {
	NameDetected bool   `json:"name_detected"`
	ContactName  string `json:"contact_name"`
}

// parseSalesResponse parses the sales extraction JSON.
func parseSalesResponse(text string) (lead.Extraction, error) {
	raw, err := prepareJSON(text)
	if err != nil {
		return lead.Extraction{}, err
	}
	var r salesResult
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		return lead.Extraction{}, fmt.Errorf("parsing sales extraction: %w (raw: %q)", err, truncate(raw, 200))
	}
	return lead.Extraction{
		ContactName: strings.TrimSpace(r.ContactName),
		Email:       strings.TrimSpace(r.Email),
		Mobile:      strings.TrimSpace(r.Mobile),
		Country:     strings.TrimSpace(r.Country),
	}, nil
}

// parseGenericResponse parses the name detection JSON. A negative detection
// yields an empty extraction, which sufficient() rejects.
func parseGenericResponse(text string) (lead.Extraction, error) {
	raw, err := prepareJSON(text)
	if err != nil {
		return lead.Extraction{}, err
	}
	var r genericResult
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		return lead.Extraction{}, fmt.Errorf("parsing name detection: %w (raw: %q)", err, truncate(raw, 200))
	}
	if !r.NameDetected {
		return lead.Extraction{}, nil
	}
	return lead.Extraction{ContactName: strings.TrimSpace(r.ContactName)}, nil
}

// prepareJSON trims, size-caps, and unfences model output before parsing.
func prepareJSON(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", errors.New("empty extraction response")
	}
	if len(text) > maxExtractResponseBytes {
		return "", fmt.Errorf("extraction response too large: %d bytes", len(text))
	}
	return stripCodeFences(text), nil
}

// sufficient reports whether the extraction carries enough to persist.
// Sales needs at least one contact field; generic needs a detected name.
func sufficient(ex lead.Extraction, requestType lead.RequestType) bool {
	if requestType == lead.RequestTypeSales {
		return !ex.Empty()
	}
	return ex.ContactName != ""
}

// stripCodeFences removes ```json ... ``` wrapping from LLM output.
func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx != -1 {
			s = s[idx+1:]
		}
		if idx := strings.LastIndex(s, "```"); idx != -1 {
			s = s[:idx]
		}
		s = strings.TrimSpace(s)
	}
	return s
}

// truncate shortens s to at most n bytes for logging.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
