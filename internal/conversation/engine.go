// Package conversation runs one chat turn end to end: prompt selection,
// model completion over the session history, durable persistence of the
// exchange, and handoff to background lead extraction.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"

	"github.com/leadgate/leadgate/internal/extract"
	"github.com/leadgate/leadgate/internal/history"
	"github.com/leadgate/leadgate/internal/lead"
)

// fallbackResponseMessage is returned when the model produces an empty response.
const fallbackResponseMessage = "I apologize, but I couldn't generate a response. Please try rephrasing your question."

// defaultModelTimeout bounds a single completion call.
const defaultModelTimeout = 60 * time.Second

// Sentinel errors for turn handling. Handlers map both to a generic 500;
// the distinction matters for logging and for tests.
var (
	// ErrModel indicates the completion call failed; nothing was persisted.
	ErrModel = errors.New("model generation failed")

	// ErrStore indicates the turn log rejected the exchange. The generated
	// text was discarded, so the client may safely resend.
	ErrStore = errors.New("conversation store failed")
)

// TurnLog is the slice of the history store the engine depends on.
type TurnLog interface {
	Turns(ctx context.Context, sessionID string) ([]history.Turn, error)
	AppendExchange(ctx context.Context, sessionID, userText, aiText string) error
}

// Submitter queues an exchange for background lead extraction.
// Submit must never block; it reports whether the job was accepted.
type Submitter interface {
	Submit(job extract.Job) bool
}

// Config contains all required parameters for the Engine.
type Config struct {
	Genkit    *genkit.Genkit
	Turns     TurnLog
	Logger    *slog.Logger
	ModelName string // Provider-qualified model name (e.g. "googleai/gemini-2.5-flash")

	// Extractor is optional; nil disables background lead extraction.
	Extractor Submitter

	// ModelTimeout bounds a single completion call (zero-value uses default).
	ModelTimeout time.Duration
}

// validate checks if all required parameters are present.
func (cfg Config) validate() error {
	if cfg.Genkit == nil {
		return errors.New("genkit instance is required")
	}
	if cfg.Turns == nil {
		return errors.New("turn log is required")
	}
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.ModelName == "" {
		return errors.New("model name is required")
	}
	return nil
}

// Engine handles chat turns. It is stateless and safe for concurrent use;
// all configuration is captured immutably at construction time.
type Engine struct {
	g            *genkit.Genkit
	turns        TurnLog
	extractor    Submitter
	logger       *slog.Logger
	modelName    string
	modelTimeout time.Duration
}

// New creates an Engine with required configuration.
func New(cfg Config) (*Engine, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	timeout := cfg.ModelTimeout
	if timeout <= 0 {
		timeout = defaultModelTimeout
	}

	return &Engine{
		g:            cfg.Genkit,
		turns:        cfg.Turns,
		extractor:    cfg.Extractor,
		logger:       cfg.Logger,
		modelName:    cfg.ModelName,
		modelTimeout: timeout,
	}, nil
}

// HandleTurn runs one chat turn: completes the user's message against the
// session history and persists the human+ai pair atomically. The returned
// text is what the client displays.
//
// Persistence happens only after a successful completion, so a model failure
// leaves the history untouched and the client may resend the same message.
func (e *Engine) HandleTurn(ctx context.Context, input, sessionID string, requestType lead.RequestType) (string, error) {
	prior, err := e.turns.Turns(ctx, sessionID)
	if err != nil {
		return "", fmt.Errorf("%w: loading history: %v", ErrStore, err)
	}

	messages := make([]*ai.Message, 0, len(prior)+1)
	for _, turn := range prior {
		switch turn.Role {
		case history.RoleHuman:
			messages = append(messages, ai.NewUserMessage(ai.NewTextPart(turn.Content)))
		case history.RoleAI:
			messages = append(messages, ai.NewModelMessage(ai.NewTextPart(turn.Content)))
		default:
			e.logger.Warn("skipping turn with unknown role",
				"session_id", sessionID, "role", turn.Role)
		}
	}
	messages = append(messages, ai.NewUserMessage(ai.NewTextPart(input)))

	genCtx, cancel := context.WithTimeout(ctx, e.modelTimeout)
	defer cancel()

	resp, err := genkit.Generate(genCtx, e.g,
		ai.WithModelName(e.modelName),
		ai.WithSystem(systemPrompt(requestType)),
		ai.WithMessages(messages...),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrModel, err)
	}

	responseText := strings.TrimSpace(resp.Text())
	if responseText == "" {
		e.logger.Warn("model returned empty response", "session_id", sessionID)
		responseText = fallbackResponseMessage
	}

	if err := e.turns.AppendExchange(ctx, sessionID, input, responseText); err != nil {
		return "", fmt.Errorf("%w: appending exchange: %v", ErrStore, err)
	}

	if e.extractor != nil {
		accepted := e.extractor.Submit(extract.Job{
			SessionID:   sessionID,
			UserInput:   input,
			BotResponse: responseText,
			RequestType: requestType,
		})
		if !accepted {
			e.logger.Warn("extraction queue full, dropping job", "session_id", sessionID)
		}
	}

	e.logger.Debug("handled turn",
		"session_id", sessionID,
		"request_type", requestType,
		"history_turns", len(prior),
		"response_len", len(responseText),
	)
	return responseText, nil
}
