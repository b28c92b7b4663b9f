package conversation

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leadgate/leadgate/internal/extract"
	"github.com/leadgate/leadgate/internal/history"
	"github.com/leadgate/leadgate/internal/lead"
	"github.com/leadgate/leadgate/internal/testutil"
)

// fakeTurnLog is an in-memory TurnLog.
type fakeTurnLog struct {
	mu        sync.Mutex
	turns     map[string][]history.Turn
	turnsErr  error
	appendErr error
}

func newFakeTurnLog() *fakeTurnLog {
	return &fakeTurnLog{turns: make(map[string][]history.Turn)}
}

func (f *fakeTurnLog) Turns(_ context.Context, sessionID string) ([]history.Turn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.turnsErr != nil {
		return nil, f.turnsErr
	}
	return append([]history.Turn{}, f.turns[sessionID]...), nil
}

func (f *fakeTurnLog) AppendExchange(_ context.Context, sessionID, userText, aiText string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.appendErr != nil {
		return f.appendErr
	}
	seq := len(f.turns[sessionID])
	f.turns[sessionID] = append(f.turns[sessionID],
		history.Turn{SessionID: sessionID, Role: history.RoleHuman, Content: userText, SequenceNumber: seq + 1},
		history.Turn{SessionID: sessionID, Role: history.RoleAI, Content: aiText, SequenceNumber: seq + 2},
	)
	return nil
}

// fakeSubmitter records submitted extraction jobs.
type fakeSubmitter struct {
	mu     sync.Mutex
	jobs   []extract.Job
	reject bool
}

func (f *fakeSubmitter) Submit(job extract.Job) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.reject {
		return false
	}
	f.jobs = append(f.jobs, job)
	return true
}

func newTestEngine(t *testing.T, mock *testutil.MockLLM, turns TurnLog, sub Submitter) *Engine {
	t.Helper()
	g := testutil.NewTestGenkit(t)
	mock.RegisterModel(g)

	e, err := New(Config{
		Genkit:    g,
		Turns:     turns,
		Logger:    testutil.DiscardLogger(),
		ModelName: "mock/test-model",
		Extractor: sub,
	})
	require.NoError(t, err)
	return e
}

func TestEngine_HandleTurn(t *testing.T) {
	mock := testutil.NewMockLLM("fallback")
	mock.AddResponse("hours", "We are open 9 to 5 on weekdays.")

	turns := newFakeTurnLog()
	sub := &fakeSubmitter{}
	e := newTestEngine(t, mock, turns, sub)

	text, err := e.HandleTurn(context.Background(), "what are your hours?", "s1", lead.RequestTypeGeneric)
	require.NoError(t, err)
	assert.Equal(t, "We are open 9 to 5 on weekdays.", text)

	// The exchange was persisted as an atomic human+ai pair.
	stored, err := turns.Turns(context.Background(), "s1")
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.Equal(t, history.RoleHuman, stored[0].Role)
	assert.Equal(t, "what are your hours?", stored[0].Content)
	assert.Equal(t, history.RoleAI, stored[1].Role)

	// The exchange was handed to extraction.
	require.Len(t, sub.jobs, 1)
	assert.Equal(t, "s1", sub.jobs[0].SessionID)
	assert.Equal(t, "what are your hours?", sub.jobs[0].UserInput)
	assert.Equal(t, lead.RequestTypeGeneric, sub.jobs[0].RequestType)
}

func TestEngine_HandleTurn_PromptVariants(t *testing.T) {
	mock := testutil.NewMockLLM("ok")
	turns := newFakeTurnLog()
	e := newTestEngine(t, mock, turns, nil)

	_, err := e.HandleTurn(context.Background(), "hello", "s1", lead.RequestTypeSales)
	require.NoError(t, err)
	_, err = e.HandleTurn(context.Background(), "hello", "s2", lead.RequestTypeGeneric)
	require.NoError(t, err)

	calls := mock.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, salesSystemPrompt, calls[0].System)
	assert.Equal(t, genericSystemPrompt, calls[1].System)
}

func TestEngine_HandleTurn_HistoryFlowsToModel(t *testing.T) {
	mock := testutil.NewMockLLM("ok")
	turns := newFakeTurnLog()
	require.NoError(t, turns.AppendExchange(context.Background(), "s1", "first question", "first answer"))

	e := newTestEngine(t, mock, turns, nil)
	_, err := e.HandleTurn(context.Background(), "second question", "s1", lead.RequestTypeGeneric)
	require.NoError(t, err)

	calls := mock.Calls()
	require.Len(t, calls, 1)
	// The latest user message is the new input, not the stored history.
	assert.Equal(t, "second question", calls[0].UserMessage)
}

func TestEngine_HandleTurn_EmptyResponseFallback(t *testing.T) {
	mock := testutil.NewMockLLM("   ")
	turns := newFakeTurnLog()
	e := newTestEngine(t, mock, turns, nil)

	text, err := e.HandleTurn(context.Background(), "hello", "s1", lead.RequestTypeGeneric)
	require.NoError(t, err)
	assert.Equal(t, fallbackResponseMessage, text)

	// The fallback, not the empty string, is what gets persisted.
	stored, _ := turns.Turns(context.Background(), "s1")
	require.Len(t, stored, 2)
	assert.Equal(t, fallbackResponseMessage, stored[1].Content)
}

func TestEngine_HandleTurn_HistoryLoadFailure(t *testing.T) {
	mock := testutil.NewMockLLM("ok")
	turns := newFakeTurnLog()
	turns.turnsErr = errors.New("connection refused")

	e := newTestEngine(t, mock, turns, nil)
	_, err := e.HandleTurn(context.Background(), "hello", "s1", lead.RequestTypeGeneric)
	assert.ErrorIs(t, err, ErrStore)
	assert.Empty(t, mock.Calls(), "model must not be called when history is unavailable")
}

func TestEngine_HandleTurn_AppendFailure(t *testing.T) {
	mock := testutil.NewMockLLM("generated text")
	turns := newFakeTurnLog()
	turns.appendErr = errors.New("connection refused")
	sub := &fakeSubmitter{}

	e := newTestEngine(t, mock, turns, sub)
	_, err := e.HandleTurn(context.Background(), "hello", "s1", lead.RequestTypeGeneric)
	assert.ErrorIs(t, err, ErrStore)

	// Nothing persisted and nothing extracted: the client may resend.
	stored, _ := turns.Turns(context.Background(), "s1")
	assert.Empty(t, stored)
	assert.Empty(t, sub.jobs)
}

func TestEngine_HandleTurn_ModelFailureLeavesHistoryUntouched(t *testing.T) {
	turns := newFakeTurnLog()
	g := testutil.NewTestGenkit(t)
	// No model registered under the configured name: Generate fails.
	e, err := New(Config{
		Genkit:    g,
		Turns:     turns,
		Logger:    testutil.DiscardLogger(),
		ModelName: "mock/absent-model",
	})
	require.NoError(t, err)

	_, err = e.HandleTurn(context.Background(), "hello", "s1", lead.RequestTypeGeneric)
	assert.ErrorIs(t, err, ErrModel)

	stored, _ := turns.Turns(context.Background(), "s1")
	assert.Empty(t, stored)
}

func TestEngine_HandleTurn_QueueFullDoesNotFailTurn(t *testing.T) {
	mock := testutil.NewMockLLM("ok")
	turns := newFakeTurnLog()
	sub := &fakeSubmitter{reject: true}

	e := newTestEngine(t, mock, turns, sub)
	text, err := e.HandleTurn(context.Background(), "hello", "s1", lead.RequestTypeGeneric)
	require.NoError(t, err)
	assert.Equal(t, "ok", text)
}

func TestNew_Validation(t *testing.T) {
	g := testutil.NewTestGenkit(t)
	logger := testutil.DiscardLogger()
	turns := newFakeTurnLog()

	_, err := New(Config{Turns: turns, Logger: logger, ModelName: "m"})
	assert.Error(t, err)
	_, err = New(Config{Genkit: g, Logger: logger, ModelName: "m"})
	assert.Error(t, err)
	_, err = New(Config{Genkit: g, Turns: turns, ModelName: "m"})
	assert.Error(t, err)
	_, err = New(Config{Genkit: g, Turns: turns, Logger: logger})
	assert.Error(t, err)
}
