//go:build integration

package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leadgate/leadgate/internal/api"
	"github.com/leadgate/leadgate/internal/conversation"
	"github.com/leadgate/leadgate/internal/extract"
	"github.com/leadgate/leadgate/internal/history"
	"github.com/leadgate/leadgate/internal/lead"
	"github.com/leadgate/leadgate/internal/testutil"
	"github.com/leadgate/leadgate/internal/validate"
)

// testApp wires the full stack against a containerized database and a mock
// model, exactly as main wires it in production.
type testApp struct {
	server *api.Server
	worker *extract.Worker
	leads  *lead.Store
}

func setupApp(t *testing.T, mock *testutil.MockLLM) (*testApp, func()) {
	t.Helper()

	db, dbCleanup := testutil.SetupTestDB(t)

	g := testutil.NewTestGenkit(t)
	mock.RegisterModel(g)
	logger := testutil.DiscardLogger()

	historyStore, err := history.NewStore(db.Pool, logger)
	require.NoError(t, err)
	leadStore, err := lead.NewStore(db.Pool, logger)
	require.NoError(t, err)

	pipeline, err := extract.NewPipeline(extract.Config{
		Genkit:    g,
		Leads:     leadStore,
		Logger:    logger,
		ModelName: "mock/test-model",
	})
	require.NoError(t, err)

	worker := extract.NewWorker(extract.WorkerConfig{
		Runner: pipeline,
		Logger: logger,
		Ctx:    context.Background(),
	})

	engine, err := conversation.New(conversation.Config{
		Genkit:    g,
		Turns:     historyStore,
		Logger:    logger,
		ModelName: "mock/test-model",
		Extractor: worker,
	})
	require.NoError(t, err)

	srv, err := api.NewServer(api.ServerConfig{
		Logger:    logger,
		Engine:    engine,
		History:   historyStore,
		Leads:     leadStore,
		Validator: validate.New(10000),
		Pool:      db.Pool,
		RateBurst: 10000,
	})
	require.NoError(t, err)

	app := &testApp{server: srv, worker: worker, leads: leadStore}
	cleanup := func() {
		worker.Close()
		dbCleanup()
	}
	return app, cleanup
}

func (a *testApp) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	a.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var got map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	return got
}

func TestEndToEnd_SalesConversation(t *testing.T) {
	mock := testutil.NewMockLLM("Happy to help!")
	// Patterns are checked in registration order: the extraction prompt must
	// match before the chat-level pattern, since it embeds the user message.
	mock.AddResponse("contact information extraction system",
		`{"contact_name": "John Smith", "email": "john@acme.com", "mobile": "", "country": ""}`)
	mock.AddResponse("pricing", "Our plans start at $49 per month.")

	app, cleanup := setupApp(t, mock)
	defer cleanup()

	sessionID := uuid.NewString()

	// A fresh session bootstraps with the welcome turn.
	rec := app.do(t, http.MethodGet, "/history?session_id="+sessionID, "")
	require.Equal(t, http.StatusCreated, rec.Code)
	got := decode(t, rec)
	entries := got["history"].([]any)
	require.Len(t, entries, 1)
	first := entries[0].(map[string]any)
	assert.Equal(t, "ai", first["type"])
	assert.Equal(t, history.WelcomeMessage, first["content"])

	// First turn: ask about pricing.
	rec = app.do(t, http.MethodPost, "/chat",
		`{"input": "Tell me about pricing", "session_id": "`+sessionID+`", "request_type": "sales"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	got = decode(t, rec)
	assert.Equal(t, "Our plans start at $49 per month.", got["response"])

	// Second turn: the user introduces themselves.
	rec = app.do(t, http.MethodPost, "/chat",
		`{"input": "I am John Smith, you can reach me at john@acme.com", "session_id": "`+sessionID+`", "request_type": "sales"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	// History now holds welcome + two full exchanges, oldest first.
	rec = app.do(t, http.MethodGet, "/history?session_id="+sessionID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	got = decode(t, rec)
	entries = got["history"].([]any)
	require.Len(t, entries, 5)
	second := entries[1].(map[string]any)
	assert.Equal(t, "human", second["type"])
	assert.Equal(t, "Tell me about pricing", second["content"])

	// Drain background extraction, then the lead must be visible.
	app.worker.Close()

	rec = app.do(t, http.MethodGet, "/leads", "")
	require.Equal(t, http.StatusOK, rec.Code)
	got = decode(t, rec)
	leads := got["leads"].([]any)
	require.Len(t, leads, 1)
	row := leads[0].(map[string]any)
	assert.Equal(t, sessionID, row["session_id"])
	assert.Equal(t, "John Smith", row["name"])
	assert.Equal(t, "john@acme.com", row["email"])
	assert.Equal(t, "OPEN", row["status"])

	// The stored record keeps the session classification and the provenance
	// metadata written by the extraction pipeline.
	record, err := app.leads.Get(context.Background(), sessionID)
	require.NoError(t, err)
	assert.Equal(t, string(lead.RequestTypeSales), record.RequestType)
	assert.Equal(t, "llm", record.Metadata["detection_method"])
	assert.Contains(t, record.Metadata["info_detected_from_message"], "John Smith")

	// Operators can annotate the lead.
	rec = app.do(t, http.MethodPatch, "/chat-info",
		`{"session_id": "`+sessionID+`", "status": "CONTACTED", "remarks": "follow up monday"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	record, err = app.leads.Get(context.Background(), sessionID)
	require.NoError(t, err)
	assert.Equal(t, "CONTACTED", record.Status)
	assert.Equal(t, "follow up monday", record.Remarks)
	assert.Equal(t, "John Smith", record.ContactName, "annotation must not erase extracted fields")

	// And finally delete it.
	rec = app.do(t, http.MethodDelete, "/chat-info/"+sessionID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	got = decode(t, rec)
	assert.Equal(t, true, got["deleted"])

	rec = app.do(t, http.MethodDelete, "/chat-info/"+sessionID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	got = decode(t, rec)
	assert.Equal(t, false, got["deleted"])
}

func TestEndToEnd_GenericConversationStaysGeneric(t *testing.T) {
	mock := testutil.NewMockLLM("Happy to help!")
	// The first pattern also matches the extraction prompt embedding the
	// quiet session's message, so its extraction detects nothing.
	mock.AddResponse("opening hours",
		`{"name_detected": false, "contact_name": ""}`)
	mock.AddResponse("name detection assistant",
		`{"name_detected": true, "contact_name": "Sarah"}`)

	app, cleanup := setupApp(t, mock)
	defer cleanup()

	quietID := uuid.NewString()
	sessionID := uuid.NewString()

	// A session that never shares contact details.
	rec := app.do(t, http.MethodPost, "/chat",
		`{"input": "What are your opening hours?", "session_id": "`+quietID+`"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = app.do(t, http.MethodPost, "/chat",
		`{"input": "Hi, my name is Sarah", "session_id": "`+sessionID+`"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	app.worker.Close()

	// Only the session that yielded contact details gets a lead record;
	// chatting alone must not materialize empty leads.
	rec = app.do(t, http.MethodGet, "/leads", "")
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode(t, rec)
	leads := got["leads"].([]any)
	require.Len(t, leads, 1)
	assert.Equal(t, sessionID, leads[0].(map[string]any)["session_id"])

	record, err := app.leads.Get(context.Background(), sessionID)
	require.NoError(t, err)
	assert.Equal(t, "Sarah", record.ContactName)
	assert.Equal(t, string(lead.RequestTypeGeneric), record.RequestType)

	// A later sales classification cannot flip the stored request type.
	require.NoError(t, app.leads.LockRequestType(context.Background(), sessionID, lead.RequestTypeSales))
	record, err = app.leads.Get(context.Background(), sessionID)
	require.NoError(t, err)
	assert.Equal(t, string(lead.RequestTypeGeneric), record.RequestType)
}

func TestEndToEnd_ReadyProbe(t *testing.T) {
	mock := testutil.NewMockLLM("ok")
	app, cleanup := setupApp(t, mock)
	defer cleanup()

	rec := app.do(t, http.MethodGet, "/ready", "")
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode(t, rec)
	assert.Equal(t, "ready", got["status"])
}
