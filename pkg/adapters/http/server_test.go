package http

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aretw0/formweave"
	"github.com/aretw0/formweave/internal/logging"
	"github.com/aretw0/formweave/internal/testutils"
	"github.com/aretw0/formweave/pkg/adapters/memory"
	"github.com/aretw0/formweave/pkg/domain"
	"github.com/aretw0/formweave/pkg/ports"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T, opts ...formweave.Option) *formweave.Engine {
	t.Helper()
	loader, err := memory.NewFromForms(testutils.SampleForm())
	require.NoError(t, err)

	numbered := ports.GeneratorFunc(func(ctx context.Context, req domain.QuestionRequest) (domain.GeneratedQuestion, error) {
		return domain.GeneratedQuestion{Text: fmt.Sprintf("Question %d?", req.TurnIndex)}, nil
	})
	base := []formweave.Option{formweave.WithLoader(loader), formweave.WithGenerator(numbered)}
	engine, err := formweave.New("", append(base, opts...)...)
	require.NoError(t, err)
	return engine
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestHealthAndInfo(t *testing.T) {
	h := NewHandler(newTestEngine(t))

	w := do(t, h, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", decode[map[string]string](t, w)["status"])

	w = do(t, h, http.MethodGet, "/info", nil)
	assert.Equal(t, formweave.Version, decode[map[string]string](t, w)["version"])

	w = do(t, h, http.MethodOptions, "/forms", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestForms(t *testing.T) {
	h := NewHandler(newTestEngine(t))

	w := do(t, h, http.MethodGet, "/forms", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"onboarding"}, decode[[]string](t, w))

	w = do(t, h, http.MethodGet, "/forms/onboarding", nil)
	require.Equal(t, http.StatusOK, w.Code)
	form := decode[domain.Form](t, w)
	assert.Len(t, form.Blocks, 5)

	w = do(t, h, http.MethodGet, "/forms/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.NotEmpty(t, decode[ErrorResponse](t, w).Error)

	w = do(t, h, http.MethodGet, "/forms/onboarding/graph?current=age", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.HasPrefix(w.Body.String(), "graph TD"))
	assert.Contains(t, w.Body.String(), "age")
}

func TestResolveNext(t *testing.T) {
	h := NewHandler(newTestEngine(t))

	tests := []struct {
		name   string
		block  string
		body   any
		status int
		target string
	}{
		{"rule matches", "age", map[string]any{"answers": map[string]any{"age": 30}}, http.StatusOK, "chat"},
		{"default target", "age", map[string]any{"answers": map[string]any{"age": 12}}, http.StatusOK, "thanks"},
		{"missing answer falls to default", "age", map[string]any{"answers": map[string]any{}}, http.StatusOK, "thanks"},
		{"no connection", "stack", map[string]any{"answers": map[string]any{}}, http.StatusUnprocessableEntity, ""},
		{"unknown block", "nope", map[string]any{"answers": map[string]any{}}, http.StatusNotFound, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, h, http.MethodPost, "/forms/onboarding/blocks/"+tt.block+"/next", tt.body)
			require.Equal(t, tt.status, w.Code, w.Body.String())
			if tt.target != "" {
				assert.Equal(t, tt.target, decode[formweave.Next](t, w).BlockID)
			}
		})
	}

	req := httptest.NewRequest(http.MethodPost, "/forms/onboarding/blocks/age/next", strings.NewReader("{"))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSchemaAndValidateResponse(t *testing.T) {
	h := NewHandler(newTestEngine(t))

	w := do(t, h, http.MethodGet, "/forms/onboarding/schema", nil)
	require.Equal(t, http.StatusOK, w.Code)
	fields := decode[map[string]map[string]any](t, w)
	assert.Equal(t, "choice", fields["role"]["type"])
	assert.Equal(t, true, fields["role"]["required"])
	assert.Equal(t, "number", fields["age"]["type"])
	assert.NotContains(t, fields, "chat")
	assert.NotContains(t, fields, "thanks")

	w = do(t, h, http.MethodGet, "/forms/missing/schema", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	path := "/forms/onboarding/responses/validate"
	tests := []struct {
		name    string
		answers map[string]any
		status  int
	}{
		{"valid", map[string]any{"role": "opt-pm", "age": 30}, http.StatusOK},
		{"required missing", map[string]any{}, http.StatusUnprocessableEntity},
		{"wrong type", map[string]any{"role": "opt-pm", "age": "old"}, http.StatusUnprocessableEntity},
		{"out of range", map[string]any{"role": "opt-pm", "age": 200}, http.StatusUnprocessableEntity},
		{"unknown block", map[string]any{"role": "opt-pm", "nope": 1}, http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, h, http.MethodPost, path, map[string]any{"answers": tt.answers})
			require.Equal(t, tt.status, w.Code, w.Body.String())
			if tt.status == http.StatusOK {
				assert.True(t, decode[ValidateResponseResult](t, w).Valid)
			}
		})
	}
}

func TestUpdateConnection(t *testing.T) {
	h := NewHandler(newTestEngine(t, formweave.WithConnectionStore(memory.NewConnectionStore())))

	w := do(t, h, http.MethodPatch, "/connections/conn-age", map[string]any{
		"source_block_id":   "age",
		"default_target_id": "stack",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "stack", decode[domain.Connection](t, w).DefaultTargetID)

	w = do(t, h, http.MethodPost, "/forms/onboarding/blocks/age/next", map[string]any{"answers": map[string]any{"age": 30}})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "stack", decode[formweave.Next](t, w).BlockID)

	w = do(t, h, http.MethodPatch, "/connections/conn-age", map[string]any{"colour": "red"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code, w.Body.String())

	w = do(t, h, http.MethodPatch, "/connections/conn-age", map[string]any{"rules": "not a list"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code, w.Body.String())
}

func TestUpdateFormConnection(t *testing.T) {
	h := NewHandler(newTestEngine(t, formweave.WithConnectionStore(memory.NewConnectionStore())))
	path := "/forms/onboarding/blocks/age/connection"

	w := do(t, h, http.MethodPatch, path, map[string]any{"default_target_id": "stack"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	conn := decode[domain.Connection](t, w)
	assert.Equal(t, "conn-age", conn.ID)
	assert.Equal(t, "stack", conn.DefaultTargetID)
	assert.Len(t, conn.Rules, 1, "fields outside the update are kept")

	w = do(t, h, http.MethodPost, "/forms/onboarding/blocks/age/next", map[string]any{"answers": map[string]any{"age": 12}})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "stack", decode[formweave.Next](t, w).BlockID)

	tests := []struct {
		name   string
		path   string
		body   map[string]any
		status int
	}{
		{"missing target", path, map[string]any{"default_target_id": "nope"}, http.StatusUnprocessableEntity},
		{"self target", path, map[string]any{"default_target_id": "age"}, http.StatusUnprocessableEntity},
		{"unknown key", path, map[string]any{"colour": "red"}, http.StatusUnprocessableEntity},
		{"source change", path, map[string]any{"source_block_id": "role"}, http.StatusUnprocessableEntity},
		{"rule without conditions", path, map[string]any{"rules": []any{map[string]any{"id": "r", "target_block_id": "chat"}}}, http.StatusUnprocessableEntity},
		{"unknown block", "/forms/onboarding/blocks/nope/connection", map[string]any{}, http.StatusNotFound},
		{"unknown form", "/forms/missing/blocks/age/connection", map[string]any{}, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, h, http.MethodPatch, tt.path, tt.body)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
		})
	}

	w = do(t, h, http.MethodPost, "/forms/onboarding/blocks/age/next", map[string]any{"answers": map[string]any{"age": 12}})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "stack", decode[formweave.Next](t, w).BlockID, "rejected updates are not stored")
}

func TestConversationLifecycle(t *testing.T) {
	h := NewHandler(newTestEngine(t))
	start := "/forms/onboarding/blocks/chat/conversations"

	w := do(t, h, http.MethodPost, start, map[string]any{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, h, http.MethodPost, "/forms/onboarding/blocks/age/conversations", map[string]any{"response_id": "r1"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = do(t, h, http.MethodPost, start, map[string]any{"response_id": "r1"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	res := decode[ConversationResponse](t, w)
	assert.Equal(t, "r1.chat", res.State.ID)
	assert.Equal(t, domain.PhaseAwaitingFirstAnswer, res.Phase)
	assert.Equal(t, "What are you hoping to get out of this?", res.State.PendingQuestion)

	path := "/conversations/r1.chat"
	var advances int
	for i, answer := range []string{"Learn", "Build", "Ship"} {
		w = do(t, h, http.MethodPost, path+"/turns", TurnRequest{TurnIndex: i, Answer: answer})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		res = decode[ConversationResponse](t, w)
		if res.Advance {
			advances++
		}
	}
	assert.Equal(t, 1, advances)
	assert.True(t, res.EffectiveComplete)
	assert.Equal(t, domain.PhaseComplete, res.Phase)

	w = do(t, h, http.MethodPost, path+"/turns", TurnRequest{TurnIndex: 3, Answer: "more"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = do(t, h, http.MethodPost, path+"/turns", TurnRequest{TurnIndex: 1, Answer: "Build fast"})
	require.Equal(t, http.StatusOK, w.Code)
	res = decode[ConversationResponse](t, w)
	require.NotNil(t, res.Diff)
	require.Len(t, res.Diff.Turns, 1)
	assert.Equal(t, "Build fast", res.Diff.Turns[0].Answer)
	assert.Equal(t, "Ship", res.State.Turns[2].Answer)

	w = do(t, h, http.MethodPost, path+"/navigate", TurnRequest{TurnIndex: 9})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, h, http.MethodPost, path+"/navigate", TurnRequest{TurnIndex: 0})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0, decode[ConversationResponse](t, w).State.ActiveIndex)

	w = do(t, h, http.MethodPost, path+"/leave", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decode[domain.ConversationState](t, w).Left)

	w = do(t, h, http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decode[ConversationResponse](t, w).EffectiveComplete)

	w = do(t, h, http.MethodDelete, path, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = do(t, h, http.MethodGet, path, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSubmitAnswer_ConversationEndsOnRegeneration(t *testing.T) {
	form := testutils.SampleForm()
	block, ok := form.Block("chat")
	require.True(t, ok)

	store := memory.NewConversationStore()
	st := domain.NewConversation(formweave.ConversationID("r1", "chat"), "r1", block)
	st.Turns = []domain.Turn{{Index: 0, Question: st.StarterPrompt, Answer: "Learn"}}
	st.ActiveIndex = 1
	st.PendingQuestion = ""
	require.NoError(t, store.Save(context.Background(), st))

	done := ports.GeneratorFunc(func(context.Context, domain.QuestionRequest) (domain.GeneratedQuestion, error) {
		return domain.GeneratedQuestion{Complete: true}, nil
	})
	h := NewHandler(newTestEngine(t, formweave.WithConversationStore(store), formweave.WithGenerator(done)))

	w := do(t, h, http.MethodPost, "/conversations/r1.chat/turns", TurnRequest{TurnIndex: 1, Answer: "Build"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	res := decode[ConversationResponse](t, w)
	assert.True(t, res.Advance)
	assert.True(t, res.Dropped)
	assert.Equal(t, domain.PhaseComplete, res.Phase)
	assert.Len(t, res.State.Turns, 1)

	w = do(t, h, http.MethodPost, "/conversations/r1.chat/turns", TurnRequest{TurnIndex: 1, Answer: "Build"})
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "formweave_test_total"})
	reg.MustRegister(counter)
	counter.Inc()

	w := do(t, NewHandler(newTestEngine(t), WithMetrics(reg)), http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "formweave_test_total 1")

	w = do(t, NewHandler(newTestEngine(t)), http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSubscribeEvents(t *testing.T) {
	handler := NewHandler(newTestEngine(t))
	srv := httptest.NewServer(handler)
	defer srv.Close()

	w := do(t, handler, http.MethodPost, "/forms/onboarding/blocks/chat/conversations", map[string]any{"response_id": "r1"})
	require.Equal(t, http.StatusOK, w.Code)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/conversations/r1.chat/events?watch=turns", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	lines := bufio.NewScanner(resp.Body)
	require.True(t, lines.Scan())
	assert.Equal(t, "event: ping", lines.Text())

	submit, err := http.Post(srv.URL+"/conversations/r1.chat/turns", "application/json",
		strings.NewReader(`{"turn_index": 0, "answer": "Learn"}`))
	require.NoError(t, err)
	submit.Body.Close()
	require.Equal(t, http.StatusOK, submit.StatusCode)

	var data string
	for lines.Scan() {
		if strings.HasPrefix(lines.Text(), "data: {") {
			data = strings.TrimPrefix(lines.Text(), "data: ")
			break
		}
	}
	require.NotEmpty(t, data)

	var diff domain.ConversationDiff
	require.NoError(t, json.Unmarshal([]byte(data), &diff))
	assert.Equal(t, "r1.chat", diff.ConversationID)
	require.NotEmpty(t, diff.Turns)
	assert.Equal(t, "Learn", diff.Turns[0].Answer)
}

func TestFailLogsServerErrors(t *testing.T) {
	var buf bytes.Buffer
	s := &Server{logger: logging.NewWithWriter(&buf, slog.LevelDebug)}
	r := httptest.NewRequest(http.MethodGet, "/", nil)

	w := httptest.NewRecorder()
	s.fail(w, r, "load form", domain.ErrFormNotFound)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Empty(t, buf.String(), "client errors are not logged")

	w = httptest.NewRecorder()
	s.fail(w, r, "load form", errors.New("disk on fire"))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, buf.String(), "load form failed")
	assert.Contains(t, buf.String(), `err="disk on fire"`)
}

func TestStreamManager(t *testing.T) {
	var buf bytes.Buffer
	sm := NewStreamManager()
	sm.logger = logging.NewWithWriter(&buf, slog.LevelDebug)
	ch, cancel := sm.Subscribe("c1")
	assert.Equal(t, 1, sm.Subscribers("c1"))

	sm.Broadcast("c1", "hello")
	sm.Broadcast("c2", "ignored")
	assert.Equal(t, "hello", <-ch)

	for i := 0; i < 20; i++ {
		sm.Broadcast("c1", "flood")
	}
	assert.Len(t, ch, 10)
	assert.Contains(t, buf.String(), "dropping message")

	cancel()
	cancel()
	assert.Equal(t, 0, sm.Subscribers("c1"))
}

func TestWatched(t *testing.T) {
	phase := domain.PhaseComplete
	withPhase, _ := json.Marshal(domain.ConversationDiff{ConversationID: "c", Phase: &phase})

	assert.True(t, watched(string(withPhase), []string{"phase"}))
	assert.False(t, watched(string(withPhase), []string{"turns", " advance"}))
	assert.True(t, watched("not json", []string{"turns"}))
}
