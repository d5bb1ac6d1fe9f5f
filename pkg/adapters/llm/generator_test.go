package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/aretw0/formweave/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type chatRequest struct {
	Model    string `json:"model"`
	Messages []struct {
		Role    string          `json:"role"`
		Content json.RawMessage `json:"content"`
	} `json:"messages"`
}

// fakeAPI answers chat completions with reply and records the last request.
func fakeAPI(t *testing.T, status int, reply string, last *chatRequest) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/chat/completions"), r.URL.Path)
		if last != nil {
			assert.NoError(t, json.NewDecoder(r.Body).Decode(last))
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if status != http.StatusOK {
			_, _ = w.Write([]byte(`{"error":{"message":"boom","type":"invalid_request_error"}}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"created": 0,
			"model":   "test-model",
			"choices": []any{map[string]any{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]any{"role": "assistant", "content": reply},
			}},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func request() domain.QuestionRequest {
	return domain.QuestionRequest{
		ConversationID: "conv-1",
		BlockID:        "chat",
		PriorQuestions: []string{"What brings you here?"},
		PriorAnswers:   []string{"I want to learn Go"},
		TurnIndex:      1,
		MaxQuestions:   3,
	}
}

func TestGenerator_Question(t *testing.T) {
	var last chatRequest
	srv := fakeAPI(t, http.StatusOK, "  Why Go in particular?\n", &last)

	q, err := New(srv.URL, "test-model", "key").GenerateNextQuestion(context.Background(), request())
	require.NoError(t, err)
	assert.Equal(t, "Why Go in particular?", q.Text)
	assert.False(t, q.Complete)

	assert.Equal(t, "test-model", last.Model)
	require.Len(t, last.Messages, 2)
	assert.Equal(t, "system", last.Messages[0].Role)
	assert.Contains(t, string(last.Messages[1].Content), "A1: I want to learn Go")
}

func TestGenerator_Done(t *testing.T) {
	srv := fakeAPI(t, http.StatusOK, "done.", nil)

	q, err := New(srv.URL, "m", "").GenerateNextQuestion(context.Background(), request())
	require.NoError(t, err)
	assert.True(t, q.Complete)
}

func TestGenerator_APIError(t *testing.T) {
	srv := fakeAPI(t, http.StatusBadRequest, "", nil)

	_, err := New(srv.URL, "m", "key").GenerateNextQuestion(context.Background(), request())
	assert.Error(t, err)
}

func TestTranscript(t *testing.T) {
	req := request()
	req.TurnIndex = 2
	text := Transcript(req)

	assert.Contains(t, text, "Q1: What brings you here?")
	assert.Contains(t, text, "question 3 of at most 3")
	assert.Contains(t, text, "closing question")

	req.MaxQuestions = 0
	assert.NotContains(t, Transcript(req), "at most")
}
