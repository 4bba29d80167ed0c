package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/RichardoC/ollamachat/internal/llm"
	"github.com/RichardoC/ollamachat/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeLLM struct {
	fragments []string
	failAfter int // fail once this many fragments were sent; -1 never
	err       error

	gotURL     string
	gotModel   string
	gotHistory []models.ChatMessage
	calls      int
}

func (f *fakeLLM) StreamChat(ctx context.Context, serverURL, model string, history []models.ChatMessage, fn llm.FragmentFunc) error {
	f.calls++
	f.gotURL, f.gotModel, f.gotHistory = serverURL, model, history
	for i, frag := range f.fragments {
		if f.err != nil && i == f.failAfter {
			return f.err
		}
		if err := fn(ctx, frag); err != nil {
			return err
		}
	}
	if f.err != nil && f.failAfter >= len(f.fragments) {
		return f.err
	}
	return nil
}

func newTestRouter(t *testing.T, fake *fakeLLM) http.Handler {
	t.Helper()
	return NewRouter(NewHandler(fake, zaptest.NewLogger(t)), "")
}

func postChat(t *testing.T, router http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func readChunks(t *testing.T, body string) []models.StreamChunk {
	t.Helper()
	var chunks []models.StreamChunk
	sc := bufio.NewScanner(strings.NewReader(body))
	for sc.Scan() {
		var c models.StreamChunk
		require.NoError(t, json.Unmarshal(sc.Bytes(), &c))
		chunks = append(chunks, c)
	}
	return chunks
}

const validBody = `{"messages":[{"role":"assistant","content":"Hello!"},{"role":"user","content":"hi"}],"ollamaUrl":"http://my-server:11434/"}`

func TestHandleChat_StreamsNDJSON(t *testing.T) {
	fake := &fakeLLM{fragments: []string{"Hel", "lo"}, failAfter: -1}
	w := postChat(t, newTestRouter(t, fake), validBody)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/x-ndjson", w.Header().Get("Content-Type"))
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))

	chunks := readChunks(t, w.Body.String())
	require.Len(t, chunks, 3)
	assert.Equal(t, "Hel", chunks[0].Message.Content)
	assert.Equal(t, models.RoleAssistant, chunks[0].Message.Role)
	assert.Equal(t, "lo", chunks[1].Message.Content)
	assert.True(t, chunks[2].Done)

	assert.Equal(t, "http://my-server:11434", fake.gotURL)
	assert.Empty(t, fake.gotModel)
	require.Len(t, fake.gotHistory, 2)
	assert.Equal(t, "hi", fake.gotHistory[1].Content)
}

func TestHandleChat_PassesModel(t *testing.T) {
	fake := &fakeLLM{fragments: []string{"x"}, failAfter: -1}
	body := `{"messages":[{"role":"user","content":"hi"}],"ollamaUrl":"http://h:1","model":"mistral"}`
	w := postChat(t, newTestRouter(t, fake), body)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "mistral", fake.gotModel)
}

func TestHandleChat_Validation(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"bad json", `{`, "Invalid request body"},
		{"no messages", `{"messages":[],"ollamaUrl":"http://h:1"}`, "messages must not be empty"},
		{"bad role", `{"messages":[{"role":"robot","content":"x"}],"ollamaUrl":"http://h:1"}`, "unknown role"},
		{"no url", `{"messages":[{"role":"user","content":"x"}]}`, "ollamaUrl is required"},
		{"bad url", `{"messages":[{"role":"user","content":"x"}],"ollamaUrl":"h:1"}`, "invalid ollama url"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &fakeLLM{failAfter: -1}
			w := postChat(t, newTestRouter(t, fake), tt.body)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			var resp models.ErrorResponse
			require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
			assert.Contains(t, resp.Error, tt.want)
			assert.Zero(t, fake.calls)
		})
	}
}

func TestHandleChat_UpstreamFailureBeforeFirstChunk(t *testing.T) {
	fake := &fakeLLM{err: errors.New("connection refused"), failAfter: 0}
	w := postChat(t, newTestRouter(t, fake), validBody)

	assert.Equal(t, http.StatusBadGateway, w.Code)
	var resp models.ErrorResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Contains(t, resp.Error, "connection refused")
}

func TestHandleChat_UpstreamFailureMidStream(t *testing.T) {
	fake := &fakeLLM{fragments: []string{"par", "tial"}, err: errors.New("model crashed"), failAfter: 1}
	w := postChat(t, newTestRouter(t, fake), validBody)

	require.Equal(t, http.StatusOK, w.Code)
	chunks := readChunks(t, w.Body.String())
	require.Len(t, chunks, 2)
	assert.Equal(t, "par", chunks[0].Message.Content)
	assert.Equal(t, "model crashed", chunks[1].Error)
}

func TestHandleChat_EmptyReply(t *testing.T) {
	fake := &fakeLLM{failAfter: -1}
	w := postChat(t, newTestRouter(t, fake), validBody)

	require.Equal(t, http.StatusOK, w.Code)
	chunks := readChunks(t, w.Body.String())
	require.Len(t, chunks, 1)
	assert.True(t, chunks[0].Done)
}

func TestPreflight(t *testing.T) {
	req := httptest.NewRequest(http.MethodOptions, "/api/chat", nil)
	w := httptest.NewRecorder()
	newTestRouter(t, &fakeLLM{}).ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), "content-type")
}

func TestHealthEndpoint(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	newTestRouter(t, &fakeLLM{}).ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]string
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
}

func TestStaticFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("<h1>chat</h1>"), 0o644))

	router := NewRouter(NewHandler(&fakeLLM{}, zaptest.NewLogger(t)), dir)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "chat")
}

func TestNotFoundEndpoint(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/nonexistent", nil)
	w := httptest.NewRecorder()
	newTestRouter(t, &fakeLLM{}).ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}
