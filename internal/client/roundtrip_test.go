package client_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"bors-backend/internal/client"
	"bors-backend/internal/config"
	"bors-backend/internal/conversation"
	"bors-backend/internal/handler"
	"bors-backend/internal/model"
	"bors-backend/internal/service"
	"bors-backend/internal/storage"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// upstream records every chat body it receives and answers with the next
// scripted assistant content.
type upstream struct {
	mu      sync.Mutex
	bodies  []map[string]json.RawMessage
	replies []string
}

func (u *upstream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	raw, _ := io.ReadAll(r.Body)
	var body map[string]json.RawMessage
	_ = json.Unmarshal(raw, &body)

	u.mu.Lock()
	u.bodies = append(u.bodies, body)
	content := ""
	if len(u.replies) > 0 {
		content, u.replies = u.replies[0], u.replies[1:]
	}
	u.mu.Unlock()

	reply, _ := json.Marshal(content)
	w.Header().Set("Content-Type", "application/json")
	io.WriteString(w, `{"choices":[{"index":0,"message":{"role":"assistant","content":`+string(reply)+`}}]}`)
}

func (u *upstream) messages(t *testing.T, call int) []map[string]json.RawMessage {
	t.Helper()
	u.mu.Lock()
	defer u.mu.Unlock()
	require.Greater(t, len(u.bodies), call)

	var messages []map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(u.bodies[call]["messages"], &messages))
	return messages
}

func (u *upstream) calls() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.bodies)
}

func newStack(t *testing.T, store storage.Storage, replies ...string) (*conversation.Session, *upstream) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	up := &upstream{replies: replies}
	upstreamServer := httptest.NewServer(up)
	t.Cleanup(upstreamServer.Close)

	cfg := &config.Config{
		Upstream: config.UpstreamConfig{
			BaseURL:       upstreamServer.URL,
			APIKey:        "key",
			ImageEndpoint: upstreamServer.URL + "/image",
			ChatTimeout:   5 * time.Second,
			ImageTimeout:  5 * time.Second,
			Plugins:       []string{"web_search"},
		},
		CORS: config.CORSConfig{AllowedOrigins: []string{"*"}},
	}
	router := handler.NewRouter(cfg, handler.NewProxyHandler(service.NewProxyService(cfg.Upstream)), nil)
	proxyServer := httptest.NewServer(router)
	t.Cleanup(proxyServer.Close)

	c := client.New(client.Options{ServerURL: proxyServer.URL, Timeout: 10 * time.Second})
	session, err := conversation.NewSession(c, store, c.CatalogOrDefault(context.Background()))
	require.NoError(t, err)
	return session, up
}

func TestEmptyAssistantReplyDoesNotBreakNextSend(t *testing.T) {
	session, up := newStack(t, storage.NewMemoryStorage(), "", "second answer")

	first, err := session.Send(context.Background(), "one")
	require.NoError(t, err)
	assert.Empty(t, first.Content)

	second, err := session.Send(context.Background(), "two")
	require.NoError(t, err)
	assert.Equal(t, "second answer", second.Content)
	assert.Equal(t, 2, up.calls())

	messages := up.messages(t, 1)
	require.Len(t, messages, 4)
	assert.Equal(t, `"assistant"`, string(messages[2]["role"]))
	assert.Equal(t, `""`, string(messages[2]["content"]))
	assert.Equal(t, `"two"`, string(messages[3]["content"]))
}

func TestEmptyStoredPromptReachesUpstream(t *testing.T) {
	store := storage.NewMemoryStorage()
	require.NoError(t, store.Set(model.SystemPromptKey, ""))
	session, up := newStack(t, store, "Hi!")

	reply, err := session.Send(context.Background(), "Hello")
	require.NoError(t, err)
	assert.Equal(t, "Hi!", reply.Content)

	messages := up.messages(t, 0)
	require.Len(t, messages, 2)
	prompt, _ := json.Marshal(model.DefaultSystemPrompt)
	assert.Equal(t, string(prompt), string(messages[0]["content"]))
	assert.Equal(t, `"Hello"`, string(messages[1]["content"]))
}

func TestAttachmentPartsReachUpstream(t *testing.T) {
	session, up := newStack(t, storage.NewMemoryStorage(), "a pixel")

	png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")
	att, err := conversation.NewAttachment("pixel.png", png)
	require.NoError(t, err)
	session.Attach(att)

	_, err = session.Send(context.Background(), "what is this?")
	require.NoError(t, err)

	messages := up.messages(t, 0)
	var parts []map[string]interface{}
	require.NoError(t, json.Unmarshal(messages[1]["content"], &parts))
	require.Len(t, parts, 2)
	assert.Equal(t, "text", parts[0]["type"])
	assert.Equal(t, "image_url", parts[1]["type"])
}
