package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"bors-backend/internal/config"
	"bors-backend/internal/model"
	"bors-backend/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeProxy struct {
	chatReqs  []model.ChatRequest
	imageReqs []model.ImageRequest
	body      []byte
	err       error
}

func (f *fakeProxy) Chat(ctx context.Context, req model.ChatRequest) ([]byte, error) {
	f.chatReqs = append(f.chatReqs, req)
	return f.body, f.err
}

func (f *fakeProxy) Image(ctx context.Context, req model.ImageRequest) ([]byte, error) {
	f.imageReqs = append(f.imageReqs, req)
	return f.body, f.err
}

func testConfig(upstream string) *config.Config {
	return &config.Config{
		Upstream: config.UpstreamConfig{
			BaseURL:       upstream,
			APIKey:        "k",
			ImageEndpoint: upstream + "/image",
			ChatTimeout:   time.Second,
			ImageTimeout:  time.Second,
			Plugins:       []string{"web_search"},
		},
		CORS: config.CORSConfig{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"GET", "POST"},
			AllowedHeaders: []string{"Content-Type"},
		},
	}
}

func post(router http.Handler, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestChatValidation(t *testing.T) {
	proxy := &fakeProxy{body: []byte(`{}`)}
	router := NewRouter(testConfig("http://unused"), NewProxyHandler(proxy), nil)

	cases := map[string]string{
		"not json":       `{`,
		"no model":       `{"messages":[{"role":"user","content":"hi"}]}`,
		"empty messages": `{"model":"o1","messages":[]}`,
		"bad role":       `{"model":"o1","messages":[{"role":"tool","content":"hi"}]}`,
		"no content":     `{"model":"o1","messages":[{"role":"user"}]}`,
		"null content":   `{"model":"o1","messages":[{"role":"user","content":null}]}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			rec := post(router, "/api/chat", body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.JSONEq(t, `{"error":"invalid request"}`, rec.Body.String())
		})
	}
	assert.Empty(t, proxy.chatReqs)
}

func TestChatAcceptsEmptyContent(t *testing.T) {
	proxy := &fakeProxy{body: []byte(`{}`)}
	router := NewRouter(testConfig("http://unused"), NewProxyHandler(proxy), nil)

	rec := post(router, "/api/chat", `{"model":"o1","messages":[{"role":"system","content":""},{"role":"user","content":"hi"},{"role":"assistant","content":""},{"role":"user","content":"again"}]}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, proxy.chatReqs, 1)
	assert.Equal(t, `""`, string(proxy.chatReqs[0].Messages[0].Content))
}

func TestChatMessagesForwardedVerbatim(t *testing.T) {
	var got struct {
		Messages []json.RawMessage `json:"messages"`
	}
	router, _ := newEndToEnd(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		io.WriteString(w, `{}`)
	})

	user := `{"role":"user","name":"ann","content":[{"type":"text","text":"hi"}]}`
	rec := post(router, "/api/chat", `{"model":"o1","messages":[{"role":"system","content":""},`+user+`]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, `{"role":"system","content":""}`, string(got.Messages[0]))
	assert.Equal(t, user, string(got.Messages[1]))
}

func TestImageValidation(t *testing.T) {
	proxy := &fakeProxy{body: []byte(`{}`)}
	router := NewRouter(testConfig("http://unused"), NewProxyHandler(proxy), nil)

	rec := post(router, "/api/image", `{"model":"flux","prompt":"fox","ratio":"4:3"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = post(router, "/api/image", `{"model":"flux","ratio":"1:1"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, proxy.imageReqs)
}

func TestProxyErrorIsFixed(t *testing.T) {
	proxy := &fakeProxy{err: errors.New("upstream said: key sk-live-123 revoked")}
	router := NewRouter(testConfig("http://unused"), NewProxyHandler(proxy), nil)

	rec := post(router, "/api/chat", `{"model":"o1","messages":[{"role":"user","content":"hi"}]}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"AI API error"}`, rec.Body.String())

	rec = post(router, "/api/image", `{"model":"flux","prompt":"fox","ratio":"16:9"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"image generation error"}`, rec.Body.String())
}

func TestModelsAndHealth(t *testing.T) {
	router := NewRouter(testConfig("http://unused"), NewProxyHandler(&fakeProxy{}), nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/models", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var catalog model.CatalogResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &catalog))
	assert.Equal(t, model.TextModels, catalog.TextModels)
	assert.Equal(t, model.ImageModels, catalog.ImageModels)
	assert.Len(t, catalog.ImageRatios, 3)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}

func TestTelegramAuthGuardsProxyRoutesOnly(t *testing.T) {
	cfg := testConfig("http://unused")
	cfg.Auth.TelegramBotToken = "123:abc"
	cfg.Auth.InitDataMaxAge = time.Hour
	router := NewRouter(cfg, NewProxyHandler(&fakeProxy{body: []byte(`{}`)}), nil)

	rec := post(router, "/api/chat", `{"model":"o1","messages":[{"role":"user","content":"hi"}]}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/models", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

// End to end through the real forwarding service.

func newEndToEnd(t *testing.T, upstream http.HandlerFunc) (http.Handler, *config.Config) {
	t.Helper()
	server := httptest.NewServer(upstream)
	t.Cleanup(server.Close)

	cfg := testConfig(server.URL)
	return NewRouter(cfg, NewProxyHandler(service.NewProxyService(cfg.Upstream)), nil), cfg
}

func TestChatPassThroughIsByteIdentical(t *testing.T) {
	// odd spacing and key order must survive untouched
	upstreamBody := "{\"choices\": [ {\"message\":{\"content\":\"Привет\"}} ],\n \"zeta\":1, \"alpha\":[true,null]}"
	router, _ := newEndToEnd(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, upstreamBody)
	})

	rec := post(router, "/api/chat", `{"model":"o1","messages":[{"role":"system","content":"s"},{"role":"user","content":"Hello"}]}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, upstreamBody, rec.Body.String())
	assert.Contains(t, rec.Header().Get("Content-Type"), "application/json")
}

func TestImagePassThrough(t *testing.T) {
	var got map[string]string
	router, _ := newEndToEnd(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		io.WriteString(w, `{"files":["AAAA"],"seed":7}`)
	})

	rec := post(router, "/api/image", `{"model":"flux","prompt":"a red fox","ratio":"9:16"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, `{"files":["AAAA"],"seed":7}`, rec.Body.String())
	assert.Equal(t, map[string]string{"model": "flux", "prompt": "a red fox", "ratio": "9:16"}, got)
}

func TestUpstreamFailuresCollapseToFixedError(t *testing.T) {
	secret := "upstream-secret-detail"
	failures := map[string]http.HandlerFunc{
		"400": func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			io.WriteString(w, `{"error":"`+secret+`"}`)
		},
		"503": func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
			io.WriteString(w, secret)
		},
		"timeout": func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-r.Context().Done():
			case <-time.After(3 * time.Second):
			}
		},
	}

	for name, upstream := range failures {
		t.Run(name, func(t *testing.T) {
			router, _ := newEndToEnd(t, upstream)

			rec := post(router, "/api/chat", `{"model":"o1","messages":[{"role":"user","content":"hi"}]}`)
			assert.Equal(t, http.StatusInternalServerError, rec.Code)
			assert.JSONEq(t, `{"error":"AI API error"}`, rec.Body.String())
			assert.NotContains(t, rec.Body.String(), secret)

			rec = post(router, "/api/image", `{"model":"flux","prompt":"p","ratio":"1:1"}`)
			assert.Equal(t, http.StatusInternalServerError, rec.Code)
			assert.JSONEq(t, `{"error":"image generation error"}`, rec.Body.String())
			assert.NotContains(t, rec.Body.String(), secret)
		})
	}
}

func TestUpstreamConnectionRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()

	cfg := testConfig("http://" + addr)
	router := NewRouter(cfg, NewProxyHandler(service.NewProxyService(cfg.Upstream)), nil)

	rec := post(router, "/api/chat", `{"model":"o1","messages":[{"role":"user","content":"hi"}]}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"AI API error"}`, rec.Body.String())
}
