package http

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/canvas"
	"github.com/aretw0/canvas/pkg/chatkit"
	"github.com/aretw0/canvas/pkg/observability"
)

const createBody = `{"type":"threads.create","params":{"input":{"content":[{"type":"input_text","text":"hi"}]}}}`

// stubProcessor returns a canned result and records the bodies it saw.
type stubProcessor struct {
	result chatkit.Result
	err    error
	bodies [][]byte
}

func (p *stubProcessor) Process(_ context.Context, body []byte) (chatkit.Result, error) {
	p.bodies = append(p.bodies, body)
	return p.result, p.err
}

func newGateway(t *testing.T, opts ...Option) (http.Handler, *StreamManager) {
	t.Helper()
	sm := NewStreamManager(nil)
	eng, err := canvas.New(canvas.WithLifecycleHooks(sm.Hooks()))
	require.NoError(t, err)
	return NewHandler(chatkit.NewServer(eng), append([]Option{WithStreams(sm)}, opts...)...), sm
}

func post(h http.Handler, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	msg, _ := body["error"].(string)
	return msg
}

func TestChatKit_RejectsMalformedBodies(t *testing.T) {
	h, _ := newGateway(t)

	tests := []struct {
		name string
		body string
		want string
	}{
		{"empty", "", "Invalid request body"},
		{"whitespace", " \n\t ", "Invalid request body"},
		{"broken object", `{"type":`, "Invalid JSON"},
		{"broken array", `[1,`, "Invalid JSON"},
		{"unknown type", `{"type":"threads.explode"}`, "ChatKit payload rejected"},
		{"not json", "hello", "ChatKit payload rejected"},
		{"missing thread", `{"type":"threads.add_user_message","params":{"thread_id":"thr_nope","input":{"content":[]}}}`, "ChatKit payload rejected"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := post(h, "/chatkit", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
			assert.Equal(t, tt.want, decodeError(t, w))
		})
	}
}

func TestChatKit_ProcessorNotCalledForMalformedInput(t *testing.T) {
	p := &stubProcessor{err: errors.New("unreachable")}
	h := NewHandler(p)

	post(h, "/chatkit", "   ")
	post(h, "/chatkit", "{")
	assert.Empty(t, p.bodies)
}

func TestChatKit_StreamsEvents(t *testing.T) {
	h, _ := newGateway(t)

	for _, path := range []string{"/chatkit", "/chat-endpoint"} {
		t.Run(path, func(t *testing.T) {
			w := post(h, path, createBody)
			require.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))
			assert.Equal(t, "no-cache", w.Header().Get("Cache-Control"))

			frames := strings.Split(strings.TrimSpace(w.Body.String()), "\n\n")
			require.Len(t, frames, 3)
			assert.True(t, strings.HasPrefix(frames[0], "data: "))
			assert.Contains(t, frames[0], `"type":"thread.created"`)
			assert.Contains(t, frames[2], "Business Canvas Builder")
		})
	}
}

func TestChatKit_JSONResult(t *testing.T) {
	h, _ := newGateway(t)
	require.Equal(t, http.StatusOK, post(h, "/chatkit", createBody).Code)

	w := post(h, "/chatkit", `{"type":"threads.list","params":{"limit":5}}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var page chatkit.Page[chatkit.ThreadMetadata]
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &page))
	assert.Len(t, page.Data, 1)
}

func TestChatKit_ObjectResult(t *testing.T) {
	p := &stubProcessor{result: &chatkit.ObjectResult{Value: map[string]any{"deleted": true}}}
	w := post(NewHandler(p), "/chatkit", `{"type":"threads.delete"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"deleted":true}`, w.Body.String())

	p.result = &chatkit.ObjectResult{Value: make(chan int)}
	w = post(NewHandler(p), "/chatkit", `{"type":"threads.delete"}`)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "Internal server error", decodeError(t, w))
}

func TestChatKit_DeleteThroughEngine(t *testing.T) {
	h, _ := newGateway(t)
	created := post(h, "/chatkit", createBody)
	require.Equal(t, http.StatusOK, created.Code)

	list := post(h, "/chatkit", `{"type":"threads.list","params":{"limit":5}}`)
	var page chatkit.Page[chatkit.ThreadMetadata]
	require.NoError(t, json.Unmarshal(list.Body.Bytes(), &page))
	require.Len(t, page.Data, 1)

	w := post(h, "/chatkit", `{"type":"threads.delete","params":{"thread_id":"`+page.Data[0].ID+`"}}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{}`, w.Body.String())
}

func TestChatKit_BodyTooLarge(t *testing.T) {
	p := &stubProcessor{result: &chatkit.NonStreamingResult{JSON: []byte(`{}`)}}
	h := NewHandler(p, WithMaxBodyBytes(16))
	big := `{"type":"threads.list","params":{}}`

	t.Run("content length", func(t *testing.T) {
		w := post(h, "/chatkit", big)
		assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
		var body map[string]any
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, "Request entity too large", body["error"])
		assert.EqualValues(t, 16, body["maxSize"])
	})

	t.Run("chunked", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/chatkit", strings.NewReader(big))
		req.ContentLength = -1
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	})

	assert.Empty(t, p.bodies)
}

func TestChatKit_RateLimit(t *testing.T) {
	p := &stubProcessor{result: &chatkit.NonStreamingResult{JSON: []byte(`{}`)}}
	h := NewHandler(p, WithRateLimit(1, 1))

	assert.Equal(t, http.StatusOK, post(h, "/chatkit", `{}`).Code)

	w := post(h, "/chatkit", `{}`)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "Rate limit exceeded", body["error"])
	assert.GreaterOrEqual(t, body["retryAfter"], float64(1))

	// Another client has its own bucket.
	req := httptest.NewRequest(http.MethodPost, "/chatkit", strings.NewReader(`{}`))
	req.Header.Set("X-Real-IP", "203.0.113.9")
	other := httptest.NewRecorder()
	h.ServeHTTP(other, req)
	assert.Equal(t, http.StatusOK, other.Code)

	// Health is never limited.
	health := httptest.NewRecorder()
	h.ServeHTTP(health, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, health.Code)
}

func TestRateLimiter_RefillsOverTime(t *testing.T) {
	now := time.Unix(0, 0)
	rl := newRateLimiter(60, 1)
	rl.now = func() time.Time { return now }

	ok, _ := rl.allow("a")
	assert.True(t, ok)
	ok, wait := rl.allow("a")
	assert.False(t, ok)
	assert.InDelta(t, time.Second, wait, float64(10*time.Millisecond))

	now = now.Add(time.Second)
	ok, _ = rl.allow("a")
	assert.True(t, ok)
}

func TestRateLimiter_SweepsIdleClients(t *testing.T) {
	now := time.Unix(0, 0)
	rl := newRateLimiter(60, 1)
	rl.now = func() time.Time { return now }

	rl.allow("a")
	now = now.Add(5 * time.Minute)
	rl.allow("b")
	assert.Len(t, rl.clients, 1)
}

func TestGetHealth(t *testing.T) {
	h := NewHandler(&stubProcessor{})
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestGetInfo(t *testing.T) {
	h := NewHandler(&stubProcessor{})
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/info", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var info map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &info))
	assert.Equal(t, "canvas-http", info["app"])
	assert.Equal(t, strings.TrimSpace(canvas.Version), info["version"])
	assert.Equal(t, "1.0.0", info["api_version"])
}

func TestOpenAPIDocument(t *testing.T) {
	doc, err := GetSwagger()
	require.NoError(t, err)
	require.NoError(t, doc.Validate(context.Background()))
	assert.NotNil(t, doc.Paths.Find("/chatkit"))

	h := NewHandler(&stubProcessor{})
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/openapi.yaml", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, bytes.Equal(RawSpec(), w.Body.Bytes()))
}

func TestCORS(t *testing.T) {
	t.Run("wildcard echoes origin", func(t *testing.T) {
		h := NewHandler(&stubProcessor{})
		req := httptest.NewRequest(http.MethodOptions, "/chatkit", nil)
		req.Header.Set("Origin", "https://app.example")
		req.Header.Set("Access-Control-Request-Headers", "content-type, x-custom")
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "https://app.example", w.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))
		assert.Equal(t, "content-type, x-custom", w.Header().Get("Access-Control-Allow-Headers"))
		assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), "POST")
	})

	t.Run("allow list", func(t *testing.T) {
		h := NewHandler(&stubProcessor{}, WithCORSOrigins("https://a.example"))

		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.Header.Set("Origin", "https://b.example")
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))

		req.Header.Set("Origin", "https://a.example")
		w = httptest.NewRecorder()
		h.ServeHTTP(w, req)
		assert.Equal(t, "https://a.example", w.Header().Get("Access-Control-Allow-Origin"))
	})
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := observability.NewMetrics(reg)
	h := NewHandler(&stubProcessor{}, WithMetrics(m, reg))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))
	post(h, "/chatkit", "")

	assert.Equal(t, float64(1), testutil.ToFloat64(m.HTTPRequests.WithLabelValues("/health", "200")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.HTTPRequests.WithLabelValues("/chatkit", "400")))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "canvas_http_requests_total")
}

func TestSubscribeEvents_RequiresThread(t *testing.T) {
	h := NewHandler(&stubProcessor{})
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/events", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSubscribeEvents_BroadcastsAdvances(t *testing.T) {
	h, sm := newGateway(t)
	ts := httptest.NewServer(h)
	defer ts.Close()

	// 1. Create a thread
	resp, err := http.Post(ts.URL+"/chatkit", "application/json", strings.NewReader(createBody))
	require.NoError(t, err)
	scanner := bufio.NewScanner(resp.Body)
	var threadID string
	for scanner.Scan() {
		line := strings.TrimPrefix(scanner.Text(), "data: ")
		var ev chatkit.Event
		if json.Unmarshal([]byte(line), &ev) == nil && ev.Type == chatkit.EventThreadCreated {
			threadID = ev.Thread.ID
		}
	}
	resp.Body.Close()
	require.NotEmpty(t, threadID)

	// 2. Subscribe
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/events?thread_id="+threadID, nil)
	require.NoError(t, err)
	sub, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer sub.Body.Close()
	assert.Equal(t, "text/event-stream", sub.Header.Get("Content-Type"))

	lines := bufio.NewScanner(sub.Body)
	require.True(t, lines.Scan())
	assert.Equal(t, "event: ping", lines.Text())
	require.Eventually(t, func() bool { return sm.Subscribers(threadID) == 1 }, time.Second, 10*time.Millisecond)

	// 3. Advance
	action := `{"type":"threads.custom_action","params":{"thread_id":"` + threadID + `","action":{"type":"bc.intro.submit","payload":{"answer":"Acme Inc"}}}}`
	resp, err = http.Post(ts.URL+"/chatkit", "application/json", strings.NewReader(action))
	require.NoError(t, err)
	resp.Body.Close()

	// 4. Read until the advance frame
	var data string
	for lines.Scan() {
		if strings.HasPrefix(lines.Text(), "data: ") && strings.Contains(lines.Text(), "answer_key") {
			data = strings.TrimPrefix(lines.Text(), "data: ")
			break
		}
	}
	require.NotEmpty(t, data)
	assert.Contains(t, data, `"answer_key":"company"`)
	assert.Contains(t, data, `"thread_id":"`+threadID+`"`)
}

func TestStreamManager_UnsubscribeIsIdempotent(t *testing.T) {
	sm := NewStreamManager(nil)
	ch, cancel := sm.Subscribe("thr_1")
	assert.Equal(t, 1, sm.Subscribers("thr_1"))

	sm.Broadcast("thr_1", []byte("hello"))
	assert.Equal(t, []byte("hello"), <-ch)

	cancel()
	cancel()
	assert.Equal(t, 0, sm.Subscribers("thr_1"))
	_, open := <-ch
	assert.False(t, open)
}

func TestStreamManager_DropsWhenBufferFull(t *testing.T) {
	sm := NewStreamManager(nil)
	ch, cancel := sm.Subscribe("thr_1")
	defer cancel()

	for i := 0; i < subscriberBuffer+5; i++ {
		sm.Broadcast("thr_1", []byte("x"))
	}
	assert.Len(t, ch, subscriberBuffer)
}
