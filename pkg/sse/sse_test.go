package sse

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatEvent(t *testing.T) {
	assert.Equal(t, "event: status\ndata: {\"id\":1}\n\n", formatEvent("status", `{"id":1}`))
	assert.Equal(t, "data: a\ndata: b\n\n", formatEvent("", "a\nb"))
}

func TestSendToGroupOnlyReachesMembers(t *testing.T) {
	h := NewHub(time.Minute)
	a := h.AddClient("a", "user:1")
	b := h.AddClient("b", "user:2")

	h.SendToGroup("user:1", "status", "hello")

	select {
	case msg := <-a.ch:
		assert.Equal(t, "event: status\ndata: hello\n\n", msg)
	default:
		t.Fatal("member did not receive message")
	}
	assert.Empty(t, b.ch)

	h.RemoveClient(a)
	assert.Equal(t, 1, h.Clients())
	h.SendToGroup("user:1", "status", "nobody")
	assert.Zero(t, h.Dropped())
}

func TestSlowClientDropsInsteadOfBlocking(t *testing.T) {
	h := NewHub(time.Minute)
	h.AddClient("slow", "g")
	for i := 0; i < 70; i++ {
		h.SendToGroup("g", "", "x")
	}
	assert.EqualValues(t, 6, h.Dropped())
}

func TestServeStreamsGroupEvents(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewHub(time.Minute)
	r := gin.New()
	r.GET("/events", func(c *gin.Context) { h.Serve(c, "conn-1", "user:7") })

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/events", nil).WithContext(ctx)
	w := httptest.NewRecorder()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		r.ServeHTTP(w, req)
	}()

	require.Eventually(t, func() bool { return h.Clients() == 1 }, time.Second, 5*time.Millisecond)
	h.SendToGroupJSON("user:7", "voiceClone", map[string]int{"to": 2})
	time.Sleep(50 * time.Millisecond)
	cancel()
	wg.Wait()

	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Body.String(), "retry: 5000")
	assert.Contains(t, w.Body.String(), "event: voiceClone\ndata: {\"to\":2}\n\n")
	assert.Zero(t, h.Clients())
}
