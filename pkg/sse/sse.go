package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
)

type Client struct {
	id     string
	groups map[string]bool
	ch     chan string
	done   chan struct{}
}

// Messages 已格式化的待发送消息
func (c *Client) Messages() <-chan string { return c.ch }

// Hub 管理 SSE 连接，分组由服务端决定（比如按用户），客户端不能自行加入
type Hub struct {
	mu       sync.RWMutex
	clients  map[string]*Client
	groups   map[string]map[string]bool // group -> clientID set
	interval time.Duration
	retryMs  int
	dropped  atomic.Int64
}

func NewHub(interval time.Duration) *Hub {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Hub{clients: make(map[string]*Client), groups: make(map[string]map[string]bool), interval: interval, retryMs: 5000}
}

func (h *Hub) AddClient(id string, groups ...string) *Client {
	h.mu.Lock()
	defer h.mu.Unlock()
	c := &Client{id: id, groups: make(map[string]bool), ch: make(chan string, 64), done: make(chan struct{})}
	if old, ok := h.clients[id]; ok {
		h.removeLocked(old)
	}
	h.clients[id] = c
	for _, g := range groups {
		c.groups[g] = true
		if h.groups[g] == nil {
			h.groups[g] = make(map[string]bool)
		}
		h.groups[g][id] = true
	}
	return c
}

func (h *Hub) RemoveClient(c *Client) {
	h.mu.Lock()
	if cur, ok := h.clients[c.id]; ok && cur == c {
		h.removeLocked(c)
	}
	h.mu.Unlock()
}

func (h *Hub) removeLocked(c *Client) {
	close(c.done)
	for g := range c.groups {
		delete(h.groups[g], c.id)
		if len(h.groups[g]) == 0 {
			delete(h.groups, g)
		}
	}
	delete(h.clients, c.id)
}

// Clients 当前连接数
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Dropped 因客户端缓冲区满而丢弃的消息数
func (h *Hub) Dropped() int64 { return h.dropped.Load() }

func (h *Hub) Broadcast(event, data string) { h.sendAll(formatEvent(event, data)) }

func (h *Hub) BroadcastJSON(event string, v interface{}) {
	b, _ := json.Marshal(v)
	h.sendAll(formatEvent(event, string(b)))
}

func (h *Hub) SendToGroup(group, event, data string) {
	msg := formatEvent(event, data)
	h.mu.RLock()
	for id := range h.groups[group] {
		if c := h.clients[id]; c != nil {
			h.offer(c, msg)
		}
	}
	h.mu.RUnlock()
}

func (h *Hub) SendToGroupJSON(group, event string, v interface{}) {
	b, _ := json.Marshal(v)
	h.SendToGroup(group, event, string(b))
}

func (h *Hub) sendAll(msg string) {
	h.mu.RLock()
	for _, c := range h.clients {
		h.offer(c, msg)
	}
	h.mu.RUnlock()
}

// offer 不阻塞发送方，慢客户端丢消息
func (h *Hub) offer(c *Client, msg string) {
	select {
	case c.ch <- msg:
	default:
		h.dropped.Add(1)
	}
}

func formatEvent(event, data string) string {
	var b strings.Builder
	if event != "" {
		fmt.Fprintf(&b, "event: %s\n", event)
	}
	for _, line := range strings.Split(data, "\n") {
		fmt.Fprintf(&b, "data: %s\n", line)
	}
	b.WriteString("\n")
	return b.String()
}

// Serve 阻塞直到客户端断开
func (h *Hub) Serve(c *gin.Context, clientID string, groups ...string) {
	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.Status(http.StatusInternalServerError)
		return
	}
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	fmt.Fprintf(c.Writer, "retry: %d\n\n", h.retryMs)
	flusher.Flush()

	client := h.AddClient(clientID, groups...)
	defer h.RemoveClient(client)

	ping := time.NewTicker(h.interval)
	defer ping.Stop()

	for {
		select {
		case <-client.done:
			return
		case <-c.Request.Context().Done():
			return
		case <-ping.C:
			fmt.Fprint(c.Writer, "event: ping\ndata: {}\n\n")
			flusher.Flush()
		case msg := <-client.ch:
			c.Writer.Write([]byte(msg))
			flusher.Flush()
		}
	}
}
