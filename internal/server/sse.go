package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/alfredjeanlab/o3gate/internal/events"
)

const (
	// sseRingBufferSize is the number of recent events kept for
	// Last-Event-ID replay. A cycle emits about ten.
	sseRingBufferSize = 256

	// sseClientBuffer is the per-client queue. Events beyond it are dropped
	// for that client only.
	sseClientBuffer = 64

	sseKeepaliveInterval = 15 * time.Second

	// statusTopic carries the engine snapshot sent when a stream opens.
	statusTopic = "o3gate.status"
)

// streamEvent is one cycle event as delivered on the stream.
type streamEvent struct {
	ID      uint64
	Topic   string
	CycleID string
	Data    []byte
}

// eventRing holds the most recent events, oldest first on read.
type eventRing struct {
	buf  [sseRingBufferSize]streamEvent
	next int
	n    int
}

func (r *eventRing) push(e streamEvent) {
	r.buf[r.next] = e
	r.next = (r.next + 1) % sseRingBufferSize
	if r.n < sseRingBufferSize {
		r.n++
	}
}

// after returns the buffered events with ID greater than id.
func (r *eventRing) after(id uint64) []streamEvent {
	var out []streamEvent
	start := (r.next - r.n + sseRingBufferSize) % sseRingBufferSize
	for i := range r.n {
		e := r.buf[(start+i)%sseRingBufferSize]
		if e.ID > id {
			out = append(out, e)
		}
	}
	return out
}

// streamFilter selects the events one client receives. The zero value
// passes everything.
type streamFilter struct {
	topics  []string // NATS-style patterns
	cycleID string
}

// parseStreamFilter reads ?topics=a,b and ?cycle=cy-... from the query.
func parseStreamFilter(q url.Values) streamFilter {
	var f streamFilter
	for _, t := range strings.Split(q.Get("topics"), ",") {
		if t = strings.TrimSpace(t); t != "" {
			f.topics = append(f.topics, t)
		}
	}
	f.cycleID = strings.TrimSpace(q.Get("cycle"))
	return f
}

func (f streamFilter) match(e *streamEvent) bool {
	if f.cycleID != "" && e.CycleID != f.cycleID {
		return false
	}
	if len(f.topics) == 0 {
		return true
	}
	for _, p := range f.topics {
		if matchTopicPattern(p, e.Topic) {
			return true
		}
	}
	return false
}

// matchTopicPattern matches a dot-separated topic the way NATS matches
// subjects: "*" is one segment, a trailing ">" is one or more.
func matchTopicPattern(pattern, topic string) bool {
	if pattern == topic {
		return true
	}
	pat := strings.Split(pattern, ".")
	top := strings.Split(topic, ".")
	for i, p := range pat {
		if p == ">" {
			return i < len(top)
		}
		if i >= len(top) || (p != "*" && p != top[i]) {
			return false
		}
	}
	return len(pat) == len(top)
}

// sseHub fans cycle events out to stream clients. One lock covers ID
// assignment, the ring and the client set, so every client sees events in
// ID order and a replay never overlaps live delivery.
type sseHub struct {
	mu      sync.Mutex
	lastID  uint64
	ring    eventRing
	clients map[*sseClient]struct{}
}

type sseClient struct {
	filter streamFilter
	ch     chan *streamEvent
}

func newSSEHub() *sseHub {
	return &sseHub{clients: make(map[*sseClient]struct{})}
}

func (h *sseHub) broadcast(topic, cycleID string, payload []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.lastID++
	e := &streamEvent{ID: h.lastID, Topic: topic, CycleID: cycleID, Data: payload}
	h.ring.push(*e)

	for c := range h.clients {
		if !c.filter.match(e) {
			continue
		}
		select {
		case c.ch <- e:
		default:
			// Slow client: drop.
		}
	}
}

// subscribe registers a client. When replayAfter is non-nil the buffered
// events after that ID which pass the filter are returned for replay.
func (h *sseHub) subscribe(f streamFilter, replayAfter *uint64) (*sseClient, []streamEvent) {
	c := &sseClient{filter: f, ch: make(chan *streamEvent, sseClientBuffer)}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = struct{}{}

	if replayAfter == nil {
		return c, nil
	}
	var replay []streamEvent
	for _, e := range h.ring.after(*replayAfter) {
		if f.match(&e) {
			replay = append(replay, e)
		}
	}
	return c, replay
}

func (h *sseHub) unsubscribe(c *sseClient) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
}

// cycleIDOf extracts the cycle a published event belongs to.
func cycleIDOf(event any) string {
	switch ev := event.(type) {
	case events.CycleStarted:
		return ev.CycleID
	case events.PhaseChanged:
		return ev.CycleID
	case events.CycleFinished:
		return ev.CycleID
	}
	return ""
}

// handleEventStream handles GET /v1/events/stream.
//
// Query parameters: topics (comma-separated patterns) and cycle (a cycle
// id). A fresh connection first gets an o3gate.status snapshot; a
// reconnect with Last-Event-ID gets the missed events instead.
func (s *Server) handleEventStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	filter := parseStreamFilter(r.URL.Query())
	var replayAfter *uint64
	if v := r.Header.Get("Last-Event-ID"); v != "" {
		if id, err := strconv.ParseUint(v, 10, 64); err == nil {
			replayAfter = &id
		}
	}

	client, replay := s.hub.subscribe(filter, replayAfter)
	defer s.hub.unsubscribe(client)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	if replayAfter == nil {
		s.writeStatusSnapshot(w, filter)
	}
	for i := range replay {
		writeSSEEvent(w, &replay[i])
	}
	flusher.Flush()

	keepalive := time.NewTicker(sseKeepaliveInterval)
	defer keepalive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case e := <-client.ch:
			writeSSEEvent(w, e)
			flusher.Flush()
		case <-keepalive.C:
			fmt.Fprint(w, ":keepalive\n\n")
			flusher.Flush()
		}
	}
}

// writeStatusSnapshot sends the current engine state without an id, so it
// does not move the client's Last-Event-ID.
func (s *Server) writeStatusSnapshot(w http.ResponseWriter, f streamFilter) {
	if s.opts.Status == nil {
		return
	}
	st := s.opts.Status.Status()
	if !f.match(&streamEvent{Topic: statusTopic, CycleID: st.CycleID}) {
		return
	}
	data, err := json.Marshal(st)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event:%s\ndata:%s\n\n", statusTopic, data)
}

func writeSSEEvent(w http.ResponseWriter, e *streamEvent) {
	fmt.Fprintf(w, "id:%d\nevent:%s\ndata:%s\n\n", e.ID, e.Topic, e.Data)
}
