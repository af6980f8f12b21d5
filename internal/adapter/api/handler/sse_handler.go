package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// SSEMessage is broadcast to dashboard clients once per tick.
type SSEMessage struct {
	// Rate is accepted beacons per second over the last tick.
	Rate       float64 `json:"rate"`
	RetryQueue int     `json:"retryQueue"`
	Sent       uint64  `json:"sent"`
	Failed     uint64  `json:"failed"`
}

// DeliverySnapshot reports delivery counters for the stream.
type DeliverySnapshot func() (retryQueue int, sent, failed uint64)

// SSEBroker manages SSE client connections and broadcasts pipeline activity.
type SSEBroker struct {
	logger       *slog.Logger
	clients      map[chan []byte]struct{}
	mu           sync.RWMutex
	eventCounter chan int
	snapshot     DeliverySnapshot
	interval     time.Duration
}

// NewSSEBroker creates a new SSEBroker and starts its processing loop, which
// stops with ctx. snapshot may be nil.
func NewSSEBroker(ctx context.Context, logger *slog.Logger, snapshot DeliverySnapshot) *SSEBroker {
	return newSSEBroker(ctx, logger, snapshot, time.Second)
}

func newSSEBroker(ctx context.Context, logger *slog.Logger, snapshot DeliverySnapshot, interval time.Duration) *SSEBroker {
	broker := &SSEBroker{
		logger:       logger,
		clients:      make(map[chan []byte]struct{}),
		eventCounter: make(chan int, 1000),
		snapshot:     snapshot,
		interval:     interval,
	}
	go broker.run(ctx)
	return broker
}

// ServeHTTP handles new client connections for the SSE stream.
func (b *SSEBroker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported!", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	flusher.Flush()

	messageChan := make(chan []byte, 1)
	b.addClient(messageChan)
	defer b.removeClient(messageChan)

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-messageChan:
			if !ok {
				return
			}
			fmt.Fprintf(w, "data: %s\n\n", msg)
			flusher.Flush()
		}
	}
}

// ReportEvents is called by the collect handler with the number of accepted
// beacons.
func (b *SSEBroker) ReportEvents(count int) {
	select {
	case b.eventCounter <- count:
	default:
		// Never block the collect path.
		b.logger.Warn("SSE event counter channel is full, dropping report")
	}
}

func (b *SSEBroker) addClient(client chan []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.clients[client] = struct{}{}
	b.logger.Info("SSE client connected")
}

func (b *SSEBroker) removeClient(client chan []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.clients[client]; ok {
		delete(b.clients, client)
		close(client)
		b.logger.Info("SSE client disconnected")
	}
}

func (b *SSEBroker) broadcast(msg []byte) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for client := range b.clients {
		select {
		case client <- msg:
		default:
			// Slow client; it gets the next tick.
		}
	}
}

func (b *SSEBroker) run(ctx context.Context) {
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	var currentCount int
	lastTimestamp := time.Now()

	for {
		select {
		case <-ctx.Done():
			return
		case count := <-b.eventCounter:
			currentCount += count
		case <-ticker.C:
			now := time.Now()
			msg := SSEMessage{}
			if d := now.Sub(lastTimestamp).Seconds(); d > 0 {
				msg.Rate = float64(currentCount) / d
			}
			if b.snapshot != nil {
				msg.RetryQueue, msg.Sent, msg.Failed = b.snapshot()
			}

			jsonData, err := json.Marshal(msg)
			if err != nil {
				b.logger.Error("failed to marshal SSE message", "error", err)
				continue
			}
			b.broadcast(jsonData)

			lastTimestamp = now
			currentCount = 0
		}
	}
}
