package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"log"
	"math/rand/v2"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

var pages = []string{"/", "/orders", "/orders/42", "/cart", "/settings/profile"}

// beacon builds a synthetic collector beacon for one simulated tab.
func beacon(clientID string, r *rand.Rand) map[string]any {
	page := pages[r.IntN(len(pages))]
	now := time.Now().UnixMilli()

	var event map[string]any
	switch n := r.IntN(10); {
	case n < 5:
		event = map[string]any{
			"type":  "click",
			"bizId": page + "|button.btn[" + strconv.Itoa(r.IntN(5)) + "]|Continue",
			"x":     r.IntN(1280),
			"y":     r.IntN(800),
			"page":  map[string]any{"path": page},
		}
	case n < 7:
		event = map[string]any{"type": "route", "from": map[string]any{"path": "/"}, "to": map[string]any{"path": page}}
	case n < 9:
		event = map[string]any{
			"type":     "xhr",
			"url":      "https://api.example.com" + page,
			"method":   "GET",
			"status":   200,
			"duration": r.IntN(900),
		}
	default:
		event = map[string]any{"type": "error", "message": "load test error", "name": "TypeError"}
	}
	event["timestamp"] = now

	return map[string]any{
		"event": event,
		"page":  map[string]any{"url": "https://app.example.com" + page, "title": "Load test"},
		"state": map[string]any{"user": map[string]any{"userId": clientID, "userName": "worker"}},
	}
}

func main() {
	targetURL := flag.String("url", "http://localhost:8080/collect", "Target URL for beacons")
	appKey := flag.String("app-key", "", "App key sent in X-RUM-Key")
	concurrency := flag.Int("c", 10, "Number of concurrent workers (simulated tabs)")
	duration := flag.Duration("d", 30*time.Second, "Duration of the load test")
	rps := flag.Int("rps", 1000, "Requests per second limit")
	batch := flag.Int("batch", 1, "Beacons per request; more than one sends NDJSON")
	flag.Parse()

	log.Printf("Starting load test on %s", *targetURL)
	log.Printf("Concurrency: %d, Duration: %s, RPS: %d, Batch: %d", *concurrency, *duration, *rps, *batch)

	var wg sync.WaitGroup
	var successCount, errorCount, beaconCount atomic.Int64
	ctx, cancel := context.WithTimeout(context.Background(), *duration)
	defer cancel()

	limiter := rate.NewLimiter(rate.Limit(*rps), 100) // Allow bursts up to 100

	for i := 0; i < *concurrency; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			client := &http.Client{
				Timeout: 5 * time.Second,
			}
			clientID := uuid.NewString()
			r := rand.New(rand.NewPCG(uint64(workerID), uint64(time.Now().UnixNano())))

			for {
				if err := limiter.Wait(ctx); err != nil {
					return // Deadline reached
				}

				var body bytes.Buffer
				enc := json.NewEncoder(&body)
				for b := 0; b < *batch; b++ {
					enc.Encode(beacon(clientID, r))
				}

				req, err := http.NewRequestWithContext(ctx, http.MethodPost, *targetURL, &body)
				if err != nil {
					continue // Should not happen
				}
				if *batch > 1 {
					req.Header.Set("Content-Type", "application/x-ndjson")
				} else {
					req.Header.Set("Content-Type", "application/json")
				}
				req.Header.Set("X-RUM-Client-ID", clientID)
				if *appKey != "" {
					req.Header.Set("X-RUM-Key", *appKey)
				}

				resp, err := client.Do(req)
				if err != nil {
					errorCount.Add(1)
					continue
				}

				if resp.StatusCode == http.StatusAccepted {
					successCount.Add(1)
					beaconCount.Add(int64(*batch))
				} else {
					errorCount.Add(1)
				}
				resp.Body.Close()
			}
		}(i)
	}

	wg.Wait()

	totalRequests := successCount.Load() + errorCount.Load()
	actualRPS := float64(totalRequests) / duration.Seconds()

	log.Println("Load test finished.")
	log.Printf("Total Requests: %d", totalRequests)
	log.Printf("Successful (202 Accepted): %d", successCount.Load())
	log.Printf("Beacons accepted: %d", beaconCount.Load())
	log.Printf("Errors: %d", errorCount.Load())
	log.Printf("Actual RPS: %.2f", actualRPS)
}
