// Package heartbeat publishes a periodic liveness key for this pool
// instance to Redis. It is purely observational: nothing in the pool's
// acquire/release/health path reads it back, and losing Redis never
// affects pool behavior beyond the heartbeat itself going quiet.
package heartbeat

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "mysqlpool:instance:"

// Heartbeat periodically SETs an expiring presence key for one pool
// instance.
type Heartbeat struct {
	client     *redis.Client
	instanceID string
	interval   time.Duration
	ttl        time.Duration
	stopCh     chan struct{}
	done       chan struct{}
}

// New builds a Heartbeat that writes to client under instanceID, every
// interval, with ttl as the key's expiry.
func New(client *redis.Client, instanceID string, interval, ttl time.Duration) *Heartbeat {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Heartbeat{
		client:     client,
		instanceID: instanceID,
		interval:   interval,
		ttl:        ttl,
		stopCh:     make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Start begins the heartbeat loop in a background goroutine. It sends
// one heartbeat immediately before returning control to the caller.
func (h *Heartbeat) Start(ctx context.Context) {
	h.send(ctx)
	go h.loop(ctx)
}

// Stop signals the loop to exit and waits for it to finish.
func (h *Heartbeat) Stop() {
	close(h.stopCh)
	<-h.done
}

func (h *Heartbeat) loop(ctx context.Context) {
	defer close(h.done)

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-h.stopCh:
			return
		case <-ticker.C:
			h.send(ctx)
		}
	}
}

func (h *Heartbeat) send(ctx context.Context) {
	key := fmt.Sprintf("%s%s", keyPrefix, h.instanceID)
	if err := h.client.Set(ctx, key, time.Now().Unix(), h.ttl).Err(); err != nil {
		log.Printf("heartbeat: failed to refresh presence key: %v", err)
	}
}
