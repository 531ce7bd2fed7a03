// Package cache is a read-through accelerator for status and listing reads.
// It is never consulted for capacity checks or transitions.
package cache

import (
	"context"
	"fmt"
	"time"
)

// Cache stores JSON encodable values under string keys.
type Cache interface {
	// Get decodes the cached value into dest and reports whether it was present.
	Get(ctx context.Context, key string, dest any) (bool, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	// Invalidate removes every key matching a glob pattern.
	Invalidate(ctx context.Context, pattern string) error
}

// StatusKey caches one participant's status view.
func StatusKey(queueID, participantID string) string {
	return fmt.Sprintf("status:%s:%s", queueID, participantID)
}

// StatusPattern matches every status view in a queue.
func StatusPattern(queueID string) string {
	return fmt.Sprintf("status:%s:*", queueID)
}

// QueueListKey caches one page of the active listing.
func QueueListKey(queueID string, page int) string {
	return fmt.Sprintf("queue:%s:list:%d", queueID, page)
}

// QueueListPattern matches every cached listing page of a queue.
func QueueListPattern(queueID string) string {
	return fmt.Sprintf("queue:%s:list:*", queueID)
}

// Noop never stores anything.
type Noop struct{}

func (Noop) Get(context.Context, string, any) (bool, error)        { return false, nil }
func (Noop) Set(context.Context, string, any, time.Duration) error { return nil }
func (Noop) Invalidate(context.Context, string) error              { return nil }
