package cache

import (
	"context"
	"time"
)

type Cache interface {
	GetJSON(ctx context.Context, key string, dst any) (hit bool, err error)
	SetJSON(ctx context.Context, key string, val any, ttl time.Duration) error
}

// Publisher fans out call status messages to subscribers.
type Publisher interface {
	Publish(ctx context.Context, channel string, payload any) error
}

func SummaryKey(sessionID string) string { return "call:" + sessionID + ":summary" }

func StatusChannel(sessionID string) string { return "call:" + sessionID + ":status" }
