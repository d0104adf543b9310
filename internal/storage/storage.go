package storage

import (
	"context"
	"io"
)

// Uploader stores finished-call artifacts such as transcripts.
type Uploader interface {
	Upload(ctx context.Context, objectName string, contentType string, r io.Reader) (storedPath string, err error)
	Close() error
}

func TranscriptObject(sessionID string) string {
	return "transcripts/" + sessionID + ".txt"
}
