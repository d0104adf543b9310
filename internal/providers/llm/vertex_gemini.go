package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	vertexgenai "cloud.google.com/go/vertexai/genai"
	"google.golang.org/api/iterator"

	"github.com/yoockh/callrelay/internal/models"
)

type VertexGemini struct {
	client *vertexgenai.Client
	model  *vertexgenai.GenerativeModel
	now    func() time.Time
}

var _ Extractor = (*VertexGemini)(nil)

func NewVertexGemini(ctx context.Context, projectID, location, modelName string) (*VertexGemini, error) {
	c, err := vertexgenai.NewClient(ctx, projectID, location)
	if err != nil {
		return nil, err
	}

	if modelName == "" {
		modelName = "gemini-1.5-flash"
	}

	m := c.GenerativeModel(modelName)
	m.ResponseMIMEType = "application/json"
	m.ResponseSchema = &vertexgenai.Schema{
		Type: vertexgenai.TypeObject,
		Properties: map[string]*vertexgenai.Schema{
			"customerName":         {Type: vertexgenai.TypeString},
			"customerAvailability": {Type: vertexgenai.TypeString},
			"specialNotes":         {Type: vertexgenai.TypeString},
		},
		Required: []string{"customerName", "customerAvailability", "specialNotes"},
	}
	return &VertexGemini{client: c, model: m, now: time.Now}, nil
}

func (v *VertexGemini) Close() error { return v.client.Close() }

func (v *VertexGemini) Extract(ctx context.Context, transcript string) (*models.CustomerDetails, []byte, error) {
	prompt := extractionPrompt(v.now().Format(time.RFC1123)) + "\n\nTranscript:\n" + transcript

	var full strings.Builder
	it := v.model.GenerateContentStream(ctx, vertexgenai.Text(prompt))
	for {
		resp, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("vertex extract: %w", err)
		}
		for _, cand := range resp.Candidates {
			if cand.Content == nil {
				continue
			}
			for _, part := range cand.Content.Parts {
				if t, ok := part.(vertexgenai.Text); ok {
					full.WriteString(string(t))
				}
			}
		}
	}

	raw := []byte(full.String())
	if len(raw) == 0 {
		return nil, nil, errors.New("vertex extract: empty response")
	}
	var out models.CustomerDetails
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, raw, fmt.Errorf("vertex extract: parse content: %w", err)
	}
	return &out, raw, nil
}
