package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"

	"github.com/yoockh/callrelay/internal/models"
)

const DefaultOpenAIModel = "gpt-4o-2024-08-06"

type OpenAIExtractor struct {
	client *openai.Client
	model  string
	now    func() time.Time
}

var _ Extractor = (*OpenAIExtractor)(nil)

func NewOpenAIExtractor(apiKey, model, baseURL string) *OpenAIExtractor {
	if model == "" {
		model = DefaultOpenAIModel
	}
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithHTTPClient(&http.Client{Timeout: 60 * time.Second}),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	client := openai.NewClient(opts...)
	return &OpenAIExtractor{client: &client, model: model, now: time.Now}
}

func (o *OpenAIExtractor) Close() error { return nil }

func (o *OpenAIExtractor) Extract(ctx context.Context, transcript string) (*models.CustomerDetails, []byte, error) {
	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(o.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(extractionPrompt(o.now().Format(time.RFC1123))),
			openai.UserMessage(transcript),
		},
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{
				JSONSchema: openai.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:   schemaName,
					Schema: customerDetailsSchema(),
					Strict: param.NewOpt(true),
				},
			},
		},
	}

	resp, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, nil, fmt.Errorf("openai extract: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, nil, errors.New("openai extract: no choices")
	}
	msg := resp.Choices[0].Message
	if msg.Refusal != "" {
		return nil, nil, fmt.Errorf("openai extract: refused: %s", msg.Refusal)
	}
	if msg.Content == "" {
		return nil, nil, errors.New("openai extract: empty content")
	}

	raw := []byte(msg.Content)
	var out models.CustomerDetails
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, raw, fmt.Errorf("openai extract: parse content: %w", err)
	}
	return &out, raw, nil
}
