// Package classifier is C5: a single external chat-completion call per
// message, with a hard deadline, exactly one retry, and a strict response
// schema. It never surfaces an error to callers — transport, parse, and
// schema failures are all logged and folded into a nil decision.
package classifier

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/santhosh-tekuri/jsonschema/v5"
	openai "github.com/sashabaranov/go-openai"

	"github.com/bdobrica/wardbot/common/retry"
)

// maxReasonLen is the clamp applied to the classifier's free-text reason.
const maxReasonLen = 160

// responseSchemaJSON is the strict contract every classifier response must
// satisfy: {is_prohibited: bool, label: string, confidence: number, reason: string}.
const responseSchemaJSON = `{
	"type": "object",
	"required": ["is_prohibited", "label", "confidence", "reason"],
	"properties": {
		"is_prohibited": {"type": "boolean"},
		"label": {"type": "string"},
		"confidence": {"type": "number", "minimum": 0, "maximum": 1},
		"reason": {"type": "string"}
	}
}`

const systemPrompt = `You are a content moderation classifier for a chat group. ` +
	`Given a message, decide whether it violates the group's rules. ` +
	`Respond ONLY with a JSON object: {"is_prohibited": bool, "label": string, "confidence": number between 0 and 1, "reason": string}.`

// Decision is the structured classifier response, coerced and clamped.
type Decision struct {
	IsProhibited bool
	Label        string
	Confidence   float64
	Reason       string
}

// Client issues classification requests against an OpenRouter-compatible
// chat-completion endpoint.
type Client struct {
	oa      *openai.Client
	model   string
	timeout time.Duration
	schema  *jsonschema.Schema
}

// New constructs a Client. baseURL points at an OpenAI-compatible endpoint
// (OPENROUTER_BASE_URL); model is the chat-completion model name
// (OPENROUTER_MODEL); timeout is the per-call deadline (OPENROUTER_TIMEOUT_SEC).
func New(apiKey, baseURL, model string, timeout time.Duration) (*Client, error) {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("response.json", strings.NewReader(responseSchemaJSON)); err != nil {
		return nil, fmt.Errorf("classifier: add schema resource: %w", err)
	}
	schema, err := compiler.Compile("response.json")
	if err != nil {
		return nil, fmt.Errorf("classifier: compile schema: %w", err)
	}

	return &Client{
		oa:      openai.NewClientWithConfig(cfg),
		model:   model,
		timeout: timeout,
		schema:  schema,
	}, nil
}

// Classify issues one request (with one retry after 500ms on transport
// failure) and returns the coerced decision, or nil if the call failed, the
// response could not be parsed, or the response failed schema validation.
// Per §4.5, this method never returns an error to its caller.
func (c *Client) Classify(ctx context.Context, text string, labels []string) *Decision {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	userPrompt := fmt.Sprintf(
		"Recognized labels: %s\n\nMessage:\n%s",
		strings.Join(labels, ", "), text,
	)

	var raw string
	err := retry.Do(ctx, retry.Config{MaxAttempts: 2, InitialDelay: 500 * time.Millisecond}, func() error {
		resp, err := c.oa.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model: c.model,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
				{Role: openai.ChatMessageRoleUser, Content: userPrompt},
			},
			ResponseFormat: &openai.ChatCompletionResponseFormat{
				Type: openai.ChatCompletionResponseFormatTypeJSONObject,
			},
		})
		if err != nil {
			return err
		}
		if len(resp.Choices) == 0 {
			return fmt.Errorf("classifier: empty response")
		}
		raw = resp.Choices[0].Message.Content
		return nil
	})
	if err != nil {
		log.Warn().Err(err).Msg("classifier: call failed after retry")
		return nil
	}

	return c.parseAndValidate(raw)
}

func (c *Client) parseAndValidate(raw string) *Decision {
	var parsed any
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		log.Warn().Err(err).Str("raw", raw).Msg("classifier: response is not valid JSON")
		return nil
	}
	if err := c.schema.Validate(parsed); err != nil {
		log.Warn().Err(err).Msg("classifier: response failed schema validation")
		return nil
	}

	var typed struct {
		IsProhibited bool    `json:"is_prohibited"`
		Label        string  `json:"label"`
		Confidence   float64 `json:"confidence"`
		Reason       string  `json:"reason"`
	}
	if err := json.Unmarshal([]byte(raw), &typed); err != nil {
		log.Warn().Err(err).Msg("classifier: response re-decode failed")
		return nil
	}

	reason := typed.Reason
	if len(reason) > maxReasonLen {
		reason = reason[:maxReasonLen]
	}

	return &Decision{
		IsProhibited: typed.IsProhibited,
		Label:        typed.Label,
		Confidence:   typed.Confidence,
		Reason:       reason,
	}
}
