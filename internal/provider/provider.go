// Package provider abstracts LLM providers behind a streaming
// completion interface built on the Eino framework. Adapters exist
// for Anthropic, OpenAI-compatible and Volcengine ARK endpoints.
package provider

import (
	"context"
	"encoding/json"

	"github.com/cloudwego/eino/schema"

	"github.com/opencode-ai/core/pkg/types"
)

// Provider is one LLM backend.
type Provider interface {
	// ID returns the provider identifier.
	ID() string

	// Name returns the human-readable provider name.
	Name() string

	// Models returns the provider's model catalog.
	Models() []types.Model

	// CreateCompletion starts a streaming completion.
	CreateCompletion(ctx context.Context, req *CompletionRequest) (CompletionStream, error)
}

// CompletionRequest is one model invocation.
type CompletionRequest struct {
	Model       string             `json:"model"`
	Messages    []*schema.Message  `json:"messages"`
	Tools       []*schema.ToolInfo `json:"tools,omitempty"`
	MaxTokens   int                `json:"maxTokens,omitempty"`
	Temperature float64            `json:"temperature,omitempty"`
	TopP        float64            `json:"topP,omitempty"`
}

// CompletionStream is a lazy, finite, non-restartable sequence of
// message chunks. Recv returns io.EOF when the stream ends.
type CompletionStream interface {
	Recv() (*schema.Message, error)
	Close()
}

// einoStream adapts an Eino stream reader.
type einoStream struct {
	reader *schema.StreamReader[*schema.Message]
}

// NewEinoStream wraps an Eino stream reader.
func NewEinoStream(reader *schema.StreamReader[*schema.Message]) CompletionStream {
	return &einoStream{reader: reader}
}

func (s *einoStream) Recv() (*schema.Message, error) { return s.reader.Recv() }
func (s *einoStream) Close()                         { s.reader.Close() }

// ToolInfos converts JSON Schema tool descriptors to Eino tool infos.
func ToolInfos(tools []ToolDescriptor) []*schema.ToolInfo {
	infos := make([]*schema.ToolInfo, 0, len(tools))
	for _, t := range tools {
		infos = append(infos, &schema.ToolInfo{
			Name:        t.Name,
			Desc:        t.Description,
			ParamsOneOf: schema.NewParamsOneOfByParams(parseJSONSchemaToParams(t.Parameters)),
		})
	}
	return infos
}

// ToolDescriptor names a tool for the model.
type ToolDescriptor struct {
	Name        string
	Description string
	Parameters  json.RawMessage
}

// parseJSONSchemaToParams converts JSON Schema to Eino ParameterInfo.
func parseJSONSchemaToParams(schemaJSON json.RawMessage) map[string]*schema.ParameterInfo {
	var jsonSchema struct {
		Properties map[string]struct {
			Type        string `json:"type"`
			Description string `json:"description"`
		} `json:"properties"`
		Required []string `json:"required"`
	}

	if err := json.Unmarshal(schemaJSON, &jsonSchema); err != nil {
		return nil
	}

	requiredSet := make(map[string]bool)
	for _, r := range jsonSchema.Required {
		requiredSet[r] = true
	}

	params := make(map[string]*schema.ParameterInfo)
	for name, prop := range jsonSchema.Properties {
		paramType := schema.String
		switch prop.Type {
		case "integer":
			paramType = schema.Integer
		case "number":
			paramType = schema.Number
		case "boolean":
			paramType = schema.Boolean
		case "array":
			paramType = schema.Array
		case "object":
			paramType = schema.Object
		}

		params[name] = &schema.ParameterInfo{
			Type:     paramType,
			Desc:     prop.Description,
			Required: requiredSet[name],
		}
	}
	return params
}
