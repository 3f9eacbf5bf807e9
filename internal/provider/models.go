package provider

import "github.com/opencode-ai/core/pkg/types"

func anthropicModels() []types.Model {
	return []types.Model{
		{
			ID:            "claude-sonnet-4-20250514",
			Name:          "Claude Sonnet 4",
			ProviderID:    "anthropic",
			ContextWindow: 200000,
			MaxOutput:     64000,
			SupportsTools: true,
			CostPer1MIn:   3, CostPer1MOut: 15, CostPer1MCache: 0.3,
		},
		{
			ID:            "claude-3-5-haiku-20241022",
			Name:          "Claude 3.5 Haiku",
			ProviderID:    "anthropic",
			ContextWindow: 200000,
			MaxOutput:     8192,
			SupportsTools: true,
			CostPer1MIn:   0.8, CostPer1MOut: 4, CostPer1MCache: 0.08,
		},
	}
}

func openAIModels() []types.Model {
	return []types.Model{
		{
			ID:            "gpt-4o",
			Name:          "GPT-4o",
			ProviderID:    "openai",
			ContextWindow: 128000,
			MaxOutput:     16384,
			SupportsTools: true,
			CostPer1MIn:   2.5, CostPer1MOut: 10,
		},
		{
			ID:            "gpt-4o-mini",
			Name:          "GPT-4o mini",
			ProviderID:    "openai",
			ContextWindow: 128000,
			MaxOutput:     16384,
			SupportsTools: true,
			CostPer1MIn:   0.15, CostPer1MOut: 0.6,
		},
	}
}

// arkModels describes the configured ARK endpoint; limits are the
// platform defaults since endpoints are user-defined.
func arkModels(endpointID string) []types.Model {
	return []types.Model{
		{
			ID:            endpointID,
			Name:          "ARK " + endpointID,
			ProviderID:    "ark",
			ContextWindow: 128000,
			MaxOutput:     16384,
			SupportsTools: true,
		},
	}
}
