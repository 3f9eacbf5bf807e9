package types

// Model describes a provider model and its limits.
type Model struct {
	ID             string  `json:"id"`
	Name           string  `json:"name"`
	ProviderID     string  `json:"providerID"`
	ContextWindow  int     `json:"contextWindow"`
	MaxOutput      int     `json:"maxOutput"`
	SupportsTools  bool    `json:"supportsTools"`
	CostPer1MIn    float64 `json:"costPer1MIn"`
	CostPer1MOut   float64 `json:"costPer1MOut"`
	CostPer1MCache float64 `json:"costPer1MCache"`
}

// Cost prices a usage delta against the model's rates.
func (m *Model) Cost(tokens TokenUsage) float64 {
	in := float64(tokens.Input) * m.CostPer1MIn
	out := float64(tokens.Output+tokens.Reasoning) * m.CostPer1MOut
	cache := float64(tokens.Cache.Read) * m.CostPer1MCache
	return (in + out + cache) / 1_000_000
}

// Agent is a named configuration bundling a prompt style, allowed
// tools, a permission ruleset and a default model.
type Agent struct {
	Name        string           `json:"name"`
	Prompt      string           `json:"prompt,omitempty"`
	Model       *ModelRef        `json:"model,omitempty"`
	Tools       map[string]bool  `json:"tools,omitempty"` // nil means all
	Permissions []PermissionRule `json:"permissions,omitempty"`
	Temperature float64          `json:"temperature,omitempty"`
	TopP        float64          `json:"topP,omitempty"`
}

// ToolEnabled reports whether the agent may use a tool. An absent map
// enables everything.
func (a *Agent) ToolEnabled(id string) bool {
	if a.Tools == nil {
		return true
	}
	enabled, ok := a.Tools[id]
	return ok && enabled
}
