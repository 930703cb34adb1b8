package llmprovider

import "strings"

// FromTag resolves a free-form provider-type tag (as found in
// configuration) to a ProviderKind, defaulting to generic for anything
// unrecognized.
func FromTag(tag string) ProviderKind {
	switch strings.ToLower(strings.TrimSpace(tag)) {
	case "openai":
		return KindOpenAI
	case "deepseek":
		return KindDeepSeek
	case "litellm":
		return KindLiteLLM
	default:
		return KindGeneric
	}
}

// NewFromTag builds a Provider from a provider-type tag and config.
func NewFromTag(tag string, cfg Config) Provider {
	return New(FromTag(tag), cfg)
}
