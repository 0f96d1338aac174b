// Package provider provides interfaces and implementations for interacting with LLM providers.
package provider

import (
	"context"
	"fmt"
)

// NewProvider creates a new LLMProvider based on the provider name.
// Names resolve through the provider registry, so a name is found only
// when its client package has been imported (each registers from init).
func NewProvider(ctx context.Context, name string) (LLMProvider, error) {
	switch name {
	case "anthropic:api_key":
		apiKey, err := GetProvider(ctx, ProviderAnthropic, AuthAPIKey)
		if err != nil {
			return nil, err
		}
		return apiKey, nil
	case "google:api_key":
		apiKey, err := GetProvider(ctx, ProviderGoogle, AuthAPIKey)
		if err != nil {
			return nil, err
		}
		return apiKey, nil
	case "openai:api_key":
		apiKey, err := GetProvider(ctx, ProviderOpenAI, AuthAPIKey)
		if err != nil {
			return nil, err
		}
		return apiKey, nil
	case "moonshot:api_key":
		apiKey, err := GetProvider(ctx, ProviderMoonshot, AuthAPIKey)
		if err != nil {
			return nil, err
		}
		return apiKey, nil
	default:
		return nil, fmt.Errorf("unknown provider: %s", name)
	}
}
