package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	appconfig "github.com/valooran/patient-intake-system/internal/config"
	"github.com/valooran/patient-intake-system/internal/conversation"
	"github.com/valooran/patient-intake-system/pkg/logging"
)

const (
	ProviderOpenAI  = "openai"
	ProviderBedrock = "bedrock"
	ProviderGemini  = "gemini"
	ProviderStub    = "stub"
)

// ErrMissingLLMCredentials is returned when the selected provider is not configured.
var ErrMissingLLMCredentials = errors.New("bootstrap: llm provider credentials missing")

// LLM is a configured model client plus what is needed to describe and release it.
type LLM struct {
	Client   conversation.LLMClient
	Provider string
	Model    string
	closer   func() error
}

// Close releases provider connections.
func (l *LLM) Close() error {
	if l == nil || l.closer == nil {
		return nil
	}
	return l.closer()
}

// BuildLLM selects the one model provider this process talks to. The scripted stub is
// only used when LLM_PROVIDER=stub; a real provider without credentials is an error.
func BuildLLM(ctx context.Context, cfg *appconfig.Config, awsCfg *aws.Config, logger *logging.Logger) (*LLM, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	switch name := strings.ToLower(strings.TrimSpace(cfg.LLMProvider)); name {
	case ProviderOpenAI, "":
		if strings.TrimSpace(cfg.OpenAIAPIKey) == "" {
			return nil, fmt.Errorf("%w: OPENAI_API_KEY is not set", ErrMissingLLMCredentials)
		}
		client, err := conversation.NewOpenAILLMClientFromKey(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.OpenAIModel)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: openai client: %w", err)
		}
		return &LLM{Client: client, Provider: ProviderOpenAI, Model: cfg.OpenAIModel}, nil
	case ProviderBedrock:
		if strings.TrimSpace(cfg.BedrockModelID) == "" {
			return nil, fmt.Errorf("%w: BEDROCK_MODEL_ID is not set", ErrMissingLLMCredentials)
		}
		if awsCfg == nil {
			return nil, fmt.Errorf("%w: aws config is required for bedrock", ErrMissingLLMCredentials)
		}
		client := conversation.NewBedrockLLMClient(bedrockruntime.NewFromConfig(*awsCfg), cfg.BedrockModelID)
		return &LLM{Client: client, Provider: ProviderBedrock, Model: cfg.BedrockModelID}, nil
	case ProviderGemini:
		if strings.TrimSpace(cfg.GeminiAPIKey) == "" {
			return nil, fmt.Errorf("%w: GEMINI_API_KEY is not set", ErrMissingLLMCredentials)
		}
		client, err := conversation.NewGeminiLLMClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: gemini client: %w", err)
		}
		return &LLM{Client: client, Provider: ProviderGemini, Model: cfg.GeminiModel, closer: client.Close}, nil
	case ProviderStub:
		logger.Warn("using scripted stub LLM client; replies are not real diagnoses", "env", cfg.Env)
		return &LLM{Client: conversation.NewStubLLMClient(), Provider: ProviderStub, Model: "stub"}, nil
	default:
		return nil, fmt.Errorf("bootstrap: unknown LLM provider %q", name)
	}
}
