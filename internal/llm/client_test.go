package llm

import "testing"

func TestNewOpenAIClientValidation(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{name: "missing api key", cfg: Config{Model: "gpt-4o-mini"}},
		{name: "missing model", cfg: Config{APIKey: "sk-test"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewOpenAIClient(tt.cfg, nil); err == nil {
				t.Error("NewOpenAIClient() error = nil, want error")
			}
		})
	}
}

func TestNewOpenAIClientDefaults(t *testing.T) {
	client, err := NewOpenAIClient(Config{Model: "gpt-4o-mini", APIKey: "sk-test"}, nil)
	if err != nil {
		t.Fatalf("NewOpenAIClient() error = %v", err)
	}
	if client.maxTokens != defaultMaxTokens {
		t.Errorf("maxTokens = %d, want %d", client.maxTokens, defaultMaxTokens)
	}
	if client.maxRetries != defaultMaxRetries {
		t.Errorf("maxRetries = %d, want %d", client.maxRetries, defaultMaxRetries)
	}
}
