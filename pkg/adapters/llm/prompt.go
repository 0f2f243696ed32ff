package llm

import (
	"encoding/json"
	"fmt"

	"github.com/aescanero/dagent/pkg/domain"
)

// BuildPrompt appends the shared context to the description as JSON
func BuildPrompt(description string, shared domain.SharedContext) (string, error) {
	if len(shared) == 0 {
		return description, nil
	}

	data, err := json.MarshalIndent(shared, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode shared context: %w", err)
	}
	return fmt.Sprintf("%s\n\nContext:\n%s", description, data), nil
}
