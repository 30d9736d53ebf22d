package utils

import (
	"embed"
	"fmt"
)

//go:embed prompts
var promptFiles embed.FS

const (
	PromptFundamentalAnalyst = "fundamental_analyst"
	PromptSynthesis          = "synthesis"
	PromptFinish             = "finish"
)

// LoadPrompt loads a prompt from the embedded markdown files
func LoadPrompt(path string) (string, error) {
	content, err := promptFiles.ReadFile(fmt.Sprintf("prompts/%s.md", path))
	if err != nil {
		return "", fmt.Errorf("failed to load prompt %s: %w", path, err)
	}
	return string(content), nil
}

// MustLoadPrompt panics on a missing embedded prompt.
func MustLoadPrompt(path string) string {
	content, err := LoadPrompt(path)
	if err != nil {
		panic(err)
	}
	return content
}
