package ai

import "strings"

// SystemPrompt frames every provider as a short-form social post writer
const SystemPrompt = `You write short social media posts and replies for Twitter/X.
Every post must be concise and engaging: open with a clear hook, cut filler words, and get the most impact out of the fewest characters.

Answer in the same language as the user's context. Sound like a person, not an assistant.`

// BuildUserPrompt appends the optional style hints to the user's context
func BuildUserPrompt(params GenerateParams) string {
	var hints strings.Builder
	if params.Tone != "" {
		hints.WriteString("Tone: " + params.Tone + "\n")
	}
	if params.Format != "" {
		hints.WriteString("Format: " + params.Format + "\n")
	}
	if params.Audience != "" {
		hints.WriteString("Audience: " + params.Audience + "\n")
	}

	if hints.Len() == 0 {
		return params.Context
	}
	return params.Context + "\n\n" + hints.String()
}

// CleanOutput strips one leading and one trailing quote models tend to wrap posts in
func CleanOutput(s string) string {
	s = strings.TrimSpace(s)
	if s != "" && (s[0] == '"' || s[0] == '\'') {
		s = s[1:]
	}
	if s != "" && (s[len(s)-1] == '"' || s[len(s)-1] == '\'') {
		s = s[:len(s)-1]
	}
	return s
}
