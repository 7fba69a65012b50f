package translator

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/MimeLyc/subtitle-studio/internal/llm"
	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

const inlineBreakerPlaceholder = "%%inline_breaker%%"

type llmTranslator struct {
	client ChatClient
}

// NewLLMTranslator creates a translator backed by a chat completion endpoint.
func NewLLMTranslator(client ChatClient) Translator {
	return &llmTranslator{client: client}
}

func (t *llmTranslator) Translate(ctx context.Context, texts []string, sourceLang, targetLang string) ([]string, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	formatted := make([]string, len(texts))
	for i, text := range texts {
		// Keep original line breaks out of the JSON payload
		formatted[i] = strings.ReplaceAll(strings.TrimSpace(text), "\n", inlineBreakerPlaceholder)
	}

	userMessage, err := buildTranslationUserMessage(formatted)
	if err != nil {
		return nil, err
	}

	opts := llm.NewChatCompletionOptions().
		WithSystemPrompt(buildSystemPrompt(LanguageName(sourceLang), LanguageName(targetLang))).
		WithTemperature(0.2)
	resp, err := t.client.ChatCompletion(ctx, []llm.Message{{Role: "user", Content: userMessage}}, opts)
	if err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no choices in response")
	}

	translated, err := parseTranslationOutput(resp.Choices[0].Message.Content, len(formatted))
	if err != nil {
		return nil, err
	}
	fixInlineBreakers(formatted, translated)
	for i := range translated {
		translated[i] = strings.ReplaceAll(translated[i], inlineBreakerPlaceholder, "\n")
	}
	return translated, nil
}

type indexedLine struct {
	Index int    `json:"index"`
	Text  string `json:"text"`
}

func buildTranslationUserMessage(texts []string) (string, error) {
	payload := struct {
		Lines []indexedLine `json:"lines"`
	}{Lines: make([]indexedLine, len(texts))}
	for i, text := range texts {
		payload.Lines[i] = indexedLine{Index: i + 1, Text: text}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to encode batch: %w", err)
	}
	return string(data), nil
}

// parseTranslationOutput accepts a JSON array of {index, text} objects, in any
// order, or a plain JSON array of strings. Anything else is rejected.
func parseTranslationOutput(content string, expected int) ([]string, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, fmt.Errorf("empty translation output")
	}

	var wrapped struct {
		Lines []indexedLine `json:"lines"`
	}
	var indexed []indexedLine
	if err := json.Unmarshal([]byte(content), &indexed); err != nil {
		if err := json.Unmarshal([]byte(content), &wrapped); err == nil && len(wrapped.Lines) > 0 {
			indexed = wrapped.Lines
		} else {
			var plain []string
			if err := json.Unmarshal([]byte(content), &plain); err != nil {
				return nil, fmt.Errorf("translation output is not valid json: %w", err)
			}
			if len(plain) != expected {
				return nil, &CountMismatchError{Expected: expected, Got: len(plain)}
			}
			return plain, nil
		}
	}

	if len(indexed) != expected {
		return nil, &CountMismatchError{Expected: expected, Got: len(indexed)}
	}
	sort.SliceStable(indexed, func(i, j int) bool { return indexed[i].Index < indexed[j].Index })
	out := make([]string, expected)
	for i, line := range indexed {
		if line.Index != i+1 {
			return nil, fmt.Errorf("translation output has unexpected index %d at position %d", line.Index, i+1)
		}
		out[i] = line.Text
	}
	return out, nil
}

// CountMismatchError reports a batch whose output line count differs from
// its input.
type CountMismatchError struct {
	Expected int
	Got      int
}

func (e *CountMismatchError) Error() string {
	return fmt.Sprintf("translation count mismatch: expected %d lines, got %d", e.Expected, e.Got)
}

// fixInlineBreakers makes every translated line carry as many inline break
// markers as its source line.
func fixInlineBreakers(source, translated []string) {
	for i := range translated {
		if i >= len(source) {
			return
		}
		want := strings.Count(source[i], inlineBreakerPlaceholder)
		if strings.Count(translated[i], inlineBreakerPlaceholder) == want {
			continue
		}

		plain := []rune(strings.ReplaceAll(translated[i], inlineBreakerPlaceholder, ""))
		if want == 0 || len(plain) == 0 {
			translated[i] = string(plain)
			continue
		}

		var sb strings.Builder
		parts := want + 1
		for p := 0; p < parts; p++ {
			start := p * len(plain) / parts
			end := (p + 1) * len(plain) / parts
			sb.WriteString(string(plain[start:end]))
			if p < want {
				sb.WriteString(inlineBreakerPlaceholder)
			}
		}
		translated[i] = sb.String()
	}
}

func buildSystemPrompt(sourceLanguage, targetLanguage string) string {
	var prompt strings.Builder

	prompt.WriteString("You are a professional subtitle translator. Translate subtitles from " + sourceLanguage + " to " + targetLanguage + ".\n\n")

	prompt.WriteString("=== TRANSLATION GUIDELINES ===\n")
	prompt.WriteString("1. Ensure " + targetLanguage + " flows naturally while preserving meaning\n")
	prompt.WriteString("2. Keep subtitle length appropriate for screen reading\n")
	prompt.WriteString("3. Keep names consistent across lines\n")
	prompt.WriteString("4. MUST preserve the count of " + inlineBreakerPlaceholder + " markers in every line\n")
	prompt.WriteString("5. Do NOT merge, split, reorder, or drop lines\n")
	prompt.WriteString("6. If an input line is empty, output text for that index MUST be an empty string\n")

	prompt.WriteString("\n=== OUTPUT FORMAT ===\n")
	prompt.WriteString("Input is JSON {\"lines\":[{\"index\":1,\"text\":\"...\"}]}.\n")
	prompt.WriteString("Return ONLY a JSON array [{\"index\":1,\"text\":\"...\"}] with one entry per input index.\n")
	prompt.WriteString("Do NOT output literal newline characters in JSON text.\n")
	prompt.WriteString("Do not include any explanations, notes, or additional text.\n")

	return prompt.String()
}

// LanguageName turns a language tag into an English name for prompts. Unknown
// or empty tags fall back to the raw value or "the detected language".
func LanguageName(tag string) string {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return "the detected language"
	}
	parsed, err := language.Parse(tag)
	if err != nil {
		return tag
	}
	if name := display.English.Languages().Name(parsed); name != "" {
		return name
	}
	return tag
}
