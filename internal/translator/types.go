package translator

import (
	"context"

	"github.com/MimeLyc/subtitle-studio/internal/llm"
)

// Translator translates one batch of subtitle texts. The result has the same
// length and order as texts.
type Translator interface {
	Translate(ctx context.Context, texts []string, sourceLang, targetLang string) ([]string, error)
}

// ChatClient is the part of the LLM client the translator needs.
type ChatClient interface {
	ChatCompletion(ctx context.Context, messages []llm.Message, opts *llm.ChatCompletionOptions) (*llm.ChatResponse, error)
}

// CheckpointStore remembers finished batches of one job so a restarted job
// can skip them.
type CheckpointStore interface {
	Load(start, end int) ([]string, bool)
	Save(ctx context.Context, start, end int, translated []string) error
}

// ProgressFunc is called after each batch with the number of lines done.
type ProgressFunc func(done, total int)
