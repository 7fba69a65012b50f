package translator

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/MimeLyc/subtitle-studio/pkg/log"
	"golang.org/x/sync/errgroup"
)

// Batcher splits a subtitle into fixed size batches and translates them
// concurrently. A batch whose output line count does not match its input is
// split in half and retried until it reaches a single line.
type Batcher struct {
	translator  Translator
	batchSize   int
	concurrency int
}

func NewBatcher(translator Translator, batchSize, concurrency int) *Batcher {
	if batchSize <= 0 {
		batchSize = 50
	}
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Batcher{translator: translator, batchSize: batchSize, concurrency: concurrency}
}

// TranslateAll translates texts keeping their order. checkpoints and progress
// may be nil.
func (b *Batcher) TranslateAll(
	ctx context.Context,
	texts []string,
	sourceLang, targetLang string,
	checkpoints CheckpointStore,
	progress ProgressFunc,
) ([]string, error) {
	result := make([]string, len(texts))
	if len(texts) == 0 {
		return result, nil
	}

	var (
		mu   sync.Mutex
		done int
	)
	advance := func(n int) {
		if progress == nil {
			return
		}
		mu.Lock()
		done += n
		current := done
		mu.Unlock()
		progress(current, len(texts))
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.concurrency)
	for start := 0; start < len(texts); start += b.batchSize {
		end := min(start+b.batchSize, len(texts))
		g.Go(func() error {
			if checkpoints != nil {
				if cached, ok := checkpoints.Load(start, end); ok && len(cached) == end-start {
					copy(result[start:end], cached)
					advance(end - start)
					return nil
				}
			}

			translated, err := b.translateRange(gctx, texts[start:end], sourceLang, targetLang)
			if err != nil {
				return fmt.Errorf("batch %d-%d: %w", start, end, err)
			}
			copy(result[start:end], translated)

			if checkpoints != nil {
				if err := checkpoints.Save(gctx, start, end, translated); err != nil {
					log.Warn("Failed to save checkpoint for batch %d-%d: %v", start, end, err)
				}
			}
			advance(end - start)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return result, nil
}

func (b *Batcher) translateRange(ctx context.Context, texts []string, sourceLang, targetLang string) ([]string, error) {
	translated, err := b.translator.Translate(ctx, texts, sourceLang, targetLang)
	if err == nil && len(translated) != len(texts) {
		err = &CountMismatchError{Expected: len(texts), Got: len(translated)}
	}
	if err == nil {
		return translated, nil
	}

	var mismatch *CountMismatchError
	if !errors.As(err, &mismatch) || len(texts) < 2 {
		return nil, err
	}

	log.Debug("Splitting batch of %d lines after mismatch: %v", len(texts), err)
	mid := len(texts) / 2
	left, err := b.translateRange(ctx, texts[:mid], sourceLang, targetLang)
	if err != nil {
		return nil, err
	}
	right, err := b.translateRange(ctx, texts[mid:], sourceLang, targetLang)
	if err != nil {
		return nil, err
	}
	return append(left, right...), nil
}
