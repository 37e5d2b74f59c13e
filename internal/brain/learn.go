package brain

import (
	"context"
	"fmt"
	"sort"

	"github.com/suPer8Hu/chatmimic/internal/history"
	"go.uber.org/zap"
)

// LearnFromHistory feeds every plain-text message of an export into its
// author's model, then saves the touched models. With a non-nil only, other
// authors are skipped and only that user is saved. It returns the number of
// messages fed.
func (b *Brain) LearnFromHistory(ctx context.Context, chatID int64, exp *history.Export, only *UserName) (int, error) {
	if exp == nil {
		return 0, nil
	}

	processed := 0
	touched := make(map[string]UserName)

	for _, msg := range exp.Messages {
		if msg.From == nil {
			continue
		}
		author := NewUserName(*msg.From)
		if only != nil && !only.Equal(author) {
			continue
		}

		text, ok := msg.Text.Plain()
		if !ok || text == "" {
			continue
		}

		b.FeedMessage(ctx, chatID, author, text, false)
		if _, seen := touched[author.Key()]; !seen {
			touched[author.Key()] = author
		}
		processed++
	}

	b.log.Info("history learned",
		zap.Int64("chat_id", chatID),
		zap.Int("processed", processed),
		zap.Int("authors", len(touched)),
	)

	if only != nil {
		if err := b.Persist(ctx, chatID, *only); err != nil {
			return processed, fmt.Errorf("save %s: %w", only, err)
		}
		return processed, nil
	}

	keys := make([]string, 0, len(touched))
	for k := range touched {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := b.Persist(ctx, chatID, touched[k]); err != nil {
			return processed, fmt.Errorf("save %s: %w", touched[k], err)
		}
	}
	return processed, nil
}
