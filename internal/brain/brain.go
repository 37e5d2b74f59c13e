// Package brain keeps the in-memory registry of per-chat, per-user chain
// models and keeps it in step with the durable store.
//
// A Brain is not safe for concurrent use; callers serialize access.
package brain

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sort"
	"strconv"
	"strings"

	"github.com/suPer8Hu/chatmimic/internal/markov"
	"github.com/suPer8Hu/chatmimic/internal/store"
	"go.uber.org/zap"
)

type Options struct {
	MinOrder int
	MaxOrder int
	// MaxReplyTokens is exclusive: replies must be shorter.
	MaxReplyTokens int
	MaxGenRetries  int
	// PersistEvery is the number of feeds between write-through saves.
	PersistEvery int
}

func (o Options) withDefaults() Options {
	if o.MinOrder < 1 {
		o.MinOrder = 1
	}
	if o.MaxOrder < o.MinOrder {
		o.MaxOrder = o.MinOrder
	}
	if o.MaxReplyTokens <= 0 {
		o.MaxReplyTokens = 15
	}
	if o.MaxGenRetries <= 0 {
		o.MaxGenRetries = 100
	}
	if o.PersistEvery <= 0 {
		o.PersistEvery = 10
	}
	return o
}

// Reply is a generated line attributed to the user whose model produced it.
type Reply struct {
	User UserName
	Text string
}

type userModel struct {
	name   UserName
	chains *markov.MultiOrderChain
}

type Brain struct {
	opts Options
	kv   store.KV
	log  *zap.Logger
	rng  *rand.Rand

	users  map[int64]map[string]*userModel
	loaded map[int64]struct{}
	fed    uint64
}

type Option func(*Brain)

func WithRand(r *rand.Rand) Option {
	return func(b *Brain) {
		if r != nil {
			b.rng = r
		}
	}
}

// New builds an empty registry. kv may be nil, in which case nothing is
// loaded or saved.
func New(opts Options, kv store.KV, log *zap.Logger, extra ...Option) *Brain {
	if log == nil {
		log = zap.NewNop()
	}
	b := &Brain{
		opts:   opts.withDefaults(),
		kv:     kv,
		log:    log,
		rng:    rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		users:  make(map[int64]map[string]*userModel),
		loaded: make(map[int64]struct{}),
	}
	for _, o := range extra {
		o(b)
	}
	return b
}

// Fed returns the number of messages fed since start.
func (b *Brain) Fed() uint64 { return b.fed }

// IsKnownUser reports whether a model for the user is in memory.
func (b *Brain) IsKnownUser(chatID int64, user UserName) bool {
	_, ok := b.users[chatID][user.Key()]
	return ok
}

// Users returns the users of a chat sorted by key.
func (b *Brain) Users(chatID int64) []UserName {
	chat := b.users[chatID]
	out := make([]UserName, 0, len(chat))
	for _, m := range chat {
		out = append(out, m.name)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out
}

func (b *Brain) newModel() *markov.MultiOrderChain {
	return markov.NewMultiOrderChain(b.opts.MinOrder, b.opts.MaxOrder, markov.WithRand(b.rng))
}

func (b *Brain) model(chatID int64, user UserName) *userModel {
	chat, ok := b.users[chatID]
	if !ok {
		chat = make(map[string]*userModel)
		b.users[chatID] = chat
	}
	m, ok := chat[user.Key()]
	if !ok {
		m = &userModel{name: user, chains: b.newModel()}
		chat[user.Key()] = m
	}
	return m
}

// FeedMessage trains the user's model on text. When persist is set, every
// PersistEvery-th feed saves that user's model; save errors are logged.
func (b *Brain) FeedMessage(ctx context.Context, chatID int64, user UserName, text string, persist bool) {
	m := b.model(chatID, user)
	m.chains.Feed(text)
	b.fed++

	if persist && b.fed%uint64(b.opts.PersistEvery) == 0 {
		if err := b.Persist(ctx, chatID, user); err != nil {
			b.log.Error("persist user model",
				zap.Int64("chat_id", chatID),
				zap.String("user", user.String()),
				zap.Error(err),
			)
		}
	}
}

// Persist writes one user's model to the store.
func (b *Brain) Persist(ctx context.Context, chatID int64, user UserName) error {
	m, ok := b.users[chatID][user.Key()]
	if !ok {
		return nil
	}
	if b.kv == nil {
		b.log.Warn("no durable store configured, model not saved",
			zap.Int64("chat_id", chatID), zap.String("user", user.String()))
		return nil
	}

	raw, err := encodeModel(m.name, m.chains)
	if err != nil {
		return fmt.Errorf("snapshot %s: %w", user, err)
	}
	return b.kv.Set(ctx, storeKey(chatID, user), raw)
}

// Hydrate loads every stored model of a chat, once. Store errors are
// returned and leave the chat unloaded so a later call retries. Entries
// that fail to decode are logged and skipped.
func (b *Brain) Hydrate(ctx context.Context, chatID int64) error {
	if _, ok := b.loaded[chatID]; ok {
		return nil
	}
	if b.kv == nil {
		b.log.Warn("no durable store configured, nothing to load", zap.Int64("chat_id", chatID))
		b.loaded[chatID] = struct{}{}
		return nil
	}

	b.log.Info("loading chat data", zap.Int64("chat_id", chatID))

	keys, err := b.kv.Keys(ctx, chatPrefix(chatID))
	if err != nil {
		return fmt.Errorf("list models of chat %d: %w", chatID, err)
	}
	sort.Strings(keys)

	raw := make(map[string][]byte, len(keys))
	for _, key := range keys {
		v, err := b.kv.Get(ctx, key)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return fmt.Errorf("fetch %s: %w", key, err)
		}
		raw[key] = v
	}

	loaded := 0
	for _, key := range keys {
		v, ok := raw[key]
		if !ok {
			continue
		}
		keyChat, name, ok := parseStoreKey(key)
		if !ok || keyChat != chatID {
			b.log.Warn("skipping foreign key", zap.Int64("chat_id", chatID), zap.String("key", key))
			continue
		}

		chains := b.newModel()
		display, err := decodeModel(v, chains)
		if err != nil {
			b.log.Error("skipping unreadable model",
				zap.Int64("chat_id", chatID), zap.String("key", key), zap.Error(err))
			continue
		}

		user := NewUserName(name)
		if display != "" {
			if named := NewUserName(display); named.Equal(user) {
				user = named
			} else {
				b.log.Warn("stored name does not match key, using key",
					zap.Int64("chat_id", chatID), zap.String("key", key), zap.String("name", display))
			}
		}
		chat, ok := b.users[chatID]
		if !ok {
			chat = make(map[string]*userModel)
			b.users[chatID] = chat
		}
		chat[user.Key()] = &userModel{name: user, chains: chains}
		loaded++
		b.log.Debug("user model loaded", zap.Int64("chat_id", chatID), zap.String("user", user.String()))
	}

	b.loaded[chatID] = struct{}{}
	b.log.Info("chat data loaded", zap.Int64("chat_id", chatID), zap.Int("users", loaded))
	return nil
}

// ChooseUser picks a user of the chat uniformly at random.
func (b *Brain) ChooseUser(chatID int64) (UserName, bool) {
	users := b.Users(chatID)
	if len(users) == 0 {
		return UserName{}, false
	}
	return users[b.rng.IntN(len(users))], true
}

// GenerateFromToken asks random users' models for a line opened by token.
func (b *Brain) GenerateFromToken(chatID int64, token string, order int) (Reply, bool) {
	return b.generate(chatID, func(c *markov.MultiOrderChain) ([]string, bool) {
		return c.GenerateOrderFromToken(order, token)
	})
}

// GenerateFromEmpty asks random users' models for any novel line.
func (b *Brain) GenerateFromEmpty(chatID int64, order int) (Reply, bool) {
	return b.generate(chatID, func(c *markov.MultiOrderChain) ([]string, bool) {
		return c.GenerateOrderFromEmpty(order)
	})
}

func (b *Brain) generate(chatID int64, gen func(*markov.MultiOrderChain) ([]string, bool)) (Reply, bool) {
	for i := 0; i < b.opts.MaxGenRetries; i++ {
		user, ok := b.ChooseUser(chatID)
		if !ok {
			return Reply{}, false
		}
		m := b.users[chatID][user.Key()]

		tokens, ok := gen(m.chains)
		if ok && len(tokens) < b.opts.MaxReplyTokens {
			return Reply{User: m.name, Text: strings.Join(tokens, " ")}, true
		}
	}
	return Reply{}, false
}

func chatPrefix(chatID int64) string {
	return strconv.FormatInt(chatID, 10) + "_"
}

func storeKey(chatID int64, user UserName) string {
	return chatPrefix(chatID) + user.Key()
}

// parseStoreKey splits "{chat}_{user}" on the first underscore after the
// chat id. The user part may itself contain underscores.
func parseStoreKey(key string) (int64, string, bool) {
	start := 0
	if strings.HasPrefix(key, "-") {
		start = 1
	}
	i := strings.IndexByte(key[start:], '_')
	if i < 0 {
		return 0, "", false
	}
	i += start
	chatID, err := strconv.ParseInt(key[:i], 10, 64)
	if err != nil {
		return 0, "", false
	}
	name := key[i+1:]
	if name == "" {
		return 0, "", false
	}
	return chatID, name, true
}
