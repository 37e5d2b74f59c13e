// Package bot turns inbound chat events into model updates and replies.
//
// Service owns the Brain and is the only thing that touches it; every call
// takes the same lock, so events are applied one at a time.
package bot

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/suPer8Hu/chatmimic/internal/brain"
	"github.com/suPer8Hu/chatmimic/internal/common"
	"github.com/suPer8Hu/chatmimic/internal/history"
	"github.com/suPer8Hu/chatmimic/internal/imports"
	"github.com/suPer8Hu/chatmimic/internal/markov"
	"go.uber.org/zap"
)

// replyOrder is the chain order used for spontaneous replies.
const replyOrder = 2

type Event struct {
	ChatID    int64     `json:"chat_id"`
	MessageID int64     `json:"message_id,omitempty"`
	UserName  string    `json:"user_name"`
	Text      string    `json:"text"`
	Date      time.Time `json:"date"`
}

type Reply struct {
	ChatID  int64  `json:"chat_id"`
	ReplyTo int64  `json:"reply_to,omitempty"`
	Text    string `json:"text"`
}

type HistoryFetcher interface {
	Fetch(ctx context.Context, url string) (*history.Export, error)
}

type JobStore interface {
	Create(ctx context.Context, job *imports.Job) error
	MarkRunning(ctx context.Context, id string) error
	MarkSucceeded(ctx context.Context, id string, processed int) error
	MarkFailed(ctx context.Context, id string, processed int, errMsg string) error
}

type Policy struct {
	// Messages older than this are learned from but never answered.
	ReplyTimeout       time.Duration
	ReplyProb          float64
	KnownWordReplyProb float64
}

type Service struct {
	mu sync.Mutex

	brain   *brain.Brain
	fetcher HistoryFetcher
	jobs    JobStore
	policy  Policy
	log     *zap.Logger

	rng *rand.Rand
	now func() time.Time
}

type Option func(*Service)

func WithRand(r *rand.Rand) Option {
	return func(s *Service) { s.rng = r }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(b *brain.Brain, fetcher HistoryFetcher, jobs JobStore, policy Policy, log *zap.Logger, opts ...Option) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Service{
		brain:   b,
		fetcher: fetcher,
		jobs:    jobs,
		policy:  policy,
		log:     log,
		rng:     rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		now:     time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Handle applies one chat event and returns the replies to send, in order.
func (s *Service) Handle(ctx context.Context, ev Event) []Reply {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Reply
	reply := func(text string) {
		out = append(out, Reply{ChatID: ev.ChatID, ReplyTo: ev.MessageID, Text: text})
	}

	if err := s.brain.Hydrate(ctx, ev.ChatID); err != nil {
		s.log.Error("hydrate chat", zap.Int64("chat_id", ev.ChatID), zap.Error(err))
		reply(fmt.Sprintf("Error loading chat data, reason: %v", err))
	}

	text := ev.Text
	switch {
	case strings.HasPrefix(text, "/learn"):
		s.handleLearn(ctx, ev, reply)
	case strings.HasPrefix(text, "/say"):
		s.handleSay(ev, reply)
	case text != "":
		s.handleText(ctx, ev, reply)
	}
	return out
}

func (s *Service) handleLearn(ctx context.Context, ev Event, reply func(string)) {
	_, rest, found := strings.Cut(ev.Text, "/learn ")
	if !found {
		reply("Wrong syntax, use '/learn url_to_json' [name]")
		return
	}

	rawURL, name, _ := strings.Cut(strings.TrimSpace(rest), " ")
	var only *brain.UserName
	if name = strings.TrimSpace(name); name != "" {
		u := brain.NewUserName(name)
		only = &u
	}

	if _, err := parseHistoryURL(rawURL); err != nil {
		reply(fmt.Sprintf("Error parsing uri: %s", rawURL))
		return
	}

	reply("Downloading history data")
	job, exp, err := s.startImport(ctx, ev.ChatID, rawURL, only)
	if err != nil {
		reply(fmt.Sprintf("Error downloading uri: %v", err))
		return
	}
	reply("Download completed")
	reply("Learning...")

	processed, err := s.finishImport(ctx, job, exp, only)
	if err != nil {
		reply(fmt.Sprintf("Error learning, reason: %v", err))
		return
	}
	reply(fmt.Sprintf("Done learning, %d messages processed!", processed))
}

func (s *Service) handleSay(ev Event, reply func(string)) {
	parts := strings.Split(ev.Text, "/say ")
	if len(parts) < 2 {
		reply("Wrong syntax, use '/say order (from 1 to 3)'")
		return
	}
	order, err := strconv.Atoi(strings.TrimSpace(parts[len(parts)-1]))
	if err != nil {
		order = 1
	}
	if r, ok := s.brain.GenerateFromEmpty(ev.ChatID, order); ok {
		reply(formatReply(r))
	}
}

func (s *Service) handleText(ctx context.Context, ev Event, reply func(string)) {
	user := brain.NewUserName(ev.UserName)
	// only users introduced through /learn are mimicked
	if !s.brain.IsKnownUser(ev.ChatID, user) {
		return
	}
	s.brain.FeedMessage(ctx, ev.ChatID, user, ev.Text, true)

	if !ev.Date.IsZero() && s.now().Sub(ev.Date) > s.policy.ReplyTimeout {
		return
	}

	if tokens := markov.Tokenize(ev.Text); len(tokens) > 0 {
		if r, ok := s.brain.GenerateFromToken(ev.ChatID, tokens[len(tokens)-1], replyOrder); ok {
			if s.rng.Float64() <= s.policy.KnownWordReplyProb {
				reply(formatReply(r))
			}
			return
		}
	}
	if r, ok := s.brain.GenerateFromEmpty(ev.ChatID, replyOrder); ok {
		if s.rng.Float64() <= s.policy.ReplyProb {
			reply(formatReply(r))
		}
	}
}

// Import runs a history import outside of the chat command flow and
// returns the finished job.
func (s *Service) Import(ctx context.Context, chatID int64, rawURL string, only *brain.UserName) (*imports.Job, error) {
	if _, err := parseHistoryURL(rawURL); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.brain.Hydrate(ctx, chatID); err != nil {
		return nil, fmt.Errorf("load chat: %w", err)
	}
	job, exp, err := s.startImport(ctx, chatID, rawURL, only)
	if err != nil {
		return job, err
	}
	_, err = s.finishImport(ctx, job, exp, only)
	return job, err
}

func (s *Service) startImport(ctx context.Context, chatID int64, rawURL string, only *brain.UserName) (*imports.Job, *history.Export, error) {
	id, err := common.NewULID()
	if err != nil {
		return nil, nil, err
	}
	job := &imports.Job{ID: id, ChatID: chatID, URL: rawURL, Status: imports.JobQueued}
	if only != nil {
		name := only.String()
		job.UserFilter = &name
	}
	if err := s.jobs.Create(ctx, job); err != nil {
		return nil, nil, fmt.Errorf("create import job: %w", err)
	}
	if err := s.jobs.MarkRunning(ctx, job.ID); err != nil {
		s.log.Warn("mark import running", zap.String("job_id", job.ID), zap.Error(err))
	}
	job.Status = imports.JobRunning

	start := time.Now()
	exp, err := s.fetcher.Fetch(ctx, rawURL)
	if err != nil {
		s.failJob(ctx, job, 0, err)
		return job, nil, err
	}
	s.log.Info("history downloaded",
		zap.String("job_id", job.ID),
		zap.Int("messages", len(exp.Messages)),
		zap.Duration("cost", time.Since(start)),
	)
	return job, exp, nil
}

func (s *Service) finishImport(ctx context.Context, job *imports.Job, exp *history.Export, only *brain.UserName) (int, error) {
	processed, err := s.brain.LearnFromHistory(ctx, job.ChatID, exp, only)
	job.Processed = processed
	if err != nil {
		s.failJob(ctx, job, processed, err)
		return processed, err
	}
	if err := s.jobs.MarkSucceeded(ctx, job.ID, processed); err != nil {
		s.log.Warn("mark import succeeded", zap.String("job_id", job.ID), zap.Error(err))
	}
	job.Status = imports.JobSucceeded
	return processed, nil
}

func (s *Service) failJob(ctx context.Context, job *imports.Job, processed int, cause error) {
	msg := cause.Error()
	job.Status = imports.JobFailed
	job.Error = &msg
	if err := s.jobs.MarkFailed(ctx, job.ID, processed, msg); err != nil {
		s.log.Warn("mark import failed", zap.String("job_id", job.ID), zap.Error(err))
	}
	s.log.Error("history import failed", zap.String("job_id", job.ID), zap.Int64("chat_id", job.ChatID), zap.Error(cause))
}

// Users loads the chat if needed and lists the users it can mimic.
func (s *Service) Users(ctx context.Context, chatID int64) ([]brain.UserName, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.brain.Hydrate(ctx, chatID); err != nil {
		return nil, err
	}
	return s.brain.Users(chatID), nil
}

// Say generates one line for a chat, seeded by token when it is not empty.
func (s *Service) Say(ctx context.Context, chatID int64, token string, order int) (brain.Reply, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.brain.Hydrate(ctx, chatID); err != nil {
		return brain.Reply{}, false, err
	}
	if token != "" {
		tokens := markov.Tokenize(token)
		if len(tokens) == 0 {
			return brain.Reply{}, false, nil
		}
		r, ok := s.brain.GenerateFromToken(chatID, tokens[0], order)
		return r, ok, nil
	}
	r, ok := s.brain.GenerateFromEmpty(chatID, order)
	return r, ok, nil
}

var (
	ErrInvalidURL = errors.New("invalid history url")
	errNotHTTP    = errors.New("url must be absolute http(s)")
)

func parseHistoryURL(raw string) (*url.URL, error) {
	u, err := url.ParseRequestURI(strings.TrimSpace(raw))
	if err != nil {
		return nil, err
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, errNotHTTP
	}
	return u, nil
}

func formatReply(r brain.Reply) string {
	return fmt.Sprintf("%s: %s", r.User, r.Text)
}
