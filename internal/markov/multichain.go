// Package markov holds the per-user text model: a family of word chains of
// several orders plus an index of every token run ever fed, which keeps the
// model from repeating its training text verbatim.
package markov

import (
	"encoding/binary"
	"math/rand/v2"
	"sort"
	"strings"

	"github.com/cespare/xxhash/v2"
)

const (
	// maxNoveltyAttempts bounds how many candidates one order may produce
	// per generation request.
	maxNoveltyAttempts = 1000
	// acceptOneIn thins novel candidates: each is surfaced with
	// probability 1/acceptOneIn.
	acceptOneIn = 10
)

type MultiOrderChain struct {
	minOrder int
	maxOrder int
	chains   map[int]Chain
	known    map[uint64]struct{}

	newChain ChainFactory
	rng      *rand.Rand
}

type Option func(*MultiOrderChain)

// WithRand sets the random source used for generation.
func WithRand(r *rand.Rand) Option {
	return func(m *MultiOrderChain) {
		if r != nil {
			m.rng = r
		}
	}
}

// WithChainFactory swaps the per-order chain implementation.
func WithChainFactory(f ChainFactory) Option {
	return func(m *MultiOrderChain) {
		if f != nil {
			m.newChain = f
		}
	}
}

// NewMultiOrderChain builds empty chains for every order in
// minOrder..=maxOrder.
func NewMultiOrderChain(minOrder, maxOrder int, opts ...Option) *MultiOrderChain {
	if minOrder < 1 {
		minOrder = 1
	}
	if maxOrder < minOrder {
		maxOrder = minOrder
	}
	m := &MultiOrderChain{
		minOrder: minOrder,
		maxOrder: maxOrder,
		known:    make(map[uint64]struct{}),
		newChain: NewFrequencyChain,
		rng:      rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
	for _, o := range opts {
		o(m)
	}
	m.chains = make(map[int]Chain, maxOrder-minOrder+1)
	for order := minOrder; order <= maxOrder; order++ {
		m.chains[order] = m.newChain(order)
	}
	return m
}

// Orders returns the configured orders in ascending order.
func (m *MultiOrderChain) Orders() []int {
	orders := make([]int, 0, len(m.chains))
	for o := range m.chains {
		orders = append(orders, o)
	}
	sort.Ints(orders)
	return orders
}

// Feed tokenizes text, trains every order on it and remembers every
// contiguous run of its tokens. It returns the tokens.
func (m *MultiOrderChain) Feed(text string) []string {
	tokens := Tokenize(text)
	for _, c := range m.chains {
		c.Feed(tokens)
	}
	m.remember(tokens)
	return tokens
}

func (m *MultiOrderChain) remember(tokens []string) {
	lower := lowerAll(tokens)
	for i := range lower {
		d := xxhash.New()
		m.known[d.Sum64()] = struct{}{}
		for j := i; j < len(lower); j++ {
			writeToken(d, lower[j])
			m.known[d.Sum64()] = struct{}{}
		}
	}
}

// Seen reports whether tokens, compared case-insensitively, is a run of
// some fed message.
func (m *MultiOrderChain) Seen(tokens []string) bool {
	_, ok := m.known[hashTokens(lowerAll(tokens))]
	return ok
}

// GenerateFromToken produces, for every trained order, a novel sequence
// that opens with token. Orders that found nothing are absent.
func (m *MultiOrderChain) GenerateFromToken(token string) map[int][]string {
	res := make(map[int][]string)
	for order := range m.chains {
		if out, ok := m.GenerateOrderFromToken(order, token); ok {
			res[order] = out
		}
	}
	return res
}

// GenerateFromEmpty is GenerateFromToken without a seed.
func (m *MultiOrderChain) GenerateFromEmpty() map[int][]string {
	res := make(map[int][]string)
	for order := range m.chains {
		if out, ok := m.GenerateOrderFromEmpty(order); ok {
			res[order] = out
		}
	}
	return res
}

func (m *MultiOrderChain) GenerateOrderFromToken(order int, token string) ([]string, bool) {
	c, ok := m.chains[order]
	if !ok || c.IsEmpty() {
		return nil, false
	}
	return m.novel(func() []string { return c.GenerateFrom(token, m.rng) })
}

func (m *MultiOrderChain) GenerateOrderFromEmpty(order int) ([]string, bool) {
	c, ok := m.chains[order]
	if !ok || c.IsEmpty() {
		return nil, false
	}
	return m.novel(func() []string { return c.Generate(m.rng) })
}

func (m *MultiOrderChain) novel(gen func() []string) ([]string, bool) {
	for i := 0; i < maxNoveltyAttempts; i++ {
		candidate := gen()
		if len(candidate) == 0 || m.Seen(candidate) {
			continue
		}
		if m.rng.IntN(acceptOneIn) == 0 {
			return candidate, true
		}
	}
	return nil, false
}

func lowerAll(tokens []string) []string {
	out := make([]string, len(tokens))
	for i, t := range tokens {
		out[i] = strings.ToLower(t)
	}
	return out
}

func hashTokens(tokens []string) uint64 {
	d := xxhash.New()
	for _, t := range tokens {
		writeToken(d, t)
	}
	return d.Sum64()
}

// writeToken length-prefixes each token so that ["ab"] and ["a","b"] hash
// differently.
func writeToken(d *xxhash.Digest, t string) {
	var buf [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(buf[:], uint64(len(t)))
	_, _ = d.Write(buf[:n])
	_, _ = d.WriteString(t)
}
