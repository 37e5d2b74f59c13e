package markov

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// maxWalk caps a single generated sequence. A chain fed with real sentences
// reaches a boundary long before this.
const maxWalk = 256

// Chain is a Markov chain of one fixed order over word tokens.
type Chain interface {
	Order() int
	Feed(tokens []string)
	// Generate walks the chain from the start of a sentence.
	Generate(r *rand.Rand) []string
	// GenerateFrom walks the chain from a sentence opened by seed. It returns
	// nil when seed never opened a fed sentence.
	GenerateFrom(seed string, r *rand.Rand) []string
	IsEmpty() bool
}

// ChainFactory builds an empty chain of the given order.
type ChainFactory func(order int) Chain

// symbol is a word or the sentence boundary.
type symbol struct {
	word string
	edge bool
}

var boundary = symbol{edge: true}

type transitions struct {
	window []symbol
	next   []symbol
	counts []int
	index  map[symbol]int
	total  int
}

func newTransitions(window []symbol) *transitions {
	return &transitions{
		window: append([]symbol(nil), window...),
		index:  make(map[symbol]int),
	}
}

func (t *transitions) add(s symbol, n int) {
	i, ok := t.index[s]
	if !ok {
		i = len(t.next)
		t.index[s] = i
		t.next = append(t.next, s)
		t.counts = append(t.counts, 0)
	}
	t.counts[i] += n
	t.total += n
}

func (t *transitions) pick(r *rand.Rand) symbol {
	n := r.IntN(t.total)
	for i, c := range t.counts {
		if n < c {
			return t.next[i]
		}
		n -= c
	}
	return t.next[len(t.next)-1]
}

// FrequencyChain counts, for every window of order symbols, the symbols
// that followed it.
type FrequencyChain struct {
	order  int
	states map[string]*transitions
}

// NewFrequencyChain returns an empty chain. Orders below 1 are raised to 1.
func NewFrequencyChain(order int) Chain {
	if order < 1 {
		order = 1
	}
	return &FrequencyChain{order: order, states: make(map[string]*transitions)}
}

func (c *FrequencyChain) Order() int { return c.order }

func (c *FrequencyChain) IsEmpty() bool { return len(c.states) == 0 }

func (c *FrequencyChain) Feed(tokens []string) {
	if len(tokens) == 0 {
		return
	}
	padded := make([]symbol, 0, len(tokens)+c.order+1)
	for i := 0; i < c.order; i++ {
		padded = append(padded, boundary)
	}
	for _, t := range tokens {
		padded = append(padded, symbol{word: t})
	}
	padded = append(padded, boundary)

	for i := 0; i+c.order < len(padded); i++ {
		c.record(padded[i:i+c.order], padded[i+c.order], 1)
	}
}

func (c *FrequencyChain) record(window []symbol, next symbol, n int) {
	key := windowKey(window)
	st, ok := c.states[key]
	if !ok {
		st = newTransitions(window)
		c.states[key] = st
	}
	st.add(next, n)
}

func (c *FrequencyChain) Generate(r *rand.Rand) []string {
	window := make([]symbol, c.order)
	for i := range window {
		window[i] = boundary
	}
	return c.walk(window, nil, r)
}

func (c *FrequencyChain) GenerateFrom(seed string, r *rand.Rand) []string {
	window := make([]symbol, c.order)
	for i := 0; i < c.order-1; i++ {
		window[i] = boundary
	}
	window[c.order-1] = symbol{word: seed}
	if _, ok := c.states[windowKey(window)]; !ok {
		return nil
	}
	return c.walk(window, []string{seed}, r)
}

func (c *FrequencyChain) walk(window []symbol, out []string, r *rand.Rand) []string {
	for len(out) < maxWalk {
		st, ok := c.states[windowKey(window)]
		if !ok {
			break
		}
		next := st.pick(r)
		if next.edge {
			break
		}
		out = append(out, next.word)
		window = append(window[1:], next)
	}
	return out
}

// windowKey encodes a window unambiguously: words are length-prefixed so no
// word content can collide with the boundary marker.
func windowKey(window []symbol) string {
	var b strings.Builder
	for _, s := range window {
		if s.edge {
			b.WriteString("^|")
			continue
		}
		b.WriteString(strconv.Itoa(len(s.word)))
		b.WriteByte(':')
		b.WriteString(s.word)
		b.WriteByte('|')
	}
	return b.String()
}

type chainDoc struct {
	Order  int        `yaml:"order"`
	States []stateDoc `yaml:"states"`
}

// A nil word stands for the sentence boundary.
type stateDoc struct {
	Window []*string  `yaml:"window,flow"`
	Next   []countDoc `yaml:"next"`
}

type countDoc struct {
	Word  *string `yaml:"word"`
	Count int     `yaml:"count"`
}

func toDoc(s symbol) *string {
	if s.edge {
		return nil
	}
	w := s.word
	return &w
}

func fromDoc(w *string) symbol {
	if w == nil {
		return boundary
	}
	return symbol{word: *w}
}

func (c *FrequencyChain) MarshalYAML() (interface{}, error) {
	keys := make([]string, 0, len(c.states))
	for k := range c.states {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	doc := chainDoc{Order: c.order, States: make([]stateDoc, 0, len(keys))}
	for _, k := range keys {
		st := c.states[k]
		sd := stateDoc{Window: make([]*string, 0, len(st.window)), Next: make([]countDoc, 0, len(st.next))}
		for _, s := range st.window {
			sd.Window = append(sd.Window, toDoc(s))
		}
		for i, s := range st.next {
			sd.Next = append(sd.Next, countDoc{Word: toDoc(s), Count: st.counts[i]})
		}
		doc.States = append(doc.States, sd)
	}
	return doc, nil
}

func (c *FrequencyChain) UnmarshalYAML(value *yaml.Node) error {
	var doc chainDoc
	if err := value.Decode(&doc); err != nil {
		return err
	}
	if doc.Order < 1 {
		return fmt.Errorf("chain order %d", doc.Order)
	}

	states := make(map[string]*transitions, len(doc.States))
	for _, sd := range doc.States {
		if len(sd.Window) != doc.Order {
			return fmt.Errorf("order %d chain has a window of %d", doc.Order, len(sd.Window))
		}
		if len(sd.Next) == 0 {
			return errors.New("state without transitions")
		}
		window := make([]symbol, 0, len(sd.Window))
		for _, w := range sd.Window {
			window = append(window, fromDoc(w))
		}
		key := windowKey(window)
		st, ok := states[key]
		if !ok {
			st = newTransitions(window)
			states[key] = st
		}
		for _, n := range sd.Next {
			if n.Count <= 0 {
				return fmt.Errorf("non-positive transition count %d", n.Count)
			}
			st.add(fromDoc(n.Word), n.Count)
		}
	}

	c.order = doc.Order
	c.states = states
	return nil
}
