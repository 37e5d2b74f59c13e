package markov

import (
	"errors"
	"math/rand/v2"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func testRand() *rand.Rand {
	return rand.New(rand.NewPCG(7, 11))
}

func TestTokenize(t *testing.T) {
	cases := []struct {
		in   string
		want []string
	}{
		{"", []string{}},
		{"   ", []string{}},
		{"Hello World", []string{"hello", "world"}},
		{`He said: "don't"; ok`, []string{"he", "said", "dont", "ok"}},
		{"tabs\tand\nnewlines", []string{"tabs", "and", "newlines"}},
		{"a :: b", []string{"a", "b"}},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, Tokenize(tc.in), "input %q", tc.in)
	}
}

func TestTokenize_Idempotent(t *testing.T) {
	inputs := []string{
		"The Quick 'brown' fox: JUMPS;",
		`  "quoted"   words ; ; here `,
		"Ünïcode ÄND mixed Case",
	}
	for _, in := range inputs {
		once := Tokenize(in)
		twice := Tokenize(strings.Join(once, " "))
		require.Equal(t, once, twice)
	}
}

func TestFrequencyChain_GenerateFollowsFedSentence(t *testing.T) {
	c := NewFrequencyChain(2)
	require.True(t, c.IsEmpty())

	c.Feed([]string{"a", "b", "c"})
	require.False(t, c.IsEmpty())

	r := testRand()
	require.Equal(t, []string{"a", "b", "c"}, c.Generate(r))
	require.Equal(t, []string{"a", "b", "c"}, c.GenerateFrom("a", r))
	// "b" never opened a sentence, so an order-2 chain has no start for it.
	require.Nil(t, c.GenerateFrom("b", r))
}

func TestFrequencyChain_OrderOneSeedsAnywhere(t *testing.T) {
	c := NewFrequencyChain(1)
	c.Feed([]string{"a", "b", "c"})

	require.Equal(t, []string{"b", "c"}, c.GenerateFrom("b", testRand()))
	require.Nil(t, c.GenerateFrom("zzz", testRand()))
}

func TestFrequencyChain_IgnoresEmptyFeed(t *testing.T) {
	c := NewFrequencyChain(1)
	c.Feed(nil)
	require.True(t, c.IsEmpty())
	require.Nil(t, c.Generate(testRand()))
}

func TestMultiOrderChain_FeedRemembersEveryRun(t *testing.T) {
	m := NewMultiOrderChain(1, 2, WithRand(testRand()))
	tokens := m.Feed("The Quick brown")
	require.Equal(t, []string{"the", "quick", "brown"}, tokens)

	require.True(t, m.Seen([]string{"the", "quick", "brown"}))
	require.True(t, m.Seen([]string{"QUICK", "Brown"}))
	require.True(t, m.Seen([]string{"quick"}))
	require.False(t, m.Seen([]string{"the", "brown"}))
	require.False(t, m.Seen([]string{"brown", "quick"}))
}

func TestMultiOrderChain_NeverReturnsTheOnlyFedSentence(t *testing.T) {
	m := NewMultiOrderChain(1, 2, WithRand(testRand()))
	m.Feed("the quick brown fox jumps")

	// a single straight sentence can only be replayed, so nothing is novel
	require.Empty(t, m.GenerateFromEmpty())
	require.Empty(t, m.GenerateFromToken("the"))
	require.Empty(t, m.GenerateFromToken("brown"))
}

func TestMultiOrderChain_CandidatesAreNeverFedRuns(t *testing.T) {
	corpus := []string{
		"the cat sat on the mat",
		"the dog sat on the rug",
		"a cat ran to the dog",
		"the mat was red",
	}
	m := NewMultiOrderChain(1, 2, WithRand(testRand()))
	var fedRuns [][]string
	for _, line := range corpus {
		tokens := m.Feed(line)
		for i := range tokens {
			for j := i + 1; j <= len(tokens); j++ {
				fedRuns = append(fedRuns, tokens[i:j])
			}
		}
	}

	returned := 0
	for i := 0; i < 20; i++ {
		results := []map[int][]string{m.GenerateFromEmpty(), m.GenerateFromToken("the")}
		for _, res := range results {
			for order, out := range res {
				returned++
				require.NotEmpty(t, out, "order %d", order)
				require.False(t, m.Seen(out), "order %d returned %v", order, out)
				for _, run := range fedRuns {
					require.NotEqual(t, run, out, "order %d", order)
				}
			}
		}
	}
	require.Positive(t, returned)
}

func TestMultiOrderChain_GeneratesNovelMix(t *testing.T) {
	m := NewMultiOrderChain(1, 1, WithRand(testRand()))
	m.Feed("a b")
	m.Feed("b a")

	out, ok := m.GenerateOrderFromEmpty(1)
	require.True(t, ok)
	require.NotEmpty(t, out)
	require.False(t, m.Seen(out))

	res := m.GenerateFromToken("a")
	if seq, ok := res[1]; ok {
		require.Equal(t, "a", seq[0])
		require.False(t, m.Seen(seq))
	}
}

func TestMultiOrderChain_EmptyAndUnknownOrders(t *testing.T) {
	m := NewMultiOrderChain(1, 3, WithRand(testRand()))
	require.Empty(t, m.GenerateFromEmpty())
	require.Equal(t, []int{1, 2, 3}, m.Orders())

	m.Feed("a b")
	m.Feed("b a")
	_, ok := m.GenerateOrderFromEmpty(4)
	require.False(t, ok)
	_, ok = m.GenerateOrderFromToken(0, "a")
	require.False(t, ok)
}

type countingChain struct {
	order int
	fed   [][]string
	out   []string
}

func (c *countingChain) Order() int { return c.order }
func (c *countingChain) Feed(tokens []string) { c.fed = append(c.fed, tokens) }
func (c *countingChain) IsEmpty() bool { return len(c.fed) == 0 }
func (c *countingChain) Generate(*rand.Rand) []string { return c.out }
func (c *countingChain) GenerateFrom(seed string, _ *rand.Rand) []string {
	return append([]string{seed}, c.out...)
}

func TestMultiOrderChain_UsesChainFactory(t *testing.T) {
	built := map[int]*countingChain{}
	factory := func(order int) Chain {
		c := &countingChain{order: order, out: []string{"zz", "top"}}
		built[order] = c
		return c
	}
	m := NewMultiOrderChain(2, 3, WithRand(testRand()), WithChainFactory(factory))
	require.Len(t, built, 2)

	m.Feed("Hello there")
	for _, order := range []int{2, 3} {
		require.Equal(t, [][]string{{"hello", "there"}}, built[order].fed)
	}

	out, ok := m.GenerateOrderFromEmpty(3)
	require.True(t, ok)
	require.Equal(t, []string{"zz", "top"}, out)

	out, ok = m.GenerateOrderFromToken(2, "hello")
	require.True(t, ok)
	require.Equal(t, []string{"hello", "zz", "top"}, out)

	// the stub cannot be encoded
	_, err := m.Snapshot()
	require.Error(t, err)
}

func TestRestore_AddsConfiguredOrdersMissingFromSnapshot(t *testing.T) {
	old := NewMultiOrderChain(1, 1)
	old.Feed("x y z")
	raw, err := old.Snapshot()
	require.NoError(t, err)

	m := NewMultiOrderChain(1, 2, WithRand(testRand()))
	require.NoError(t, m.Restore(raw))
	require.Equal(t, []int{1, 2}, m.Orders())
	require.True(t, m.Seen([]string{"y", "z"}))

	_, ok := m.GenerateOrderFromEmpty(2)
	require.False(t, ok)

	m.Feed("the cat sat")
	m.Feed("the cat ran")
	m.Feed("a cat sat down")
	out, ok := m.GenerateOrderFromEmpty(2)
	require.True(t, ok)
	require.Equal(t, []string{"the", "cat", "sat", "down"}, out)
}

func TestNewMultiOrderChain_ClampsOrders(t *testing.T) {
	require.Equal(t, []int{1}, NewMultiOrderChain(0, -3).Orders())
	require.Equal(t, []int{2}, NewMultiOrderChain(2, 1).Orders())
}

func TestSnapshot_RoundTrip(t *testing.T) {
	m := NewMultiOrderChain(1, 3, WithRand(testRand()))
	m.Feed("the quick brown fox")
	m.Feed("a lazy dog sleeps")
	m.Feed("the dog barks: loudly")

	raw, err := m.Snapshot()
	require.NoError(t, err)
	require.Contains(t, string(raw), "version: 1")

	restored := NewMultiOrderChain(1, 1, WithRand(testRand()))
	require.NoError(t, restored.Restore(raw))
	require.Equal(t, []int{1, 2, 3}, restored.Orders())
	require.Equal(t, m.known, restored.known)

	probes := [][]string{
		{"the", "quick"},
		{"dog", "barks", "loudly"},
		{"lazy"},
		{"fox", "a"},
		{"the", "dog", "sleeps"},
	}
	for _, p := range probes {
		require.Equal(t, m.Seen(p), restored.Seen(p), "probe %v", p)
	}

	again, err := restored.Snapshot()
	require.NoError(t, err)
	require.Equal(t, string(raw), string(again))
}

func TestSnapshot_RestoredChainsGenerate(t *testing.T) {
	m := NewMultiOrderChain(2, 2)
	m.Feed("one two three")

	raw, err := m.Snapshot()
	require.NoError(t, err)

	restored := NewMultiOrderChain(2, 2)
	require.NoError(t, restored.Restore(raw))
	c := restored.chains[2]
	require.Equal(t, []string{"one", "two", "three"}, c.Generate(testRand()))
}

func TestRestore_RejectsGarbage(t *testing.T) {
	m := NewMultiOrderChain(1, 2)
	m.Feed("keep me")

	bad := []string{
		"",
		"just a string",
		"version: 2\nmin_order: 1\nmax_order: 1\n",
		"version: 1\nmin_order: 3\nmax_order: 1\n",
		"version: 1\nmin_order: 1\nmax_order: 1\nchains:\n  5:\n    order: 5\n    states: []\n",
		"version: 1\nmin_order: 1\nmax_order: 1\nchains:\n  1:\n    order: 1\n    states:\n      - window: [a, b]\n        next: [{word: c, count: 1}]\n",
		"version: 1\nmin_order: 1\nmax_order: 1\nchains:\n  1:\n    order: 1\n    states:\n      - window: [a]\n        next: [{word: c, count: 0}]\n",
		"{{{",
	}
	for _, raw := range bad {
		err := m.Restore([]byte(raw))
		require.Error(t, err, "input %q", raw)
		require.True(t, errors.Is(err, ErrInvalidSnapshot), "input %q: %v", raw, err)
	}
	require.True(t, m.Seen([]string{"keep", "me"}))
}
