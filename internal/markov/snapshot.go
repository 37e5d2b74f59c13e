package markov

import (
	"errors"
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"
)

const snapshotVersion = 1

// ErrInvalidSnapshot is returned by Restore for bytes that are not a
// snapshot of this format.
var ErrInvalidSnapshot = errors.New("invalid chain snapshot")

type snapshotOut struct {
	Version  int           `yaml:"version"`
	MinOrder int           `yaml:"min_order"`
	MaxOrder int           `yaml:"max_order"`
	Chains   map[int]Chain `yaml:"chains"`
	Known    []uint64      `yaml:"known,flow"`
}

type snapshotIn struct {
	Version  int               `yaml:"version"`
	MinOrder int               `yaml:"min_order"`
	MaxOrder int               `yaml:"max_order"`
	Chains   map[int]yaml.Node `yaml:"chains"`
	Known    []uint64          `yaml:"known"`
}

// Snapshot serializes every order chain and the dedup index to YAML.
func (m *MultiOrderChain) Snapshot() ([]byte, error) {
	for order, c := range m.chains {
		if _, ok := c.(yaml.Marshaler); !ok {
			return nil, fmt.Errorf("order %d chain %T does not support snapshots", order, c)
		}
	}

	known := make([]uint64, 0, len(m.known))
	for h := range m.known {
		known = append(known, h)
	}
	sort.Slice(known, func(i, j int) bool { return known[i] < known[j] })

	return yaml.Marshal(snapshotOut{
		Version:  snapshotVersion,
		MinOrder: m.minOrder,
		MaxOrder: m.maxOrder,
		Chains:   m.chains,
		Known:    known,
	})
}

// Restore replaces the model state with a snapshot. The result covers the
// snapshot's orders and the receiver's configured ones. On error the current
// state is left untouched.
func (m *MultiOrderChain) Restore(raw []byte) error {
	var in snapshotIn
	if err := yaml.Unmarshal(raw, &in); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSnapshot, err)
	}
	if in.Version != snapshotVersion {
		return fmt.Errorf("%w: unsupported version %d", ErrInvalidSnapshot, in.Version)
	}
	if in.MinOrder < 1 || in.MaxOrder < in.MinOrder {
		return fmt.Errorf("%w: order range %d..%d", ErrInvalidSnapshot, in.MinOrder, in.MaxOrder)
	}

	chains := make(map[int]Chain, in.MaxOrder-in.MinOrder+1)
	for order := in.MinOrder; order <= in.MaxOrder; order++ {
		c := m.newChain(order)
		node, ok := in.Chains[order]
		if ok {
			u, isCodec := c.(yaml.Unmarshaler)
			if !isCodec {
				return fmt.Errorf("order %d chain %T does not support snapshots", order, c)
			}
			if err := u.UnmarshalYAML(&node); err != nil {
				return fmt.Errorf("%w: order %d: %v", ErrInvalidSnapshot, order, err)
			}
			if c.Order() != order {
				return fmt.Errorf("%w: chain stored under order %d has order %d", ErrInvalidSnapshot, order, c.Order())
			}
		}
		chains[order] = c
	}
	for order := range in.Chains {
		if order < in.MinOrder || order > in.MaxOrder {
			return fmt.Errorf("%w: order %d outside %d..%d", ErrInvalidSnapshot, order, in.MinOrder, in.MaxOrder)
		}
	}

	// orders configured here but absent from the snapshot start empty
	minOrder, maxOrder := min(in.MinOrder, m.minOrder), max(in.MaxOrder, m.maxOrder)
	for order := minOrder; order <= maxOrder; order++ {
		if _, ok := chains[order]; !ok {
			chains[order] = m.newChain(order)
		}
	}

	known := make(map[uint64]struct{}, len(in.Known))
	for _, h := range in.Known {
		known[h] = struct{}{}
	}

	m.minOrder, m.maxOrder = minOrder, maxOrder
	m.chains = chains
	m.known = known
	return nil
}
