package brain

import (
	"fmt"

	"github.com/suPer8Hu/chatmimic/internal/markov"
	"gopkg.in/yaml.v3"
)

// storedModel is the value kept under a user's store key. Name keeps the
// display spelling, which the lower-cased key cannot.
type storedModel struct {
	Name  string    `yaml:"name"`
	Model yaml.Node `yaml:"model"`
}

func encodeModel(user UserName, chains *markov.MultiOrderChain) ([]byte, error) {
	raw, err := chains.Snapshot()
	if err != nil {
		return nil, err
	}
	var doc yaml.Node
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) != 1 {
		return nil, fmt.Errorf("unexpected snapshot document for %s", user)
	}
	return yaml.Marshal(storedModel{Name: user.String(), Model: *doc.Content[0]})
}

// decodeModel restores a stored value into chains and returns the display
// name it carries. Values written before names were stored are bare
// snapshots; for those the name is empty.
func decodeModel(raw []byte, chains *markov.MultiOrderChain) (string, error) {
	var in storedModel
	if err := yaml.Unmarshal(raw, &in); err != nil {
		return "", fmt.Errorf("%w: %v", markov.ErrInvalidSnapshot, err)
	}
	if in.Model.Kind == 0 {
		return "", chains.Restore(raw)
	}
	model, err := yaml.Marshal(&in.Model)
	if err != nil {
		return "", fmt.Errorf("%w: %v", markov.ErrInvalidSnapshot, err)
	}
	if err := chains.Restore(model); err != nil {
		return "", err
	}
	return in.Name, nil
}
