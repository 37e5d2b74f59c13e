package common

import (
	"time"

	"github.com/oklog/ulid/v2"
)

// NewULID returns a lexicographically sortable 26 character id.
func NewULID() (string, error) {
	id, err := ulid.New(ulid.Timestamp(time.Now()), ulid.DefaultEntropy())
	if err != nil {
		return "", err
	}
	return id.String(), nil
}
