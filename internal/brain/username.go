package brain

import "strings"

// UserName identifies a chat participant. Names that differ only in case
// are the same user: the lower-cased key is used for lookups and storage,
// the original spelling for display.
type UserName struct {
	display string
	key     string
}

func NewUserName(name string) UserName {
	return UserName{display: name, key: strings.ToLower(name)}
}

func (u UserName) String() string { return u.display }

func (u UserName) Key() string { return u.key }

func (u UserName) Equal(other UserName) bool { return u.key == other.key }
