package domain

import (
	"fmt"
	"strconv"
	"strings"
)

type Kind string

const (
	KindMovie   Kind = "movie"
	KindSeries  Kind = "series"
	KindEpisode Kind = "episode"
)

func (k Kind) Valid() bool {
	switch k {
	case KindMovie, KindSeries, KindEpisode:
		return true
	}
	return false
}

// Downloadable reports whether a single file can be fetched for the kind.
// Series are containers; their episodes are fetched individually.
func (k Kind) Downloadable() bool {
	return k == KindMovie || k == KindEpisode
}

// ContentID identifies a catalog item. Its canonical form is "<kind>:<id>".
type ContentID struct {
	Kind Kind
	ID   int64
}

func NewContentID(kind Kind, id int64) ContentID {
	return ContentID{Kind: kind, ID: id}
}

func ParseContentID(s string) (ContentID, error) {
	kind, rawID, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return ContentID{}, fmt.Errorf("%w: content id %q must be <kind>:<id>", ErrValidation, s)
	}

	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		return ContentID{}, fmt.Errorf("%w: content id %q has a non numeric id", ErrValidation, s)
	}

	c := ContentID{Kind: Kind(strings.ToLower(kind)), ID: id}
	if err := c.Validate(); err != nil {
		return ContentID{}, err
	}
	return c, nil
}

func (c ContentID) Validate() error {
	if !c.Kind.Valid() {
		return fmt.Errorf("%w: unknown content kind %q", ErrValidation, c.Kind)
	}
	if c.ID <= 0 {
		return fmt.Errorf("%w: content id must be positive, got %d", ErrValidation, c.ID)
	}
	return nil
}

func (c ContentID) IsZero() bool {
	return c.Kind == "" && c.ID == 0
}

func (c ContentID) String() string {
	return string(c.Kind) + ":" + strconv.FormatInt(c.ID, 10)
}

func (c ContentID) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *ContentID) UnmarshalText(text []byte) error {
	parsed, err := ParseContentID(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}
