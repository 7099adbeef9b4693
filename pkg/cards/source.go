package cards

import (
	"errors"
	"fmt"

	"github.com/yurifrl/bursar/pkg/models"
)

// ErrNoMoreCards signals normal exhaustion of a card source. It is the
// end-of-input marker, not a failure.
var ErrNoMoreCards = errors.New("no more cards")

// Source produces cards one at a time until ErrNoMoreCards. Batch sources
// serve a fixed list; the manual source prompts for each call.
type Source interface {
	Next() (*models.Card, error)
}

// MissingExpirationColumnsError reports a batch header with no usable
// expiration columns.
type MissingExpirationColumnsError struct {
	Header []string
}

func (e *MissingExpirationColumnsError) Error() string {
	return fmt.Sprintf("batch header %v has neither expMonth/expYear nor an expiration column", e.Header)
}

type sliceSource struct {
	cards []*models.Card
	pos   int
}

func (s *sliceSource) Next() (*models.Card, error) {
	if s.pos >= len(s.cards) {
		return nil, ErrNoMoreCards
	}
	card := s.cards[s.pos]
	s.pos++
	return card, nil
}

// FromSlice wraps an already-loaded batch as a Source, serving cards in
// file order.
func FromSlice(batch []*models.Card) Source {
	return &sliceSource{cards: batch}
}
