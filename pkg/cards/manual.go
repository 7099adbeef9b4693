package cards

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/yurifrl/bursar/pkg/expiry"
	"github.com/yurifrl/bursar/pkg/models"
)

const doneSentinel = "done"

// ManualSource prompts for one card per Next call. Each prompt consumes
// interactive input exactly once; the source is not restartable.
type ManualSource struct {
	scanner *bufio.Scanner
	out     io.Writer
	zip     string
	done    bool
}

// NewManualSource reads prompts from in (normally stdin) and writes them to
// out. The zip from run configuration is attached to every card.
func NewManualSource(in io.Reader, out io.Writer, zip string) *ManualSource {
	return &ManualSource{
		scanner: bufio.NewScanner(in),
		out:     out,
		zip:     zip,
	}
}

func (m *ManualSource) prompt(label string) (string, error) {
	fmt.Fprint(m.out, label)
	if !m.scanner.Scan() {
		if err := m.scanner.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return strings.TrimSpace(m.scanner.Text()), nil
}

// Next prompts for one card. The done sentinel on the number prompt (any
// case) ends entry, as does EOF on the input. A bad expiration date
// re-prompts instead of failing, since the operator can just retype it.
func (m *ManualSource) Next() (*models.Card, error) {
	if m.done {
		return nil, ErrNoMoreCards
	}

	number, err := m.prompt(`Card Number (or "done" to finish): `)
	if err != nil {
		if errors.Is(err, io.EOF) {
			m.done = true
			return nil, ErrNoMoreCards
		}
		return nil, err
	}
	if strings.EqualFold(number, doneSentinel) {
		m.done = true
		return nil, ErrNoMoreCards
	}

	var month, year string
	for {
		raw, err := m.prompt("Expiration Date (MM/YY or MMYY): ")
		if err != nil {
			return nil, err
		}
		parsedMonth, parsedYear, parseErr := expiry.Parse(raw)
		if parseErr == nil {
			month, year = parsedMonth, parsedYear
			break
		}
		fmt.Fprintln(m.out, parseErr)
	}

	cvv, err := m.prompt("CVV: ")
	if err != nil {
		return nil, err
	}

	return models.NewCard(number, month, year, cvv, m.zip), nil
}
