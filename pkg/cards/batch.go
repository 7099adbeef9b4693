package cards

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/extrame/xls"

	"github.com/yurifrl/bursar/pkg/expiry"
	"github.com/yurifrl/bursar/pkg/models"
)

const defaultBatchFile = "cards.csv"

// ResolveBatchPath picks the batch file: explicit argument first, then the
// configured CARDS_CSV, then cards.csv in the working directory.
func ResolveBatchPath(explicit, configured string) string {
	if explicit != "" {
		return explicit
	}
	if configured != "" {
		return configured
	}
	return defaultBatchFile
}

// LoadFile reads a card batch, choosing the parser by file extension. A
// missing file comes back wrapping fs.ErrNotExist so the caller can decide
// to fall back to manual entry.
func LoadFile(path, zip string, logger *log.Logger) ([]*models.Card, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read batch file %s: %w", path, err)
	}
	if strings.HasSuffix(strings.ToLower(path), ".xls") {
		return ParseXLS(data, zip, logger)
	}
	return ParseCSV(data, zip, logger)
}

// ParseCSV parses a card batch with a header row. Accepted column sets are
// {number, expMonth, expYear, cvv} and {number, expiration|exp|expirationDate,
// cvv}; anything else fails the whole load.
func ParseCSV(data []byte, zip string, logger *log.Logger) ([]*models.Card, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.TrimLeadingSpace = true

	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read csv: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("batch file is empty")
	}
	return cardsFromRows(records[0], records[1:], zip, logger)
}

// ParseXLS parses a .xls card batch. Same column rules as CSV; the first
// sheet row is the header.
func ParseXLS(data []byte, zip string, logger *log.Logger) ([]*models.Card, error) {
	workbook, err := xls.OpenReader(bytes.NewReader(data), "utf-8")
	if err != nil {
		return nil, fmt.Errorf("error opening workbook: %w", err)
	}

	rows := workbook.ReadAllCells(1000)
	if len(rows) == 0 {
		return nil, fmt.Errorf("no data found in sheet")
	}
	return cardsFromRows(rows[0], rows[1:], zip, logger)
}

// expirationColumns are the accepted names for a combined expiration column,
// routed through the expiry parser.
var expirationColumns = []string{"expiration", "exp", "expirationDate"}

type columnLayout struct {
	number     int
	cvv        int
	expMonth   int
	expYear    int
	expiration int
}

func (l *columnLayout) width() int {
	max := l.number
	for _, i := range []int{l.cvv, l.expMonth, l.expYear, l.expiration} {
		if i > max {
			max = i
		}
	}
	return max + 1
}

func detectColumns(header []string) (*columnLayout, error) {
	idx := make(map[string]int, len(header))
	for i, name := range header {
		idx[strings.TrimSpace(name)] = i
	}

	layout := &columnLayout{number: -1, cvv: -1, expMonth: -1, expYear: -1, expiration: -1}
	if i, ok := idx["number"]; ok {
		layout.number = i
	}
	if i, ok := idx["cvv"]; ok {
		layout.cvv = i
	}
	if layout.number < 0 || layout.cvv < 0 {
		return nil, fmt.Errorf("batch header %v is missing the number or cvv column", header)
	}

	if m, ok := idx["expMonth"]; ok {
		if y, ok := idx["expYear"]; ok {
			layout.expMonth = m
			layout.expYear = y
			return layout, nil
		}
	}
	for _, name := range expirationColumns {
		if i, ok := idx[name]; ok {
			layout.expiration = i
			return layout, nil
		}
	}
	return nil, &MissingExpirationColumnsError{Header: header}
}

// cardsFromRows turns header+rows into cards. Split expiration columns are
// copied verbatim; a combined column goes through the expiry parser, and one
// malformed value aborts the whole load.
func cardsFromRows(header []string, rows [][]string, zip string, logger *log.Logger) ([]*models.Card, error) {
	layout, err := detectColumns(header)
	if err != nil {
		return nil, err
	}

	batch := make([]*models.Card, 0, len(rows))
	for i, row := range rows {
		if len(row) == 0 || (len(row) == 1 && strings.TrimSpace(row[0]) == "") {
			continue
		}
		if len(row) < layout.width() {
			return nil, fmt.Errorf("row %d has %d fields, want %d", i+2, len(row), layout.width())
		}

		var month, year string
		if layout.expiration >= 0 {
			month, year, err = expiry.Parse(strings.TrimSpace(row[layout.expiration]))
			if err != nil {
				return nil, fmt.Errorf("row %d: %w", i+2, err)
			}
		} else {
			month = row[layout.expMonth]
			year = row[layout.expYear]
		}

		batch = append(batch, models.NewCard(row[layout.number], month, year, row[layout.cvv], zip))
	}

	logger.Debug("parsed card batch", "cards", len(batch))
	return batch, nil
}
