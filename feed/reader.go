package feed

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/dogmatiq/tally/ledger"
	"github.com/shopspring/decimal"
)

// Reader decodes transactions from a CSV feed.
//
// Each record must be on a single line, so a malformed record never affects
// the records that follow it.
type Reader struct {
	lines   *bufio.Scanner
	line    int
	columns map[string]int
}

// maxLineSize is the length of the longest line a feed may contain.
const maxLineSize = 1 << 20

// NewReader returns a reader that reads a feed from r.
func NewReader(r io.Reader) *Reader {
	s := bufio.NewScanner(r)
	s.Buffer(nil, maxLineSize)

	return &Reader{lines: s}
}

// Read returns the next transaction in the feed.
//
// It returns [io.EOF] at the end of the feed. If the record is malformed the
// returned error wraps [ledger.ErrInvalidTransaction] and reading may
// continue. Any other error is fatal.
func (r *Reader) Read() (ledger.Transaction, error) {
	if r.columns == nil {
		if err := r.readHeader(); err != nil {
			return ledger.Transaction{}, err
		}
	}

	rec, err := r.next()
	if err != nil {
		var parseErr *csv.ParseError
		if errors.As(err, &parseErr) {
			return ledger.Transaction{}, fmt.Errorf("line %d: %w: %s", r.line, ledger.ErrInvalidTransaction, parseErr.Err)
		}
		return ledger.Transaction{}, err
	}

	tx, err := r.parse(rec)
	if err != nil {
		return ledger.Transaction{}, fmt.Errorf("line %d: %w", r.line, err)
	}

	return tx, nil
}

// next returns the fields of the next non-blank line.
func (r *Reader) next() ([]string, error) {
	for r.lines.Scan() {
		r.line++

		text := r.lines.Text()
		if strings.TrimSpace(text) == "" {
			continue
		}

		c := csv.NewReader(strings.NewReader(text))
		c.FieldsPerRecord = -1
		c.TrimLeadingSpace = true

		return c.Read()
	}

	if err := r.lines.Err(); err != nil {
		return nil, err
	}

	return nil, io.EOF
}

func (r *Reader) readHeader() error {
	rec, err := r.next()
	if err == io.EOF {
		return err
	}
	if err != nil {
		return fmt.Errorf("unable to read header: %w", err)
	}

	columns := map[string]int{}
	for i, name := range rec {
		columns[strings.ToLower(strings.TrimSpace(name))] = i
	}

	for _, name := range []string{"type", "client", "tx"} {
		if _, ok := columns[name]; !ok {
			return fmt.Errorf("header is missing the %q column", name)
		}
	}

	r.columns = columns

	return nil
}

func (r *Reader) field(rec []string, name string) (string, bool) {
	i, ok := r.columns[name]
	if !ok || i >= len(rec) {
		return "", false
	}
	return strings.TrimSpace(rec[i]), true
}

func (r *Reader) parse(rec []string) (ledger.Transaction, error) {
	var tx ledger.Transaction

	kind, _ := r.field(rec, "type")
	k, err := ledger.ParseKind(kind)
	if err != nil {
		return tx, err
	}
	tx.Kind = k

	client, _ := r.field(rec, "client")
	id, err := strconv.ParseUint(client, 10, 16)
	if err != nil {
		return tx, fmt.Errorf("%w: invalid client %q", ledger.ErrInvalidTransaction, client)
	}
	tx.Client = ledger.ClientID(id)

	tx.ID, _ = r.field(rec, "tx")
	if tx.ID == "" {
		return tx, fmt.Errorf("%w: transaction ID is missing", ledger.ErrInvalidTransaction)
	}

	if amount, ok := r.field(rec, "amount"); ok && amount != "" {
		d, err := decimal.NewFromString(amount)
		if err != nil {
			return tx, fmt.Errorf("%w: invalid amount %q", ledger.ErrInvalidTransaction, amount)
		}
		tx = tx.WithAmount(float32(d.InexactFloat64()))
	}

	return tx, nil
}
