package tabular

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/dogmatiq/tally/ledger"
	"github.com/dogmatiq/tally/persistence/account"
	"github.com/google/uuid"
	"golang.org/x/exp/slices"
)

// Store is an implementation of [account.Store] that stores accounts in a CSV
// file.
//
// It is not safe for concurrent use.
type Store struct {
	// Path is the path to the table file. The file need not exist.
	Path string

	// Logger is the target for log messages about changes to the table. If it
	// is nil, [slog.Default] is used.
	Logger *slog.Logger
}

var _ account.Store = (*Store)(nil)

// header is the first record of every table.
var header = []string{"client", "available", "held", "total", "locked"}

// Load returns the account of the given client.
func (s *Store) Load(ctx context.Context, id ledger.ClientID) (ledger.Account, error) {
	a := ledger.NewAccount(id)

	err := s.scan(
		ctx,
		func(line int, rec []string) (bool, error) {
			c, err := parseClient(line, rec)
			if err != nil || c != id {
				return true, err
			}

			a, err = parseAccount(line, rec)
			return false, err
		},
	)

	return a, err
}

// Save stores a, replacing any existing account of the same client.
func (s *Store) Save(ctx context.Context, a ledger.Account) error {
	return s.rewrite(
		ctx,
		func(w *csv.Writer) error {
			replaced := false

			if err := s.scan(
				ctx,
				func(line int, rec []string) (bool, error) {
					c, err := parseClient(line, rec)
					if err != nil {
						return false, err
					}

					if c == a.Client {
						if replaced {
							return true, nil
						}
						replaced = true
						rec = formatAccount(a)
					}

					return true, w.Write(rec)
				},
			); err != nil {
				return err
			}

			if replaced {
				return nil
			}

			return w.Write(formatAccount(a))
		},
	)
}

// Range invokes fn for each stored account, in the order they appear in the
// table.
func (s *Store) Range(ctx context.Context, fn account.RangeFunc) error {
	return s.scan(
		ctx,
		func(line int, rec []string) (bool, error) {
			a, err := parseAccount(line, rec)
			if err != nil {
				return false, err
			}

			return fn(ctx, a)
		},
	)
}

// Reset truncates the table so that it contains only the header.
func (s *Store) Reset(ctx context.Context) error {
	return s.rewrite(
		ctx,
		func(*csv.Writer) error {
			return nil
		},
	)
}

// scan calls fn for each record in the table, excluding the header. A missing
// table is treated as empty.
func (s *Store) scan(
	ctx context.Context,
	fn func(line int, rec []string) (bool, error),
) error {
	f, err := os.Open(s.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = len(header)

	for first := true; ; first = false {
		if err := ctx.Err(); err != nil {
			return err
		}

		rec, err := r.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%s: %w", s.Path, err)
		}

		if first {
			if !slices.Equal(rec, header) {
				return fmt.Errorf("%s: line 1: unexpected header %q", s.Path, rec)
			}
			continue
		}

		line, _ := r.FieldPos(0)
		ok, err := fn(line, rec)
		if err != nil {
			return fmt.Errorf("%s: %w", s.Path, err)
		}
		if !ok {
			return nil
		}
	}
}

// rewrite writes a new table to a temporary file in the same directory as the
// table, then renames it over the table.
//
// fn writes the records that follow the header.
func (s *Store) rewrite(
	ctx context.Context,
	fn func(w *csv.Writer) error,
) (err error) {
	dir, base := filepath.Split(s.Path)
	temp := filepath.Join(dir, "."+base+"."+uuid.NewString()+".tmp")

	f, err := os.OpenFile(temp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}

	defer func() {
		if err != nil {
			f.Close()
			if e := os.Remove(temp); e != nil && !errors.Is(e, fs.ErrNotExist) {
				s.logger().WarnContext(
					ctx,
					"unable to remove temporary account table",
					slog.String("path", temp),
					slog.String("error", e.Error()),
				)
			}
		}
	}()

	w := csv.NewWriter(f)

	if err := w.Write(header); err != nil {
		return err
	}

	if err := fn(w); err != nil {
		return err
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}

	if err := f.Sync(); err != nil {
		return err
	}

	if err := f.Close(); err != nil {
		return err
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	if err := os.Rename(temp, s.Path); err != nil {
		return err
	}

	s.logger().DebugContext(
		ctx,
		"account table rewritten",
		slog.String("path", s.Path),
	)

	return nil
}

func (s *Store) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

func parseClient(line int, rec []string) (ledger.ClientID, error) {
	id, err := strconv.ParseUint(rec[0], 10, 16)
	if err != nil {
		return 0, fmt.Errorf("line %d: invalid client %q", line, rec[0])
	}
	return ledger.ClientID(id), nil
}

func parseAccount(line int, rec []string) (ledger.Account, error) {
	id, err := parseClient(line, rec)
	if err != nil {
		return ledger.Account{}, err
	}

	a := ledger.NewAccount(id)

	for i, dst := range []*float32{&a.Available, &a.Held, &a.Total} {
		v, err := strconv.ParseFloat(rec[i+1], 32)
		if err != nil {
			return ledger.Account{}, fmt.Errorf("line %d: invalid %s balance %q", line, header[i+1], rec[i+1])
		}
		*dst = float32(v)
	}

	a.Locked, err = strconv.ParseBool(rec[4])
	if err != nil {
		return ledger.Account{}, fmt.Errorf("line %d: invalid locked flag %q", line, rec[4])
	}

	return a, nil
}

func formatAccount(a ledger.Account) []string {
	return []string{
		strconv.FormatUint(uint64(a.Client), 10),
		formatBalance(a.Available),
		formatBalance(a.Held),
		formatBalance(a.Total),
		strconv.FormatBool(a.Locked),
	}
}

// formatBalance formats v with the fewest digits that parse back to exactly
// the same float32.
func formatBalance(v float32) string {
	return strconv.FormatFloat(float64(v), 'f', -1, 32)
}
