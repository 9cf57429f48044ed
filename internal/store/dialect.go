package store

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Dialect selects the SQL flavour spoken by a repository.
type Dialect int

const (
	Postgres Dialect = iota
	SQLite
)

const pgUniqueViolation = "23505"

// rebind rewrites ? placeholders into the dialect's positional form.
func (d Dialect) rebind(query string) string {
	if d != Postgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, ch := range query {
		if ch == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(ch)
	}
	return b.String()
}

func (d Dialect) isUniqueViolation(err error) bool {
	switch d {
	case Postgres:
		var pqErr *pq.Error
		return errors.As(err, &pqErr) && pqErr.Code == pgUniqueViolation
	case SQLite:
		var liteErr *sqlite.Error
		if !errors.As(err, &liteErr) {
			return false
		}
		code := liteErr.Code()
		return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	default:
		return false
	}
}

// now returns the current time at the precision every backend round-trips.
func now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}
