package store

import (
	"errors"

	"github.com/go-sql-driver/mysql"
)

// Sentinel errors returned by the Lookup* methods and logged by the
// sentinel-style API.  They describe row presence, not business rules.
var (
	// ErrNotFound indicates the requested row does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrNoRowsAffected indicates an UPDATE or DELETE matched nothing, or
	// not exactly the one row it had to.
	ErrNoRowsAffected = errors.New("unexpected number of rows affected")

	// ErrDuplicate indicates a unique key already holds the value.
	ErrDuplicate = errors.New("record already exists")

	// ErrInvalidPrefix indicates a prefix outside 1..10 characters.
	ErrInvalidPrefix = errors.New("invalid prefix")
)

// mysqlDuplicateEntry is ER_DUP_ENTRY.
const mysqlDuplicateEntry = 1062

// classify maps driver errors onto the package sentinels.
func classify(err error) error {
	var me *mysql.MySQLError
	if errors.As(err, &me) && me.Number == mysqlDuplicateEntry {
		return errors.Join(ErrDuplicate, err)
	}
	return err
}
