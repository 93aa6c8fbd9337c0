package postgres

import (
	"database/sql"
	"database/sql/driver"
	"errors"
	"io"
	"net"
	"syscall"

	"github.com/lib/pq"
)

type errorClass int

const (
	unexpectedError errorClass = iota
	networkError
	protocolError
	databaseError
)

func (c errorClass) String() string {
	switch c {
	case networkError:
		return "Network error"
	case protocolError:
		return "Postgres error"
	case databaseError:
		return "Database error"
	default:
		return "Unexpected error"
	}
}

func classifyError(err error) errorClass {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return protocolError
	}

	var netErr net.Error
	if errors.As(err, &netErr) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE) {
		return networkError
	}

	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
		return databaseError
	}

	return unexpectedError
}

// isConnectionError reports whether err means the connection to the store
// can no longer be trusted. Postgres error replies that shut the session
// down (admin shutdown, crash recovery) count as connection errors.
func isConnectionError(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code.Class() == "08" || pqErr.Code.Class() == "57"
	}
	return classifyError(err) != unexpectedError
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
