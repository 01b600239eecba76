// Package errors provides database error classification and handling utilities.
package errors

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// DatabaseErrorType represents the type of database error.
type DatabaseErrorType int

const (
	// ErrorTypeUnknown represents an unknown database error.
	ErrorTypeUnknown DatabaseErrorType = iota
	// ErrorTypeDuplicateKey represents a unique constraint violation (MySQL 1062, Postgres 23505).
	ErrorTypeDuplicateKey
	// ErrorTypeConstraintViolation represents a foreign key or check constraint violation.
	ErrorTypeConstraintViolation
	// ErrorTypeInvalidJSON represents invalid JSON data (MySQL 3140-3143, Postgres 22P02).
	ErrorTypeInvalidJSON
	// ErrorTypeDataTooLong represents a value too long for its column (MySQL 1406, Postgres 22001).
	ErrorTypeDataTooLong
	// ErrorTypeNotFound represents a record not found error.
	ErrorTypeNotFound
	// ErrorTypeDeadlock represents a deadlock error (MySQL 1213, Postgres 40P01).
	ErrorTypeDeadlock
	// ErrorTypeConnectionError represents a database connection error.
	ErrorTypeConnectionError
	// ErrorTypeInvalidValue represents a NULL or truncated value.
	ErrorTypeInvalidValue
)

// DatabaseError wraps a database error with classification information.
type DatabaseError struct {
	Type        DatabaseErrorType
	OriginalErr error
	// Driver is "mysql" or "postgres" when the error came from a server, empty otherwise.
	Driver string
	// Code is the server error code, e.g. "1062" or "23505".
	Code    string
	Message string
}

// Error implements the error interface.
func (e *DatabaseError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s (%s error %s): %v", e.Message, e.Driver, e.Code, e.OriginalErr)
	}
	return fmt.Sprintf("%s: %v", e.Message, e.OriginalErr)
}

// Unwrap returns the underlying error for errors.Is and errors.As compatibility.
func (e *DatabaseError) Unwrap() error {
	return e.OriginalErr
}

// ClassifyDBError classifies a database error into a specific error type.
//
// It understands GORM sentinel errors, *mysql.MySQLError and *pgconn.PgError,
// and falls back to message matching for connection failures.
//
// Example:
//
//	if err := repo.Record(ctx, rec); err != nil {
//	    if errors.ClassifyDBError(err).Type == errors.ErrorTypeDuplicateKey {
//	        return nil // already recorded
//	    }
//	    return err
//	}
func ClassifyDBError(err error) *DatabaseError {
	if err == nil {
		return nil
	}

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &DatabaseError{Type: ErrorTypeNotFound, OriginalErr: err, Message: "record not found"}
	}

	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return &DatabaseError{Type: ErrorTypeDuplicateKey, OriginalErr: err, Message: "duplicate key constraint violation"}
	}

	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return classifyMySQLError(err, mysqlErr)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return classifyPostgresError(err, pgErr)
	}

	if isConnectionError(err.Error()) {
		return &DatabaseError{Type: ErrorTypeConnectionError, OriginalErr: err, Message: "database connection error"}
	}

	return &DatabaseError{Type: ErrorTypeUnknown, OriginalErr: err, Message: "unknown database error"}
}

// classifyMySQLError classifies a MySQL-specific error.
func classifyMySQLError(orig error, err *mysql.MySQLError) *DatabaseError {
	dbErr := &DatabaseError{
		OriginalErr: orig,
		Driver:      "mysql",
		Code:        strconv.Itoa(int(err.Number)),
	}

	switch err.Number {
	case 1062: // ER_DUP_ENTRY
		dbErr.Type, dbErr.Message = ErrorTypeDuplicateKey, "duplicate key constraint violation"
	case 3140, 3141, 3142, 3143: // invalid JSON text / path / size / type
		dbErr.Type, dbErr.Message = ErrorTypeInvalidJSON, "invalid JSON data"
	case 1406: // ER_DATA_TOO_LONG
		dbErr.Type, dbErr.Message = ErrorTypeDataTooLong, "data too long for column"
	case 1451, 1452: // foreign key
		dbErr.Type, dbErr.Message = ErrorTypeConstraintViolation, "foreign key constraint violation"
	case 1213: // ER_LOCK_DEADLOCK
		dbErr.Type, dbErr.Message = ErrorTypeDeadlock, "deadlock detected"
	case 1048, 1265, 1366: // NULL, truncated, wrong value
		dbErr.Type, dbErr.Message = ErrorTypeInvalidValue, "invalid or truncated value"
	default:
		dbErr.Type, dbErr.Message = ErrorTypeUnknown, "MySQL error"
	}
	return dbErr
}

// classifyPostgresError classifies a Postgres error by SQLSTATE.
func classifyPostgresError(orig error, err *pgconn.PgError) *DatabaseError {
	dbErr := &DatabaseError{
		OriginalErr: orig,
		Driver:      "postgres",
		Code:        err.Code,
	}

	switch err.Code {
	case "23505": // unique_violation
		dbErr.Type, dbErr.Message = ErrorTypeDuplicateKey, "duplicate key constraint violation"
	case "23503", "23514": // foreign_key_violation, check_violation
		dbErr.Type, dbErr.Message = ErrorTypeConstraintViolation, "constraint violation"
	case "22P02", "22032": // invalid_text_representation, invalid_json_text
		dbErr.Type, dbErr.Message = ErrorTypeInvalidJSON, "invalid JSON data"
	case "22001": // string_data_right_truncation
		dbErr.Type, dbErr.Message = ErrorTypeDataTooLong, "data too long for column"
	case "40P01": // deadlock_detected
		dbErr.Type, dbErr.Message = ErrorTypeDeadlock, "deadlock detected"
	case "23502": // not_null_violation
		dbErr.Type, dbErr.Message = ErrorTypeInvalidValue, "column cannot be null"
	default:
		if strings.HasPrefix(err.Code, "08") { // connection_exception class
			dbErr.Type, dbErr.Message = ErrorTypeConnectionError, "database connection error"
		} else {
			dbErr.Type, dbErr.Message = ErrorTypeUnknown, "Postgres error"
		}
	}
	return dbErr
}

var connectionKeywords = []string{
	"connection refused",
	"connection reset",
	"broken pipe",
	"no such host",
	"timeout",
	"connection lost",
	"can't connect",
	"dial tcp",
}

// isConnectionError checks if the error message indicates a connection problem.
func isConnectionError(errMsg string) bool {
	lower := strings.ToLower(errMsg)
	for _, keyword := range connectionKeywords {
		if strings.Contains(lower, keyword) {
			return true
		}
	}
	return false
}

// IsDuplicateKeyError checks if the error is a duplicate key constraint violation.
func IsDuplicateKeyError(err error) bool {
	dbErr := ClassifyDBError(err)
	return dbErr != nil && dbErr.Type == ErrorTypeDuplicateKey
}

// IsNotFoundError checks if the error is a record not found error.
func IsNotFoundError(err error) bool {
	dbErr := ClassifyDBError(err)
	return dbErr != nil && dbErr.Type == ErrorTypeNotFound
}

// IsConnectionError checks if the error means the database could not be reached.
func IsConnectionError(err error) bool {
	dbErr := ClassifyDBError(err)
	return dbErr != nil && dbErr.Type == ErrorTypeConnectionError
}
