// Package sqlutil converts between Go's pointer-based "optional value"
// idiom and database/sql's Null* wrapper types, used by pkg/entitystore
// and pkg/changeledger when scanning and binding nullable columns.
package sqlutil

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// ToNullString converts s to a sql.NullString, treating both a nil
// pointer and an empty string as NULL.
func ToNullString(s *string) sql.NullString {
	if s == nil || *s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// ToNullStringValue converts s to a sql.NullString, treating an empty
// string as NULL.
func ToNullStringValue(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// ToNullUUID converts id to a sql.NullString holding its canonical
// string form; entity foreign keys that reference user/community owners
// are stored as text, not a native uuid column.
func ToNullUUID(id *uuid.UUID) sql.NullString {
	if id == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: id.String(), Valid: true}
}

// ToNullTime converts t to a sql.NullTime.
func ToNullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// ToNullInt64 converts n to a sql.NullInt64.
func ToNullInt64(n *int64) sql.NullInt64 {
	if n == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *n, Valid: true}
}

// ToNullFloat64 converts f to a sql.NullFloat64.
func ToNullFloat64(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

// FromNullString converts ns back to a string pointer, nil when not valid.
func FromNullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}

// FromNullTime converts nt back to a time pointer, nil when not valid.
func FromNullTime(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	v := nt.Time
	return &v
}

// FromNullInt64 converts ni back to an int64 pointer, nil when not valid.
func FromNullInt64(ni sql.NullInt64) *int64 {
	if !ni.Valid {
		return nil
	}
	v := ni.Int64
	return &v
}

// FromNullFloat64 converts nf back to a float64 pointer, nil when not valid.
func FromNullFloat64(nf sql.NullFloat64) *float64 {
	if !nf.Valid {
		return nil
	}
	v := nf.Float64
	return &v
}
