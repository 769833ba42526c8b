package crudview

import (
	"errors"
	"strconv"
	"time"
)

var errBadID = errors.New("invalid id")

// ParseUint parses a positive integer row id.
func ParseUint(s string) (uint, error) {
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil || n == 0 {
		return 0, errBadID
	}
	return uint(n), nil
}

// FormatTime renders a timestamp cell. The zero time renders empty.
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Local().Format("2006-01-02 15:04")
}

// FormatDate renders a date cell.
func FormatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("2006-01-02")
}

// FormatUint renders an integer id for form values.
func FormatUint(n uint) string {
	return strconv.FormatUint(uint64(n), 10)
}
