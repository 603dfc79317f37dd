// Package store is the flat-file database: feeds.csv and episodes.csv with
// a small set of column conventions. Booleans are "1"/"0", timestamps are
// RFC 3339, durations are whole seconds, and an empty string means the field
// has no value. Columns prefixed encrypted_ hold AES encrypted values.
package store

import (
	"fmt"
	"strconv"
	"time"

	"overcastmirror/internal/crypt"
)

func formatBool(v bool) string {
	if v {
		return "1"
	}
	return "0"
}

func parseBool(s string) bool { return s == "1" }

// formatOptionalBool renders a tri-state boolean: nil is the empty string.
func formatOptionalBool(v *bool) string {
	if v == nil {
		return ""
	}
	return formatBool(*v)
}

func parseOptionalBool(s string) *bool {
	if s == "" {
		return nil
	}
	v := parseBool(s)
	return &v
}

// formatTime renders a timestamp, with the zero time meaning no value.
func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("timestamp %q: %w", s, err)
	}
	return t, nil
}

// formatSeconds renders a duration as whole seconds, with zero meaning no
// value.
func formatSeconds(d time.Duration) string {
	if d == 0 {
		return ""
	}
	return strconv.FormatInt(int64(d/time.Second), 10)
}

func parseSeconds(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	seconds, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("duration %q: %w", s, err)
	}
	return time.Duration(seconds) * time.Second, nil
}

func formatInt(n int64) string {
	if n == 0 {
		return ""
	}
	return strconv.FormatInt(n, 10)
}

func parseInt(s string) (int64, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("number %q: %w", s, err)
	}
	return n, nil
}

// encryptField encrypts a value for an encrypted_ column. Empty values stay
// empty so absence survives the round trip.
func encryptField(key crypt.Key, value string) (string, error) {
	if value == "" {
		return "", nil
	}
	return key.Encrypt(value)
}

func decryptField(key crypt.Key, ciphertext string) (string, error) {
	if ciphertext == "" {
		return "", nil
	}
	return key.Decrypt(ciphertext)
}
