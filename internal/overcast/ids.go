package overcast

import (
	"fmt"
	"strconv"
	"strings"
)

// ItemID identifies a feed or episode in Overcast's HTML pages. Public
// items use a bare numeric ID; private ("p"-prefixed) items use a 15
// character token with an embedded numeric part, e.g. "p123456-AbCdEf".
type ItemID string

// ParseItemID validates an item ID taken from an href.
func ParseItemID(s string) (ItemID, error) {
	if s == "" {
		return "", fmt.Errorf("empty item ID")
	}
	if strings.HasPrefix(s, "/") {
		return "", fmt.Errorf("item ID %q must not start with a slash", s)
	}
	if strings.HasPrefix(s, "p") {
		if len(s) != 15 {
			return "", fmt.Errorf("private item ID %q must be 15 characters", s)
		}
		if !strings.Contains(s, "-") {
			return "", fmt.Errorf("private item ID %q must contain a dash", s)
		}
	}
	return ItemID(s), nil
}

// NumericID extracts the numeric part of a private item ID. It returns
// zero for IDs that carry no number.
func (id ItemID) NumericID() int64 {
	s, ok := strings.CutPrefix(string(id), "p")
	if !ok {
		return 0
	}
	numeric, _, found := strings.Cut(s, "-")
	if !found {
		return 0
	}
	n, err := strconv.ParseInt(numeric, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

func (id ItemID) String() string { return string(id) }
