package usage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Count is a token counter that may be unknown.
// The zero value is unknown.
type Count struct {
	n     int
	known bool
}

// Known returns a Count holding n.
func Known(n int) Count {
	return Count{n: n, known: true}
}

// Unknown returns a Count with no value.
func Unknown() Count {
	return Count{}
}

// Of converts an optional int pointer into a Count. nil is unknown.
func Of(p *int) Count {
	if p == nil {
		return Unknown()
	}
	return Known(*p)
}

// Value returns the count and whether it is known.
func (c Count) Value() (int, bool) {
	return c.n, c.known
}

// IsKnown reports whether the count holds a value.
func (c Count) IsKnown() bool {
	return c.known
}

// Or returns the count, or def when unknown.
func (c Count) Or(def int) int {
	if !c.known {
		return def
	}
	return c.n
}

// Ptr returns a pointer to a copy of the value, or nil when unknown.
func (c Count) Ptr() *int {
	if !c.known {
		return nil
	}
	n := c.n
	return &n
}

// Plus adds two counts: unknown+unknown stays unknown, unknown+known is the
// known value, known+known is the arithmetic sum.
func (c Count) Plus(other Count) Count {
	switch {
	case c.known && other.known:
		return Known(c.n + other.n)
	case c.known:
		return c
	default:
		return other
	}
}

// String renders the count, "None" when unknown.
func (c Count) String() string {
	if !c.known {
		return "None"
	}
	return strconv.Itoa(c.n)
}

// MarshalJSON encodes unknown counts as null.
func (c Count) MarshalJSON() ([]byte, error) {
	if !c.known {
		return []byte("null"), nil
	}
	return []byte(strconv.Itoa(c.n)), nil
}

// UnmarshalJSON accepts a number or null.
func (c *Count) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*c = Unknown()
		return nil
	}
	var n int
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("decode token count: %w", err)
	}
	*c = Known(n)
	return nil
}
