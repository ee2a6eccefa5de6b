// Package bottles models the bottle-type quantities carried by an order and
// the capacity policy applied to delivery runs.
package bottles

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Recognised bottle types.
const (
	Type45kg           = "45kg"
	Type8_5kg          = "8.5kg"
	TypeForklift18kg   = "Forklift 18kg"
	TypeForklift15kg   = "Forklift 15kg"
	DefaultLegacyType  = Type45kg
	EmptyMarker        = "—"
	breakdownSeparator = ", "
)

// Types lists every recognised bottle type in display order.
var Types = []string{Type45kg, Type8_5kg, TypeForklift18kg, TypeForklift15kg}

// IsType reports whether name is a recognised bottle type.
func IsType(name string) bool {
	for _, t := range Types {
		if t == name {
			return true
		}
	}
	return false
}

// Quantities maps a bottle type to a non-negative count. A canonical value
// has an entry for every type in Types and nothing else.
type Quantities map[string]int

// New returns a canonical all-zero quantity map.
func New() Quantities {
	q := make(Quantities, len(Types))
	for _, t := range Types {
		q[t] = 0
	}
	return q
}

// Normalize returns the canonical form of m: missing types are zero,
// negative counts are clamped and unknown types are dropped.
func Normalize(m map[string]int) Quantities {
	q := New()
	for t, n := range m {
		if !IsType(t) {
			continue
		}
		if n < 0 {
			n = 0
		}
		q[t] = n
	}
	return q
}

// FromAny parses a loosely typed quantity map such as a decoded JSON object
// or form values. Every value goes through ParseQuantity.
func FromAny(m map[string]any) Quantities {
	q := New()
	for t, v := range m {
		if !IsType(t) {
			continue
		}
		q[t] = ParseQuantity(v)
	}
	return q
}

// FromLegacy converts a single bottleType + quantity record. An empty type
// means the default heavy type; an unrecognised type yields all zeros.
func FromLegacy(bottleType string, quantity any) Quantities {
	q := New()
	if bottleType == "" {
		bottleType = DefaultLegacyType
	}
	if IsType(bottleType) {
		q[bottleType] = ParseQuantity(quantity)
	}
	return q
}

// ParseQuantity converts v to a count. Negative, oversized and non-numeric
// input yields 0; fractions are truncated.
func ParseQuantity(v any) int {
	switch n := v.(type) {
	case nil:
		return 0
	case int:
		return clamp(int64(n))
	case int32:
		return clamp(int64(n))
	case int64:
		return clamp(n)
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) || n > math.MaxInt32 {
			return 0
		}
		return clamp(int64(n))
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return clamp(i)
		}
		f, err := n.Float64()
		if err != nil {
			return 0
		}
		return ParseQuantity(f)
	case string:
		s := strings.TrimSpace(n)
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return clamp(i)
		}
		// Leading-integer parse: "3 bottles" reads as 3.
		end := 0
		for end < len(s) && (s[end] >= '0' && s[end] <= '9' || end == 0 && (s[end] == '-' || s[end] == '+')) {
			end++
		}
		i, err := strconv.ParseInt(s[:end], 10, 64)
		if err != nil {
			return 0
		}
		return clamp(i)
	default:
		return 0
	}
}

func clamp(n int64) int {
	if n < 0 || n > math.MaxInt32 {
		return 0
	}
	return int(n)
}

// Count returns the quantity of a single type.
func (q Quantities) Count(bottleType string) int {
	return q[bottleType]
}

// Total sums every recognised type.
func (q Quantities) Total() int {
	total := 0
	for _, t := range Types {
		total += q[t]
	}
	return total
}

// Breakdown renders "<qty> x <type>" for each non-zero type, joined by ", ",
// or EmptyMarker when every count is zero.
func (q Quantities) Breakdown() string {
	var parts []string
	for _, t := range Types {
		if n := q[t]; n > 0 {
			parts = append(parts, strconv.Itoa(n)+" x "+t)
		}
	}
	if len(parts) == 0 {
		return EmptyMarker
	}
	return strings.Join(parts, breakdownSeparator)
}

// TypesOnly lists the non-zero types without counts, as shown in customer
// history.
func (q Quantities) TypesOnly() string {
	var parts []string
	for _, t := range Types {
		if q[t] > 0 {
			parts = append(parts, t)
		}
	}
	if len(parts) == 0 {
		return EmptyMarker
	}
	return strings.Join(parts, breakdownSeparator)
}

// Clone returns a canonical copy.
func (q Quantities) Clone() Quantities {
	return Normalize(q)
}

// Add accumulates o into q in place.
func (q Quantities) Add(o Quantities) {
	for _, t := range Types {
		q[t] += o[t]
	}
}

// Policy decides which bottle type counts against a run's capacity and how
// many of it a run may carry.
type Policy struct {
	CountedType string `yaml:"counted_type" json:"counted_type"`
	Limit       int    `yaml:"limit" json:"limit"`
}

// DefaultPolicy counts 45kg bottles against a limit of 8 per run.
func DefaultPolicy() Policy {
	return Policy{CountedType: Type45kg, Limit: 8}
}

// Counted returns the capacity-counted quantity of q.
func (p Policy) Counted(q Quantities) int {
	return q[p.CountedType]
}

// Fits reports whether adding add counted bottles to a run already carrying
// used stays within the limit.
func (p Policy) Fits(used, add int) bool {
	return used+add <= p.Limit
}

// Validate checks that the counted type is recognised and the limit positive.
func (p Policy) Validate() error {
	if !IsType(p.CountedType) {
		return fmt.Errorf("capacity counted type %q is not a bottle type", p.CountedType)
	}
	if p.Limit <= 0 {
		return fmt.Errorf("capacity limit must be positive, got %d", p.Limit)
	}
	return nil
}
