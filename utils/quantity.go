package utils

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

var leadingNumber = regexp.MustCompile(`^\s*(\d+(?:\.\d+)?|\.\d+)\s*([A-Za-z]*)`)

// ErrInvalidQuantity is returned for quantities that are missing, non-numeric or not positive.
var ErrInvalidQuantity = errors.New("quantity must be a positive number")

// ParseQuantity coerces a JSON quantity into a positive number and an optional
// unit. Strings are read up to the first non-numeric character, so "125.000g"
// is 125 with unit "g".
func ParseQuantity(v any) (float64, string, error) {
	var (
		q    float64
		unit string
	)
	switch t := v.(type) {
	case float64:
		q = t
	case float32:
		q = float64(t)
	case int:
		q = float64(t)
	case int64:
		q = float64(t)
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return 0, "", fmt.Errorf("%w: %q", ErrInvalidQuantity, t.String())
		}
		q = f
	case string:
		m := leadingNumber.FindStringSubmatch(t)
		if m == nil {
			return 0, "", fmt.Errorf("%w: %q", ErrInvalidQuantity, t)
		}
		f, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			return 0, "", fmt.Errorf("%w: %q", ErrInvalidQuantity, t)
		}
		q, unit = f, strings.ToLower(m[2])
	case nil:
		return 0, "", fmt.Errorf("%w: missing", ErrInvalidQuantity)
	default:
		return 0, "", fmt.Errorf("%w: unsupported type %T", ErrInvalidQuantity, v)
	}
	if q <= 0 || math.IsNaN(q) || math.IsInf(q, 0) {
		return 0, "", fmt.Errorf("%w: %v", ErrInvalidQuantity, v)
	}
	return q, unit, nil
}

var gramsPerUnit = map[string]float64{
	"":      1,
	"g":     1,
	"gr":    1,
	"gram":  1,
	"grams": 1,
	"kg":    1000,
	"mg":    0.001,
	"oz":    28.3495,
	"lb":    453.592,
	// Liquids are taken at water density.
	"ml": 1,
	"l":  1000,
}

// ToGrams converts a parsed quantity to grams. ok is false for units with no
// fixed weight ("cup", "slice").
func ToGrams(q float64, unit string) (float64, bool) {
	f, ok := gramsPerUnit[strings.ToLower(unit)]
	if !ok {
		return 0, false
	}
	return q * f, true
}
