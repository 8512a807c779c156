package core

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

// ValueKind identifies the dynamic type held by a Value.
type ValueKind int

const (
	KindNull ValueKind = iota
	KindString
	KindNumber
	KindDate
)

// String returns the kind name used in logs and JSON.
func (k ValueKind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindDate:
		return "date"
	default:
		return "null"
	}
}

// Value is a single attribute value: null, string, number or date.
// The zero Value is null.
type Value struct {
	kind ValueKind
	str  string
	num  float64
	date time.Time
}

// NullValue returns the null Value.
func NullValue() Value { return Value{} }

// StringValue wraps a string.
func StringValue(s string) Value { return Value{kind: KindString, str: s} }

// NumberValue wraps a number.
func NumberValue(n float64) Value { return Value{kind: KindNumber, num: n} }

// DateValue wraps a point in time. Dates are held in UTC.
func DateValue(t time.Time) Value { return Value{kind: KindDate, date: t.UTC()} }

// EpochMillisValue builds a date from milliseconds since the Unix epoch,
// the timestamp encoding used by feature services.
func EpochMillisValue(ms int64) Value { return DateValue(time.UnixMilli(ms)) }

// Kind returns the dynamic type of v.
func (v Value) Kind() ValueKind { return v.kind }

// IsNull reports whether v holds no value.
func (v Value) IsNull() bool { return v.kind == KindNull }

// AsString returns the string held by v.
func (v Value) AsString() (string, bool) { return v.str, v.kind == KindString }

// AsNumber returns the number held by v.
func (v Value) AsNumber() (float64, bool) { return v.num, v.kind == KindNumber }

// AsDate returns the date held by v.
func (v Value) AsDate() (time.Time, bool) { return v.date, v.kind == KindDate }

// String returns the natural string form of v: numbers in their shortest
// decimal form, dates as epoch milliseconds and null as "".
func (v Value) String() string {
	switch v.kind {
	case KindString:
		return v.str
	case KindNumber:
		return formatNumber(v.num)
	case KindDate:
		return strconv.FormatInt(v.date.UnixMilli(), 10)
	default:
		return ""
	}
}

// Key returns the canonical form used to match identifiers of type ft.
// Numeric identifiers match by magnitude, so "7" and 7 share a key. Any
// other identifier matches on its exact text after trimming.
func (v Value) Key(ft FieldType) string {
	if v.kind != KindString {
		return v.String()
	}
	s := strings.TrimSpace(v.str)
	if ft == FieldNumeric && numericRegex.MatchString(s) {
		if n, err := strconv.ParseFloat(s, 64); err == nil {
			return formatNumber(n)
		}
	}
	return s
}

// blank reports whether v is null or an empty string. CSV cannot tell the
// two apart, so they compare equal.
func (v Value) blank() bool {
	return v.kind == KindNull || (v.kind == KindString && v.str == "")
}

// Equal compares two values after normalizing their types. Numbers and
// numeric strings compare by magnitude, dates and numbers compare by epoch
// milliseconds, and dates and strings compare by calendar day when the
// string holds only a date.
func (v Value) Equal(o Value) bool {
	if v.blank() || o.blank() {
		return v.blank() && o.blank()
	}

	if v.kind == o.kind {
		switch v.kind {
		case KindString:
			return v.str == o.str
		case KindNumber:
			return v.num == o.num
		case KindDate:
			return v.date.Equal(o.date)
		}
		return true
	}

	if o.kind == KindString {
		v, o = o, v
	}
	if v.kind == KindString {
		switch o.kind {
		case KindNumber:
			n, ok := ParseNumber(v.str)
			return ok && n == o.num
		case KindDate:
			t, ok := ParseDate(v.str)
			if !ok {
				return false
			}
			return sameDay(t, o.date)
		}
		return false
	}

	// number vs date
	if v.kind == KindDate {
		v, o = o, v
	}
	return v.num == math.Trunc(v.num) && int64(v.num) == o.date.UnixMilli()
}

// Any returns v as a plain Go value: nil, string, float64 or time.Time.
func (v Value) Any() any {
	switch v.kind {
	case KindString:
		return v.str
	case KindNumber:
		return v.num
	case KindDate:
		return v.date
	default:
		return nil
	}
}

// MarshalJSON encodes numbers as JSON numbers, dates as RFC 3339 strings
// and null as null.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindString:
		return json.Marshal(v.str)
	case KindNumber:
		if math.IsNaN(v.num) || math.IsInf(v.num, 0) {
			return json.Marshal(formatNumber(v.num))
		}
		return json.Marshal(v.num)
	case KindDate:
		return json.Marshal(v.date.Format(time.RFC3339))
	default:
		return []byte("null"), nil
	}
}

func formatNumber(n float64) string {
	return strconv.FormatFloat(n, 'f', -1, 64)
}

func sameDay(a, b time.Time) bool {
	a, b = a.UTC(), b.UTC()
	return a.Year() == b.Year() && a.YearDay() == b.YearDay()
}
