package core

import (
	"encoding/json"
	"testing"
	"time"
)

func TestValueEqual(t *testing.T) {
	day := time.Date(2024, 3, 7, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		a, b Value
		want bool
	}{
		{"null equals null", NullValue(), NullValue(), true},
		{"null equals empty string", NullValue(), StringValue(""), true},
		{"null differs from text", NullValue(), StringValue("x"), false},
		{"null differs from zero", NullValue(), NumberValue(0), false},
		{"same strings", StringValue("Lab"), StringValue("Lab"), true},
		{"strings are case sensitive", StringValue("Lab"), StringValue("lab"), false},
		{"same numbers", NumberValue(1.5), NumberValue(1.5), true},
		{"different numbers", NumberValue(1), NumberValue(2), false},
		{"numeric string equals number", StringValue("7"), NumberValue(7), true},
		{"number equals numeric string", NumberValue(7), StringValue("7.0"), true},
		{"non-numeric string differs from number", StringValue("seven"), NumberValue(7), false},
		{"same dates", DateValue(day), DateValue(day), true},
		{"date equals epoch millis", DateValue(day), NumberValue(float64(day.UnixMilli())), true},
		{"date differs from other millis", DateValue(day), NumberValue(1), false},
		{"date equals same-day string", DateValue(day), StringValue("3/7/2024"), true},
		{"date differs from other day string", DateValue(day), StringValue("3/8/2024"), false},
		{"date differs from junk string", StringValue("soon"), DateValue(day), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.a.Equal(tt.b); got != tt.want {
				t.Errorf("%v.Equal(%v) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
			if got := tt.b.Equal(tt.a); got != tt.want {
				t.Errorf("Equal is not symmetric for %v and %v", tt.a, tt.b)
			}
		})
	}
}

func TestValueKey(t *testing.T) {
	tests := []struct {
		name string
		v    Value
		ft   FieldType
		want string
	}{
		{"integer number", NumberValue(7), FieldNumeric, "7"},
		{"numeric string", StringValue("7"), FieldNumeric, "7"},
		{"padded numeric string", StringValue(" 7.0 "), FieldNumeric, "7"},
		{"zero padded numeric string", StringValue("0012"), FieldNumeric, "12"},
		{"accounting negative is not numeric", StringValue("(5)"), FieldNumeric, "(5)"},
		{"separators are not numeric", StringValue("1,000"), FieldNumeric, "1,000"},
		{"text on numeric field", StringValue("abc"), FieldNumeric, "abc"},
		{"zero padded text", StringValue("0012"), FieldText, "0012"},
		{"padded text", StringValue(" A-7 "), FieldText, "A-7"},
		{"number on text field", NumberValue(12), FieldText, "12"},
		{"null", NullValue(), FieldNumeric, ""},
	}

	for _, tt := range tests {
		if got := tt.v.Key(tt.ft); got != tt.want {
			t.Errorf("%s: Key() = %q, want %q", tt.name, got, tt.want)
		}
	}

	if StringValue("7").Key(FieldNumeric) != NumberValue(7).Key(FieldNumeric) {
		t.Error(`"7" and 7 should share a numeric key`)
	}
	if StringValue("0012").Key(FieldText) == StringValue("12").Key(FieldText) {
		t.Error(`"0012" and "12" must not share a text key`)
	}
}

func TestValueString(t *testing.T) {
	if got := NumberValue(5).String(); got != "5" {
		t.Errorf("NumberValue(5).String() = %q", got)
	}
	if got := NumberValue(-0.25).String(); got != "-0.25" {
		t.Errorf("NumberValue(-0.25).String() = %q", got)
	}
	if got := EpochMillisValue(1709769600000).String(); got != "1709769600000" {
		t.Errorf("EpochMillisValue.String() = %q", got)
	}
	if got := NullValue().String(); got != "" {
		t.Errorf("NullValue().String() = %q", got)
	}
}

func TestValueMarshalJSON(t *testing.T) {
	in := map[string]Value{
		"n":    NumberValue(3),
		"s":    StringValue("x"),
		"null": NullValue(),
		"d":    DateValue(time.Date(2024, 3, 7, 12, 0, 0, 0, time.UTC)),
	}
	b, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("Marshal error = %v", err)
	}
	want := `{"d":"2024-03-07T12:00:00Z","n":3,"null":null,"s":"x"}`
	if string(b) != want {
		t.Errorf("Marshal = %s, want %s", b, want)
	}
}
