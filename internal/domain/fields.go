package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Kind is the wire/storage type of a session column.
type Kind int

const (
	KindText Kind = iota
	KindDecimal
	KindInteger
	KindTimestamp
)

// Column describes a client-writable column of charging_sessions. The JSON key
// and the SQL column name are the same string.
type Column struct {
	Name    string
	Kind    Kind
	Mutable bool
}

// sessionColumns lists every column a client may supply, in insert order.
// id and created_at are owned by the server and never appear here.
var sessionColumns = []Column{
	{Name: "vehicle_id", Kind: KindText},
	{Name: "license_plate", Kind: KindText, Mutable: true},
	{Name: "start_time", Kind: KindTimestamp, Mutable: true},
	{Name: "end_time", Kind: KindTimestamp, Mutable: true},
	{Name: "kwh", Kind: KindDecimal, Mutable: true},
	{Name: "duration_seconds", Kind: KindInteger, Mutable: true},
	{Name: "cost_huf", Kind: KindDecimal, Mutable: true},
	{Name: "price_per_kwh", Kind: KindDecimal, Mutable: true},
	{Name: "source", Kind: KindText, Mutable: true},
	{Name: "currency", Kind: KindText, Mutable: true},
	{Name: "invoice_id", Kind: KindText, Mutable: true},
	{Name: "notes", Kind: KindText, Mutable: true},
	{Name: "odometer", Kind: KindDecimal, Mutable: true},
	{Name: "provider", Kind: KindText, Mutable: true},
	{Name: "city", Kind: KindText, Mutable: true},
	{Name: "location_detail", Kind: KindText, Mutable: true},
	{Name: "ac_or_dc", Kind: KindText, Mutable: true},
	{Name: "kw", Kind: KindDecimal, Mutable: true},
}

// RequiredOnCreate are the keys that must be present in a create payload.
var RequiredOnCreate = []string{"vehicle_id", "start_time", "kwh", "cost_huf", "source"}

var columnsByName = func() map[string]Column {
	m := make(map[string]Column, len(sessionColumns))
	for _, c := range sessionColumns {
		m[c.Name] = c
	}
	return m
}()

// SessionColumns returns a copy of the client-writable columns in insert order.
func SessionColumns() []Column {
	out := make([]Column, len(sessionColumns))
	copy(out, sessionColumns)
	return out
}

// LookupColumn returns the writable column for key.
func LookupColumn(key string) (Column, bool) {
	c, ok := columnsByName[key]
	return c, ok
}

// MutableColumn returns the column for key only when updates may target it.
// This is the update allow-list: id, created_at and vehicle_id are never returned.
func MutableColumn(key string) (Column, bool) {
	c, ok := columnsByName[key]
	if !ok || !c.Mutable {
		return Column{}, false
	}
	return c, true
}

var errWrongType = errors.New("wrong JSON type")

// Decode converts a raw JSON value into the Go value stored for this column:
// string, float64, int64, time.Time, or nil for JSON null.
//
// Numbers are accepted for text columns (clients send vehicle ids as numbers),
// numeric strings are accepted for number columns, and timestamps may be RFC 3339
// strings or POSIX seconds. An empty string decodes to nil for every kind except
// text, where it is stored as-is.
func (c Column) Decode(raw json.RawMessage) (any, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}

	switch c.Kind {
	case KindText:
		return decodeText(raw)
	case KindDecimal:
		return decodeDecimal(raw)
	case KindInteger:
		return decodeInteger(raw)
	case KindTimestamp:
		return decodeTimestamp(raw)
	}
	return nil, fmt.Errorf("unknown column kind %d", c.Kind)
}

func decodeText(raw json.RawMessage) (any, error) {
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, err
		}
		return s, nil
	case '{', '[', 't', 'f':
		return nil, errWrongType
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return nil, errWrongType
	}
	return n.String(), nil
}

// numberText returns the textual form of a JSON number or numeric string.
// ok is false for an empty string.
func numberText(raw json.RawMessage) (s string, ok bool, err error) {
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", false, err
		}
		s = strings.TrimSpace(s)
		return s, s != "", nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", false, errWrongType
	}
	return n.String(), true, nil
}

func decodeDecimal(raw json.RawMessage) (any, error) {
	s, ok, err := numberText(raw)
	if err != nil || !ok {
		return nil, err
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, fmt.Errorf("%q is not a number", s)
	}
	return f, nil
}

func decodeInteger(raw json.RawMessage) (any, error) {
	s, ok, err := numberText(raw)
	if err != nil || !ok {
		return nil, err
	}
	i, err := strconv.ParseInt(s, 10, 64)
	switch {
	case err == nil:
		return i, nil
	case errors.Is(err, strconv.ErrRange):
		return nil, fmt.Errorf("%q is out of range", s)
	}
	// Exponent forms such as 3.6e3.
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != math.Trunc(f) {
		return nil, fmt.Errorf("%q is not an integer", s)
	}
	if f >= 0x1p63 || f < -0x1p63 {
		return nil, fmt.Errorf("%q is out of range", s)
	}
	return int64(f), nil
}

// Stored timestamps are limited to years 1 through 9999.
const (
	minEpochSeconds = -62135596800 // 0001-01-01T00:00:00Z
	maxEpochSeconds = 253402300799 // 9999-12-31T23:59:59Z
)

// timestampLayouts are tried in order; zoneless layouts are read as UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04",
}

func decodeTimestamp(raw json.RawMessage) (any, error) {
	if raw[0] != '"' {
		var n json.Number
		if err := json.Unmarshal(raw, &n); err != nil {
			return nil, errWrongType
		}
		secs, err := n.Float64()
		if err != nil || math.IsNaN(secs) || secs < minEpochSeconds || secs >= maxEpochSeconds+1 {
			return nil, fmt.Errorf("%s is not a valid epoch timestamp", n)
		}
		whole, frac := math.Modf(secs)
		return time.Unix(int64(whole), int64(frac*1e9)).UTC(), nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, err
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	return ParseTimestamp(s)
}

// ParseTimestamp parses an ISO-8601 timestamp and returns it in UTC. The
// UTC instant must fall within years 1 through 9999.
func ParseTimestamp(s string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			if u := t.Unix(); u < minEpochSeconds || u > maxEpochSeconds {
				return time.Time{}, fmt.Errorf("%q is outside years 1-9999", s)
			}
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%q is not an ISO-8601 timestamp", s)
}
