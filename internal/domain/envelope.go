package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

// PolarityUnknown is stored for a polarity that is not a whole number.
const PolarityUnknown = -1

// ParseFrame turns one frame into a Payload. It tries plain JSON first and
// falls back to Decompress exactly once.
//
// A frame that cannot be decoded is not an error: it comes back as a
// PayloadRaw carrying the frame text. The returned error is non-nil only when
// the JSON decoded fine but a strike field has the wrong type; it wraps
// ErrParse.
func ParseFrame(frame Frame) (Payload, error) {
	text := string(frame)

	if v, err := decodeJSON(text); err == nil {
		return payloadFromJSON(v, text, false)
	}

	decoded, err := Decompress(text)
	if err != nil {
		return Payload{Kind: PayloadRaw, Text: text}, nil
	}
	v, err := decodeJSON(decoded)
	if err != nil {
		return Payload{Kind: PayloadRaw, Text: text}, nil
	}
	// A decompressed frame that decodes to an empty value carries nothing
	// worth showing; it is printed as the raw frame instead.
	if isEmptyValue(v) {
		return Payload{Kind: PayloadRaw, Text: text, Compressed: true}, nil
	}
	return payloadFromJSON(v, decoded, true)
}

func decodeJSON(text string) (any, error) {
	dec := json.NewDecoder(strings.NewReader(text))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("trailing data after JSON value")
	}
	return v, nil
}

func payloadFromJSON(v any, text string, compressed bool) (Payload, error) {
	obj, ok := v.(map[string]any)
	if !ok {
		return Payload{Kind: PayloadOther, Text: stringifyJSON(v, text), Compressed: compressed}, nil
	}

	strike, err := strikeFromObject(obj)
	if err != nil {
		return Payload{}, err
	}
	return Payload{Kind: PayloadStrike, Strike: strike, Compressed: compressed}, nil
}

// strikeFromObject maps the feed's JSON object onto a StrikeEvent. Missing
// and null fields take their zero value.
func strikeFromObject(obj map[string]any) (StrikeEvent, error) {
	var (
		ev  StrikeEvent
		err error
	)
	if ev.Lat, err = floatField(obj, "lat"); err != nil {
		return StrikeEvent{}, err
	}
	if ev.Lon, err = floatField(obj, "lon"); err != nil {
		return StrikeEvent{}, err
	}
	if ev.TimeRaw, err = timeField(obj, "time"); err != nil {
		return StrikeEvent{}, err
	}
	ev.Polarity = polarityField(obj, "pol")
	if ev.Region, err = intField(obj, "region"); err != nil {
		return StrikeEvent{}, err
	}
	if ev.SignalCount, err = lenField(obj, "sig"); err != nil {
		return StrikeEvent{}, err
	}
	if ev.DelaySeconds, err = floatField(obj, "delay"); err != nil {
		return StrikeEvent{}, err
	}
	return ev, nil
}

func numberField(obj map[string]any, key string) (json.Number, bool, error) {
	v, ok := obj[key]
	if !ok || v == nil {
		return "", false, nil
	}
	n, ok := v.(json.Number)
	if !ok {
		return "", false, fmt.Errorf("%w: field %q: expected number, got %s", ErrParse, key, jsonKind(v))
	}
	return n, true, nil
}

func floatField(obj map[string]any, key string) (float64, error) {
	n, ok, err := numberField(obj, key)
	if err != nil || !ok {
		return 0, err
	}
	f, err := n.Float64()
	if err != nil {
		return 0, fmt.Errorf("%w: field %q: %w", ErrParse, key, err)
	}
	return f, nil
}

// timeField reads the strike time. Negative values are treated as absent,
// values beyond uint64 saturate.
func timeField(obj map[string]any, key string) (uint64, error) {
	n, ok, err := numberField(obj, key)
	if err != nil || !ok {
		return 0, err
	}
	if u, err := strconv.ParseUint(n.String(), 10, 64); err == nil {
		return u, nil
	}
	f, err := n.Float64()
	if err != nil && !errors.Is(err, strconv.ErrRange) {
		return 0, fmt.Errorf("%w: field %q: %w", ErrParse, key, err)
	}
	switch {
	case f <= 0 || math.IsNaN(f):
		return 0, nil
	case f >= math.MaxUint64:
		return math.MaxUint64, nil
	default:
		return uint64(f), nil
	}
}

// polarityField reads the polarity. A value that is not a whole number,
// including strings and other non-numbers, is PolarityUnknown.
func polarityField(obj map[string]any, key string) int {
	v, ok := obj[key]
	if !ok || v == nil {
		return 0
	}
	n, ok := v.(json.Number)
	if !ok {
		return PolarityUnknown
	}
	f, err := n.Float64()
	if err != nil || f != math.Trunc(f) || math.Abs(f) > math.MaxInt32 {
		return PolarityUnknown
	}
	return int(f)
}

// intField reads a whole number; fractional values are truncated toward zero.
func intField(obj map[string]any, key string) (int, error) {
	n, ok, err := numberField(obj, key)
	if err != nil || !ok {
		return 0, err
	}
	if i, err := n.Int64(); err == nil {
		return clampInt(i), nil
	}
	f, err := n.Float64()
	if err != nil {
		return 0, fmt.Errorf("%w: field %q: %w", ErrParse, key, err)
	}
	return clampInt(int64(f)), nil
}

// lenField returns the number of elements of a list (or keys of an object).
func lenField(obj map[string]any, key string) (int, error) {
	switch v := obj[key].(type) {
	case nil:
		return 0, nil
	case []any:
		return len(v), nil
	case map[string]any:
		return len(v), nil
	default:
		return 0, fmt.Errorf("%w: field %q: expected list, got %s", ErrParse, key, jsonKind(v))
	}
}

func clampInt(i int64) int {
	switch {
	case i > math.MaxInt:
		return math.MaxInt
	case i < math.MinInt:
		return math.MinInt
	default:
		return int(i)
	}
}

// isEmptyValue reports JSON values that are falsy: null, false, zero, the
// empty string, the empty list and the empty object.
func isEmptyValue(v any) bool {
	switch v := v.(type) {
	case nil:
		return true
	case bool:
		return !v
	case json.Number:
		f, err := v.Float64()
		return err == nil && f == 0
	case string:
		return v == ""
	case []any:
		return len(v) == 0
	case map[string]any:
		return len(v) == 0
	default:
		return false
	}
}

// stringifyJSON renders a non-object payload for display. Strings are shown
// without quotes, everything else as compact JSON.
func stringifyJSON(v any, text string) string {
	if s, ok := v.(string); ok {
		return s
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, []byte(text)); err != nil {
		return strings.TrimSpace(text)
	}
	return buf.String()
}

func jsonKind(v any) string {
	switch v.(type) {
	case string:
		return "string"
	case bool:
		return "bool"
	case []any:
		return "list"
	case map[string]any:
		return "object"
	case json.Number:
		return "number"
	default:
		return fmt.Sprintf("%T", v)
	}
}
