package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"
)

// dictionaryBase is the first code assigned to a dictionary entry. Code
// points below it are literal characters.
const dictionaryBase = 256

// maxDecodedBytes bounds the output of one Decompress call. Chained
// self-references grow quadratically, so a short hostile frame could
// otherwise expand without limit.
const maxDecodedBytes = 4 << 20

// Decompress expands one LZW-compressed frame into its JSON text.
//
// The dictionary is local to the call: code 256+k is registered after the
// k-th code following the first character, and a code that is not yet
// registered resolves to previous+first(previous). Any code point of 256 or
// above is treated as a dictionary reference, even when the frame meant it
// as a character; the feed only compresses Latin-1 text.
//
// The result must be valid JSON. Every failure wraps ErrDecode.
func Decompress(frame string) (string, error) {
	if !utf8.ValidString(frame) {
		return "", fmt.Errorf("%w: invalid utf-8", ErrDecode)
	}
	units := []rune(frame)
	if len(units) == 0 {
		return "", ErrEmptyFrame
	}

	previous := string(units[0])
	dict := make([]string, 0, len(units)-1)

	var out strings.Builder
	out.Grow(2 * len(frame))
	out.WriteString(previous)

	for _, u := range units[1:] {
		var entry string
		switch idx := int(u) - dictionaryBase; {
		case idx < 0:
			entry = string(u)
		case idx < len(dict):
			entry = dict[idx]
		default:
			entry = previous + firstChar(previous)
		}

		if out.Len()+len(entry) > maxDecodedBytes {
			return "", fmt.Errorf("%w: output exceeds %d bytes", ErrDecode, maxDecodedBytes)
		}
		out.WriteString(entry)

		dict = append(dict, previous+firstChar(entry))
		previous = entry
	}

	decoded := out.String()
	if !json.Valid([]byte(decoded)) {
		return "", fmt.Errorf("%w: decoded text is not JSON", ErrDecode)
	}
	return decoded, nil
}

// Compress is the encoder matching Decompress. It is used to build fixture
// frames. Text containing characters of 256 or above cannot be represented,
// and neither can a frame that would need a code in the UTF-16 surrogate
// range.
func Compress(text string) (string, error) {
	if text == "" {
		return "", nil
	}

	dict := make(map[string]rune)
	next := rune(dictionaryBase)

	var out strings.Builder
	emit := func(w string) error {
		code, ok := dict[w]
		if !ok {
			code, _ = utf8.DecodeRuneInString(w)
		}
		if !utf8.ValidRune(code) {
			return fmt.Errorf("compress: code %#x is not encodable", code)
		}
		out.WriteRune(code)
		return nil
	}

	w := ""
	for _, c := range text {
		if c >= dictionaryBase {
			return "", fmt.Errorf("compress: character %q outside Latin-1", c)
		}
		wc := w + string(c)
		if _, ok := dict[wc]; ok || w == "" {
			w = wc
			continue
		}
		if err := emit(w); err != nil {
			return "", err
		}
		dict[wc] = next
		next++
		w = string(c)
	}
	if err := emit(w); err != nil {
		return "", err
	}
	return out.String(), nil
}

// firstChar returns the first character of s, or "" when s is empty.
func firstChar(s string) string {
	if s == "" {
		return ""
	}
	_, size := utf8.DecodeRuneInString(s)
	return s[:size]
}
