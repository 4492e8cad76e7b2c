package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrDecode reports a frame that could not be decompressed into JSON.
	ErrDecode = errors.New("decode frame")

	// ErrEmptyFrame is returned for an empty frame; it wraps ErrDecode.
	ErrEmptyFrame = fmt.Errorf("%w: empty frame", ErrDecode)

	// ErrParse reports decoded JSON whose fields have the wrong type.
	ErrParse = errors.New("parse strike")
)

// Frame is the raw text of one message received from the feed.
type Frame string

// StrikeEvent is one lightning strike observation parsed from a frame.
type StrikeEvent struct {
	Lat          float64 `json:"lat"`
	Lon          float64 `json:"lon"`
	TimeRaw      uint64  `json:"time"` // unit unknown, see InferTimeUnit
	Polarity     int     `json:"pol"`
	Region       int     `json:"region"`
	SignalCount  int     `json:"stations"`
	DelaySeconds float64 `json:"delay"`
}

// PayloadKind tells which shape a parsed frame turned out to have.
type PayloadKind int

const (
	// PayloadRaw is a frame that was neither JSON nor a decodable compressed frame.
	PayloadRaw PayloadKind = iota
	// PayloadStrike is a JSON object mapped to a StrikeEvent.
	PayloadStrike
	// PayloadOther is valid JSON that is not an object (list, scalar).
	PayloadOther
)

func (k PayloadKind) String() string {
	switch k {
	case PayloadStrike:
		return "strike"
	case PayloadOther:
		return "other"
	default:
		return "raw"
	}
}

// Payload is the result of parsing one frame.
type Payload struct {
	Kind PayloadKind

	// Strike is set when Kind is PayloadStrike.
	Strike StrikeEvent

	// Text holds the JSON text of a PayloadOther or the frame of a PayloadRaw.
	Text string

	// Compressed is true when the frame went through Decompress.
	Compressed bool
}
