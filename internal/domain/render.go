package domain

import (
	"fmt"
	"time"
	"unicode/utf8"
)

const (
	// maxOtherRunes is how much of a non-object payload is shown.
	maxOtherRunes = 80
	// maxRawRunes is how much of an undecodable frame is shown.
	maxRawRunes = 100

	ellipsis = "..."
)

// LegendLine describes the columns of a strike line.
const LegendLine = "Format: [Time] ⚡ Latitude, Longitude | Strike Time | Polarity | Region | Stations | Delay"

// RenderPayload formats one parsed frame as a single line stamped with the
// time it was received.
func RenderPayload(p Payload, receivedAt time.Time) string {
	switch p.Kind {
	case PayloadStrike:
		return RenderStrike(p.Strike, receivedAt)
	case PayloadOther:
		return RenderOther(p.Text, receivedAt)
	default:
		return RenderRaw(Frame(p.Text), receivedAt)
	}
}

// RenderStrike formats a strike as
//
//	[15:04:05] ⚡  47.1234,   8.5678 | 15:04:03 | + | R1 |  7 stations | 2.3s delay
//
// The strike time is shown in the location of receivedAt.
func RenderStrike(ev StrikeEvent, receivedAt time.Time) string {
	return fmt.Sprintf("[%s] ⚡ %8.4f, %9.4f | %s | %s | R%d | %2d stations | %.1fs delay",
		receivedAt.Format(time.TimeOnly),
		ev.Lat,
		ev.Lon,
		NormalizeStrikeTime(ev.TimeRaw, ev.DelaySeconds, receivedAt.Location()),
		PolaritySymbol(ev.Polarity),
		ev.Region,
		ev.SignalCount,
		ev.DelaySeconds,
	)
}

// RenderOther formats valid JSON that is not a strike object.
func RenderOther(text string, receivedAt time.Time) string {
	return fmt.Sprintf("[%s] Non-dict data: %s", receivedAt.Format(time.TimeOnly), truncate(text, maxOtherRunes))
}

// RenderRaw formats a frame that could not be decoded.
func RenderRaw(frame Frame, receivedAt time.Time) string {
	return fmt.Sprintf("[%s] Raw: %s", receivedAt.Format(time.TimeOnly), truncate(string(frame), maxRawRunes))
}

// RenderError formats a frame that failed to parse.
func RenderError(err error, receivedAt time.Time) string {
	return fmt.Sprintf("[%s] Error: %v", receivedAt.Format(time.TimeOnly), err)
}

// PolaritySymbol maps 1 to "+", 0 to "-" and anything else to "?".
func PolaritySymbol(polarity int) string {
	switch polarity {
	case 1:
		return "+"
	case 0:
		return "-"
	default:
		return "?"
	}
}

// truncate keeps the first n characters of s, appending an ellipsis when
// anything was cut.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos] + ellipsis
		}
		i++
	}
	return s
}
