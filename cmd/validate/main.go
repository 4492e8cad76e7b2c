// Command validate decodes a capture of feed frames offline and checks that
// every frame decodes, that strike records have a plausible shape, and that
// strike times land in a known magnitude band. It is the way to confirm the
// frame decoder against real traffic without holding a live connection.
//
// Usage:
//
//	go run ./cmd/validate \
//	  -frames testdata/capture.txt \
//	  -captured-at 2024-04-26T15:10:00Z
package main

import (
	"bufio"
	"flag"
	"fmt"
	"math"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/couchcryptid/lightning-feed-client/internal/domain"
	"github.com/jonboulle/clockwork"
)

// renderClock fixes the receipt time stamped on rendered lines.
var renderClock = time.Date(2024, time.April, 26, 15, 10, 0, 0, time.UTC)

// maxStrikeAge bounds how far before the capture a strike may be.
const maxStrikeAge = 24 * time.Hour

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

// capturedFrame is one line of the capture file and its parse result.
type capturedFrame struct {
	lineNum int
	frame   domain.Frame
	payload domain.Payload
	err     error
}

func main() {
	framesPath := flag.String("frames", "", "capture file with one frame per line")
	capturedAt := flag.String("captured-at", "", "RFC 3339 time the capture was taken (enables strike age checks)")
	flag.Parse()

	if *framesPath == "" {
		flag.Usage()
		os.Exit(1)
	}

	var captured time.Time
	if *capturedAt != "" {
		t, err := time.Parse(time.RFC3339, *capturedAt)
		if err != nil {
			fmt.Fprintf(os.Stderr, "FATAL: parse -captured-at: %v\n", err)
			os.Exit(1)
		}
		captured = t
	}

	if code := run(*framesPath, captured); code != 0 {
		os.Exit(code)
	}
}

func run(framesPath string, capturedAt time.Time) int {
	domain.SetClock(clockwork.NewFakeClockAt(renderClock))
	defer domain.SetClock(nil)

	fmt.Println("=== Lightning Frame Validation ===")
	fmt.Println()

	frames, err := loadFrames(framesPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load frames: %v\n", err)
		return 1
	}

	// ── Run validation phases ──
	phases := []*phase{
		validateDecoding(frames),
		validateRecordShape(frames),
		validateTimeInference(frames, capturedAt),
		validateRendering(frames),
	}

	// ── Report results ──
	fmt.Println()
	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Printf("  %-42s %s\n", p.name, status)
	}

	fmt.Println()
	printSummary(frames)

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Printf("  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Println("\nAll validations passed.")
		return 0
	}
	fmt.Println("\nValidation FAILED.")
	return 1
}

// ── Data loading ──

func loadFrames(path string) ([]capturedFrame, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 4<<20)
	var lines []string
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	frames := parseFrames(lines)
	if len(frames) == 0 {
		return nil, fmt.Errorf("no frames in %s", path)
	}
	return frames, nil
}

// parseFrames parses every non-blank line, keeping line numbers for reports.
func parseFrames(lines []string) []capturedFrame {
	var frames []capturedFrame
	for i, line := range lines {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		frame := domain.Frame(line)
		p, err := domain.ParseFrame(frame)
		frames = append(frames, capturedFrame{lineNum: i + 1, frame: frame, payload: p, err: err})
	}
	return frames
}

// ── Phase 1: Frame Decoding ──
// Every frame must be plain JSON or decompress to JSON.

func validateDecoding(frames []capturedFrame) *phase {
	p := &phase{name: "Phase 1: Frame Decoding"}
	for _, f := range frames {
		switch {
		case f.err != nil:
			p.errorf("line %d: %v", f.lineNum, f.err)
		case f.payload.Kind == domain.PayloadRaw:
			if _, err := domain.Decompress(string(f.frame)); err != nil {
				p.errorf("line %d: undecodable frame: %v", f.lineNum, err)
			} else {
				p.errorf("line %d: frame decompresses to an empty value", f.lineNum)
			}
		}
	}
	return p
}

// ── Phase 2: Record Shape ──
// Strike records must have coordinates, polarity and stations in range.

func validateRecordShape(frames []capturedFrame) *phase {
	p := &phase{name: "Phase 2: Record Shape"}
	for _, f := range strikes(frames) {
		ev := f.payload.Strike
		if ev.Lat < -90 || ev.Lat > 90 {
			p.errorf("line %d: latitude %v out of range", f.lineNum, ev.Lat)
		}
		if ev.Lon < -180 || ev.Lon > 180 {
			p.errorf("line %d: longitude %v out of range", f.lineNum, ev.Lon)
		}
		if ev.Polarity != 0 && ev.Polarity != 1 {
			p.errorf("line %d: polarity %d is neither 0 nor 1", f.lineNum, ev.Polarity)
		}
		if ev.SignalCount == 0 {
			p.errorf("line %d: no detecting stations", f.lineNum)
		}
		if ev.DelaySeconds < 0 || math.IsNaN(ev.DelaySeconds) {
			p.errorf("line %d: delay %v is negative", f.lineNum, ev.DelaySeconds)
		}
	}
	return p
}

// ── Phase 3: Time Inference ──
// Strike times must fall in one magnitude band, consistently across the
// capture, and when capturedAt is known, shortly before it.

func validateTimeInference(frames []capturedFrame, capturedAt time.Time) *phase {
	p := &phase{name: "Phase 3: Time Inference"}

	units := map[domain.TimeUnit]int{}
	for _, f := range strikes(frames) {
		ev := f.payload.Strike
		t, unit, ok := domain.StrikeTime(ev.TimeRaw, time.UTC)
		units[unit]++
		switch {
		case unit == domain.UnitUnknown:
			p.errorf("line %d: time %d matches no magnitude band", f.lineNum, ev.TimeRaw)
			continue
		case !ok:
			p.errorf("line %d: time %d (%s) is not a calendar time", f.lineNum, ev.TimeRaw, unit)
			continue
		}
		if capturedAt.IsZero() {
			continue
		}
		if t.After(capturedAt.Add(time.Minute)) {
			p.errorf("line %d: strike at %s is after the capture", f.lineNum, t.Format(time.RFC3339))
		} else if capturedAt.Sub(t) > maxStrikeAge {
			p.errorf("line %d: strike at %s is more than %s before the capture", f.lineNum, t.Format(time.RFC3339), maxStrikeAge)
		}
	}

	delete(units, domain.UnitUnknown)
	if len(units) > 1 {
		var parts []string
		for u, n := range units {
			parts = append(parts, fmt.Sprintf("%s=%d", u, n))
		}
		sort.Strings(parts)
		p.errorf("mixed time units in capture: %s", strings.Join(parts, ", "))
	}
	return p
}

// ── Phase 4: Rendering ──
// Every frame must render as exactly one stamped line.

func validateRendering(frames []capturedFrame) *phase {
	p := &phase{name: "Phase 4: Rendering"}
	prefix := "[" + domain.Now().Format(time.TimeOnly) + "] "
	for _, f := range frames {
		var line string
		if f.err != nil {
			line = domain.RenderError(f.err, domain.Now())
		} else {
			line = domain.RenderPayload(f.payload, domain.Now())
		}
		if strings.ContainsAny(line, "\r\n") {
			p.errorf("line %d: rendered output spans several lines", f.lineNum)
		}
		if !strings.HasPrefix(line, prefix) {
			p.errorf("line %d: rendered output lacks receipt stamp: %.40q", f.lineNum, line)
		}
	}
	return p
}

func strikes(frames []capturedFrame) []capturedFrame {
	var out []capturedFrame
	for _, f := range frames {
		if f.err == nil && f.payload.Kind == domain.PayloadStrike {
			out = append(out, f)
		}
	}
	return out
}

func printSummary(frames []capturedFrame) {
	kinds := map[string]int{}
	compressed, failed := 0, 0
	for _, f := range frames {
		if f.err != nil {
			failed++
			continue
		}
		kinds[f.payload.Kind.String()]++
		if f.payload.Compressed {
			compressed++
		}
	}
	fmt.Printf("Frames: %d total, %d compressed, %d strike, %d other, %d raw, %d errors\n",
		len(frames), compressed, kinds["strike"], kinds["other"], kinds["raw"], failed)
}
