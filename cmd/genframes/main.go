// Command genframes encodes JSON strike records into dictionary-compressed
// feed frames, producing fixtures for tests and for cmd/validate. Every
// encoded frame is parsed back with the real frame parser before it is
// written.
//
// Usage:
//
//	go run ./cmd/genframes \
//	  -in testdata/strikes.jsonl \
//	  -out testdata/frames.txt
package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/couchcryptid/lightning-feed-client/internal/domain"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		log.Fatal(err)
	}
}

func run(args []string) error {
	fs := flag.NewFlagSet("genframes", flag.ContinueOnError)
	in := fs.String("in", "", "input file with one JSON strike record per line")
	out := fs.String("out", "", "output file for compressed frames, one per line")
	plain := fs.Bool("plain", false, "write uncompressed JSON frames instead")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *in == "" || *out == "" {
		fs.Usage()
		return fmt.Errorf("missing required flags: -in, -out")
	}

	records, err := readLines(*in)
	if err != nil {
		return fmt.Errorf("reading %s: %w", *in, err)
	}

	var s stats
	frames := make([]string, 0, len(records))
	for i, rec := range records {
		frame, err := encodeFrame(rec, *plain)
		if err != nil {
			return fmt.Errorf("line %d: %w", i+1, err)
		}
		s.add(rec, frame)
		frames = append(frames, frame)
	}

	if err := writeLines(*out, frames); err != nil {
		return fmt.Errorf("writing %s: %w", *out, err)
	}
	log.Printf("wrote %d frames: %s", len(frames), *out)

	s.print()
	return nil
}

// encodeFrame compacts one JSON record, compresses it unless plain is set,
// and checks the frame parses back to the same JSON.
func encodeFrame(record string, plain bool) (string, error) {
	var compact bytes.Buffer
	if err := json.Compact(&compact, []byte(record)); err != nil {
		return "", fmt.Errorf("invalid JSON record: %w", err)
	}
	text := compact.String()

	frame := text
	if !plain {
		var err error
		if frame, err = domain.Compress(text); err != nil {
			return "", fmt.Errorf("compress: %w", err)
		}
	}

	p, err := domain.ParseFrame(domain.Frame(frame))
	if err != nil {
		return "", fmt.Errorf("parse back: %w", err)
	}
	if p.Kind == domain.PayloadRaw {
		return "", fmt.Errorf("frame does not decode: %.40q", frame)
	}
	if !plain && p.Compressed {
		decoded, err := domain.Decompress(frame)
		if err != nil {
			return "", fmt.Errorf("decompress: %w", err)
		}
		if decoded != text {
			return "", fmt.Errorf("round trip mismatch: %.40q", decoded)
		}
	}
	return frame, nil
}

func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 4<<20)
	for sc.Scan() {
		if line := bytes.TrimSpace(sc.Bytes()); len(line) > 0 {
			lines = append(lines, string(line))
		}
	}
	return lines, sc.Err()
}

func writeLines(path string, lines []string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	var buf bytes.Buffer
	for _, l := range lines {
		buf.WriteString(l)
		buf.WriteByte('\n')
	}
	return os.WriteFile(path, buf.Bytes(), 0o600)
}

// stats holds aggregated sizes for reporting.
type stats struct {
	frames     int
	compressed int // frames that are no longer valid JSON
	inRunes    int
	outRunes   int
}

func (s *stats) add(record, frame string) {
	s.frames++
	if !json.Valid([]byte(frame)) {
		s.compressed++
	}
	s.inRunes += len([]rune(record))
	s.outRunes += len([]rune(frame))
}

func (s *stats) print() {
	fmt.Println()
	fmt.Println("=== Frame Summary ===")
	fmt.Printf("  Frames:            %d\n", s.frames)
	fmt.Printf("  Compressed frames: %d\n", s.compressed)
	if s.inRunes > 0 {
		fmt.Printf("  Size ratio:        %.2f (%d -> %d characters)\n",
			float64(s.outRunes)/float64(s.inRunes), s.inRunes, s.outRunes)
	}
}
