package ingestion

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/goccy/go-json"

	"nba-temporal-panel/internal/domain"
	"nba-temporal-panel/internal/observability"
)

// maxLineBytes bounds a single JSON line.
const maxLineBytes = 1 << 20

// JSONLFeed reads one JSON event per line. Blank lines are skipped.
type JSONLFeed struct {
	scanner *bufio.Scanner
	line    int
}

// NewJSONLFeed creates a feed over r.
func NewJSONLFeed(r io.Reader) *JSONLFeed {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	return &JSONLFeed{scanner: s}
}

// Next decodes the next line. A line that fails to decode returns an error
// wrapping ErrMalformedMessage and the following call moves on.
func (f *JSONLFeed) Next(ctx context.Context) (*domain.Event, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !f.scanner.Scan() {
			if err := f.scanner.Err(); err != nil {
				return nil, fmt.Errorf("read line %d: %w", f.line+1, err)
			}
			return nil, io.EOF
		}
		f.line++

		line := bytes.TrimSpace(f.scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		observability.RecordFeedMessage()

		var w wireEvent
		if err := json.Unmarshal(line, &w); err != nil {
			return nil, malformed(fmt.Sprintf("line %d", f.line), err)
		}
		return w.toEvent(), nil
	}
}
