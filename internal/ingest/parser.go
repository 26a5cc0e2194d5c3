package ingest

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"limlog/internal/model"
)

// ErrSkipLine is returned for lines that carry no usable information: blank
// lines, short lines, and lines whose measured value was lost.
var ErrSkipLine = errors.New("skip line")

// MalformedLineError identifies a line that could not be interpreted.
type MalformedLineError struct {
	Line   string
	Reason string
	Err    error
}

func (e *MalformedLineError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed line %q: %s: %v", e.Line, e.Reason, e.Err)
	}
	return fmt.Sprintf("malformed line %q: %s", e.Line, e.Reason)
}

func (e *MalformedLineError) Unwrap() error {
	return e.Err
}

func Malformed(line, reason string, err error) error {
	return &MalformedLineError{Line: strings.TrimRight(line, "\r\n"), Reason: reason, Err: err}
}

const (
	fieldsMissingValue = 6
	fieldsFull         = 7
)

type Parser struct{}

func NewParser() *Parser {
	return &Parser{}
}

// ParseLine classifies one raw limit-log line.
//
//	<timestamp> <unused> <signal> <status> [<value>] <operator> <limit>
func (p *Parser) ParseLine(line string) (*model.LogLine, error) {
	words := strings.Fields(line)
	if len(words) < fieldsMissingValue {
		return nil, fmt.Errorf("%w: %d fields", ErrSkipLine, len(words))
	}
	if len(words) > fieldsFull {
		return nil, Malformed(line, fmt.Sprintf("want 6 or 7 fields, got %d", len(words)), nil)
	}
	status, ok := model.ParseStatus(words[3])
	if !ok {
		return nil, Malformed(line, fmt.Sprintf("unknown status %q", words[3]), nil)
	}
	out := &model.LogLine{
		Timestamp: words[0],
		SignalID:  words[2],
		Status:    status,
		Raw:       strings.TrimRight(line, "\r\n"),
	}
	if len(words) == fieldsFull {
		out.Value = words[4]
		out.Operator = words[5]
		out.Limit = words[6]
	} else {
		out.Value = model.NoneValue
		out.Operator = words[4]
		out.Limit = words[5]
	}
	if !out.HasValue() {
		return nil, fmt.Errorf("%w: missing value for %s", ErrSkipLine, out.SignalID)
	}
	return out, nil
}

// ReadLines calls fn for every line of r in order. It stops on the first
// error returned by fn or when ctx is done.
func ReadLines(ctx context.Context, r io.Reader, fn func(line string) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 8192), 1024*1024)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(scanner.Text()); err != nil {
			return err
		}
	}
	return scanner.Err()
}
