// Package stream decodes the chunked text stream of the AI chat endpoint.
//
// The stream is newline-delimited. Records carrying content start with
// "data: ". A payload of "[DONE]" ends the stream and a payload starting with
// "ERROR:" is a terminal server error. Payloads that are JSON string literals
// are unquoted so chunks may carry newlines; anything else is used verbatim.
// Other SSE lines (event, id, retry, comments, blank separators) are ignored.
package stream

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

const (
	dataPrefix  = "data: "
	errorMarker = "ERROR:"
	doneMarker  = "[DONE]"

	maxLineSize = 1 << 20 // 1MB
)

// ErrMalformedChunk is returned when a quoted payload cannot be decoded.
var ErrMalformedChunk = errors.New("malformed stream chunk")

// ServerError is a terminal error record sent by the server.
type ServerError struct {
	Message string
}

func (e *ServerError) Error() string {
	return "server stream error: " + e.Message
}

// Decoder reads chunks from a chat stream.
type Decoder struct {
	scanner *bufio.Scanner
	done    bool
}

// NewDecoder returns a decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 4096), maxLineSize)
	return &Decoder{scanner: s}
}

// Next returns the next content chunk. It returns io.EOF when the stream ends
// cleanly, a *ServerError for an error record, or the transport error.
func (d *Decoder) Next() (string, error) {
	if d.done {
		return "", io.EOF
	}
	for d.scanner.Scan() {
		line := strings.TrimSuffix(d.scanner.Text(), "\r")
		payload, ok := strings.CutPrefix(line, dataPrefix)
		if !ok {
			continue
		}

		switch {
		case payload == doneMarker:
			d.done = true
			return "", io.EOF
		case strings.HasPrefix(payload, errorMarker):
			d.done = true
			return "", &ServerError{Message: strings.TrimSpace(strings.TrimPrefix(payload, errorMarker))}
		case strings.HasPrefix(payload, `"`):
			var chunk string
			if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
				d.done = true
				return "", fmt.Errorf("%w: %v", ErrMalformedChunk, err)
			}
			return chunk, nil
		default:
			return payload, nil
		}
	}
	d.done = true
	if err := d.scanner.Err(); err != nil {
		return "", fmt.Errorf("read stream: %w", err)
	}
	return "", io.EOF
}

// Each calls fn for every chunk until the stream ends. It returns nil on a
// clean end and the first error otherwise.
func (d *Decoder) Each(fn func(chunk string)) error {
	for {
		chunk, err := d.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		fn(chunk)
	}
}

// EncodeChunk renders chunk as one data record, quoting it when it contains
// characters that would break line framing.
func EncodeChunk(chunk string) string {
	if strings.ContainsAny(chunk, "\r\n") || strings.HasPrefix(chunk, `"`) ||
		strings.HasPrefix(chunk, errorMarker) || chunk == doneMarker {
		quoted, _ := json.Marshal(chunk)
		return dataPrefix + string(quoted) + "\n\n"
	}
	return dataPrefix + chunk + "\n\n"
}

// EncodeError renders a terminal error record.
func EncodeError(message string) string {
	return dataPrefix + errorMarker + " " + strings.ReplaceAll(message, "\n", " ") + "\n\n"
}

// EncodeDone renders the end-of-stream record.
func EncodeDone() string {
	return dataPrefix + doneMarker + "\n\n"
}
