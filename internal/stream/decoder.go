// Package stream decodes newline-delimited JSON chat responses into text
// fragments and keeps the running accumulator.
package stream

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"strings"

	"github.com/tidwall/gjson"
)

// DefaultFragmentPath is where Ollama-style chunks carry incremental text.
const DefaultFragmentPath = "message.content"

// Error is reported by the backend in-band, as an {"error": "..."} line.
type Error struct {
	Message string
}

func (e *Error) Error() string {
	return "stream error: " + e.Message
}

// FragmentFunc receives each fragment together with the accumulated text so
// far. Returning an error stops processing and is returned from Process.
type FragmentFunc func(fragment, accumulated string) error

type Option func(*Decoder)

// WithFragmentPath overrides the gjson path used to find fragments.
func WithFragmentPath(path string) Option {
	return func(d *Decoder) {
		d.path = path
	}
}

// Decoder reads one NDJSON body. It is not safe for concurrent use.
type Decoder struct {
	reader      *bufio.Reader
	path        string
	accumulator strings.Builder
	fragments   int
	skipped     int
	done        bool
}

func NewDecoder(r io.Reader, opts ...Option) *Decoder {
	d := &Decoder{
		reader: bufio.NewReader(r),
		path:   DefaultFragmentPath,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Process reads the body until it ends, a done chunk arrives, ctx is
// cancelled or fn returns an error. ctx is checked before every read.
// A cancelled context is reported as ctx.Err().
func (d *Decoder) Process(ctx context.Context, fn FragmentFunc) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		line, readErr := d.reader.ReadBytes('\n')
		if readErr != nil && !errors.Is(readErr, io.EOF) {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return readErr
		}

		// ctx may have been cancelled while the read was blocked.
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := d.handleLine(line, fn); err != nil {
			return err
		}
		if d.done || errors.Is(readErr, io.EOF) {
			return nil
		}
	}
}

func (d *Decoder) handleLine(line []byte, fn FragmentFunc) error {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return nil
	}
	if !gjson.ValidBytes(line) {
		d.skipped++
		return nil
	}

	if e := gjson.GetBytes(line, "error"); e.Type == gjson.String {
		return &Error{Message: e.String()}
	}

	frag := gjson.GetBytes(line, d.path)
	if frag.Type == gjson.String && frag.Str != "" {
		d.accumulator.WriteString(frag.Str)
		d.fragments++
		if fn != nil {
			if err := fn(frag.Str, d.accumulator.String()); err != nil {
				return err
			}
		}
	}

	if gjson.GetBytes(line, "done").Bool() {
		d.done = true
	}
	return nil
}

// Accumulated returns the concatenation of every fragment seen so far.
func (d *Decoder) Accumulated() string {
	return d.accumulator.String()
}

func (d *Decoder) Fragments() int {
	return d.fragments
}

// Skipped counts lines that were not valid JSON.
func (d *Decoder) Skipped() int {
	return d.skipped
}

// Done reports whether the backend sent a done chunk.
func (d *Decoder) Done() bool {
	return d.done
}
