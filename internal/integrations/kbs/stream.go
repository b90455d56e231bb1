package kbs

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"kbs-slackbot/internal/domain"
)

// eventPrefix marks the lines of the response body that carry a payload.
const eventPrefix = "data: "

// Stream reads answer snapshots from a streamed chat response. It is read
// once; the first decode error ends it.
type Stream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
	span    trace.Span

	current domain.AnswerSnapshot
	events  int
	err     error
	closed  bool
}

func newStream(body io.ReadCloser, span trace.Span) *Stream {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	return &Stream{body: body, scanner: scanner, span: span}
}

// Next advances to the next snapshot. It returns false at the end of the
// stream or on error; check Err afterwards.
func (s *Stream) Next() bool {
	if s.err != nil || s.closed {
		return false
	}
	for s.scanner.Scan() {
		line := strings.TrimRight(s.scanner.Text(), "\r")
		payload, ok := strings.CutPrefix(line, eventPrefix)
		if !ok {
			continue
		}
		snap, err := decodeEvent([]byte(payload))
		if err != nil {
			s.err = err
			return false
		}
		s.current = snap
		s.events++
		return true
	}
	if err := s.scanner.Err(); err != nil {
		s.err = fmt.Errorf("kbs: read stream: %w", err)
	}
	return false
}

// Snapshot returns the snapshot read by the last successful Next.
func (s *Stream) Snapshot() domain.AnswerSnapshot {
	return s.current
}

func (s *Stream) Err() error {
	return s.err
}

func (s *Stream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if s.span != nil {
		s.span.SetAttributes(attribute.Int("kbs.events", s.events))
		if s.err != nil {
			s.span.RecordError(s.err)
			s.span.SetStatus(codes.Error, "stream failed")
		}
		s.span.End()
	}
	return s.body.Close()
}
