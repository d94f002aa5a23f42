// Package framing splits a TCP byte stream into newline-terminated lines.
//
// Both ingestion protocols are line-oriented. Unlike bufio.Scanner, a
// Reader survives a line longer than its limit: the line is discarded up to
// its terminator and ReadLine reports ErrLineTooLong, after which the next
// line reads normally.
package framing

import (
	"bufio"
	"errors"
	"io"
)

// DefaultMaxLineSize bounds one line when NewReader is given zero.
const DefaultMaxLineSize = 64 * 1024

// ErrLineTooLong is returned for a line that exceeded the limit. The line
// has been consumed; the stream is still usable.
var ErrLineTooLong = errors.New("framing: line too long")

// Reader reads lines from an underlying stream.
//
// Thread Safety:
//   - Not safe for concurrent use.
type Reader struct {
	br  *bufio.Reader
	max int
}

// NewReader wraps r. max is the longest accepted line in bytes, terminator
// included; zero or negative means DefaultMaxLineSize.
func NewReader(r io.Reader, max int) *Reader {
	if max <= 0 {
		max = DefaultMaxLineSize
	}
	return &Reader{br: bufio.NewReaderSize(r, 4096), max: max}
}

// ReadLine returns the next line without its "\n" or "\r\n" terminator.
//
// A final line without a terminator is returned before the stream's error.
//
// Returns:
//   - string: The line
//   - error: ErrLineTooLong for a skipped line, otherwise the read error
//     (io.EOF on a clean close)
func (r *Reader) ReadLine() (string, error) {
	var (
		line    []byte
		tooLong bool
	)
	for {
		chunk, err := r.br.ReadSlice('\n')
		if !tooLong {
			if len(line)+len(chunk) > r.max {
				tooLong = true
				line = nil
			} else {
				line = append(line, chunk...)
			}
		}

		switch {
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		case tooLong:
			return "", ErrLineTooLong
		case err == nil:
			return string(trimEOL(line)), nil
		case len(line) > 0:
			// Unterminated last line; the error resurfaces on the next call.
			return string(line), nil
		default:
			return "", err
		}
	}
}

func trimEOL(b []byte) []byte {
	if n := len(b); n > 0 && b[n-1] == '\n' {
		b = b[:n-1]
		if n := len(b); n > 0 && b[n-1] == '\r' {
			b = b[:n-1]
		}
	}
	return b
}
