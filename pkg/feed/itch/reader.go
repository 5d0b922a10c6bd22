// Package itch decodes order-lifecycle events from NASDAQ TotalView-ITCH 5.0
// files. Only the messages that affect a limit order book are decoded: Add
// Order ('A'), Add Order with MPID ('F'), Order Cancel ('X') and Order
// Replace ('U'). Everything else is skipped.
package itch

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/erain9/lobmatch/pkg/core"
	"github.com/klauspost/compress/gzip"
	"github.com/rs/zerolog"
)

// Message types
const (
	TypeAddOrder     byte = 'A'
	TypeAddOrderMPID byte = 'F'
	TypeOrderCancel  byte = 'X'
	TypeOrderReplace byte = 'U'
)

// Message lengths, type byte included
const (
	lenAddOrder     = 36
	lenAddOrderMPID = 40
	lenOrderCancel  = 23
	lenOrderReplace = 35
)

// ErrShortMessage is reported for a known message type whose body is
// shorter than its layout
var ErrShortMessage = errors.New("itch: short message")

// Reader yields engine events from a length-prefixed ITCH stream
type Reader struct {
	r      *bufio.Reader
	closer io.Closer
	buf    []byte
	logger zerolog.Logger

	messages  uint64
	skipped   uint64
	malformed uint64
}

// Option configures a Reader
type Option func(*Reader)

// WithLogger sets the logger malformed messages are reported to
func WithLogger(logger zerolog.Logger) Option {
	return func(rd *Reader) {
		rd.logger = logger
	}
}

// NewReader reads framed messages from r
func NewReader(r io.Reader, opts ...Option) *Reader {
	rd := &Reader{
		r:      bufio.NewReaderSize(r, 1<<16),
		buf:    make([]byte, 64),
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(rd)
	}
	return rd
}

// Open opens an ITCH file. Files ending in .gz are decompressed on the fly.
func Open(path string, opts ...Option) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	if !strings.HasSuffix(path, ".gz") {
		rd := NewReader(f, opts...)
		rd.closer = f
		return rd, nil
	}

	zr, err := gzip.NewReader(f)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("itch: open %s: %w", path, err)
	}
	rd := NewReader(zr, opts...)
	rd.closer = multiCloser{zr, f}
	return rd, nil
}

type multiCloser []io.Closer

func (m multiCloser) Close() error {
	var errs []error
	for _, c := range m {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

// Close releases the underlying file, if the reader owns one
func (rd *Reader) Close() error {
	if rd.closer == nil {
		return nil
	}
	return rd.closer.Close()
}

// Messages returns the number of framed messages read so far
func (rd *Reader) Messages() uint64 {
	return rd.messages
}

// Skipped returns the number of messages that did not produce an event,
// malformed ones included
func (rd *Reader) Skipped() uint64 {
	return rd.skipped
}

// Malformed returns the number of order messages dropped because they
// could not be decoded
func (rd *Reader) Malformed() uint64 {
	return rd.malformed
}

// Next returns the next order event. Unrelated and undecodable messages are
// skipped; only framing errors end the stream.
func (rd *Reader) Next() (core.Event, error) {
	for {
		msg, err := rd.frame()
		if err != nil {
			return nil, err
		}
		rd.messages++

		ev, err := decode(msg)
		if err != nil {
			rd.skipped++
			rd.malformed++
			rd.logger.Debug().
				Err(err).
				Uint64("seq", rd.messages).
				Msg("Skipping malformed message")
			continue
		}
		if ev == nil {
			rd.skipped++
			continue
		}
		return ev, nil
	}
}

func (rd *Reader) frame() ([]byte, error) {
	var hdr [2]byte
	if _, err := io.ReadFull(rd.r, hdr[:]); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("itch: frame header: %w", err)
	}

	n := int(binary.BigEndian.Uint16(hdr[:]))
	if cap(rd.buf) < n {
		rd.buf = make([]byte, n)
	}
	msg := rd.buf[:n]
	if _, err := io.ReadFull(rd.r, msg); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, fmt.Errorf("itch: frame body: %w", err)
	}
	return msg, nil
}

// decode returns nil for messages that carry no order event
func decode(msg []byte) (core.Event, error) {
	if len(msg) == 0 {
		return nil, nil
	}

	switch msg[0] {
	case TypeAddOrder, TypeAddOrderMPID:
		want := lenAddOrder
		if msg[0] == TypeAddOrderMPID {
			want = lenAddOrderMPID
		}
		if len(msg) < want {
			return nil, fmt.Errorf("%w: %q is %d bytes", ErrShortMessage, msg[0], len(msg))
		}
		side, err := parseSide(msg[19])
		if err != nil {
			return nil, err
		}
		return core.NewOrderEvent{
			Timestamp: timestamp(msg[5:11]),
			ID:        binary.BigEndian.Uint64(msg[11:19]),
			Side:      side,
			Size:      binary.BigEndian.Uint32(msg[20:24]),
			Symbol:    strings.TrimRight(string(msg[24:32]), " "),
			Price:     binary.BigEndian.Uint32(msg[32:36]),
		}, nil

	case TypeOrderCancel:
		if len(msg) < lenOrderCancel {
			return nil, fmt.Errorf("%w: %q is %d bytes", ErrShortMessage, msg[0], len(msg))
		}
		return core.CancelEvent{
			Timestamp: timestamp(msg[5:11]),
			ID:        binary.BigEndian.Uint64(msg[11:19]),
			Size:      binary.BigEndian.Uint32(msg[19:23]),
		}, nil

	case TypeOrderReplace:
		if len(msg) < lenOrderReplace {
			return nil, fmt.Errorf("%w: %q is %d bytes", ErrShortMessage, msg[0], len(msg))
		}
		return core.ReplaceEvent{
			Timestamp: timestamp(msg[5:11]),
			OldID:     binary.BigEndian.Uint64(msg[11:19]),
			NewID:     binary.BigEndian.Uint64(msg[19:27]),
			Size:      binary.BigEndian.Uint32(msg[27:31]),
			Price:     binary.BigEndian.Uint32(msg[31:35]),
		}, nil

	default:
		return nil, nil
	}
}

// timestamp decodes the 6-byte nanoseconds-since-midnight field
func timestamp(b []byte) uint64 {
	return uint64(b[0])<<40 | uint64(b[1])<<32 | uint64(b[2])<<24 |
		uint64(b[3])<<16 | uint64(b[4])<<8 | uint64(b[5])
}

func parseSide(b byte) (core.Side, error) {
	switch b {
	case 'B':
		return core.Buy, nil
	case 'S':
		return core.Sell, nil
	default:
		return core.Sell, fmt.Errorf("itch: buy/sell indicator %q: %w", b, core.ErrInvalidArgument)
	}
}
