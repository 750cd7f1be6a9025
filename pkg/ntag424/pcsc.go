package ntag424

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ebfe/scard"
)

// DESFireATR is the ATR most PC/SC readers report for an NTAG 424 DNA.
var DESFireATR = []byte{0x3B, 0x81, 0x80, 0x01, 0x80, 0x80}

// ErrWaitTimeout is returned when no card arrives or leaves in time.
var ErrWaitTimeout = errors.New("timed out waiting for card")

// pollInterval bounds each GetStatusChange call so timeouts stay responsive.
const pollInterval = time.Second

// Reader is a PC/SC context bound to one reader.
type Reader struct {
	ctx   *scard.Context
	Name  string
	Index int
}

// OpenReader establishes a PC/SC context and picks the reader at readerIndex.
func OpenReader(readerIndex int) (*Reader, error) {
	ctx, err := scard.EstablishContext()
	if err != nil {
		return nil, fmt.Errorf("EstablishContext failed: %w", err)
	}

	readers, err := ctx.ListReaders()
	if err != nil || len(readers) == 0 {
		ctx.Release()
		return nil, fmt.Errorf("no readers found: %v", err)
	}
	if readerIndex < 0 || readerIndex >= len(readers) {
		ctx.Release()
		return nil, fmt.Errorf("reader index out of range (0..%d)", len(readers)-1)
	}
	return &Reader{ctx: ctx, Name: readers[readerIndex], Index: readerIndex}, nil
}

// Close releases the PC/SC context.
func (r *Reader) Close() {
	if r == nil || r.ctx == nil {
		return
	}
	_ = r.ctx.Release()
}

// WaitForCard blocks until a card is present. A zero timeout waits forever.
func (r *Reader) WaitForCard(timeout time.Duration) error {
	return r.waitFor(scard.StatePresent, timeout)
}

// WaitForRemoval blocks until the reader is empty. A zero timeout waits forever.
func (r *Reader) WaitForRemoval(timeout time.Duration) error {
	return r.waitFor(scard.StateEmpty, timeout)
}

func (r *Reader) waitFor(want scard.StateFlag, timeout time.Duration) error {
	states := []scard.ReaderState{{
		Reader:       r.Name,
		CurrentState: scard.StateUnaware,
	}}
	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	for {
		err := r.ctx.GetStatusChange(states, pollInterval)
		if err != nil && err != scard.ErrTimeout {
			return fmt.Errorf("GetStatusChange: %w", err)
		}
		if err == nil {
			if states[0].EventState&want != 0 {
				return nil
			}
			states[0].CurrentState = states[0].EventState
		}
		if !deadline.IsZero() && time.Now().After(deadline) {
			return ErrWaitTimeout
		}
	}
}

// Connect connects to the card currently on the reader.
// An unexpected ATR is logged but not fatal; reader firmware varies.
func (r *Reader) Connect() (*Connection, error) {
	card, err := r.ctx.Connect(r.Name, scard.ShareShared, scard.ProtocolAny)
	if err != nil {
		return nil, fmt.Errorf("connect failed: %w", err)
	}
	conn := &Connection{Card: card, Reader: r.Name, ReaderIdx: r.Index}
	if status, err := card.Status(); err == nil {
		conn.ATR = status.Atr
		if !bytes.Equal(status.Atr, DESFireATR) {
			slog.Warn("unexpected ATR", "atr", upperHex(status.Atr), "want", upperHex(DESFireATR))
		}
	}
	return conn, nil
}

// Connection wraps a PC/SC card connection.
type Connection struct {
	Card      *scard.Card
	Reader    string
	ReaderIdx int
	ATR       []byte
}

// Close disconnects the card. The Reader keeps its PC/SC context.
func (c *Connection) Close() {
	if c == nil {
		return
	}
	if c.Card != nil {
		_ = c.Card.Disconnect(scard.LeaveCard)
	}
}

// Transmit sends an APDU to the card (implements Card interface).
func (c *Connection) Transmit(apdu []byte) ([]byte, error) {
	if c == nil || c.Card == nil {
		return nil, fmt.Errorf("connection not established")
	}
	return c.Card.Transmit(apdu)
}
