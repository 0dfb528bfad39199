package buswire

import (
	"time"
)

type Error string

func (e Error) Error() string { return string(e) }

const (
	ErrorNack          = Error("Device did not acknowledge")
	ErrorReadUnderflow = Error("No requested bytes left to read")
	ErrorBusClosed     = Error("Bus is closed")
)

// Master is a transaction level two-wire bus master. A write transaction is
// built up with BeginTransmission and Write and put on the wire by
// EndTransmission, which reports whether the target acknowledged. A read
// transaction is performed by RequestFrom, after which Read consumes the
// requested bytes one at a time.
//
// A Master carries the state of at most one transaction, so callers must not
// interleave transactions from multiple goroutines.
type Master interface {
	BeginTransmission(addr uint8)
	Write(b byte)
	EndTransmission() error

	RequestFrom(addr uint8, count int) error
	Read() (byte, error)
}

// Clock provides a monotonic microsecond counter. It is allowed to wrap, users
// measure intervals with uint32 subtraction.
type Clock interface {
	Micros() uint32
}

type MonotonicClock struct {
	start time.Time
}

func NewMonotonicClock() *MonotonicClock {
	return &MonotonicClock{start: time.Now()}
}

func (c *MonotonicClock) Micros() uint32 {
	return uint32(time.Since(c.start) / time.Microsecond)
}
