package testutil

import (
	"github.com/BertoldVdb/go-eeprom24/buswire"
)

type TxKind int

const (
	// TxPoll is a zero length write transaction, used for acknowledge polling
	TxPoll TxKind = iota
	// TxAddrSet carries only the two address bytes, it moves the device pointer
	TxAddrSet
	// TxWrite carries the two address bytes followed by payload data
	TxWrite
	// TxRead is a read transaction consuming the device pointer
	TxRead
)

// Transaction describes one completed bus transaction for test inspection.
type Transaction struct {
	Kind    TxKind
	Address uint16
	Length  int
}

// Sim emulates a 24-series EEPROM on the bus, including the two properties
// that make the real device awkward: the internal address counter wraps at
// the page boundary during a write transaction, and the device does not
// acknowledge anything while a write cycle is in progress.
//
// Sim also implements buswire.Clock. The virtual clock advances by
// PollAdvanceMicros on every transaction, so readiness polling makes progress
// without real sleeps.
type Sim struct {
	Mem      [65536]byte
	PageSize int

	DeviceAddress uint8

	// WriteCycleMicros is how long the device stays busy after a write
	WriteCycleMicros uint32
	// PollAdvanceMicros is the virtual time cost of one transaction
	PollAdvanceMicros uint32
	// NeverAck makes the device unreachable, as if it was not fitted
	NeverAck bool

	Log    []Transaction
	Writes int
	Reads  int
	Polls  int

	now       uint32
	busyUntil uint32

	txOpen bool
	txBuf  []byte
	memPtr uint16
	rxBuf  []byte
}

func NewSim(pageSize int) *Sim {
	s := &Sim{
		PageSize:          pageSize,
		DeviceAddress:     0x50,
		WriteCycleMicros:  4500,
		PollAdvanceMicros: 100,
	}

	// Blank EEPROMs read as 0xFF
	for i := range s.Mem {
		s.Mem[i] = 0xFF
	}

	return s
}

func (s *Sim) Micros() uint32 {
	return s.now
}

func (s *Sim) busy() bool {
	return s.NeverAck || s.now-s.busyUntil >= 0x80000000
}

func (s *Sim) BeginTransmission(addr uint8) {
	s.txOpen = addr == s.DeviceAddress
	s.txBuf = s.txBuf[:0]
}

func (s *Sim) Write(b byte) {
	if s.txOpen {
		s.txBuf = append(s.txBuf, b)
	}
}

func (s *Sim) EndTransmission() error {
	s.now += s.PollAdvanceMicros

	if !s.txOpen {
		return buswire.ErrorNack
	}
	s.txOpen = false

	if len(s.txBuf) == 0 {
		s.Polls++
		if s.busy() {
			return buswire.ErrorNack
		}
		s.Log = append(s.Log, Transaction{Kind: TxPoll})
		return nil
	}

	if s.busy() {
		return buswire.ErrorNack
	}

	if len(s.txBuf) < 2 {
		// Half an address, the real device would ack but the pointer state
		// becomes undefined. Reject so a driver bug shows up in tests.
		return buswire.ErrorNack
	}

	address := uint16(s.txBuf[0])<<8 | uint16(s.txBuf[1])
	s.memPtr = address
	data := s.txBuf[2:]

	if len(data) == 0 {
		s.Log = append(s.Log, Transaction{Kind: TxAddrSet, Address: address})
		return nil
	}

	// Data bytes wrap within the page the transaction started in
	pageBase := int(address) - int(address)%s.PageSize
	offset := int(address) % s.PageSize
	for _, b := range data {
		s.Mem[pageBase+offset] = b
		offset = (offset + 1) % s.PageSize
	}

	s.Writes++
	s.Log = append(s.Log, Transaction{Kind: TxWrite, Address: address, Length: len(data)})
	s.busyUntil = s.now + s.WriteCycleMicros

	return nil
}

func (s *Sim) RequestFrom(addr uint8, count int) error {
	s.now += s.PollAdvanceMicros

	if addr != s.DeviceAddress || s.busy() {
		return buswire.ErrorNack
	}

	start := s.memPtr
	s.rxBuf = s.rxBuf[:0]
	for i := 0; i < count; i++ {
		// Reads auto-increment across page boundaries
		s.rxBuf = append(s.rxBuf, s.Mem[s.memPtr])
		s.memPtr++
	}

	s.Reads++
	s.Log = append(s.Log, Transaction{Kind: TxRead, Address: start, Length: count})

	return nil
}

func (s *Sim) Read() (byte, error) {
	if len(s.rxBuf) == 0 {
		return 0, buswire.ErrorReadUnderflow
	}

	value := s.rxBuf[0]
	s.rxBuf = s.rxBuf[1:]
	return value, nil
}

// LoadBytes places data directly in the backing memory, bypassing the bus.
func (s *Sim) LoadBytes(address uint16, data []byte) {
	for i, b := range data {
		s.Mem[int(address)+i] = b
	}
}

// WriteLog returns only the data write transactions, in order.
func (s *Sim) WriteLog() []Transaction {
	var out []Transaction
	for _, tx := range s.Log {
		if tx.Kind == TxWrite {
			out = append(out, tx)
		}
	}
	return out
}
