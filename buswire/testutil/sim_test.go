package testutil

import (
	"testing"

	"github.com/BertoldVdb/go-eeprom24/buswire"
)

func writeTx(s *Sim, address uint16, data []byte) error {
	s.BeginTransmission(s.DeviceAddress)
	s.Write(byte(address >> 8))
	s.Write(byte(address))
	for _, b := range data {
		s.Write(b)
	}
	return s.EndTransmission()
}

func pollTx(s *Sim) error {
	s.BeginTransmission(s.DeviceAddress)
	return s.EndTransmission()
}

func TestSimPageWrap(t *testing.T) {
	s := NewSim(32)

	/* A transaction crossing the page boundary must wrap to the page start,
	   exactly like the real device corrupts data */
	if err := writeTx(s, 30, []byte{1, 2, 3, 4}); err != nil {
		t.Error("Write failed", err)
	}

	if s.Mem[30] != 1 || s.Mem[31] != 2 {
		t.Error("In-page bytes wrong")
	}
	if s.Mem[32] != 0xFF {
		t.Error("Write leaked into the next page")
	}
	if s.Mem[0] != 3 || s.Mem[1] != 4 {
		t.Error("Bytes did not wrap to the page start")
	}
}

func TestSimBusyWindow(t *testing.T) {
	s := NewSim(32)

	if err := writeTx(s, 0, []byte{1}); err != nil {
		t.Error("Write failed", err)
	}

	if pollTx(s) != buswire.ErrorNack {
		t.Error("Device acked during its write cycle")
	}

	/* Keep polling, the device must come back within the write cycle time */
	acked := false
	for i := 0; i < 100; i++ {
		if pollTx(s) == nil {
			acked = true
			break
		}
	}
	if !acked {
		t.Error("Device never finished its write cycle")
	}
}

func TestSimWrongAddress(t *testing.T) {
	s := NewSim(32)

	s.BeginTransmission(0x23)
	if s.EndTransmission() != buswire.ErrorNack {
		t.Error("Unrelated address acked")
	}

	if s.RequestFrom(0x23, 1) != buswire.ErrorNack {
		t.Error("Unrelated address acked a read")
	}
}

func TestSimReadPointer(t *testing.T) {
	s := NewSim(64)
	s.LoadBytes(100, []byte{10, 20, 30})

	/* Address-set transaction followed by a read, the device pointer must
	   auto-increment */
	if err := writeTx(s, 100, nil); err != nil {
		t.Error("Address set failed", err)
	}
	if err := s.RequestFrom(s.DeviceAddress, 3); err != nil {
		t.Error("Read request failed", err)
	}

	for i, want := range []byte{10, 20, 30} {
		v, err := s.Read()
		if err != nil || v != want {
			t.Error("Wrong byte", i, v, err)
		}
	}

	if _, err := s.Read(); err != buswire.ErrorReadUnderflow {
		t.Error("Read past the requested count")
	}
}

func TestSimClockAdvances(t *testing.T) {
	s := NewSim(32)

	before := s.Micros()
	pollTx(s)
	if s.Micros() == before {
		t.Error("Clock did not advance")
	}
}
