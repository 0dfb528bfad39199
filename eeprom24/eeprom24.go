// Package eeprom24 is a driver for 24-series (24LC256 class) two-wire serial
// EEPROMs. The device exposes a flat 16 bit address space but can only accept
// one page per write transaction and ignores the bus entirely while its
// internal write cycle runs, so every operation here is built on acknowledge
// polling and page aware chunking.
package eeprom24

import (
	"sync"
	"time"

	"github.com/BertoldVdb/go-eeprom24/buswire"
)

type Error string

func (e Error) Error() string { return string(e) }

const (
	ErrorDeviceNotResponding  = Error("Device not responding")
	ErrorPartialTransfer      = Error("Transfer aborted before completion")
	ErrorInvalidConfiguration = Error("Invalid configuration")
	ErrorInvalidAddress       = Error("Bus address outside EEPROM range")
	ErrorAddressRange         = Error("Memory range exceeds address space")
	ErrorSizeNotFixed         = Error("Target is not fixed-size plain data")
)

// Status reflects whether the device acknowledged during Init. It is recorded
// once and never refreshed, so it describes the state at startup only.
type Status int

const (
	StatusUnknown Status = iota
	StatusNotFound
	StatusFound
)

func (s Status) String() string {
	switch s {
	case StatusNotFound:
		return "not found"
	case StatusFound:
		return "found"
	}
	return "unknown"
}

// The 24-series address range, selected by the device's hardware strap pins.
const (
	AddressFirst   uint8 = 0x50
	AddressLast    uint8 = 0x57
	AddressDefault uint8 = AddressFirst
)

// Config describes the transport limits the driver must respect. These depend
// on the bus master, not on the EEPROM itself.
type Config struct {
	// PageSize is the write transaction capacity in bytes, including the two
	// address bytes. It must not exceed the device page size or writes will
	// wrap inside the page and corrupt data.
	PageSize int

	// ReadCapacity is the maximum number of bytes one read transaction may
	// request. Reads are not page bounded, so this is usually larger.
	ReadCapacity int

	// PollTimeout bounds acknowledge polling. The worst case write cycle of
	// the device is about 5 ms.
	PollTimeout time.Duration
}

var (
	// ConfigAVR matches the 32 byte Wire buffer of AVR class masters
	ConfigAVR = Config{PageSize: 32, ReadCapacity: 32, PollTimeout: 6 * time.Millisecond}
	// ConfigESP8266 matches the larger ESP8266 buffers
	ConfigESP8266 = Config{PageSize: 64, ReadCapacity: 128, PollTimeout: 6 * time.Millisecond}

	DefaultConfig = ConfigAVR
)

// Device is a handle to one EEPROM on the bus. All operations are serialized
// internally, but the underlying bus must not carry transactions from other
// goroutines while an operation runs.
type Device struct {
	mutex sync.Mutex

	bus     buswire.Master
	clock   buswire.Clock
	address uint8
	config  Config
	status  Status

	scratch []byte
}

// New creates a handle for the device at the given 7 bit bus address. Passing
// a nil clock selects a monotonic clock based on the system time.
func New(bus buswire.Master, clock buswire.Clock, address uint8, config Config) (*Device, error) {
	if address < AddressFirst || address > AddressLast {
		return nil, ErrorInvalidAddress
	}
	// The verify read before each write chunk uses the write chunk size, so
	// the read capacity must cover it.
	if config.PageSize < 4 || config.ReadCapacity < config.PageSize-2 || config.PollTimeout <= 0 {
		return nil, ErrorInvalidConfiguration
	}

	if clock == nil {
		clock = buswire.NewMonotonicClock()
	}

	return &Device{
		bus:     bus,
		clock:   clock,
		address: address,
		config:  config,
		scratch: make([]byte, config.PageSize),
	}, nil
}

// Init probes the device and records whether it acknowledged. Callers should
// check the returned status before relying on the device.
func (d *Device) Init() Status {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if d.waitReady() {
		d.status = StatusFound
	} else {
		d.status = StatusNotFound
	}

	return d.status
}

func (d *Device) Status() Status {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	return d.status
}

// waitReady polls the device with zero length transactions until it
// acknowledges or the timeout elapses. An acknowledge means the previous
// write cycle has finished and the device will accept the next command.
// Every bus operation must be preceded by a successful poll.
func (d *Device) waitReady() bool {
	start := d.clock.Micros()
	timeout := uint32(d.config.PollTimeout / time.Microsecond)

	for {
		d.bus.BeginTransmission(d.address)
		if d.bus.EndTransmission() == nil {
			return true
		}

		if d.clock.Micros()-start >= timeout {
			return false
		}
	}
}

// writeBlock writes up to PageSize-2 bytes in one transaction. The caller
// guarantees readiness and that the block does not cross a page boundary.
func (d *Device) writeBlock(address uint16, data []byte) error {
	d.bus.BeginTransmission(d.address)
	d.bus.Write(byte(address >> 8))
	d.bus.Write(byte(address))
	for _, b := range data {
		d.bus.Write(b)
	}

	return d.bus.EndTransmission()
}

// readBlock sets the device pointer with a write-only transaction and then
// reads len(data) bytes back. The caller guarantees readiness and that the
// length fits the transport read capacity.
func (d *Device) readBlock(address uint16, data []byte) error {
	d.bus.BeginTransmission(d.address)
	d.bus.Write(byte(address >> 8))
	d.bus.Write(byte(address))
	if err := d.bus.EndTransmission(); err != nil {
		return err
	}

	if err := d.bus.RequestFrom(d.address, len(data)); err != nil {
		return err
	}

	for i := range data {
		v, err := d.bus.Read()
		if err != nil {
			return err
		}
		data[i] = v
	}

	return nil
}

func (d *Device) readByte(address uint16) (byte, error) {
	if !d.waitReady() {
		return 0, ErrorDeviceNotResponding
	}

	var buf [1]byte
	if err := d.readBlock(address, buf[:]); err != nil {
		return 0, err
	}

	return buf[0], nil
}

func (d *Device) writeByte(address uint16, value byte) error {
	if !d.waitReady() {
		return ErrorDeviceNotResponding
	}

	return d.writeBlock(address, []byte{value})
}

// ReadByte reads a single byte from the given memory address.
func (d *Device) ReadByte(address uint16) (byte, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	return d.readByte(address)
}

// WriteByte writes a single byte to the given memory address.
func (d *Device) WriteByte(address uint16, value byte) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	return d.writeByte(address, value)
}

// UpdateByte writes the byte only if it differs from what is stored, saving
// a write cycle when the value is unchanged.
func (d *Device) UpdateByte(address uint16, value byte) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	current, err := d.readByte(address)
	if err != nil {
		return err
	}

	if current == value {
		return nil
	}

	return d.writeByte(address, value)
}

func checkRange(address uint16, size int) error {
	if size > 0x10000-int(address) {
		return ErrorAddressRange
	}
	return nil
}
