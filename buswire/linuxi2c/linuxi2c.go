package linuxi2c

import (
	"fmt"
	"os"
	"runtime"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/BertoldVdb/go-eeprom24/buswire"
)

// Bus implements buswire.Master on top of a Linux /dev/i2c-N device. Bytes
// written inside an open transmission are buffered and flushed as a single
// I2C_RDWR transfer when the transmission ends, so the wire sees exactly one
// start/stop cycle per transaction.
type Bus struct {
	mutex sync.Mutex
	file  *os.File

	txAddr uint8
	txBuf  []byte
	txOpen bool

	rxBuf []byte
}

func OpenBus(busID int) (*Bus, error) {
	b := &Bus{}

	var err error
	b.file, err = os.OpenFile(fmt.Sprintf("/dev/i2c-%d", busID), unix.O_RDWR|unix.O_NOCTTY, 0600)
	if err != nil {
		return nil, err
	}

	return b, nil
}

func (b *Bus) Close() error {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	if b.file == nil {
		return buswire.ErrorBusClosed
	}

	err := b.file.Close()
	b.file = nil
	return err
}

func (b *Bus) transfer(address uint8, writeBuf []byte, doWrite bool, readBuf []byte) error {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	if b.file == nil {
		return buswire.ErrorBusClosed
	}

	const i2cFlagsRead uint16 = 1
	const i2cRdWr uintptr = 0x00000707

	type msg struct {
		Address uint16
		Flags   uint16
		Len     uint16
		Buf     uintptr
	}

	var transfer []msg
	if doWrite {
		writeMsg := msg{
			Address: uint16(address),
			Len:     uint16(len(writeBuf)),
		}
		// A zero length write is valid, it is used for acknowledge polling
		if len(writeBuf) > 0 {
			writeMsg.Buf = uintptr(unsafe.Pointer(&writeBuf[0]))
		}

		transfer = append(transfer, writeMsg)
	}
	if len(readBuf) > 0 {
		transfer = append(transfer, msg{
			Address: uint16(address),
			Flags:   i2cFlagsRead,
			Len:     uint16(len(readBuf)),
			Buf:     uintptr(unsafe.Pointer(&readBuf[0])),
		})
	}

	if len(transfer) == 0 {
		// A succesful, albeit useless, transfer
		return nil
	}

	type rdWrRaw struct {
		Messages    uintptr
		NumMessages uint32
	}

	param := rdWrRaw{
		Messages:    uintptr(unsafe.Pointer(&transfer[0])),
		NumMessages: uint32(len(transfer)),
	}

	_, _, errNo := unix.Syscall(unix.SYS_IOCTL, b.file.Fd(), i2cRdWr, uintptr(unsafe.Pointer(&param)))

	runtime.KeepAlive(transfer)
	runtime.KeepAlive(writeBuf)
	runtime.KeepAlive(readBuf)

	switch errNo {
	case 0:
		return nil
	case unix.ENXIO, unix.EREMOTEIO, unix.EIO:
		// The kernel reports a missing acknowledge this way. The EEPROM
		// driver polls on it, so it must not look like a hard failure.
		return buswire.ErrorNack
	default:
		return fmt.Errorf("I2C transfer failed: %s", errNo.Error())
	}
}

func (b *Bus) BeginTransmission(addr uint8) {
	b.txAddr = addr
	b.txBuf = b.txBuf[:0]
	b.txOpen = true
}

func (b *Bus) Write(p byte) {
	if b.txOpen {
		b.txBuf = append(b.txBuf, p)
	}
}

func (b *Bus) EndTransmission() error {
	if !b.txOpen {
		return buswire.ErrorNack
	}
	b.txOpen = false

	return b.transfer(b.txAddr, b.txBuf, true, nil)
}

func (b *Bus) RequestFrom(addr uint8, count int) error {
	if count > cap(b.rxBuf) {
		b.rxBuf = make([]byte, count)
	}
	b.rxBuf = b.rxBuf[:count]

	err := b.transfer(addr, nil, false, b.rxBuf)
	if err != nil {
		b.rxBuf = b.rxBuf[:0]
		return err
	}

	return nil
}

func (b *Bus) Read() (byte, error) {
	if len(b.rxBuf) == 0 {
		return 0, buswire.ErrorReadUnderflow
	}

	value := b.rxBuf[0]
	b.rxBuf = b.rxBuf[1:]
	return value, nil
}
