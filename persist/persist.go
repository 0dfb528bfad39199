package persist

import (
	"bytes"
	"encoding/binary"
	"sync"
	"time"

	"github.com/sigurn/crc8"

	"github.com/BertoldVdb/go-eeprom24/eeprom24"
)

var crcTable *crc8.Table

func init() {
	crcParam := crc8.Params{
		Poly: 0x9B,
		Init: 0x42,
		Name: "CRC-8/Persist",
	}
	crcTable = crc8.MakeTable(crcParam)
}

type Error string

func (e Error) Error() string { return string(e) }

const (
	// ErrorNoDevice is returned when trying to load without specifying a device
	ErrorNoDevice = Error("Device not specified")
	// ErrorChecksumFailed is returned when the stored record is torn or damaged
	ErrorChecksumFailed = Error("Stored record failed checksum")
)

const (
	// RetrySaveInterval is the delay between save attempts if the previous one failed.
	RetrySaveInterval = 2 * time.Second
)

// Persist is a simple helper that saves and loads a target structure to a
// region of EEPROM. It also handles timed saves. The stored record is the
// fixed-size binary image of Target followed by one CRC-8 byte, so a save
// that was interrupted halfway is detected on the next load.
//
// Because the underlying Put suppresses writes of unchanged pages, calling
// Save often with a mostly stable Target costs little wear.
type Persist struct {
	sync.Mutex
	modified bool

	// Device is the EEPROM holding the record
	Device *eeprom24.Device
	// Address is the memory address the record is stored at
	Address uint16
	// Target needs to be set to a pointer to the structure that is to be persisted.
	// It must be fixed-size plain data as understood by encoding/binary.
	Target interface{}
	// SaveInterval is the minimum interval between conditional saves.
	SaveInterval time.Duration

	buffer bytes.Buffer

	nextSave time.Time
}

// Size returns the number of EEPROM bytes the record occupies, or -1 if the
// Target is not fixed-size.
func (g *Persist) Size() int {
	size := binary.Size(g.Target)
	if size < 0 {
		return -1
	}
	return size + 1
}

// Load will try to restore the structure Target points to.
func (g *Persist) Load() error {
	g.Lock()
	defer g.Unlock()

	if g.Device == nil {
		return ErrorNoDevice
	}

	size := binary.Size(g.Target)
	if size < 0 {
		return eeprom24.ErrorSizeNotFixed
	}

	record := make([]byte, size+1)
	if _, err := g.Device.GetBytes(g.Address, record); err != nil {
		return err
	}

	if crc8.Checksum(record[:size], crcTable) != record[size] {
		return ErrorChecksumFailed
	}

	return binary.Read(bytes.NewReader(record[:size]), binary.LittleEndian, g.Target)
}

func (g *Persist) save() error {
	if g.Device == nil {
		return nil
	}

	g.buffer.Reset()
	err := binary.Write(&g.buffer, binary.LittleEndian, g.Target)
	if err == nil {
		g.buffer.WriteByte(crc8.Checksum(g.buffer.Bytes(), crcTable))
		_, err = g.Device.PutBytes(g.Address, g.buffer.Bytes())
	}

	if err == nil {
		g.modified = false
		g.nextSave = time.Now().Add(g.SaveInterval)
	} else {
		g.nextSave = time.Now().Add(RetrySaveInterval)
	}

	return err
}

// Save will write the Target to the EEPROM, regardless if it was changed or
// how long ago the previous save was.
func (g *Persist) Save() error {
	g.Lock()
	defer g.Unlock()

	return g.save()
}

// SaveConditional performs a save operation if the Target is modified and the
// minimum 'SaveInterval' has passed. If modified is true, Touch is called
// internally.
func (g *Persist) SaveConditional(modified bool) error {
	if g.Device == nil {
		return nil
	}

	if modified {
		g.Touch()
	}

	var err error

	g.Lock()
	if g.modified && time.Now().After(g.nextSave) {
		err = g.save()
	}
	g.Unlock()

	return err
}

// Touch signals that the Target has been changed and should be called after modifications
func (g *Persist) Touch() {
	g.Lock()
	defer g.Unlock()

	g.modified = true
}
