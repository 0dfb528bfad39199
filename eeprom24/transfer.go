package eeprom24

import (
	"bytes"
	"encoding/binary"
)

// PutBytes writes data starting at the given memory address, split into
// chunks that respect both the transport buffer and the device page geometry.
// Chunks whose content already matches the stored bytes are skipped, which
// saves write cycles and wear when mostly unchanged data is written
// repeatedly.
//
// The returned count is the number of bytes confirmed on the device. On a
// poll timeout the operation stops with ErrorPartialTransfer, earlier chunks
// stay committed.
func (d *Device) PutBytes(address uint16, data []byte) (int, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	return d.putBytes(address, data)
}

func (d *Device) putBytes(address uint16, data []byte) (int, error) {
	if err := checkRange(address, len(data)); err != nil {
		return 0, err
	}

	pageSize := d.config.PageSize
	written := 0

	for written < len(data) {
		/* Three candidate chunk sizes:
		 * 1) The transaction capacity. Two of the pageSize buffer bytes
		 *    carry the memory address, leaving pageSize-2 for data.
		 * 2) The distance to the next page boundary. The device address
		 *    counter wraps there, a longer write corrupts the page start.
		 * 3) The remaining data.
		 * Only the smallest of the three can be written safely.
		 */
		chunk := pageSize - 2
		if toBoundary := pageSize - int(address)%pageSize; toBoundary < chunk {
			chunk = toBoundary
		}
		if remaining := len(data) - written; remaining < chunk {
			chunk = remaining
		}

		if !d.waitReady() {
			return written, ErrorPartialTransfer
		}

		scratch := d.scratch[:chunk]
		if err := d.readBlock(address, scratch); err != nil {
			return written, err
		}

		if !bytes.Equal(scratch, data[written:written+chunk]) {
			if err := d.writeBlock(address, data[written:written+chunk]); err != nil {
				return written, err
			}

			// Let the write cycle settle before the next chunk is read back.
			// The chunk only counts as committed once the device acknowledges
			// again.
			if !d.waitReady() {
				return written, ErrorPartialTransfer
			}
		}

		address += uint16(chunk)
		written += chunk
	}

	return written, nil
}

// GetBytes reads len(data) bytes starting at the given memory address,
// chunked by the transport read capacity. Reads do not start device write
// cycles, so a single poll up front is sufficient.
//
// The returned count is the number of bytes actually placed in data.
func (d *Device) GetBytes(address uint16, data []byte) (int, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	return d.getBytes(address, data)
}

func (d *Device) getBytes(address uint16, data []byte) (int, error) {
	if err := checkRange(address, len(data)); err != nil {
		return 0, err
	}
	if len(data) == 0 {
		return 0, nil
	}

	if !d.waitReady() {
		return 0, ErrorDeviceNotResponding
	}

	read := 0
	for read < len(data) {
		chunk := d.config.ReadCapacity
		if remaining := len(data) - read; remaining < chunk {
			chunk = remaining
		}

		if err := d.readBlock(address, data[read:read+chunk]); err != nil {
			return read, err
		}

		address += uint16(chunk)
		read += chunk
	}

	return read, nil
}

// Put stores target at the given memory address. Target must be fixed-size
// plain data as understood by encoding/binary: a value or pointer to a value
// of a fixed-size type, containing no slices, maps or strings. The byte
// layout is the little endian packing of the fields, so a structure can be
// read back with Get on any host.
func (d *Device) Put(address uint16, target interface{}) error {
	size := binary.Size(target)
	if size < 0 {
		return ErrorSizeNotFixed
	}

	var buf bytes.Buffer
	buf.Grow(size)
	if err := binary.Write(&buf, binary.LittleEndian, target); err != nil {
		return err
	}

	d.mutex.Lock()
	defer d.mutex.Unlock()

	_, err := d.putBytes(address, buf.Bytes())
	return err
}

// Get reads the stored bytes at the given memory address back into target,
// which must be a pointer to fixed-size plain data.
func (d *Device) Get(address uint16, target interface{}) error {
	size := binary.Size(target)
	if size < 0 {
		return ErrorSizeNotFixed
	}

	data := make([]byte, size)

	d.mutex.Lock()
	_, err := d.getBytes(address, data)
	d.mutex.Unlock()

	if err != nil {
		return err
	}

	return binary.Read(bytes.NewReader(data), binary.LittleEndian, target)
}
