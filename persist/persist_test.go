package persist

import (
	"testing"
	"time"

	"github.com/BertoldVdb/go-eeprom24/buswire/testutil"
	"github.com/BertoldVdb/go-eeprom24/eeprom24"
)

type counters struct {
	Boots  uint32
	Uptime uint64
	Flags  uint8
}

func setupPersist(t *testing.T, value *counters) (*testutil.Sim, *Persist) {
	sim := testutil.NewSim(32)

	dev, err := eeprom24.New(sim, sim, eeprom24.AddressDefault, eeprom24.DefaultConfig)
	if err != nil {
		t.Fatal("Could not create device", err)
	}

	return sim, &Persist{
		Device:  dev,
		Address: 0x100,
		Target:  value,
	}
}

func TestSaveLoad(t *testing.T) {
	value := counters{Boots: 7, Uptime: 123456, Flags: 1}
	_, p := setupPersist(t, &value)

	/* Save multiple times */
	for i := 0; i < 10; i++ {
		if p.Save() != nil {
			t.Error("Save failed")
		}
	}

	/* Load multiple times */
	for i := 0; i < 10; i++ {
		value = counters{}
		if p.Load() != nil {
			t.Error("Load failed")
		}
	}

	if value.Boots != 7 || value.Uptime != 123456 || value.Flags != 1 {
		t.Error("Value was not saved and loaded")
	}
}

func TestRepeatedSaveSuppressed(t *testing.T) {
	value := counters{Boots: 1}
	sim, p := setupPersist(t, &value)

	if p.Save() != nil {
		t.Error("Save failed")
	}

	writes := sim.Writes
	if p.Save() != nil {
		t.Error("Save failed")
	}
	if sim.Writes != writes {
		t.Error("Unchanged record caused writes")
	}
}

func TestSaveLoadNoDevice(t *testing.T) {
	value := counters{}
	p := &Persist{Target: &value}

	if p.Save() != nil {
		t.Error("Save failed")
	}

	if p.SaveConditional(false) != nil {
		t.Error("Save conditional failed")
	}

	if p.Load() != ErrorNoDevice {
		t.Error("Load did not fail")
	}
}

func TestLoadChecksum(t *testing.T) {
	value := counters{Boots: 3}
	sim, p := setupPersist(t, &value)

	if p.Save() != nil {
		t.Error("Save failed")
	}

	/* A blank region must not load either */
	blank := &Persist{Device: p.Device, Address: 0x800, Target: &value}
	if blank.Load() != ErrorChecksumFailed {
		t.Error("Blank record loaded")
	}

	/* Damage one byte of the stored record */
	sim.Mem[0x100] ^= 0x01
	if p.Load() != ErrorChecksumFailed {
		t.Error("Damaged record loaded")
	}
}

func TestNotFixedSize(t *testing.T) {
	value := struct{ Name string }{}
	_, p := setupPersist(t, nil)
	p.Target = &value

	if p.Size() != -1 {
		t.Error("Size did not reject variable sized target")
	}
	if p.Load() != eeprom24.ErrorSizeNotFixed {
		t.Error("Variable sized target accepted")
	}
}

func testSaveLoadConditional(t *testing.T, modified bool, touch bool, sleep time.Duration, saveInterval time.Duration) uint32 {
	value := counters{Boots: 0}
	_, p := setupPersist(t, &value)
	p.SaveInterval = saveInterval

	if p.Save() != nil {
		t.Error("Save failed")
	}

	value.Boots = 1

	if touch {
		p.Touch()
	}
	time.Sleep(sleep)

	if p.SaveConditional(modified) != nil {
		t.Error("Save conditional failed")
	}

	if p.Load() != nil {
		t.Error("Load failed")
	}

	return value.Boots
}

func TestSaveLoadConditional(t *testing.T) {
	/* Non time based */
	if testSaveLoadConditional(t, false, false, 0, 0) != 0 {
		t.Error("T1")
	}
	if testSaveLoadConditional(t, true, false, 0, 0) != 1 {
		t.Error("T2")
	}
	if testSaveLoadConditional(t, false, true, 0, 0) != 1 {
		t.Error("T3")
	}
	if testSaveLoadConditional(t, true, true, 0, 0) != 1 {
		t.Error("T4")
	}
	/* Time based */
	sleep := 10 * time.Millisecond
	longTime := 5 * sleep
	shortTime := sleep / 5

	if testSaveLoadConditional(t, true, false, sleep, shortTime) != 1 {
		t.Error("T5")
	}
	if testSaveLoadConditional(t, true, false, sleep, longTime) != 0 {
		t.Error("T6")
	}
}
