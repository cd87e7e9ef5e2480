package registers

import (
	"fmt"
	"time"
)

// Reader reads a run of consecutive registers in one bus transaction.
type Reader interface {
	ReadBlock(addr uint8, n int) ([]byte, error)
}

// Snapshot holds the value of every register of a map at one instant.
type Snapshot struct {
	Chip      string    `json:"chip"`
	Timestamp time.Time `json:"timestamp"`
	Values    []byte    `json:"values"`
	Named     []Value   `json:"named,omitempty"`
}

// Value is one named register value inside a Snapshot
type Value struct {
	Name  string `json:"name"`
	Addr  uint8  `json:"addr"`
	Bytes []byte `json:"bytes"`
}

// ReadAll reads every register of the map (0x00 up to, not including, the
// FIFO) with a single burst. The FIFO itself is excluded so the read does
// not consume received data.
func ReadAll(dev Reader, m *Map) (*Snapshot, error) {
	values, err := dev.ReadBlock(0x00, m.Size)
	if err != nil {
		return nil, fmt.Errorf("failed to read register block: %w", err)
	}

	snap := &Snapshot{
		Chip:      m.Name,
		Timestamp: time.Now(),
		Values:    values,
	}
	for _, f := range m.Fields() {
		if f.Addr == m.FIFO.Addr {
			continue
		}
		end := int(f.Addr) + int(f.Width)
		if end > len(values) {
			continue
		}
		b := make([]byte, f.Width)
		copy(b, values[f.Addr:end])
		snap.Named = append(snap.Named, Value{Name: f.Name, Addr: f.Addr, Bytes: b})
	}
	return snap, nil
}

// Get returns the bytes of a field from the snapshot
func (s *Snapshot) Get(f Field) ([]byte, error) {
	end := int(f.Addr) + int(f.Width)
	if end > len(s.Values) {
		return nil, fmt.Errorf("field %s outside snapshot of %d registers", f, len(s.Values))
	}
	return s.Values[f.Addr:end], nil
}

// Byte returns the first byte of a field, or 0 when the field is missing
func (s *Snapshot) Byte(f Field) uint8 {
	b, err := s.Get(f)
	if err != nil || len(b) == 0 {
		return 0
	}
	return b[0]
}
