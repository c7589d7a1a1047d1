package config

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"slices"

	"orderbookcollection/internal/domain/entity/instruments"

	"gopkg.in/yaml.v3"
)

// InstrumentsFile is the YAML bounds file:
//
//	incremental_buffer_size: 2048
//	instruments:
//	  1: {id: 1, min_price: 100, max_price: 110, tick_size: 1}
type InstrumentsFile struct {
	IncrementalBufferSize int                           `yaml:"incremental_buffer_size"`
	Instruments           map[uint64]instruments.Config `yaml:"instruments"`
}

// LoadInstruments reads and validates the bounds file at path.
func LoadInstruments(path string) (*InstrumentsFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read instruments file: %w", err)
	}
	file, err := ParseInstruments(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("instruments file %s: %w", path, err)
	}
	return file, nil
}

// ParseInstruments decodes a bounds file. An entry without an id takes its
// key; an id that disagrees with its key is an error.
func ParseInstruments(r io.Reader) (*InstrumentsFile, error) {
	var file InstrumentsFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil && err != io.EOF {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	if file.IncrementalBufferSize < 0 {
		return nil, fmt.Errorf("incremental_buffer_size %d must not be negative", file.IncrementalBufferSize)
	}
	for key, cfg := range file.Instruments {
		if cfg.ID == 0 {
			cfg.ID = key
		}
		if cfg.ID != key {
			return nil, fmt.Errorf("instrument key %d has id %d", key, cfg.ID)
		}
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		file.Instruments[key] = cfg
	}
	return &file, nil
}

// Bounds returns the configured bounds keyed by instrument id.
func (f *InstrumentsFile) Bounds() map[uint64]instruments.Config {
	if f == nil || f.Instruments == nil {
		return map[uint64]instruments.Config{}
	}
	return f.Instruments
}

// List returns the configs ordered by id.
func (f *InstrumentsFile) List() []instruments.Config {
	out := make([]instruments.Config, 0, len(f.Bounds()))
	for _, cfg := range f.Bounds() {
		out = append(out, cfg)
	}
	slices.SortFunc(out, func(a, b instruments.Config) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
	return out
}
