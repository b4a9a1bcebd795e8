// Package config loads the YAML-backed defaults that seed a
// session.SessionController before CLI flags (an external ParameterSource,
// out of core scope) override them.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Defaults is the top-level document loaded from an ewfkit config file.
type Defaults struct {
	Case     CaseDefaults     `yaml:"case"`
	Geometry GeometryDefaults `yaml:"geometry"`
	Archive  ArchiveDefaults  `yaml:"archive"`
	Status   StatusServer     `yaml:"status_server"`
}

// CaseDefaults seeds the examiner and notes case-metadata strings; case
// number, description and evidence number have no config default.
type CaseDefaults struct {
	Examiner string `yaml:"examiner"`
	Notes    string `yaml:"notes"`
}

// GeometryDefaults seeds the immutable-per-session geometry.
type GeometryDefaults struct {
	BytesPerSector          uint32 `yaml:"bytes_per_sector"`
	SectorsPerChunk         uint32 `yaml:"sectors_per_chunk"`
	ErrorGranularitySectors uint32 `yaml:"error_granularity_sectors"`
}

// ArchiveDefaults seeds the archive profile. SegmentSizeMax is kept as the
// raw byte-size string (e.g. "1.4 GiB") — parsing it is the caller's job via
// internal/sizestring, keeping this package a leaf.
type ArchiveDefaults struct {
	Format           string `yaml:"format"`
	SegmentSizeMax   string `yaml:"segment_size_max"`
	CompressionLevel string `yaml:"compression_level"`
}

// StatusServer seeds internal/statusserver, an ambient addition to the CLI
// surface, and is disabled unless explicitly turned on.
type StatusServer struct {
	Enabled     bool   `yaml:"enabled"`
	Addr        string `yaml:"addr"`
	MetricsAddr string `yaml:"metrics_addr"`
}

// ApplyDefaults fills any zero-valued field with the tool's built-in
// defaults.
func (d *Defaults) ApplyDefaults() {
	if d.Geometry.BytesPerSector == 0 {
		d.Geometry.BytesPerSector = 512
	}
	if d.Geometry.SectorsPerChunk == 0 {
		d.Geometry.SectorsPerChunk = 64
	}
	if d.Geometry.ErrorGranularitySectors == 0 {
		d.Geometry.ErrorGranularitySectors = 64
	}
	if d.Archive.Format == "" {
		d.Archive.Format = "encase6"
	}
	if d.Archive.SegmentSizeMax == "" {
		d.Archive.SegmentSizeMax = "1.4 GiB"
	}
	if d.Archive.CompressionLevel == "" {
		d.Archive.CompressionLevel = "none"
	}
	if d.Status.Addr == "" {
		d.Status.Addr = ":8090"
	}
	if d.Status.MetricsAddr == "" {
		d.Status.MetricsAddr = ":9090"
	}
}

// Load reads and parses a YAML defaults file, applying built-in defaults for
// anything the file omits. A missing path is not an error: it returns the
// built-in defaults, since the config file itself is optional.
func Load(path string) (*Defaults, error) {
	d := &Defaults{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				d.ApplyDefaults()
				return d, nil
			}
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, d); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	d.ApplyDefaults()
	return d, nil
}
