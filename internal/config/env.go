package config

import (
	"os"
	"strconv"
)

// LoadFromEnv overlays environment variables onto d, for headless/unattended
// acquisitions where a config file may not be mounted.
func LoadFromEnv(d *Defaults) {
	if examiner := os.Getenv("EWFKIT_EXAMINER"); examiner != "" {
		d.Case.Examiner = examiner
	}
	if notes := os.Getenv("EWFKIT_NOTES"); notes != "" {
		d.Case.Notes = notes
	}
	if format := os.Getenv("EWFKIT_FORMAT"); format != "" {
		d.Archive.Format = format
	}
	if segSize := os.Getenv("EWFKIT_SEGMENT_SIZE"); segSize != "" {
		d.Archive.SegmentSizeMax = segSize
	}
	if addr := os.Getenv("EWFKIT_STATUS_ADDR"); addr != "" {
		d.Status.Addr = addr
		d.Status.Enabled = true
	}
	if sectors := os.Getenv("EWFKIT_SECTORS_PER_CHUNK"); sectors != "" {
		if n, err := strconv.ParseUint(sectors, 10, 32); err == nil {
			d.Geometry.SectorsPerChunk = uint32(n)
		}
	}
}

// GetEnvOrDefault returns the environment variable's value or a fallback.
func GetEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
