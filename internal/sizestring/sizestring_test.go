package sizestring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	t.Run("binary with fraction", func(t *testing.T) {
		got, err := Parse("1.4 GiB", '.')
		require.NoError(t, err)
		assert.Equal(t, uint64(1503238553), got)
	})

	t.Run("decimal megabytes", func(t *testing.T) {
		got, err := Parse("1000 MB", '.')
		require.NoError(t, err)
		assert.Equal(t, uint64(1000000000), got)
	})

	t.Run("no unit letter is an error", func(t *testing.T) {
		_, err := Parse("abc", '.')
		assert.Error(t, err)
	})

	t.Run("bare digits with no unit is an error", func(t *testing.T) {
		_, err := Parse("512", '.')
		assert.Error(t, err)
	})

	t.Run("trailing garbage after the mandatory B is ignored", func(t *testing.T) {
		got, err := Parse("2 GiB extra", '.')
		require.NoError(t, err)
		assert.Equal(t, uint64(2147483648), got)
	})

	t.Run("alternate decimal point", func(t *testing.T) {
		got, err := Parse("1,4 GiB", ',')
		require.NoError(t, err)
		assert.Equal(t, uint64(1503238553), got)
	})
}

func TestFormat(t *testing.T) {
	t.Run("binary gibibyte rounds the tenths digit", func(t *testing.T) {
		got, err := Format(1503238553, BaseBinary)
		require.NoError(t, err)
		assert.Equal(t, "1.4 GiB", got)
	})

	t.Run("exact boundary has no fraction", func(t *testing.T) {
		got, err := Format(1024, BaseBinary)
		require.NoError(t, err)
		assert.Equal(t, "1 KiB", got)
	})

	t.Run("below one unit", func(t *testing.T) {
		got, err := Format(512, BaseBinary)
		require.NoError(t, err)
		assert.Equal(t, "512 B", got)
	})

	t.Run("decimal gigabyte", func(t *testing.T) {
		got, err := Format(1000000000, BaseDecimal)
		require.NoError(t, err)
		assert.Equal(t, "1 GB", got)
	})

	t.Run("invalid base", func(t *testing.T) {
		_, err := Format(1024, Base(7))
		assert.Error(t, err)
	})
}

func TestRoundTrip(t *testing.T) {
	sizes := []uint64{0, 512, 1024, 1536, 1503238553, 1000000000, 999}

	for _, size := range sizes {
		for _, base := range []Base{BaseDecimal, BaseBinary} {
			formatted, err := Format(size, base)
			require.NoError(t, err)

			parsed, err := Parse(formatted, '.')
			require.NoError(t, err)

			// The textual form keeps only one fractional digit, so the
			// round trip can lose precision proportional to the chosen
			// unit's scale: allow up to ~5% relative error rather than
			// requiring an exact match.
			diff := parsed - size
			if size > parsed {
				diff = size - parsed
			}
			if size == 0 {
				assert.Equal(t, uint64(0), parsed)
				continue
			}
			tolerance := size/20 + 1
			assert.LessOrEqual(t, diff, tolerance, "format=%s size=%d parsed=%d", formatted, size, parsed)
		}
	}
}
