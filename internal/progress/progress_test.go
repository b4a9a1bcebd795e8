package progress

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestReporter_KnownTotalTicksOnPercentChange(t *testing.T) {
	var ticks []Tick
	r := New(true, 1000, WithSink(func(tk Tick) { ticks = append(ticks, tk) }), WithTickCeiling(1000))

	// Observations are a second apart so the 1000/s ceiling never gates them.
	start := time.Now()
	r.Observe(start, 10)                     // 1% -> tick
	r.Observe(start.Add(1*time.Second), 15)  // still 1% -> no tick
	r.Observe(start.Add(2*time.Second), 200) // 20% -> tick
	r.Observe(start.Add(3*time.Second), 205) // still 20% -> no tick

	require.Len(t, ticks, 2)
	require.Equal(t, 1, ticks[0].Percent)
	require.Equal(t, 20, ticks[1].Percent)
}

func TestReporter_UnknownTotalTicksOnByteStepOrTime(t *testing.T) {
	var ticks []Tick
	r := New(false, 0, WithSink(func(tk Tick) { ticks = append(ticks, tk) }), WithTickCeiling(1000))

	start := time.Now()
	r.Observe(start, 1024)                        // below step, no tick
	r.Observe(start, 11*1024*1024)                 // crosses 10 MiB step -> tick
	r.Observe(start.Add(31*time.Second), 11*1024*1024+1) // time elapsed -> tick

	require.Len(t, ticks, 2)
	require.False(t, ticks[0].TotalKnown)
}

func TestReporter_FinishSetsTerminalStatusAndFullPercent(t *testing.T) {
	var ticks []Tick
	r := New(true, 1000, WithSink(func(tk Tick) { ticks = append(ticks, tk) }))
	start := time.Now()
	r.Observe(start, 500)
	r.Finish(start.Add(time.Second), StatusCompleted)

	last := ticks[len(ticks)-1]
	require.Equal(t, StatusCompleted, last.Status)
	require.Equal(t, 100, last.Percent)
}

func TestReporter_PercentMonotonicNonDecreasing(t *testing.T) {
	var ticks []Tick
	r := New(true, 1000, WithSink(func(tk Tick) { ticks = append(ticks, tk) }), WithTickCeiling(1000))
	start := time.Now()
	for _, b := range []uint64{10, 50, 50, 900, 1000} {
		r.Observe(start, b)
	}
	for i := 1; i < len(ticks); i++ {
		require.GreaterOrEqual(t, ticks[i].Percent, ticks[i-1].Percent)
	}
}
