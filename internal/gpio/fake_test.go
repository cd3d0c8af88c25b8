package gpio

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFakeReaderRead(t *testing.T) {
	samples := []Sample{
		{Sensor: true, Button: false},
		{Sensor: false, Button: true},
		{Sensor: true, Button: true},
	}

	f := NewFakeReader(samples)

	for i, want := range samples {
		sensor, button, err := f.Read()
		require.NoError(t, err, "sample %d", i)
		assert.Equal(t, want, Sample{Sensor: sensor, Button: button}, "sample %d", i)
	}

	// Past the end the last sample repeats.
	sensor, button, err := f.Read()
	require.NoError(t, err)
	assert.True(t, sensor)
	assert.True(t, button)
}

func TestFakeReaderNoSamples(t *testing.T) {
	_, _, err := NewFakeReader(nil).Read()
	assert.Error(t, err)
}

func TestFakeReaderError(t *testing.T) {
	f := NewFakeReader([]Sample{{Sensor: true}})
	f.ReadError = errors.New("simulated error")

	_, _, err := f.Read()
	assert.EqualError(t, err, "simulated error")
}

func TestFakeReaderCloseAndReset(t *testing.T) {
	f := NewFakeReader([]Sample{{Sensor: true}, {Sensor: false}})

	f.Read()
	require.NoError(t, f.Close())
	assert.True(t, f.Closed)

	f.Reset()
	assert.False(t, f.Closed, "Reset clears Closed")
	sensor, _, _ := f.Read()
	assert.True(t, sensor, "first sample again after reset")
}

func TestFakeOutputLevels(t *testing.T) {
	o := NewFakeOutput()
	assert.False(t, o.On(), "new output is off")

	o.SetDuty(0.2)
	assert.True(t, o.On())
	assert.Equal(t, 0.2, o.Duty())

	o.Set(true)
	assert.Equal(t, 1.0, o.Duty(), "Set(true) is full brightness")

	o.Set(false)
	assert.False(t, o.On())

	assert.Equal(t, []float64{0.2, 1, 0}, o.Writes())

	o.Close()
	assert.True(t, o.Closed())
	assert.False(t, o.On(), "Close turns the output off")
}
