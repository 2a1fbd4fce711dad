package cpu

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLabelTable(t *testing.T) {
	assert := assert.New(t)

	lt := &LabelTable{}

	lt.Define("x", 0x10, 0x10)
	lt.Define("x", 0x20, 0x20)
	assert.NoError(lt.Undefine("x", 0x30))
	lt.Define("x", 0x40, 0x40)

	table := []struct {
		position uint64
		value    uint64
	}{
		{0x00, 0x10},
		{0x1f, 0x10},
		{0x20, 0x20},
		{0x2f, 0x20},
		{0x30, 0x40},
		{0x3f, 0x40},
		{0x40, 0x40},
		{math.MaxUint64 - 1, 0x40},
	}

	for _, entry := range table {
		value, err := lt.Lookup("x", entry.position)
		assert.NoError(err, "0x%x", entry.position)
		assert.Equal(entry.value, value, "0x%x", entry.position)
	}

	_, err := lt.Lookup("y", 0)
	assert.ErrorIs(err, ErrLabelMissing("y"))

	assert.ErrorIs(lt.Undefine("y", 0), ErrLabelMissing("y"))
	assert.NoError(lt.Undefine("x", 0x50))
	assert.ErrorIs(lt.Undefine("x", 0x60), ErrLabelUndefined)

	// Past the last closed binding.
	_, err = lt.Lookup("x", 0x50)
	assert.ErrorIs(err, ErrLabelScope{Label: "x", Position: 0x50})

	bindings := lt.Bindings("x")
	assert.Equal([]LabelBinding{
		{Value: 0x10, End: 0x20},
		{Value: 0x20, End: 0x30},
		{Value: 0x40, End: 0x50},
	}, bindings)

	lookup := lt.LookupAt(0x48)
	value, err := lookup("x")
	assert.NoError(err)
	assert.Equal(uint64(0x40), value)

	var names []string
	lt.Define("a", 1, 0)
	for name := range lt.All() {
		names = append(names, name)
	}
	assert.Equal([]string{"a", "x"}, names)

	lt.Reset()
	_, err = lt.Lookup("x", 0)
	assert.Error(err)
}
