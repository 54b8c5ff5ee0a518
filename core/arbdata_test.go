//go:build unit
// +build unit

package core

import (
	"bytes"
	"testing"

	"github.com/oqtopus-team/cosim-plugin/handle"
	"github.com/oqtopus-team/cosim-plugin/native"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArbDataSetRejectsUnencodable(t *testing.T) {
	tests := []struct {
		name  string
		value interface{}
		err   error
	}{
		{name: "string", value: "x"},
		{name: "nested", value: map[string]interface{}{"a": []interface{}{1, "b", nil}}},
		{name: "bytes", value: []byte{0, 1, 2}},
		{name: "channel", value: make(chan int), err: ErrType},
		{name: "function", value: func() {}, err: ErrType},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := NewArbData()
			err := a.Set("k", tt.value)
			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)
				_, ok := a.Get("k")
				assert.False(t, ok)
				return
			}
			assert.Nil(t, err)
		})
	}
}

func TestArbDataFromJSON(t *testing.T) {
	a, err := ArbDataFromJSON(`{"b": ["1", true], "a": {"x": "y"}}`, []byte("arg"))
	require.Nil(t, err)
	assert.Equal(t, []string{"a", "b"}, a.Keys())
	assert.Equal(t, 1, a.Len())
	assert.Equal(t, `{"a":{"x":"y"},"b":["1",true]}`, a.JSON())

	_, err = ArbDataFromJSON(`[1, 2]`)
	assert.ErrorIs(t, err, ErrType)

	empty, err := ArbDataFromJSON("")
	assert.Nil(t, err)
	assert.True(t, empty.IsEmpty())
}

func TestArbDataEqualIgnoresRepresentation(t *testing.T) {
	a := NewArbData([]byte("x"))
	assert.Nil(t, a.Set("n", 1))
	b := NewArbData([]byte("x"))
	assert.Nil(t, b.Set("n", uint64(1)))
	assert.True(t, a.Equal(b))

	assert.Nil(t, b.Set("n", 2))
	assert.False(t, a.Equal(b))
	assert.False(t, a.Equal(NewArbData([]byte("y"))))
}

func TestArbDataCloneIsDeep(t *testing.T) {
	a := NewArbData([]byte("x"))
	assert.Nil(t, a.Set("m", map[string]interface{}{"k": "v"}))
	c := a.Clone()
	obj := c.Object()
	obj["m"].(map[string]interface{})["k"] = "changed"
	assert.Nil(t, c.SetArg(0, []byte("y")))
	assert.True(t, a.Equal(func() *ArbData {
		e := NewArbData([]byte("x"))
		e.Set("m", map[string]interface{}{"k": "v"})
		return e
	}()))
}

func TestArbDataArgs(t *testing.T) {
	a := NewArbData([]byte("a"), []byte("b"))
	arg, err := a.Arg(1)
	assert.Nil(t, err)
	assert.Equal(t, []byte("b"), arg)
	_, err = a.Arg(2)
	assert.ErrorIs(t, err, ErrValue)
	last, err := a.PopArg()
	assert.Nil(t, err)
	assert.Equal(t, []byte("b"), last)
	a.ClearArgs()
	_, err = a.PopArg()
	assert.ErrorIs(t, err, ErrValue)
}

func TestArbDataRoundTrip(t *testing.T) {
	large := bytes.Repeat([]byte{0xab}, 1500)
	longString := string(bytes.Repeat([]byte("z"), 700))
	tests := []struct {
		name string
		data func() *ArbData
	}{
		{"empty", func() *ArbData { return NewArbData() }},
		{"args only", func() *ArbData { return NewArbData([]byte("a"), []byte{}, []byte{0}) }},
		{"large args", func() *ArbData { return NewArbData(large, large[:600], large[:10]) }},
		{"large object", func() *ArbData {
			a := NewArbData()
			a.Set("s", longString)
			a.Set("b", large)
			a.Set("f", 0.5)
			a.Set("l", []interface{}{true, nil, "x", -3})
			return a
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := native.NewMemory(0)
			v := tt.data()
			h, err := v.Encode(m, nil)
			require.Nil(t, err)
			defer h.Release()
			got, err := DecodeArbData(m, h)
			require.Nil(t, err)
			assert.True(t, v.Equal(got), "got %s", got)
		})
	}
}

func TestArbDataEncodeClearsTarget(t *testing.T) {
	m := native.NewMemory(0)
	first := NewArbData([]byte("1"), []byte("2"))
	first.Set("old", true)
	h, err := first.Encode(m, nil)
	require.Nil(t, err)
	defer h.Release()

	second := NewArbData([]byte("3"))
	same, err := second.Encode(m, h)
	require.Nil(t, err)
	assert.Same(t, h, same)

	got, err := DecodeArbData(m, h)
	require.Nil(t, err)
	assert.True(t, second.Equal(got))
}

func TestArbCmd(t *testing.T) {
	tests := []struct {
		name  string
		iface string
		oper  string
		err   error
	}{
		{name: "valid", iface: "a_b", oper: "C1"},
		{name: "bad iface", iface: "a.b", oper: "c", err: ErrValue},
		{name: "empty oper", iface: "a", oper: "", err: ErrValue},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := NewArbCmd(tt.iface, tt.oper, nil)
			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)
				return
			}
			require.Nil(t, err)
			assert.Equal(t, tt.iface, c.Iface())
			assert.Equal(t, tt.oper, c.Oper())
		})
	}
}

func TestArbCmdRoundTrip(t *testing.T) {
	m := native.NewMemory(0)
	data := NewArbData(bytes.Repeat([]byte("q"), 1100))
	data.Set("x", "y")
	c, err := NewArbCmd("iface", "oper", data)
	require.Nil(t, err)

	h, err := c.Encode(m)
	require.Nil(t, err)
	defer h.Release()
	got, err := DecodeArbCmd(m, h)
	require.Nil(t, err)
	assert.True(t, c.Equal(got))

	other, _ := NewArbCmd("iface", "other", data)
	assert.False(t, c.Equal(other))
}

func TestMeasurement(t *testing.T) {
	_, err := NewMeasurement(0, One, nil)
	assert.ErrorIs(t, err, ErrValue)
	_, err = NewMeasurement(1, MeasValue(7), nil)
	assert.ErrorIs(t, err, ErrValue)

	m := native.NewMemory(0)
	for _, v := range []MeasValue{Zero, One, Undefined} {
		data := NewArbData([]byte("d"))
		meas, err := NewMeasurement(3, v, data)
		require.Nil(t, err)
		h, err := meas.Encode(m)
		require.Nil(t, err)
		got, err := DecodeMeasurement(m, h)
		h.Release()
		require.Nil(t, err)
		assert.True(t, meas.Equal(got))
	}
	assert.Equal(t, 0, m.Live())
}

func TestDecodeTakenHandle(t *testing.T) {
	m := native.NewMemory(0)
	h, err := NewArbData().Encode(m, nil)
	require.Nil(t, err)
	id, _ := h.Take()
	_, err = DecodeArbData(m, h)
	assert.ErrorIs(t, err, handle.ErrTaken)
	assert.Nil(t, m.HandleDelete(id))
}
