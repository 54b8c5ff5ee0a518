package core

import (
	"bytes"
	"fmt"
	"reflect"
	"sort"

	"github.com/fxamacker/cbor/v2"
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	jsoniter "github.com/json-iterator/go"
	"github.com/mohae/deepcopy"
	"github.com/oqtopus-team/cosim-plugin/handle"
	"github.com/oqtopus-team/cosim-plugin/native"
)

var jsonIter = jsoniter.ConfigCompatibleWithStandardLibrary

// probeSize is the initial buffer size for reading variable-length data
// from the engine.
const probeSize = 256

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("core: failed to create CBOR enc mode: %v", err))
	}
	encMode = em
	dm, err := cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]interface{}(nil)),
	}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("core: failed to create CBOR dec mode: %v", err))
	}
	decMode = dm
}

// ArbData is a generic payload made of positional binary arguments and a
// JSON-like object. Every object value must survive a CBOR round trip.
type ArbData struct {
	args [][]byte
	json map[string]interface{}
}

func NewArbData(args ...[]byte) *ArbData {
	a := &ArbData{json: make(map[string]interface{})}
	for _, arg := range args {
		a.PushArg(arg)
	}
	return a
}

// NewArbDataWith builds an ArbData from an object and positional arguments.
func NewArbDataWith(json map[string]interface{}, args ...[]byte) (*ArbData, error) {
	a := NewArbData(args...)
	for k, v := range json {
		if err := a.Set(k, v); err != nil {
			return nil, err
		}
	}
	return a, nil
}

// ArbDataFromJSON parses a JSON object. An empty string is an empty object.
func ArbDataFromJSON(s string, args ...[]byte) (*ArbData, error) {
	a := NewArbData(args...)
	if s == "" {
		return a, nil
	}
	var obj map[string]interface{}
	if err := jsonIter.UnmarshalFromString(s, &obj); err != nil {
		return nil, typeErrorf("ArbData JSON must be an object: %s", err)
	}
	for k, v := range obj {
		if err := a.Set(k, v); err != nil {
			return nil, err
		}
	}
	return a, nil
}

func checkValue(key string, value interface{}) error {
	b, err := encMode.Marshal(value)
	if err != nil {
		return typeErrorf("value of %q cannot be encoded: %s", key, err)
	}
	var v interface{}
	if err := decMode.Unmarshal(b, &v); err != nil {
		return typeErrorf("value of %q cannot be decoded again: %s", key, err)
	}
	return nil
}

// Set stores value under key. Values that cannot be encoded are rejected
// with ErrType and leave the object unchanged.
func (a *ArbData) Set(key string, value interface{}) error {
	if err := checkValue(key, value); err != nil {
		return err
	}
	if a.json == nil {
		a.json = make(map[string]interface{})
	}
	a.json[key] = deepcopy.Copy(value)
	return nil
}

func (a *ArbData) Get(key string) (interface{}, bool) {
	v, ok := a.json[key]
	return v, ok
}

func (a *ArbData) Delete(key string) {
	delete(a.json, key)
}

// Keys returns the object keys in ascending order.
func (a *ArbData) Keys() []string {
	keys := make([]string, 0, len(a.json))
	for k := range a.json {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Object returns a deep copy of the JSON-like object.
func (a *ArbData) Object() map[string]interface{} {
	if a.json == nil {
		return map[string]interface{}{}
	}
	return deepcopy.Copy(a.json).(map[string]interface{})
}

// ClearObject removes every key of the object.
func (a *ArbData) ClearObject() {
	a.json = make(map[string]interface{})
}

func (a *ArbData) Len() int {
	return len(a.args)
}

func (a *ArbData) Arg(i int) ([]byte, error) {
	if i < 0 || i >= len(a.args) {
		return nil, valueErrorf("argument index %d out of range for %d arguments", i, len(a.args))
	}
	return append([]byte{}, a.args[i]...), nil
}

// Args returns a copy of the positional arguments.
func (a *ArbData) Args() [][]byte {
	args := make([][]byte, len(a.args))
	for i, arg := range a.args {
		args[i] = append([]byte{}, arg...)
	}
	return args
}

func (a *ArbData) PushArg(arg []byte) {
	a.args = append(a.args, append([]byte{}, arg...))
}

func (a *ArbData) SetArg(i int, arg []byte) error {
	if i < 0 || i >= len(a.args) {
		return valueErrorf("argument index %d out of range for %d arguments", i, len(a.args))
	}
	a.args[i] = append([]byte{}, arg...)
	return nil
}

func (a *ArbData) PopArg() ([]byte, error) {
	if len(a.args) == 0 {
		return nil, valueErrorf("no arguments to pop")
	}
	arg := a.args[len(a.args)-1]
	a.args = a.args[:len(a.args)-1]
	return arg, nil
}

func (a *ArbData) ClearArgs() {
	a.args = nil
}

func (a *ArbData) IsEmpty() bool {
	return len(a.args) == 0 && len(a.json) == 0
}

func (a *ArbData) Clone() *ArbData {
	return &ArbData{args: a.Args(), json: a.Object()}
}

func (a *ArbData) cbor() ([]byte, error) {
	obj := a.json
	if obj == nil {
		obj = map[string]interface{}{}
	}
	b, err := encMode.Marshal(obj)
	if err != nil {
		return nil, typeErrorf("failed to encode ArbData object: %s", err)
	}
	return b, nil
}

// Equal compares both the arguments and the object. Objects are compared
// by their canonical encoding, so 1 and uint64(1) are equal.
func (a *ArbData) Equal(b *ArbData) bool {
	if a == nil || b == nil {
		return a == b
	}
	if len(a.args) != len(b.args) {
		return false
	}
	for i := range a.args {
		if !bytes.Equal(a.args[i], b.args[i]) {
			return false
		}
	}
	ca, err := a.cbor()
	if err != nil {
		return false
	}
	cb, err := b.cbor()
	if err != nil {
		return false
	}
	return bytes.Equal(ca, cb)
}

// JSON renders the object as JSON with sorted keys. Byte strings are
// rendered as base64.
func (a *ArbData) JSON() string {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	writeJSON(e, a.json)
	return e.String()
}

func writeJSON(e *jx.Encoder, v interface{}) {
	switch v := v.(type) {
	case nil:
		e.Null()
	case bool:
		e.Bool(v)
	case string:
		e.Str(v)
	case []byte:
		e.Base64(v)
	case int:
		e.Int(v)
	case int64:
		e.Int64(v)
	case uint64:
		e.UInt64(v)
	case float32:
		e.Float32(v)
	case float64:
		e.Float64(v)
	case map[string]interface{}:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		e.ObjStart()
		for _, k := range keys {
			e.FieldStart(k)
			writeJSON(e, v[k])
		}
		e.ObjEnd()
	case []interface{}:
		e.ArrStart()
		for _, x := range v {
			writeJSON(e, x)
		}
		e.ArrEnd()
	default:
		b, err := jsonIter.Marshal(v)
		if err != nil {
			e.Str(fmt.Sprintf("%v", v))
			return
		}
		e.Raw(b)
	}
}

func (a *ArbData) String() string {
	args := make([]string, len(a.args))
	for i, arg := range a.args {
		args[i] = fmt.Sprintf("%q", arg)
	}
	return fmt.Sprintf("ArbData(%s, %v)", a.JSON(), args)
}

// Encode writes a to the engine. With a nil target a new ArbData resource
// is allocated and returned; otherwise target is cleared and overwritten.
func (a *ArbData) Encode(eng native.Engine, target *handle.Handle) (*handle.Handle, error) {
	if target != nil {
		id, err := target.Borrow()
		if err != nil {
			return nil, err
		}
		if err := eng.ArbClear(id); err != nil {
			return nil, err
		}
		if err := a.encodeInto(eng, id); err != nil {
			return nil, err
		}
		return target, nil
	}
	id, err := eng.ArbNew()
	if err != nil {
		return nil, err
	}
	h := handle.New(eng, id)
	if err := a.encodeInto(eng, id); err != nil {
		h.Release()
		return nil, err
	}
	return h, nil
}

// encodeInto pushes the object and the arguments onto a resource that
// carries ArbData.
func (a *ArbData) encodeInto(eng native.Engine, id native.ID) error {
	b, err := a.cbor()
	if err != nil {
		return err
	}
	if err := eng.ArbCBORSet(id, b); err != nil {
		return errors.Wrap(err, "set ArbData object")
	}
	for i, arg := range a.args {
		if err := eng.ArbPushRaw(id, arg); err != nil {
			return errors.Wrapf(err, "push ArbData argument %d", i)
		}
	}
	return nil
}

// readProbed reads a variable-length value, first into a probe buffer and
// then, if the engine reports a larger size, into a buffer of exact size.
func readProbed(read func(buf []byte) (int, error)) ([]byte, error) {
	buf := make([]byte, probeSize)
	n, err := read(buf)
	if err != nil {
		return nil, err
	}
	if n > len(buf) {
		buf = make([]byte, n)
		n, err = read(buf)
		if err != nil {
			return nil, err
		}
		if n > len(buf) {
			return nil, errors.Errorf("value grew from %d to %d bytes while reading", len(buf), n)
		}
	}
	return buf[:n], nil
}

// DecodeArbData reads the ArbData carried by h. h may be any handle that
// carries ArbData; it is borrowed, not released.
func DecodeArbData(eng native.Engine, h *handle.Handle) (*ArbData, error) {
	id, err := h.Borrow()
	if err != nil {
		return nil, err
	}
	return decodeArbData(eng, id)
}

func decodeArbData(eng native.Engine, id native.ID) (*ArbData, error) {
	raw, err := readProbed(func(buf []byte) (int, error) {
		return eng.ArbCBORGet(id, buf)
	})
	if err != nil {
		return nil, errors.Wrap(err, "get ArbData object")
	}
	obj := map[string]interface{}{}
	if err := decMode.Unmarshal(raw, &obj); err != nil {
		return nil, typeErrorf("ArbData object is not a map: %s", err)
	}
	if obj == nil {
		obj = map[string]interface{}{}
	}
	n, err := eng.ArbLen(id)
	if err != nil {
		return nil, errors.Wrap(err, "get ArbData length")
	}
	a := &ArbData{json: obj, args: make([][]byte, 0, n)}
	for i := 0; i < n; i++ {
		arg, err := readProbed(func(buf []byte) (int, error) {
			return eng.ArbGetRaw(id, i, buf)
		})
		if err != nil {
			return nil, errors.Wrapf(err, "get ArbData argument %d", i)
		}
		a.args = append(a.args, arg)
	}
	return a, nil
}
