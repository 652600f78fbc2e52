package bencode

import (
	"fmt"
	"math"
	"reflect"
	"strconv"
)

type DecodeError struct {
	msg string
}

func newDecodeError(msg string, vars ...interface{}) *DecodeError {
	return &DecodeError{fmt.Sprintf(msg, vars...)}
}

func (e *DecodeError) Error() string {
	return e.msg
}

// Given the target interface, decode the following byte slice to it.
func Deserialize(buf []byte, t interface{}) error {
	r := &reader{buf: buf}

	val := reflect.ValueOf(t)
	if val.Type().Kind() != reflect.Ptr {
		return fmt.Errorf("bencode: expected a pointer, got %s", val.Type().Kind())
	}
	out, err := r.readValue(val.Type().Elem())
	if err != nil {
		return err
	}
	val.Elem().Set(out)
	if !r.atEnd() {
		return newDecodeError("expected to be at end of buffer, %d bytes remain", len(r.buf)-r.pos)
	}
	return nil
}

type reader struct {
	buf []byte
	pos int
}

func (r *reader) atEnd() bool {
	return r.pos >= len(r.buf)
}

func (r *reader) peek() (byte, error) {
	if r.atEnd() {
		return 0, newDecodeError("unexpected end of buffer at pos %d", r.pos)
	}
	return r.buf[r.pos], nil
}

func (r *reader) expectByte(b byte) error {
	c, err := r.peek()
	if err != nil {
		return err
	}
	if c != b {
		return newDecodeError("expected 0x%x got 0x%x at pos %d", b, c, r.pos)
	}
	r.pos++
	return nil
}

func (r *reader) readInt() (int64, error) {
	if err := r.expectByte(numberStart); err != nil {
		return 0, err
	}
	start := r.pos
	if c, err := r.peek(); err != nil {
		return 0, err
	} else if c == '-' {
		r.pos++
	}
	for !r.atEnd() && r.buf[r.pos] >= '0' && r.buf[r.pos] <= '9' {
		r.pos++
	}
	if r.pos == start {
		return 0, newDecodeError("expected digits at pos %d", start)
	}
	val, err := strconv.ParseInt(string(r.buf[start:r.pos]), 10, 64)
	if err != nil {
		return 0, newDecodeError("bad number at pos %d: %s", start, err)
	}
	if err := r.expectByte(bencodeEnd); err != nil {
		return 0, err
	}
	return val, nil
}

func (r *reader) readUint() (uint64, error) {
	n, err := r.readInt()
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, newDecodeError("expected an unsigned number, got %d", n)
	}
	return uint64(n), nil
}

func (r *reader) readBytes() ([]byte, error) {
	start := r.pos
	for !r.atEnd() && r.buf[r.pos] >= '0' && r.buf[r.pos] <= '9' {
		r.pos++
	}
	if r.pos == start {
		return nil, newDecodeError("expected a length at pos %d", start)
	}
	l, err := strconv.Atoi(string(r.buf[start:r.pos]))
	if err != nil {
		return nil, newDecodeError("bad length at pos %d: %s", start, err)
	}
	if err := r.expectByte(bytesLengthSep); err != nil {
		return nil, err
	}
	if r.pos+l > len(r.buf) {
		return nil, newDecodeError("declared length %d overruns buffer at pos %d", l, r.pos)
	}
	b := r.buf[r.pos : r.pos+l]
	r.pos += l
	return b, nil
}

func (r *reader) readValue(t reflect.Type) (reflect.Value, error) {
	switch t.Kind() {
	case reflect.Bool:
		num, err := r.readUint()
		if err != nil {
			return reflect.Value{}, err
		}
		if num > 1 {
			return reflect.Value{}, newDecodeError("expected 0 or 1, got %d", num)
		}
		return reflect.ValueOf(num == 1), nil
	case reflect.Int64:
		num, err := r.readInt()
		if err != nil {
			return reflect.Value{}, err
		}
		return reflect.ValueOf(num), nil
	case reflect.Int32:
		num, err := r.readInt()
		if err != nil {
			return reflect.Value{}, err
		}
		if num < math.MinInt32 || num > math.MaxInt32 {
			return reflect.Value{}, newDecodeError("number %d out of range for int32", num)
		}
		return reflect.ValueOf(int32(num)), nil
	case reflect.Int8:
		num, err := r.readInt()
		if err != nil {
			return reflect.Value{}, err
		}
		if num < math.MinInt8 || num > math.MaxInt8 {
			return reflect.Value{}, newDecodeError("number %d out of range for int8", num)
		}
		return reflect.ValueOf(int8(num)), nil
	case reflect.Uint64:
		num, err := r.readUint()
		if err != nil {
			return reflect.Value{}, err
		}
		return reflect.ValueOf(num), nil
	case reflect.Uint32:
		num, err := r.readUint()
		if err != nil {
			return reflect.Value{}, err
		}
		if num > math.MaxUint32 {
			return reflect.Value{}, newDecodeError("number %d out of range for uint32", num)
		}
		return reflect.ValueOf(uint32(num)), nil
	case reflect.Uint8:
		num, err := r.readUint()
		if err != nil {
			return reflect.Value{}, err
		}
		if num > math.MaxUint8 {
			return reflect.Value{}, newDecodeError("number %d out of range for uint8", num)
		}
		return reflect.ValueOf(uint8(num)), nil
	case reflect.String:
		b, err := r.readBytes()
		if err != nil {
			return reflect.Value{}, err
		}
		return reflect.ValueOf(string(b)), nil
	case reflect.Slice:
		if t.Elem().Kind() == reflect.Uint8 {
			b, err := r.readBytes()
			if err != nil {
				return reflect.Value{}, err
			}
			out := make([]byte, len(b))
			copy(out, b)
			return reflect.ValueOf(out), nil
		}
		return r.readList(t)
	case reflect.Array:
		if t.Elem().Kind() != reflect.Uint8 {
			return reflect.Value{}, newDecodeError("unhandled array elem kind %s", t.Elem().Kind())
		}
		b, err := r.readBytes()
		if err != nil {
			return reflect.Value{}, err
		}
		if len(b) != t.Len() {
			return reflect.Value{}, newDecodeError("expected %d bytes, got %d", t.Len(), len(b))
		}
		valPtr := reflect.New(t)
		reflect.Copy(valPtr.Elem(), reflect.ValueOf(b))
		return valPtr.Elem(), nil
	case reflect.Struct:
		return r.readStruct(t)
	case reflect.Map:
		if err := r.expectByte(dictStart); err != nil {
			return reflect.Value{}, err
		}
		m := reflect.MakeMap(t)
		for {
			c, err := r.peek()
			if err != nil {
				return reflect.Value{}, err
			}
			if c == bencodeEnd {
				break
			}
			key, err := r.readValue(t.Key())
			if err != nil {
				return reflect.Value{}, err
			}
			val, err := r.readValue(t.Elem())
			if err != nil {
				return reflect.Value{}, err
			}
			m.SetMapIndex(key, val)
		}
		r.pos++
		return m, nil
	case reflect.Pointer:
		out, err := r.readValue(t.Elem())
		if err != nil {
			return reflect.Value{}, err
		}
		v := reflect.New(t.Elem())
		v.Elem().Set(out)
		return v, nil
	default:
		return reflect.Value{}, newDecodeError("unhandled kind %s", t.Kind())
	}
}

func (r *reader) readList(t reflect.Type) (reflect.Value, error) {
	a := reflect.MakeSlice(t, 0, 0)
	if err := r.expectByte(listStart); err != nil {
		return reflect.Value{}, err
	}
	for {
		c, err := r.peek()
		if err != nil {
			return reflect.Value{}, err
		}
		if c == bencodeEnd {
			break
		}
		val, err := r.readValue(t.Elem())
		if err != nil {
			return reflect.Value{}, err
		}
		a = reflect.Append(a, val)
	}
	r.pos++
	return a, nil
}

// Dictionaries are decoded by key lookup so fields absent from the wire stay
// at their zero value. Unknown keys are a decode error, the protocol is closed.
func (r *reader) readStruct(t reflect.Type) (reflect.Value, error) {
	if err := r.expectByte(dictStart); err != nil {
		return reflect.Value{}, err
	}

	fields := make(map[string]int)
	for i := 0; i != t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		tag := f.Tag.Get("bencode")
		if tag == "" {
			return reflect.Value{}, newDecodeError("field %s.%s has no bencode tag", t.Name(), f.Name)
		}
		fields[tag] = i
	}

	valPtr := reflect.New(t)
	for {
		c, err := r.peek()
		if err != nil {
			return reflect.Value{}, err
		}
		if c == bencodeEnd {
			break
		}
		key, err := r.readBytes()
		if err != nil {
			return reflect.Value{}, err
		}
		i, ok := fields[string(key)]
		if !ok {
			return reflect.Value{}, newDecodeError("unknown key %q for %s", string(key), t.Name())
		}
		val, err := r.readValue(t.Field(i).Type)
		if err != nil {
			return reflect.Value{}, err
		}
		valPtr.Elem().Field(i).Set(val)
	}
	r.pos++
	return valPtr.Elem(), nil
}
