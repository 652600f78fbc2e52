package bencode

import (
	"bytes"
	"fmt"
	"reflect"
	"sort"
	"strconv"
)

// Serialize a ptr to a bencode-encoded byte-slice.
func Serialize(s interface{}) ([]byte, error) {
	w := &writer{}
	val := reflect.ValueOf(s)
	if val.Type().Kind() != reflect.Ptr {
		return nil, fmt.Errorf("bencode: expected a pointer, got %s", val.Type().Kind())
	}
	if err := w.writeValue(val.Elem()); err != nil {
		return nil, err
	}
	return w.buf.Bytes(), nil
}

type writer struct {
	buf bytes.Buffer
}

func (w *writer) writeBytes(b []byte) error {
	if _, err := w.buf.WriteString(strconv.Itoa(len(b))); err != nil {
		return err
	}
	if err := w.buf.WriteByte(bytesLengthSep); err != nil {
		return err
	}
	_, err := w.buf.Write(b)
	return err
}

func (w *writer) writeSignedNumber(n int64) error {
	if err := w.buf.WriteByte(numberStart); err != nil {
		return err
	}
	if _, err := w.buf.WriteString(strconv.FormatInt(n, 10)); err != nil {
		return err
	}
	return w.buf.WriteByte(bencodeEnd)
}

func (w *writer) writeUnsignedNumber(n uint64) error {
	if err := w.buf.WriteByte(numberStart); err != nil {
		return err
	}
	if _, err := w.buf.WriteString(strconv.FormatUint(n, 10)); err != nil {
		return err
	}
	return w.buf.WriteByte(bencodeEnd)
}

func (w *writer) writeValue(v reflect.Value) error {
	switch v.Type().Kind() {
	case reflect.Bool:
		if v.Bool() {
			return w.writeUnsignedNumber(1)
		}
		return w.writeUnsignedNumber(0)
	case reflect.Int8, reflect.Int32, reflect.Int64:
		return w.writeSignedNumber(v.Int())
	case reflect.Uint8, reflect.Uint32, reflect.Uint64:
		return w.writeUnsignedNumber(v.Uint())
	case reflect.String:
		return w.writeBytes([]byte(v.String()))
	case reflect.Array, reflect.Slice:
		if v.Type().Elem().Kind() == reflect.Uint8 {
			b := make([]uint8, v.Len())
			reflect.Copy(reflect.ValueOf(b), v)
			return w.writeBytes(b)
		}
		if err := w.buf.WriteByte(listStart); err != nil {
			return err
		}
		for i := 0; i != v.Len(); i++ {
			if err := w.writeValue(v.Index(i)); err != nil {
				return err
			}
		}
		return w.buf.WriteByte(bencodeEnd)
	case reflect.Struct:
		return w.writeStruct(v)
	case reflect.Map:
		if err := w.buf.WriteByte(dictStart); err != nil {
			return err
		}
		keys := v.MapKeys()
		sort.Slice(keys, func(i, j int) bool { return less(keys[i], keys[j]) })
		for _, k := range keys {
			if err := w.writeValue(k); err != nil {
				return err
			}
			if err := w.writeValue(v.MapIndex(k)); err != nil {
				return err
			}
		}
		return w.buf.WriteByte(bencodeEnd)
	case reflect.Pointer:
		if v.IsNil() {
			return fmt.Errorf("bencode: cannot encode a nil pointer outside a struct field")
		}
		return w.writeValue(v.Elem())
	default:
		return fmt.Errorf("bencode: unrecognized value type %s", v.Type().Kind())
	}
}

func less(a, b reflect.Value) bool {
	switch a.Type().Kind() {
	case reflect.String:
		return a.String() < b.String()
	case reflect.Uint8, reflect.Uint32, reflect.Uint64:
		return a.Uint() < b.Uint()
	case reflect.Int8, reflect.Int32, reflect.Int64:
		return a.Int() < b.Int()
	case reflect.Array:
		if a.Type().Elem().Kind() != reflect.Uint8 {
			panic(fmt.Sprintf("bencode: cannot sort elem type %s", a.Type().Elem().Kind()))
		}
		for x := 0; x != a.Len(); x++ {
			ai, bi := a.Index(x).Uint(), b.Index(x).Uint()
			if ai != bi {
				return ai < bi
			}
		}
		return false
	default:
		panic(fmt.Sprintf("bencode: cannot sort key type %s", a.Type().Kind()))
	}
}

func (w *writer) writeStruct(v reflect.Value) error {
	if err := w.buf.WriteByte(dictStart); err != nil {
		return err
	}

	ty := v.Type()
	fields := make(map[string]int)
	names := make([]string, 0, ty.NumField())
	for i := 0; i != ty.NumField(); i++ {
		f := ty.Field(i)
		if !f.IsExported() {
			continue
		}
		tag := f.Tag.Get("bencode")
		if tag == "" {
			return fmt.Errorf("bencode: field %s.%s has no bencode tag", ty.Name(), f.Name)
		}
		// optional fields are pointers and skipped when nil
		if f.Type.Kind() == reflect.Pointer && v.Field(i).IsNil() {
			continue
		}
		fields[tag] = i
		names = append(names, tag)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := w.writeBytes([]byte(name)); err != nil {
			return err
		}
		if err := w.writeValue(v.Field(fields[name])); err != nil {
			return err
		}
	}
	return w.buf.WriteByte(bencodeEnd)
}
