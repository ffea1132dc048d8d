// Copyright (c) 2023 Seagate Technology LLC and/or its Affiliates

// This file implements bit level decoding of register words into structures.
// Fields are laid out from bit 0 of the first word upwards, in declaration
// order.

package lpss

import (
	"errors"
	"fmt"
	"reflect"

	"k8s.io/klog/v2"
)

type bitfield_1b uint8
type bitfield_2b uint8
type bitfield_3b uint8
type bitfield_4b uint8
type bitfield_10b uint16
type bitfield_16b uint16
type bitfield_23b uint32
type bitfield_29b uint32
type bitfield_31b uint32
type bitfield_32b uint32

var bitfieldWidth = map[reflect.Type]int{
	reflect.TypeOf(bitfield_1b(0)):  1,
	reflect.TypeOf(bitfield_2b(0)):  2,
	reflect.TypeOf(bitfield_3b(0)):  3,
	reflect.TypeOf(bitfield_4b(0)):  4,
	reflect.TypeOf(bitfield_10b(0)): 10,
	reflect.TypeOf(bitfield_16b(0)): 16,
	reflect.TypeOf(bitfield_23b(0)): 23,
	reflect.TypeOf(bitfield_29b(0)): 29,
	reflect.TypeOf(bitfield_31b(0)): 31,
	reflect.TypeOf(bitfield_32b(0)): 32,
}

var errBitfieldRange = errors.New("bitfield: structure larger than register data")

// bitWidth returns the number of register bits a value of type t occupies.
func bitWidth(t reflect.Type) (int, error) {
	if w, ok := bitfieldWidth[t]; ok {
		return w, nil
	}
	switch t.Kind() {
	case reflect.Array:
		w, err := bitWidth(t.Elem())
		return w * t.Len(), err
	case reflect.Struct:
		sum := 0
		for i := 0; i < t.NumField(); i++ {
			w, err := bitWidth(t.Field(i).Type)
			if err != nil {
				return 0, err
			}
			sum += w
		}
		return sum, nil
	case reflect.Bool:
		return 1, nil
	case reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return int(t.Size()) * 8, nil
	}
	return 0, fmt.Errorf("bitfield: unsupported kind %s", t.Kind())
}

// BitFieldRead32 decodes the little endian register words regs into data,
// which must be a pointer to a struct. Blank fields are skipped.
func BitFieldRead32(regs []uint32, data any) error {
	v := reflect.ValueOf(data)
	if v.Kind() != reflect.Pointer || v.Elem().Kind() != reflect.Struct {
		return errors.New("bitfield.BitFieldRead32: invalid type " + reflect.TypeOf(data).String())
	}
	v = v.Elem()
	size, err := bitWidth(v.Type())
	if err != nil {
		return err
	}
	if size > len(regs)*32 {
		return fmt.Errorf("%w: %d bits into %d words", errBitfieldRange, size, len(regs))
	}
	klog.V(DBG_LVL_DEEP_DETAIL).InfoS("bitfield.BitFieldRead32", "type", v.Type().Name(), "bits", size)

	d := &bitDecoder{regs: regs}
	d.value(v)
	return nil
}

type bitDecoder struct {
	regs []uint32
	bit  int
}

func (d *bitDecoder) take(width int) uint64 {
	var val uint64
	for i := 0; i < width; i++ {
		pos := d.bit + i
		val |= uint64((d.regs[pos/32]>>(pos%32))&1) << i
	}
	d.bit += width
	return val
}

func (d *bitDecoder) value(v reflect.Value) {
	if w, ok := bitfieldWidth[v.Type()]; ok {
		v.SetUint(d.take(w))
		return
	}
	switch v.Kind() {
	case reflect.Array:
		for i := 0; i < v.Len(); i++ {
			d.value(v.Index(i))
		}
	case reflect.Struct:
		t := v.Type()
		for i := 0; i < v.NumField(); i++ {
			if f := v.Field(i); f.CanSet() && t.Field(i).Name != "_" {
				d.value(f)
			} else {
				w, _ := bitWidth(f.Type())
				d.bit += w
			}
		}
	case reflect.Bool:
		v.SetBool(d.take(1) != 0)
	case reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		v.SetUint(d.take(int(v.Type().Size()) * 8))
	}
}

// convert integer to bool
func UintToBool(i bitfield_1b) bool {
	return i == 1
}
