package protocol

import (
	"encoding/binary"
	gomath "math"
)

// encoder appends little-endian values to a buffer.
type encoder struct {
	buf []byte
}

func (e *encoder) u8(v uint8)   { e.buf = append(e.buf, v) }
func (e *encoder) u32(v uint32) { e.buf = binary.LittleEndian.AppendUint32(e.buf, v) }
func (e *encoder) u64(v uint64) { e.buf = binary.LittleEndian.AppendUint64(e.buf, v) }
func (e *encoder) i32(v int32)  { e.u32(uint32(v)) }
func (e *encoder) f32(v float32) {
	e.u32(gomath.Float32bits(v))
}

func (e *encoder) flag(v bool) {
	if v {
		e.u8(1)
	} else {
		e.u8(0)
	}
}

func (e *encoder) str(s string) {
	e.u32(uint32(len(s)))
	e.buf = append(e.buf, s...)
}

func (e *encoder) raw(b []byte) {
	e.buf = append(e.buf, b...)
}

func (e *encoder) f32s(vs ...float32) {
	for _, v := range vs {
		e.f32(v)
	}
}

// f32Array writes a length-prefixed float array.
func (e *encoder) f32Array(vs []float32) {
	e.u32(uint32(len(vs)))
	e.f32s(vs...)
}

func (e *encoder) i32Array(vs []int32) {
	e.u32(uint32(len(vs)))
	for _, v := range vs {
		e.i32(v)
	}
}

func (e *encoder) vec2s(vs [][2]float32) {
	e.u32(uint32(len(vs)))
	for _, v := range vs {
		e.f32s(v[0], v[1])
	}
}

func (e *encoder) vec3s(vs [][3]float32) {
	e.u32(uint32(len(vs)))
	for _, v := range vs {
		e.f32s(v[0], v[1], v[2])
	}
}

func (e *encoder) vec4s(vs [][4]float32) {
	e.u32(uint32(len(vs)))
	for _, v := range vs {
		e.f32s(v[0], v[1], v[2], v[3])
	}
}

// decoder reads little-endian values. The first failure sticks: later reads
// return zero values and err reports what went wrong.
type decoder struct {
	data []byte
	off  int
	err  error
}

func (d *decoder) need(n int) bool {
	if d.err != nil {
		return false
	}
	if n < 0 || len(d.data)-d.off < n {
		d.err = ErrTruncated
		return false
	}
	return true
}

func (d *decoder) remaining() int { return len(d.data) - d.off }

func (d *decoder) u8() uint8 {
	if !d.need(1) {
		return 0
	}
	v := d.data[d.off]
	d.off++
	return v
}

func (d *decoder) u32() uint32 {
	if !d.need(4) {
		return 0
	}
	v := binary.LittleEndian.Uint32(d.data[d.off:])
	d.off += 4
	return v
}

func (d *decoder) u64() uint64 {
	if !d.need(8) {
		return 0
	}
	v := binary.LittleEndian.Uint64(d.data[d.off:])
	d.off += 8
	return v
}

func (d *decoder) i32() int32   { return int32(d.u32()) }
func (d *decoder) f32() float32 { return gomath.Float32frombits(d.u32()) }
func (d *decoder) flag() bool   { return d.u8() != 0 }

func (d *decoder) bytes(n int) []byte {
	if !d.need(n) {
		return nil
	}
	b := d.data[d.off : d.off+n]
	d.off += n
	return b
}

func (d *decoder) str() string {
	n := d.count(1)
	return string(d.bytes(n))
}

// count reads an element count and checks that the remaining input can
// hold that many elements of elemSize bytes.
func (d *decoder) count(elemSize int) int {
	n := int(d.u32())
	if d.err != nil {
		return 0
	}
	if elemSize > 0 && n > d.remaining()/elemSize {
		d.err = ErrTruncated
		return 0
	}
	return n
}

func (d *decoder) f32Array() []float32 {
	n := d.count(4)
	if n == 0 {
		return nil
	}
	out := make([]float32, n)
	for i := range out {
		out[i] = d.f32()
	}
	return out
}

func (d *decoder) i32Array() []int32 {
	n := d.count(4)
	if n == 0 {
		return nil
	}
	out := make([]int32, n)
	for i := range out {
		out[i] = d.i32()
	}
	return out
}

func (d *decoder) vec2s() [][2]float32 {
	n := d.count(8)
	if n == 0 {
		return nil
	}
	out := make([][2]float32, n)
	for i := range out {
		out[i] = [2]float32{d.f32(), d.f32()}
	}
	return out
}

func (d *decoder) vec3s() [][3]float32 {
	n := d.count(12)
	if n == 0 {
		return nil
	}
	out := make([][3]float32, n)
	for i := range out {
		out[i] = [3]float32{d.f32(), d.f32(), d.f32()}
	}
	return out
}

func (d *decoder) vec4s() [][4]float32 {
	n := d.count(16)
	if n == 0 {
		return nil
	}
	out := make([][4]float32, n)
	for i := range out {
		out[i] = [4]float32{d.f32(), d.f32(), d.f32(), d.f32()}
	}
	return out
}
