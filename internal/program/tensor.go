// Package program holds the value types a compile request is made of:
// tensor shapes, element types, per-argument configuration and request
// metadata. Everything here is plain data; key derivation lives in
// internal/cachekey and never mutates these values.
package program

import (
	"strconv"
	"strings"
)

// DType names the element type of a tensor the way it appears in program
// signatures. The string value is wire format: it is embedded verbatim in
// cache key prefixes, so renaming a tag invalidates every existing key.
type DType string

const (
	Bool      DType = "bool"
	Int8      DType = "int8"
	Int16     DType = "int16"
	Int32     DType = "int32"
	Int64     DType = "int64"
	Uint8     DType = "uint8"
	Uint16    DType = "uint16"
	Uint32    DType = "uint32"
	Uint64    DType = "uint64"
	Float16   DType = "float16"
	BFloat16  DType = "bfloat16"
	Float32   DType = "float32"
	Float64   DType = "float64"
	Complex64 DType = "complex64"
)

// DynamicSize marks a dimension whose size is only known at runtime. It is
// encoded like any other size, so a shape with a dynamic second dimension
// and one with a dynamic first dimension produce different keys.
const DynamicSize int64 = -1

// Shape is an ordered list of dimension sizes. The zero value is a scalar
// (rank 0) shape.
type Shape struct {
	dims []int64
}

// NewShape builds a shape from dimension sizes in order.
func NewShape(dims ...int64) Shape {
	if len(dims) == 0 {
		return Shape{}
	}
	d := make([]int64, len(dims))
	copy(d, dims)
	return Shape{dims: d}
}

// Dims returns the dimension sizes. Callers must not modify the slice.
func (s Shape) Dims() []int64 { return s.dims }

// Rank returns the number of dimensions.
func (s Shape) Rank() int { return len(s.dims) }

// IsDynamic reports whether any dimension has a runtime-determined size.
func (s Shape) IsDynamic() bool {
	for _, d := range s.dims {
		if d == DynamicSize {
			return true
		}
	}
	return false
}

// NumElements returns the element count, or -1 when the shape is dynamic.
func (s Shape) NumElements() int64 {
	n := int64(1)
	for _, d := range s.dims {
		if d == DynamicSize {
			return -1
		}
		n *= d
	}
	return n
}

func (s Shape) String() string {
	var b strings.Builder
	b.WriteByte('[')
	for i, d := range s.dims {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatInt(d, 10))
	}
	b.WriteByte(']')
	return b.String()
}

// Tensor is one guaranteed-constant input: an element type, a shape and the
// raw value bytes. The cache layer fingerprints the bytes but never
// interprets them.
type Tensor struct {
	dtype DType
	shape Shape
	data  []byte
}

// NewTensor builds a tensor over data. The payload is not copied; the
// caller must not modify it while the tensor is reachable.
func NewTensor(dtype DType, shape Shape, data []byte) Tensor {
	return Tensor{dtype: dtype, shape: shape, data: data}
}

func (t Tensor) DType() DType { return t.dtype }
func (t Tensor) Shape() Shape { return t.shape }

// RawBytes returns the tensor's backing payload without copying. The
// returned slice is read-only from the caller's point of view.
func (t Tensor) RawBytes() []byte { return t.data }

// SizeBytes returns the payload length.
func (t Tensor) SizeBytes() int { return len(t.data) }

// TensorList is an indexed view over op inputs, for callers that receive
// inputs as a list object rather than a slice.
type TensorList struct {
	tensors []Tensor
}

// NewTensorList wraps tensors without copying.
func NewTensorList(tensors ...Tensor) TensorList {
	return TensorList{tensors: tensors}
}

func (l TensorList) Len() int { return len(l.tensors) }

// At returns the i-th tensor. Panics when i is out of range, like a slice
// index.
func (l TensorList) At(i int) Tensor { return l.tensors[i] }

// Tensors returns the backing slice without copying, preserving order.
func (l TensorList) Tensors() []Tensor { return l.tensors }
