package program

import (
	"reflect"
	"testing"
)

func TestShapeBasics(t *testing.T) {
	s := NewShape(2, 3)
	if s.Rank() != 2 {
		t.Fatalf("Rank() = %d, want 2", s.Rank())
	}
	if got := s.NumElements(); got != 6 {
		t.Errorf("NumElements() = %d, want 6", got)
	}
	if s.IsDynamic() {
		t.Error("IsDynamic() = true for a static shape")
	}
	if got := s.String(); got != "[2,3]" {
		t.Errorf("String() = %q, want %q", got, "[2,3]")
	}

	scalar := NewShape()
	if scalar.Rank() != 0 {
		t.Errorf("scalar Rank() = %d, want 0", scalar.Rank())
	}
	if got := scalar.NumElements(); got != 1 {
		t.Errorf("scalar NumElements() = %d, want 1", got)
	}
}

func TestShapeDynamic(t *testing.T) {
	s := NewShape(DynamicSize, 128)
	if !s.IsDynamic() {
		t.Fatal("IsDynamic() = false, want true")
	}
	if got := s.NumElements(); got != -1 {
		t.Errorf("NumElements() = %d, want -1", got)
	}
}

func TestNewShapeCopiesDims(t *testing.T) {
	dims := []int64{4, 5}
	s := NewShape(dims...)
	dims[0] = 99
	if s.Dims()[0] != 4 {
		t.Fatalf("shape saw caller mutation: dims = %v", s.Dims())
	}
}

func TestFlattenDeviceIDs(t *testing.T) {
	tests := []struct {
		name string
		da   *DeviceAssignment
		want []int32
	}{
		{
			name: "nil assignment",
			da:   nil,
			want: nil,
		},
		{
			name: "empty assignment",
			da:   &DeviceAssignment{},
			want: nil,
		},
		{
			name: "row major order",
			da: &DeviceAssignment{
				ComputationDevices: []ComputationDevice{
					{ReplicaDeviceIDs: []int32{0, 1}},
					{ReplicaDeviceIDs: []int32{2, 3}},
				},
			},
			want: []int32{0, 1, 2, 3},
		},
		{
			name: "ragged replica counts",
			da: &DeviceAssignment{
				ComputationDevices: []ComputationDevice{
					{ReplicaDeviceIDs: []int32{7}},
					{ReplicaDeviceIDs: []int32{5, 6, 4}},
				},
			},
			want: []int32{7, 5, 6, 4},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.da.FlattenDeviceIDs()
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("FlattenDeviceIDs() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTensorListView(t *testing.T) {
	a := NewTensor(Float32, NewShape(2), []byte{1, 2, 3, 4, 5, 6, 7, 8})
	b := NewTensor(Int32, NewShape(), []byte{9, 0, 0, 0})
	list := NewTensorList(a, b)

	if list.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", list.Len())
	}
	if list.At(1).DType() != Int32 {
		t.Errorf("At(1).DType() = %q, want %q", list.At(1).DType(), Int32)
	}
	if &list.Tensors()[0].RawBytes()[0] != &a.RawBytes()[0] {
		t.Error("Tensors() copied the backing payload")
	}
}

func TestShardingPolicyString(t *testing.T) {
	if ShardingUnspecified.String() != "unspecified" ||
		ShardingDisallowed.String() != "disallowed" ||
		ShardingAllowed.String() != "allowed" {
		t.Fatalf("unexpected policy names: %q %q %q",
			ShardingUnspecified, ShardingDisallowed, ShardingAllowed)
	}
}
