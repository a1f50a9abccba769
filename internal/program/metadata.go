package program

// ShardingPolicy says whether an argument may be split across cores. It is
// a genuine tri-state: leaving the policy unspecified is not the same
// statement as explicitly disallowing it, even though the two currently
// encode identically in cache keys.
type ShardingPolicy int32

const (
	ShardingUnspecified ShardingPolicy = iota
	ShardingDisallowed
	ShardingAllowed
)

func (p ShardingPolicy) String() string {
	switch p {
	case ShardingDisallowed:
		return "disallowed"
	case ShardingAllowed:
		return "allowed"
	default:
		return "unspecified"
	}
}

// Arg is the static compilation configuration of one program argument.
// Every field here feeds the cache key, so only fields the compiler
// actually branches on belong in this struct; runtime routing hints do
// not.
type Arg struct {
	// SameDataAcrossReplicas is set when every replica receives the same
	// value for this argument, which lets the compiler broadcast instead of
	// shard.
	SameDataAcrossReplicas bool

	Sharding ShardingPolicy

	// UnrestrictedLayout frees the compiler to pick the argument's memory
	// layout instead of honoring the host layout.
	UnrestrictedLayout bool

	DType DType

	// Shape is the argument's static shape, nil when the argument is
	// dynamically shaped and its shape travels separately.
	Shape *Shape
}

// ComputationDevice lists the physical device ids chosen for the replicas
// of one computation, indexed by replica.
type ComputationDevice struct {
	ReplicaDeviceIDs []int32
}

// DeviceAssignment maps (computation, replica) pairs to physical devices.
type DeviceAssignment struct {
	ComputationDevices []ComputationDevice
}

// FlattenDeviceIDs returns the assignment as one row-major id sequence:
// all replica ids of computation 0, then computation 1, and so on. A nil
// assignment flattens to nil, which keys the same as an empty one.
func (d *DeviceAssignment) FlattenDeviceIDs() []int32 {
	if d == nil {
		return nil
	}
	var flat []int32
	for _, c := range d.ComputationDevices {
		flat = append(flat, c.ReplicaDeviceIDs...)
	}
	return flat
}

// Metadata describes one compile request. It arrives from the client
// alongside the serialized program and is treated as immutable for the
// lifetime of any cache key derived from it.
type Metadata struct {
	// Args configures each program argument, in argument order.
	Args []Arg

	// GuaranteedConstFingerprint, when non-empty, is a fingerprint computed
	// upstream over the request's guaranteed constants. It is used verbatim
	// and the constant payloads are never read here.
	GuaranteedConstFingerprint string

	// SessionHandle names the client session the request belongs to.
	// Guaranteed constants are only stable within a session, so the handle
	// becomes part of the lookup identity whenever constants are present.
	SessionHandle string

	DeviceAssignment *DeviceAssignment

	NumReplicas        int32
	NumCoresPerReplica int32
}
