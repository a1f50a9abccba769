package fingerprint

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"sync"
)

// Property carries every input that the opaque program key digests. Field
// order and framing are part of the key format: changing either silently
// invalidates every previously cached program.
type Property struct {
	ConfigPrefix string
	ShapesPrefix string
	FunctionName string

	// Module is the serialized program body.
	Module []byte

	// FlattenedDeviceIDs is the device assignment in row-major order.
	FlattenedDeviceIDs []int32

	// GuaranteedConstCount is the number of guaranteed-constant inputs. The
	// constants' values stay out of the opaque key; only their count is
	// structural.
	GuaranteedConstCount int

	FunctionLibraryFingerprint uint64

	NumCoresPerReplica int32
	NumReplicas        int32

	// MeshDescriptor is the opaque encoding of the device mesh the program
	// is compiled against.
	MeshDescriptor []byte
}

// ProgramKeyResult holds a derived key plus the scratch buffer the
// derivation borrowed. Callers must copy what they need out of Key and
// DebugString and then call Close on every path, typically via defer.
type ProgramKeyResult struct {
	// Key is the opaque cache key prefix: hex sha256 of the framed
	// properties.
	Key string

	// DebugString is a human-readable rendering for logs. Never use it for
	// equality.
	DebugString string

	buf *bytes.Buffer
}

// Close returns the scratch buffer to the pool. Safe to call more than
// once.
func (r *ProgramKeyResult) Close() {
	if r.buf == nil {
		return
	}
	scratchPool.Put(r.buf)
	r.buf = nil
}

var scratchPool = sync.Pool{
	New: func() any { return new(bytes.Buffer) },
}

// BuildProgramKey derives the opaque cache key for prop. Equal properties
// always produce equal keys; every field is length- or count-framed before
// hashing so that no two distinct property sets can serialize to the same
// byte stream.
func BuildProgramKey(prop Property) *ProgramKeyResult {
	buf := scratchPool.Get().(*bytes.Buffer)
	buf.Reset()

	writeString(buf, prop.ConfigPrefix)
	writeString(buf, prop.ShapesPrefix)
	writeString(buf, prop.FunctionName)
	writeBytes(buf, prop.Module)
	writeUint64(buf, uint64(len(prop.FlattenedDeviceIDs)))
	for _, id := range prop.FlattenedDeviceIDs {
		writeUint64(buf, uint64(uint32(id)))
	}
	writeUint64(buf, uint64(prop.GuaranteedConstCount))
	writeUint64(buf, prop.FunctionLibraryFingerprint)
	writeUint64(buf, uint64(uint32(prop.NumCoresPerReplica)))
	writeUint64(buf, uint64(uint32(prop.NumReplicas)))
	writeBytes(buf, prop.MeshDescriptor)

	sum := sha256.Sum256(buf.Bytes())
	key := hex.EncodeToString(sum[:])

	return &ProgramKeyResult{
		Key: key,
		DebugString: fmt.Sprintf("%s(replicas=%d,cores=%d,lib=%016x)#%s",
			prop.FunctionName, prop.NumReplicas, prop.NumCoresPerReplica,
			prop.FunctionLibraryFingerprint, key[:12]),
		buf: buf,
	}
}

func writeUint64(buf *bytes.Buffer, v uint64) {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], v)
	buf.Write(tmp[:])
}

func writeBytes(buf *bytes.Buffer, b []byte) {
	writeUint64(buf, uint64(len(b)))
	buf.Write(b)
}

func writeString(buf *bytes.Buffer, s string) {
	writeUint64(buf, uint64(len(s)))
	buf.WriteString(s)
}
