package store

import (
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// Artifact is the cached product of one compilation: the compiled program
// plus enough metadata to account for it without re-deriving the key.
// Artifacts travel between backends and over the remote store API as
// msgpack, which keeps multi-megabyte program bodies raw instead of
// base64-inflated.
type Artifact struct {
	// Program is the compiled program body.
	Program []byte `msgpack:"program"`

	// FunctionName and SessionHandle mirror the compile request, for
	// eviction and logs.
	FunctionName  string `msgpack:"function_name,omitempty"`
	SessionHandle string `msgpack:"session_handle,omitempty"`

	// DebugString is the human-readable key rendering captured at compile
	// time.
	DebugString string `msgpack:"debug_string,omitempty"`

	// CompilerVersion tags which compiler produced the program.
	CompilerVersion string `msgpack:"compiler_version,omitempty"`

	CreatedAt time.Time `msgpack:"created_at"`
}

// EncodeArtifact serializes a into the envelope every backend stores.
func EncodeArtifact(a Artifact) ([]byte, error) {
	data, err := msgpack.Marshal(&a)
	if err != nil {
		return nil, fmt.Errorf("store: encode artifact: %w", err)
	}
	return data, nil
}

// DecodeArtifact parses an envelope produced by EncodeArtifact.
func DecodeArtifact(data []byte) (Artifact, error) {
	var a Artifact
	if err := msgpack.Unmarshal(data, &a); err != nil {
		return Artifact{}, fmt.Errorf("store: decode artifact: %w", err)
	}
	return a, nil
}
