// Package cachekey derives the deterministic key that identifies a
// compiled program in the compilation cache. The key is a pure function of
// the compile request: the same program, argument configuration, shapes,
// device assignment and mesh always produce the same key, across processes
// and hosts, so any replica of the cache service can serve any client.
//
// Fingerprinting guaranteed-constant inputs can be expensive, so the key
// carries it as a deferred computation instead of a value. Callers that
// never need the fingerprint never pay for it.
package cachekey

import (
	"strconv"
	"sync"

	"go.uber.org/zap"

	"aotcache/internal/fingerprint"
	"aotcache/internal/program"
)

// Key identifies one compiled program.
type Key struct {
	// Prefix is the opaque primary lookup token, a hex sha256 over the
	// framed request properties.
	Prefix string

	// DebugString is a human-readable rendering for logs. Never use it for
	// equality or lookup.
	DebugString string

	// HasGuaranteedConst is set when the request carried guaranteed
	// constants. The two fields below are only meaningful when it is set.
	HasGuaranteedConst bool

	// SessionHandle scopes the constants: identical programs can disagree
	// on constant values across sessions, so the handle joins the lookup
	// identity.
	SessionHandle string

	// GuaranteedConstFingerprint computes the fingerprint over the
	// request's guaranteed constants. It is nil when HasGuaranteedConst is
	// false. The first call does the work; later calls return the cached
	// result. The closure borrows the metadata and constant tensors handed
	// to Create, so they must stay alive and unmodified for as long as the
	// closure may run.
	GuaranteedConstFingerprint func() string
}

// MeshState describes the device mesh a program is compiled against.
// Implementations must return a deterministic descriptor: equal meshes
// yield equal bytes.
type MeshState interface {
	Descriptor() []byte
}

// StaticMesh is a MeshState with a fixed descriptor, for tests and for
// deployments where the mesh is configured rather than discovered.
type StaticMesh []byte

func (m StaticMesh) Descriptor() []byte { return m }

// logger traces derived prefixes. Libraries stay silent by default; the
// daemon installs its logger at startup.
var logger = zap.NewNop()

// SetLogger replaces the package logger. Install once at startup; not safe
// to call concurrently with Create.
func SetLogger(l *zap.Logger) {
	if l != nil {
		logger = l
	}
}

// rollingHash folds one payload into the constant fingerprint accumulator.
// A package variable so tests can instrument invocations.
var rollingHash = fingerprint.Rolling

// Create derives the cache key for one compile request.
//
// functionName and functionLibraryFingerprint identify the function being
// compiled, module is the serialized program body, guaranteedConsts are
// the constant inputs in op-input order, dynamicShapes are the runtime
// shapes of the dynamically shaped inputs, meta is the request metadata
// and mesh is the target mesh (nil keys like an empty descriptor).
//
// meta must be non-nil. Nothing is copied: when guaranteedConsts is
// non-empty the returned Key's fingerprint closure reads the tensors' raw
// bytes on first use, so the caller keeps meta and the tensors alive and
// unmodified for the Key's lifetime.
func Create(
	functionName string,
	functionLibraryFingerprint uint64,
	module []byte,
	guaranteedConsts []program.Tensor,
	dynamicShapes []program.Shape,
	meta *program.Metadata,
	mesh MeshState,
) Key {
	shapesPrefix := EncodeShapes(dynamicShapes)
	configPrefix := EncodeArgs(meta.Args)
	logger.Debug("deriving compilation cache key",
		zap.String("function", functionName),
		zap.Uint64("library_fingerprint", functionLibraryFingerprint),
		zap.String("config_prefix", configPrefix),
		zap.String("shapes_prefix", shapesPrefix),
	)

	var meshDescriptor []byte
	if mesh != nil {
		meshDescriptor = mesh.Descriptor()
	}

	result := fingerprint.BuildProgramKey(fingerprint.Property{
		ConfigPrefix:               configPrefix,
		ShapesPrefix:               shapesPrefix,
		FunctionName:               functionName,
		Module:                     module,
		FlattenedDeviceIDs:         meta.DeviceAssignment.FlattenDeviceIDs(),
		GuaranteedConstCount:       len(guaranteedConsts),
		FunctionLibraryFingerprint: functionLibraryFingerprint,
		NumCoresPerReplica:         meta.NumCoresPerReplica,
		NumReplicas:                meta.NumReplicas,
		MeshDescriptor:             meshDescriptor,
	})
	defer result.Close()

	key := Key{
		Prefix:      result.Key,
		DebugString: result.DebugString,
	}

	if len(guaranteedConsts) > 0 {
		key.HasGuaranteedConst = true
		key.SessionHandle = meta.SessionHandle

		var (
			once sync.Once
			fp   string
		)
		key.GuaranteedConstFingerprint = func() string {
			once.Do(func() {
				fp = guaranteedConstFingerprint(meta.GuaranteedConstFingerprint, guaranteedConsts)
			})
			return fp
		}
	}
	return key
}

// CreateFromInputs is Create for callers holding op inputs as an indexed
// list. It forwards the list's backing tensors unchanged, so both forms
// derive identical keys for the same logical input sequence.
func CreateFromInputs(
	functionName string,
	functionLibraryFingerprint uint64,
	module []byte,
	inputs program.TensorList,
	dynamicShapes []program.Shape,
	meta *program.Metadata,
	mesh MeshState,
) Key {
	return Create(functionName, functionLibraryFingerprint, module,
		inputs.Tensors(), dynamicShapes, meta, mesh)
}

// guaranteedConstFingerprint returns precomputed when it is non-empty.
// Otherwise it folds every constant's raw bytes into a rolling hash, in
// input order, seeded at zero, and renders the accumulator in decimal.
func guaranteedConstFingerprint(precomputed string, consts []program.Tensor) string {
	if precomputed != "" {
		return precomputed
	}
	var acc uint64
	for _, c := range consts {
		acc = rollingHash(acc, c.RawBytes())
	}
	return strconv.FormatUint(acc, 10)
}
