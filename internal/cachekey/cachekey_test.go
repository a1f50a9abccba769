package cachekey

import (
	"strconv"
	"sync"
	"testing"

	"aotcache/internal/fingerprint"
	"aotcache/internal/program"
)

func TestEncodeShapes(t *testing.T) {
	tests := []struct {
		name   string
		shapes []program.Shape
		want   string
	}{
		{"no shapes", nil, ""},
		{"single 2x3", []program.Shape{program.NewShape(2, 3)}, "2,3,;"},
		{"scalar", []program.Shape{program.NewShape()}, ";"},
		{"2x3 then scalar", []program.Shape{program.NewShape(2, 3), program.NewShape()}, "2,3,;;"},
		{"two single dim shapes", []program.Shape{program.NewShape(2), program.NewShape(3)}, "2,;3,;"},
		{"single dim", []program.Shape{program.NewShape(7)}, "7,;"},
		{"dynamic dim", []program.Shape{program.NewShape(program.DynamicSize, 4)}, "-1,4,;"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := EncodeShapes(tt.shapes); got != tt.want {
				t.Errorf("EncodeShapes(%v) = %q, want %q", tt.shapes, got, tt.want)
			}
		})
	}
}

func TestEncodeShapesUnambiguous(t *testing.T) {
	// One 2x3 shape and the pair (2) (3) must not encode identically.
	a := EncodeShapes([]program.Shape{program.NewShape(2, 3)})
	b := EncodeShapes([]program.Shape{program.NewShape(2), program.NewShape(3)})
	if a == b {
		t.Fatalf("shape grouping lost: %q == %q", a, b)
	}
}

func TestEncodeArgs(t *testing.T) {
	shape := program.NewShape(128, 64)

	tests := []struct {
		name string
		args []program.Arg
		want string
	}{
		{"no args", nil, ""},
		{
			"same data float32",
			[]program.Arg{{SameDataAcrossReplicas: true, DType: program.Float32}},
			":s,type(float32)",
		},
		{
			"per replica int32",
			[]program.Arg{{DType: program.Int32}},
			":,type(int32)",
		},
		{
			"sharding allowed",
			[]program.Arg{{SameDataAcrossReplicas: true, Sharding: program.ShardingAllowed, DType: program.Float32}},
			":se,type(float32)",
		},
		{
			"all features with static shape",
			[]program.Arg{{
				SameDataAcrossReplicas: true,
				Sharding:               program.ShardingAllowed,
				UnrestrictedLayout:     true,
				DType:                  program.Float32,
				Shape:                  &shape,
			}},
			":se:u,type(float32),shape(128,64,)",
		},
		{
			"two args",
			[]program.Arg{
				{SameDataAcrossReplicas: true, DType: program.Float32},
				{DType: program.Int32},
			},
			":s,type(float32):,type(int32)",
		},
		{
			// The ":u" token makes argument boundaries ambiguous to a
			// parser; the rendered bytes are still fixed.
			"second arg unrestricted",
			[]program.Arg{
				{DType: program.Int32},
				{UnrestrictedLayout: true, DType: program.Float32},
			},
			":,type(int32)::u,type(float32)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := EncodeArgs(tt.args); got != tt.want {
				t.Errorf("EncodeArgs() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestEncodeArgsFieldsDistinguish(t *testing.T) {
	base := program.Arg{DType: program.Float32}

	variants := []struct {
		name   string
		mutate func(*program.Arg)
	}{
		{"same data", func(a *program.Arg) { a.SameDataAcrossReplicas = true }},
		{"sharding allowed", func(a *program.Arg) { a.Sharding = program.ShardingAllowed }},
		{"unrestricted layout", func(a *program.Arg) { a.UnrestrictedLayout = true }},
		{"dtype", func(a *program.Arg) { a.DType = program.Float64 }},
		{"static shape", func(a *program.Arg) { s := program.NewShape(1); a.Shape = &s }},
	}

	want := EncodeArgs([]program.Arg{base})
	for _, v := range variants {
		t.Run(v.name, func(t *testing.T) {
			arg := base
			v.mutate(&arg)
			if got := EncodeArgs([]program.Arg{arg}); got == want {
				t.Errorf("changing %s did not change encoding %q", v.name, got)
			}
		})
	}
}

// swapRollingHash installs a counting wrapper around the fold primitive
// and returns the counter plus a restore func.
func swapRollingHash(t *testing.T) *int {
	t.Helper()
	orig := rollingHash
	calls := new(int)
	rollingHash = func(seed uint64, data []byte) uint64 {
		*calls++
		return fingerprint.Rolling(seed, data)
	}
	t.Cleanup(func() { rollingHash = orig })
	return calls
}

func testMeta() *program.Metadata {
	return &program.Metadata{
		Args: []program.Arg{{DType: program.Int32}},
		DeviceAssignment: &program.DeviceAssignment{
			ComputationDevices: []program.ComputationDevice{
				{ReplicaDeviceIDs: []int32{0, 1}},
				{ReplicaDeviceIDs: []int32{2, 3}},
			},
		},
		NumReplicas:        2,
		NumCoresPerReplica: 2,
		SessionHandle:      "sess-1",
	}
}

func TestCreateDeterministic(t *testing.T) {
	module := []byte("serialized module")
	a := Create("matmul_fn", 0x7f3e, module, nil, nil, testMeta(), StaticMesh("2x2x1"))
	b := Create("matmul_fn", 0x7f3e, module, nil, nil, testMeta(), StaticMesh("2x2x1"))

	if a.Prefix != b.Prefix {
		t.Fatalf("prefixes differ for identical requests: %s vs %s", a.Prefix, b.Prefix)
	}
	if a.DebugString != b.DebugString {
		t.Errorf("debug strings differ: %q vs %q", a.DebugString, b.DebugString)
	}
}

func TestCreateNoConstants(t *testing.T) {
	key := Create("matmul_fn", 0x7f3e, []byte("m"), nil, nil, testMeta(), nil)

	if key.HasGuaranteedConst {
		t.Error("HasGuaranteedConst = true without constants")
	}
	if key.SessionHandle != "" {
		t.Errorf("SessionHandle = %q, want empty", key.SessionHandle)
	}
	if key.GuaranteedConstFingerprint != nil {
		t.Error("fingerprint closure present without constants")
	}
	if key.Prefix == "" || key.DebugString == "" {
		t.Error("prefix or debug string empty")
	}
}

func TestCreateWithConstants(t *testing.T) {
	consts := []program.Tensor{
		program.NewTensor(program.Int32, program.NewShape(), []byte{1, 0, 0, 0}),
		program.NewTensor(program.Int32, program.NewShape(), []byte{2, 0, 0, 0}),
	}
	key := Create("fn", 1, []byte("m"), consts, nil, testMeta(), nil)

	if !key.HasGuaranteedConst {
		t.Fatal("HasGuaranteedConst = false with constants")
	}
	if key.SessionHandle != "sess-1" {
		t.Errorf("SessionHandle = %q, want %q", key.SessionHandle, "sess-1")
	}
	if key.GuaranteedConstFingerprint == nil {
		t.Fatal("fingerprint closure missing")
	}

	want := strconv.FormatUint(
		fingerprint.Rolling(fingerprint.Rolling(0, consts[0].RawBytes()), consts[1].RawBytes()), 10)
	if got := key.GuaranteedConstFingerprint(); got != want {
		t.Errorf("fingerprint = %q, want %q", got, want)
	}
}

func TestFingerprintLazyAndMemoized(t *testing.T) {
	calls := swapRollingHash(t)
	consts := []program.Tensor{
		program.NewTensor(program.Int8, program.NewShape(2), []byte{1, 2}),
		program.NewTensor(program.Int8, program.NewShape(2), []byte{3, 4}),
	}
	key := Create("fn", 1, []byte("m"), consts, nil, testMeta(), nil)

	if *calls != 0 {
		t.Fatalf("hash ran %d times before the closure was invoked", *calls)
	}

	first := key.GuaranteedConstFingerprint()
	if *calls != len(consts) {
		t.Fatalf("first closure call folded %d payloads, want %d", *calls, len(consts))
	}

	second := key.GuaranteedConstFingerprint()
	if *calls != len(consts) {
		t.Errorf("second closure call re-ran the hash: %d folds total", *calls)
	}
	if first != second {
		t.Errorf("memoized value changed: %q then %q", first, second)
	}
}

func TestFingerprintPrecomputedShortCircuit(t *testing.T) {
	calls := swapRollingHash(t)
	meta := testMeta()
	meta.GuaranteedConstFingerprint = "abc123"
	consts := []program.Tensor{
		program.NewTensor(program.Int8, program.NewShape(1), []byte{9}),
	}

	key := Create("fn", 1, []byte("m"), consts, nil, meta, nil)
	if got := key.GuaranteedConstFingerprint(); got != "abc123" {
		t.Fatalf("fingerprint = %q, want precomputed %q", got, "abc123")
	}
	if *calls != 0 {
		t.Errorf("hash ran %d times despite precomputed fingerprint", *calls)
	}
}

func TestFingerprintConcurrentOnce(t *testing.T) {
	calls := swapRollingHash(t)
	consts := []program.Tensor{
		program.NewTensor(program.Int8, program.NewShape(1), []byte{7}),
	}
	key := Create("fn", 1, []byte("m"), consts, nil, testMeta(), nil)

	var wg sync.WaitGroup
	results := make([]string, 8)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = key.GuaranteedConstFingerprint()
		}()
	}
	wg.Wait()

	if *calls != len(consts) {
		t.Errorf("hash folded %d payloads across 8 goroutines, want %d", *calls, len(consts))
	}
	for _, r := range results {
		if r != results[0] {
			t.Fatalf("divergent fingerprints: %q vs %q", r, results[0])
		}
	}
}

func TestCreateFromInputsMatchesCreate(t *testing.T) {
	consts := []program.Tensor{
		program.NewTensor(program.Float32, program.NewShape(2), []byte{0, 0, 128, 63, 0, 0, 0, 64}),
	}
	shapes := []program.Shape{program.NewShape(2, 3)}
	module := []byte("m")

	direct := Create("fn", 42, module, consts, shapes, testMeta(), StaticMesh("mesh"))
	viaList := CreateFromInputs("fn", 42, module, program.NewTensorList(consts...), shapes, testMeta(), StaticMesh("mesh"))

	if direct.Prefix != viaList.Prefix {
		t.Fatalf("overloads disagree on prefix: %s vs %s", direct.Prefix, viaList.Prefix)
	}
	if direct.HasGuaranteedConst != viaList.HasGuaranteedConst {
		t.Error("overloads disagree on HasGuaranteedConst")
	}
	if direct.GuaranteedConstFingerprint() != viaList.GuaranteedConstFingerprint() {
		t.Error("overloads disagree on the constant fingerprint")
	}
}

func TestPrefixSensitivity(t *testing.T) {
	module := []byte("m")
	base := Create("fn", 1, module, nil, nil, testMeta(), StaticMesh("mesh"))

	t.Run("function name", func(t *testing.T) {
		k := Create("fn2", 1, module, nil, nil, testMeta(), StaticMesh("mesh"))
		if k.Prefix == base.Prefix {
			t.Error("function name not keyed")
		}
	})
	t.Run("library fingerprint", func(t *testing.T) {
		k := Create("fn", 2, module, nil, nil, testMeta(), StaticMesh("mesh"))
		if k.Prefix == base.Prefix {
			t.Error("library fingerprint not keyed")
		}
	})
	t.Run("module bytes", func(t *testing.T) {
		k := Create("fn", 1, []byte("m2"), nil, nil, testMeta(), StaticMesh("mesh"))
		if k.Prefix == base.Prefix {
			t.Error("module bytes not keyed")
		}
	})
	t.Run("dynamic shapes", func(t *testing.T) {
		k := Create("fn", 1, module, nil, []program.Shape{program.NewShape(4)}, testMeta(), StaticMesh("mesh"))
		if k.Prefix == base.Prefix {
			t.Error("dynamic shapes not keyed")
		}
	})
	t.Run("arg config", func(t *testing.T) {
		meta := testMeta()
		meta.Args[0].SameDataAcrossReplicas = true
		k := Create("fn", 1, module, nil, nil, meta, StaticMesh("mesh"))
		if k.Prefix == base.Prefix {
			t.Error("arg config not keyed")
		}
	})
	t.Run("device assignment", func(t *testing.T) {
		meta := testMeta()
		meta.DeviceAssignment.ComputationDevices[1].ReplicaDeviceIDs = []int32{3, 2}
		k := Create("fn", 1, module, nil, nil, meta, StaticMesh("mesh"))
		if k.Prefix == base.Prefix {
			t.Error("device assignment not keyed")
		}
	})
	t.Run("mesh descriptor", func(t *testing.T) {
		k := Create("fn", 1, module, nil, nil, testMeta(), StaticMesh("other"))
		if k.Prefix == base.Prefix {
			t.Error("mesh descriptor not keyed")
		}
	})
	t.Run("constant count", func(t *testing.T) {
		consts := []program.Tensor{program.NewTensor(program.Int8, program.NewShape(1), []byte{1})}
		k := Create("fn", 1, module, consts, nil, testMeta(), StaticMesh("mesh"))
		if k.Prefix == base.Prefix {
			t.Error("constant count not keyed")
		}
	})
}

func TestSessionHandleNotInPrefix(t *testing.T) {
	// The session handle scopes constants at lookup time; the opaque prefix
	// itself stays session independent so sessions share compiled programs
	// when they have no constants.
	a := testMeta()
	b := testMeta()
	b.SessionHandle = "sess-2"

	ka := Create("fn", 1, []byte("m"), nil, nil, a, nil)
	kb := Create("fn", 1, []byte("m"), nil, nil, b, nil)
	if ka.Prefix != kb.Prefix {
		t.Fatal("session handle leaked into the opaque prefix")
	}
}

func TestNilMeshKeysLikeEmpty(t *testing.T) {
	a := Create("fn", 1, []byte("m"), nil, nil, testMeta(), nil)
	b := Create("fn", 1, []byte("m"), nil, nil, testMeta(), StaticMesh(nil))
	if a.Prefix != b.Prefix {
		t.Fatal("nil mesh and empty descriptor disagree")
	}
}
