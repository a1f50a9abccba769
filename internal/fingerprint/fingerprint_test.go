package fingerprint

import (
	"strings"
	"testing"
)

func TestRollingDeterministic(t *testing.T) {
	data := []byte("guaranteed constant payload")
	a := Rolling(0, data)
	b := Rolling(0, data)
	if a != b {
		t.Fatalf("Rolling not deterministic: %d != %d", a, b)
	}
	if a == Rolling(1, data) {
		t.Error("seed does not influence the fold")
	}
}

func TestRollingChainOrderSensitive(t *testing.T) {
	x := []byte("x")
	y := []byte("y")

	xy := Rolling(Rolling(0, x), y)
	yx := Rolling(Rolling(0, y), x)
	if xy == yx {
		t.Fatal("fold chain is order insensitive")
	}
}

func TestHash64String(t *testing.T) {
	if Hash64String("abc") != Hash64([]byte("abc")) {
		t.Fatal("Hash64String disagrees with Hash64 on identical input")
	}
}

func baseProperty() Property {
	return Property{
		ConfigPrefix:               ":s,type(float32)",
		ShapesPrefix:               "2,3,;",
		FunctionName:               "matmul_fn",
		Module:                     []byte("module-bytes"),
		FlattenedDeviceIDs:         []int32{0, 1, 2, 3},
		GuaranteedConstCount:       1,
		FunctionLibraryFingerprint: 0x1234,
		NumCoresPerReplica:         2,
		NumReplicas:                4,
		MeshDescriptor:             []byte("2x2x1"),
	}
}

func TestBuildProgramKeyDeterministic(t *testing.T) {
	a := BuildProgramKey(baseProperty())
	defer a.Close()
	b := BuildProgramKey(baseProperty())
	defer b.Close()

	if a.Key != b.Key {
		t.Fatalf("keys differ for equal properties: %s vs %s", a.Key, b.Key)
	}
	if len(a.Key) != 64 {
		t.Errorf("key length = %d, want 64 hex chars", len(a.Key))
	}
	if !strings.Contains(a.DebugString, "matmul_fn") {
		t.Errorf("DebugString %q does not name the function", a.DebugString)
	}
}

func TestBuildProgramKeyFieldSensitivity(t *testing.T) {
	base := BuildProgramKey(baseProperty())
	defer base.Close()

	mutations := []struct {
		name   string
		mutate func(*Property)
	}{
		{"config prefix", func(p *Property) { p.ConfigPrefix = ":,type(float32)" }},
		{"shapes prefix", func(p *Property) { p.ShapesPrefix = "3,2,;" }},
		{"function name", func(p *Property) { p.FunctionName = "matmul_fn2" }},
		{"module bytes", func(p *Property) { p.Module = []byte("module-bytes!") }},
		{"device ids", func(p *Property) { p.FlattenedDeviceIDs = []int32{0, 1, 3, 2} }},
		{"const count", func(p *Property) { p.GuaranteedConstCount = 2 }},
		{"library fingerprint", func(p *Property) { p.FunctionLibraryFingerprint = 0x1235 }},
		{"cores per replica", func(p *Property) { p.NumCoresPerReplica = 1 }},
		{"replicas", func(p *Property) { p.NumReplicas = 8 }},
		{"mesh descriptor", func(p *Property) { p.MeshDescriptor = []byte("4x1x1") }},
	}

	for _, m := range mutations {
		t.Run(m.name, func(t *testing.T) {
			prop := baseProperty()
			m.mutate(&prop)
			got := BuildProgramKey(prop)
			defer got.Close()
			if got.Key == base.Key {
				t.Errorf("mutating %s did not change the key", m.name)
			}
		})
	}
}

func TestBuildProgramKeyFraming(t *testing.T) {
	// Shifting a byte between adjacent string fields must not collide.
	a := BuildProgramKey(Property{ConfigPrefix: "ab", ShapesPrefix: "c"})
	defer a.Close()
	b := BuildProgramKey(Property{ConfigPrefix: "a", ShapesPrefix: "bc"})
	defer b.Close()
	if a.Key == b.Key {
		t.Fatal("string fields are not framed: ab|c collides with a|bc")
	}

	// Device id lists of different lengths must not collide either.
	c := BuildProgramKey(Property{FlattenedDeviceIDs: []int32{1, 2}})
	defer c.Close()
	d := BuildProgramKey(Property{FlattenedDeviceIDs: []int32{1}})
	defer d.Close()
	if c.Key == d.Key {
		t.Fatal("device id list is not count framed")
	}
}

func TestProgramKeyResultCloseIdempotent(t *testing.T) {
	r := BuildProgramKey(baseProperty())
	r.Close()
	r.Close()
	if r.Key == "" {
		t.Fatal("Close cleared the key")
	}
}
