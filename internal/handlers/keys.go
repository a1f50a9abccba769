package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"aotcache/internal/cachekey"
	"aotcache/internal/lookup"
	"aotcache/internal/metrics"
	"aotcache/internal/program"
	"aotcache/pkg/logging"
)

// keyRequest is the wire form of one compile request's identity.
type keyRequest struct {
	FunctionName               string `json:"function_name"`
	FunctionLibraryFingerprint uint64 `json:"function_library_fingerprint"`

	// Module is the serialized program body, base64 in JSON.
	Module []byte `json:"module"`

	Args          []argSpec `json:"args"`
	DynamicShapes [][]int64 `json:"dynamic_shapes"`

	GuaranteedConstants []constantSpec `json:"guaranteed_constants"`

	// GuaranteedConstFingerprint, when set, is used verbatim instead of
	// hashing the constants.
	GuaranteedConstFingerprint string `json:"guaranteed_const_fingerprint,omitempty"`

	SessionHandle string `json:"session_handle,omitempty"`

	// DeviceAssignment is computations x replicas, row-major.
	DeviceAssignment   [][]int32 `json:"device_assignment"`
	NumReplicas        int32     `json:"num_replicas"`
	NumCoresPerReplica int32     `json:"num_cores_per_replica"`
}

type argSpec struct {
	SameDataAcrossReplicas bool   `json:"same_data_across_replicas"`
	Sharding               string `json:"sharding,omitempty"` // "", "unspecified", "disallowed", "allowed"
	UnrestrictedLayout     bool   `json:"unrestricted_layout"`
	DType                  string `json:"dtype"`

	// Shape is the static shape; send [] for a scalar and omit the field
	// entirely for a dynamically shaped argument.
	Shape []int64 `json:"shape,omitempty"`
}

type constantSpec struct {
	DType string  `json:"dtype"`
	Shape []int64 `json:"shape"`
	Data  []byte  `json:"data"` // base64 in JSON
}

type keyResponse struct {
	Prefix             string `json:"prefix"`
	DebugString        string `json:"debug_string"`
	FullKey            string `json:"full_key"`
	HasGuaranteedConst bool   `json:"has_guaranteed_const"`

	SessionHandle              string `json:"session_handle,omitempty"`
	GuaranteedConstFingerprint string `json:"guaranteed_const_fingerprint,omitempty"`
}

// DeriveKey handles POST /v1/keys: derive the cache key for a compile
// request without compiling or storing anything.
func (h *Handler) DeriveKey(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.L(ctx)
	start := time.Now()

	var req keyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid key request", zap.Error(err))
		h.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	if req.FunctionName == "" {
		h.writeError(w, http.StatusBadRequest, "function_name is required")
		return
	}

	args, err := parseArgs(req.Args)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	meta := &program.Metadata{
		Args:                       args,
		GuaranteedConstFingerprint: req.GuaranteedConstFingerprint,
		SessionHandle:              req.SessionHandle,
		DeviceAssignment:           parseDeviceAssignment(req.DeviceAssignment),
		NumReplicas:                req.NumReplicas,
		NumCoresPerReplica:         req.NumCoresPerReplica,
	}

	consts := make([]program.Tensor, 0, len(req.GuaranteedConstants))
	for _, c := range req.GuaranteedConstants {
		consts = append(consts, program.NewTensor(
			program.DType(c.DType), program.NewShape(c.Shape...), c.Data))
	}

	shapes := make([]program.Shape, 0, len(req.DynamicShapes))
	for _, dims := range req.DynamicShapes {
		shapes = append(shapes, program.NewShape(dims...))
	}

	key := cachekey.Create(req.FunctionName, req.FunctionLibraryFingerprint,
		req.Module, consts, shapes, meta, h.Mesh)

	metrics.KeysDerivedTotal.
		WithLabelValues(strconv.FormatBool(key.HasGuaranteedConst)).Inc()

	resp := keyResponse{
		Prefix:             key.Prefix,
		DebugString:        key.DebugString,
		FullKey:            lookup.FullKey(key),
		HasGuaranteedConst: key.HasGuaranteedConst,
		SessionHandle:      key.SessionHandle,
	}
	if key.HasGuaranteedConst {
		resp.GuaranteedConstFingerprint = key.GuaranteedConstFingerprint()
	}

	logger.Info("cache_key_derived",
		zap.String("function", req.FunctionName),
		zap.String("key_prefix", key.Prefix),
		zap.Bool("has_guaranteed_const", key.HasGuaranteedConst),
		zap.Duration("latency_ms", time.Since(start)),
	)

	h.writeJSON(w, http.StatusOK, resp)
}

func parseArgs(specs []argSpec) ([]program.Arg, error) {
	args := make([]program.Arg, 0, len(specs))
	for i, s := range specs {
		if s.DType == "" {
			return nil, fmt.Errorf("args[%d]: dtype is required", i)
		}
		sharding, err := parseSharding(s.Sharding)
		if err != nil {
			return nil, fmt.Errorf("args[%d]: %w", i, err)
		}
		arg := program.Arg{
			SameDataAcrossReplicas: s.SameDataAcrossReplicas,
			Sharding:               sharding,
			UnrestrictedLayout:     s.UnrestrictedLayout,
			DType:                  program.DType(s.DType),
		}
		if s.Shape != nil {
			shape := program.NewShape(s.Shape...)
			arg.Shape = &shape
		}
		args = append(args, arg)
	}
	return args, nil
}

func parseSharding(s string) (program.ShardingPolicy, error) {
	switch s {
	case "", "unspecified":
		return program.ShardingUnspecified, nil
	case "disallowed":
		return program.ShardingDisallowed, nil
	case "allowed":
		return program.ShardingAllowed, nil
	default:
		return 0, fmt.Errorf("unknown sharding policy %q", s)
	}
}

func parseDeviceAssignment(rows [][]int32) *program.DeviceAssignment {
	if len(rows) == 0 {
		return nil
	}
	da := &program.DeviceAssignment{
		ComputationDevices: make([]program.ComputationDevice, 0, len(rows)),
	}
	for _, ids := range rows {
		da.ComputationDevices = append(da.ComputationDevices,
			program.ComputationDevice{ReplicaDeviceIDs: ids})
	}
	return da
}
