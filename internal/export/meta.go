package export

import (
	"encoding/json"
	"math"
	"time"

	"github.com/leefowlercu/asset-snapshot/internal/registry"
)

// Meta is the meta.json document written as the first archive entry.
type Meta struct {
	HashMainBLAKE3 string   `json:"hash_main_blake3"`
	HashMainSHA256 string   `json:"hash_main_sha256"`
	HashFullBLAKE3 string   `json:"hash_full_blake3"`
	Package        string   `json:"package"`
	Vendor         string   `json:"vendor"`
	SourcePath     string   `json:"source_path"`
	SourceFolder   string   `json:"source_folder,omitempty"`
	ObjectPath     string   `json:"object_path"`
	Class          string   `json:"class"`
	ExportedAtUTC  string   `json:"exported_at_utc"`
	PathWarning    bool     `json:"path_warning,omitempty"`
	PathRoots      []string `json:"path_roots,omitempty"`
	FilesOnDisk    []string `json:"files_on_disk"`
	DiskBytesTotal int64    `json:"disk_bytes_total"`

	Mesh *MeshMeta `json:"mesh,omitempty"`

	FrameCount             *int        `json:"frame_count,omitempty"`
	Frames                 []FrameMeta `json:"frames,omitempty"`
	AnimationLengthSeconds *float64    `json:"animation_length_seconds,omitempty"`

	PreviewFiles      []string `json:"preview_files"`
	NoPic             int      `json:"no_pic"`
	LowQuality        int      `json:"low_quality"`
	CaptureResolution int      `json:"capture_resolution"`
	CaptureFOV        float64  `json:"capture_fov"`
	CaptureDistance   float64  `json:"capture_distance"`
}

// MeshMeta carries mesh statistics.
type MeshMeta struct {
	Triangles           int             `json:"triangles"`
	Polygons            int             `json:"polygons"`
	Vertices            int             `json:"vertices"`
	LODs                int             `json:"lods"`
	NaniteEnabled       bool            `json:"nanite_enabled"`
	CollisionComplexity string          `json:"collision_complexity"`
	ApproxSizeCM        registry.Bounds `json:"approx_size_cm"`
	ApproxSizeMaxCM     float64         `json:"approx_size_max_cm"`
}

// FrameMeta locates one animation frame in time.
type FrameMeta struct {
	Index       int     `json:"index"`
	TimeSeconds float64 `json:"time_seconds"`
	File        string  `json:"file"`
}

// Marshal encodes the document.
func (m *Meta) Marshal() ([]byte, error) {
	return json.Marshal(m)
}

// ExportedAt formats t the way exported_at_utc is recorded.
func ExportedAt(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}

func newMeshMeta(info *registry.MeshInfo) *MeshMeta {
	if info == nil {
		return &MeshMeta{}
	}
	s := info.Size
	return &MeshMeta{
		Triangles:           info.Triangles,
		Polygons:            info.Triangles,
		Vertices:            info.Vertices,
		LODs:                info.LODs,
		NaniteEnabled:       info.NaniteEnabled,
		CollisionComplexity: info.CollisionComplexity,
		ApproxSizeCM:        s,
		ApproxSizeMaxCM:     math.Max(s.X, math.Max(s.Y, s.Z)),
	}
}

// animationFrames spreads n frames evenly over length seconds. With a single
// frame or an unknown length every frame is at zero.
func animationFrames(files []string, length float64) []FrameMeta {
	n := len(files)
	frames := make([]FrameMeta, n)
	for i, f := range files {
		t := 0.0
		if n > 1 && length > 0 {
			t = float64(i) / float64(n-1) * length
		}
		frames[i] = FrameMeta{Index: i, TimeSeconds: t, File: f}
	}
	return frames
}
