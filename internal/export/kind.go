package export

import (
	"strings"

	"github.com/leefowlercu/asset-snapshot/internal/preview"
	"github.com/leefowlercu/asset-snapshot/internal/syncclient"
)

// Kind is the closed set of asset kinds the exporter distinguishes.
type Kind int

const (
	KindUnknown Kind = iota
	KindStaticMesh
	KindSkeletalMesh
	KindMaterial
	KindMaterialInstance
	KindBlueprint
	KindNiagara
	KindAnimSequence
	KindTexture
)

// Class names as reported by the asset registry.
const (
	ClassStaticMesh               = "StaticMesh"
	ClassSkeletalMesh             = "SkeletalMesh"
	ClassMaterial                 = "Material"
	ClassMaterialInstance         = "MaterialInstance"
	ClassMaterialInstanceConstant = "MaterialInstanceConstant"
	ClassBlueprint                = "Blueprint"
	ClassNiagaraSystem            = "NiagaraSystem"
	ClassAnimSequence             = "AnimSequence"
	ClassTexture2D                = "Texture2D"
)

// materialMinFrameBytes is the encoded size below which a material frame is
// considered washed out.
const materialMinFrameBytes = 130000

// KindForClass maps a registry class name to its Kind.
func KindForClass(class string) Kind {
	switch class {
	case ClassStaticMesh:
		return KindStaticMesh
	case ClassSkeletalMesh:
		return KindSkeletalMesh
	case ClassMaterial:
		return KindMaterial
	case ClassMaterialInstance, ClassMaterialInstanceConstant:
		return KindMaterialInstance
	case ClassBlueprint:
		return KindBlueprint
	case ClassNiagaraSystem:
		return KindNiagara
	case ClassAnimSequence:
		return KindAnimSequence
	case ClassTexture2D:
		return KindTexture
	default:
		return KindUnknown
	}
}

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindStaticMesh:
		return "static_mesh"
	case KindSkeletalMesh:
		return "skeletal_mesh"
	case KindMaterial:
		return "material"
	case KindMaterialInstance:
		return "material_instance"
	case KindBlueprint:
		return "blueprint"
	case KindNiagara:
		return "niagara"
	case KindAnimSequence:
		return "anim_sequence"
	case KindTexture:
		return "texture"
	default:
		return "unknown"
	}
}

// Exportable reports whether assets of this kind produce archives.
func (k Kind) Exportable() bool {
	return k != KindTexture
}

// IsMesh reports whether the manifest carries mesh statistics.
func (k Kind) IsMesh() bool {
	return k == KindStaticMesh || k == KindSkeletalMesh
}

// sortKey orders a batch: material instances, materials, animations,
// meshes, blueprints, then everything else.
func (k Kind) sortKey() int {
	switch k {
	case KindMaterialInstance:
		return 0
	case KindMaterial:
		return 1
	case KindAnimSequence:
		return 2
	case KindStaticMesh, KindSkeletalMesh:
		return 3
	case KindBlueprint:
		return 4
	default:
		return 5
	}
}

// CaptureParams are the per-kind renderer inputs.
type CaptureParams struct {
	Frames        int
	Padding       float64
	Resolution    int
	MinFrameBytes int
}

// Params returns the capture parameters for k under the given settings.
func (k Kind) Params(s syncclient.Settings) CaptureParams {
	p := CaptureParams{
		Frames:     s.DefaultCount(),
		Padding:    1.0,
		Resolution: preview.DefaultResolution,
	}

	switch k {
	case KindStaticMesh:
		p.Frames = s.StaticMeshFrameCount()
		p.Padding = 1.15
	case KindSkeletalMesh:
		p.Frames = s.SkeletalMeshFrameCount()
		p.Padding = 1.15
	case KindMaterial, KindMaterialInstance:
		p.Frames = s.MaterialFrameCount()
		p.Padding = 1.05
		p.MinFrameBytes = materialMinFrameBytes
	case KindBlueprint:
		p.Frames = s.BlueprintFrameCount()
		p.Padding = 1.05
	case KindNiagara:
		p.Frames = s.NiagaraFrameCount()
		p.Padding = 1.35
	case KindAnimSequence:
		p.Frames = s.AnimSequenceFrameCount()
		p.Padding = 1.15
	}
	return p
}

// exportableClasses are the classes a batch export considers.
var exportableClasses = []string{
	ClassStaticMesh,
	ClassSkeletalMesh,
	ClassBlueprint,
	ClassNiagaraSystem,
	ClassAnimSequence,
	ClassMaterial,
	ClassMaterialInstance,
	ClassMaterialInstanceConstant,
}

// classesForToken expands a filter token into class names. Unrecognized
// tokens are taken as literal class names.
func classesForToken(token string) []string {
	switch strings.ToLower(token) {
	case "animation", "anim", "animsequence":
		return []string{ClassAnimSequence}
	case "mesh", "meshes":
		return []string{ClassStaticMesh, ClassSkeletalMesh}
	case "staticmesh":
		return []string{ClassStaticMesh}
	case "skeletalmesh":
		return []string{ClassSkeletalMesh}
	case "material", "materials", "mat":
		return []string{ClassMaterial, ClassMaterialInstance, ClassMaterialInstanceConstant}
	case "materialinstance", "materialinstanceconstant":
		return []string{ClassMaterialInstance, ClassMaterialInstanceConstant}
	case "blueprint", "bp":
		return []string{ClassBlueprint}
	case "niagara", "niagarasystem":
		return []string{ClassNiagaraSystem}
	default:
		return []string{token}
	}
}
