// Package extract reads host objects into scene entities.
package extract

import (
	"github.com/Faultbox/meshbridge/internal/host"
	"github.com/Faultbox/meshbridge/pkg/scene"
)

// Settings selects what is extracted and how.
type Settings struct {
	SyncMeshes      bool
	SyncNormals     bool
	SyncUVs         bool
	SyncColors      bool
	SyncBones       bool
	SyncBlendShapes bool
	SyncCameras     bool
	SyncLights      bool

	MakeDoubleSided bool
	// BakeModifiers reads fully evaluated geometry instead of authored
	// geometry plus mirror and skinning metadata.
	BakeModifiers bool
	// BakeTransform folds world transforms into points and exports identity
	// local transforms.
	BakeTransform bool
	// ConvertToMesh exports text, surface and metaball objects as meshes.
	ConvertToMesh bool
	// CurvesAsMesh exports curve objects as meshes.
	CurvesAsMesh bool
}

// DefaultSettings enables everything except baking.
func DefaultSettings() Settings {
	return Settings{
		SyncMeshes:      true,
		SyncNormals:     true,
		SyncUVs:         true,
		SyncColors:      true,
		SyncBones:       true,
		SyncBlendShapes: true,
		SyncCameras:     true,
		SyncLights:      true,
		ConvertToMesh:   true,
		CurvesAsMesh:    true,
	}
}

// Extractor fills an entity from a host object.
type Extractor interface {
	Extract(obj host.Object, e *scene.Entity) error
}

// TransformExtractor copies visibility and the local transform.
type TransformExtractor struct {
	BakeTransform bool
}

func (x TransformExtractor) Extract(obj host.Object, e *scene.Entity) error {
	e.Visible = obj.Visible()
	if x.BakeTransform {
		e.Local = scene.IdentityTransform()
		return nil
	}
	e.Local = obj.Local()
	return nil
}

// worldTransform keeps cameras and lights placed when transforms are baked.
func worldTransform(obj host.Object, e *scene.Entity, bake bool) {
	e.Visible = obj.Visible()
	if bake {
		e.Local = scene.TransformFromMatrix(obj.World())
	} else {
		e.Local = obj.Local()
	}
}

// CameraExtractor copies camera parameters.
type CameraExtractor struct {
	BakeTransform bool
}

func (x CameraExtractor) Extract(obj host.Object, e *scene.Entity) error {
	worldTransform(obj, e, x.BakeTransform)
	if c := obj.Camera(); c != nil {
		cam := *c
		e.Camera = &cam
	}
	return nil
}

// LightExtractor copies light parameters.
type LightExtractor struct {
	BakeTransform bool
}

func (x LightExtractor) Extract(obj host.Object, e *scene.Entity) error {
	worldTransform(obj, e, x.BakeTransform)
	if l := obj.Light(); l != nil {
		light := *l
		e.Light = &light
	}
	return nil
}

// BoneExtractor fills bone entities from armature pose bones.
type BoneExtractor struct {
	BakeTransform bool
}

// ExtractBone copies the pose transform and the inverse rest matrix.
func (x BoneExtractor) ExtractBone(b host.Bone, e *scene.Entity) {
	e.Visible = true
	if x.BakeTransform {
		e.Local = scene.IdentityTransform()
	} else {
		e.Local = b.Local
	}
	e.Bone.BindPose = b.Rest.Inverse()
}
