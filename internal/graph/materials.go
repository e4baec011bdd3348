package graph

import (
	"github.com/Faultbox/meshbridge/internal/host"
	"github.com/Faultbox/meshbridge/pkg/scene"
)

// MaterialRegistry hands out material ids that stay stable for the life of
// a session. Ids are keyed by material name and never reused.
type MaterialRegistry struct {
	ids    map[string]int32
	nextID int32
	// current maps names to records of the last Update.
	current map[string]*scene.Material
	list    []*scene.Material
	// textures attaches color maps to the records.
	textures bool
}

// NewMaterialRegistry creates an empty registry.
func NewMaterialRegistry() *MaterialRegistry {
	return &MaterialRegistry{ids: make(map[string]int32), current: make(map[string]*scene.Material)}
}

// Update rebuilds the material list from the host document. Index is the
// enumeration position, ID the stable id.
func (r *MaterialRegistry) Update(materials []host.Material) []*scene.Material {
	r.current = make(map[string]*scene.Material, len(materials))
	r.list = r.list[:0]
	for i, m := range materials {
		if _, dup := r.current[m.Name]; dup {
			continue
		}
		rec := &scene.Material{
			ID:    r.idFor(m.Name),
			Index: int32(i),
			Name:  m.Name,
			Color: m.Color,
		}
		if r.textures && m.ColorMap != nil {
			rec.ColorMap = &scene.Texture{
				Name: m.ColorMap.Name,
				Data: append([]byte(nil), m.ColorMap.Data...),
			}
		}
		r.current[m.Name] = rec
		r.list = append(r.list, rec)
	}
	return r.Materials()
}

// SetTextures toggles whether later Updates carry material textures.
func (r *MaterialRegistry) SetTextures(on bool) {
	r.textures = on
}

func (r *MaterialRegistry) idFor(name string) int32 {
	if id, ok := r.ids[name]; ok {
		return id
	}
	id := r.nextID
	r.nextID++
	r.ids[name] = id
	return id
}

// ID returns the id of a material present in the last Update, or
// scene.InvalidID.
func (r *MaterialRegistry) ID(name string) int32 {
	if m, ok := r.current[name]; ok {
		return m.ID
	}
	return scene.InvalidID
}

// Materials returns the records of the last Update in enumeration order.
func (r *MaterialRegistry) Materials() []*scene.Material {
	return append([]*scene.Material(nil), r.list...)
}

// Reset forgets every id.
func (r *MaterialRegistry) Reset() {
	r.ids = make(map[string]int32)
	r.nextID = 0
	r.current = make(map[string]*scene.Material)
	r.list = nil
}
