package protocol

import (
	"github.com/Faultbox/meshbridge/pkg/scene"
)

// Pass is the data of one sync pass before it is split into messages.
type Pass struct {
	Settings         scene.Settings
	Materials        []*scene.Material
	Entities         []*scene.Entity // parents before children
	Clips            []*scene.AnimationClip
	DeletedPaths     []string
	DeletedMaterials []int32
}

// Empty reports whether the pass carries nothing.
func (p *Pass) Empty() bool {
	return len(p.Materials) == 0 && len(p.Entities) == 0 && len(p.Clips) == 0 &&
		len(p.DeletedPaths) == 0 && len(p.DeletedMaterials) == 0
}

// Messages splits p into the message sequence of a pass: Fence(begin),
// materials, the non-mesh entities in one Set, one Set per mesh, animation,
// deletions, Fence(end). Empty groups produce no message. A non-mesh entity
// below a mesh of the same pass is held back until after that mesh, so
// parents always arrive first.
func (p *Pass) Messages() []Message {
	msgs := []Message{&Fence{Kind: FenceSceneBegin}}
	set := func(entities []*scene.Entity) {
		msgs = append(msgs, &Set{Scene: &scene.Scene{Settings: p.Settings, Entities: entities}})
	}
	if len(p.Materials) > 0 {
		msgs = append(msgs, &Set{Scene: &scene.Scene{Settings: p.Settings, Materials: p.Materials}})
	}

	var meshPaths []string
	var plain, rest []*scene.Entity
	for _, e := range p.Entities {
		if e.Kind == scene.KindMesh {
			meshPaths = append(meshPaths, e.Path)
			rest = append(rest, e)
			continue
		}
		if underAny(e.Path, meshPaths) {
			rest = append(rest, e)
		} else {
			plain = append(plain, e)
		}
	}
	if len(plain) > 0 {
		set(plain)
	}
	var run []*scene.Entity
	for _, e := range rest {
		if e.Kind != scene.KindMesh {
			run = append(run, e)
			continue
		}
		if len(run) > 0 {
			set(run)
			run = nil
		}
		set([]*scene.Entity{e})
	}
	if len(run) > 0 {
		set(run)
	}

	if len(p.Clips) > 0 {
		msgs = append(msgs, &Set{Scene: &scene.Scene{Settings: p.Settings, Clips: p.Clips}})
	}
	if len(p.DeletedPaths) > 0 || len(p.DeletedMaterials) > 0 {
		msgs = append(msgs, &Delete{Paths: p.DeletedPaths, Materials: p.DeletedMaterials})
	}
	return append(msgs, &Fence{Kind: FenceSceneEnd})
}

// Encode marshals the messages of p with enc.
func (p *Pass) Encode(enc *Encoder) [][]byte {
	msgs := p.Messages()
	out := make([][]byte, len(msgs))
	for i, m := range msgs {
		out[i] = enc.Encode(m)
	}
	return out
}

func underAny(path string, ancestors []string) bool {
	for _, a := range ancestors {
		if scene.IsDescendant(path, a) {
			return true
		}
	}
	return false
}
