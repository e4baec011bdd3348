// Package graph maps host objects to slash-delimited paths and keeps the
// path-addressed entity records of a sync pass.
package graph

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Faultbox/meshbridge/internal/host"
	"github.com/Faultbox/meshbridge/pkg/scene"
)

var (
	// ErrCyclicParent is returned when a parent chain loops back on itself.
	ErrCyclicParent = errors.New("cyclic parent chain")
	// ErrUnresolvable is returned for objects that cannot be named.
	ErrUnresolvable = errors.New("unresolvable object")
)

// Resolver computes entity paths from host parentage. It keeps no state
// between calls; every Resolve walks the live parent chain.
type Resolver struct{}

// Resolve returns the path of obj: its parent's path followed by "/" and
// its name. Roots resolve to "/name". A "/" inside a name becomes "_".
func (Resolver) Resolve(obj host.Object) (string, error) {
	if obj == nil {
		return "", fmt.Errorf("%w: nil object", ErrUnresolvable)
	}

	var names []string
	visiting := make(map[host.Object]bool)
	for cur := obj; cur != nil; cur = cur.Parent() {
		if visiting[cur] {
			return "", fmt.Errorf("%w: %s", ErrCyclicParent, strings.Join(reverse(names), "/"))
		}
		visiting[cur] = true
		name := cur.Name()
		if name == "" {
			return "", fmt.Errorf("%w: empty name", ErrUnresolvable)
		}
		names = append(names, name)
	}

	var path string
	for i := len(names) - 1; i >= 0; i-- {
		path = scene.JoinPath(path, names[i])
	}
	return path, nil
}

// BonePath returns the path of a pose bone below its armature. Bones nest
// under their parent bones.
func BonePath(armaturePath string, bones []host.Bone, name string) (string, error) {
	byName := make(map[string]*host.Bone, len(bones))
	for i := range bones {
		byName[bones[i].Name] = &bones[i]
	}

	var chain []string
	seen := make(map[string]bool)
	for n := name; n != ""; {
		if seen[n] {
			return "", fmt.Errorf("%w: bone %s", ErrCyclicParent, name)
		}
		seen[n] = true
		b, ok := byName[n]
		if !ok {
			return "", fmt.Errorf("%w: bone %s not in armature %s", ErrUnresolvable, n, armaturePath)
		}
		chain = append(chain, b.Name)
		n = b.Parent
	}

	path := armaturePath
	for i := len(chain) - 1; i >= 0; i-- {
		path = scene.JoinPath(path, chain[i])
	}
	return path, nil
}

func reverse(s []string) []string {
	out := make([]string, len(s))
	for i, v := range s {
		out[len(s)-1-i] = v
	}
	return out
}
