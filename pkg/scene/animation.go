package scene

import (
	"github.com/Faultbox/meshbridge/pkg/math"
)

// Standard channel names.
const (
	ChannelTranslation = "translation"
	ChannelRotation    = "rotation"
	ChannelScale       = "scale"
	ChannelVisible     = "visible"
	ChannelFOV         = "fov"
	ChannelNearPlane   = "near_plane"
	ChannelFarPlane    = "far_plane"
	ChannelColor       = "color"
	ChannelIntensity   = "intensity"
	ChannelRange       = "range"
	ChannelSpotAngle   = "spot_angle"

	// ChannelBlendShapePrefix is followed by the blend shape name.
	ChannelBlendShapePrefix = "blendshape."
)

// Interpolation says how values between samples are reconstructed.
type Interpolation uint8

// Interpolation modes.
const (
	InterpLinear Interpolation = iota
	InterpSlerp
	InterpStep
)

// Channel is one sampled property curve. Values holds Components floats per
// sample time.
type Channel struct {
	Name       string
	Components int
	Interp     Interpolation
	Times      []float32
	Values     []float32
}

// Len returns the number of samples.
func (c *Channel) Len() int {
	return len(c.Times)
}

// Add appends a sample. Extra components are ignored, missing ones are zero.
func (c *Channel) Add(time float32, v ...float32) {
	c.Times = append(c.Times, time)
	for i := 0; i < c.Components; i++ {
		if i < len(v) {
			c.Values = append(c.Values, v[i])
		} else {
			c.Values = append(c.Values, 0)
		}
	}
}

// Value returns the components of sample i.
func (c *Channel) Value(i int) []float32 {
	return c.Values[i*c.Components : (i+1)*c.Components]
}

// Sample reconstructs the curve at time t.
func (c *Channel) Sample(t float32) []float32 {
	n := c.Len()
	if n == 0 {
		return make([]float32, c.Components)
	}

	var prev, next int
	for i := range c.Times {
		if c.Times[i] > t {
			next = i
			break
		}
		prev = i
		next = i
	}
	if prev == next || c.Interp == InterpStep {
		return append([]float32(nil), c.Value(prev)...)
	}

	t0, t1 := c.Times[prev], c.Times[next]
	f := float32(0)
	if t1 != t0 {
		f = (t - t0) / (t1 - t0)
	}
	return c.interpolate(c.Value(prev), c.Value(next), f)
}

func (c *Channel) interpolate(a, b []float32, f float32) []float32 {
	if c.Interp == InterpSlerp && c.Components == 4 {
		qa := math.Quat{X: a[0], Y: a[1], Z: a[2], W: a[3]}
		qb := math.Quat{X: b[0], Y: b[1], Z: b[2], W: b[3]}
		q := qa.Slerp(qb, f)
		return []float32{q.X, q.Y, q.Z, q.W}
	}
	out := make([]float32, len(a))
	for i := range a {
		out[i] = a[i] + f*(b[i]-a[i])
	}
	return out
}

// IsFlat reports whether every sample equals the first.
func (c *Channel) IsFlat() bool {
	if c.Len() < 2 {
		return true
	}
	first := c.Value(0)
	for i := 1; i < c.Len(); i++ {
		v := c.Value(i)
		for k := range first {
			if v[k] != first[k] {
				return false
			}
		}
	}
	return true
}

// Reduce drops samples that interpolation between the kept neighbours
// reproduces within threshold. The first and last samples are always kept.
func (c *Channel) Reduce(threshold float32) {
	n := c.Len()
	if n <= 2 {
		return
	}

	keep := []int{0}
	anchor := 0
	for i := 1; i < n-1; i++ {
		if !c.spanFits(anchor, i+1, threshold) {
			keep = append(keep, i)
			anchor = i
		}
	}
	keep = append(keep, n-1)
	if len(keep) == n {
		return
	}

	times := make([]float32, 0, len(keep))
	values := make([]float32, 0, len(keep)*c.Components)
	for _, i := range keep {
		times = append(times, c.Times[i])
		values = append(values, c.Value(i)...)
	}
	c.Times, c.Values = times, values
}

// spanFits checks that every sample strictly between a and b is predicted by
// interpolating a and b.
func (c *Channel) spanFits(a, b int, threshold float32) bool {
	va, vb := c.Value(a), c.Value(b)
	ta, tb := c.Times[a], c.Times[b]
	for i := a + 1; i < b; i++ {
		actual := c.Value(i)
		if c.Interp == InterpStep {
			if !equalValues(actual, va) {
				return false
			}
			continue
		}
		f := float32(0)
		if tb != ta {
			f = (c.Times[i] - ta) / (tb - ta)
		}
		if c.deviation(c.interpolate(va, vb, f), actual) > threshold {
			return false
		}
	}
	return true
}

func (c *Channel) deviation(predicted, actual []float32) float32 {
	if c.Interp == InterpSlerp && c.Components == 4 {
		qp := math.Quat{X: predicted[0], Y: predicted[1], Z: predicted[2], W: predicted[3]}
		qa := math.Quat{X: actual[0], Y: actual[1], Z: actual[2], W: actual[3]}
		return qp.Angle(qa)
	}
	var worst float32
	for i := range predicted {
		d := predicted[i] - actual[i]
		if d < 0 {
			d = -d
		}
		if d > worst {
			worst = d
		}
	}
	return worst
}

func equalValues(a, b []float32) bool {
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Animation groups the channels sampled for one entity.
type Animation struct {
	Path     string
	Kind     EntityKind
	Channels []*Channel
}

// Channel returns the named channel, creating it on first use.
func (a *Animation) Channel(name string, components int, interp Interpolation) *Channel {
	for _, c := range a.Channels {
		if c.Name == name {
			return c
		}
	}
	c := &Channel{Name: name, Components: components, Interp: interp}
	a.Channels = append(a.Channels, c)
	return c
}

// Reduce applies keyframe reduction to every channel. Unless keepFlat is set,
// channels that never change are removed.
func (a *Animation) Reduce(threshold float32, keepFlat bool) {
	kept := a.Channels[:0]
	for _, c := range a.Channels {
		if c.Len() == 0 {
			continue
		}
		if c.IsFlat() {
			if !keepFlat {
				continue
			}
			c.Times = []float32{c.Times[0], c.Times[len(c.Times)-1]}
			c.Values = append(append([]float32(nil), c.Value(0)...), c.Value(0)...)
			if c.Times[0] == c.Times[1] {
				c.Times = c.Times[:1]
				c.Values = c.Values[:c.Components]
			}
		} else {
			c.Reduce(threshold)
		}
		kept = append(kept, c)
	}
	a.Channels = kept
}

// Empty reports whether no channel carries samples.
func (a *Animation) Empty() bool {
	for _, c := range a.Channels {
		if c.Len() > 0 {
			return false
		}
	}
	return true
}

// AnimationClip is a named set of entity animations.
type AnimationClip struct {
	Name       string
	FrameRate  float32
	Animations []*Animation
}

// Clone returns a deep copy.
func (c *AnimationClip) Clone() *AnimationClip {
	out := &AnimationClip{Name: c.Name, FrameRate: c.FrameRate}
	for _, a := range c.Animations {
		ac := &Animation{Path: a.Path, Kind: a.Kind}
		for _, ch := range a.Channels {
			ac.Channels = append(ac.Channels, &Channel{
				Name:       ch.Name,
				Components: ch.Components,
				Interp:     ch.Interp,
				Times:      append([]float32(nil), ch.Times...),
				Values:     append([]float32(nil), ch.Values...),
			})
		}
		out.Animations = append(out.Animations, ac)
	}
	return out
}
