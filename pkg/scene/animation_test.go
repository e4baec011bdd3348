package scene

import (
	"testing"

	"github.com/Faultbox/meshbridge/pkg/math"
)

func TestChannelSample(t *testing.T) {
	c := &Channel{Name: ChannelTranslation, Components: 3}
	c.Add(0, 0, 0, 0)
	c.Add(1, 10, 20, 30)

	tests := []struct {
		time float32
		want [3]float32
	}{
		{-1, [3]float32{0, 0, 0}},
		{0.5, [3]float32{5, 10, 15}},
		{2, [3]float32{10, 20, 30}},
	}
	for _, tt := range tests {
		got := c.Sample(tt.time)
		for i := range tt.want {
			if got[i] != tt.want[i] {
				t.Errorf("Sample(%v) = %v, want %v", tt.time, got, tt.want)
				break
			}
		}
	}
}

func TestChannelReduceLinear(t *testing.T) {
	c := &Channel{Name: ChannelTranslation, Components: 1}
	// A straight ramp followed by a plateau: only the corner is needed.
	for i := 0; i <= 10; i++ {
		v := float32(i)
		if i > 5 {
			v = 5
		}
		c.Add(float32(i), v)
	}

	c.Reduce(0.001)

	wantTimes := []float32{0, 5, 10}
	if len(c.Times) != len(wantTimes) {
		t.Fatalf("Times = %v, want %v", c.Times, wantTimes)
	}
	for i, w := range wantTimes {
		if c.Times[i] != w {
			t.Errorf("Times[%d] = %v, want %v", i, c.Times[i], w)
		}
	}
	if got := c.Sample(2.5); got[0] != 2.5 {
		t.Errorf("reduced curve at 2.5 = %v, want 2.5", got[0])
	}
}

func TestChannelReduceSlerp(t *testing.T) {
	c := &Channel{Name: ChannelRotation, Components: 4, Interp: InterpSlerp}
	axis := math.Vec3{Y: 1}
	for i := 0; i <= 4; i++ {
		q := math.QuatFromAxisAngle(axis, float32(i)*0.25)
		c.Add(float32(i), q.X, q.Y, q.Z, q.W)
	}

	c.Reduce(0.01)

	if c.Len() != 2 {
		t.Errorf("constant-speed rotation should reduce to 2 keys, got %d", c.Len())
	}
}

func TestChannelReduceStep(t *testing.T) {
	c := &Channel{Name: ChannelVisible, Components: 1, Interp: InterpStep}
	for i, v := range []float32{1, 1, 1, 0, 0, 1} {
		c.Add(float32(i), v)
	}

	c.Reduce(0)

	want := []float32{0, 3, 5}
	if len(c.Times) != len(want) {
		t.Fatalf("Times = %v, want %v", c.Times, want)
	}
	for i := range want {
		if c.Times[i] != want[i] {
			t.Errorf("Times = %v, want %v", c.Times, want)
			break
		}
	}
}

func TestAnimationReduceFlat(t *testing.T) {
	build := func() *Animation {
		a := &Animation{Path: "/Box", Kind: KindMesh}
		tr := a.Channel(ChannelTranslation, 3, InterpLinear)
		sc := a.Channel(ChannelScale, 3, InterpLinear)
		for i := 0; i < 5; i++ {
			tr.Add(float32(i), float32(i), 0, 0)
			sc.Add(float32(i), 1, 1, 1)
		}
		a.Channel(ChannelVisible, 1, InterpStep)
		return a
	}

	a := build()
	a.Reduce(0.001, false)
	if len(a.Channels) != 1 || a.Channels[0].Name != ChannelTranslation {
		t.Errorf("without keep-flat only translation should remain, got %d channels", len(a.Channels))
	}

	a = build()
	a.Reduce(0.001, true)
	if len(a.Channels) != 2 {
		t.Fatalf("with keep-flat scale should remain, got %d channels", len(a.Channels))
	}
	if sc := a.Channels[1]; sc.Len() != 2 || sc.Times[1] != 4 {
		t.Errorf("flat channel should keep its end points, got times %v", sc.Times)
	}
}

func TestAnimationChannelGetOrCreate(t *testing.T) {
	a := &Animation{}
	c1 := a.Channel(ChannelFOV, 1, InterpLinear)
	c2 := a.Channel(ChannelFOV, 1, InterpLinear)
	if c1 != c2 || len(a.Channels) != 1 {
		t.Error("Channel should return the existing channel")
	}
}
