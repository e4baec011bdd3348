package math

import "fmt"

// EulerOrder names the axis sequence of an Euler rotation.
type EulerOrder uint8

// Supported Euler orders. The first axis is applied first.
const (
	EulerXYZ EulerOrder = iota
	EulerXZY
	EulerYXZ
	EulerYZX
	EulerZXY
	EulerZYX
)

var eulerAxes = [...][3]int{
	EulerXYZ: {0, 1, 2},
	EulerXZY: {0, 2, 1},
	EulerYXZ: {1, 0, 2},
	EulerYZX: {1, 2, 0},
	EulerZXY: {2, 0, 1},
	EulerZYX: {2, 1, 0},
}

var eulerNames = [...]string{"XYZ", "XZY", "YXZ", "YZX", "ZXY", "ZYX"}

// Axes returns the axis indices (0=X, 1=Y, 2=Z) in application order.
func (o EulerOrder) Axes() [3]int {
	if int(o) >= len(eulerAxes) {
		return eulerAxes[EulerXYZ]
	}
	return eulerAxes[o]
}

func (o EulerOrder) String() string {
	if int(o) >= len(eulerNames) {
		return fmt.Sprintf("EulerOrder(%d)", uint8(o))
	}
	return eulerNames[o]
}

// ParseEulerOrder converts "XYZ"-style names to an EulerOrder.
func ParseEulerOrder(s string) (EulerOrder, error) {
	for i, n := range eulerNames {
		if n == s {
			return EulerOrder(i), nil
		}
	}
	return 0, fmt.Errorf("unknown euler order %q", s)
}
