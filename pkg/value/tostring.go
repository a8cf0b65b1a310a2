package value

import (
	"math"
	"strconv"
)

// ToString produces the canonical, total stringification of v (spec §4.A:
// "every object type has a canonical to_string that is total"). It is used
// by string concatenation, printing, and default error messages. Instance
// values with a user-defined @to_string are rendered by the VM before
// falling back to this default (pkg/vm calls out to the class's method
// table first; ToString only has to cover the built-in cases).
func ToString(v Value) string {
	switch v.T {
	case Nil:
		return "nil"
	case Bool:
		if v.B {
			return "true"
		}
		return "false"
	case Number:
		return formatNumber(v.N)
	case Empty:
		return "<empty>"
	case Obj:
		if v.Obj == nil {
			return "nil"
		}
		return v.Obj.String()
	}
	return "nil"
}

func formatNumber(n float64) string {
	if !math.IsInf(n, 0) && !math.IsNaN(n) && n == math.Trunc(n) && math.Abs(n) < 1e15 {
		return strconv.FormatInt(int64(n), 10)
	}
	return strconv.FormatFloat(n, 'g', -1, 64)
}
