// Package transform computes registration transforms between paired 3-D
// landmark lists and evaluates them in both directions.
//
// A computation takes the target-space points A and the source-space points
// B, paired by index, and produces a Result mapping B onto A. Linear
// families are solved in closed form (Procrustes, linear regression) and
// polished with Levenberg-Marquardt; the thin-plate spline interpolates the
// pairs exactly.
package transform

import (
	"fmt"
	"strings"
)

// Family identifies the transform model fitted to the tag pairs.
type Family int

const (
	// Rigid has 3 rotations and 3 translations.
	Rigid Family = iota
	// Similarity adds one uniform scale to Rigid.
	Similarity
	// NineParam has three independent axis scales.
	NineParam
	// TenParam adds one X/Y shear to NineParam.
	TenParam
	// FullAffine is an unconstrained 3x4 linear map.
	FullAffine
	// ThinPlateSpline is a nonlinear interpolating warp.
	ThinPlateSpline
)

// Families lists every family in declaration order.
func Families() []Family {
	return []Family{Rigid, Similarity, NineParam, TenParam, FullAffine, ThinPlateSpline}
}

// String returns the label shown to users for the family.
func (f Family) String() string {
	switch f {
	case Rigid:
		return "Rigid (6 parameters)"
	case Similarity:
		return "Similarity (7 parameters)"
	case NineParam:
		return "Scaled (9 parameters)"
	case TenParam:
		return "Scaled + Shear (10 parameters)"
	case FullAffine:
		return "Full Affine (12 parameters)"
	case ThinPlateSpline:
		return "Thin-Plate Spline"
	default:
		return fmt.Sprintf("Family(%d)", int(f))
	}
}

// NumParams returns the number of free parameters of a linear family and
// zero for the thin-plate spline.
func (f Family) NumParams() int {
	switch f {
	case Rigid:
		return 6
	case Similarity:
		return 7
	case NineParam:
		return 9
	case TenParam:
		return 10
	case FullAffine:
		return 12
	default:
		return 0
	}
}

// MinPairs returns the smallest number of tag pairs the family accepts.
func (f Family) MinPairs() int {
	if f == ThinPlateSpline {
		return 5
	}
	return 4
}

// IsLinear reports whether the family is represented by a 4x4 matrix alone.
func (f Family) IsLinear() bool {
	return f >= Rigid && f <= FullAffine
}

func (f Family) valid() bool {
	return f >= Rigid && f <= ThinPlateSpline
}

var familyAliases = map[string]Family{
	"rigid":      Rigid,
	"6":          Rigid,
	"similarity": Similarity,
	"7":          Similarity,
	"scaled":     NineParam,
	"nine":       NineParam,
	"9":          NineParam,
	"shear":      TenParam,
	"ten":        TenParam,
	"10":         TenParam,
	"affine":     FullAffine,
	"12":         FullAffine,
	"tps":        ThinPlateSpline,
}

// ParseFamily accepts either a family label as returned by String or one of
// the short aliases used on the command line ("rigid", "similarity", "9",
// "10", "affine", "tps", ...). Matching ignores case.
func ParseFamily(s string) (Family, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	if f, ok := familyAliases[key]; ok {
		return f, nil
	}
	for _, f := range Families() {
		if strings.EqualFold(f.String(), strings.TrimSpace(s)) {
			return f, nil
		}
	}
	return 0, fmt.Errorf("unknown transform family %q", s)
}
