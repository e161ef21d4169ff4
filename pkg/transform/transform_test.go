package transform

import (
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"tagalign/pkg/geometry"
)

// testTags returns a well spread, non-coplanar set of landmarks in mm.
func testTags() []r3.Vector {
	return []r3.Vector{
		{X: 10, Y: 20, Z: 30},
		{X: -15, Y: 5, Z: 12},
		{X: 30, Y: -8, Z: 4},
		{X: 2, Y: 40, Z: -18},
		{X: -22, Y: -30, Z: 9},
		{X: 17, Y: 11, Z: -25},
		{X: -5, Y: -12, Z: 35},
		{X: 25, Y: 28, Z: 16},
	}
}

func mapPoints(m mat.Matrix, points []r3.Vector) []r3.Vector {
	out := make([]r3.Vector, len(points))
	for i, p := range points {
		out[i] = geometry.Apply(m, p)
	}
	return out
}

func assertMaps(t *testing.T, r Result, target, source []r3.Vector, tol float64) {
	t.Helper()
	for i := range source {
		got := r.Forward(source[i])
		assert.InDelta(t, 0.0, got.Distance(target[i]), tol, "pair %d: got %v want %v", i, got, target[i])
	}
}

// TestTooFewPairs verifies every family rejects lists below its minimum
func TestTooFewPairs(t *testing.T) {
	tags := testTags()
	for _, f := range Families() {
		short := tags[:f.MinPairs()-1]
		r := Compute(short, short, f)
		assert.False(t, r.Valid(), f.String())
		assert.Equal(t, f, r.Type())
		assert.Nil(t, r.Matrix())
		assert.Empty(t, r.Residuals())
	}
}

// TestMismatchedLengths verifies unequal lists are rejected
func TestMismatchedLengths(t *testing.T) {
	tags := testTags()
	r := Compute(tags, tags[:len(tags)-1], Rigid)
	assert.False(t, r.Valid())
}

// TestUnknownFamily verifies out-of-range families are rejected
func TestUnknownFamily(t *testing.T) {
	tags := testTags()
	r := Compute(tags, tags, Family(42))
	assert.False(t, r.Valid())
}

// TestRigidTranslation verifies a pure offset is recovered exactly
func TestRigidTranslation(t *testing.T) {
	target := testTags()
	offset := r3.Vector{X: 12.5, Y: -7.25, Z: 3}
	source := make([]r3.Vector, len(target))
	for i, a := range target {
		source[i] = a.Sub(offset)
	}

	r := Compute(target, source, Rigid)
	require.True(t, r.Valid())
	assertMaps(t, r, target, source, 1e-4)
	assert.Less(t, r.RMS(), 1e-6)
	assert.Len(t, r.Residuals(), len(target))

	assert.InDelta(t, offset.X, r.Matrix().At(0, 3), 1e-6)
	assert.InDelta(t, offset.Y, r.Matrix().At(1, 3), 1e-6)
	assert.InDelta(t, offset.Z, r.Matrix().At(2, 3), 1e-6)
}

// TestRigidRotation verifies a rotation about Z is undone
func TestRigidRotation(t *testing.T) {
	target := testTags()
	rot := geometry.Homogeneous(eulerRotation(0, 0, math.Pi/6), r3.Vector{})
	source := mapPoints(rot, target)

	r := Compute(target, source, Rigid)
	require.True(t, r.Valid())
	assertMaps(t, r, target, source, 1e-3)
	assert.InDelta(t, 1.0, mat.Det(geometry.LinearBlock(r.Matrix())), 1e-9)
}

// TestSimilarity verifies rotation, uniform scale and translation together
func TestSimilarity(t *testing.T) {
	source := testTags()
	linear := eulerRotation(0.2, -0.3, 0.5)
	linear.Scale(1.7, linear)
	truth := geometry.Homogeneous(linear, r3.Vector{X: 5, Y: -3, Z: 12})
	target := mapPoints(truth, source)

	r := Compute(target, source, Similarity)
	require.True(t, r.Valid())
	assert.Less(t, r.RMS(), 1e-2)
	assert.InDelta(t, math.Pow(1.7, 3), mat.Det(geometry.LinearBlock(r.Matrix())), 1e-4)
}

// TestRigidIgnoresScale verifies Rigid keeps a unit determinant when the
// data carries a scale it cannot represent
func TestRigidIgnoresScale(t *testing.T) {
	source := testTags()
	linear := eulerRotation(0.1, 0.1, 0.1)
	linear.Scale(1.3, linear)
	target := mapPoints(geometry.Homogeneous(linear, r3.Vector{}), source)

	r := Compute(target, source, Rigid)
	require.True(t, r.Valid())
	assert.InDelta(t, 1.0, mat.Det(geometry.LinearBlock(r.Matrix())), 1e-9)
	assert.Greater(t, r.RMS(), 1.0)
}

// TestNineParam verifies independent axis scales with rotation and translation
func TestNineParam(t *testing.T) {
	source := testTags()
	truth := buildMatrix(NineParam, []float64{3, -4, 5, 0.1, 0.2, -0.15, 1.2, 0.8, 1.5})
	target := mapPoints(truth, source)

	r := Compute(target, source, NineParam)
	require.True(t, r.Valid())
	assertMaps(t, r, target, source, 1e-3)
}

// TestTenParam verifies a small X/Y shear on top of the scaled model
func TestTenParam(t *testing.T) {
	source := testTags()
	truth := buildMatrix(TenParam, []float64{-2, 1, 7, 0.05, -0.1, 0.2, 1.1, 0.9, 1.05, 0.05})
	target := mapPoints(truth, source)

	r := Compute(target, source, TenParam)
	require.True(t, r.Valid())
	assertMaps(t, r, target, source, 1e-3)
}

// TestFullAffine verifies an arbitrary affine map is reproduced exactly
func TestFullAffine(t *testing.T) {
	source := testTags()
	truth := mat.NewDense(4, 4, []float64{
		1.1, 0.2, -0.3, 4,
		-0.1, 0.9, 0.25, -6,
		0.05, -0.15, 1.3, 2.5,
		0, 0, 0, 1,
	})
	target := mapPoints(truth, source)

	r := Compute(target, source, FullAffine)
	require.True(t, r.Valid())
	assert.LessOrEqual(t, r.RMS(), 1e-6)
	assert.True(t, mat.EqualApprox(truth, r.Matrix(), 1e-8))
}

// TestFullAffineCoplanar verifies the rank-deficient fallback keeps a usable fit
func TestFullAffineCoplanar(t *testing.T) {
	source := []r3.Vector{{X: 0, Y: 0}, {X: 10, Y: 0}, {X: 0, Y: 10}, {X: 10, Y: 10}, {X: 5, Y: 3}}
	target := make([]r3.Vector, len(source))
	for i, p := range source {
		target[i] = p.Add(r3.Vector{X: 1, Y: 2, Z: 3})
	}

	r := Compute(target, source, FullAffine)
	require.True(t, r.Valid())
	assert.Less(t, r.RMS(), 1e-6)
}

// TestLinearInverse verifies inverse evaluation undoes forward evaluation
func TestLinearInverse(t *testing.T) {
	source := testTags()
	truth := buildMatrix(NineParam, []float64{3, -4, 5, 0.1, 0.2, -0.15, 1.2, 0.8, 1.5})
	target := mapPoints(truth, source)

	for _, f := range []Family{Rigid, Similarity, NineParam, FullAffine} {
		r := Compute(target, source, f)
		require.True(t, r.Valid())
		p := r3.Vector{X: 3, Y: -9, Z: 14}
		assert.InDelta(t, 0.0, r.Inverse(r.Forward(p)).Distance(p), 1e-9, f.String())
	}
}

// TestTPSIdentity verifies identical lists produce the identity warp
func TestTPSIdentity(t *testing.T) {
	tags := testTags()
	r := Compute(tags, tags, ThinPlateSpline)
	require.True(t, r.Valid())
	assert.Less(t, r.RMS(), 1e-6)
	assert.Len(t, r.TPSWeights(), len(tags)+4)
	assert.Len(t, r.TPSPoints(), len(tags))

	for _, p := range tags {
		assert.InDelta(t, 0.0, r.Forward(p).Distance(p), 1e-6)
	}
	assert.True(t, mat.EqualApprox(geometry.Identity(), r.Matrix(), 1e-9))
}

func warpTags(points []r3.Vector) []r3.Vector {
	out := make([]r3.Vector, len(points))
	for i, p := range points {
		out[i] = r3.Vector{
			X: p.X + 1.5*math.Sin(p.Y/15),
			Y: p.Y + 1.0*math.Cos(p.Z/20),
			Z: p.Z + 0.8*math.Sin(p.X/10),
		}
	}
	return out
}

// TestTPSInterpolates verifies every training pair is reproduced
func TestTPSInterpolates(t *testing.T) {
	target := testTags()
	source := warpTags(target)

	r := Compute(target, source, ThinPlateSpline)
	require.True(t, r.Valid())
	assertMaps(t, r, target, source, 1e-3)
	assert.Less(t, r.RMS(), 1e-6)
}

// TestTPSInverse verifies Newton-Raphson inversion recovers source points
func TestTPSInverse(t *testing.T) {
	target := testTags()
	source := warpTags(target)
	r := Compute(target, source, ThinPlateSpline)
	require.True(t, r.Valid())

	for i, a := range target {
		q, converged := r.InverseWithStatus(a, DefaultInverseOptions())
		assert.True(t, converged, "pair %d", i)
		assert.InDelta(t, 0.0, q.Distance(source[i]), 1e-4, "pair %d", i)
	}

	// Off-sample point round trip.
	p := r3.Vector{X: 4, Y: 2, Z: -1}
	assert.InDelta(t, 0.0, r.Inverse(r.Forward(p)).Distance(p), 1e-4)
}

// TestTPSInverseIterationCap verifies a zero iteration budget returns the seed
func TestTPSInverseIterationCap(t *testing.T) {
	target := testTags()
	source := warpTags(target)
	r := Compute(target, source, ThinPlateSpline)
	require.True(t, r.Valid())

	opts := DefaultInverseOptions()
	opts.MaxIterations = 0
	q, _ := r.InverseWithStatus(target[0], opts)

	inv, ok := geometry.Invert(r.Matrix())
	require.True(t, ok)
	assert.InDelta(t, 0.0, q.Distance(geometry.Apply(inv, target[0])), 1e-9)
}

// TestTPSDuplicateSource verifies coincident kernel centres fall back to
// least squares instead of failing
func TestTPSDuplicateSource(t *testing.T) {
	source := append(testTags(), testTags()[0])
	target := append(testTags(), testTags()[0])

	r := Compute(target, source, ThinPlateSpline)
	require.True(t, r.Valid())
	assert.False(t, math.IsNaN(r.RMS()))
	assert.Less(t, r.RMS(), 1e-3)
}

// TestInvalidEvaluation verifies an invalid result leaves points unchanged
func TestInvalidEvaluation(t *testing.T) {
	r := Compute(nil, nil, Rigid)
	p := r3.Vector{X: 1, Y: 2, Z: 3}
	assert.Equal(t, p, r.Forward(p))
	q, ok := r.InverseWithStatus(p, DefaultInverseOptions())
	assert.Equal(t, p, q)
	assert.False(t, ok)
}

// TestResultImmutable verifies accessors hand out copies
func TestResultImmutable(t *testing.T) {
	tags := testTags()
	r := Compute(tags, tags, ThinPlateSpline)
	require.True(t, r.Valid())

	r.Matrix().Set(0, 0, 99)
	r.Residuals()[0] = 99
	r.TPSWeights()[0] = r3.Vector{X: 99}
	r.TPSPoints()[0] = r3.Vector{X: 99}

	assert.InDelta(t, 1.0, r.Matrix().At(0, 0), 1e-9)
	assert.NotEqual(t, 99.0, r.Residuals()[0])
	assert.NotEqual(t, r3.Vector{X: 99}, r.TPSWeights()[0])
	assert.Equal(t, tags[0], r.TPSPoints()[0])
}

// TestWorstPair verifies the worst residual is reported
func TestWorstPair(t *testing.T) {
	target := testTags()
	source := testTags()
	source[3] = source[3].Add(r3.Vector{X: 5})

	r := Compute(target, source, Rigid)
	require.True(t, r.Valid())
	i, d := r.WorstPair()
	assert.Equal(t, 3, i)
	assert.Greater(t, d, 1.0)

	i, _ = Compute(nil, nil, Rigid).WorstPair()
	assert.Equal(t, -1, i)
}

// TestEvaluator verifies cached inverse evaluation matches Result
func TestEvaluator(t *testing.T) {
	source := testTags()
	truth := buildMatrix(Similarity, []float64{1, 2, 3, 0.3, 0.1, -0.2, 1.4})
	target := mapPoints(truth, source)

	r := Compute(target, source, Similarity)
	e := NewEvaluator(r, DefaultInverseOptions())
	assert.Equal(t, r.Type(), e.Result().Type())

	p := r3.Vector{X: -7, Y: 8, Z: 2}
	q, ok := e.Inverse(e.Forward(p))
	assert.True(t, ok)
	assert.InDelta(t, 0.0, q.Distance(p), 1e-9)

	tps := NewEvaluator(Compute(target, warpTags(target), ThinPlateSpline), DefaultInverseOptions())
	q, ok = tps.Inverse(target[2])
	assert.True(t, ok)
	assert.InDelta(t, 0.0, tps.Forward(q).Distance(target[2]), 1e-5)
}
