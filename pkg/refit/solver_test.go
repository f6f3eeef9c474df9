package refit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

// denseApplier wraps an explicit matrix; only tests can afford one.
type denseApplier struct {
	m mat.Matrix
}

func (d denseApplier) Apply(dst, x *mat.Dense) { dst.Mul(d.m, x) }

// zeroApplier maps everything to zero, which makes the small matrix
// singular on the first iteration.
type zeroApplier struct{}

func (zeroApplier) Apply(dst, x *mat.Dense) { dst.Zero() }

// chainApplier applies the 1-D second-difference operator without
// materializing it. Its condition number grows as n^2, so an
// unpreconditioned Krylov solve needs on the order of n iterations.
type chainApplier struct{ n int }

func (c chainApplier) Apply(dst, x *mat.Dense) {
	_, cols := x.Dims()
	for j := 0; j < cols; j++ {
		for i := 0; i < c.n; i++ {
			v := 2 * x.At(i, j)
			if i > 0 {
				v -= x.At(i-1, j)
			}
			if i < c.n-1 {
				v -= x.At(i+1, j)
			}
			dst.Set(i, j, v)
		}
	}
}

func spdMatrix(n int) *mat.Dense {
	// M*M^T + n*I is symmetric positive definite for any M.
	m := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			m.Set(i, j, float64((i*7+j*3)%5)-2)
		}
	}
	var a mat.Dense
	a.Mul(m, m.T())
	for i := 0; i < n; i++ {
		a.Set(i, i, a.At(i, i)+float64(n))
	}
	return &a
}

func TestSolverKnownSolution(t *testing.T) {
	const n, nsig = 8, 2
	a := spdMatrix(n)

	b := mat.NewDense(n, nsig, nil)
	for i := 0; i < nsig; i++ {
		b.Set(n-nsig+i, i, 1)
	}
	var want mat.Dense
	require.NoError(t, want.Solve(a, b))

	stats := &Stats{}
	solver := NewSolver(1e-10, stats)
	x := mat.NewDense(n, nsig, nil)
	converged, iters, err := solver.Solve(denseApplier{a}, x, 1)

	require.NoError(t, err)
	assert.True(t, converged)
	assert.Less(t, iters, maxIterations)
	assert.Equal(t, iters, stats.TotalIterations)

	for i := 0; i < n; i++ {
		for j := 0; j < nsig; j++ {
			assert.InDelta(t, want.At(i, j), x.At(i, j), 1e-8, "entry (%d,%d)", i, j)
		}
	}
}

func TestSolverIdentitySystem(t *testing.T) {
	const n, nsig = 6, 2
	eye := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		eye.Set(i, i, 1)
	}

	stats := &Stats{}
	solver := NewSolver(1e-12, stats)
	x := mat.NewDense(n, nsig, nil)
	converged, iters, err := solver.Solve(denseApplier{eye}, x, 1)

	require.NoError(t, err)
	assert.True(t, converged)
	assert.Equal(t, 1, iters)

	// The solution of I*x = b is b itself: ones on the constraint rows.
	for i := 0; i < nsig; i++ {
		assert.InDelta(t, 1.0, x.At(n-nsig+i, i), 1e-12)
	}
	// Both signal classes were satisfied on the only iteration.
	assert.Zero(t, stats.WireIterations)
	assert.Zero(t, stats.LightIterations)
}

func TestSolverBreakdown(t *testing.T) {
	stats := &Stats{}
	solver := NewSolver(1e-6, stats)
	x := mat.NewDense(4, 1, nil)

	converged, iters, err := solver.Solve(zeroApplier{}, x, 0)
	require.Error(t, err)
	assert.False(t, converged)
	assert.Zero(t, iters)
}

func TestSolverRestartsFromCurrentSolution(t *testing.T) {
	// A second attempt starting from the converged solution terminates
	// immediately: the residual is already below threshold.
	const n, nsig = 8, 2
	a := spdMatrix(n)
	b := mat.NewDense(n, nsig, nil)
	for i := 0; i < nsig; i++ {
		b.Set(n-nsig+i, i, 1)
	}

	solver := NewSolver(1e-8, &Stats{})
	x := mat.NewDense(n, nsig, nil)
	converged, _, err := solver.Solve(denseApplier{a}, x, 1)
	require.NoError(t, err)
	require.True(t, converged)

	converged, iters, err := solver.Solve(denseApplier{a}, x, 1)
	require.NoError(t, err)
	assert.True(t, converged)
	assert.Equal(t, 1, iters)
}

func TestSolverReportsFailureAtIterationCap(t *testing.T) {
	// A second-difference chain of this size needs several thousand
	// iterations to push its residual to 1e-10, so the attempt must run to
	// the bound and report failure. A single column keeps the small matrix
	// at 1x1, where inversion cannot break down.
	const n = 1200
	stats := &Stats{}
	solver := NewSolver(1e-10, stats)
	x := mat.NewDense(n, 1, nil)

	converged, iters, err := solver.Solve(chainApplier{n: n}, x, 1)
	require.NoError(t, err)
	assert.False(t, converged)
	assert.Equal(t, maxIterations, iters)
	assert.Equal(t, maxIterations, stats.TotalIterations)
	assert.Equal(t, maxIterations, stats.WireIterations)
	assert.Zero(t, stats.LightIterations)
}

func TestSolverAcceptsExactZeroResidual(t *testing.T) {
	// On a small well-conditioned system with an unreachable threshold the
	// recurrence keeps going until the residual rounds to exactly zero.
	// That is the exact solution, so the solve must accept it instead of
	// iterating on into a singular small matrix.
	const n = 6
	a := spdMatrix(n)
	b := mat.NewDense(n, 1, nil)
	b.Set(n-1, 0, 1)
	var want mat.Dense
	require.NoError(t, want.Solve(a, b))

	solver := NewSolver(0, &Stats{})
	x := mat.NewDense(n, 1, nil)
	converged, iters, err := solver.Solve(denseApplier{a}, x, 1)

	require.NoError(t, err)
	assert.True(t, converged)
	assert.Less(t, iters, maxIterations)
	for i := 0; i < n; i++ {
		assert.InDelta(t, want.At(i, 0), x.At(i, 0), 1e-8, "entry %d", i)
	}
}

// imbalancedMatrix couples rows 0 and n-1 into a small well-conditioned
// block holding the light constraint row, and puts a long second-difference
// chain with the wire constraint row on the rows in between. The two blocks
// touch no common rows, so the two signal columns solve independent systems
// of very different difficulty.
func imbalancedMatrix(n int) *mat.Dense {
	a := mat.NewDense(n, n, nil)
	for i := 1; i <= n-2; i++ {
		a.Set(i, i, 2)
		if i > 1 {
			a.Set(i, i-1, -1)
		}
		if i < n-2 {
			a.Set(i, i+1, -1)
		}
	}
	a.Set(0, 0, 3)
	a.Set(0, n-1, 1)
	a.Set(n-1, 0, 1)
	a.Set(n-1, n-1, 2)
	return a
}

func TestSolverWaitsForWorstColumn(t *testing.T) {
	// The light column's system is solved within a couple of iterations;
	// the wire column's chain is nowhere near done. The solve must not
	// report convergence while any column is still above threshold, and
	// the per-class tallies record that only the wire column held it up.
	const n = 400
	a := imbalancedMatrix(n)
	stats := &Stats{}
	solver := NewSolver(1e-4, stats)
	x := mat.NewDense(n, 2, nil)

	converged, iters, _ := solver.Solve(denseApplier{a}, x, 1)
	assert.False(t, converged)
	assert.GreaterOrEqual(t, iters, 2)
	assert.Greater(t, stats.WireIterations, stats.LightIterations)
}

func TestColNormSq(t *testing.T) {
	m := mat.NewDense(3, 2, []float64{
		1, 2,
		3, 4,
		0, -2,
	})
	assert.Equal(t, 10.0, colNormSq(m, 0))
	assert.Equal(t, 24.0, colNormSq(m, 1))
}
