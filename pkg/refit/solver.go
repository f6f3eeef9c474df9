package refit

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Applier applies an implicit matrix to a set of columns packed as one
// dense matrix.
type Applier interface {
	Apply(dst, x *mat.Dense)
}

// maxIterations bounds a single solve attempt. Converging runs terminate
// far sooner; anything that reaches the bound is reported as failed.
const maxIterations = 1000

// Solver runs Block-BiCGSTAB for all signal columns of one event at once,
// following El Guennouni, Jbilou and Sadok, ETNA vol 16, 129-142 (2003).
// The auxiliary matrices are (signals x signals) -- small enough that
// direct dense inversion is the right tool. No preconditioning.
type Solver struct {
	Threshold float64
	Stats     *Stats
}

func NewSolver(threshold float64, stats *Stats) *Solver {
	return &Solver{Threshold: threshold, Stats: stats}
}

// solverState holds per-attempt workspace so an iteration allocates
// nothing.
type solverState struct {
	r, p, r0hat *mat.Dense
	v, t, work  *mat.Dense
	m1, m1inv   mat.Dense
	m2          mat.Dense
	step        mat.Dense
}

// Solve runs one attempt: it advances x until every column's squared
// residual norm is below Threshold^2, the iteration bound is hit (returns
// false), or the small matrix becomes singular (returns an error; the
// caller may retry from the current x). numWires identifies which leading
// columns belong to wire signals for the diagnostic tallies.
func (s *Solver) Solve(a Applier, x *mat.Dense, numWires int) (converged bool, iterations int, err error) {
	rows, cols := x.Dims()

	// r0 = b - A*x0. b is the identity embedded in the constraint rows:
	// column i targets 1 on its own Lagrange row and 0 everywhere else.
	st := &solverState{
		r:    mat.NewDense(rows, cols, nil),
		v:    mat.NewDense(rows, cols, nil),
		t:    mat.NewDense(rows, cols, nil),
		work: mat.NewDense(rows, cols, nil),
	}
	a.Apply(st.r, x)
	for i := 0; i < cols; i++ {
		row := rows - cols + i
		st.r.Set(row, i, st.r.At(row, i)-1)
	}
	st.r.Scale(-1, st.r)
	st.p = mat.DenseCopyOf(st.r)
	st.r0hat = mat.DenseCopyOf(st.r)

	thr2 := s.Threshold * s.Threshold
	for iter := 0; iter < maxIterations; iter++ {
		if err := s.iterate(a, x, st); err != nil {
			return false, iter, err
		}
		iterations = iter + 1

		worst := 0.0
		wireAbove, lightAbove := false, false
		for col := 0; col < cols; col++ {
			norm := colNormSq(st.r, col)
			if math.IsNaN(norm) {
				norm = math.Inf(1)
			}
			if norm > worst {
				worst = norm
			}
			if norm > thr2 {
				if col < numWires {
					wireAbove = true
				} else {
					lightAbove = true
				}
			}
		}
		s.Stats.addIteration(wireAbove, lightAbove)

		// An exactly zero residual is the exact solution; one more step
		// would hand a zero matrix to the M1 inversion. Accept it even
		// when the threshold itself is unreachable.
		if worst < thr2 || worst == 0 {
			return true, iterations, nil
		}
	}
	return false, iterations, nil
}

// iterate performs one Block-BiCGSTAB step, updating x, r and p in place.
func (s *Solver) iterate(a Applier, x *mat.Dense, st *solverState) error {
	// V = A*P.
	a.Apply(st.v, st.p)

	// M1 = r0hat^T * V, inverted once and reused for alpha and beta.
	st.m1.Mul(st.r0hat.T(), st.v)
	if err := st.m1inv.Inverse(&st.m1); err != nil {
		return fmt.Errorf("refit: solver breakdown: %w", err)
	}

	// alpha = M1^-1 * (r0hat^T * R); R <- R - V*alpha.
	st.m2.Mul(st.r0hat.T(), st.r)
	st.step.Mul(&st.m1inv, &st.m2)
	st.work.Mul(st.v, &st.step)
	st.r.Sub(st.r, st.work)

	// T = A*R; omega is a single scalar shared by all columns. A residual
	// that is already exactly zero would give 0/0 here, so pin omega to
	// zero in that case and let the convergence test pick it up.
	a.Apply(st.t, st.r)
	omega := 0.0
	if tt := floats.Dot(rawData(st.t), rawData(st.t)); tt > 0 {
		omega = floats.Dot(rawData(st.t), rawData(st.r)) / tt
	}

	// X <- X + P*alpha + omega*R.
	st.work.Mul(st.p, &st.step)
	x.Add(x, st.work)
	floats.AddScaled(rawData(x), omega, rawData(st.r))

	// R <- R - omega*T.
	floats.AddScaled(rawData(st.r), -omega, rawData(st.t))

	// beta = M1^-1 * (-r0hat^T * T).
	st.m2.Mul(st.r0hat.T(), st.t)
	st.m2.Scale(-1, &st.m2)
	st.step.Mul(&st.m1inv, &st.m2)

	// P <- R + (P - omega*V)*beta.
	floats.AddScaled(rawData(st.p), -omega, rawData(st.v))
	st.work.Mul(st.p, &st.step)
	st.p.Copy(st.r)
	st.p.Add(st.p, st.work)
	return nil
}

// rawData exposes the backing slice of a matrix we allocated ourselves;
// such matrices are contiguous, so element-wise vector ops apply directly.
func rawData(m *mat.Dense) []float64 {
	return m.RawMatrix().Data
}

func colNormSq(m *mat.Dense, col int) float64 {
	rm := m.RawMatrix()
	sum := 0.0
	for i := 0; i < rm.Rows; i++ {
		v := rm.Data[i*rm.Stride+col]
		sum += v * v
	}
	return sum
}
