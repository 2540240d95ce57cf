package solver

import (
	"math"

	"github.com/chazu/tenon/pkg/sketch"
)

// problem is the compiled system: m residual rows over nparams unknowns.
type problem struct {
	eqs     []equation
	m       int
	nparams int
	rowOf   []int   // first residual row of each equation
	touches [][]int // equation indices per parameter
}

func newProblem(eqs []equation, nparams int) *problem {
	p := &problem{eqs: eqs, nparams: nparams, touches: make([][]int, nparams)}
	for i, eq := range eqs {
		p.rowOf = append(p.rowOf, p.m)
		p.m += eq.n
		for _, j := range eq.params {
			p.touches[j] = append(p.touches[j], i)
		}
	}
	return p
}

func (p *problem) residuals(x []float64) []float64 {
	out := make([]float64, p.m)
	for i, eq := range p.eqs {
		eq.eval(x, out[p.rowOf[i]:p.rowOf[i]+eq.n])
	}
	return out
}

// jacobian returns the row-major m×n Jacobian by central differences.
// Only equations that read parameter j are re-evaluated for column j.
func (p *problem) jacobian(x []float64) []float64 {
	n := p.nparams
	jac := make([]float64, p.m*n)
	plus := make([]float64, 2)
	minus := make([]float64, 2) // no constraint contributes more than two rows
	for j := 0; j < n; j++ {
		if len(p.touches[j]) == 0 {
			continue
		}
		h := 1e-6 * math.Max(1, math.Abs(x[j]))
		orig := x[j]
		for _, i := range p.touches[j] {
			eq := p.eqs[i]
			x[j] = orig + h
			eq.eval(x, plus[:eq.n])
			x[j] = orig - h
			eq.eval(x, minus[:eq.n])
			for k := 0; k < eq.n; k++ {
				jac[(p.rowOf[i]+k)*n+j] = (plus[k] - minus[k]) / (2 * h)
			}
		}
		x[j] = orig
	}
	return jac
}

// rank runs modified Gram–Schmidt over the Jacobian rows in constraint
// order. A constraint is dependent if any of its rows reduces to (near)
// zero against the rows before it.
func (p *problem) rank(x []float64) (int, []sketch.ConstraintID) {
	n := p.nparams
	if n == 0 || p.m == 0 {
		return 0, nil
	}
	jac := p.jacobian(x)
	var basis [][]float64
	var dependent []sketch.ConstraintID
	for i, eq := range p.eqs {
		dep := false
		for k := 0; k < eq.n; k++ {
			r := p.rowOf[i] + k
			v := make([]float64, n)
			copy(v, jac[r*n:(r+1)*n])
			norm0 := norm(v)
			for _, b := range basis {
				d := dot(v, b)
				for c := range v {
					v[c] -= d * b[c]
				}
			}
			nv := norm(v)
			if nv <= rankTolerance*math.Max(1, norm0) {
				dep = true
				continue
			}
			for c := range v {
				v[c] /= nv
			}
			basis = append(basis, v)
		}
		if dep {
			dependent = append(dependent, eq.id)
		}
	}
	return len(basis), dependent
}

// normalEquations returns JᵀJ (row-major n×n) and Jᵀr.
func normalEquations(jac, res []float64, m, n int) ([]float64, []float64) {
	a := make([]float64, n*n)
	g := make([]float64, n)
	for r := 0; r < m; r++ {
		row := jac[r*n : (r+1)*n]
		for i, ji := range row {
			if ji == 0 {
				continue
			}
			g[i] += ji * res[r]
			for k, jk := range row {
				a[i*n+k] += ji * jk
			}
		}
	}
	return a, g
}

// solveSPD solves a·x = b for symmetric positive definite a by Cholesky
// factorization. It reports false if a is not numerically positive definite.
func solveSPD(a, b []float64, n int) ([]float64, bool) {
	l := make([]float64, n*n)
	for i := 0; i < n; i++ {
		for j := 0; j <= i; j++ {
			sum := a[i*n+j]
			for k := 0; k < j; k++ {
				sum -= l[i*n+k] * l[j*n+k]
			}
			if i == j {
				if sum <= 0 || math.IsNaN(sum) {
					return nil, false
				}
				l[i*n+i] = math.Sqrt(sum)
			} else {
				l[i*n+j] = sum / l[j*n+j]
			}
		}
	}
	y := make([]float64, n)
	for i := 0; i < n; i++ {
		sum := b[i]
		for k := 0; k < i; k++ {
			sum -= l[i*n+k] * y[k]
		}
		y[i] = sum / l[i*n+i]
	}
	x := make([]float64, n)
	for i := n - 1; i >= 0; i-- {
		sum := y[i]
		for k := i + 1; k < n; k++ {
			sum -= l[k*n+i] * x[k]
		}
		x[i] = sum / l[i*n+i]
	}
	return x, true
}

func dot(a, b []float64) float64 {
	s := 0.0
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}

func norm(v []float64) float64 { return math.Sqrt(dot(v, v)) }

func sumSquares(v []float64) float64 { return dot(v, v) }

func maxAbs(v []float64) float64 {
	m := 0.0
	for _, x := range v {
		if a := math.Abs(x); a > m {
			m = a
		}
	}
	return m
}
