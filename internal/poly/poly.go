// Package poly fits and evaluates bivariate polynomials z = f(x, y).
package poly

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Kind selects the set of monomials a polynomial is built from.
type Kind int

const (
	// Linear uses 1, x, y.
	Linear Kind = iota
	// BiLinear adds xy.
	BiLinear
	// Quadratic uses all monomials of total degree <= 2.
	Quadratic
	// BiQuadratic uses x^i y^j for i, j <= 2.
	BiQuadratic
	// Cubic uses all monomials of total degree <= 3.
	Cubic
	// BiCubic uses x^i y^j for i, j <= 3.
	BiCubic
)

// Kinds lists all kinds in order of increasing number of terms.
var Kinds = []Kind{Linear, BiLinear, Quadratic, BiQuadratic, Cubic, BiCubic}

// ErrTooFewPoints is returned when a fit has fewer samples than terms.
var ErrTooFewPoints = errors.New("poly: too few points")

// exponents holds the (i, j) powers of x^i y^j per kind.
var exponents = map[Kind][][2]int{
	Linear:      {{0, 0}, {1, 0}, {0, 1}},
	BiLinear:    {{0, 0}, {1, 0}, {0, 1}, {1, 1}},
	Quadratic:   {{0, 0}, {1, 0}, {0, 1}, {2, 0}, {1, 1}, {0, 2}},
	BiQuadratic: grid(2),
	Cubic: {{0, 0}, {1, 0}, {0, 1}, {2, 0}, {1, 1}, {0, 2},
		{3, 0}, {2, 1}, {1, 2}, {0, 3}},
	BiCubic: grid(3),
}

func grid(order int) [][2]int {
	var e [][2]int
	for i := 0; i <= order; i++ {
		for j := 0; j <= order; j++ {
			e = append(e, [2]int{i, j})
		}
	}
	return e
}

func (k Kind) String() string {
	switch k {
	case Linear:
		return "linear"
	case BiLinear:
		return "bilinear"
	case Quadratic:
		return "quadratic"
	case BiQuadratic:
		return "biquadratic"
	case Cubic:
		return "cubic"
	case BiCubic:
		return "bicubic"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// MinPoints returns the number of samples needed to fit a polynomial of the given kind.
func MinPoints(k Kind) int {
	return len(exponents[k])
}

// Polynomial is a fitted bivariate polynomial. It is immutable and safe for
// concurrent evaluation.
type Polynomial struct {
	kind   Kind
	coeffs []float64
	rmse   float64
	maxErr float64
}

// Fit computes the least-squares polynomial of the given kind through the
// samples (xs[i], ys[i]) -> zs[i]. Singular or numerically ill-conditioned
// systems are reported as errors.
func Fit(kind Kind, xs, ys, zs []float64) (*Polynomial, error) {
	terms, ok := exponents[kind]
	if !ok {
		return nil, fmt.Errorf("poly: unknown kind %d", int(kind))
	}
	n := len(zs)
	if len(xs) != n || len(ys) != n {
		return nil, fmt.Errorf("poly: sample length mismatch (%d, %d, %d)", len(xs), len(ys), n)
	}
	if n < len(terms) {
		return nil, fmt.Errorf("%w: %s needs %d, have %d", ErrTooFewPoints, kind, len(terms), n)
	}

	m := len(terms)
	design := mat.NewDense(n, m, nil)
	row := make([]float64, m)
	for i := 0; i < n; i++ {
		evalTerms(terms, xs[i], ys[i], row)
		design.SetRow(i, row)
	}

	var c mat.VecDense
	if err := c.SolveVec(design, mat.NewVecDense(n, append([]float64(nil), zs...))); err != nil {
		return nil, fmt.Errorf("poly: fitting %s: %w", kind, err)
	}

	p := &Polynomial{kind: kind, coeffs: make([]float64, m)}
	for j := 0; j < m; j++ {
		p.coeffs[j] = c.AtVec(j)
	}

	residuals := make([]float64, n)
	for i := 0; i < n; i++ {
		residuals[i] = p.Eval(xs[i], ys[i]) - zs[i]
	}
	p.rmse = floats.Norm(residuals, 2) / math.Sqrt(float64(n))
	p.maxErr = floats.Norm(residuals, math.Inf(1))
	if math.IsNaN(p.rmse) || math.IsNaN(p.maxErr) {
		return nil, fmt.Errorf("poly: fitting %s: non-finite residuals", kind)
	}
	return p, nil
}

// Eval evaluates the polynomial at (x, y).
func (p *Polynomial) Eval(x, y float64) float64 {
	terms := exponents[p.kind]
	var z float64
	for j, e := range terms {
		z += p.coeffs[j] * pow(x, e[0]) * pow(y, e[1])
	}
	return z
}

// Kind returns the monomial set of the polynomial.
func (p *Polynomial) Kind() Kind { return p.kind }

// NumTerms returns the number of coefficients.
func (p *Polynomial) NumTerms() int { return len(p.coeffs) }

// Coefficients returns a copy of the coefficients in monomial order.
func (p *Polynomial) Coefficients() []float64 {
	return append([]float64(nil), p.coeffs...)
}

// RMSE returns the root mean square residual of the fit.
func (p *Polynomial) RMSE() float64 { return p.rmse }

// MaxError returns the largest absolute residual of the fit.
func (p *Polynomial) MaxError() float64 { return p.maxErr }

func evalTerms(terms [][2]int, x, y float64, dst []float64) {
	for j, e := range terms {
		dst[j] = pow(x, e[0]) * pow(y, e[1])
	}
}

func pow(v float64, n int) float64 {
	switch n {
	case 0:
		return 1
	case 1:
		return v
	case 2:
		return v * v
	default:
		return v * v * v
	}
}
