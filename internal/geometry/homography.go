package geometry

import (
	"math"

	apperrors "github.com/gmsas95/ddtscan/internal/errors"
)

// Homography is a row-major 3x3 projective transform with H[8] = 1.
type Homography [9]float64

// Apply maps p through the transform. ok is false for points on the
// horizon line.
func (h Homography) Apply(p Point) (Point, bool) {
	w := h[6]*p.X + h[7]*p.Y + h[8]
	if math.Abs(w) < 1e-12 {
		return Point{}, false
	}
	return Point{
		X: (h[0]*p.X + h[1]*p.Y + h[2]) / w,
		Y: (h[3]*p.X + h[4]*p.Y + h[5]) / w,
	}, true
}

// SolveHomography finds the transform taking each from[i] to to[i].
func SolveHomography(from, to [4]Point) (Homography, error) {
	var a [8][9]float64
	for i := 0; i < 4; i++ {
		x, y := from[i].X, from[i].Y
		u, v := to[i].X, to[i].Y
		a[2*i] = [9]float64{x, y, 1, 0, 0, 0, -x * u, -y * u, u}
		a[2*i+1] = [9]float64{0, 0, 0, x, y, 1, -x * v, -y * v, v}
	}

	sol, err := solveLinear(a)
	if err != nil {
		return Homography{}, err
	}

	var h Homography
	copy(h[:8], sol[:])
	h[8] = 1
	return h, nil
}

// solveLinear runs Gaussian elimination with partial pivoting on an 8x8
// system in augmented form.
func solveLinear(a [8][9]float64) ([8]float64, error) {
	const n = 8
	var x [8]float64

	for col := 0; col < n; col++ {
		pivot := col
		for r := col + 1; r < n; r++ {
			if math.Abs(a[r][col]) > math.Abs(a[pivot][col]) {
				pivot = r
			}
		}
		if math.Abs(a[pivot][col]) < 1e-10 {
			return x, apperrors.ErrSingularMatrix
		}
		a[col], a[pivot] = a[pivot], a[col]

		for r := col + 1; r < n; r++ {
			f := a[r][col] / a[col][col]
			if f == 0 {
				continue
			}
			for c := col; c <= n; c++ {
				a[r][c] -= f * a[col][c]
			}
		}
	}

	for r := n - 1; r >= 0; r-- {
		sum := a[r][n]
		for c := r + 1; c < n; c++ {
			sum -= a[r][c] * x[c]
		}
		x[r] = sum / a[r][r]
	}
	return x, nil
}
