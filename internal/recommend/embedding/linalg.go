// BasketRec - Item Similarity Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/basketrec

package embedding

import (
	"math"
	"sort"
	"sync"
)

// Dense matrices are row-major [][]float64 over one backing array.

func newDense(rows, cols int) [][]float64 {
	backing := make([]float64, rows*cols)
	m := make([][]float64, rows)
	for i := range m {
		m[i] = backing[i*cols : (i+1)*cols]
	}
	return m
}

// mulParallel returns a·b. Rows of the result are split into contiguous
// chunks, one per worker. Each row is summed in a fixed order, so the
// result does not depend on the number of workers.
func mulParallel(a, b [][]float64, workers int) [][]float64 {
	rows := len(a)
	if rows == 0 {
		return nil
	}
	inner := len(b)
	cols := 0
	if inner > 0 {
		cols = len(b[0])
	}
	out := newDense(rows, cols)

	if workers < 1 {
		workers = 1
	}
	chunkSize := (rows + workers - 1) / workers

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		start := w * chunkSize
		end := start + chunkSize
		if end > rows {
			end = rows
		}
		if start >= end {
			break
		}

		wg.Add(1)
		go func(rStart, rEnd int) {
			defer wg.Done()
			for i := rStart; i < rEnd; i++ {
				row := out[i]
				for k, aik := range a[i] {
					if aik == 0 {
						continue
					}
					bk := b[k]
					for j := range row {
						row[j] += aik * bk[j]
					}
				}
			}
		}(start, end)
	}
	wg.Wait()
	return out
}

// orthonormalize replaces the columns of m with an orthonormal basis of
// their span using modified Gram-Schmidt with one reorthogonalization
// pass. Columns that are numerically dependent on earlier ones become zero.
func orthonormalize(m [][]float64) {
	if len(m) == 0 {
		return
	}
	cols := len(m[0])
	for j := 0; j < cols; j++ {
		for pass := 0; pass < 2; pass++ {
			for k := 0; k < j; k++ {
				var d float64
				for i := range m {
					d += m[i][k] * m[i][j]
				}
				if d == 0 {
					continue
				}
				for i := range m {
					m[i][j] -= d * m[i][k]
				}
			}
		}
		var norm float64
		for i := range m {
			norm += m[i][j] * m[i][j]
		}
		norm = math.Sqrt(norm)
		if norm < 1e-10 {
			for i := range m {
				m[i][j] = 0
			}
			continue
		}
		for i := range m {
			m[i][j] /= norm
		}
	}
}

// gram returns cᵀ·c.
func gram(c [][]float64) [][]float64 {
	if len(c) == 0 {
		return nil
	}
	cols := len(c[0])
	g := newDense(cols, cols)
	for _, row := range c {
		for p := 0; p < cols; p++ {
			if row[p] == 0 {
				continue
			}
			for q := p; q < cols; q++ {
				g[p][q] += row[p] * row[q]
			}
		}
	}
	for p := 0; p < cols; p++ {
		for q := p + 1; q < cols; q++ {
			g[q][p] = g[p][q]
		}
	}
	return g
}

const (
	jacobiMaxSweeps = 100
	jacobiTolerance = 1e-12
)

// jacobiEigen diagonalizes the symmetric matrix a with cyclic Jacobi
// rotations. It returns the eigenvalues in descending order and the
// matching eigenvectors as the columns of vecs. a is not modified.
func jacobiEigen(a [][]float64) (vals []float64, vecs [][]float64) {
	n := len(a)
	m := newDense(n, n)
	v := newDense(n, n)
	var scale float64
	for i := range a {
		copy(m[i], a[i])
		v[i][i] = 1
		for j := range a[i] {
			scale += a[i][j] * a[i][j]
		}
	}

	for sweep := 0; sweep < jacobiMaxSweeps; sweep++ {
		var off float64
		for p := 0; p < n; p++ {
			for q := p + 1; q < n; q++ {
				off += m[p][q] * m[p][q]
			}
		}
		if off <= jacobiTolerance*jacobiTolerance*scale || off == 0 {
			break
		}

		for p := 0; p < n-1; p++ {
			for q := p + 1; q < n; q++ {
				apq := m[p][q]
				if apq == 0 {
					continue
				}
				theta := (m[q][q] - m[p][p]) / (2 * apq)
				t := 1 / (math.Abs(theta) + math.Sqrt(theta*theta+1))
				if theta < 0 {
					t = -t
				}
				c := 1 / math.Sqrt(t*t+1)
				s := t * c

				for k := 0; k < n; k++ {
					mkp, mkq := m[k][p], m[k][q]
					m[k][p] = c*mkp - s*mkq
					m[k][q] = s*mkp + c*mkq
				}
				for k := 0; k < n; k++ {
					mpk, mqk := m[p][k], m[q][k]
					m[p][k] = c*mpk - s*mqk
					m[q][k] = s*mpk + c*mqk
				}
				for k := 0; k < n; k++ {
					vkp, vkq := v[k][p], v[k][q]
					v[k][p] = c*vkp - s*vkq
					v[k][q] = s*vkp + c*vkq
				}
			}
		}
	}

	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(x, y int) bool {
		return m[order[x]][order[x]] > m[order[y]][order[y]]
	})

	vals = make([]float64, n)
	vecs = newDense(n, n)
	for j, src := range order {
		vals[j] = m[src][src]
		for i := 0; i < n; i++ {
			vecs[i][j] = v[i][src]
		}
	}
	return vals, vecs
}

// fixSigns flips each column of u so that its largest-magnitude entry is
// positive. The first row wins ties.
func fixSigns(u [][]float64) {
	if len(u) == 0 {
		return
	}
	for j := range u[0] {
		best, bestAbs := 0, -1.0
		for i := range u {
			if a := math.Abs(u[i][j]); a > bestAbs {
				best, bestAbs = i, a
			}
		}
		if u[best][j] < 0 {
			for i := range u {
				u[i][j] = -u[i][j]
			}
		}
	}
}
