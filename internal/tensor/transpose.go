package tensor

import "fmt"

// PermuteShape returns the shape with out[i] = shape[perm[i]].
func PermuteShape(shape Shape, perm []int) (Shape, error) {
	if len(perm) != len(shape) {
		return nil, fmt.Errorf("permutation %v does not match rank %d", perm, len(shape))
	}
	seen := make([]bool, len(shape))
	out := make(Shape, len(shape))
	for i, p := range perm {
		if p < 0 || p >= len(shape) || seen[p] {
			return nil, fmt.Errorf("invalid permutation %v", perm)
		}
		seen[p] = true
		out[i] = shape[p]
	}
	return out, nil
}

// TransposeBytes permutes the axes of a row-major buffer of elemSize-byte
// elements. The result has shape PermuteShape(shape, perm).
func TransposeBytes(src []byte, shape Shape, perm []int, elemSize int) ([]byte, error) {
	outShape, err := PermuteShape(shape, perm)
	if err != nil {
		return nil, err
	}
	n := shape.NumElements()
	if elemSize <= 0 || len(src) != n*elemSize {
		return nil, fmt.Errorf("buffer of %d bytes does not hold %d elements of %d bytes", len(src), n, elemSize)
	}

	dst := make([]byte, len(src))
	inStrides := shape.ComputeStrides()
	rank := len(outShape)
	coord := make([]int, rank)

	for o := 0; o < n; o++ {
		in := 0
		for i := 0; i < rank; i++ {
			in += coord[i] * inStrides[perm[i]]
		}
		copy(dst[o*elemSize:(o+1)*elemSize], src[in*elemSize:(in+1)*elemSize])

		// Advance the row-major output coordinate.
		for i := rank - 1; i >= 0; i-- {
			coord[i]++
			if coord[i] < outShape[i] {
				break
			}
			coord[i] = 0
		}
	}
	return dst, nil
}

// InversePermutation returns q such that q[perm[i]] = i.
func InversePermutation(perm []int) []int {
	inv := make([]int, len(perm))
	for i, p := range perm {
		inv[p] = i
	}
	return inv
}
