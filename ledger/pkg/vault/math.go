package vault

import (
	"math"
	"math/bits"
)

func addU64(a, b uint64) (uint64, error) {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return 0, ErrOverflow
	}
	return sum, nil
}

func subU64(a, b uint64) (uint64, error) {
	diff, borrow := bits.Sub64(a, b, 0)
	if borrow != 0 {
		return 0, ErrOverflow
	}
	return diff, nil
}

func incU32(n uint32) (uint32, error) {
	if n == math.MaxUint32 {
		return 0, ErrOverflow
	}
	return n + 1, nil
}
