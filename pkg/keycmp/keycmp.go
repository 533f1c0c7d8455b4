// Package keycmp implements the bounded lexicographic key order used when
// searching internal pages.
package keycmp

// KeyMaxLen is the most bytes Compare will ever examine. Keys whose common
// prefix is longer than this are ordered by length alone, so the comparator
// is only exact for keys that differ within the first KeyMaxLen bytes.
const KeyMaxLen = 256

// Compare orders a against b byte by byte as unsigned values. If no byte
// differs within the scanned range the shorter key sorts first. It returns
// -1, 0 or 1.
func Compare(a, b []byte) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}

	for i, max := 0, KeyMaxLen; n > 0 && max > 0; i, n, max = i+1, n-1, max-1 {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}

	switch {
	case len(a) == len(b):
		return 0
	case len(a) < len(b):
		return -1
	default:
		return 1
	}
}
