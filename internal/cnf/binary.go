package cnf

// binaryDigits converts a non-negative integer to its binary representation
// as a most-significant-first slice over the alphabet {1, -1}, where -1
// stands for a zero bit. The empty slice represents zero.
func binaryDigits(value int) []int {
	var out []int
	for value != 0 {
		if value%2 == 0 {
			out = append(out, -1)
		} else {
			out = append(out, 1)
		}
		value /= 2
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}
