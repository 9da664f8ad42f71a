package worldgen

func FloorDiv(a, b int) int {
	// b > 0
	q := a / b
	r := a % b
	if r < 0 {
		q--
	}
	return q
}

func mix64(z uint64) uint64 {
	z += 0x9e3779b97f4a7c15
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}

// Hash mixes a world seed with a single lattice key.
func Hash(seed int64, key int64) uint64 {
	return mix64(uint64(seed) ^ (uint64(key) * 0x9e3779b97f4a7c15))
}

// Hash2 mixes a seed with two independent coordinates. Used where the
// prime-folded key of Hash would be too coarse (weather zone placement and
// drift).
func Hash2(seed int64, x, y int) uint64 {
	ux := uint64(uint32(int32(x)))
	uy := uint64(uint32(int32(y)))
	v := uint64(seed) ^ (ux * 0x9e3779b97f4a7c15) ^ (uy * 0xbf58476d1ce4e5b9)
	return mix64(v)
}
