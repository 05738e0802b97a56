package cpu

import "math/rand/v2"

// A pixelRNG produces a reproducible random stream for each (seed, frame,
// pixel) triplet. Reseeding reuses the underlying generator so no allocations
// take place while tracing.
type pixelRNG struct {
	src *rand.PCG
	rng *rand.Rand
}

func newPixelRNG() *pixelRNG {
	src := rand.NewPCG(0, 0)
	return &pixelRNG{
		src: src,
		rng: rand.New(src),
	}
}

// Reset the stream for pixel (x, y) of the given frame.
func (r *pixelRNG) seed(seed, frame, x, y uint32) *rand.Rand {
	r.src.Seed(
		mix64(uint64(seed)<<32|uint64(frame)),
		mix64(uint64(y)<<32|uint64(x)),
	)
	return r.rng
}

// The splitmix64 finalizer.
func mix64(v uint64) uint64 {
	v ^= v >> 30
	v *= 0xbf58476d1ce4e5b9
	v ^= v >> 27
	v *= 0x94d049bb133111eb
	v ^= v >> 31
	return v
}
