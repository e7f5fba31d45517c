package media

import (
	"fmt"
	"image"
	"math/bits"
	"strconv"
)

// phashGrid is the edge length of the luma grid: a 17x16 grid compared
// horizontally gives 16x16 = 256 bits.
const phashGrid = 16

// differenceHash256 computes a 256-bit row-wise difference hash: the image
// is box-resampled to (phashGrid+1) x phashGrid luma cells, and each bit
// records whether a cell is brighter than its right neighbor.
func differenceHash256(img image.Image) string {
	small := resampleBox(img, phashGrid+1, phashGrid)

	luma := make([][]float64, phashGrid)
	for y := 0; y < phashGrid; y++ {
		luma[y] = make([]float64, phashGrid+1)
		for x := 0; x <= phashGrid; x++ {
			r, g, b, _ := small.At(x, y).RGBA()
			luma[y][x] = 0.299*float64(r) + 0.587*float64(g) + 0.114*float64(b)
		}
	}

	var words [4]uint64
	bit := 0
	for y := 0; y < phashGrid; y++ {
		for x := 0; x < phashGrid; x++ {
			if luma[y][x] > luma[y][x+1] {
				words[bit/64] |= 1 << uint(63-bit%64)
			}
			bit++
		}
	}

	return fmt.Sprintf("%016x%016x%016x%016x", words[0], words[1], words[2], words[3])
}

// HammingDistance256 returns the bit distance between two 64-hex-digit
// hashes, or an error when either hash is malformed.
func HammingDistance256(a, b string) (int, error) {
	if len(a) != 64 || len(b) != 64 {
		return 0, fmt.Errorf("perceptual hash must be 64 hex digits, got %d and %d", len(a), len(b))
	}

	distance := 0
	for i := 0; i < 64; i += 16 {
		wa, err := strconv.ParseUint(a[i:i+16], 16, 64)
		if err != nil {
			return 0, fmt.Errorf("malformed perceptual hash %q: %w", a, err)
		}
		wb, err := strconv.ParseUint(b[i:i+16], 16, 64)
		if err != nil {
			return 0, fmt.Errorf("malformed perceptual hash %q: %w", b, err)
		}
		distance += bits.OnesCount64(wa ^ wb)
	}
	return distance, nil
}

// HashPrefix16 returns the first 16 bits of a perceptual hash as a bucket
// key for the duplicate detector. Malformed hashes bucket together under
// zero.
func HashPrefix16(hash string) uint16 {
	if len(hash) < 4 {
		return 0
	}
	v, err := strconv.ParseUint(hash[:4], 16, 16)
	if err != nil {
		return 0
	}
	return uint16(v)
}
