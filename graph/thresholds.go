package graph

import "math"

// Length threshold derivations shared by the simplification
// algorithms.

// MaxBulgeLength returns the longest edge the bulge remover considers.
func MaxBulgeLength(k int, maxBulgeLengthCoefficient, maxAdditiveLengthCoefficient float64) int {
	return int(math.Round(float64(k)*maxBulgeLengthCoefficient + maxAdditiveLengthCoefficient))
}

// MaxErroneousConnectionLength returns the longest edge the erroneous
// connection removers consider.
func MaxErroneousConnectionLength(k int, maxECLengthCoefficient float64) int {
	return int(math.Round(float64(k) * maxECLengthCoefficient))
}

// MaxTipLength returns the longest edge the tip clippers consider.
func MaxTipLength(readLength, k int, lengthCoefficient float64) int {
	length := int(math.Round(float64(readLength) * lengthCoefficient))
	if length < k+2 {
		length = k + 2
	}
	return length
}
