package embeddings

// PadToTargetDimensions pads or truncates a vector to the target dimensions.
// Zero padding leaves cosine distance between padded vectors unchanged.
func PadToTargetDimensions(vec []float32, target int) []float32 {
	if target <= 0 || len(vec) == target {
		return vec
	}

	if len(vec) > target {
		return vec[:target]
	}

	padded := make([]float32, target)
	copy(padded, vec)

	return padded
}
