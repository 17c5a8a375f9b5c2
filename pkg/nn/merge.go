package nn

import (
	flatbush "github.com/bmharper/flatbush-go"
)

// MergeDuplicates removes objects of the same class whose boxes overlap by at least minIoU.
// Of each overlapping pair, the object with the higher confidence is kept (the earlier one on a tie).
// The relative order of the retained objects is unchanged.
// If minIoU is zero or negative, the input is returned unmodified.
func MergeDuplicates(input []ObjectDetection, minIoU float32) []ObjectDetection {
	if minIoU <= 0 || len(input) < 2 {
		return input
	}

	// Create spatial index to avoid O(N^2) comparisons
	fb := flatbush.NewFlatbush[int32]()
	fb.Reserve(len(input))
	for _, b := range input {
		fb.Add(int32(b.Box.X), int32(b.Box.Y), int32(b.Box.X2()), int32(b.Box.Y2()))
	}
	fb.Finish()

	deleted := map[int]bool{}
	for i, in := range input {
		if deleted[i] {
			continue
		}
		for _, j := range fb.Search(int32(in.Box.X), int32(in.Box.Y), int32(in.Box.X2()), int32(in.Box.Y2())) {
			if i == j || deleted[j] {
				continue
			}
			if input[j].Class != in.Class {
				continue
			}
			if in.Box.IOU(input[j].Box) < minIoU {
				continue
			}
			if betterThan(input[j], j, in, i) {
				deleted[i] = true
				break
			}
			deleted[j] = true
		}
	}

	if len(deleted) == 0 {
		return input
	}
	retain := make([]ObjectDetection, 0, len(input)-len(deleted))
	for i, obj := range input {
		if !deleted[i] {
			retain = append(retain, obj)
		}
	}
	return retain
}

// Returns true if object a (at index ia) should be kept in favour of b (at index ib)
func betterThan(a ObjectDetection, ia int, b ObjectDetection, ib int) bool {
	if a.Confidence != b.Confidence {
		return a.Confidence > b.Confidence
	}
	return ia < ib
}
