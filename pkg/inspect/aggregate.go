package inspect

import (
	"fmt"
	"strings"

	"github.com/cyclopcam/vidinspect/pkg/nn"
)

// RawDetection is one object reported by the detector for a frame
type RawDetection = nn.ObjectDetection

const NoObjectsDetected = "No objects detected"

// DetectionSummary is the aggregate view of the detections that survived the confidence floor
type DetectionSummary struct {
	Counts map[string]int // Number of detections per label. Labels with no detections are absent.
	Labels []string       // Keys of Counts, in the order in which they were first seen
	Text   string         // eg "1 car, 2 persons"
}

// Total returns the number of detections that the summary was built from
func (s *DetectionSummary) Total() int {
	n := 0
	for _, c := range s.Counts {
		n += c
	}
	return n
}

// FilterByConfidence returns the detections with confidence >= floor, in their original order.
// A detection exactly at the floor is retained.
func FilterByConfidence(detections []RawDetection, floor float32) []RawDetection {
	survivors := make([]RawDetection, 0, len(detections))
	for _, d := range detections {
		if d.Confidence < floor {
			continue
		}
		survivors = append(survivors, d)
	}
	return survivors
}

// Aggregate filters the detections by floor, and counts the survivors per label
func Aggregate(detections []RawDetection, floor float32) DetectionSummary {
	return Summarize(FilterByConfidence(detections, floor))
}

// Summarize counts detections that have already been filtered
func Summarize(survivors []RawDetection) DetectionSummary {
	s := DetectionSummary{
		Counts: map[string]int{},
		Labels: []string{},
	}
	for _, d := range survivors {
		if _, seen := s.Counts[d.Label]; !seen {
			s.Labels = append(s.Labels, d.Label)
		}
		s.Counts[d.Label]++
	}
	s.Text = summaryText(s.Labels, s.Counts)
	return s
}

// Plurals are formed by appending "s", without special cases such as "persons" -> "people"
func summaryText(labels []string, counts map[string]int) string {
	if len(labels) == 0 {
		return NoObjectsDetected
	}
	clauses := make([]string, 0, len(labels))
	for _, label := range labels {
		n := counts[label]
		suffix := "s"
		if n == 1 {
			suffix = ""
		}
		clauses = append(clauses, fmt.Sprintf("%v %v%v", n, label, suffix))
	}
	return strings.Join(clauses, ", ")
}
