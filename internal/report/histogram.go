package report

// Bucket is one confidence histogram bin.
type Bucket struct {
	Label string `json:"label" yaml:"label"`
	Count int    `json:"count" yaml:"count"`
}

var bucketBounds = []struct {
	label string
	upper float64
}{
	{"<0.5", 0.5},
	{"0.5-0.7", 0.7},
	{"0.7-0.8", 0.8},
	{"0.8-0.9", 0.9},
	{"0.9-1.0", 0},
}

// Histogram bins confidences. Bins are half-open on the right; the last bin
// takes everything from 0.9 up, 1.0 included.
func Histogram(confidences []float64) []Bucket {
	out := make([]Bucket, len(bucketBounds))
	for i, b := range bucketBounds {
		out[i].Label = b.label
	}
	last := len(bucketBounds) - 1
	for _, c := range confidences {
		idx := last
		for i, b := range bucketBounds[:last] {
			if c < b.upper {
				idx = i
				break
			}
		}
		out[idx].Count++
	}
	return out
}
