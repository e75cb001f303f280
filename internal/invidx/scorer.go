package invidx

import "math"

// BM25 defaults match tantivy's (spec.md §4.7's "BM25 scorer,
// k1=1.2, b=0.75").
const (
	DefaultK1 = 1.2
	DefaultB  = 0.75
)

// Scorer computes Okapi BM25 term scores against one field's
// corpus statistics within a single segment.
type Scorer struct {
	K1, B      float64
	DocCount   uint32  // N: documents in the segment carrying this field
	AvgDocLen  float64 // average field length in terms, across DocCount
}

// IDF is the BM25 inverse document frequency term, using the
// +1-smoothed form (never negative, unlike Robertson-Sparck-Jones).
func (s Scorer) IDF(docFreq uint32) float64 {
	n := float64(s.DocCount)
	df := float64(docFreq)
	return math.Log(1 + (n-df+0.5)/(df+0.5))
}

// Score returns the BM25 contribution of one term occurring tf times
// in a document of length docLen (spec.md §4.7's scorer formula).
func (s Scorer) Score(tf float64, docLen float64, docFreq uint32) float64 {
	if s.AvgDocLen == 0 {
		return 0
	}
	idf := s.IDF(docFreq)
	norm := 1 - s.B + s.B*(docLen/s.AvgDocLen)
	return idf * (tf * (s.K1 + 1)) / (tf + s.K1*norm)
}
