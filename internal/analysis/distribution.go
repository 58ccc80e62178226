package analysis

import (
	"fmt"
	"math"

	"github.com/stemsi/exstem-cbt/internal/model"
)

// BinCount is the number of fixed-width score bins.
const BinCount = 10

// Bin is one histogram bucket.
type Bin struct {
	Label string `json:"label"`
	Min   int    `json:"min"`
	Max   int    `json:"max"`
	Count int    `json:"count"`
}

// Distribution buckets scores into [1,10], [11,20], …, [91,100]. A score of
// zero or below is left out of every bin. Fractional scores below 1 land
// in the first bin and anything above 100 in the last.
func Distribution(results []model.Result) []Bin {
	bins := make([]Bin, BinCount)
	for i := range bins {
		lo, hi := i*10+1, (i+1)*10
		bins[i] = Bin{Label: fmt.Sprintf("%d-%d", lo, hi), Min: lo, Max: hi}
	}

	for _, r := range results {
		if idx, ok := BinIndex(r.Score); ok {
			bins[idx].Count++
		}
	}
	return bins
}

// BinIndex returns the bin for score, or false when it is excluded.
func BinIndex(score float64) (int, bool) {
	if !(score > 0) {
		return 0, false
	}
	idx := int(math.Floor((score - 1) / 10))
	return max(0, min(idx, BinCount-1)), true
}

// Summary holds aggregate figures for a result set.
type Summary struct {
	Participants int     `json:"participants"`
	Mean         float64 `json:"mean"`
	Highest      float64 `json:"highest"`
	Lowest       float64 `json:"lowest"`
}

// Summarize computes participant count, mean, highest and lowest score.
func Summarize(results []model.Result) Summary {
	if len(results) == 0 {
		return Summary{}
	}
	s := Summary{Participants: len(results), Highest: results[0].Score, Lowest: results[0].Score}
	var total float64
	for _, r := range results {
		total += r.Score
		s.Highest = max(s.Highest, r.Score)
		s.Lowest = min(s.Lowest, r.Score)
	}
	s.Mean = total / float64(len(results))
	return s
}
