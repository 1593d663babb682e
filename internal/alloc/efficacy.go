package alloc

import "math"

// entropyEpsilon keeps log2 finite for zero shares.
const entropyEpsilon = 1e-9

// Efficacy describes how evenly a vector of per-category values is spread.
// Every component is in [0,1] and 1 is perfectly even.
type Efficacy struct {
	// Balance is 1/(1+σ) over the raw values.
	Balance float64 `json:"balance"`
	// Entropy is the Shannon entropy of the value shares, normalized by
	// log2(n).
	Entropy float64 `json:"entropy"`
	// Dispersion is 1/(1+(max-min)) over the raw values.
	Dispersion float64 `json:"dispersion"`
	// Score is the mean of Balance, Entropy and Dispersion.
	Score float64 `json:"score"`
}

// Rating is Score on a 0..10000 integer scale.
func (e Efficacy) Rating() int {
	return int(math.Round(e.Score * 10000))
}

// Diagnose scores the spread of values. An empty vector scores zero. When
// every value is zero the shares are taken as uniform.
//
// Balance and Dispersion are scale dependent: they read raw values, so a
// spread of 0.1 and a spread of 100 score very differently.
func Diagnose(values []float64) Efficacy {
	n := len(values)
	if n == 0 {
		return Efficacy{}
	}

	sum, lo, hi := 0.0, values[0], values[0]
	for _, v := range values {
		sum += v
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	mean := sum / float64(n)

	variance, entropy := 0.0, 0.0
	for _, v := range values {
		variance += (v - mean) * (v - mean)
		p := 1 / float64(n)
		if sum != 0 {
			p = v / sum
		}
		entropy -= p * math.Log2(p+entropyEpsilon)
	}
	variance /= float64(n)

	// A single value is as even as it can be. The epsilon can push the
	// normalized entropy a hair outside [0,1].
	entropyNorm := 1.0
	if n > 1 {
		entropyNorm = math.Min(1, math.Max(0, entropy/math.Log2(float64(n))))
	}

	e := Efficacy{
		Balance:    1 / (1 + math.Sqrt(variance)),
		Entropy:    entropyNorm,
		Dispersion: 1 / (1 + (hi - lo)),
	}
	e.Score = (e.Balance + e.Entropy + e.Dispersion) / 3
	return e
}
