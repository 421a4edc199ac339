package montecarlo

import (
	"math"
	"math/rand"

	"github.com/atlas-desktop/validation-backend/internal/metrics"
)

// Sampler draws one synthetic return path. Implementations must be pure
// functions of the supplied RNG so that identical seeds reproduce identical
// paths.
type Sampler interface {
	Sample(rng *rand.Rand, length int) []float64
}

// NormalSampler draws i.i.d. normal(mean, std) returns. This is the default
// path sampling family.
type NormalSampler struct {
	Mean   float64
	StdDev float64
}

// NewNormalSampler estimates mean and standard deviation from historical
// returns
func NewNormalSampler(returns []float64) *NormalSampler {
	return &NormalSampler{
		Mean:   metrics.Mean(returns),
		StdDev: metrics.Std(returns),
	}
}

// Sample implements Sampler
func (s *NormalSampler) Sample(rng *rand.Rand, length int) []float64 {
	path := make([]float64, length)
	for i := range path {
		path[i] = s.Mean + rng.NormFloat64()*s.StdDev
	}
	return path
}

// StudentTSampler draws i.i.d. scaled Student-t returns for fat-tailed
// distributional assumptions. The scale is chosen so the path variance
// matches the historical variance when DF > 2.
type StudentTSampler struct {
	Mean  float64
	Scale float64
	DF    int
}

// NewStudentTSampler estimates location and scale from historical returns
func NewStudentTSampler(returns []float64, df int) *StudentTSampler {
	if df < 3 {
		df = 5
	}
	std := metrics.Std(returns)
	// Var(t_df) = df/(df-2); shrink the scale to preserve total variance.
	scale := std * math.Sqrt(float64(df-2)/float64(df))
	return &StudentTSampler{
		Mean:  metrics.Mean(returns),
		Scale: scale,
		DF:    df,
	}
}

// Sample implements Sampler
func (s *StudentTSampler) Sample(rng *rand.Rand, length int) []float64 {
	path := make([]float64, length)
	for i := range path {
		path[i] = s.Mean + s.Scale*studentT(rng, s.DF)
	}
	return path
}

// studentT draws a t-distributed variate as normal / sqrt(chi2/df)
func studentT(rng *rand.Rand, df int) float64 {
	z := rng.NormFloat64()
	chi2 := 0.0
	for i := 0; i < df; i++ {
		n := rng.NormFloat64()
		chi2 += n * n
	}
	if chi2 == 0 {
		return z
	}
	return z / math.Sqrt(chi2/float64(df))
}

// BlockBootstrapSampler resamples contiguous blocks of the historical
// return sequence, preserving short-range autocorrelation inside blocks.
type BlockBootstrapSampler struct {
	Returns   []float64
	BlockSize int
}

// NewBlockBootstrapSampler wraps historical returns. blockSize <= 0
// selects a default of 20.
func NewBlockBootstrapSampler(returns []float64, blockSize int) *BlockBootstrapSampler {
	if blockSize <= 0 {
		blockSize = 20
	}
	if blockSize > len(returns) {
		blockSize = len(returns)
	}
	return &BlockBootstrapSampler{Returns: returns, BlockSize: blockSize}
}

// Sample implements Sampler
func (s *BlockBootstrapSampler) Sample(rng *rand.Rand, length int) []float64 {
	n := len(s.Returns)
	if n == 0 || length <= 0 {
		return nil
	}

	path := make([]float64, 0, length)
	for len(path) < length {
		start := rng.Intn(n)
		for i := 0; i < s.BlockSize && len(path) < length; i++ {
			path = append(path, s.Returns[(start+i)%n])
		}
	}
	return path
}
