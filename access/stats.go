package access

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/janelia-flyem/pixaccess/pixel"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Stats summarizes the samples of a plane or stack.  Sigma is the population
// standard deviation.  GeometricMean is NaN if any sample is negative.
type Stats struct {
	Count         int
	Min, Max      float64
	Sum           float64
	SumOfSquares  float64
	Mean          float64
	Sigma         float64
	GeometricMean float64
}

func (s Stats) String() string {
	return fmt.Sprintf("n=%d min=%g max=%g mean=%g sigma=%g geomean=%g sum=%g sumsq=%g",
		s.Count, s.Min, s.Max, s.Mean, s.Sigma, s.GeometricMean, s.Sum, s.SumOfSquares)
}

// ComputeStats summarizes samples.  An empty slice gives zero Stats.
func ComputeStats(samples []float64) Stats {
	if len(samples) == 0 {
		return Stats{}
	}
	s := Stats{
		Count:        len(samples),
		Min:          floats.Min(samples),
		Max:          floats.Max(samples),
		Sum:          floats.Sum(samples),
		SumOfSquares: floats.Dot(samples, samples),
		Mean:         stat.Mean(samples, nil),
		Sigma:        stat.PopStdDev(samples, nil),
	}
	if s.Min < 0 {
		s.GeometricMean = math.NaN()
	} else {
		s.GeometricMean = stat.GeometricMean(samples, nil)
	}
	return s
}

func (f *Facade) stats(ctx context.Context, d *PixelArrayDescriptor, addr pixel.Address) (Stats, error) {
	data, err := f.Read(ctx, d, addr, false)
	if err != nil {
		return Stats{}, err
	}
	samples, err := pixel.Samples(data, d.Type, binary.LittleEndian)
	if err != nil {
		return Stats{}, d.wrap("decode "+addr.String()+" of", err)
	}
	return ComputeStats(samples), nil
}

// PlaneStatistics summarizes one plane of a sealed array.
func (f *Facade) PlaneStatistics(ctx context.Context, d *PixelArrayDescriptor, plane pixel.Plane) (Stats, error) {
	return f.stats(ctx, d, plane)
}

// StackStatistics summarizes all planes at channel c and time t.
func (f *Facade) StackStatistics(ctx context.Context, d *PixelArrayDescriptor, c, t int) (Stats, error) {
	return f.stats(ctx, d, pixel.Stack{C: c, T: t})
}
