package conformer

import (
	"context"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"

	"github.com/turtacn/molx/internal/domain/molecule"
	"github.com/turtacn/molx/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/molx/pkg/errors"
)

// ErrEmbed is returned when no attempt produced finite coordinates.
var ErrEmbed = errors.New(errors.ErrCodeConformerEmbedFailed, "conformer embedding failed")

// Options control embedding.
type Options struct {
	// Seed makes embedding reproducible; the same molecule and seed always
	// give the same coordinates.
	Seed int64
	// NumConformers is how many conformers Embed returns.
	NumConformers int
	// MaxAttempts bounds the random restarts per conformer; the attempt with
	// the lowest bounds violation is kept.
	MaxAttempts int
	// MaxIterations bounds L-BFGS refinement.
	MaxIterations int
}

// DefaultOptions mirrors the defaults in config.
func DefaultOptions() Options {
	return Options{Seed: 42, NumConformers: 1, MaxAttempts: 10, MaxIterations: 500}
}

// Embedder generates conformers.
type Embedder struct {
	opts   Options
	logger logging.Logger
}

// NewEmbedder returns an Embedder; zero option fields take their defaults.
func NewEmbedder(opts Options, logger logging.Logger) *Embedder {
	def := DefaultOptions()
	if opts.NumConformers <= 0 {
		opts.NumConformers = def.NumConformers
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = def.MaxAttempts
	}
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = def.MaxIterations
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Embedder{opts: opts, logger: logger.Named("conformer")}
}

// Options returns the effective options.
func (e *Embedder) Options() Options { return e.opts }

// goodEnough stops restarting once every bound is met to within this total
// squared violation.
const goodEnough = 1e-3

// Embed returns NumConformers conformers for a sanitized molecule, one
// position per atom in atom order. Hydrogens must be explicit atoms for them
// to receive coordinates.
func (e *Embedder) Embed(ctx context.Context, m *molecule.Molecule) ([][]molecule.Vec3, error) {
	if !m.Sanitized() {
		return nil, ErrEmbed.WithDetail("molecule is not sanitized")
	}
	n := m.NumAtoms()
	if n == 0 {
		return nil, ErrEmbed.WithDetail("molecule has no atoms")
	}
	b := buildBounds(m)
	rng := rand.New(rand.NewSource(e.opts.Seed))

	out := make([][]molecule.Vec3, 0, e.opts.NumConformers)
	for c := 0; c < e.opts.NumConformers; c++ {
		var best []float64
		bestErr := math.Inf(1)
		for attempt := 0; attempt < e.opts.MaxAttempts; attempt++ {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			x := initialCoords(b, rng)
			x, v := e.refine(b, x)
			if math.IsNaN(v) {
				continue
			}
			if v < bestErr {
				best, bestErr = x, v
			}
			if bestErr < goodEnough {
				break
			}
		}
		if best == nil {
			return nil, ErrEmbed.WithDetailf("no finite embedding for %s after %d attempts", m.Formula(), e.opts.MaxAttempts)
		}
		e.logger.Debug("conformer embedded",
			logging.String("formula", m.Formula()),
			logging.Int("conformer", c),
			logging.Float64("violation", bestErr))
		out = append(out, toVec3(best))
	}
	return out, nil
}

// initialCoords draws a random distance matrix within the bounds and embeds
// it in three dimensions through the metric matrix.
func initialCoords(b *bounds, rng *rand.Rand) []float64 {
	n := b.n
	x := make([]float64, 3*n)
	if n == 1 {
		return x
	}

	d2 := make([]float64, n*n)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			lo, hi := b.l(i, j), b.u(i, j)
			d := lo + rng.Float64()*(hi-lo)
			d2[i*n+j], d2[j*n+i] = d*d, d*d
		}
	}

	// Squared distance of every atom from the centroid.
	var total float64
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			total += d2[i*n+j]
		}
	}
	total /= float64(n * n)
	d0 := make([]float64, n)
	for i := 0; i < n; i++ {
		var s float64
		for j := 0; j < n; j++ {
			s += d2[i*n+j]
		}
		d0[i] = s/float64(n) - total
	}

	g := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			g.SetSym(i, j, (d0[i]+d0[j]-d2[i*n+j])/2)
		}
	}

	var eig mat.EigenSym
	if !eig.Factorize(g, true) {
		return randomCoords(n, rng)
	}
	vals := eig.Values(nil)
	var vecs mat.Dense
	eig.VectorsTo(&vecs)

	// Values are ascending; the three largest span the embedding.
	for k := 0; k < 3; k++ {
		col := n - 1 - k
		if col < 0 {
			break
		}
		lambda := vals[col]
		if lambda <= 0 {
			for i := 0; i < n; i++ {
				x[3*i+k] = rng.Float64() - 0.5
			}
			continue
		}
		s := math.Sqrt(lambda)
		for i := 0; i < n; i++ {
			x[3*i+k] = s * vecs.At(i, col)
		}
	}
	return x
}

func randomCoords(n int, rng *rand.Rand) []float64 {
	x := make([]float64, 3*n)
	side := math.Cbrt(float64(n)) * 2
	for i := range x {
		x[i] = (rng.Float64() - 0.5) * side
	}
	return x
}

// violation is the distance geometry error function: zero when every pair
// distance lies within its bounds.
func violation(b *bounds, x, grad []float64) float64 {
	n := b.n
	if grad != nil {
		for i := range grad {
			grad[i] = 0
		}
	}
	var f float64
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			dx := x[3*i] - x[3*j]
			dy := x[3*i+1] - x[3*j+1]
			dz := x[3*i+2] - x[3*j+2]
			d2 := dx*dx + dy*dy + dz*dz
			u2 := b.u(i, j) * b.u(i, j)
			l2 := b.l(i, j) * b.l(i, j)

			var dfdd2 float64
			switch {
			case d2 > u2:
				t := d2/u2 - 1
				f += t * t
				dfdd2 = 2 * t / u2
			case d2 < l2:
				den := l2 + d2
				t := 2*l2/den - 1
				f += t * t
				dfdd2 = 2 * t * (-2 * l2 / (den * den))
			default:
				continue
			}
			if grad != nil {
				gx, gy, gz := 2*dx*dfdd2, 2*dy*dfdd2, 2*dz*dfdd2
				grad[3*i] += gx
				grad[3*i+1] += gy
				grad[3*i+2] += gz
				grad[3*j] -= gx
				grad[3*j+1] -= gy
				grad[3*j+2] -= gz
			}
		}
	}
	return f
}

// refine minimises the violation with L-BFGS and returns the coordinates and
// the final error.
func (e *Embedder) refine(b *bounds, x0 []float64) ([]float64, float64) {
	if b.n < 2 {
		return x0, 0
	}
	p := optimize.Problem{
		Func: func(x []float64) float64 { return violation(b, x, nil) },
		Grad: func(grad, x []float64) { violation(b, x, grad) },
	}
	settings := &optimize.Settings{
		MajorIterations:   e.opts.MaxIterations,
		GradientThreshold: 1e-8,
	}
	res, err := optimize.Minimize(p, x0, settings, &optimize.LBFGS{})
	if res == nil {
		e.logger.Debug("refinement failed", logging.Err(err))
		return x0, violation(b, x0, nil)
	}
	return res.X, violation(b, res.X, nil)
}

func toVec3(x []float64) []molecule.Vec3 {
	out := make([]molecule.Vec3, len(x)/3)
	for i := range out {
		out[i] = molecule.Vec3{x[3*i], x[3*i+1], x[3*i+2]}
	}
	return out
}
