// Package forest implements an isolation-forest anomaly detector trained on
// normal behaviour only.
package forest

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

var (
	ErrModelNotTrained  = errors.New("anomaly model not trained")
	ErrInsufficientData = errors.New("insufficient normal data for training")
	ErrModelBuild       = errors.New("anomaly model build failed")
	ErrFeatureMismatch  = errors.New("feature vector does not match model")
	ErrInvalidModel     = errors.New("invalid anomaly model")
	ErrStaleModel       = errors.New("anomaly model is older than the served one")
)

// growTree builds one isolation tree. Tests replace it to exercise the
// recovery path.
var growTree = buildTree

// Config holds the training parameters. The seed is part of the
// configuration so a given data set always yields the same forest.
type Config struct {
	TreeCount     int
	SubsampleSize int
	MinSamples    int
	Contamination float64
	Seed          int64
	Features      []string
}

// DefaultConfig returns the parameters used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		TreeCount:     100,
		SubsampleSize: 256,
		MinSamples:    16,
		Contamination: 0.05,
		Seed:          42,
	}
}

func (c Config) minSamples() int {
	if c.MinSamples < 2 {
		return 2
	}
	return c.MinSamples
}

// Build trains a new model over data. It never touches a served model, so a
// failed or cancelled build has no visible effect.
func Build(ctx context.Context, cfg Config, data [][]float64, version int64) (m *Model, err error) {
	if len(data) == 0 || len(data) < cfg.minSamples() {
		return nil, fmt.Errorf("%w: have %d records, need at least %d", ErrInsufficientData, len(data), cfg.minSamples())
	}
	if cfg.TreeCount <= 0 {
		return nil, fmt.Errorf("%w: tree count must be positive", ErrModelBuild)
	}
	width := len(data[0])
	if width == 0 {
		return nil, fmt.Errorf("%w: empty feature vectors", ErrModelBuild)
	}
	if len(cfg.Features) != 0 && len(cfg.Features) != width {
		return nil, fmt.Errorf("%w: %d feature names for width %d", ErrFeatureMismatch, len(cfg.Features), width)
	}
	for i, row := range data {
		if len(row) != width {
			return nil, fmt.Errorf("%w: row %d has %d values, expected %d", ErrFeatureMismatch, i, len(row), width)
		}
		for _, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, fmt.Errorf("%w: row %d holds a non-finite value", ErrModelBuild, i)
			}
		}
	}

	psi := cfg.SubsampleSize
	if psi <= 0 || psi > len(data) {
		psi = len(data)
	}
	if psi < 2 {
		// c(1) is zero and would turn every score into NaN.
		return nil, fmt.Errorf("%w: subsample size %d, need at least 2", ErrModelBuild, psi)
	}
	maxDepth := int(math.Ceil(math.Log2(float64(psi))))

	// Seeds are drawn up front so the forest does not depend on goroutine
	// scheduling.
	master := rand.New(rand.NewSource(cfg.Seed))
	seeds := make([]int64, cfg.TreeCount)
	for i := range seeds {
		seeds[i] = master.Int63()
	}

	trees := make([]Tree, cfg.TreeCount)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i := range trees {
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("%w: tree %d: %v", ErrModelBuild, i, r)
				}
			}()
			if err := gctx.Err(); err != nil {
				return err
			}
			rng := rand.New(rand.NewSource(seeds[i]))
			trees[i] = growTree(rng, subsample(rng, data, psi), maxDepth, width)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	names := cfg.Features
	if len(names) == 0 {
		names = make([]string, width)
		for i := range names {
			names[i] = fmt.Sprintf("f%d", i)
		}
	}

	m = &Model{
		Version:         version,
		Trees:           trees,
		Features:        append([]string(nil), names...),
		SubsampleSize:   psi,
		MaxDepth:        maxDepth,
		Normalizer:      averagePathLength(psi),
		Contamination:   cfg.Contamination,
		Seed:            cfg.Seed,
		TrainingSamples: len(data),
		TrainedAt:       time.Now().UTC(),
	}
	m.Threshold, err = calibrate(m, data, cfg.Contamination)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// subsample draws n rows without replacement. The returned slice is fresh so
// the builder may reorder it.
func subsample(rng *rand.Rand, data [][]float64, n int) [][]float64 {
	idx := rng.Perm(len(data))[:n]
	out := make([][]float64, n)
	for i, j := range idx {
		out[i] = data[j]
	}
	return out
}

// calibrate returns the training-score quantile at 1-contamination.
func calibrate(m *Model, data [][]float64, contamination float64) (float64, error) {
	scores := make([]float64, len(data))
	for i, row := range data {
		s, err := m.Score(row)
		if err != nil {
			return 0, fmt.Errorf("%w: calibrate: %v", ErrModelBuild, err)
		}
		scores[i] = s
	}
	sort.Float64s(scores)

	if contamination <= 0 {
		return scores[len(scores)-1], nil
	}
	if contamination >= 1 {
		return scores[0], nil
	}
	idx := int(math.Ceil((1-contamination)*float64(len(scores)))) - 1
	if idx < 0 {
		idx = 0
	}
	return scores[idx], nil
}

// Detector owns the served model. Fit calls are serialised; readers load the
// current model without locking and always see a complete one.
type Detector struct {
	cfg     Config
	mu      sync.Mutex
	version int64
	current atomic.Pointer[Model]
}

// NewDetector returns a detector with no model.
func NewDetector(cfg Config) *Detector {
	return &Detector{cfg: cfg}
}

// Config returns the training parameters.
func (d *Detector) Config() Config {
	return d.cfg
}

// Fit trains a replacement model and swaps it in once fully built.
func (d *Detector) Fit(ctx context.Context, data [][]float64) (*Model, error) {
	return d.FitWith(ctx, data, nil)
}

// FitWith is Fit with a commit step run between build and swap, typically to
// persist the model. When commit fails the built model is discarded and the
// served model and version sequence stay as they were.
func (d *Detector) FitWith(ctx context.Context, data [][]float64, commit func(*Model) error) (*Model, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	m, err := Build(ctx, d.cfg, data, d.version+1)
	if err != nil {
		return nil, err
	}
	if commit != nil {
		if err := commit(m); err != nil {
			return nil, err
		}
	}
	d.version = m.Version
	d.current.Store(m)
	return m, nil
}

// Restore serves a previously trained model, e.g. one loaded at startup. A
// model older than the newest one this detector has served is refused with
// ErrStaleModel.
func (d *Detector) Restore(m *Model) error {
	if err := m.Validate(); err != nil {
		return err
	}
	if len(d.cfg.Features) != 0 && !sameNames(d.cfg.Features, m.Features) {
		return fmt.Errorf("%w: stored features %v, expected %v", ErrFeatureMismatch, m.Features, d.cfg.Features)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if m.Version < d.version {
		return fmt.Errorf("%w: version %d, serving %d", ErrStaleModel, m.Version, d.version)
	}
	d.version = m.Version
	d.current.Store(m)
	return nil
}

// Current returns the served model.
func (d *Detector) Current() (*Model, error) {
	m := d.current.Load()
	if m == nil {
		return nil, ErrModelNotTrained
	}
	return m, nil
}

// Score scores x against the served model.
func (d *Detector) Score(x []float64) (float64, error) {
	m, err := d.Current()
	if err != nil {
		return 0, err
	}
	return m.Score(x)
}

func sameNames(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
