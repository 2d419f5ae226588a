package psmimport

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/524D/mzpep/internal/inputmap"
	"github.com/524D/mzpep/internal/targetdecoy"
)

// DefaultTimeout bounds a complete import run
const DefaultTimeout = 72 * time.Hour

// Validator receives the selected assumptions of every processed match.
// Add is called concurrently.
type Validator interface {
	Add(m *Match, best []Assumption)
}

// Progress receives one Increment per processed match
type Progress interface {
	SetMax(n int)
	Increment()
	SetIndeterminate(indeterminate bool)
}

// Driver imports matches into an input map.
// The zero value uses runtime.NumCPU workers, DefaultTimeout and
// BestScorer, and logs failures without escalating them.
type Driver struct {
	Threads   int
	Timeout   time.Duration
	Scorer    Scorer
	Validator Validator
	Sink      ErrorSink
	Progress  Progress
	Metrics   *Metrics
	Logger    *slog.Logger
	// MinDecoysInBin gives the bin size of new intermediate score maps.
	// nil means targetdecoy.DefaultMinDecoysInBin for all advocates.
	MinDecoysInBin func(advocate inputmap.AdvocateID) int
}

var tracer = otel.Tracer("github.com/524D/mzpep/internal/psmimport")

// cursor hands out the keys of an import, each exactly once, to any
// number of workers
type cursor struct {
	keys []string
	next atomic.Int64
}

func (c *cursor) take() (string, bool) {
	i := c.next.Add(1) - 1
	if i >= int64(len(c.keys)) {
		return "", false
	}
	return c.keys[i], true
}

func (d *Driver) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}

func (d *Driver) threads() int {
	if d.Threads > 0 {
		return d.Threads
	}
	return runtime.NumCPU()
}

func (d *Driver) timeout() time.Duration {
	if d.Timeout > 0 {
		return d.Timeout
	}
	return DefaultTimeout
}

func (d *Driver) scorer() Scorer {
	if d.Scorer != nil {
		return d.Scorer
	}
	return BestScorer{}
}

func (d *Driver) minDecoysInBin(advocate inputmap.AdvocateID) int {
	if d.MinDecoysInBin != nil {
		return d.MinDecoysInBin(advocate)
	}
	return targetdecoy.DefaultMinDecoysInBin
}

// Run processes the matches with the given keys and adds their selected
// assumptions to agg. Every key is processed at most once.
//
// A failing match is reported to the Sink and skipped. Run returns the
// failure only when the Sink escalates it; the other workers then stop
// at their next match. Cancelling ctx stops the workers the same way and
// returns ctx.Err(). When the workers do not finish within the timeout,
// they are cancelled and ErrImportTimeout is returned without waiting for
// a worker that is stuck inside a Source. Such a worker may still write
// to agg, so agg must be discarded after ErrImportTimeout.
func (d *Driver) Run(ctx context.Context, keys []string, src Source, agg *inputmap.Map) (err error) {
	threads := d.threads()
	ctx, span := tracer.Start(ctx, "psmimport.Run",
		trace.WithAttributes(
			attribute.Int("import.matches", len(keys)),
			attribute.Int("import.threads", threads),
		),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	start := time.Now()
	defer func() { d.Metrics.observe(time.Since(start)) }()

	if d.Progress != nil {
		d.Progress.SetIndeterminate(false)
		d.Progress.SetMax(len(keys))
		defer d.Progress.SetIndeterminate(true)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	cur := &cursor{keys: keys}
	g, gctx := errgroup.WithContext(ctx)
	for w := range threads {
		g.Go(func() error {
			return d.work(gctx, w, cur, src, agg)
		})
	}

	done := make(chan error, 1)
	go func() { done <- g.Wait() }()

	timer := time.NewTimer(d.timeout())
	defer timer.Stop()
	select {
	case err = <-done:
	case <-timer.C:
		cancel()
		err = fmt.Errorf("%w within %v", ErrImportTimeout, d.timeout())
	}
	if err != nil {
		d.logger().Error("import aborted", "error", err)
		return err
	}
	d.logger().Debug("import done", "matches", len(keys), "threads", threads,
		"elapsed", time.Since(start))
	return nil
}

func (d *Driver) work(ctx context.Context, worker int, cur *cursor, src Source, agg *inputmap.Map) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		key, ok := cur.take()
		if !ok {
			return nil
		}
		err := d.process(key, src, agg)
		d.Metrics.match()
		if d.Progress != nil {
			d.Progress.Increment()
		}
		if err == nil {
			continue
		}
		d.Metrics.failure()
		werr := &WorkerError{Worker: worker, Key: key, Err: err}
		if d.Sink == nil {
			d.logger().Warn("match skipped", "worker", worker, "key", key, "error", err)
			continue
		}
		if d.Sink.Report(werr) {
			return werr
		}
	}
}

func (d *Driver) process(key string, src Source, agg *inputmap.Map) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	m, err := src.Match(key)
	if err != nil {
		return err
	}
	best, err := d.scorer().BestAssumptions(m)
	if err != nil {
		return err
	}
	for _, a := range best {
		agg.AddEntry(a.Advocate, m.File, a.Score, a.Decoy)
		d.Metrics.entry(a.Advocate, a.Decoy)
		for kind, score := range a.Secondary {
			agg.SetIntermediateScore(m.File, a.Advocate, kind, score, a.Decoy,
				d.minDecoysInBin(a.Advocate))
		}
	}
	if d.Validator != nil {
		d.Validator.Add(m, best)
	}
	return nil
}
