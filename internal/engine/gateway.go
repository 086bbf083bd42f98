package engine

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/claude/flexion/internal/models"
)

// QualityAdvisor scores one completed rep from its per-frame signature and
// may return a fine-grained absolute target suggestion.
type QualityAdvisor interface {
	ScoreRep(ctx context.Context, req models.QualityRequest) (*models.QualityResponse, error)
}

// PolicyAdvisor maps a session state vector to one coarse difficulty action.
type PolicyAdvisor interface {
	NextAction(ctx context.Context, req models.PolicyRequest) (*models.PolicyResponse, error)
}

const (
	// MacroInterval is the completed-rep cadence of the macro advisory.
	MacroInterval = 5

	// microApplyLimit is the largest absolute delta, in degrees, a micro
	// advisory suggestion may apply directly. Larger suggestions are
	// recorded and left to the macro advisory.
	microApplyLimit = 2.0

	// macroStepDegrees is the step taken on a macro ease or tighten action.
	macroStepDegrees = 5.0

	resultBuffer = 16
)

// advice is one advisory round trip, buffered until the owning session's
// next evaluation point.
type advice struct {
	kind       string
	generation uint64
	repIndex   int
	quality    *models.QualityResponse
	policy     *models.PolicyResponse
	err        error
	latency    time.Duration
}

// Gateway runs advisory calls off the sample path. Requests are dispatched
// on their own goroutines; results wait in a bounded buffer until the
// session drains them at a rep boundary. Nothing here ever blocks the
// caller feeding samples.
type Gateway struct {
	quality QualityAdvisor
	policy  PolicyAdvisor
	timeout time.Duration
	log     *slog.Logger
	results chan advice
}

// NewGateway builds a gateway over the two advisors. Either advisor may be
// nil, which disables that advisory entirely.
func NewGateway(quality QualityAdvisor, policy PolicyAdvisor, timeout time.Duration, log *slog.Logger) *Gateway {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &Gateway{
		quality: quality,
		policy:  policy,
		timeout: timeout,
		log:     log,
		results: make(chan advice, resultBuffer),
	}
}

// RequestQuality dispatches a micro advisory call for a completed rep.
func (g *Gateway) RequestQuality(generation uint64, repIndex int, req models.QualityRequest) {
	if g.quality == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), g.timeout)
		defer cancel()
		start := time.Now()
		resp, err := g.quality.ScoreRep(ctx, req)
		g.deliver(advice{
			kind:       models.TargetSourceMicro,
			generation: generation,
			repIndex:   repIndex,
			quality:    resp,
			err:        err,
			latency:    time.Since(start),
		})
	}()
}

// RequestPolicy dispatches a macro advisory call.
func (g *Gateway) RequestPolicy(generation uint64, repIndex int, req models.PolicyRequest) {
	if g.policy == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), g.timeout)
		defer cancel()
		start := time.Now()
		resp, err := g.policy.NextAction(ctx, req)
		g.deliver(advice{
			kind:       models.TargetSourceMacro,
			generation: generation,
			repIndex:   repIndex,
			policy:     resp,
			err:        err,
			latency:    time.Since(start),
		})
	}()
}

// deliver buffers a result without ever blocking the worker goroutine. A
// full buffer drops the result; advisories are optional by contract.
func (g *Gateway) deliver(a advice) {
	select {
	case g.results <- a:
	default:
		g.log.Warn("advisory result dropped, buffer full", "kind", a.kind, "rep", a.repIndex)
	}
}

// Drain returns every buffered advisory result without blocking.
func (g *Gateway) Drain() []advice {
	var out []advice
	for {
		select {
		case a := <-g.results:
			out = append(out, a)
		default:
			return out
		}
	}
}

// policyState assembles the fixed-size feature vector for the macro
// advisory: the last ten extrema, consistency, fatigue, elapsed hours, the
// current target, baseline, rep count, success rate, zero-padded to size.
func policyState(ex Exercise, reps []models.RepRecord, t models.TargetState, elapsed time.Duration) []float64 {
	v := make([]float64, 0, models.PolicyStateSize)
	extrema := lastN(repExtrema(reps), romWindow)
	for _, x := range extrema {
		v = append(v, x/180)
	}
	for len(v) < romWindow {
		v = append(v, 0)
	}
	v = append(v, math.Max(0, consistencyScore(lastN(extrema, consistencyWindow))))
	v = append(v, math.Max(0, math.Min(1, fatigueDrop(ex, extrema))))
	v = append(v, elapsed.Hours())
	v = append(v, t.PushTarget/180)
	v = append(v, t.BaselineROM/180)
	v = append(v, float64(len(reps))/50)
	v = append(v, successRate(reps, romWindow))
	for len(v) < models.PolicyStateSize {
		v = append(v, 0)
	}
	return v
}

// successRate is the fraction of the last n reps that met the minimum
// threshold.
func successRate(reps []models.RepRecord, n int) float64 {
	if len(reps) == 0 {
		return 0
	}
	if len(reps) > n {
		reps = reps[len(reps)-n:]
	}
	met := 0
	for _, r := range reps {
		if r.MinimumThresholdMet {
			met++
		}
	}
	return float64(met) / float64(len(reps))
}
