package feedback

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/jacopone/claude-nixos-automation-sub000/internal/catalog"
	"github.com/jacopone/claude-nixos-automation-sub000/internal/logging"
	"github.com/jacopone/claude-nixos-automation-sub000/internal/storage"
)

// Recalibration policy. Acceptance below TightenBelow tightens the tiers a
// component owns; above LoosenAbove loosens them. Each Recalibrate call
// moves a parameter at most one step, and never outside the tier bounds.
const (
	TightenBelow = 0.5
	LoosenAbove  = 0.9

	OccurrenceStep = 1
	ConfidenceStep = 0.05

	DefaultWindowDays  = 30
	DefaultMinFeedback = 3
)

// Adjustment records one parameter change made by Recalibrate.
type Adjustment struct {
	Tier      catalog.Tier `json:"tier"`
	Parameter string       `json:"parameter"`
	Before    float64      `json:"before"`
	After     float64      `json:"after"`
	Reason    string       `json:"reason"`
}

// RecalibrationResult reports what one Recalibrate call did.
type RecalibrationResult struct {
	Version     int               `json:"version"`
	Adjustments []Adjustment      `json:"adjustments"`
	Skipped     map[string]string `json:"skipped,omitempty"`
}

// thresholdsFile is the persisted form of the tier parameters.
type thresholdsFile struct {
	Version   int                             `json:"version"`
	UpdatedAt time.Time                       `json:"updated_at"`
	Tiers     map[catalog.Tier]catalog.TierParams `json:"tiers"`
}

// LearnerConfig configures a Learner.
type LearnerConfig struct {
	// Path is the thresholds document, conventionally thresholds.json.
	Path string
	// Tracker supplies the feedback the learner reacts to.
	Tracker *Tracker
	// WindowDays is the feedback window consulted per recalibration.
	// Defaults to DefaultWindowDays.
	WindowDays int
	// MinFeedback is the decision count below which a component is
	// skipped. Defaults to DefaultMinFeedback.
	MinFeedback int
	// Seeds overrides individual built-in tier parameters until the first
	// persisted recalibration. Zero-valued fields inherit the defaults,
	// and seeds are clamped into the tier bounds.
	Seeds map[catalog.Tier]catalog.TierParams
}

// Learner owns the tier parameters and adjusts them from feedback.
type Learner struct {
	mu          sync.Mutex
	path        string
	tracker     *Tracker
	windowDays  int
	minFeedback int
	base        map[catalog.Tier]catalog.TierParams
}

// NewLearner creates a learner persisting to the given thresholds file.
func NewLearner(cfg LearnerConfig) *Learner {
	if cfg.WindowDays <= 0 {
		cfg.WindowDays = DefaultWindowDays
	}
	if cfg.MinFeedback <= 0 {
		cfg.MinFeedback = DefaultMinFeedback
	}

	base := catalog.DefaultParams()
	for tier, seed := range cfg.Seeds {
		p, ok := base[tier]
		if !ok {
			logging.Warn().Str("tier", string(tier)).Msg("ignoring seed for unknown tier")
			continue
		}
		b := catalog.BoundsFor(tier)
		if seed.MinOccurrences != 0 {
			p.MinOccurrences = b.ClampOccurrences(seed.MinOccurrences)
		}
		if seed.ConfidenceThreshold != 0 {
			p.ConfidenceThreshold = b.ClampConfidence(seed.ConfidenceThreshold)
		}
		if seed.WindowDays > 0 {
			p.WindowDays = seed.WindowDays
		}
		base[tier] = p
	}

	return &Learner{
		path:        cfg.Path,
		tracker:     cfg.Tracker,
		windowDays:  cfg.WindowDays,
		minFeedback: cfg.MinFeedback,
		base:        base,
	}
}

// baseParams returns a mutable copy of the seeded defaults.
func (l *Learner) baseParams() map[catalog.Tier]catalog.TierParams {
	params := make(map[catalog.Tier]catalog.TierParams, len(l.base))
	for tier, p := range l.base {
		params[tier] = p
	}
	return params
}

// Params returns the current tier parameters and the thresholds version.
// Version 0 with the defaults means nothing has been recalibrated yet. A
// corrupted thresholds file is reset to the defaults with a warning; the
// bounds guarantee a readable file is also a sane one, except for params
// outside their tier bounds, which are clamped back.
func (l *Learner) Params() (map[catalog.Tier]catalog.TierParams, int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.paramsLocked()
}

func (l *Learner) paramsLocked() (map[catalog.Tier]catalog.TierParams, int, error) {
	var file thresholdsFile
	err := storage.ReadJSON(l.path, &file)
	if errors.Is(err, storage.ErrNotFound) {
		return l.baseParams(), 0, nil
	}
	if err != nil {
		logging.Warn().Err(err).Str("path", l.path).
			Msg("thresholds file unreadable, resetting to defaults")
		defaults := l.baseParams()
		if werr := l.saveLocked(defaults, 1); werr != nil {
			return nil, 0, werr
		}
		return defaults, 1, nil
	}

	params := l.baseParams()
	for tier, p := range file.Tiers {
		if _, ok := params[tier]; !ok {
			continue
		}
		b := catalog.BoundsFor(tier)
		p.MinOccurrences = b.ClampOccurrences(p.MinOccurrences)
		p.ConfidenceThreshold = b.ClampConfidence(p.ConfidenceThreshold)
		if p.WindowDays <= 0 {
			p.WindowDays = params[tier].WindowDays
		}
		params[tier] = p
	}
	return params, file.Version, nil
}

func (l *Learner) saveLocked(params map[catalog.Tier]catalog.TierParams, version int) error {
	return storage.WriteJSONAtomic(l.path, thresholdsFile{
		Version:   version,
		UpdatedAt: time.Now().UTC(),
		Tiers:     params,
	})
}

// Recalibrate runs one meta-learning pass: per component, read the
// acceptance rate over the feedback window and move the owned tiers one
// bounded step in the indicated direction. Components without enough
// feedback are skipped and reported as such.
func (l *Learner) Recalibrate() (*RecalibrationResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	params, version, err := l.paramsLocked()
	if err != nil {
		return nil, err
	}

	result := &RecalibrationResult{Version: version, Skipped: make(map[string]string)}

	for _, component := range catalog.Components() {
		rate, n, err := l.tracker.AcceptanceRate(component, l.windowDays)
		if err != nil {
			return nil, err
		}
		if n < l.minFeedback {
			result.Skipped[component] = fmt.Sprintf("only %d decisions in %d days (need %d)", n, l.windowDays, l.minFeedback)
			continue
		}

		var tighten bool
		var reason string
		switch {
		case rate < TightenBelow:
			tighten = true
			reason = fmt.Sprintf("acceptance rate %.2f below %.2f over %d decisions", rate, TightenBelow, n)
		case rate > LoosenAbove:
			tighten = false
			reason = fmt.Sprintf("acceptance rate %.2f above %.2f over %d decisions", rate, LoosenAbove, n)
		default:
			continue
		}

		for _, tier := range catalog.ComponentTiers(component) {
			p := params[tier]
			b := catalog.BoundsFor(tier)

			occ := p.MinOccurrences
			conf := p.ConfidenceThreshold
			if tighten {
				occ = b.ClampOccurrences(occ + OccurrenceStep)
				conf = b.ClampConfidence(round2(conf + ConfidenceStep))
			} else {
				occ = b.ClampOccurrences(occ - OccurrenceStep)
				conf = b.ClampConfidence(round2(conf - ConfidenceStep))
			}

			if occ != p.MinOccurrences {
				result.Adjustments = append(result.Adjustments, Adjustment{
					Tier: tier, Parameter: "min_occurrences",
					Before: float64(p.MinOccurrences), After: float64(occ),
					Reason: reason,
				})
				p.MinOccurrences = occ
			}
			if conf != p.ConfidenceThreshold {
				result.Adjustments = append(result.Adjustments, Adjustment{
					Tier: tier, Parameter: "confidence_threshold",
					Before: p.ConfidenceThreshold, After: conf,
					Reason: reason,
				})
				p.ConfidenceThreshold = conf
			}
			params[tier] = p
		}
	}

	if len(result.Adjustments) > 0 {
		version++
		if err := l.saveLocked(params, version); err != nil {
			return nil, err
		}
		result.Version = version
		for _, adj := range result.Adjustments {
			logging.Info().Str("tier", string(adj.Tier)).Str("parameter", adj.Parameter).
				Float64("before", adj.Before).Float64("after", adj.After).
				Str("reason", adj.Reason).Msg("adjusted detection threshold")
		}
	}
	return result, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
