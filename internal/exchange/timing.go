package exchange

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/xkilldash9x/swapflow/internal/config"
)

// DelayRange is a bounded uniform range. Randomized pauses are part of looking
// like a person at the keyboard, so every wait in the flow is one of these.
type DelayRange struct {
	Min time.Duration
	Max time.Duration
}

// Pick returns a uniformly distributed duration in [Min, Max].
func (d DelayRange) Pick() time.Duration {
	if d.Max <= d.Min {
		return max(d.Min, 0)
	}
	return d.Min + time.Duration(rand.Int64N(int64(d.Max-d.Min)+1))
}

// Sleeper suspends the flow for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// ContextSleep is the production Sleeper.
func ContextSleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Timings holds every wait of the flow. The zero value runs without pauses.
type Timings struct {
	Navigation         time.Duration
	Settle             DelayRange
	Scroll             DelayRange
	ScrollPixels       [2]int
	AfterFill          DelayRange
	AfterTab           DelayRange
	PreSubmit          DelayRange
	Keystroke          DelayRange
	ElementTimeout     time.Duration
	EnableTimeout      time.Duration
	EnablePollInterval time.Duration
	SubmitSettle       time.Duration
}

func delayFromConfig(c config.DelayConfig) DelayRange {
	return DelayRange{Min: c.Min, Max: c.Max}
}

// TimingsFromConfig maps the configured timings.
func TimingsFromConfig(c config.TimingConfig) Timings {
	return Timings{
		Navigation:         c.Navigation,
		Settle:             delayFromConfig(c.Settle),
		Scroll:             delayFromConfig(c.Scroll),
		ScrollPixels:       [2]int{c.ScrollMinPixels, c.ScrollMaxPixels},
		AfterFill:          delayFromConfig(c.AfterFill),
		AfterTab:           delayFromConfig(c.AfterTab),
		PreSubmit:          delayFromConfig(c.PreSubmit),
		Keystroke:          delayFromConfig(c.Keystroke),
		ElementTimeout:     c.ElementTimeout,
		EnableTimeout:      c.EnableTimeout,
		EnablePollInterval: c.EnablePollInterval,
		SubmitSettle:       c.SubmitSettle,
	}
}

func (t Timings) scrollPixels() int {
	lo, hi := t.ScrollPixels[0], t.ScrollPixels[1]
	if hi <= lo {
		return max(lo, 0)
	}
	return lo + rand.IntN(hi-lo+1)
}

// enablePolls is the number of enabled-state checks that fit in EnableTimeout.
func (t Timings) enablePolls() int {
	if t.EnablePollInterval <= 0 || t.EnableTimeout <= 0 {
		return 1
	}
	n := int(t.EnableTimeout / t.EnablePollInterval)
	if t.EnableTimeout%t.EnablePollInterval != 0 {
		n++
	}
	return max(n, 1)
}
