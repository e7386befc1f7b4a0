package notif

import (
	"regexp"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/trezcool/mahudhurio/core"
)

var (
	nowFunc = time.Now // mockable

	// error messages matching this always surface, whatever the filters say
	criticalRegex = regexp.MustCompile(`(?i)\b(server|backend|api)\b.*\b(unreachable|unavailable|down)\b`)
)

// Filter decides whether a candidate notification may be shown. Two
// independent rules apply: per-message de-duplication within DedupWindow, and
// a rolling rate limit of RateMax per (category, severity) key within
// RateWindow. Over-limit candidates are dropped, never queued.
// Bookkeeping is purged at twice the suppression window to bound memory.
type Filter struct {
	conf core.NotifConfig

	mu     sync.Mutex
	seen   *cache.Cache // (category|severity|message) -> last shown
	counts *cache.Cache // (category|severity) -> []time.Time

	// connection-status bookkeeping
	hadSuccess bool
	hadFailure bool
}

func NewFilter(conf core.NotifConfig) *Filter {
	return &Filter{
		conf:   conf,
		seen:   cache.New(conf.DedupWindow, 2*conf.DedupWindow),
		counts: cache.New(conf.RateWindow, 2*conf.RateWindow),
	}
}

// ShouldShow records the candidate as shown when it returns true.
func (f *Filter) ShouldShow(message string, sev Severity, category string) bool {
	if sev == SeverityError && criticalRegex.MatchString(message) {
		return true
	}

	now := nowFunc()
	f.mu.Lock()
	defer f.mu.Unlock()

	dedupKey := category + "|" + string(sev) + "|" + message
	if last, ok := f.seen.Get(dedupKey); ok {
		if now.Sub(last.(time.Time)) < f.conf.DedupWindow {
			return false
		}
	}

	rateKey := category + "|" + string(sev)
	var times []time.Time
	if cached, ok := f.counts.Get(rateKey); ok {
		for _, ts := range cached.([]time.Time) {
			if now.Sub(ts) < f.conf.RateWindow {
				times = append(times, ts)
			}
		}
	}
	if len(times) >= f.conf.RateMax {
		return false
	}

	f.seen.Set(dedupKey, now, cache.DefaultExpiration)
	f.counts.Set(rateKey, append(times, now), cache.DefaultExpiration)
	return true
}

// ShouldShowConnection applies the connection-status rules: a successful
// connection surfaces only when it is the first ever or follows a failure,
// plain disconnections never surface, and connection errors surface only for
// the first two attempts.
func (f *Filter) ShouldShowConnection(event ConnEvent, attempts int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch event {
	case ConnEventConnected:
		show := !f.hadSuccess || f.hadFailure
		f.hadSuccess = true
		f.hadFailure = false
		return show
	case ConnEventError:
		f.hadFailure = true
		return attempts <= 2
	default: // disconnected
		return false
	}
}
