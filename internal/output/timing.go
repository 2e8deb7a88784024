package output

import (
	"fmt"
	"io"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// Timing holds the optional `--timing` counters (spec §B): files scanned
// and cache hit rate, registered on a private prometheus registry and
// printed as plain text rather than exposed for scraping — quench has no
// HTTP surface to scrape from (spec §1's excluded CLI front end owns any
// such surface, and none is specified).
type Timing struct {
	registry     *prometheus.Registry
	filesScanned prometheus.Counter
	cacheHits    prometheus.Counter
	cacheMisses  prometheus.Counter
}

// NewTiming registers the counters on a fresh, private registry so
// repeated runs in the same process (tests) never collide on global
// registration.
func NewTiming() *Timing {
	t := &Timing{
		registry: prometheus.NewRegistry(),
		filesScanned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "quench_files_scanned_total",
			Help: "Files emitted by the walker and dispatched to the check runner.",
		}),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "quench_cache_hits_total",
			Help: "Per-file, per-check cache lookups that were satisfied from the cache.",
		}),
		cacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "quench_cache_misses_total",
			Help: "Per-file, per-check cache lookups that required re-running the check.",
		}),
	}
	t.registry.MustRegister(t.filesScanned, t.cacheHits, t.cacheMisses)
	return t
}

func (t *Timing) FileScanned()  { t.filesScanned.Inc() }
func (t *Timing) CacheHit()     { t.cacheHits.Inc() }
func (t *Timing) CacheMiss()    { t.cacheMisses.Inc() }

// Print renders the gathered counters as plain "name value" lines (spec
// §6's `--timing` flag).
func (t *Timing) Print(w io.Writer) error {
	families, err := t.registry.Gather()
	if err != nil {
		return err
	}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			if _, err := fmt.Fprintf(w, "%s %s\n", mf.GetName(), formatValue(m)); err != nil {
				return err
			}
		}
	}
	return nil
}

func formatValue(m *dto.Metric) string {
	if c := m.GetCounter(); c != nil {
		return fmt.Sprintf("%.0f", c.GetValue())
	}
	return "0"
}
