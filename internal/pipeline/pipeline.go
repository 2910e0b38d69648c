// Package pipeline runs a full rebuild: index -> sources -> validate ->
// normalize -> merge -> merged dataset + three calendar documents.
//
// Every run regenerates all outputs from scratch; nothing is patched.
package pipeline

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"eventcal/internal/clock"
	"eventcal/internal/config"
	"eventcal/internal/datetime"
	"eventcal/internal/fsutil"
	"eventcal/internal/ics"
	"eventcal/internal/index"
	appLog "eventcal/internal/log"
	"eventcal/internal/merge"
	"eventcal/internal/metrics"
	"eventcal/internal/schema"
)

// ErrRejected is returned by Report.Err when records or sources were dropped.
var ErrRejected = errors.New("some records were rejected")

// DocumentReport summarizes one written calendar.
type DocumentReport struct {
	Name     string
	Path     string
	Entries  int
	Excluded int
}

// Report summarizes a run.
type Report struct {
	Sources   int
	Missing   []string
	Failed    map[string]error
	Accepted  int
	Rejected  []merge.Rejection
	Skipped   int
	Documents []DocumentReport
}

// Err reports ErrRejected when any source was malformed or any record
// failed validation. Missing sources and skipped elements are warnings only.
func (r Report) Err() error {
	if len(r.Failed) > 0 || len(r.Rejected) > 0 {
		return fmt.Errorf("%w: %d records, %d sources", ErrRejected, len(r.Rejected), len(r.Failed))
	}
	return nil
}

// Pipeline holds everything derived from the configuration.
type Pipeline struct {
	cfg     *config.Config
	merger  *merge.Merger
	builder *ics.Builder
	metrics *metrics.Metrics
	clock   clock.Clock
}

// NewValidator builds the schema validator and normalizer described by cfg.
func NewValidator(cfg *config.Config) (*schema.Validator, *datetime.Normalizer, error) {
	home, err := datetime.ParseOffset(cfg.HomeOffset)
	if err != nil {
		return nil, nil, err
	}
	rules, err := schema.NewRules(cfg.SupportedTags, cfg.RequiredTags, cfg.AllowedStatus, home)
	if err != nil {
		return nil, nil, err
	}
	return schema.New(rules), datetime.NewNormalizer(home), nil
}

func New(cfg *config.Config, clk clock.Clock) (*Pipeline, error) {
	if clk == nil {
		clk = clock.NewSystem()
	}
	v, n, err := NewValidator(cfg)
	if err != nil {
		return nil, err
	}
	return &Pipeline{
		cfg:    cfg,
		merger: merge.New(v, n),
		builder: ics.NewBuilder(ics.Options{
			ProductID: cfg.Calendar.ProductID,
			UIDDomain: cfg.Calendar.UIDDomain,
			Escaping:  ics.ParseEscaping(cfg.Calendar.Escaping),
			Home:      n.Home(),
			Clock:     clk,
		}),
		metrics: metrics.New(),
		clock:   clk,
	}, nil
}

// Metrics exposes the counters accumulated over all runs.
func (p *Pipeline) Metrics() *metrics.Metrics {
	return p.metrics
}

// Run performs one full rebuild. A non-nil error means the run aborted
// before outputs were complete (bad index, write failure, self-check
// failure). Dropped records are reported through Report.Err.
func (p *Pipeline) Run() (Report, error) {
	var rep Report
	started := time.Now()

	entries, err := index.Load(p.cfg.Path(p.cfg.IndexFile))
	if err != nil {
		return rep, fmt.Errorf("load index: %w", err)
	}

	rejectedPaths := make(map[string]error)
	sources := make([]merge.Source, 0, len(entries))
	for _, rel := range entries {
		path, err := index.Resolve(p.cfg.DataDir, rel)
		if err != nil {
			rejectedPaths[rel] = err
			appLog.Error("index entry rejected", err, "source", rel)
			continue
		}
		body, err := os.ReadFile(path)
		if errors.Is(err, fs.ErrNotExist) {
			rep.Missing = append(rep.Missing, rel)
			appLog.Warn("missing event file", "source", rel)
			continue
		}
		if err != nil {
			return rep, fmt.Errorf("read %s: %w", rel, err)
		}
		sources = append(sources, merge.Source{Name: rel, Body: body})
	}
	rep.Sources = len(sources)

	res := p.merger.Merge(sources)
	rep.Failed = res.Failed
	for rel, err := range rejectedPaths {
		rep.Failed[rel] = err
	}
	rep.Accepted = len(res.Dataset)
	rep.Rejected = res.Rejected
	rep.Skipped = res.Skipped

	p.metrics.AddMissingSources(len(rep.Missing))
	p.metrics.AddFailedSources(len(rep.Failed))
	p.metrics.AddRecords(metrics.ResultAccepted, rep.Accepted)
	p.metrics.AddRecords(metrics.ResultRejected, len(rep.Rejected))
	p.metrics.AddRecords(metrics.ResultSkipped, rep.Skipped)

	merged, err := fsutil.MarshalJSON(res.Dataset)
	if err != nil {
		return rep, fmt.Errorf("encode merged dataset: %w", err)
	}
	mergedPath := p.cfg.Path(p.cfg.MergedFile)
	if err := fsutil.WriteFileAtomic(mergedPath, merged, 0o644); err != nil {
		return rep, fmt.Errorf("write merged dataset: %w", err)
	}
	appLog.Info("wrote merged dataset", "path", mergedPath, "events", rep.Accepted)

	for _, doc := range p.builder.BuildAll(res.Dataset) {
		if _, err := ics.Verify(doc); err != nil {
			return rep, err
		}

		path := p.cfg.Path(p.outputName(doc.Name))
		if err := fsutil.WriteFileAtomic(path, []byte(doc.Body), 0o644); err != nil {
			return rep, fmt.Errorf("write %s: %w", doc.Name, err)
		}

		for _, ex := range doc.Excluded {
			p.metrics.IncExcluded(doc.Name, ex.Reason)
		}
		p.metrics.SetEntries(doc.Name, doc.Entries)
		rep.Documents = append(rep.Documents, DocumentReport{
			Name:     doc.Name,
			Path:     path,
			Entries:  doc.Entries,
			Excluded: len(doc.Excluded),
		})
		appLog.Info("wrote calendar", "document", doc.Name, "path", path, "events", doc.Entries, "excluded", len(doc.Excluded))
	}

	p.metrics.MarkBuild(p.clock.Now())
	if p.cfg.MetricsTextfile != "" {
		if err := p.metrics.WriteTextfile(p.cfg.MetricsTextfile); err != nil {
			appLog.Error("metrics textfile write failed", err, "path", p.cfg.MetricsTextfile)
		}
	}

	appLog.Debug("build finished", "elapsed", time.Since(started))
	return rep, nil
}

func (p *Pipeline) outputName(doc string) string {
	switch doc {
	case ics.DocumentConfirmed:
		return p.cfg.Outputs.Confirmed
	case ics.DocumentTentative:
		return p.cfg.Outputs.Tentative
	default:
		return p.cfg.Outputs.All
	}
}
