package dispatch

import (
	"context"
	"log/slog"
	"time"

	"github.com/oriongate/dicomdispatch/internal/archive"
	"github.com/oriongate/dicomdispatch/internal/config"
	"github.com/oriongate/dicomdispatch/internal/dicom"
	"github.com/oriongate/dicomdispatch/internal/filter"
	"github.com/oriongate/dicomdispatch/internal/metrics"
	"github.com/oriongate/dicomdispatch/internal/module"
	"github.com/oriongate/dicomdispatch/internal/resilience"
	"github.com/oriongate/dicomdispatch/internal/restree"
)

// Dispatcher is the Event Dispatcher from spec.md §4.6. It holds no
// per-event state between calls to ProcessEvent — every DICOM object a
// cycle touches is built, used, and dropped within a single call, per
// the ownership rule in §5 ("a DICOM object obtained during a callback is
// owned by that callback").
type Dispatcher struct {
	archive  archive.Client
	registry *module.Registry
	filter   *filter.Engine
	parser   dicom.Parser
	mainCfg  *config.Loader
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

func New(client archive.Client, registry *module.Registry, filterEngine *filter.Engine, parser dicom.Parser, mainCfg *config.Loader, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		archive:  client,
		registry: registry,
		filter:   filterEngine,
		parser:   parser,
		mainCfg:  mainCfg,
		logger:   logger,
	}
}

// WithMetrics attaches m so this Dispatcher records cycle and module
// instrumentation. Optional: a Dispatcher with no metrics attached simply
// skips recording.
func (d *Dispatcher) WithMetrics(m *metrics.Metrics) *Dispatcher {
	d.metrics = m
	return d
}

// ProcessEvent runs one full dispatch cycle for a stable-{series,study,
// patient} event: expand the resource tree, split origin, either treat
// it as an echo or route it through matching modules, and clean up.
func (d *Dispatcher) ProcessEvent(ctx context.Context, ev Event) error {
	start := time.Now()
	branch := "empty"
	defer func() {
		if d.metrics != nil {
			d.metrics.ObserveCycle(branch, string(ev.Level), time.Since(start).Seconds())
		}
	}()

	logger := d.logger
	if ev.CorrelationID != "" {
		logger = logger.With("correlation_id", ev.CorrelationID)
	}

	tree, err := d.expand(ctx, ev)
	if err != nil {
		logger.Error("archive expansion failed, abandoning event", "event", ev.Kind, "resource", ev.ResourceID, "error", err)
		return err
	}
	if tree.Empty() {
		return nil
	}

	meta, err := d.fetchMetadata(ctx, tree)
	if err != nil {
		logger.Error("metadata fetch failed, abandoning event", "event", ev.Kind, "resource", ev.ResourceID, "error", err)
		return err
	}

	internalTree, externalTree := restree.Split(tree, meta)
	autoRemove := d.autoRemove()

	if !internalTree.Empty() {
		// Echo of this dispatcher's own output. No modules run on this
		// branch at all — spec.md §4.6's branch decision is exclusive.
		branch = "echo"
		if ev.Level == restree.LevelPatient && autoRemove {
			if err := d.archive.BulkDelete(ctx, internalTree.Flatten()); err != nil {
				logger.Error("bulk delete of internal echo failed", "error", err)
			}
		}
		return nil
	}

	if externalTree.Empty() {
		return nil
	}

	branch = "external"
	d.runExternal(ctx, logger, ev, externalTree, meta, autoRemove)
	return nil
}

func (d *Dispatcher) autoRemove() bool {
	cfg, loaded := d.mainCfg.Current()
	return loaded && cfg.AutoRemove
}

// runExternal is spec.md §4.6 steps 1–9 for the non-echo branch.
func (d *Dispatcher) runExternal(ctx context.Context, logger *slog.Logger, ev Event, externalTree restree.Tree, meta map[string]restree.InstanceMeta, autoRemove bool) {
	ids := externalTree.Flatten()
	firstMeta := meta[ids[0]]
	calledAET := firstMeta.CalledAET
	remoteAET := firstMeta.RemoteAET

	candidates := d.registry.Candidates(ev.Level, calledAET)
	if len(candidates) > 0 {
		objects := d.fetchObjects(ctx, logger, ids)
		for _, desc := range candidates {
			d.runModule(ctx, logger, desc, ev.Level, externalTree, objects, remoteAET)
		}
	}

	if ev.Level == restree.LevelPatient && autoRemove {
		if err := d.archive.BulkDelete(ctx, ids); err != nil {
			logger.Error("bulk delete of external instances failed", "error", err)
		}
	}
}

// fetchObjects fetches and parses DICOM bytes for every instance id once
// (spec.md §4.6 step 4), skipping and logging individual failures so one
// bad instance doesn't abandon the whole cycle.
func (d *Dispatcher) fetchObjects(ctx context.Context, logger *slog.Logger, ids []string) map[string]dicom.Object {
	objects := make(map[string]dicom.Object, len(ids))
	for _, id := range ids {
		raw, err := d.archive.GetDicomBytes(ctx, id)
		if err != nil {
			logger.Warn("fetching dicom bytes failed, skipping instance", "instance", id, "error", resilience.Wrap(resilience.ArchiveIO, "dispatch.get_bytes", err))
			continue
		}
		obj, err := d.parser.Parse(raw)
		if err != nil {
			logger.Warn("parsing dicom bytes failed, skipping instance", "instance", id, "error", err)
			continue
		}
		objects[id] = obj
	}
	return objects
}

// runModule is spec.md §4.6 steps 5–8 for a single candidate module.
func (d *Dispatcher) runModule(ctx context.Context, logger *slog.Logger, desc *module.Descriptor, level restree.Level, tree restree.Tree, objects map[string]dicom.Object, remoteAET string) {
	positive := toFilterSet(desc.Config.Filters)
	negative := toFilterSet(desc.Config.NegativeFilters)

	projected := restree.Build(level, tree, objects, func(obj dicom.Object) bool {
		matched := d.filter.Matches(obj, positive, negative)
		if d.metrics != nil {
			d.metrics.ObserveFilter(matched)
		}
		return matched
	})
	if projected.Empty() {
		if d.metrics != nil {
			d.metrics.ObserveModule(desc.ID, "filtered_out", 0)
		}
		return
	}

	start := time.Now()
	out, err := desc.Process(ctx, projected, remoteAET)
	if err != nil {
		logger.Error("module process failed", "module", desc.ID, "error", err)
		if d.metrics != nil {
			d.metrics.ObserveModule(desc.ID, "error", time.Since(start).Seconds())
		}
		return
	}
	if d.metrics != nil {
		d.metrics.ObserveModule(desc.ID, "ok", time.Since(start).Seconds())
	}
	if len(out) == 0 {
		return
	}

	var submittedIDs []string
	for _, obj := range out {
		id, err := d.archive.SubmitInstance(ctx, obj.Bytes())
		if err != nil {
			logger.Error("submitting module output failed", "module", desc.ID, "error", resilience.Wrap(resilience.ArchiveIO, "dispatch.submit", err))
			continue
		}
		submittedIDs = append(submittedIDs, id)
	}
	if len(submittedIDs) == 0 {
		return
	}
	if err := d.archive.StoreToModality(ctx, desc.Config.DestinationName, submittedIDs); err != nil {
		logger.Error("storing module output failed", "module", desc.ID, "destination", desc.Config.DestinationName, "error", err)
	}
}

func toFilterSet(m map[string][]string) filter.Set {
	if len(m) == 0 {
		return nil
	}
	set := make(filter.Set, len(m))
	for k, v := range m {
		set[dicom.Tag(k)] = v
	}
	return set
}

// expand materializes the 3-level resource tree for ev, per the table in
// spec.md §4.6: a Series event wraps a single series, a Study event its
// series, a Patient event every study under the patient.
func (d *Dispatcher) expand(ctx context.Context, ev Event) (restree.Tree, error) {
	switch ev.Level {
	case restree.LevelSeries:
		return d.expandSeries(ctx, ev.ResourceID)
	case restree.LevelStudy:
		return d.expandStudy(ctx, ev.ResourceID)
	case restree.LevelPatient:
		return d.expandPatient(ctx, ev.ResourceID)
	default:
		return nil, nil
	}
}

func (d *Dispatcher) expandSeries(ctx context.Context, seriesID string) (restree.Tree, error) {
	instances, err := d.archive.ListInstances(ctx, seriesID)
	if err != nil {
		return nil, resilience.Wrap(resilience.ArchiveIO, "dispatch.list_instances", err)
	}
	return restree.Tree{{
		ID:     seriesID,
		Series: []restree.Series{{ID: seriesID, Instances: instances}},
	}}, nil
}

func (d *Dispatcher) expandStudy(ctx context.Context, studyID string) (restree.Tree, error) {
	seriesIDs, err := d.archive.ListSeries(ctx, studyID)
	if err != nil {
		return nil, resilience.Wrap(resilience.ArchiveIO, "dispatch.list_series", err)
	}
	study := restree.Study{ID: studyID}
	for _, seriesID := range seriesIDs {
		instances, err := d.archive.ListInstances(ctx, seriesID)
		if err != nil {
			return nil, resilience.Wrap(resilience.ArchiveIO, "dispatch.list_instances", err)
		}
		study.Series = append(study.Series, restree.Series{ID: seriesID, Instances: instances})
	}
	return restree.Tree{study}, nil
}

func (d *Dispatcher) expandPatient(ctx context.Context, patientID string) (restree.Tree, error) {
	studyIDs, err := d.archive.ListStudies(ctx, patientID)
	if err != nil {
		return nil, resilience.Wrap(resilience.ArchiveIO, "dispatch.list_studies", err)
	}
	tree := make(restree.Tree, 0, len(studyIDs))
	for _, studyID := range studyIDs {
		seriesIDs, err := d.archive.ListSeries(ctx, studyID)
		if err != nil {
			return nil, resilience.Wrap(resilience.ArchiveIO, "dispatch.list_series", err)
		}
		study := restree.Study{ID: studyID}
		for _, seriesID := range seriesIDs {
			instances, err := d.archive.ListInstances(ctx, seriesID)
			if err != nil {
				return nil, resilience.Wrap(resilience.ArchiveIO, "dispatch.list_instances", err)
			}
			study.Series = append(study.Series, restree.Series{ID: seriesID, Instances: instances})
		}
		tree = append(tree, study)
	}
	return tree, nil
}

// fetchMetadata fetches InstanceMeta for every instance in t, the single
// walk spec.md §9's origin-split note asks for.
func (d *Dispatcher) fetchMetadata(ctx context.Context, t restree.Tree) (map[string]restree.InstanceMeta, error) {
	ids := t.Flatten()
	meta := make(map[string]restree.InstanceMeta, len(ids))
	for _, id := range ids {
		m, err := d.archive.GetMetadata(ctx, id)
		if err != nil {
			return nil, resilience.Wrap(resilience.ArchiveIO, "dispatch.get_metadata", err)
		}
		meta[id] = m
	}
	return meta, nil
}
