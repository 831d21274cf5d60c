package normalizer

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"macroind/internal/config"
	"macroind/internal/fetchers"
	"macroind/internal/logger"
	"macroind/internal/models"
	"macroind/internal/storage"
)

// ManifestName is the object written next to each archived run
const ManifestName = "manifest.json"

// Sources holds one fetcher per provider. A nil source is only allowed when
// the domain requests nothing from it.
type Sources struct {
	WorldBank fetchers.Source
	ILO       fetchers.Source
	IMF       fetchers.Source
}

// Warehouse receives the full canonical table of a run
type Warehouse interface {
	ReplaceObservations(ctx context.Context, domain string, obs []models.Observation) error
}

// RunManifest records what one pipeline run produced
type RunManifest struct {
	RunID       string         `json:"run_id"`
	Domain      string         `json:"domain"`
	StartYear   int            `json:"start_year"`
	EndYear     int            `json:"end_year"`
	StartedAt   time.Time      `json:"started_at"`
	FinishedAt  time.Time      `json:"finished_at"`
	Output      string         `json:"output"`
	ArchivePath string         `json:"archive_path"`
	RawRows     map[string]int `json:"raw_rows"`

	Normalized   int  `json:"normalized"`
	Derived      int  `json:"derived"`
	Unmatched    int  `json:"unmatched"` // rows dropped by the classification join
	Countries    int  `json:"country_rows"`
	Aggregates   int  `json:"aggregate_rows"`
	Rows         int  `json:"rows"`
	WarehouseSet bool `json:"warehouse"`
}

// Pipeline runs one batch for one domain configuration
type Pipeline struct {
	Domain         *config.DomainConfig
	Sources        Sources
	Classification ClassificationLookup
	Storage        storage.StorageClient
	Warehouse      Warehouse // optional

	now func() time.Time
	log *logger.Logger
}

// NewPipeline creates a pipeline; warehouse may be nil
func NewPipeline(domain *config.DomainConfig, sources Sources, table ClassificationLookup, client storage.StorageClient, warehouse Warehouse) *Pipeline {
	return &Pipeline{
		Domain:         domain,
		Sources:        sources,
		Classification: table,
		Storage:        client,
		Warehouse:      warehouse,
		now:            time.Now,
		log:            logger.Component("pipeline"),
	}
}

type fetched struct {
	worldBank []*models.RawTable
	ilo       []*models.RawTable
	imf       []*models.RawTable
}

// Run fetches, normalizes, classifies, aggregates and writes the domain's
// canonical dataset. Any structural error, including a failed warehouse
// load, aborts the run before the canonical file is written. The manifest is
// written last.
func (p *Pipeline) Run(ctx context.Context) (RunManifest, error) {
	d := p.Domain
	if d == nil {
		return RunManifest{}, fmt.Errorf("pipeline has no domain config")
	}
	if p.Classification == nil {
		return RunManifest{}, fmt.Errorf("pipeline has no classification table")
	}

	started := p.now().UTC()
	manifest := RunManifest{
		RunID:     uuid.NewString(),
		Domain:    d.Name,
		StartYear: d.StartYear,
		EndYear:   d.EndYear,
		StartedAt: started,
		Output:    d.Output,
		RawRows:   make(map[string]int),
	}
	log := p.log.With(logger.Fields{"run_id": manifest.RunID, "domain": d.Name})
	log.Info("pipeline run started")

	raw, err := p.fetch(ctx)
	if err != nil {
		return manifest, err
	}
	for source, tables := range map[string][]*models.RawTable{
		models.SourceWorldBank: raw.worldBank,
		models.SourceILO:       raw.ilo,
		models.SourceIMF:       raw.imf,
	} {
		for _, t := range tables {
			manifest.RawRows[source] += t.Len()
		}
	}

	sets, err := p.normalize(raw)
	if err != nil {
		return manifest, err
	}
	merged := MergeSources(sets...)
	manifest.Normalized = len(merged)

	for _, spec := range d.Derived {
		derived := ComputeGrowth(merged, Growth{SourceCode: spec.Source, Code: spec.Code, Name: spec.Name})
		manifest.Derived += len(derived)
		merged = MergeSources(merged, derived)
	}

	countries := AttachClassification(merged, p.Classification)
	manifest.Unmatched = len(merged) - len(countries)
	manifest.Countries = len(countries)
	if manifest.Unmatched > 0 {
		log.Info("rows without classification dropped", logger.Fields{"rows": manifest.Unmatched})
	}

	canonical, err := WithGroupAggregates(countries, d.AggregateAttributes()...)
	if err != nil {
		return manifest, err
	}
	manifest.Aggregates = len(canonical) - len(countries)
	manifest.Rows = len(canonical)

	if p.Warehouse != nil {
		if err := p.Warehouse.ReplaceObservations(ctx, d.Name, canonical); err != nil {
			return manifest, fmt.Errorf("failed to load warehouse: %w", err)
		}
		manifest.WarehouseSet = true
	}

	if err := WriteCanonical(ctx, canonical, p.Storage, d.Output); err != nil {
		return manifest, err
	}

	runDir := storage.RunFolderPath(d.Name, started)
	manifest.ArchivePath = path.Join(runDir, path.Base(d.Output))
	if err := WriteCanonical(ctx, canonical, p.Storage, manifest.ArchivePath); err != nil {
		return manifest, err
	}

	manifest.FinishedAt = p.now().UTC()
	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return manifest, fmt.Errorf("failed to encode manifest: %w", err)
	}
	if err := p.Storage.StoreFile(ctx, path.Join(runDir, ManifestName), data); err != nil {
		return manifest, fmt.Errorf("failed to store manifest: %w", err)
	}

	log.Info("pipeline run finished", logger.Fields{
		"rows":       manifest.Rows,
		"aggregates": manifest.Aggregates,
		"unmatched":  manifest.Unmatched,
		"elapsed":    manifest.FinishedAt.Sub(started).String(),
	})
	return manifest, nil
}

type fetchJob struct {
	name string
	src  fetchers.Source
	req  fetchers.Request
	dst  *[]*models.RawTable
}

// fetch queries every configured source concurrently
func (p *Pipeline) fetch(ctx context.Context) (fetched, error) {
	d := p.Domain
	var out fetched

	base := fetchers.Request{StartYear: d.StartYear, EndYear: d.EndYear}
	wb, ilo, imf := base, base, base
	wb.Indicators = d.WorldBank
	ilo.Indicators = d.ILO
	if d.IMF != nil {
		imf.Dataset = d.IMF.Dataset
		imf.Indicators = d.IMF.Indicators
	}

	jobs := []fetchJob{
		{models.SourceWorldBank, p.Sources.WorldBank, wb, &out.worldBank},
		{models.SourceILO, p.Sources.ILO, ilo, &out.ilo},
		{models.SourceIMF, p.Sources.IMF, imf, &out.imf},
	}
	for _, job := range jobs {
		if len(job.req.Indicators) > 0 && job.src == nil {
			return out, fmt.Errorf("domain %s requests %s data but no %s source is configured", d.Name, job.name, job.name)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, job := range jobs {
		if len(job.req.Indicators) == 0 {
			continue
		}
		g.Go(func() error {
			tables, err := job.src.Fetch(gctx, job.req)
			if err != nil {
				return fmt.Errorf("failed to fetch %s: %w", job.name, err)
			}
			if len(tables) != len(job.req.Indicators) {
				return fmt.Errorf("%s returned %d tables for %d indicators", job.name, len(tables), len(job.req.Indicators))
			}
			*job.dst = tables
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return out, err
	}
	return out, nil
}

// normalize maps every fetched table in source order: World Bank, ILO, IMF
func (p *Pipeline) normalize(raw fetched) ([][]models.Observation, error) {
	d := p.Domain
	var sets [][]models.Observation

	wbMapping := WorldBankMapping(d.WorldBank)
	for _, t := range raw.worldBank {
		obs, err := NormalizeIndicator(t, wbMapping)
		if err != nil {
			return nil, fmt.Errorf("failed to normalize World Bank data: %w", err)
		}
		sets = append(sets, obs)
	}

	for i, t := range raw.ilo {
		obs, err := NormalizeIndicator(t, ILOMapping(d.ILO[i], d.DimensionLabels))
		if err != nil {
			return nil, fmt.Errorf("failed to normalize ILO data: %w", err)
		}
		sets = append(sets, obs)
	}

	if d.IMF != nil {
		imfMapping := IMFMapping(d.IMF.Indicators)
		for _, t := range raw.imf {
			obs, err := NormalizeIndicator(t, imfMapping)
			if err != nil {
				return nil, fmt.Errorf("failed to normalize IMF data: %w", err)
			}
			sets = append(sets, obs)
		}
	}
	return sets, nil
}
