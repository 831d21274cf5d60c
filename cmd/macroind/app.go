package main

import (
	"context"
	"fmt"

	"macroind/internal/classification"
	"macroind/internal/config"
	"macroind/internal/fetchers"
	"macroind/internal/logger"
	"macroind/internal/mocks"
	"macroind/internal/normalizer"
	"macroind/internal/storage"
	"macroind/internal/warehouse"
)

// app holds everything both commands need
type app struct {
	cfg       *config.Config
	domain    *config.DomainConfig
	storage   storage.StorageClient
	warehouse *warehouse.Warehouse
	log       *logger.Logger
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(ctx)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if err := logger.Configure(logger.GetGlobalLogger(), cfg.LogLevel, cfg.LogFormat); err != nil {
		return nil, err
	}

	path := cfg.DomainConfigPath
	if domainPath != "" {
		path = domainPath
	}
	domain, err := config.LoadDomain(path)
	if err != nil {
		return nil, err
	}

	client, err := storage.NewStorageClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	a := &app{cfg: cfg, domain: domain, storage: client, log: logger.Component("main")}
	if cfg.WarehouseDriver != "" {
		wh, err := warehouse.Open(ctx, cfg.WarehouseDriver, cfg.WarehouseDSN)
		if err != nil {
			client.Close()
			return nil, err
		}
		a.warehouse = wh
	}

	a.log.Info("configuration loaded", logger.Fields{
		"domain":     domain.Name,
		"deployment": cfg.DeploymentMode,
		"mockup":     cfg.MockupMode,
		"warehouse":  cfg.WarehouseDriver,
		"version":    config.GetVersion(),
	})
	return a, nil
}

// pipeline wires live or fixture sources into a normalizer pipeline.
// record saves every live response as a fixture.
func (a *app) pipeline(record bool) (*normalizer.Pipeline, error) {
	table, err := classification.Load(a.cfg.ClassificationPath)
	if err != nil {
		return nil, err
	}

	var sources normalizer.Sources
	if a.cfg.MockupMode {
		a.log.Info("serving provider responses from fixtures", logger.Fields{"dir": a.cfg.MockDataDir})
		sources = mocks.NewMockService(a.cfg.MockDataDir).Sources()
	} else {
		f := fetchers.NewDataFetcher(a.cfg)
		sources = normalizer.Sources{
			WorldBank: f.WorldBank,
			ILO:       f.ILO,
			IMF:       f.IMF(a.cfg.IMFURL, table),
		}
		if record {
			svc := mocks.NewMockService(a.cfg.MockDataDir)
			sources = normalizer.Sources{
				WorldBank: mocks.NewRecorder(sources.WorldBank, svc),
				ILO:       mocks.NewRecorder(sources.ILO, svc),
				IMF:       mocks.NewRecorder(sources.IMF, svc),
			}
		}
	}

	var wh normalizer.Warehouse
	if a.warehouse != nil {
		wh = a.warehouse
	}
	return normalizer.NewPipeline(a.domain, sources, table, a.storage, wh), nil
}

func (a *app) Close() {
	if a.warehouse != nil {
		if err := a.warehouse.Close(); err != nil {
			a.log.Warn("failed to close warehouse", logger.Fields{"error": err.Error()})
		}
	}
	if err := a.storage.Close(); err != nil {
		a.log.Warn("failed to close storage", logger.Fields{"error": err.Error()})
	}
}
