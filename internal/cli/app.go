package cli

import (
	"fmt"
	"path/filepath"

	"github.com/deepak/photofind/internal/catalog"
	"github.com/deepak/photofind/internal/config"
	"github.com/deepak/photofind/internal/engine"
	"github.com/deepak/photofind/internal/extract"
	"github.com/deepak/photofind/internal/faces"
	"github.com/deepak/photofind/internal/index"
	"github.com/deepak/photofind/internal/logger"
	"github.com/deepak/photofind/internal/vision"
)

// app bundles the wired-up application components for one command run.
type app struct {
	cfg        *config.Config
	log        *logger.Logger
	ocr        *vision.OCRClient
	encoder    *vision.ClipEncoder
	faceEngine *vision.FaceClient
	faceStore  *faces.Store
	idx        *index.PhotoIndex
	engine     *engine.Engine
}

// newApp loads configuration and wires the full pipeline. Sidecar
// connections are lazy HTTP clients, so construction stays cheap even
// when the services are down; only Qdrant is dialed here.
func newApp() (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	level := "info"
	if verbose {
		level = "debug"
	}
	log := logger.New(&logger.Config{
		Level:       level,
		Format:      "text",
		ServiceName: "photofind",
		LogFile:     filepath.Join(cfg.DataDir, "logs", "photofind.log"),
		MaxSizeMB:   50,
		MaxBackups:  3,
		MaxAgeDays:  14,
		Compress:    true,
	})
	logger.SetDefaultLogger(log)

	ocr := vision.NewOCRClient(&vision.OCRConfig{BaseURL: cfg.OCR.BaseURL})
	encoder := vision.NewClipEncoder(&vision.ClipConfig{
		BaseURL: cfg.Encoder.BaseURL,
		Model:   cfg.Encoder.Model,
	})
	faceEngine := vision.NewFaceClient(&vision.FaceEngineConfig{BaseURL: cfg.Faces.EngineBaseURL})

	faceStore := faces.NewStore(&faces.Config{
		Dir:            cfg.KnownFacesDir(),
		MatchThreshold: cfg.Faces.MatchThreshold,
		DetectMaxDim:   cfg.Faces.DetectMaxDim,
	}, faceEngine, log)

	var captioner vision.CaptionEngine
	if cfg.Caption.Enabled {
		captioner = vision.NewCaptioner(&vision.CaptionConfig{
			Model:   cfg.Caption.Model,
			APIKey:  cfg.Caption.APIKey,
			BaseURL: cfg.Caption.BaseURL,
		})
	}

	extractor := extract.New(ocr, faceStore, encoder, captioner, log)

	idx, err := index.New(&index.ConnectionConfig{
		Host:       cfg.Qdrant.Host,
		Port:       cfg.Qdrant.Port,
		Collection: cfg.Qdrant.Collection,
		APIKey:     cfg.Qdrant.APIKey,
		UseTLS:     cfg.Qdrant.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to qdrant: %w", err)
	}

	db, err := catalog.InitDB(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog: %w", err)
	}
	photoRepo := catalog.NewPhotoRepository(db)

	eng := engine.New(idx, extractor, photoRepo, faceStore, log)

	return &app{
		cfg:        cfg,
		log:        log,
		ocr:        ocr,
		encoder:    encoder,
		faceEngine: faceEngine,
		faceStore:  faceStore,
		idx:        idx,
		engine:     eng,
	}, nil
}

// Close releases held connections.
func (a *app) Close() {
	if a.idx != nil {
		a.idx.Close()
	}
}
