package watcher

import (
	"context"
	"errors"

	domain "github.com/oshokin/patchline-watcher/internal/domain/patchline"
	"github.com/oshokin/patchline-watcher/internal/logger"
	"github.com/oshokin/patchline-watcher/internal/repository/snapshot"
)

// Retriever fetches the binary of a region into outputDir and returns its path.
type Retriever interface {
	Retrieve(ctx context.Context, source, outputDir string) (string, error)
}

// Extractor reads the version record of a binary.
type Extractor interface {
	ExtractFile(path string) (*domain.VersionRecord, error)
}

// Store persists region snapshots.
type Store interface {
	Load(ctx context.Context, region string) (*domain.RegionSnapshot, error)
	Save(ctx context.Context, snapshot *domain.RegionSnapshot) error
}

// Processor handles a single region.
type Processor struct {
	retriever Retriever
	extractor Extractor
	store     Store
	// workDir is where the retrieval tool writes.
	workDir string
}

// NewProcessor wires the region pipeline.
func NewProcessor(workDir string, retriever Retriever, extractor Extractor, store Store) *Processor {
	return &Processor{
		retriever: retriever,
		extractor: extractor,
		store:     store,
		workDir:   workDir,
	}
}

// Process retrieves, extracts and stores one region. Failures are logged and
// reported through the outcome; the stored snapshot is only touched when a
// complete record was extracted.
func (p *Processor) Process(ctx context.Context, region domain.RegionConfig) domain.Outcome {
	key := region.Key()
	ctx = logger.WithFields(ctx, "region", key, "patch_url", region.PatchURL)

	logger.Debug(ctx, "Retrieving region binary")

	binaryPath, err := p.retriever.Retrieve(ctx, region.PatchURL, p.workDir)
	if err != nil {
		logger.ErrorKV(ctx, "Retrieval failed, region skipped", "error", err)
		return domain.OutcomeRetrievalFailed
	}

	record, err := p.extractor.ExtractFile(binaryPath)
	if err != nil {
		logger.ErrorKV(ctx, "Version extraction failed, region skipped", "path", binaryPath, "error", err)
		return domain.OutcomeExtractionFailed
	}

	current := domain.NewSnapshot(&region, record)

	previous, err := p.store.Load(ctx, key)
	if err != nil && !errors.Is(err, snapshot.ErrNotFound) {
		logger.WarnKV(ctx, "Previous snapshot unreadable, overwriting", "error", err)
	}

	outcome := domain.OutcomeUpdated

	switch {
	case previous == nil:
		logger.InfoKV(ctx, "First snapshot for region", "version_for_api", current.APIVersion)
	case previous.SameBuild(current):
		outcome = domain.OutcomeUnchanged
	default:
		logger.InfoKV(ctx, "Version changed",
			"from", previous.APIVersion, "to", current.APIVersion)
	}

	if err = p.store.Save(ctx, current); err != nil {
		logger.ErrorKV(ctx, "Snapshot write failed", "error", err)
		return domain.OutcomeStoreFailed
	}

	logger.InfoKV(ctx, "Snapshot written",
		"version", current.Version, "version_for_api", current.APIVersion, "outcome", outcome)

	return outcome
}
