package container

import (
	"fmt"

	"github.com/chronicler/mediastore/cmd/mediastore/service"
	"github.com/chronicler/mediastore/common/bootstrap"
	"github.com/chronicler/mediastore/common/models"
	"github.com/chronicler/mediastore/common/objstore"
	"github.com/chronicler/mediastore/common/repository"
)

// Container holds all initialized services and repositories (singleton pattern)
type Container struct {
	Components *bootstrap.Components

	// Repositories
	MediaRepo *repository.MediaRepository
	BoxRepo   *repository.BoxRepository

	// Object store client pool, shared by direct sync and content serving
	Pool *objstore.Pool

	// Services
	Selector       *service.BoxSelector
	Buffer         *service.BufferWriter
	PostProcessor  *service.PostProcessor
	SyncService    *service.SyncService
	ArchiveService *service.ArchiveService
}

// NewContainer initializes all services and repositories once
func NewContainer(components *bootstrap.Components) (*Container, error) {
	cfg := components.Config

	// Repositories
	mediaRepo := repository.NewMediaRepository(components.DB)
	boxRepo := repository.NewBoxRepository(components.DB)

	pool := objstore.NewPool(components.Logger)

	// Services (bottom-up: dependencies first)
	selector := service.NewBoxSelector(boxRepo, cfg.Selector, components.Logger)
	buffer := service.NewBufferWriter(cfg.Buffer, components.Logger)

	postProcessor, err := service.NewPostProcessor(cfg.PostProcess, components.Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize post-processor: %w", err)
	}

	syncService := service.NewSyncService(
		cfg.Sync,
		poolAdapter{pool},
		components.Queue,
		mediaRepo,
		boxRepo,
		components.Logger,
	)

	archiveService := service.NewArchiveService(
		mediaRepo,
		selector,
		boxRepo,
		buffer,
		postProcessor,
		syncService,
		components.Logger,
	)

	return &Container{
		Components:     components,
		MediaRepo:      mediaRepo,
		BoxRepo:        boxRepo,
		Pool:           pool,
		Selector:       selector,
		Buffer:         buffer,
		PostProcessor:  postProcessor,
		SyncService:    syncService,
		ArchiveService: archiveService,
	}, nil
}

// poolAdapter narrows the concrete pool to the client surface the sync
// service consumes
type poolAdapter struct {
	pool *objstore.Pool
}

func (a poolAdapter) Client(box *models.StorageBox) (service.BoxClient, error) {
	return a.pool.Client(box)
}
