package jobs

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ffa-tycoon/ffa-tycoon/internal/model"
	"github.com/ffa-tycoon/ffa-tycoon/internal/repository"
)

// ImageRenderer turns a park save into an image file inside dir and returns
// the file name.
type ImageRenderer interface {
	Render(ctx context.Context, parkFile, dir string, kind model.ImageKind) (string, error)
}

// ImageJob fills in missing park images. Each tick handles at most one park
// and alternates between full-size images and thumbnails.
type ImageJob struct {
	parks    repository.ParkRepository
	renderer ImageRenderer
	root     string
	interval time.Duration
	done     chan struct{}
	stopOnce sync.Once

	mu   sync.Mutex
	next model.ImageKind
}

func NewImageJob(parks repository.ParkRepository, renderer ImageRenderer, root string, interval time.Duration) *ImageJob {
	return &ImageJob{
		parks:    parks,
		renderer: renderer,
		root:     root,
		interval: interval,
		done:     make(chan struct{}),
		next:     model.ImageFullsize,
	}
}

func (j *ImageJob) Start() {
	go j.run()
	log.Info().Dur("interval", j.interval).Msg("image job started")
}

func (j *ImageJob) Stop() {
	j.stopOnce.Do(func() {
		close(j.done)
		log.Info().Msg("image job stopped")
	})
}

func (j *ImageJob) run() {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-j.done:
			return
		case <-ticker.C:
			j.tick()
		}
	}
}

func (j *ImageJob) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	go func() {
		select {
		case <-j.done:
			cancel()
		case <-ctx.Done():
		}
	}()

	j.Scan(ctx, j.nextKind())
}

func (j *ImageJob) nextKind() model.ImageKind {
	j.mu.Lock()
	defer j.mu.Unlock()
	kind := j.next
	if kind == model.ImageFullsize {
		j.next = model.ImageThumbnail
	} else {
		j.next = model.ImageFullsize
	}
	return kind
}

// Scan renders the kind image of the first park missing one. It returns the
// id of the park it updated, or 0 when nothing was done.
func (j *ImageJob) Scan(ctx context.Context, kind model.ImageKind) int64 {
	park, err := j.parks.FindMissingImage(ctx, kind)
	if err != nil {
		log.Error().Err(err).Str("kind", string(kind)).Msg("failed to find park missing image")
		return 0
	}
	if park == nil {
		return 0
	}

	logger := log.With().Int64("parkId", park.ID).Str("kind", string(kind)).Logger()
	dir := filepath.Join(j.root, park.DirName())
	parkFile := filepath.Join(dir, park.SaveFile())

	started := time.Now()
	filename, err := j.renderer.Render(ctx, parkFile, dir, kind)
	if err != nil {
		logger.Error().Err(err).Msg("failed to render park image")
		return 0
	}
	if err := j.parks.ReplaceImage(ctx, park.ID, kind, filename); err != nil {
		logger.Error().Err(err).Msg("failed to store park image")
		return 0
	}

	logger.Info().Str("file", filename).Dur("elapsed", time.Since(started)).Msg("rendered park image")
	return park.ID
}
