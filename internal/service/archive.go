package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/rs/zerolog/log"

	"github.com/ffa-tycoon/ffa-tycoon/internal/config"
	apperrors "github.com/ffa-tycoon/ffa-tycoon/internal/errors"
	"github.com/ffa-tycoon/ffa-tycoon/internal/fileman"
	"github.com/ffa-tycoon/ffa-tycoon/internal/gameserver"
	"github.com/ffa-tycoon/ffa-tycoon/internal/model"
	"github.com/ffa-tycoon/ffa-tycoon/internal/repository"
)

// SaveExtensions are the file extensions the game may write a save with,
// in order of preference when both already exist.
var SaveExtensions = []string{".sv6", ".park"}

const dateLayout = "2006-01-02_15-04-05"

// SaveBaseName builds the save file name (without extension) the game is
// asked to write.
func SaveBaseName(now time.Time, server string) string {
	name := []rune(now.Format(dateLayout) + "_" + server)
	if len(name) > config.SaveNameMaxLength {
		name = name[:config.SaveNameMaxLength]
	}
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return '-'
		}
		return r
	}, strings.TrimSpace(string(name)))
}

// ArchiveDirName is the directory a fresh park is archived into.
func ArchiveDirName(now time.Time, server string) string {
	return now.Format(dateLayout) + "_" + server
}

// SaveResult describes one archived save.
type SaveResult struct {
	ParkID   int64  `json:"id"`
	Dir      string `json:"dir"`
	FileName string `json:"filename"`
	Created  bool   `json:"created"`
}

// Archiver runs the save pipeline: ask the game to save, wait for the file,
// move it into the archive and record it in the park store.
type Archiver struct {
	parks repository.ParkRepository
	inTx  repository.Transactor
	root  string
	now   func() time.Time

	waitTimeout  time.Duration
	pollInterval time.Duration
	pollCount    int
	attempts     int
	extensions   []string

	observe func(server string, err error)
}

type ArchiverOption func(*Archiver)

// WithSaveTimings overrides the file wait timeout and the stabilization
// polling.
func WithSaveTimings(wait, pollInterval time.Duration, pollCount int) ArchiverOption {
	return func(a *Archiver) {
		a.waitTimeout = wait
		a.pollInterval = pollInterval
		a.pollCount = pollCount
	}
}

func WithArchiveClock(now func() time.Time) ArchiverOption {
	return func(a *Archiver) { a.now = now }
}

// WithTransactions records archive rows through tx.
func WithTransactions(tx repository.Transactor) ArchiverOption {
	return func(a *Archiver) { a.inTx = tx }
}

// WithSaveObserver is called once per Save with its outcome.
func WithSaveObserver(fn func(server string, err error)) ArchiverOption {
	return func(a *Archiver) { a.observe = fn }
}

func NewArchiver(parks repository.ParkRepository, root string, opts ...ArchiverOption) *Archiver {
	a := &Archiver{
		parks:        parks,
		root:         root,
		now:          time.Now,
		waitTimeout:  config.SaveWaitTimeout,
		pollInterval: config.SavePollInterval,
		pollCount:    config.SavePollCount,
		attempts:     config.SaveAttempts,
		extensions:   SaveExtensions,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.inTx == nil {
		a.inTx = func(ctx context.Context, fn func(repository.ParkRepository) error) error {
			return fn(a.parks)
		}
	}
	return a
}

func (a *Archiver) Root() string {
	return a.root
}

// Save archives the running park of s. A session bound to an archive row
// updates that row; any other session gets a new row and is bound to it.
func (a *Archiver) Save(ctx context.Context, s *gameserver.Session) (*SaveResult, error) {
	result, err := a.save(ctx, s)
	if a.observe != nil {
		a.observe(s.Name(), err)
	}
	return result, err
}

func (a *Archiver) save(ctx context.Context, s *gameserver.Session) (*SaveResult, error) {
	release, ok := s.TryBeginSave()
	if !ok {
		return nil, apperrors.SaveInProgress(s.Name())
	}
	defer release()

	if !s.Managed() {
		return nil, apperrors.UnmanagedServer(s.Name())
	}

	now := a.now()
	logger := log.With().Str("server", s.Name()).Logger()

	ref := s.Ref()
	var park *model.Park
	if id := ref.ArchiveID(); id != nil {
		found, err := a.parks.FindByID(ctx, *id)
		if err != nil {
			return nil, apperrors.Database(err)
		}
		if found == nil || found.DirName() == "" {
			logger.Warn().Int64("parkId", *id).Msg("bound park row is gone, archiving as a new park")
		} else {
			park = found
		}
	}

	dirName := ArchiveDirName(now, s.Name())
	if park != nil {
		dirName = park.DirName()
	}
	archivePath := filepath.Join(a.root, dirName)

	created, err := fileman.EnsureDir(archivePath)
	if err != nil {
		return nil, apperrors.ArchiveIO("mkdir", err)
	}
	if park != nil && created {
		logger.Warn().Str("dir", dirName).Msg("archive directory was missing and has been recreated")
	}

	var filename string
	for attempt := 1; attempt <= a.attempts; attempt++ {
		filename, err = a.saveOnce(ctx, s, archivePath)
		if err == nil {
			break
		}
		logger.Warn().Err(err).Int("attempt", attempt).Msg("save attempt failed")
		if ctx.Err() != nil {
			break
		}
	}
	if err != nil {
		if park == nil && created {
			if rmErr := os.RemoveAll(archivePath); rmErr != nil {
				logger.Error().Err(rmErr).Str("dir", dirName).Msg("error removing empty archive directory")
			}
		}
		logger.Error().Err(err).Msg("error saving park")
		return nil, err
	}

	result := &SaveResult{Dir: dirName, FileName: filename}
	if park != nil {
		result.ParkID = park.ID
		err = a.inTx(ctx, func(parks repository.ParkRepository) error {
			if err := parks.ChangeFileName(ctx, park.ID, filename); err != nil {
				return err
			}
			if err := parks.UpdateDate(ctx, park.ID, now); err != nil {
				return err
			}
			return parks.RemoveImages(ctx, park.ID)
		})
		if err != nil {
			return nil, apperrors.Database(err)
		}
		a.removeImageFiles(archivePath, park)
	} else {
		added, err := a.parks.Add(ctx, model.CreateParkParams{
			Name:      s.Name(),
			GroupName: s.Group(),
			GameMode:  s.Mode(),
			Date:      now,
			Scenario:  s.Details(ctx, false).ScenarioName(),
			Dir:       dirName,
			FileName:  filename,
		})
		if err != nil {
			return nil, apperrors.Database(err)
		}
		if !s.BindFrom(ref, added.ID) {
			logger.Info().Int64("parkId", added.ID).Msg("park changed during save, session left unbound")
		}
		result.ParkID = added.ID
		result.Created = true
	}

	logger.Info().
		Int64("parkId", result.ParkID).
		Str("file", filename).
		Bool("created", result.Created).
		Msg("park archived")

	return result, nil
}

func (a *Archiver) saveOnce(ctx context.Context, s *gameserver.Session, dest string) (string, error) {
	base := SaveBaseName(a.now(), s.Name())
	if _, err := s.Save(ctx, base); err != nil {
		return "", err
	}

	candidates := make([]string, 0, len(a.extensions))
	for _, ext := range a.extensions {
		candidates = append(candidates, filepath.Join(s.SaveDir(), "save", base+ext))
	}
	found, err := fileman.WaitForFirst(ctx, candidates, a.waitTimeout)
	if err != nil {
		return "", apperrors.ArchiveIO("watch", err)
	}
	if found == "" {
		return "", apperrors.SaveFileNotFound(base)
	}

	size, err := fileman.Stabilize(ctx, found, a.pollInterval, a.pollCount)
	if err != nil {
		return "", apperrors.ArchiveIO("stat", err)
	}
	if size == 0 {
		if err := fileman.RemoveIfExists(found); err != nil {
			log.Error().Err(err).Str("file", found).Msg("error removing empty save")
		}
		return "", apperrors.EmptySaveFile(found)
	}

	name := filepath.Base(found)
	if err := fileman.Move(found, filepath.Join(dest, name)); err != nil {
		return "", apperrors.ArchiveIO("move", err)
	}
	return name, nil
}

// removeImageFiles deletes the rendered images of a park whose save was
// replaced.
func (a *Archiver) removeImageFiles(dir string, park *model.Park) {
	for _, kind := range []model.ImageKind{model.ImageFullsize, model.ImageThumbnail} {
		name := park.Image(kind)
		if name == "" {
			continue
		}
		if err := fileman.RemoveIfExists(filepath.Join(dir, filepath.Base(name))); err != nil {
			log.Warn().Err(err).Int64("parkId", park.ID).Str("image", name).Msg("error removing stale image")
		}
	}
}

// SaveAll archives every session concurrently. Results are returned in
// session order; failed sessions have a nil result and their errors are
// joined.
func (a *Archiver) SaveAll(ctx context.Context, sessions []*gameserver.Session) ([]*SaveResult, error) {
	results := make([]*SaveResult, len(sessions))
	errs := make([]error, len(sessions))

	var wg sync.WaitGroup
	for i, s := range sessions {
		wg.Add(1)
		go func(i int, s *gameserver.Session) {
			defer wg.Done()
			results[i], errs[i] = a.Save(ctx, s)
		}(i, s)
	}
	wg.Wait()

	return results, errors.Join(errs...)
}
