package jobs

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ffa-tycoon/ffa-tycoon/internal/database"
	"github.com/ffa-tycoon/ffa-tycoon/internal/model"
	"github.com/ffa-tycoon/ffa-tycoon/internal/repository"
)

type renderCall struct {
	parkFile string
	dir      string
	kind     model.ImageKind
}

type fakeRenderer struct {
	mu    sync.Mutex
	calls []renderCall
	err   error
}

func (r *fakeRenderer) Render(ctx context.Context, parkFile, dir string, kind model.ImageKind) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, renderCall{parkFile: parkFile, dir: dir, kind: kind})
	if r.err != nil {
		return "", r.err
	}
	return string(kind) + ".png", nil
}

func (r *fakeRenderer) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func setupParks(t *testing.T) repository.ParkRepository {
	t.Helper()
	db, err := database.Connect("sqlite://:memory:")
	require.NoError(t, err)
	require.NoError(t, db.Migrate(context.Background()))
	t.Cleanup(func() { db.Close() })
	return repository.NewParkRepository(db.DB)
}

func addPark(t *testing.T, parks repository.ParkRepository, name string) *model.Park {
	t.Helper()
	park, err := parks.Add(context.Background(), model.CreateParkParams{
		Name:      name,
		GroupName: "ffa",
		GameMode:  "free for all sandbox",
		Date:      time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		Dir:       "2024-05-01_" + name,
		FileName:  name + ".park",
	})
	require.NoError(t, err)
	return park
}

func TestImageJob_Scan(t *testing.T) {
	ctx := context.Background()

	t.Run("renders into the park directory and stores the file", func(t *testing.T) {
		parks := setupParks(t)
		park := addPark(t, parks, "ffa")
		renderer := &fakeRenderer{}
		job := NewImageJob(parks, renderer, "/srv/archive", time.Minute)

		assert.Equal(t, park.ID, job.Scan(ctx, model.ImageThumbnail))

		require.Len(t, renderer.calls, 1)
		assert.Equal(t, filepath.Join("/srv/archive", "2024-05-01_ffa", "ffa.park"), renderer.calls[0].parkFile)
		assert.Equal(t, filepath.Join("/srv/archive", "2024-05-01_ffa"), renderer.calls[0].dir)
		assert.Equal(t, model.ImageThumbnail, renderer.calls[0].kind)

		found, err := parks.FindByID(ctx, park.ID)
		require.NoError(t, err)
		assert.Equal(t, "thumbnail.png", found.Image(model.ImageThumbnail))
		assert.Empty(t, found.Image(model.ImageFullsize))
	})

	t.Run("nothing missing", func(t *testing.T) {
		parks := setupParks(t)
		renderer := &fakeRenderer{}
		job := NewImageJob(parks, renderer, t.TempDir(), time.Minute)

		assert.Zero(t, job.Scan(ctx, model.ImageFullsize))
		assert.Zero(t, renderer.count())
	})

	t.Run("render failure leaves the row untouched", func(t *testing.T) {
		parks := setupParks(t)
		park := addPark(t, parks, "ffa")
		renderer := &fakeRenderer{err: errors.New("screenshotter down")}
		job := NewImageJob(parks, renderer, t.TempDir(), time.Minute)

		assert.Zero(t, job.Scan(ctx, model.ImageFullsize))

		found, err := parks.FindByID(ctx, park.ID)
		require.NoError(t, err)
		assert.Nil(t, found.LargeImg)
	})
}

func TestImageJob_Alternates(t *testing.T) {
	job := NewImageJob(nil, nil, "", time.Minute)

	assert.Equal(t, model.ImageFullsize, job.nextKind())
	assert.Equal(t, model.ImageThumbnail, job.nextKind())
	assert.Equal(t, model.ImageFullsize, job.nextKind())
}

func TestImageJob_StartStop(t *testing.T) {
	t.Run("one park per tick", func(t *testing.T) {
		parks := setupParks(t)
		park := addPark(t, parks, "ffa")
		renderer := &fakeRenderer{}
		job := NewImageJob(parks, renderer, t.TempDir(), 20*time.Millisecond)

		job.Start()
		assert.Eventually(t, func() bool {
			found, err := parks.FindByID(context.Background(), park.ID)
			return err == nil && found.Image(model.ImageFullsize) != "" && found.Image(model.ImageThumbnail) != ""
		}, 2*time.Second, 10*time.Millisecond)
		job.Stop()

		renderer.mu.Lock()
		assert.Equal(t, model.ImageFullsize, renderer.calls[0].kind)
		assert.Equal(t, model.ImageThumbnail, renderer.calls[1].kind)
		renderer.mu.Unlock()
	})

	t.Run("stop twice", func(t *testing.T) {
		job := NewImageJob(setupParks(t), &fakeRenderer{}, t.TempDir(), time.Hour)
		job.Start()
		job.Stop()
		assert.NotPanics(t, job.Stop)
	})
}
