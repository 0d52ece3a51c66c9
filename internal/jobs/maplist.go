package jobs

import (
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// MapRefresher reloads the lists of playable maps.
type MapRefresher interface {
	Refresh() error
}

// MapListJob reloads the map catalog on a cron schedule so maps added to the
// parks directory become votable without a restart.
type MapListJob struct {
	maps MapRefresher
	spec string
	cron *cron.Cron
}

func NewMapListJob(maps MapRefresher, spec string) *MapListJob {
	return &MapListJob{
		maps: maps,
		spec: spec,
		cron: cron.New(),
	}
}

func (j *MapListJob) Start() error {
	if _, err := j.cron.AddFunc(j.spec, j.refresh); err != nil {
		return fmt.Errorf("schedule map list refresh: %w", err)
	}
	j.cron.Start()
	log.Info().Str("schedule", j.spec).Msg("map list job started")
	return nil
}

// Stop halts the schedule and waits for a running refresh to finish.
func (j *MapListJob) Stop() {
	<-j.cron.Stop().Done()
	log.Info().Msg("map list job stopped")
}

func (j *MapListJob) refresh() {
	if err := j.maps.Refresh(); err != nil {
		log.Error().Err(err).Msg("failed to refresh map lists")
	}
}
