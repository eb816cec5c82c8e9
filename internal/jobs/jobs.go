/*
Package jobs schedules the recurring work: refreshing expiring Spotify
credentials, polling every connected user's playback, and disabling
day-limited messages that ran out.
*/
package jobs

import (
	"context"
	"time"

	"github.com/go-co-op/gocron"
	log "github.com/sirupsen/logrus"
)

// default intervals, in seconds
const (
	defaultRefreshTokensInterval   = 30
	defaultPollPlayingInterval     = 15
	defaultDisableMessagesInterval = 60
)

// Config represents a configuration for the jobs
type Config struct {
	RefreshTokensInterval   uint `toml:"refresh_tokens_interval,omitempty"`
	PollPlayingInterval     uint `toml:"poll_playing_interval,omitempty"`
	DisableMessagesInterval uint `toml:"disable_messages_interval,omitempty"`
}

// Refresher refreshes expiring credentials
type Refresher interface {
	RefreshExpiring(ctx context.Context) (refreshed, revoked int, err error)
}

// Poller polls every connected user's playback
type Poller interface {
	PollAll(ctx context.Context) (polled, changed int, err error)
}

// Disabler disables messages that ran out of their updating day
type Disabler interface {
	DisableExpired() (int, error)
}

// Scheduler runs the recurring jobs
type Scheduler struct {
	scheduler *gocron.Scheduler
	refresher Refresher
	poller    Poller
	disabler  Disabler
}

// New initializes the jobs scheduler
func New(config Config, refresher Refresher, poller Poller, disabler Disabler) *Scheduler {
	if config.RefreshTokensInterval == 0 {
		config.RefreshTokensInterval = defaultRefreshTokensInterval
	}
	if config.PollPlayingInterval == 0 {
		config.PollPlayingInterval = defaultPollPlayingInterval
	}
	if config.DisableMessagesInterval == 0 {
		config.DisableMessagesInterval = defaultDisableMessagesInterval
	}

	s := &Scheduler{
		scheduler: gocron.NewScheduler(time.UTC),
		refresher: refresher,
		poller:    poller,
		disabler:  disabler,
	}
	s.addJobs(config)
	return s
}

// addJobs adds the jobs to the scheduler; each one runs right at startup and
// is a singleton so a slow run never overlaps the next
func (s *Scheduler) addJobs(config Config) {
	_, err := s.scheduler.Every(int(config.RefreshTokensInterval)).Seconds().StartImmediately().
		Tag("RefreshTokens").SingletonMode().Do(s.refreshTokens)
	if err != nil {
		log.Errorf("failed to schedule RefreshTokens: %v", err)
	}
	_, err = s.scheduler.Every(int(config.PollPlayingInterval)).Seconds().StartImmediately().
		Tag("PollPlaying").SingletonMode().Do(s.pollPlaying)
	if err != nil {
		log.Errorf("failed to schedule PollPlaying: %v", err)
	}
	_, err = s.scheduler.Every(int(config.DisableMessagesInterval)).Seconds().StartImmediately().
		Tag("DisableMessages").SingletonMode().Do(s.disableMessages)
	if err != nil {
		log.Errorf("failed to schedule DisableMessages: %v", err)
	}
}

// Start starts running the jobs in the background
func (s *Scheduler) Start() {
	s.scheduler.StartAsync()
}

// Stop stops the scheduler, waiting for running jobs to finish
func (s *Scheduler) Stop() {
	s.scheduler.Stop()
}

// refreshTokens refreshes the credentials of every user whose access token expired
func (s *Scheduler) refreshTokens() {
	logger := log.WithField("job", "RefreshTokens")

	refreshed, revoked, err := s.refresher.RefreshExpiring(context.Background())
	if err != nil {
		logger.Errorf("failed to refresh tokens: %v", err)
		return
	}
	if refreshed > 0 || revoked > 0 {
		logger.Infof("refreshed %d credentials, purged %d revoked users", refreshed, revoked)
	}
}

// pollPlaying polls every connected user's current playback
func (s *Scheduler) pollPlaying() {
	logger := log.WithField("job", "PollPlaying")

	start := time.Now()
	polled, changed, err := s.poller.PollAll(context.Background())
	if err != nil {
		logger.Errorf("failed to poll playback: %v", err)
		return
	}
	if changed > 0 {
		logger.Infof("polled %d users, %d changed, in %s", polled, changed, time.Since(start))
	}
}

// disableMessages pushes a final render to day-limited messages older than a
// day and disables them
func (s *Scheduler) disableMessages() {
	logger := log.WithField("job", "DisableMessages")

	disabled, err := s.disabler.DisableExpired()
	if err != nil {
		logger.Errorf("failed to disable expired messages: %v", err)
		return
	}
	if disabled > 0 {
		logger.Infof("disabled %d expired messages", disabled)
	}
}
