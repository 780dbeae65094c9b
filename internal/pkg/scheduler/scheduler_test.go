package scheduler

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/Marketly/internal/pkg/jobqueue"
)

type fakeQueue struct {
	types []jobqueue.JobType
	err   error
}

func (f *fakeQueue) EnqueueJob(jobType jobqueue.JobType, _ map[string]interface{}) (*jobqueue.Job, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.types = append(f.types, jobType)
	return &jobqueue.Job{Type: jobType}, nil
}

func TestStartRegistersSchedules(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		entries int
		wantErr bool
	}{
		{"defaults", Config{SweepSchedule: DefaultSweepSchedule, ReminderSchedule: DefaultReminderSchedule}, 2, false},
		{"descriptor", Config{SweepSchedule: "@every 5m", ReminderSchedule: "@daily"}, 2, false},
		{"reminders disabled", Config{SweepSchedule: "@hourly"}, 1, false},
		{"invalid expression", Config{SweepSchedule: "every now and then"}, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(&fakeQueue{}, tt.cfg)
			err := s.Start()
			defer s.Stop()

			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.entries, s.Entries())
		})
	}
}

func TestEnqueueHelpers(t *testing.T) {
	q := &fakeQueue{}
	s := New(q, Config{})

	s.EnqueueSweep()
	s.EnqueueReminder()

	assert.Equal(t, []jobqueue.JobType{jobqueue.JobTypeSubscriptionSweep, jobqueue.JobTypeSubscriptionReminder}, q.types)
}

func TestEnqueueErrorIsLogged(t *testing.T) {
	q := &fakeQueue{err: errors.New("redis down")}
	s := New(q, Config{})

	assert.NotPanics(t, s.EnqueueSweep)
	assert.Empty(t, q.types)
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("SWEEP_SCHEDULE", "@every 10m")

	cfg := ConfigFromEnv()
	assert.Equal(t, "@every 10m", cfg.SweepSchedule)
	assert.Equal(t, DefaultReminderSchedule, cfg.ReminderSchedule)
}
