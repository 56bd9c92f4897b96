package schedule

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/gn-clipper/news-clipper/internal/logger"
)

func TestSlotSpec(t *testing.T) {
	tests := map[string]struct {
		at      string
		want    string
		wantErr bool
	}{
		"morning":        {at: "10:00", want: "0 10 * * *"},
		"evening":        {at: "18:30", want: "30 18 * * *"},
		"padded":         {at: " 07:05 ", want: "5 7 * * *"},
		"missing colon":  {at: "1000", wantErr: true},
		"hour too large": {at: "24:00", wantErr: true},
		"bad minute":     {at: "10:7x", wantErr: true},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			got, err := Slot{Name: name, At: tt.at}.Spec()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewDefaultsAndNextRun(t *testing.T) {
	s, err := New("", nil, func(context.Context, string, time.Duration) {}, nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultTimezone, s.loc.String())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	require.Eventually(t, func() bool {
		entries := s.Entries()
		return len(entries) == 2 && !entries[0].Next.IsZero()
	}, time.Second, 10*time.Millisecond)

	entries := s.Entries()
	assert.Equal(t, "morning", entries[0].Name)
	next := entries[0].Next.In(s.loc)
	assert.Equal(t, 10, next.Hour())
	assert.Equal(t, 0, next.Minute())
}

func TestNewRejectsInvalidSlots(t *testing.T) {
	noop := func(context.Context, string, time.Duration) {}

	_, err := New("Mars/Olympus", nil, noop, nil)
	assert.Error(t, err)

	_, err = New(DefaultTimezone, []Slot{{Name: "x", At: "25:00", Lookback: time.Hour}}, noop, nil)
	assert.Error(t, err)

	_, err = New(DefaultTimezone, []Slot{{Name: "x", At: "10:00"}}, noop, nil)
	assert.Error(t, err)
}

func TestCronLoggerAdapter(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	cl := cronLogger{log: logger.FromZap(zap.New(core))}

	cl.Info("wake", "now", "10:00")
	cl.Error(errors.New("panic"), "job failed", "entry", 1)

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, zap.ErrorLevel, entries[1].Level)
	assert.Equal(t, map[string]any{"entry": 1, "error": "panic"}, entries[1].ContextMap()["cron_error"])
}
