// Package schedule triggers pipeline runs at fixed local times.
package schedule

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"
	_ "time/tzdata" // Asia/Seoul must resolve on minimal images

	"github.com/robfig/cron/v3"

	"github.com/gn-clipper/news-clipper/internal/logger"
)

// DefaultTimezone is the zone run times are interpreted in.
const DefaultTimezone = "Asia/Seoul"

// Slot is one daily run.
type Slot struct {
	Name     string        `mapstructure:"name"`
	At       string        `mapstructure:"at"`
	Lookback time.Duration `mapstructure:"lookback"`
}

// DefaultSlots are the morning and evening clipping runs.
func DefaultSlots() []Slot {
	return []Slot{
		{Name: "morning", At: "10:00", Lookback: 16 * time.Hour},
		{Name: "evening", At: "18:00", Lookback: 8 * time.Hour},
	}
}

// Spec converts the slot's HH:MM into a daily cron expression.
func (s Slot) Spec() (string, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(s.At), ":")
	if !ok {
		return "", fmt.Errorf("run %q: time %q is not HH:MM", s.Name, s.At)
	}
	hour, err := strconv.Atoi(hh)
	if err != nil || hour < 0 || hour > 23 {
		return "", fmt.Errorf("run %q: invalid hour in %q", s.Name, s.At)
	}
	minute, err := strconv.Atoi(mm)
	if err != nil || minute < 0 || minute > 59 {
		return "", fmt.Errorf("run %q: invalid minute in %q", s.Name, s.At)
	}
	return fmt.Sprintf("%d %d * * *", minute, hour), nil
}

// RunFunc executes one pipeline run.
type RunFunc func(ctx context.Context, name string, lookback time.Duration)

// Entry describes a registered slot.
type Entry struct {
	Name string
	Next time.Time
}

// Scheduler wraps a cron instance. Runs are not serialized; overlapping runs are safe
// because every seen-set transition is atomic.
type Scheduler struct {
	cron  *cron.Cron
	loc   *time.Location
	log   logger.Logger
	slots []Slot
	ids   []cron.EntryID

	mu  sync.Mutex
	ctx context.Context
}

// New registers every slot on a cron instance in the given timezone.
func New(timezone string, slots []Slot, run RunFunc, log logger.Logger) (*Scheduler, error) {
	log = logger.Ensure(log)
	if timezone == "" {
		timezone = DefaultTimezone
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", timezone, err)
	}
	if len(slots) == 0 {
		slots = DefaultSlots()
	}

	s := &Scheduler{
		loc:   loc,
		log:   log,
		slots: slots,
		ctx:   context.Background(),
	}
	cl := cronLogger{log: log}
	s.cron = cron.New(
		cron.WithLocation(loc),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl)),
	)

	for _, slot := range slots {
		spec, err := slot.Spec()
		if err != nil {
			return nil, err
		}
		if slot.Lookback <= 0 {
			return nil, fmt.Errorf("run %q: lookback must be positive", slot.Name)
		}
		id, err := s.cron.AddFunc(spec, func() {
			run(s.runContext(), slot.Name, slot.Lookback)
		})
		if err != nil {
			return nil, fmt.Errorf("schedule run %q: %w", slot.Name, err)
		}
		s.ids = append(s.ids, id)
		log.InfoObj("run scheduled", "schedule_add", map[string]any{
			"name":     slot.Name,
			"cron":     spec,
			"lookback": slot.Lookback.String(),
			"timezone": loc.String(),
		})
	}
	return s, nil
}

func (s *Scheduler) runContext() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctx
}

// Entries lists the slots with their next fire time. Next is zero before Run starts.
func (s *Scheduler) Entries() []Entry {
	out := make([]Entry, 0, len(s.ids))
	for i, id := range s.ids {
		out = append(out, Entry{Name: s.slots[i].Name, Next: s.cron.Entry(id).Next})
	}
	return out
}

// Run starts the cron loop and blocks until ctx is done, then waits for running jobs.
func (s *Scheduler) Run(ctx context.Context) {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()

	s.cron.Start()
	for _, e := range s.Entries() {
		s.log.InfoObj("next run", "schedule_next", map[string]any{
			"name": e.Name,
			"at":   e.Next.In(s.loc).Format(time.RFC3339),
		})
	}

	<-ctx.Done()
	s.log.InfoObj("scheduler stopping", "schedule_stop", map[string]any{})
	<-s.cron.Stop().Done()
}

// cronLogger adapts logger.Logger to cron.Logger.
type cronLogger struct {
	log logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.DebugObj(msg, "cron", kv(keysAndValues))
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	fields := kv(keysAndValues)
	fields["error"] = err.Error()
	l.log.ErrorObj(msg, "cron_error", fields)
}

func kv(pairs []interface{}) map[string]any {
	out := make(map[string]any, len(pairs)/2+1)
	for i := 0; i+1 < len(pairs); i += 2 {
		out[fmt.Sprint(pairs[i])] = pairs[i+1]
	}
	return out
}
