package service

import (
	"context"
	"errors"
	"iter"
	"strings"
	"sync"
	"testing"
	"time"

	"lifesync/internal/config"
	"lifesync/internal/connector"
	"lifesync/internal/engine"
	"lifesync/internal/fetch"
	"lifesync/internal/models"
	"lifesync/internal/repository"
	"lifesync/internal/writer"
)

type memWarehouse struct {
	mu      sync.Mutex
	ensured map[string]int
	rows    map[string][]models.RawRecord
}

func (m *memWarehouse) EnsureRawTable(_ context.Context, table string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ensured == nil {
		m.ensured = map[string]int{}
	}
	m.ensured[table]++
	return nil
}

func (m *memWarehouse) UpsertRaw(_ context.Context, table string, _ []string, rows []models.RawRecord) (repository.UpsertCounts, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.rows == nil {
		m.rows = map[string][]models.RawRecord{}
	}
	m.rows[table] = append(m.rows[table], rows...)
	return repository.UpsertCounts{Inserted: len(rows)}, nil
}

func (m *memWarehouse) DeleteRawBySourceIDs(context.Context, string, []string) (int64, error) {
	return 0, nil
}

type item struct{ ID string }

func fakeFactory(name string, fail error, gate chan struct{}) connector.Factory {
	return func(d connector.Deps) engine.Service {
		return engine.Service{
			Name: name,
			Resources: []engine.Job{&engine.Resource[item]{
				Name:        "things",
				Table:       d.Table(name, "things"),
				ConflictKey: []string{"source_id"},
				Fetch: func(ctx context.Context, _ fetch.Window) iter.Seq2[item, error] {
					return fetch.Once(ctx, func(context.Context) ([]item, error) {
						if gate != nil {
							<-gate
						}
						if fail != nil {
							return nil, fail
						}
						return []item{{ID: "a"}, {ID: "b"}}, nil
					})
				},
				Transform: func(it item) (*engine.Row, error) {
					return &engine.Row{SourceID: it.ID, Data: it}, nil
				},
			}},
		}
	}
}

func newTestSync(wh *memWarehouse, registry map[string]connector.Factory) *SyncService {
	return &SyncService{
		Engine:    &engine.Engine{Writer: writer.New(wh, 0, nil)},
		Registry:  registry,
		Warehouse: wh,
	}
}

func TestResolve(t *testing.T) {
	s := newTestSync(&memWarehouse{}, map[string]connector.Factory{
		"a": fakeFactory("a", nil, nil),
		"b": fakeFactory("b", nil, nil),
	})
	s.Config.Connectors = map[string]config.ConnectorConfig{"b": {Disabled: true}}

	got, err := s.Resolve(nil)
	if err != nil || len(got) != 1 || got[0] != "a" {
		t.Fatalf("resolve(nil)=%v err=%v", got, err)
	}
	got, err = s.Resolve([]string{"b", " b ", "a"})
	if err != nil || len(got) != 2 {
		t.Fatalf("resolve=%v err=%v", got, err)
	}
	if _, err := s.Resolve([]string{"nope"}); !errors.Is(err, ErrUnknownService) {
		t.Fatalf("err=%v want=%v", err, ErrUnknownService)
	}
}

func TestRunAllIsolatesServices(t *testing.T) {
	wh := &memWarehouse{}
	s := newTestSync(wh, map[string]connector.Factory{
		"good": fakeFactory("good", nil, nil),
		"bad":  fakeFactory("bad", errors.New("boom"), nil),
	})
	sum, err := s.RunAll(context.Background(), RunRequest{})
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if sum.Success || sum.ExitCode() != 1 {
		t.Fatalf("success=%v exit=%d", sum.Success, sum.ExitCode())
	}
	if len(sum.Services) != 2 {
		t.Fatalf("services=%d want=2", len(sum.Services))
	}
	if got := len(wh.rows["raw.good__things"]); got != 2 {
		t.Fatalf("good rows=%d want=2", got)
	}
	if wh.ensured["raw.bad__things"] != 1 {
		t.Fatalf("bad table not ensured")
	}
}

func TestRunAllEnsuresTablesOnce(t *testing.T) {
	wh := &memWarehouse{}
	s := newTestSync(wh, map[string]connector.Factory{"a": fakeFactory("a", nil, nil)})
	for i := 0; i < 2; i++ {
		sum, err := s.RunAll(context.Background(), RunRequest{Services: []string{"a"}})
		if err != nil || !sum.Success {
			t.Fatalf("run %d: success=%v err=%v", i, sum.Success, err)
		}
	}
	if wh.ensured["raw.a__things"] != 1 {
		t.Fatalf("ensured=%d want=1", wh.ensured["raw.a__things"])
	}
}

func TestRunRefusesOverlap(t *testing.T) {
	gate := make(chan struct{})
	s := newTestSync(&memWarehouse{}, map[string]connector.Factory{"a": fakeFactory("a", nil, gate)})

	done := make(chan engine.ServiceResult)
	go func() { done <- s.Run(context.Background(), "a", RunRequest{}) }()
	for {
		s.mu.Lock()
		busy := s.running["a"]
		s.mu.Unlock()
		if busy {
			break
		}
	}
	second := s.Run(context.Background(), "a", RunRequest{})
	if !errors.Is(second.Err, ErrAlreadyRunning) {
		t.Fatalf("err=%v want=%v", second.Err, ErrAlreadyRunning)
	}
	close(gate)
	if first := <-done; !first.Success() {
		t.Fatalf("first run failed: %v", first.Err)
	}
}

func TestRunAllRejectsHalfRange(t *testing.T) {
	s := newTestSync(&memWarehouse{}, map[string]connector.Factory{"a": fakeFactory("a", nil, nil)})
	now := time.Now()
	if _, err := s.RunAll(context.Background(), RunRequest{Start: &now}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestRunScheduledHonoursSwitches(t *testing.T) {
	wh := &memWarehouse{}
	s := newTestSync(wh, map[string]connector.Factory{"a": fakeFactory("a", nil, nil)})
	settings := &SystemSettingsService{Repo: &memSettings{}}
	ctx := context.Background()

	if err := settings.SetEnabled(ctx, FeatureSync("a"), false); err != nil {
		t.Fatalf("err=%v", err)
	}
	s.RunScheduled(ctx, "a", settings)
	if len(wh.rows) != 0 {
		t.Fatalf("disabled service ran")
	}

	if err := settings.SetEnabled(ctx, FeatureSync("a"), true); err != nil {
		t.Fatalf("err=%v", err)
	}
	if err := settings.SetEnabled(ctx, FeatureScheduler, false); err != nil {
		t.Fatalf("err=%v", err)
	}
	s.RunScheduled(ctx, "a", settings)
	if len(wh.rows) != 0 {
		t.Fatalf("ran with scheduler off")
	}

	if err := settings.SetEnabled(ctx, FeatureScheduler, true); err != nil {
		t.Fatalf("err=%v", err)
	}
	s.RunScheduled(ctx, "a", settings)
	if len(wh.rows["raw.a__things"]) != 2 {
		t.Fatalf("rows=%d want=2", len(wh.rows["raw.a__things"]))
	}
}

type memSettings struct {
	items map[string]models.SystemSetting
}

func (m *memSettings) UpsertSystemSetting(_ context.Context, item *models.SystemSetting) error {
	if m.items == nil {
		m.items = map[string]models.SystemSetting{}
	}
	m.items[item.Key] = *item
	return nil
}

func (m *memSettings) GetSystemSettingByKey(_ context.Context, key string) (*models.SystemSetting, error) {
	item, ok := m.items[key]
	if !ok {
		return nil, nil
	}
	return &item, nil
}

func (m *memSettings) ListSystemSettings(_ context.Context, params repository.ListSystemSettingsParams) ([]models.SystemSetting, error) {
	var out []models.SystemSetting
	for k, v := range m.items {
		if params.Prefix != nil && !strings.HasPrefix(k, *params.Prefix) {
			continue
		}
		out = append(out, v)
	}
	return out, nil
}

func (m *memSettings) CountSystemSettings(ctx context.Context, params repository.ListSystemSettingsParams) (int64, error) {
	items, _ := m.ListSystemSettings(ctx, params)
	return int64(len(items)), nil
}

func TestEnsureDefaultSwitchesKeepsExisting(t *testing.T) {
	ctx := context.Background()
	settings := &SystemSettingsService{Repo: &memSettings{}}
	if err := settings.SetEnabled(ctx, FeatureSync("zaim"), false); err != nil {
		t.Fatalf("err=%v", err)
	}
	if err := settings.EnsureDefaultSwitches(ctx, []string{"zaim", "fitbit"}); err != nil {
		t.Fatalf("err=%v", err)
	}
	got, err := settings.Switches(ctx)
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	want := map[string]bool{FeatureScheduler: true, FeatureSync("zaim"): false, FeatureSync("fitbit"): true}
	if len(got) != len(want) {
		t.Fatalf("switches=%v want=%v", got, want)
	}
	for k, v := range want {
		if got[k] != v {
			t.Fatalf("%s=%v want=%v", k, got[k], v)
		}
	}
}
