package cardlink

import (
	"context"
	"testing"

	cardlinkcommand "github.com/osmi-labs/cardlink/command"
	"github.com/osmi-labs/cardlink/core"
	cardlinkquery "github.com/osmi-labs/cardlink/query"
)

type stubPipelineService struct {
	ingested [][2]string
	cfg      core.Config
	deps     core.ServiceDependencies
}

func (s *stubPipelineService) Ingest(_ context.Context, serial string, event string) error {
	s.ingested = append(s.ingested, [2]string{serial, event})
	return nil
}

func (s *stubPipelineService) Config() core.Config {
	return s.cfg
}

func (s *stubPipelineService) Dependencies() core.ServiceDependencies {
	return s.deps
}

func (s *stubPipelineService) RetryScheduler() *core.RetryScheduler {
	return nil
}

func (s *stubPipelineService) BonusReconciler() *core.BonusReconciler {
	return nil
}

type stubRetryRunner struct {
	calls int
	stats core.RetryStats
}

func (s *stubRetryRunner) RunPass(context.Context) (core.RetryStats, error) {
	s.calls++
	return s.stats, nil
}

type stubBonusRunner struct {
	calls int
	stats core.BonusStats
}

func (s *stubBonusRunner) RunPass(context.Context) (core.BonusStats, error) {
	s.calls++
	return s.stats, nil
}

type stubFacadeTaskReader struct {
	tasks       []core.Task
	maxAttempts []int
}

func (s *stubFacadeTaskReader) ListFrozen(_ context.Context, maxAttempts int) ([]core.Task, error) {
	s.maxAttempts = append(s.maxAttempts, maxAttempts)
	return s.tasks, nil
}

type stubFacadeSubscriberReader struct {
	subscriber core.Subscriber
}

func (s *stubFacadeSubscriberReader) Get(context.Context, string) (core.Subscriber, error) {
	return s.subscriber, nil
}

func newFacadeService() *stubPipelineService {
	cfg := core.DefaultConfig()
	return &stubPipelineService{cfg: cfg}
}

func TestNewFacadeRequiresService(t *testing.T) {
	if _, err := NewFacade(nil); err == nil {
		t.Fatalf("expected error for nil service")
	}
}

func TestNewFacadeBuildsCommandsAndQueries(t *testing.T) {
	service := newFacadeService()
	facade, err := NewFacade(service,
		WithRetryService(&stubRetryRunner{}),
		WithBonusService(&stubBonusRunner{}),
		WithFrozenTaskReader(&stubFacadeTaskReader{}),
		WithSubscriberReader(&stubFacadeSubscriberReader{}),
	)
	if err != nil {
		t.Fatalf("new facade: %v", err)
	}

	commands := facade.Commands()
	if commands.IngestCardEvent == nil || commands.RunRetryPass == nil || commands.RunBonusPass == nil {
		t.Fatalf("every command must be built: %+v", commands)
	}
	queries := facade.Queries()
	if queries.ListFrozenTasks == nil || queries.GetSubscriber == nil {
		t.Fatalf("every query must be built: %+v", queries)
	}
	if facade.Service() == nil {
		t.Fatalf("facade must retain the service")
	}
}

func TestFacadeIngestCommandReachesService(t *testing.T) {
	service := newFacadeService()
	facade, err := NewFacade(service,
		WithRetryService(&stubRetryRunner{}),
		WithBonusService(&stubBonusRunner{}),
		WithFrozenTaskReader(&stubFacadeTaskReader{}),
		WithSubscriberReader(&stubFacadeSubscriberReader{}),
	)
	if err != nil {
		t.Fatalf("new facade: %v", err)
	}

	err = facade.Commands().IngestCardEvent.Execute(context.Background(), cardlinkcommand.IngestCardEventMessage{
		Serial: "ABC123",
		Event:  "cardcreate",
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if len(service.ingested) != 1 || service.ingested[0] != [2]string{"ABC123", "cardcreate"} {
		t.Fatalf("unexpected ingested events: %+v", service.ingested)
	}
}

func TestFacadePassCommandsUseOverrides(t *testing.T) {
	retry := &stubRetryRunner{stats: core.RetryStats{Retired: 2}}
	bonus := &stubBonusRunner{stats: core.BonusStats{Granted: 1}}
	facade, err := NewFacade(newFacadeService(),
		WithRetryService(retry),
		WithBonusService(bonus),
		WithFrozenTaskReader(&stubFacadeTaskReader{}),
		WithSubscriberReader(&stubFacadeSubscriberReader{}),
	)
	if err != nil {
		t.Fatalf("new facade: %v", err)
	}

	ctx := context.Background()
	if err := facade.Commands().RunRetryPass.Execute(ctx, cardlinkcommand.RunRetryPassMessage{}); err != nil {
		t.Fatalf("retry pass: %v", err)
	}
	if err := facade.Commands().RunBonusPass.Execute(ctx, cardlinkcommand.RunBonusPassMessage{}); err != nil {
		t.Fatalf("bonus pass: %v", err)
	}
	if retry.calls != 1 || bonus.calls != 1 {
		t.Fatalf("pass commands must hit the configured runners: %d %d", retry.calls, bonus.calls)
	}
}

func TestFacadeFrozenQueryUsesConfiguredBudget(t *testing.T) {
	service := newFacadeService()
	service.cfg.Retry.MaxAttempts = 4
	reader := &stubFacadeTaskReader{tasks: []core.Task{{ID: "t1"}}}
	facade, err := NewFacade(service,
		WithRetryService(&stubRetryRunner{}),
		WithBonusService(&stubBonusRunner{}),
		WithFrozenTaskReader(reader),
		WithSubscriberReader(&stubFacadeSubscriberReader{}),
	)
	if err != nil {
		t.Fatalf("new facade: %v", err)
	}

	tasks, err := facade.Queries().ListFrozenTasks.Query(context.Background(), cardlinkquery.ListFrozenTasksMessage{})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(tasks) != 1 || tasks[0].ID != "t1" {
		t.Fatalf("unexpected tasks: %+v", tasks)
	}
	if len(reader.maxAttempts) != 1 || reader.maxAttempts[0] != 4 {
		t.Fatalf("query must carry the configured attempt budget, got %v", reader.maxAttempts)
	}
}

func TestFacadeSubscriberQuery(t *testing.T) {
	reader := &stubFacadeSubscriberReader{subscriber: core.Subscriber{UUID: "u1", Email: "jane@example.com"}}
	facade, err := NewFacade(newFacadeService(),
		WithRetryService(&stubRetryRunner{}),
		WithBonusService(&stubBonusRunner{}),
		WithFrozenTaskReader(&stubFacadeTaskReader{}),
		WithSubscriberReader(reader),
	)
	if err != nil {
		t.Fatalf("new facade: %v", err)
	}

	sub, err := facade.Queries().GetSubscriber.Query(context.Background(), cardlinkquery.GetSubscriberMessage{UUID: "u1"})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if sub.Email != "jane@example.com" {
		t.Fatalf("unexpected subscriber: %+v", sub)
	}
}
