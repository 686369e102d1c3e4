package command

import (
	"context"
	"errors"
	"testing"

	goerrors "github.com/goliatone/go-errors"
	"github.com/osmi-labs/cardlink/core"
)

type stubIngestService struct {
	err     error
	serials []string
	events  []string
}

func (s *stubIngestService) Ingest(_ context.Context, serial string, event string) error {
	s.serials = append(s.serials, serial)
	s.events = append(s.events, event)
	return s.err
}

type stubRetryService struct {
	stats core.RetryStats
	err   error
	runs  int
}

func (s *stubRetryService) RunPass(context.Context) (core.RetryStats, error) {
	s.runs++
	return s.stats, s.err
}

type stubBonusService struct {
	stats core.BonusStats
	err   error
	runs  int
}

func (s *stubBonusService) RunPass(context.Context) (core.BonusStats, error) {
	s.runs++
	return s.stats, s.err
}

func TestIngestCardEventCommand_Execute(t *testing.T) {
	service := &stubIngestService{}
	cmd := NewIngestCardEventCommand(service)

	msg := IngestCardEventMessage{Serial: "ABC123-X9", Event: "cardcreate"}
	if err := cmd.Execute(context.Background(), msg); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if len(service.serials) != 1 || service.serials[0] != "ABC123-X9" || service.events[0] != "cardcreate" {
		t.Fatalf("unexpected service calls: %v %v", service.serials, service.events)
	}
}

func TestIngestCardEventCommand_ValidatesMessage(t *testing.T) {
	service := &stubIngestService{}
	cmd := NewIngestCardEventCommand(service)

	err := cmd.Execute(context.Background(), IngestCardEventMessage{Event: "cardcreate"})
	if err == nil {
		t.Fatalf("expected validation failure")
	}
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) || richErr.Category != goerrors.CategoryBadInput {
		t.Fatalf("expected bad input category, got %v", err)
	}
	if len(service.serials) != 0 {
		t.Fatalf("invalid messages must not hit the service")
	}
}

func TestIngestCardEventCommand_MissingService(t *testing.T) {
	cmd := NewIngestCardEventCommand(nil)
	err := cmd.Execute(context.Background(), IngestCardEventMessage{Serial: "s", Event: "e"})
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) || richErr.Category != goerrors.CategoryInternal {
		t.Fatalf("expected internal category, got %v", err)
	}
}

func TestRunRetryPassCommand_Execute(t *testing.T) {
	service := &stubRetryService{stats: core.RetryStats{Due: 2, Retired: 1, Failed: 1}}
	cmd := NewRunRetryPassCommand(service)

	if err := cmd.Execute(context.Background(), RunRetryPassMessage{}); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if service.runs != 1 {
		t.Fatalf("expected one pass, got %d", service.runs)
	}
}

func TestRunRetryPassCommand_PropagatesFailure(t *testing.T) {
	service := &stubRetryService{err: errors.New("db gone")}
	cmd := NewRunRetryPassCommand(service)
	if err := cmd.Execute(context.Background(), RunRetryPassMessage{}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestRunBonusPassCommand_Execute(t *testing.T) {
	service := &stubBonusService{stats: core.BonusStats{Listed: 3, Granted: 2}}
	cmd := NewRunBonusPassCommand(service)

	if err := cmd.Execute(context.Background(), RunBonusPassMessage{}); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if service.runs != 1 {
		t.Fatalf("expected one pass, got %d", service.runs)
	}
}

func TestMessageTypes(t *testing.T) {
	if (IngestCardEventMessage{}).Type() != TypeIngestCardEvent {
		t.Fatalf("unexpected ingest type")
	}
	if (RunRetryPassMessage{}).Type() != TypeRunRetryPass {
		t.Fatalf("unexpected retry type")
	}
	if (RunBonusPassMessage{}).Type() != TypeRunBonusPass {
		t.Fatalf("unexpected bonus type")
	}
}
