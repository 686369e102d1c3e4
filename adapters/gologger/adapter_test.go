package gologger

import (
	"testing"

	glog "github.com/goliatone/go-logger/glog"
)

func TestResolveDefaultsName(t *testing.T) {
	_, logger := Resolve("", nil, nil)
	if glog.Ensure(logger) == nil {
		t.Fatalf("resolve must always yield a usable logger")
	}
}

func TestResolvePrefersProvider(t *testing.T) {
	provider, _ := Resolve(DefaultName, nil, nil)
	resolvedProvider, logger := Resolve(DefaultName, provider, nil)
	if resolvedProvider != provider {
		t.Fatalf("an explicit provider must win")
	}
	if glog.Ensure(logger) == nil {
		t.Fatalf("resolve must always yield a usable logger")
	}
}

func TestJobBridgesHandleNil(t *testing.T) {
	if ToJobProvider(nil) != nil {
		t.Fatalf("nil provider maps to nil")
	}
	if ToJobLogger(nil) != nil {
		t.Fatalf("nil logger maps to nil")
	}
}

func TestResolveForJob(t *testing.T) {
	provider, logger, jobProvider, jobLogger := ResolveForJob(DefaultName, nil, nil)
	if glog.Ensure(logger) == nil {
		t.Fatalf("glog logger must resolve")
	}
	if provider != nil && jobProvider == nil {
		t.Fatalf("a resolved provider must bridge to go-job")
	}
	if logger != nil && jobLogger == nil {
		t.Fatalf("a resolved logger must bridge to go-job")
	}
}
