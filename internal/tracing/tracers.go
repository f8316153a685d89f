// Package tracing creates the jaeger tracers that receive the spans of the
// history proof tasks. The agent is configured from the standard JAEGER_*
// environment variables.
package tracing

import (
	"io"
	"sync"

	opentracing "github.com/opentracing/opentracing-go"
	jaegercfg "github.com/uber/jaeger-client-go/config"
	"golang.org/x/xerrors"
)

// newTracer is the jaeger constructor, replaced in the tests.
var newTracer = func(service string) (opentracing.Tracer, io.Closer, error) {
	cfg, err := jaegercfg.FromEnv()
	if err != nil {
		return nil, nil, xerrors.Errorf("couldn't parse jaeger environment: %v", err)
	}

	cfg.ServiceName = service

	return cfg.NewTracer()
}

type entry struct {
	tracer opentracing.Tracer
	closer io.Closer
}

type registry struct {
	sync.Mutex
	tracers map[string]entry
}

var tracers = registry{
	tracers: make(map[string]entry),
}

// ForService returns the tracer of the service. Tracers are created once and
// then shared.
func ForService(service string) (opentracing.Tracer, error) {
	tracers.Lock()
	defer tracers.Unlock()

	e, found := tracers.tracers[service]
	if found {
		return e.tracer, nil
	}

	tracer, closer, err := newTracer(service)
	if err != nil {
		return nil, xerrors.Errorf("couldn't create tracer: %v", err)
	}

	tracers.tracers[service] = entry{tracer: tracer, closer: closer}

	return tracer, nil
}

// CloseAll flushes and closes every tracer.
func CloseAll() error {
	tracers.Lock()
	defer tracers.Unlock()

	for service, e := range tracers.tracers {
		delete(tracers.tracers, service)

		err := e.closer.Close()
		if err != nil {
			return xerrors.Errorf("couldn't close tracer of %s: %v", service, err)
		}
	}

	return nil
}
