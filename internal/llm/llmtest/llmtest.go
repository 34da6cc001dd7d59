// Package llmtest provides deterministic llm.Completer stubs for tests.
package llmtest

import (
	"context"
	"errors"
	"sync"
)

// ErrOutage is returned by Failing.
var ErrOutage = errors.New("simulated model outage")

// Call records one invocation of a Stub.
type Call struct {
	System     string
	User       string
	ExpectJSON bool
}

// Stub is a Completer whose answers come from Func. It records every call.
type Stub struct {
	Func func(ctx context.Context, system, user string) (string, error)

	mu    sync.Mutex
	calls []Call
}

// Complete implements llm.Completer.
func (s *Stub) Complete(ctx context.Context, system, user string, expectJSON bool) (string, error) {
	s.mu.Lock()
	s.calls = append(s.calls, Call{System: system, User: user, ExpectJSON: expectJSON})
	s.mu.Unlock()
	if s.Func == nil {
		return "", errors.New("llmtest: no Func configured")
	}
	return s.Func(ctx, system, user)
}

// Calls returns a copy of the recorded calls.
func (s *Stub) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Call, len(s.calls))
	copy(out, s.calls)
	return out
}

// Fixed returns a Stub that always answers with response.
func Fixed(response string) *Stub {
	return &Stub{Func: func(context.Context, string, string) (string, error) {
		return response, nil
	}}
}

// Failing returns a Stub whose every call fails with ErrOutage.
func Failing() *Stub {
	return &Stub{Func: func(context.Context, string, string) (string, error) {
		return "", ErrOutage
	}}
}
