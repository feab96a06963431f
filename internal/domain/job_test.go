package domain

import (
	"errors"
	"testing"
)

func TestTransitionAllowsLifecycleEdges(t *testing.T) {
	allowed := []struct{ from, to Status }{
		{StatusPending, StatusProcessing},
		{StatusProcessing, StatusCompleted},
		{StatusProcessing, StatusFailed},
		{StatusProcessing, StatusRetrying},
		{StatusRetrying, StatusProcessing},
		{StatusRetrying, StatusFailed},
	}
	for _, tc := range allowed {
		if err := Transition(tc.from, tc.to); err != nil {
			t.Errorf("Transition(%s, %s) = %v, want nil", tc.from, tc.to, err)
		}
	}
}

func TestTransitionFailsClosed(t *testing.T) {
	rejected := []struct{ from, to Status }{
		{StatusCompleted, StatusProcessing},
		{StatusCompleted, StatusPending},
		{StatusFailed, StatusProcessing},
		{StatusFailed, StatusRetrying},
		{StatusPending, StatusCompleted},
		{StatusPending, StatusFailed},
		{StatusPending, StatusRetrying},
		{StatusProcessing, StatusPending},
	}
	for _, tc := range rejected {
		err := Transition(tc.from, tc.to)
		if err == nil {
			t.Errorf("Transition(%s, %s) = nil, want error", tc.from, tc.to)
			continue
		}
		if !errors.Is(err, ErrInvalidTransition) {
			t.Errorf("Transition(%s, %s) = %v, want ErrInvalidTransition", tc.from, tc.to, err)
		}
	}
}

func TestTerminalStatuses(t *testing.T) {
	for status, want := range map[Status]bool{
		StatusPending:    false,
		StatusProcessing: false,
		StatusRetrying:   false,
		StatusCompleted:  true,
		StatusFailed:     true,
	} {
		if got := status.Terminal(); got != want {
			t.Errorf("%s.Terminal() = %v, want %v", status, got, want)
		}
	}
}
