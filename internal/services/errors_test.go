package services_test

import (
	"errors"
	"strings"
	"testing"

	"convoy/internal/services"
)

func TestWrapTagsMarker(t *testing.T) {
	base := errors.New("remote hung up")
	err := services.Wrap(services.ErrClone, "clone", "git clone", "fetch failed", base)
	if !errors.Is(err, services.ErrClone) {
		t.Fatalf("expected wrapped error to match ErrClone, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to preserve cause, got %v", err)
	}
	if !strings.Contains(err.Error(), "git clone") {
		t.Fatalf("expected operation in message, got %q", err.Error())
	}
}

func TestWrapNilMarkerDefaults(t *testing.T) {
	err := services.Wrap(nil, "transform", "", "", nil)
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected default marker, got %v", err)
	}
}

func TestCategory(t *testing.T) {
	cases := []struct {
		err      error
		expected string
	}{
		{nil, ""},
		{services.Wrap(services.ErrClone, "clone", "", "", nil), services.CategoryClone},
		{services.Wrap(services.ErrTransform, "transform", "", "", nil), services.CategoryTransform},
		{services.Wrap(services.ErrTimeout, "pipeline", "", "", nil), services.CategoryTimeout},
		{services.Wrap(services.ErrCleanup, "cleanup", "", "", nil), services.CategoryCleanup},
		{services.ErrQueueState, services.CategoryQueueState},
		{services.ErrConfiguration, services.CategoryConfiguration},
		{errors.New("mystery"), services.CategoryUnknown},
	}
	for _, tc := range cases {
		if got := services.Category(tc.err); got != tc.expected {
			t.Fatalf("Category(%v) = %q, expected %q", tc.err, got, tc.expected)
		}
	}
}

func TestTimeoutDominatesCloneCategory(t *testing.T) {
	err := services.Wrap(services.ErrTimeout, "pipeline", "clone", "deadline exceeded", services.ErrClone)
	if got := services.Category(err); got != services.CategoryTimeout {
		t.Fatalf("expected timeout category, got %q", got)
	}
}
