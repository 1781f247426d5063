package whoop

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindOf(t *testing.T) {
	err := &Error{Kind: KindAuthExpired, Message: "refresh rejected"}
	if got := KindOf(err); got != KindAuthExpired {
		t.Errorf("KindOf = %s, want %s", got, KindAuthExpired)
	}
	wrapped := fmt.Errorf("sync failed: %w", err)
	if got := KindOf(wrapped); got != KindAuthExpired {
		t.Errorf("KindOf(wrapped) = %s, want %s", got, KindAuthExpired)
	}
	if got := KindOf(errors.New("plain")); got != "" {
		t.Errorf("KindOf(plain) = %s, want empty", got)
	}
}

func TestIsKind(t *testing.T) {
	err := &Error{Kind: KindNotLinked, Message: "no credential"}
	if !IsKind(err, KindNotLinked) {
		t.Error("IsKind should match the error's kind")
	}
	if IsKind(err, KindUpstreamError) {
		t.Error("IsKind should not match a different kind")
	}
	if IsKind(nil, KindNotLinked) {
		t.Error("IsKind(nil) should be false")
	}
}

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := &Error{Kind: KindUpstreamError, Message: "fetch failed", cause: cause}
	if !errors.Is(err, cause) {
		t.Error("expected errors.Is to find the cause")
	}
}
