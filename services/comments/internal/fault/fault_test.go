package fault

import (
	"errors"
	"fmt"
	"testing"
)

func TestIs_MatchesByKind(t *testing.T) {
	err := E(KindAlreadyVoted, "vote", nil)
	if !errors.Is(err, ErrAlreadyVoted) {
		t.Fatal("expected errors.Is to match the sentinel")
	}
	if errors.Is(err, ErrUnauthorized) {
		t.Fatal("different kinds must not match")
	}
}

func TestIs_ThroughWrapping(t *testing.T) {
	err := fmt.Errorf("handler: %w", E(KindStorageWrite, "insert", errors.New("disk full")))
	if !errors.Is(err, ErrStorageWrite) {
		t.Fatal("expected match through fmt wrapping")
	}
	var fe *Error
	if !errors.As(err, &fe) {
		t.Fatal("expected errors.As to find *Error")
	}
	if fe.Op != "insert" || fe.Err.Error() != "disk full" {
		t.Fatalf("unexpected error fields: %+v", fe)
	}
}

func TestE_KeepsExistingKind(t *testing.T) {
	inner := E(KindSerializationFailed, "", errors.New("short blob"))
	outer := E(KindStorageWrite, "vote", inner)
	if KindOf(outer) != KindSerializationFailed {
		t.Fatalf("expected inner kind to survive, got %v", KindOf(outer))
	}
	if outer.Error() != "vote: serialization failed: short blob" {
		t.Fatalf("unexpected message %q", outer.Error())
	}
}

func TestKindOf_Foreign(t *testing.T) {
	if KindOf(errors.New("x")) != KindUnknown {
		t.Fatal("foreign errors must report KindUnknown")
	}
	if KindOf(nil) != KindUnknown {
		t.Fatal("nil must report KindUnknown")
	}
}

func TestKind_String(t *testing.T) {
	if KindPathCheckFailed.String() != "path check failed" {
		t.Fatalf("unexpected %q", KindPathCheckFailed.String())
	}
	if Kind(99).String() != "kind(99)" {
		t.Fatalf("unexpected %q", Kind(99).String())
	}
}
