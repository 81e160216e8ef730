package imgerr

import (
	"errors"
	"testing"
)

func TestNewFormatsMessage(t *testing.T) {
	err := New(FormatError, "bad value %d", 42)
	want := "FormatError: bad value 42"
	if err.Error() != want {
		t.Fatalf("Error() = %q, want %q", err.Error(), want)
	}
	if err.Kind != FormatError {
		t.Fatalf("Kind = %v, want FormatError", err.Kind)
	}
}

func TestWrapIncludesCause(t *testing.T) {
	cause := errors.New("disk full")
	err := Wrap(IoError, cause, "writing %s", "out.tif")
	want := "IoError: writing out.tif: disk full"
	if err.Error() != want {
		t.Fatalf("Error() = %q, want %q", err.Error(), want)
	}
	if !errors.Is(err, cause) {
		t.Fatal("errors.Is(err, cause) = false, want true (Unwrap should expose cause)")
	}
}

func TestIsCancelledOnlyMatchesCancelledKind(t *testing.T) {
	if !IsCancelled(New(Cancelled, "aborted")) {
		t.Fatal("IsCancelled() = false for a Cancelled-kind error")
	}
	if IsCancelled(New(IoError, "nope")) {
		t.Fatal("IsCancelled() = true for a non-Cancelled-kind error")
	}
	if IsCancelled(errors.New("plain error")) {
		t.Fatal("IsCancelled() = true for a non-*Error value")
	}
	if IsCancelled(nil) {
		t.Fatal("IsCancelled(nil) = true, want false")
	}
}

func TestKindStringNames(t *testing.T) {
	cases := map[Kind]string{
		Internal:        "Internal",
		IoError:         "IoError",
		FormatError:     "FormatError",
		InvalidArgument: "InvalidArgument",
		Cancelled:       "Cancelled",
		ShaderError:     "ShaderError",
	}
	for k, want := range cases {
		if got := k.String(); got != want {
			t.Errorf("Kind(%d).String() = %q, want %q", k, got, want)
		}
	}
}
