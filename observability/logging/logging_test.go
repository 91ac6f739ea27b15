package logging

import (
	"log/slog"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"":        slog.LevelInfo,
		"DEBUG":   slog.LevelDebug,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q): expected %v, got %v", in, want, got)
		}
	}
}

func TestMaskField(t *testing.T) {
	if got := MaskField("loanId", "7").Value.String(); got != "7" {
		t.Fatalf("expected allowlisted key to pass through, got %q", got)
	}
	if got := MaskField("passphrase", "hunter2").Value.String(); got != RedactedValue {
		t.Fatalf("expected redaction, got %q", got)
	}
	if got := MaskField("passphrase", "").Value.String(); got != "" {
		t.Fatalf("expected empty value to stay empty, got %q", got)
	}
}

func TestFingerprint(t *testing.T) {
	if got := Fingerprint("supersecretvalue"); got != "...alue" {
		t.Fatalf("expected trailing fingerprint, got %q", got)
	}
	if got := Fingerprint("abc"); got != RedactedValue {
		t.Fatalf("expected short secret to be masked, got %q", got)
	}
}
