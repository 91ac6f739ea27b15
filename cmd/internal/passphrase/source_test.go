package passphrase

import "testing"

func TestSourceReadsEnvironmentOnce(t *testing.T) {
	t.Setenv("NFTLEND_TEST_PASS", "first")
	src := NewSource("NFTLEND_TEST_PASS", "")
	got, err := src.Get()
	if err != nil || got != "first" {
		t.Fatalf("expected first, got %q (%v)", got, err)
	}
	t.Setenv("NFTLEND_TEST_PASS", "second")
	if got, _ := src.Get(); got != "first" {
		t.Fatalf("expected cached passphrase, got %q", got)
	}
}

func TestSourceAcceptsExplicitEmpty(t *testing.T) {
	t.Setenv("NFTLEND_TEST_PASS", "")
	got, err := NewSource("NFTLEND_TEST_PASS", "owner").Get()
	if err != nil || got != "" {
		t.Fatalf("expected empty passphrase, got %q (%v)", got, err)
	}
}
