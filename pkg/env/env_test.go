package env

import "testing"

func TestGetFallsBack(t *testing.T) {
	t.Setenv("PROVISIONER_TEST_VALUE", "")
	if got := Get("PROVISIONER_TEST_VALUE", "json"); got != "json" {
		t.Fatalf("expected fallback, got %q", got)
	}
	t.Setenv("PROVISIONER_TEST_VALUE", "console")
	if got := Get("PROVISIONER_TEST_VALUE", "json"); got != "console" {
		t.Fatalf("expected console, got %q", got)
	}
}

func TestFirstSkipsEmpty(t *testing.T) {
	t.Setenv("PROVISIONER_TEST_A", "")
	t.Setenv("PROVISIONER_TEST_B", "b")
	if got := First("PROVISIONER_TEST_A", "PROVISIONER_TEST_B"); got != "b" {
		t.Fatalf("expected b, got %q", got)
	}
	if got := First("PROVISIONER_TEST_A"); got != "" {
		t.Fatalf("expected empty, got %q", got)
	}
}
