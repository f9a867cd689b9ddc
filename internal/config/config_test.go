package config

import "testing"

func TestDecimalsForCurrency(t *testing.T) {
	if got := decimalsForCurrency("KHR"); got != 0 {
		t.Fatalf("KHR should be zero-decimal, got %d", got)
	}
	if got := decimalsForCurrency("USD"); got != 2 {
		t.Fatalf("USD should use two decimals, got %d", got)
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CURRENCY", "")
	t.Setenv("PORT", "")
	cfg := Load()
	if cfg.Port != "8080" {
		t.Fatalf("unexpected default port %q", cfg.Port)
	}
	if cfg.Currency != "KHR" || cfg.MoneyDecimals != 0 {
		t.Fatalf("unexpected default currency config: %+v", cfg)
	}
	if cfg.Address() != ":8080" {
		t.Fatalf("unexpected address %q", cfg.Address())
	}
}
