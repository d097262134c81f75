package reference

import "testing"

func TestLookupOrDefaultFallsBackToFirstEntry(t *testing.T) {
	tables := Default()

	if got := tables.Crops.LookupOrDefault("quinoa"); got.Code != "rice" {
		t.Fatalf("expected default crop rice, got %s", got.Code)
	}
	if got := tables.IrrigationMethods.LookupOrDefault("canal"); got.Factor.String() != "1" {
		t.Fatalf("expected canal factor 1, got %s", got.Factor)
	}
	if _, ok := tables.Practices.Lookup("slash_and_burn"); ok {
		t.Fatal("unknown practice must not resolve")
	}
}

func TestRegionAndLocale(t *testing.T) {
	tables := Default()

	pb, ok := tables.Region("PB")
	if !ok {
		t.Fatal("expected Punjab region")
	}
	if pb.Names.In(LocaleHindi) != "पंजाब" {
		t.Fatalf("unexpected hindi name %q", pb.Names.In(LocaleHindi))
	}
	if pb.Names.In(ParseLocale("fr")) != "Punjab" {
		t.Fatalf("unknown locale should fall back to english")
	}
	if len(tables.Regions()) != 8 {
		t.Fatalf("expected 8 regions, got %d", len(tables.Regions()))
	}
}
