package harvester

import "testing"

func TestSlug(t *testing.T) {
	cases := map[string]string{
		"Señor Café":     "senor-cafe",
		"Logitech G Pro": "logitech-g-pro",
		"snake_case_ok":  "snake_case_ok",
		"  trim--me  ":   "trim-me",
	}
	for in, want := range cases {
		if got := slug(in); got != want {
			t.Errorf("slug(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSlugIdempotent(t *testing.T) {
	for _, s := range []string{"Señor Café", "Logitech G Pro", "already-a-slug"} {
		once := slug(s)
		twice := slug(once)
		if once != twice {
			t.Errorf("slug not idempotent for %q: %q != %q", s, once, twice)
		}
	}
}

func TestProductID(t *testing.T) {
	id := Identity{Category: "mouse", Brand: "Logitech", Model: "G Pro X Superlight"}
	if got, want := id.ProductID(), "mouse-logitech-g-pro-x-superlight"; got != want {
		t.Errorf("ProductID() = %q, want %q", got, want)
	}

	withVariant := Identity{Category: "mouse", Brand: "Razer", Model: "Viper", Variant: "V2"}
	if got, want := withVariant.ProductID(), "mouse-razer-viper-v2"; got != want {
		t.Errorf("ProductID() = %q, want %q", got, want)
	}
}

func TestProductIDDeterministic(t *testing.T) {
	id := Identity{Category: "mouse", Brand: "Zowie", Model: "EC2"}
	if id.ProductID() != id.ProductID() {
		t.Fatal("ProductID must be deterministic across calls")
	}
}

func TestWordBoundary(t *testing.T) {
	if !wordBoundary("Cestus 310", "310") {
		t.Error("expected 310 to be a word-boundary substring of 'Cestus 310'")
	}
	if wordBoundary("Cestus 3105", "310") {
		t.Error("310 embedded in 3105 must not match")
	}
	if !wordBoundary("G Pro X Superlight", "Pro X") {
		t.Error("expected multi-word phrase to match at word boundaries")
	}
}
