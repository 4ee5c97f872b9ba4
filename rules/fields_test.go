package rules

import "testing"

func sampleListing() Context {
	return Context{
		"listing": map[string]any{
			"price":     500.0,
			"condition": "used",
			"title":     "Dell OptiPlex 7090 Micro",
		},
		"cpu": map[string]any{
			"manufacturer":   "intel",
			"cores":          8,
			"cpu_mark_multi": 17500.0,
		},
		"ram_gb":     16,
		"storage_gb": 512.0,
		"ports": map[string]any{
			"usb_a": 4,
		},
	}
}

func TestContextResolve(t *testing.T) {
	ctx := sampleListing()

	tests := []struct {
		name   string
		path   string
		want   any
		wantOK bool
	}{
		{name: "top-level field", path: "ram_gb", want: 16, wantOK: true},
		{name: "nested field", path: "listing.price", want: 500.0, wantOK: true},
		{name: "deeply nested field", path: "cpu.cpu_mark_multi", want: 17500.0, wantOK: true},
		{name: "missing terminal", path: "listing.seller", want: nil, wantOK: false},
		{name: "missing intermediate", path: "gpu.gpu_mark", want: nil, wantOK: false},
		{name: "path through scalar", path: "ram_gb.size", want: nil, wantOK: false},
		{name: "empty path", path: "", want: nil, wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ctx.Resolve(tt.path)
			if ok != tt.wantOK {
				t.Fatalf("Resolve(%q) ok = %v, want %v", tt.path, ok, tt.wantOK)
			}
			if tt.wantOK && got != tt.want {
				t.Errorf("Resolve(%q) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}
}

func TestContextResolveNumber(t *testing.T) {
	ctx := sampleListing()

	if got, ok := ctx.ResolveNumber("ram_gb"); !ok || got != 16 {
		t.Errorf("ResolveNumber(ram_gb) = %v, %v, want 16, true", got, ok)
	}
	if got, ok := ctx.ResolveNumber("listing.price"); !ok || got != 500 {
		t.Errorf("ResolveNumber(listing.price) = %v, %v, want 500, true", got, ok)
	}
	// Strings never coerce to numbers.
	if _, ok := ctx.ResolveNumber("listing.title"); ok {
		t.Error("ResolveNumber(listing.title) coerced a string, want failure")
	}
	if _, ok := ctx.ResolveNumber("gpu.vram_gb"); ok {
		t.Error("ResolveNumber(gpu.vram_gb) succeeded for missing field")
	}
}

func TestContextBasePriceAndCondition(t *testing.T) {
	ctx := sampleListing()

	price, ok := ctx.BasePrice()
	if !ok || price != 500 {
		t.Errorf("BasePrice() = %v, %v, want 500, true", price, ok)
	}
	if got := ctx.Condition(); got != ConditionUsed {
		t.Errorf("Condition() = %q, want %q", got, ConditionUsed)
	}

	empty := Context{}
	if _, ok := empty.BasePrice(); ok {
		t.Error("BasePrice() on empty context succeeded, want failure")
	}
	if got := empty.Condition(); got != "" {
		t.Errorf("Condition() on empty context = %q, want empty", got)
	}
}
