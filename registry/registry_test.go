package registry

import (
	"strings"
	"testing"
)

func TestDefaultIsValid(t *testing.T) {
	if err := Validate(Default()); err != nil {
		t.Fatalf("Validate(Default()) failed: %v", err)
	}
}

func TestRegistryLookups(t *testing.T) {
	r := Default()

	if !r.Has("listing.price") {
		t.Error("Has(listing.price) = false, want true")
	}
	if r.Has("listing.nonexistent") {
		t.Error("Has(listing.nonexistent) = true, want false")
	}

	if got := r.TypeOf("ram_gb"); got != TypeNumber {
		t.Errorf("TypeOf(ram_gb) = %q, want %q", got, TypeNumber)
	}
	if got := r.TypeOf("unknown.path"); got != "" {
		t.Errorf("TypeOf(unknown.path) = %q, want empty", got)
	}

	opts := r.Options("listing.condition")
	if len(opts) != 4 {
		t.Fatalf("Options(listing.condition) = %v, want 4 options", opts)
	}
	if r.Options("ram_gb") != nil {
		t.Errorf("Options(ram_gb) = %v, want nil for non-enum field", r.Options("ram_gb"))
	}
}

func TestNumericPathsSortedAndComplete(t *testing.T) {
	r := Registry{
		"z_metric":  {Type: TypeNumber},
		"a_metric":  {Type: TypeNumber},
		"name":      {Type: TypeString},
		"available": {Type: TypeBoolean},
	}

	got := r.NumericPaths()
	want := []string{"a_metric", "z_metric"}
	if len(got) != len(want) {
		t.Fatalf("NumericPaths() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("NumericPaths()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		reg     Registry
		wantErr string
	}{
		{
			name:    "empty registry",
			reg:     Registry{},
			wantErr: "cannot be empty",
		},
		{
			name:    "valid single field",
			reg:     Registry{"price": {Type: TypeNumber}},
			wantErr: "",
		},
		{
			name:    "path with too many segments",
			reg:     Registry{"a.b.c.d.e": {Type: TypeNumber}},
			wantErr: "5 segments",
		},
		{
			name:    "path at segment limit",
			reg:     Registry{"a.b.c.d": {Type: TypeNumber}},
			wantErr: "",
		},
		{
			name:    "segment starting with digit",
			reg:     Registry{"listing.2nd_price": {Type: TypeNumber}},
			wantErr: "must start with a letter or underscore",
		},
		{
			name:    "empty segment",
			reg:     Registry{"listing..price": {Type: TypeNumber}},
			wantErr: "empty segment",
		},
		{
			name:    "reserved word segment",
			reg:     Registry{"listing.min": {Type: TypeNumber}},
			wantErr: `reserved word "min"`,
		},
		{
			name:    "invalid field type",
			reg:     Registry{"price": {Type: "decimal"}},
			wantErr: `invalid type "decimal"`,
		},
		{
			name:    "enum without options",
			reg:     Registry{"condition": {Type: TypeEnum}},
			wantErr: "must declare at least one option",
		},
		{
			name:    "non-enum with options",
			reg:     Registry{"price": {Type: TypeNumber, Options: []string{"a"}}},
			wantErr: "declares enum options",
		},
		{
			name:    "duplicate enum option",
			reg:     Registry{"condition": {Type: TypeEnum, Options: []string{"new", "new"}}},
			wantErr: `option "new" twice`,
		},
		{
			name:    "empty enum option",
			reg:     Registry{"condition": {Type: TypeEnum, Options: []string{""}}},
			wantErr: "empty option",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.reg)
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() failed: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatal("Validate() succeeded, want error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error %q, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidateFieldLimit(t *testing.T) {
	reg := make(Registry, maxFields+1)
	for i := 0; i <= maxFields; i++ {
		reg[fieldName(i)] = Field{Type: TypeNumber}
	}

	err := Validate(reg)
	if err == nil {
		t.Fatal("Validate() succeeded with too many fields, want error")
	}
	if !strings.Contains(err.Error(), "maximum allowed is 500") {
		t.Errorf("Validate() error %q, want field-limit mention", err)
	}
}

func fieldName(i int) string {
	name := "f"
	for i > 0 {
		name += string(rune('a' + i%26))
		i /= 26
	}
	return name
}
