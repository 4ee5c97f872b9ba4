// Package registry describes the field paths a valuation rule may reference.
//
// The catalog service owns the actual listing data; this package only carries
// the declared shape of it (paths, types, enum options) so that rule and
// formula authoring can be validated before anything is saved.
package registry

import "sort"

// FieldType is the declared data type of a registered field path
type FieldType string

const (
	TypeString  FieldType = "string"
	TypeNumber  FieldType = "number"
	TypeBoolean FieldType = "boolean"
	TypeEnum    FieldType = "enum"
	TypeDate    FieldType = "date"
)

// Field describes one registered field path
type Field struct {
	Type FieldType `json:"type"`
	// Options holds the allowed values for enum fields, empty otherwise
	Options []string `json:"options,omitempty"`
}

// Registry maps dotted field paths to their declared definitions.
// It is the authoring-time contract between the catalog and the rule engine.
type Registry map[string]Field

// Default returns the field registry for the deal-brain listing catalog
func Default() Registry {
	return Registry{
		"listing.price":     {Type: TypeNumber},
		"listing.condition": {Type: TypeEnum, Options: []string{"new", "refurbished", "used", "for_parts"}},
		"listing.title":     {Type: TypeString},
		"listing.seller":    {Type: TypeString},
		"listing.listed_at": {Type: TypeDate},

		"cpu.manufacturer":   {Type: TypeEnum, Options: []string{"intel", "amd", "apple", "other"}},
		"cpu.model":          {Type: TypeString},
		"cpu.cores":          {Type: TypeNumber},
		"cpu.threads":        {Type: TypeNumber},
		"cpu.cpu_mark_multi": {Type: TypeNumber},
		"cpu.cpu_mark_single": {Type: TypeNumber},
		"cpu.tdp_w":          {Type: TypeNumber},
		"cpu.igpu":           {Type: TypeBoolean},

		"gpu.model":    {Type: TypeString},
		"gpu.gpu_mark": {Type: TypeNumber},
		"gpu.vram_gb":  {Type: TypeNumber},

		"ram_gb":     {Type: TypeNumber},
		"ram.type":   {Type: TypeEnum, Options: []string{"ddr3", "ddr4", "ddr5", "lpddr5"}},
		"ram.speed":  {Type: TypeNumber},
		"storage_gb": {Type: TypeNumber},
		"storage.medium": {Type: TypeEnum, Options: []string{"hdd", "sata_ssd", "nvme", "emmc"}},

		"ports.usb_a":        {Type: TypeNumber},
		"ports.usb_c":        {Type: TypeNumber},
		"ports.ethernet_gbe": {Type: TypeNumber},
		"ports.hdmi":         {Type: TypeNumber},
	}
}

// Has reports whether the path is registered
func (r Registry) Has(path string) bool {
	_, ok := r[path]
	return ok
}

// TypeOf returns the declared type for a path, or "" if unregistered
func (r Registry) TypeOf(path string) FieldType {
	return r[path].Type
}

// Options returns the enum options for a path, nil for non-enum fields
func (r Registry) Options(path string) []string {
	return r[path].Options
}

// NumericPaths returns all registered number-typed paths in sorted order.
// Formula compilation uses this as its identifier universe.
func (r Registry) NumericPaths() []string {
	var paths []string
	for path, f := range r {
		if f.Type == TypeNumber {
			paths = append(paths, path)
		}
	}
	sort.Strings(paths)
	return paths
}
