// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

package export

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestMapStationType(t *testing.T) {
	tests := []struct {
		code string
		want string
	}{
		{"0", "Lightbulb"},
		{"1", "Switch"},
		{"7", "Outlet"},
		{"", "Outlet"},
		{"unknown", "Outlet"},
	}

	for _, tt := range tests {
		if got := MapStationType(tt.code); got != tt.want {
			t.Errorf("MapStationType(%q) = %q, want %q", tt.code, got, tt.want)
		}
	}
}

func TestAccessories(t *testing.T) {
	accessories := Accessories(sampleTopology())

	if len(accessories) != 3 {
		t.Fatalf("Accessories() = %d entries, want 3", len(accessories))
	}

	a := accessories[0]
	if a.Name != "Vantage Station S1" {
		t.Errorf("Name = %q, want 'Vantage Station S1'", a.Name)
	}
	if a.Manufacturer != "Vantage Controls" {
		t.Errorf("Manufacturer = %q, want 'Vantage Controls'", a.Manufacturer)
	}
	if a.Model != "Qlink v1" {
		t.Errorf("Model = %q, want 'Qlink v1'", a.Model)
	}
	if a.SerialNumber != "SN1" {
		t.Errorf("SerialNumber = %q, want SN1", a.SerialNumber)
	}
	if a.Type != "Lightbulb" {
		t.Errorf("Type = %q, want Lightbulb (code 0)", a.Type)
	}

	if len(a.Services) != 1 || len(a.Services[0].Characteristics) != 1 {
		t.Fatalf("Services = %+v, want one service with one characteristic", a.Services)
	}
	char := a.Services[0].Characteristics[0]
	if char.Type != "On" || char.Value != false {
		t.Errorf("characteristic = %+v, want On=false", char)
	}

	// Unrecognized type code falls back to the generic category.
	if accessories[2].Type != "Outlet" {
		t.Errorf("accessories[2].Type = %q, want Outlet (code 9)", accessories[2].Type)
	}
}

func TestHomeKitExport(t *testing.T) {
	path := filepath.Join(t.TempDir(), "accessories.json")
	e := NewHomeKitExporter(path)

	if e.Name() != "homekit" {
		t.Errorf("Name() = %q, want homekit", e.Name())
	}

	if err := e.Export(context.Background(), sampleTopology()); err != nil {
		t.Fatalf("Export() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}

	var decoded []Accessory
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("export is not valid JSON: %v", err)
	}
	if len(decoded) != 3 {
		t.Errorf("decoded %d accessories, want 3", len(decoded))
	}
}

func TestHomeKitExport_Deterministic(t *testing.T) {
	dir := t.TempDir()
	topo := sampleTopology()

	var outputs [][]byte
	for _, name := range []string{"a.json", "b.json"} {
		path := filepath.Join(dir, name)
		if err := NewHomeKitExporter(path).Export(context.Background(), topo); err != nil {
			t.Fatalf("Export() error = %v", err)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatal(err)
		}
		outputs = append(outputs, data)
	}

	if !bytes.Equal(outputs[0], outputs[1]) {
		t.Error("repeated exports differ, want byte-identical output")
	}
}
