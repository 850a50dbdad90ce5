// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package odrive

import (
	"os"
	"path/filepath"
	"testing"
)

const endpointsDocJSON = `{
	"fw_version": "0.6.8",
	"hw_version": "4.4.58",
	"endpoints": {
		"vbus_voltage": {"id": 1, "type": "float", "access": "r"},
		"axis0.controller.config.vel_limit": {"id": 391, "type": "float", "access": "rw"},
		"axis0.config.motor.pole_pairs": {"id": 310, "type": "uint32", "access": "rw"},
		"save_configuration": {"id": 544, "type": "function"},
		"test_property": {"type": "float", "access": "r"},
		"other_property": {"id": 12}
	}
}`

func TestParseEndpoints(t *testing.T) {
	eps, err := ParseEndpoints([]byte(endpointsDocJSON))
	if err != nil {
		t.Fatalf("ParseEndpoints: %v", err)
	}

	// Functions, entries without an id and entries without a type are
	// skipped; the three usable properties remain.
	if eps.Len() != 3 {
		t.Fatalf("Len() = %d, want 3: %v", eps.Len(), eps.Names())
	}

	ep, ok := eps.Get("axis0.controller.config.vel_limit")
	if !ok {
		t.Fatal("vel_limit not found")
	}
	if ep.ID != 391 || ep.Kind != KindFloat || ep.Access != "rw" {
		t.Errorf("unexpected endpoint %+v", ep)
	}

	if _, ok := eps.Get("save_configuration"); ok {
		t.Error("function endpoint should have been skipped")
	}
	if _, ok := eps.Get("no_such"); ok {
		t.Error("unknown name resolved")
	}
}

func TestEndpointsFindID(t *testing.T) {
	eps, err := ParseEndpoints([]byte(endpointsDocJSON))
	if err != nil {
		t.Fatalf("ParseEndpoints: %v", err)
	}
	ep, ok := eps.FindID(310)
	if !ok {
		t.Fatal("id 310 not found")
	}
	if ep.Name != "axis0.config.motor.pole_pairs" || ep.Kind != KindUint32 {
		t.Errorf("unexpected endpoint %+v", ep)
	}
	if _, ok := eps.FindID(9999); ok {
		t.Error("unknown id resolved")
	}
}

func TestEndpointsNamesSorted(t *testing.T) {
	eps, err := ParseEndpoints([]byte(endpointsDocJSON))
	if err != nil {
		t.Fatalf("ParseEndpoints: %v", err)
	}
	names := eps.Names()
	for i := 1; i < len(names); i++ {
		if names[i-1] >= names[i] {
			t.Fatalf("names not sorted: %v", names)
		}
	}
}

func TestParseEndpointsErrors(t *testing.T) {
	if _, err := ParseEndpoints([]byte(`not json`)); err == nil {
		t.Error("expected error for invalid JSON")
	}
	if _, err := ParseEndpoints([]byte(`{"fw_version": "0.6.8"}`)); err == nil {
		t.Error("expected error for a document without endpoints")
	}
}

func TestLoadEndpointsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flat_endpoints.json")
	if err := os.WriteFile(path, []byte(endpointsDocJSON), 0o644); err != nil {
		t.Fatalf("writing file: %v", err)
	}
	eps, err := LoadEndpointsFile(path)
	if err != nil {
		t.Fatalf("LoadEndpointsFile: %v", err)
	}
	if eps.Len() != 3 {
		t.Errorf("Len() = %d, want 3", eps.Len())
	}

	if _, err := LoadEndpointsFile(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("expected error for missing file")
	}
}
