// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package odrive

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
)

// Endpoint is one entry of a firmware's flat endpoint document: a
// human-readable parameter path mapped to the index and wire type used
// by SDO transfers.
type Endpoint struct {
	Name   string
	ID     uint16
	Kind   ValueKind
	Access string
}

// Endpoints is the lookup table parsed from a flat_endpoints.json
// document. Each firmware release publishes one; the dispatcher and
// codec never consult it, only the SDO convenience layer does.
type Endpoints struct {
	byName map[string]Endpoint
	byID   map[uint16]Endpoint
}

type endpointsDoc struct {
	Endpoints map[string]endpointEntry `json:"endpoints"`
}

type endpointEntry struct {
	ID     *float64 `json:"id"`
	Type   *string  `json:"type"`
	Access string   `json:"access"`
}

// ParseEndpoints parses a flat endpoint document. Entries with a
// missing id, missing type, or a type string the protocol cannot carry
// are skipped; the remainder still loads.
func ParseEndpoints(data []byte) (*Endpoints, error) {
	var doc endpointsDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("odrive: parsing endpoints: %w", err)
	}
	if doc.Endpoints == nil {
		return nil, fmt.Errorf("odrive: endpoints document has no \"endpoints\" object")
	}

	eps := &Endpoints{
		byName: make(map[string]Endpoint, len(doc.Endpoints)),
		byID:   make(map[uint16]Endpoint, len(doc.Endpoints)),
	}
	for name, entry := range doc.Endpoints {
		if entry.ID == nil || entry.Type == nil {
			continue
		}
		kind, err := ParseValueKind(*entry.Type)
		if err != nil {
			continue
		}
		id := *entry.ID
		if id < 0 || id > 0xFFFF || id != float64(uint16(id)) {
			continue
		}
		ep := Endpoint{
			Name:   name,
			ID:     uint16(id),
			Kind:   kind,
			Access: entry.Access,
		}
		eps.byName[name] = ep
		eps.byID[ep.ID] = ep
	}
	return eps, nil
}

// LoadEndpointsFile reads and parses a flat_endpoints.json file.
func LoadEndpointsFile(path string) (*Endpoints, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("odrive: reading endpoints file: %w", err)
	}
	return ParseEndpoints(data)
}

// Get looks up an endpoint by its flattened name, e.g. "vbus_voltage"
// or "axis0.config.motor.current_soft_max".
func (e *Endpoints) Get(name string) (Endpoint, bool) {
	ep, ok := e.byName[name]
	return ep, ok
}

// FindID looks up an endpoint by its SDO index.
func (e *Endpoints) FindID(id uint16) (Endpoint, bool) {
	ep, ok := e.byID[id]
	return ep, ok
}

// Len returns the number of usable endpoints.
func (e *Endpoints) Len() int {
	return len(e.byName)
}

// Names returns all endpoint names in sorted order.
func (e *Endpoints) Names() []string {
	names := make([]string, 0, len(e.byName))
	for name := range e.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
