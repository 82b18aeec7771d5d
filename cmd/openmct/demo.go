package main

import (
	"fmt"

	"github.com/dedurus/openmct/internal/domain"
)

// demoRootID is the folder holding the built-in objects.
const demoRootID = "mine"

type demoObject struct {
	id    string
	model domain.Model
}

func demoObjects() []demoObject {
	return []demoObject{
		{demoRootID, domain.Model{
			"name":        "My Items",
			"type":        "folder",
			"composition": []interface{}{"sine-panel", "host-panel"},
		}},
		{"sine-panel", domain.Model{
			"name":        "Sine Waves",
			"type":        "telemetry.panel",
			"composition": []interface{}{"sine-fast", "sine-slow"},
		}},
		{"sine-fast", domain.Model{
			"name":      "Fast Sine",
			"type":      "generator",
			"telemetry": map[string]interface{}{"source": "generator", "period": 5.0, "amplitude": 1.0},
		}},
		{"sine-slow", domain.Model{
			"name":      "Slow Sine",
			"type":      "generator",
			"telemetry": map[string]interface{}{"source": "generator", "period": 60.0, "amplitude": 10.0, "offset": 20.0},
		}},
		{"host-panel", domain.Model{
			"name":        "Host",
			"type":        "telemetry.panel",
			"composition": []interface{}{"host-cpu", "host-memory", "host-load"},
		}},
		{"host-cpu", domain.Model{
			"name":      "CPU",
			"type":      "host.metric",
			"telemetry": map[string]interface{}{"source": "host", "metric": "cpu"},
		}},
		{"host-memory", domain.Model{
			"name":      "Memory",
			"type":      "host.metric",
			"telemetry": map[string]interface{}{"source": "host", "metric": "memory"},
		}},
		{"host-load", domain.Model{
			"name":      "Load Average",
			"type":      "host.metric",
			"telemetry": map[string]interface{}{"source": "host", "metric": "load"},
		}},
	}
}

func loadDemoObjects(reg *domain.Registry) error {
	for _, obj := range demoObjects() {
		if err := reg.Put(obj.id, obj.model); err != nil {
			return fmt.Errorf("demo object %s: %w", obj.id, err)
		}
	}
	return nil
}
