package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/maestrohq/maestro/pkg/models"
)

func writePlanFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write plan file: %v", err)
	}
	return path
}

func TestLoadPlanFile_YAML(t *testing.T) {
	path := writePlanFile(t, "plan.yaml", `
title: demo plan
description: small demo
goals:
  - id: G1
    description: gather and report
    actions:
      - id: G1-A1
        description: find material
        type: searcher
      - id: G1-A2
        description: write the report
        type: reporter
        dependencies: [G1-A1]
`)

	plan, err := loadPlanFile(path)
	if err != nil {
		t.Fatalf("loadPlanFile failed: %v", err)
	}
	if plan.Title != "demo plan" {
		t.Errorf("title = %q", plan.Title)
	}
	action := plan.FindAction("G1-A2")
	if action == nil {
		t.Fatal("G1-A2 missing")
	}
	if action.Role != models.RoleReporter {
		t.Errorf("role = %q, want reporter", action.Role)
	}
	if len(action.Dependencies) != 1 || action.Dependencies[0] != "G1-A1" {
		t.Errorf("dependencies = %v", action.Dependencies)
	}
}

func TestLoadPlanFile_JSON(t *testing.T) {
	path := writePlanFile(t, "plan.json", `{
  "title": "json plan",
  "description": "decode check",
  "goals": [
    {
      "id": "G1",
      "description": "one goal",
      "actions": [
        {"id": "G1-A1", "description": "think it through", "type": "thinker"}
      ]
    }
  ]
}`)

	plan, err := loadPlanFile(path)
	if err != nil {
		t.Fatalf("loadPlanFile failed: %v", err)
	}
	if plan.Title != "json plan" {
		t.Errorf("title = %q", plan.Title)
	}
	if plan.Description != "decode check" {
		t.Errorf("description = %q", plan.Description)
	}
}

func TestLoadPlanFile_InvalidPlan(t *testing.T) {
	// Dependency points at an action that does not exist.
	path := writePlanFile(t, "plan.yaml", `
title: broken plan
description: bad dep
goals:
  - id: G1
    description: goal
    actions:
      - id: G1-A1
        description: do something
        type: coder
        dependencies: [G9-A9]
`)

	if _, err := loadPlanFile(path); err == nil {
		t.Error("expected validation error for unknown dependency")
	}
}

func TestLoadPlanFile_MissingFile(t *testing.T) {
	if _, err := loadPlanFile(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}
