package team

import (
	"testing"

	"devteam/pkg/tools"
)

func TestPipelineOrder(t *testing.T) {
	full := Pipeline(true)
	want := []string{RolePM, RoleArchitect, RoleDeveloper, RoleQA}
	if len(full) != len(want) {
		t.Fatalf("pipeline length = %d, want %d", len(full), len(want))
	}
	for i, spec := range full {
		if spec.ID != want[i] {
			t.Errorf("pipeline[%d] = %s, want %s", i, spec.ID, want[i])
		}
	}

	noQA := Pipeline(false)
	if len(noQA) != 3 || noQA[len(noQA)-1].ID != RoleDeveloper {
		t.Errorf("pipeline without QA should end at developer: %+v", noQA)
	}
}

func TestNextRole(t *testing.T) {
	cases := []struct {
		role      string
		qaEnabled bool
		want      string
	}{
		{RolePM, true, RoleArchitect},
		{RoleArchitect, true, RoleDeveloper},
		{RoleDeveloper, true, RoleQA},
		{RoleQA, true, ""},
		{RoleDeveloper, false, ""},
		{"nonsense", true, ""},
	}
	for _, tc := range cases {
		if got := NextRole(tc.role, tc.qaEnabled); got != tc.want {
			t.Errorf("NextRole(%s, qa=%v) = %q, want %q", tc.role, tc.qaEnabled, got, tc.want)
		}
	}
}

func TestDisplayNames(t *testing.T) {
	wantNames := map[string]string{
		RolePM:        "Sofia",
		RoleArchitect: "Mateo",
		RoleDeveloper: "Lucas",
		RoleQA:        "Camila",
	}
	for _, spec := range Pipeline(true) {
		if got := DisplayName(spec); got != wantNames[spec.ID] {
			t.Errorf("DisplayName(%s) = %q, want %q", spec.ID, got, wantNames[spec.ID])
		}
	}
}

func TestDisplayNameFallback(t *testing.T) {
	spec := Spec{ID: "reviewer", Prompt: "You review things."}
	if got := DisplayName(spec); got != "Agent Reviewer" {
		t.Errorf("fallback name = %q", got)
	}
}

func TestToolAllowlists(t *testing.T) {
	allow := make(map[string][]string)
	for _, spec := range Pipeline(true) {
		allow[spec.ID] = spec.AllowedTools
	}

	if got := allow[RoleQA]; len(got) != 1 || got[0] != tools.ToolFileRead {
		t.Errorf("qa tools = %v", got)
	}
	for _, role := range []string{RolePM, RoleDeveloper} {
		if got := allow[role]; len(got) != 1 || got[0] != tools.ToolFileWrite {
			t.Errorf("%s tools = %v", role, got)
		}
	}
	archHasSearch := false
	for _, name := range allow[RoleArchitect] {
		if name == tools.ToolWebSearch {
			archHasSearch = true
		}
	}
	if !archHasSearch {
		t.Error("architect should carry web_search")
	}
}

func TestByID(t *testing.T) {
	if _, err := ByID(RoleQA, false); err == nil {
		t.Error("qa should not resolve when disabled")
	}
	spec, err := ByID(RolePM, true)
	if err != nil || spec.ID != RolePM {
		t.Errorf("ByID(pm) = %+v, %v", spec, err)
	}
}
