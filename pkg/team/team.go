// Package team defines the fixed software team: one role per pipeline
// stage, each with a persona prompt, a tool allowlist, and its place in
// the hand-off order.
package team

import (
	"fmt"
	"regexp"
	"strings"

	"devteam/pkg/tools"
)

// Role identifiers double as graph node names.
const (
	RolePM        = "pm"
	RoleArchitect = "architect"
	RoleDeveloper = "developer"
	RoleQA        = "qa"
)

// Control sentinels the roles embed in free text. The router strips the
// marker before surfacing the remainder to the human.
const (
	SentinelClarification = "CLARIFICATION_NEEDED:"
	SentinelCompleted     = "PROJECT_COMPLETED:"
	SentinelQAApproved    = "QA_APPROVED"
	SentinelQARejected    = "QA_REJECTED"
)

// Hand-off artifacts. When a tool turn writes one of these paths, control
// passes to the next stage instead of returning to the writer.
const (
	RequirementsDoc = "docs/requirements.md"
	ArchitectureDoc = "docs/architecture.md"
)

// Spec describes one role of the team.
type Spec struct {
	ID           string
	Prompt       string
	AllowedTools []string
}

// Pipeline returns the role specs in fixed hand-off order. With qaEnabled
// false the developer hands off straight to completion review.
func Pipeline(qaEnabled bool) []Spec {
	specs := []Spec{
		{
			ID:           RolePM,
			Prompt:       pmPrompt,
			AllowedTools: []string{tools.ToolFileWrite},
		},
		{
			ID:           RoleArchitect,
			Prompt:       architectPrompt,
			AllowedTools: []string{tools.ToolWebSearch, tools.ToolFileWrite},
		},
		{
			ID:           RoleDeveloper,
			Prompt:       developerPrompt,
			AllowedTools: []string{tools.ToolFileWrite},
		},
	}
	if qaEnabled {
		specs = append(specs, Spec{
			ID:           RoleQA,
			Prompt:       qaPrompt,
			AllowedTools: []string{tools.ToolFileRead},
		})
	}
	return specs
}

// ByID returns the spec for a role id.
func ByID(id string, qaEnabled bool) (Spec, error) {
	for _, spec := range Pipeline(qaEnabled) {
		if spec.ID == id {
			return spec, nil
		}
	}
	return Spec{}, fmt.Errorf("unknown role: %s", id)
}

// NextRole returns the role that follows id in the pipeline, or "" for the
// last stage.
func NextRole(id string, qaEnabled bool) string {
	pipeline := Pipeline(qaEnabled)
	for i, spec := range pipeline {
		if spec.ID == id && i+1 < len(pipeline) {
			return pipeline[i+1].ID
		}
	}
	return ""
}

var quotedName = regexp.MustCompile(`"([^"]+)"`)

// DisplayName extracts the persona name from a role prompt: the first
// quoted token. Falls back to a generic name built from the role id.
func DisplayName(spec Spec) string {
	if m := quotedName.FindStringSubmatch(spec.Prompt); m != nil {
		return m[1]
	}
	return "Agent " + strings.ToUpper(spec.ID[:1]) + spec.ID[1:]
}

const pmPrompt = `You are "Sofia", the product manager of a small software team.
Your job is to turn the client's request into a clear requirements document.

Rules:
- If the request is ambiguous or missing key details, ask exactly one question by replying with a single line starting with CLARIFICATION_NEEDED: followed by your question. Do not call any tools in that case.
- Once the requirements are clear, write them to "docs/requirements.md" using the file_write tool. The document must list the features, constraints, and acceptance criteria.
- Keep your commentary brief; the document is the deliverable.`

const architectPrompt = `You are "Mateo", the software architect of a small software team.
You receive a requirements document and design the technical solution.

Rules:
- Read the requirements from the conversation. Use web_search if you need to verify a framework or library choice.
- Write the architecture to "docs/architecture.md" using the file_write tool. It must name the stack, the file layout of the project, and the responsibilities of each file.
- If the requirements are impossible or contradictory, reply with a single line starting with CLARIFICATION_NEEDED: and your question.`

const developerPrompt = `You are "Lucas", the developer of a small software team.
You implement the project exactly as the architecture document describes.

Rules:
- Create every file the architecture names, using one file_write call per file with the complete content.
- Do not leave placeholders or TODO stubs; write working code.
- When every file is written and the project is complete, reply with a single line starting with PROJECT_COMPLETED: followed by a short summary for the client.`

const qaPrompt = `You are "Camila", the QA engineer of a small software team.
You review the developer's work against the requirements and architecture.

Rules:
- Use file_read to inspect the generated files before judging.
- If the implementation satisfies the requirements, reply with a single line starting with QA_APPROVED followed by a short report.
- If it does not, reply with a single line starting with QA_REJECTED followed by a concrete list of defects for the developer to fix.`
