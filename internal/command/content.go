// SPDX-License-Identifier: MPL-2.0

package command

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"github.com/bmadx/bmadx/internal/filereader"
	"github.com/bmadx/bmadx/internal/location"
	"github.com/bmadx/bmadx/internal/manifest"
)

const (
	placeholderProjectRoot  = "{project-root}"
	placeholderMCPResources = "{mcp-resources}"

	instructionsFile = "instructions.md"
	availableLimit   = 10
)

const agentInstructions = `## BMAD Processing Instructions

This agent is part of the BMAD (BMad Methodology for Agile Development) framework.

**How to Process:**
1. Read the agent definition markdown to understand role, identity, and principles
2. Apply the communication style specified in the agent definition
3. Use the customization YAML for any project-specific overrides
4. Access available BMAD tools and workflows as needed
5. Follow the agent's core principles when making decisions

**Agent Activation:**
- You are now embodying this agent's persona
- Communicate using the specified communication style
- Apply the agent's principles to all recommendations
- Use the agent's identity and role to guide your responses

**Available BMAD Tools:**
- ` + "`bmad *<workflow-name>`" + ` executes a BMAD workflow
- ` + "`bmad *list-workflows`" + ` lists every workflow`

const workflowInstructions = `## Execution Instructions

1. Read the complete workflow configuration.
2. Every ` + "`{mcp-resources}`" + ` placeholder refers to this server's installation, not
   the user's workspace. Use the agent roster above instead of searching for
   manifest files.
3. Replace ` + "`{{variables}}`" + ` with user input or defaults.
4. Execute the steps in the order they are defined.
5. Process ` + "`<template-output>`" + ` sections and ask for input at
   ` + "`<elicit-required>`" + ` sections.

Begin workflow execution now.`

// rewritePlaceholders points installation-relative placeholders at the
// resources served by this process.
func rewritePlaceholders(s string) string {
	return strings.ReplaceAll(s, placeholderProjectRoot, placeholderMCPResources)
}

func (r *Router) loadAgent(ctx context.Context, set *manifest.Set, name, query string) Result {
	records := set.Lookup(manifest.KindAgent, name)
	if len(records) == 0 {
		return failure(CodeUnknownAgent, fmt.Sprintf("Agent %q not found.", name), ExitNotFound, cmdListAgents)
	}
	rec, alternatives, err := r.choose(ctx, records, query)
	if err != nil {
		return fromError(err)
	}

	reader := filereader.New(set.Location.ResolvedRoot)
	body, err := reader.ReadFile(rec.AbsolutePath)
	if err != nil {
		return fromError(err)
	}

	display := cmpOr(rec.DisplayName, rec.Name)
	title := cmpOr(rec.Title, "BMAD Agent")

	var b strings.Builder
	fmt.Fprintf(&b, "# BMAD Agent: %s\n**Title:** %s\n\n", display, title)
	fmt.Fprintf(&b, "## Agent Definition\n\n**File:** `%s`\n\n```markdown\n%s\n```\n\n", bmadPath(rec), rewritePlaceholders(body))

	stem := rec.Name
	if rec.ModuleName != "" {
		stem = rec.ModuleName + "-" + rec.Name
	}
	customize := path.Join(location.ManifestDirName, "agents", stem+".customize.yaml")
	fmt.Fprintf(&b, "## Agent Customization\n\n**File:** `bmad/%s`\n\n", customize)
	if yml, err := reader.ReadFile(customize); err == nil {
		fmt.Fprintf(&b, "```yaml\n%s\n```\n\n", rewritePlaceholders(yml))
	} else {
		b.WriteString("No customization file.\n\n")
	}
	b.WriteString(agentInstructions)

	return Result{
		Success:      true,
		Type:         TypeAgent,
		Name:         rec.Name,
		DisplayName:  display,
		Module:       rec.ModuleName,
		Path:         bmadPath(rec),
		Content:      b.String(),
		Source:       set.Location.ResolvedRoot,
		Alternatives: alternatives,
	}
}

func (r *Router) loadWorkflow(ctx context.Context, set *manifest.Set, name, query string) Result {
	records := set.Lookup(manifest.KindWorkflow, name)
	if len(records) == 0 {
		return failure(CodeUnknownWorkflow, fmt.Sprintf("Workflow %q not found.", name), ExitNotFound, cmdListWorkflows)
	}
	rec, alternatives, err := r.choose(ctx, records, query)
	if err != nil {
		return fromError(err)
	}

	reader := filereader.New(set.Location.ResolvedRoot)
	yml, err := reader.ReadFile(rec.AbsolutePath)
	if err != nil {
		return fromError(err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# BMAD Workflow: %s\n", rec.Name)
	if rec.Description != "" {
		fmt.Fprintf(&b, "%s\n", rec.Description)
	}
	fmt.Fprintf(&b, "\n## Workflow Definition\n\n**File:** `%s`\n\n```yaml\n%s\n```\n", bmadPath(rec), rewritePlaceholders(yml))

	instructions := path.Join(path.Dir(rec.ModuleRelativePath), instructionsFile)
	if md, err := reader.ReadFile(instructions); err == nil {
		fmt.Fprintf(&b, "\n## Instructions\n\n%s\n", rewritePlaceholders(md))
	}

	fmt.Fprintf(&b, "\n## Workflow Context\n\n- MCP resources: `%s`\n- Agent manifest: `%s`\n- Agents available: %d\n",
		set.Location.ResolvedRoot,
		filepath.Join(set.Location.ManifestDir, "agent-manifest.csv"),
		len(set.Agents))
	writeRoster(&b, set)
	b.WriteString("\n")
	b.WriteString(workflowInstructions)

	return Result{
		Success:      true,
		Type:         TypeWorkflow,
		Name:         rec.Name,
		Module:       rec.ModuleName,
		Path:         bmadPath(rec),
		Content:      b.String(),
		Source:       set.Location.ResolvedRoot,
		Alternatives: alternatives,
	}
}

func listRecords(set *manifest.Set, k manifest.Kind) Result {
	records := set.Records(k)
	var b strings.Builder

	switch k {
	case manifest.KindAgent:
		b.WriteString("# Available BMAD Agents\n\n")
	case manifest.KindWorkflow:
		b.WriteString("# Available BMAD Workflows\n\n")
	default:
		b.WriteString("# Available BMAD Tasks\n\n")
	}

	if len(records) == 0 {
		fmt.Fprintf(&b, "No %ss found.\n", k)
	} else {
		fmt.Fprintf(&b, "Found %d %ss:\n", len(records), k)
	}

	for i, rec := range records {
		switch k {
		case manifest.KindAgent:
			fmt.Fprintf(&b, "\n%d. **%s** (`%s`)\n", i+1, cmpOr(rec.DisplayName, rec.Name), rec.Name)
			fmt.Fprintf(&b, "   - Role: %s\n", cmpOr(rec.Title, "No role specified"))
			fmt.Fprintf(&b, "   - Module: %s\n", rec.ModuleName)
			fmt.Fprintf(&b, "   - Command: `bmad %s`\n", rec.Name)
		case manifest.KindWorkflow:
			fmt.Fprintf(&b, "\n%d. **%s** - %s\n", i+1, rec.Name, cmpOr(rec.Description, "No description"))
			fmt.Fprintf(&b, "   - Module: %s\n", rec.ModuleName)
			fmt.Fprintf(&b, "   - Command: `bmad *%s`\n", rec.Name)
		default:
			fmt.Fprintf(&b, "\n%d. **%s**\n", i+1, rec.Name)
			fmt.Fprintf(&b, "   - %s\n", cmpOr(rec.Description, "No description"))
			fmt.Fprintf(&b, "   - Module: %s\n", rec.ModuleName)
		}
		if rec.Status != manifest.StatusVerified {
			fmt.Fprintf(&b, "   - Status: %s\n", rec.Status)
		}
	}

	switch k {
	case manifest.KindAgent:
		b.WriteString("\n**Usage:** `bmad <agent-name>` loads an agent.\n")
	case manifest.KindWorkflow:
		b.WriteString("\n**Usage:** `bmad *<workflow-name>` runs a workflow.\n")
	default:
		b.WriteString("\n**Note:** Tasks are referenced from workflows and agent instructions.\n")
	}

	return Result{
		Success: true,
		Type:    TypeList,
		Name:    string(k),
		Count:   len(records),
		Content: b.String(),
		Source:  set.Location.ResolvedRoot,
	}
}

func (r *Router) help(ctx context.Context) Result {
	var b strings.Builder
	b.WriteString(`# BMAD Command Reference

## Load Agents
- ` + "`bmad`" + ` (empty) loads bmad-master, the default agent
- ` + "`bmad <agent-name>`" + ` loads a specific agent, e.g. ` + "`bmad analyst`" + `

## Execute Workflows
- ` + "`bmad *<workflow-name>`" + ` runs a workflow, e.g. ` + "`bmad *party-mode`" + `

## Discovery
- ` + "`bmad *list-agents`" + ` shows every agent
- ` + "`bmad *list-workflows`" + ` shows every workflow
- ` + "`bmad *list-tasks`" + ` shows every task
- ` + "`bmad *help`" + ` shows this reference
`)

	if r.remote != nil {
		aliases := r.remote.Registry().Aliases()
		b.WriteString("\n## Remote Sources\n- `bmad @<alias>:<agent>` loads an agent from a remote source\n")
		for _, a := range aliases {
			fmt.Fprintf(&b, "- `@%s`\n", a)
		}
	}

	res := Result{Success: true, Type: TypeHelp}
	if r.reconciler != nil {
		if set, err := r.reconciler.Ensure(ctx); err == nil {
			fmt.Fprintf(&b, "\n## Resources\nAll resources are loaded from `%s`\n- Agents: %d available\n- Workflows: %d available\n",
				set.Location.ResolvedRoot, len(set.Agents), len(set.Workflows))
			res.Source = set.Location.ResolvedRoot
		}
	}
	res.Content = b.String()
	return res
}

// availableList renders a short listing for unknown-name errors.
func availableList(set *manifest.Set, k manifest.Kind) string {
	records := set.Records(k)
	lines := []string{fmt.Sprintf("Available %ss:", k)}
	for i, rec := range records {
		if i == availableLimit {
			lines = append(lines, fmt.Sprintf("  ... (%d more)", len(records)-availableLimit))
			break
		}
		if k == manifest.KindWorkflow {
			lines = append(lines, fmt.Sprintf("  - *%s (%s)", rec.Name, rec.Description))
		} else {
			lines = append(lines, fmt.Sprintf("  - %s (%s)", rec.Name, rec.Title))
		}
	}
	return strings.Join(lines, "\n")
}

// writeRoster lists every agent present on disk so workflows that address
// agents never need to read the manifest themselves.
func writeRoster(b *strings.Builder, set *manifest.Set) {
	b.WriteString("\n**Agent Roster:**\n\n")
	for _, rec := range set.Agents {
		if !rec.ExistsOnDisk {
			continue
		}
		fmt.Fprintf(b, "- `%s` %s (%s), module %s\n", rec.Name, cmpOr(rec.DisplayName, rec.Name), cmpOr(rec.Title, "agent"), rec.ModuleName)
	}
}

func bmadPath(rec manifest.Record) string {
	if rec.BmadRelativePath != "" {
		return rec.BmadRelativePath
	}
	return "bmad/" + rec.ModuleRelativePath
}

func cmpOr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
