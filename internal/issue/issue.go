// SPDX-License-Identifier: MPL-2.0

package issue

import (
	"strings"

	"github.com/charmbracelet/glamour"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

type Id int

const (
	NoInstallationFoundId Id = iota + 1
	ManifestParseFailedId
	PathTraversalId
	RemoteAliasUnknownId
	RemoteCloneFailedId
	AmbiguousMatchId
	AgentNotFoundId
	WorkflowNotFoundId
	ConfigLoadFailedId
)

type MarkdownMsg string

type HttpLink string

type Issue struct {
	id       Id          // ID used to lookup the issue
	mdMsg    MarkdownMsg // Markdown text that will be rendered
	docLinks []HttpLink
}

func (i *Issue) Id() Id {
	return i.id
}

func (i *Issue) MarkdownMsg() MarkdownMsg {
	return i.mdMsg
}

func (i *Issue) DocLinks() []HttpLink {
	return slices.Clone(i.docLinks)
}

// Render renders the issue text with the given glamour style ("dark",
// "light", "notty", or a path to a JSON style file).
func (i *Issue) Render(stylePath string) (string, error) {
	var extra strings.Builder
	if len(i.docLinks) > 0 {
		extra.WriteString("\n\n## See also\n")
		for _, link := range i.docLinks {
			extra.WriteString("- <" + string(link) + ">\n")
		}
	}
	return render(string(i.mdMsg)+extra.String(), stylePath)
}

var (
	render = glamour.Render

	noInstallationFoundIssue = &Issue{
		id: NoInstallationFoundId,
		mdMsg: `
# No BMAD installation found!

Every candidate location was checked and none holds a usable installation.

## Locations are checked in this order:
1. The project directory (and, in auto mode, its parents and children)
2. Paths passed with "--root"
3. The "BMAD_ROOT" environment variable
4. "~/.bmad"
5. The packaged fallback

## Things you can try:
- Run from your project root, or pass it explicitly:
~~~
$ bmadx resolve --root /path/to/project
~~~
- Use auto mode to search parent and nested directories:
~~~
$ bmadx resolve --mode auto
~~~`,
	}

	manifestParseFailedIssue = &Issue{
		id: ManifestParseFailedId,
		mdMsg: `
# A manifest file could not be parsed

Entries from the broken manifest were skipped. Files that exist on disk are
still listed with status "not-in-manifest".

## Things you can try:
- Check "bmad/_cfg/*-manifest.csv" for unbalanced quotes
- Make sure the header row has "name", "module" and "path" columns
~~~
$ bmadx reconcile --verbose
~~~`,
	}

	pathTraversalIssue = &Issue{
		id: PathTraversalId,
		mdMsg: `
# Path traversal blocked

The requested path resolves outside of the installation root and was refused.
This is a security check and is never retried.`,
	}

	remoteAliasUnknownIssue = &Issue{
		id: RemoteAliasUnknownId,
		mdMsg: `
# Unknown remote alias

Remote references look like "@alias:path". The alias must be declared in the
"remote.sources" list of your configuration.

## Things you can try:
~~~
$ bmadx config show
$ bmadx remote cache
~~~`,
	}

	remoteCloneFailedIssue = &Issue{
		id: RemoteCloneFailedId,
		mdMsg: `
# Remote source could not be fetched

The clone or fetch did not complete. Any partial clone is kept in the cache
directory and the next request resumes from it.

## Things you can try:
- Check network access to the git host
- For private repositories set "GITHUB_TOKEN", "GITLAB_TOKEN" or "GIT_TOKEN"
- Raise "remote.clone_timeout" in the configuration`,
	}

	ambiguousMatchIssue = &Issue{
		id: AmbiguousMatchId,
		mdMsg: `
# More than one match

The name matched several candidates closely and none was selected
automatically. Pick one of the suggestions, or list everything available:
~~~
$ bmadx run '*list-agents'
~~~`,
	}

	agentNotFoundIssue = &Issue{
		id: AgentNotFoundId,
		mdMsg: `
# Agent not found

## Things you can try:
~~~
$ bmadx run '*list-agents'
$ bmadx reconcile
~~~`,
	}

	workflowNotFoundIssue = &Issue{
		id: WorkflowNotFoundId,
		mdMsg: `
# Workflow not found

Workflows are requested with a leading asterisk, for example "*party-mode".

## Things you can try:
~~~
$ bmadx run '*list-workflows'
~~~`,
	}

	configLoadFailedIssue = &Issue{
		id: ConfigLoadFailedId,
		mdMsg: `
# Failed to load configuration!

## Things you can try:
- Check the syntax of your config file:
~~~
$ bmadx config path
$ bmadx config show
~~~
- Recreate a default configuration:
~~~
$ bmadx config init
~~~`,
	}

	issues = map[Id]*Issue{
		noInstallationFoundIssue.Id(): noInstallationFoundIssue,
		manifestParseFailedIssue.Id(): manifestParseFailedIssue,
		pathTraversalIssue.Id():       pathTraversalIssue,
		remoteAliasUnknownIssue.Id():  remoteAliasUnknownIssue,
		remoteCloneFailedIssue.Id():   remoteCloneFailedIssue,
		ambiguousMatchIssue.Id():      ambiguousMatchIssue,
		agentNotFoundIssue.Id():       agentNotFoundIssue,
		workflowNotFoundIssue.Id():    workflowNotFoundIssue,
		configLoadFailedIssue.Id():    configLoadFailedIssue,
	}
)

// Values returns every catalog entry ordered by Id.
func Values() []*Issue {
	ids := maps.Keys(issues)
	slices.Sort(ids)
	out := make([]*Issue, 0, len(ids))
	for _, id := range ids {
		out = append(out, issues[id])
	}
	return out
}

// Get returns the catalog entry for id, or nil.
func Get(id Id) *Issue {
	return issues[id]
}
