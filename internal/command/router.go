// SPDX-License-Identifier: MPL-2.0

package command

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bmadx/bmadx/internal/filereader"
	"github.com/bmadx/bmadx/internal/fuzzy"
	"github.com/bmadx/bmadx/internal/issue"
	"github.com/bmadx/bmadx/internal/location"
	"github.com/bmadx/bmadx/internal/manifest"
	"github.com/bmadx/bmadx/internal/ranking"
	"github.com/bmadx/bmadx/internal/remote"
)

const (
	// DefaultAgent is loaded by the empty command.
	DefaultAgent = "bmad-master"

	cmdListAgents    = "*list-agents"
	cmdListWorkflows = "*list-workflows"
	cmdListTasks     = "*list-tasks"
	cmdHelp          = "*help"

	maxSuggestions = 3
)

// agentAliases maps shorthand agent names to their canonical names.
var agentAliases = map[string]string{
	"master": DefaultAgent,
}

type (
	// Options wires a Router. Reconciler and Remote are optional: without a
	// Reconciler local commands report InstallErr, without Remote "@"
	// commands are rejected.
	Options struct {
		Reconciler *manifest.Reconciler
		Ranker     *ranking.Ranker
		Remote     *remote.Resolver
		// InstallErr explains why there is no Reconciler.
		InstallErr error
	}

	// Request is a command plus optional natural-language context used to
	// rank same-named records across modules.
	Request struct {
		Command string
		Query   string
	}

	// Router executes commands against the active installation.
	Router struct {
		reconciler *manifest.Reconciler
		ranker     *ranking.Ranker
		remote     *remote.Resolver
		installErr error
	}
)

// NewRouter creates a Router.
func NewRouter(opts Options) *Router {
	if opts.Ranker == nil {
		opts.Ranker = ranking.NewRanker(nil, ranking.DefaultWeights(), nil)
	}
	return &Router{
		reconciler: opts.Reconciler,
		ranker:     opts.Ranker,
		remote:     opts.Remote,
		installErr: opts.InstallErr,
	}
}

// Ranker returns the router's ranker.
func (r *Router) Ranker() *ranking.Ranker { return r.ranker }

// WithRanker returns a copy of r that ranks with ranker.
func (r *Router) WithRanker(ranker *ranking.Ranker) *Router {
	cp := *r
	cp.ranker = ranker
	return &cp
}

// Execute runs cmd without ranking context.
func (r *Router) Execute(ctx context.Context, cmd string) Result {
	return r.Run(ctx, Request{Command: cmd})
}

// Run executes one request. It never returns a Go error: every failure is
// a Result with an error code.
func (r *Router) Run(ctx context.Context, req Request) Result {
	start := time.Now()
	res := r.run(ctx, req)
	observe(res, time.Since(start))
	if !res.Success {
		slog.Debug("command failed", "command", req.Command, "code", res.ErrorCode, "exit", res.ExitCode)
	}
	return res
}

func (r *Router) run(ctx context.Context, req Request) Result {
	cmd := strings.TrimSpace(req.Command)

	switch cmd {
	case "":
		return r.withSet(ctx, func(set *manifest.Set) Result {
			return r.loadAgent(ctx, set, DefaultAgent, req.Query)
		})
	case cmdListAgents:
		return r.withSet(ctx, func(set *manifest.Set) Result { return listRecords(set, manifest.KindAgent) })
	case cmdListWorkflows:
		return r.withSet(ctx, func(set *manifest.Set) Result { return listRecords(set, manifest.KindWorkflow) })
	case cmdListTasks:
		return r.withSet(ctx, func(set *manifest.Set) Result { return listRecords(set, manifest.KindTask) })
	case cmdHelp:
		return r.help(ctx)
	}

	p, invalid := parse(cmd)
	if invalid != nil {
		return *invalid
	}

	if p.kind == kindRemote {
		return r.loadRemote(ctx, p.name)
	}

	return r.withSet(ctx, func(set *manifest.Set) Result {
		if res := validateName(set, &p); res != nil {
			return *res
		}
		if p.kind == kindWorkflow {
			return r.loadWorkflow(ctx, set, p.name, req.Query)
		}
		return r.loadAgent(ctx, set, p.name, req.Query)
	})
}

func (r *Router) withSet(ctx context.Context, fn func(*manifest.Set) Result) Result {
	if r.reconciler == nil {
		return fromError(r.noInstallation())
	}
	set, err := r.reconciler.Ensure(ctx)
	if err != nil {
		return fromError(err)
	}
	return fn(set)
}

func (r *Router) noInstallation() error {
	if r.installErr != nil {
		return r.installErr
	}
	return issue.NewErrorContext().
		WithOperation("load installation").
		WithSuggestion("Run 'bmadx resolve' to see which locations were checked").
		WithIssue(issue.NoInstallationFoundId).
		Wrap(location.ErrNoValidInstallation).
		BuildError()
}

// validateName resolves aliases and checks the name against the set. It
// may rewrite p.name.
func validateName(set *manifest.Set, p *parsed) *Result {
	if p.kind == kindAgent {
		if canonical, ok := agentAliases[p.name]; ok && hasName(set, manifest.KindAgent, canonical) {
			p.name = canonical
		}
	}

	kindOf := manifest.KindAgent
	if p.kind == kindWorkflow {
		kindOf = manifest.KindWorkflow
	}
	names := set.Names(kindOf)

	if p.kind == kindAgent && !hasName(set, manifest.KindAgent, p.name) && hasName(set, manifest.KindWorkflow, p.name) {
		res := failure(CodeMissingAsterisk,
			fmt.Sprintf("%q is a workflow; workflows need the asterisk prefix.\n\nTry: *%s", p.name, p.name),
			ExitValidation, "*"+p.name)
		return &res
	}

	if !hasName(set, kindOf, p.name) {
		for _, n := range names {
			if strings.EqualFold(n, p.name) {
				res := failure(CodeCaseMismatch,
					fmt.Sprintf("Names are case-sensitive: %q does not match %q.", p.name, n),
					ExitValidation, prefixed(p.kind, n))
				return &res
			}
		}
	}

	if res := checkName(p.name, p.kind); res != nil {
		return res
	}

	if hasName(set, kindOf, p.name) {
		return nil
	}

	code, listCmd := CodeUnknownAgent, cmdListAgents
	if p.kind == kindWorkflow {
		code, listCmd = CodeUnknownWorkflow, cmdListWorkflows
	}
	suggestions := suggest(p.name, names, p.kind)
	msg := fmt.Sprintf("Unknown %s %q.", strings.ToLower(entityName(p.kind)), prefixed(p.kind, p.name))
	if len(suggestions) > 0 {
		msg += fmt.Sprintf("\n\nDid you mean: %s?", strings.Join(suggestions, ", "))
	}
	msg += fmt.Sprintf("\n\n%s\n\nRun %s to see all of them.", availableList(set, kindOf), listCmd)
	res := failure(code, msg, ExitValidation, suggestions...)
	return &res
}

func hasName(set *manifest.Set, k manifest.Kind, name string) bool {
	return len(set.Lookup(k, name)) > 0
}

func suggest(name string, names []string, k kind) []string {
	cands := make([]fuzzy.Candidate, len(names))
	for i, n := range names {
		cands[i] = fuzzy.Candidate{Name: n}
	}
	out := fuzzy.Suggest(name, cands)
	if len(out) > maxSuggestions {
		out = out[:maxSuggestions]
	}
	for i := range out {
		out[i] = prefixed(k, out[i])
	}
	return out
}

func prefixed(k kind, name string) string {
	if k == kindWorkflow {
		return "*" + name
	}
	return name
}

// choose picks the record to serve among same-named records. Only records
// present on disk compete; the winner's usage is recorded.
func (r *Router) choose(ctx context.Context, records []manifest.Record, query string) (manifest.Record, []string, error) {
	var present []manifest.Record
	for _, rec := range records {
		if rec.ExistsOnDisk {
			present = append(present, rec)
		}
	}
	if len(present) == 0 {
		return manifest.Record{}, nil, &missingFileError{record: records[0]}
	}
	if len(present) == 1 {
		r.ranker.Tracker().Record(present[0].QualifiedName())
		return present[0], nil, nil
	}

	cands := make([]ranking.Candidate, len(present))
	byKey := make(map[string]manifest.Record, len(present))
	for i, rec := range present {
		cands[i] = ranking.Candidate{Key: rec.QualifiedName(), Module: rec.ModuleName}
		byKey[rec.QualifiedName()] = rec
	}
	ranked, err := r.ranker.Rank(ctx, cands, query)
	if err != nil {
		return manifest.Record{}, nil, err
	}

	winner := byKey[ranked.Keys[0]]
	r.ranker.Tracker().Record(ranked.Keys[0])
	slog.Debug("ranked same-named records", "name", winner.Name, "method", ranked.Method, "order", ranked.Keys)
	return winner, ranked.Keys[1:], nil
}

func (r *Router) loadRemote(ctx context.Context, raw string) Result {
	if r.remote == nil {
		return failure(CodeRemoteUnavailable,
			"Remote sources are not configured. Add entries under remote.sources in the config file.",
			ExitRemote)
	}

	res, err := r.remote.Resolve(ctx, raw)
	if err != nil {
		return fromError(err)
	}

	return Result{
		Success:     true,
		Type:        TypeAgent,
		Name:        res.Record.Name,
		DisplayName: res.Record.DisplayName,
		Module:      res.Record.ModuleName,
		Path:        res.Record.Path,
		Content:     rewritePlaceholders(res.Content),
		Corrected:   res.Corrected,
		Suggestions: res.Suggestions,
		Source:      res.Ref.String() + "@" + shortCommit(res.Entry.CurrentCommit),
	}
}

func shortCommit(c string) string {
	if len(c) > 12 {
		return c[:12]
	}
	return c
}

// missingFileError is returned when every record with a name is declared
// but absent on disk.
type missingFileError struct {
	record manifest.Record
}

func (e *missingFileError) Error() string {
	return fmt.Sprintf("%s %q is declared in the manifest but %s does not exist", e.record.Kind, e.record.Name, e.record.BmadRelativePath)
}

// fromError maps engine errors onto stable codes.
func fromError(err error) Result {
	var (
		traversal  *filereader.PathTraversalError
		malformed  *remote.MalformedRefError
		unknown    *remote.AliasUnknownError
		clone      *remote.CloneFailureError
		ambiguous  *fuzzy.AmbiguousMatchError
		noMatch    *fuzzy.NoMatchError
		noCands    *fuzzy.NoCandidatesError
		missing    *missingFileError
		actionable *issue.ActionableError
	)

	msg := err.Error()
	if errors.As(err, &actionable) {
		msg = actionable.Format(false)
	}

	switch {
	case errors.As(err, &traversal):
		return failure(CodePathTraversal, "Access denied: "+traversal.Error(), ExitSecurity)
	case errors.Is(err, location.ErrNoValidInstallation), errors.Is(err, manifest.ErrLocationNotValid):
		return failure(CodeNoInstallation, msg, ExitNotFound, "bmadx resolve")
	case errors.As(err, &malformed):
		return failure(CodeInvalidRemoteRef, msg, ExitValidation)
	case errors.As(err, &unknown):
		return failure(CodeUnknownRemoteAlias, msg, ExitValidation, aliasSuggestions(unknown.Known)...)
	case errors.As(err, &clone):
		return failure(CodeRemoteCloneFailed, msg, ExitRemote)
	case errors.As(err, &ambiguous):
		return failure(CodeAmbiguousMatch, msg, ExitValidation, ambiguous.Suggestions...)
	case errors.As(err, &noMatch):
		return failure(CodeUnknownAgent, msg, ExitValidation)
	case errors.As(err, &noCands):
		return failure(CodeNoAgentsFound, msg, ExitNotFound)
	case errors.As(err, &missing), errors.Is(err, filereader.ErrFileRead):
		return failure(CodeFileNotFound, msg, ExitNotFound)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return failure(CodeInternal, "command canceled: "+msg, ExitValidation)
	default:
		return failure(CodeInternal, msg, ExitValidation)
	}
}

func aliasSuggestions(known []string) []string {
	out := make([]string, len(known))
	for i, a := range known {
		out[i] = "@" + a + ":<agent>"
	}
	return out
}
