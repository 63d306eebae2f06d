// SPDX-License-Identifier: MPL-2.0

package command

import (
	"fmt"
	"regexp"
	"strings"
)

const (
	// MinNameLength is the shortest accepted agent or workflow name.
	MinNameLength = 2
	// MaxNameLength is the longest accepted agent or workflow name.
	MaxNameLength = 50

	dangerousChars = ";&|$`<>()\n\r"
)

var (
	agentNamePattern    = regexp.MustCompile(`^[a-z]+(-[a-z]+)*$`)
	workflowNamePattern = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)
)

type (
	// kind is the parsed command form.
	kind int

	parsed struct {
		kind kind
		name string
	}
)

const (
	kindAgent kind = iota
	kindWorkflow
	kindRemote
)

// parse checks the raw command shape before any lookup. A non-nil Result
// is a validation failure.
func parse(cmd string) (parsed, *Result) {
	if res := checkCharacters(cmd); res != nil {
		return parsed{}, res
	}

	if parts := strings.Fields(cmd); len(parts) > 1 {
		res := failure(CodeTooManyArguments, tooManyArgsMessage(parts), ExitValidation, parts[0], "*"+parts[1])
		return parsed{}, &res
	}

	switch {
	case strings.HasPrefix(cmd, "@"):
		return parsed{kind: kindRemote, name: cmd}, nil
	case strings.HasPrefix(cmd, "**"):
		name := strings.TrimLeft(cmd, "*")
		res := failure(CodeInvalidAsteriskCount,
			fmt.Sprintf("Workflows take exactly one asterisk prefix, not %d.\n\nTry: *%s", len(cmd)-len(name), name),
			ExitValidation, "*"+name)
		return parsed{}, &res
	case strings.HasPrefix(cmd, "*"):
		name := strings.TrimSpace(cmd[1:])
		if name == "" {
			res := failure(CodeMissingWorkflowName,
				"The asterisk prefix needs a workflow name, e.g. *party-mode.\n\nRun *list-workflows to see every workflow.",
				ExitValidation, "*list-workflows")
			return parsed{}, &res
		}
		return parsed{kind: kindWorkflow, name: name}, nil
	default:
		return parsed{kind: kindAgent, name: cmd}, nil
	}
}

func checkCharacters(cmd string) *Result {
	var found []string
	for _, c := range dangerousChars {
		if strings.ContainsRune(cmd, c) {
			found = append(found, printable(c))
		}
	}
	if len(found) > 0 {
		res := failure(CodeInvalidCharacters,
			fmt.Sprintf("The command contains characters that are not allowed: %s\n\nNames use lowercase letters, digits (workflows only), and hyphens.", strings.Join(found, " ")),
			ExitValidation)
		return &res
	}

	var nonASCII []string
	for _, c := range cmd {
		if c > 127 {
			nonASCII = append(nonASCII, string(c))
		}
	}
	if len(nonASCII) > 0 {
		res := failure(CodeNonASCII,
			fmt.Sprintf("The command contains non-ASCII characters: %s\n\nUse ASCII equivalents.", strings.Join(nonASCII, " ")),
			ExitValidation)
		return &res
	}
	return nil
}

// checkName validates length and format. Case is checked by the caller
// first so that "Analyst" gets a case hint instead of a format error.
func checkName(name string, k kind) *Result {
	entity := entityName(k)
	if len(name) < MinNameLength {
		res := failure(CodeNameTooShort,
			fmt.Sprintf("%s name %q is %d character(s) long; names need at least %d.", entity, name, len(name), MinNameLength),
			ExitValidation)
		return &res
	}
	if len(name) > MaxNameLength {
		res := failure(CodeNameTooLong,
			fmt.Sprintf("%s name is %d characters long; names may have at most %d.", entity, len(name), MaxNameLength),
			ExitValidation)
		return &res
	}

	pattern, rule := agentNamePattern, "lowercase letters separated by single hyphens (e.g. bmad-master)"
	if k == kindWorkflow {
		pattern, rule = workflowNamePattern, "lowercase letters and digits separated by single hyphens (e.g. dev-story)"
	}
	if !pattern.MatchString(name) {
		res := failure(CodeInvalidNameFormat,
			fmt.Sprintf("%s name %q is not valid; use %s.", entity, name, rule),
			ExitValidation)
		return &res
	}
	return nil
}

func entityName(k kind) string {
	if k == kindWorkflow {
		return "Workflow"
	}
	return "Agent"
}

func printable(c rune) string {
	switch c {
	case '\n':
		return `\n`
	case '\r':
		return `\r`
	default:
		return string(c)
	}
}

func tooManyArgsMessage(parts []string) string {
	return fmt.Sprintf(`The command accepts one argument at a time; got %q.

Did you mean one of these?
  %s   (load the %s agent)
  *%s  (run the %s workflow)`, strings.Join(parts, " "), parts[0], parts[0], parts[1], parts[1])
}
