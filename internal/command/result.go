// SPDX-License-Identifier: MPL-2.0

package command

import (
	"encoding/json"
)

// Exit codes carried by Result.ExitCode.
const (
	ExitSuccess    = 0
	ExitValidation = 1
	ExitNotFound   = 2
	ExitSecurity   = 3
	ExitRemote     = 4
)

// Result types.
const (
	TypeAgent    ResultType = "agent"
	TypeWorkflow ResultType = "workflow"
	TypeList     ResultType = "list"
	TypeHelp     ResultType = "help"
	TypeError    ResultType = "error"
)

// Error codes carried by Result.ErrorCode.
const (
	CodeInvalidCharacters    = "INVALID_CHARACTERS"
	CodeNonASCII             = "NON_ASCII_CHARACTERS"
	CodeTooManyArguments     = "TOO_MANY_ARGUMENTS"
	CodeInvalidAsteriskCount = "INVALID_ASTERISK_COUNT"
	CodeMissingWorkflowName  = "MISSING_WORKFLOW_NAME"
	CodeMissingAsterisk      = "MISSING_ASTERISK"
	CodeNameTooShort         = "NAME_TOO_SHORT"
	CodeNameTooLong          = "NAME_TOO_LONG"
	CodeCaseMismatch         = "CASE_MISMATCH"
	CodeInvalidNameFormat    = "INVALID_NAME_FORMAT"
	CodeUnknownAgent         = "UNKNOWN_AGENT"
	CodeUnknownWorkflow      = "UNKNOWN_WORKFLOW"
	CodeFileNotFound         = "FILE_NOT_FOUND"
	CodeNoInstallation       = "NO_INSTALLATION"
	CodePathTraversal        = "PATH_TRAVERSAL"
	CodeInvalidRemoteRef     = "INVALID_REMOTE_REF"
	CodeUnknownRemoteAlias   = "UNKNOWN_REMOTE_ALIAS"
	CodeRemoteCloneFailed    = "REMOTE_CLONE_FAILED"
	CodeRemoteUnavailable    = "REMOTE_UNAVAILABLE"
	CodeAmbiguousMatch       = "AMBIGUOUS_MATCH"
	CodeNoAgentsFound        = "NO_AGENTS_FOUND"
	CodeInternal             = "INTERNAL_ERROR"
)

type (
	// ResultType classifies a successful Result.
	ResultType string

	// Result is the structured outcome of one command.
	Result struct {
		Success     bool       `json:"success"`
		Type        ResultType `json:"type"`
		Name        string     `json:"name,omitempty"`
		DisplayName string     `json:"display_name,omitempty"`
		Module      string     `json:"module,omitempty"`
		Path        string     `json:"path,omitempty"`
		Content     string     `json:"content,omitempty"`
		Count       int        `json:"count,omitempty"`
		ErrorCode   string     `json:"error_code,omitempty"`
		Error       string     `json:"error,omitempty"`
		Suggestions []string   `json:"suggestions,omitempty"`
		ExitCode    int        `json:"exit_code"`
		// Corrected is set when a misspelled remote name was accepted.
		Corrected bool `json:"corrected,omitempty"`
		// Source is the installation root or remote reference served.
		Source string `json:"source,omitempty"`
		// Alternatives lists other modules' records with the same name, in
		// ranked order, when the name was ambiguous across modules.
		Alternatives []string `json:"alternatives,omitempty"`
	}
)

// JSON renders the result as indented JSON.
func (r Result) JSON() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}

func failure(code, msg string, exit int, suggestions ...string) Result {
	return Result{
		Type:        TypeError,
		ErrorCode:   code,
		Error:       msg,
		Suggestions: suggestions,
		ExitCode:    exit,
	}
}
