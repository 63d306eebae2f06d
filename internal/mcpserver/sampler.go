// SPDX-License-Identifier: MPL-2.0

package mcpserver

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

const (
	samplingMaxTokens = 256
	samplingTimeout   = 20 * time.Second

	samplingSystemPrompt = "You rank BMAD agents and workflows. Reply with the candidate keys only, " +
		"best first, one per line, using the keys exactly as given."
)

// ErrEmptyJudgment is returned when the client answers a sampling request
// without text.
var ErrEmptyJudgment = errors.New("sampling response has no text")

type (
	// samplingServer is the part of MCPServer the Sampler needs.
	samplingServer interface {
		RequestSampling(ctx context.Context, req mcp.CreateMessageRequest) (*mcp.CreateMessageResult, error)
	}

	// Sampler asks the connected client's model to order candidates. It
	// is available only inside a request from a client that advertised
	// sampling.
	Sampler struct {
		srv     samplingServer
		timeout time.Duration
	}
)

// NewSampler creates a Sampler that sends requests through srv.
func NewSampler(srv samplingServer) *Sampler {
	return &Sampler{srv: srv, timeout: samplingTimeout}
}

// Available reports whether the client session bound to ctx supports
// sampling.
func (s *Sampler) Available(ctx context.Context) bool {
	session := server.ClientSessionFromContext(ctx)
	if session == nil {
		return false
	}
	withInfo, ok := session.(server.SessionWithClientInfo)
	if !ok {
		return false
	}
	return withInfo.GetClientCapabilities().Sampling != nil
}

// Judge returns the client model's free-text ordering of keys for query.
func (s *Sampler) Judge(ctx context.Context, query string, keys []string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	prompt := fmt.Sprintf("Task: %s\n\nCandidates:\n- %s\n\nOrder the candidates from most to least relevant to the task.",
		query, strings.Join(keys, "\n- "))

	res, err := s.srv.RequestSampling(ctx, mcp.CreateMessageRequest{
		CreateMessageParams: mcp.CreateMessageParams{
			Messages: []mcp.SamplingMessage{
				{Role: mcp.RoleUser, Content: mcp.NewTextContent(prompt)},
			},
			SystemPrompt: samplingSystemPrompt,
			MaxTokens:    samplingMaxTokens,
			Temperature:  0,
		},
	})
	if err != nil {
		return "", fmt.Errorf("request sampling: %w", err)
	}

	text := contentText(res.Content)
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyJudgment
	}
	return text, nil
}

// contentText extracts text from a sampling response, which arrives either
// typed or as decoded JSON depending on the transport.
func contentText(content any) string {
	switch c := content.(type) {
	case mcp.TextContent:
		return c.Text
	case *mcp.TextContent:
		if c != nil {
			return c.Text
		}
	case map[string]any:
		if text, ok := c["text"].(string); ok {
			return text
		}
	case string:
		return c
	}
	return ""
}
