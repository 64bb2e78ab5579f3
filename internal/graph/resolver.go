// Package graph serves the carechat GraphQL API.
//
// Documents are parsed and validated with gqlparser against SchemaSDL and
// executed by a small interpreter that dispatches root fields to Resolver and
// projects the results onto each selection set.
package graph

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/raphaelgruber/carechat/internal/chat"
	"github.com/raphaelgruber/carechat/internal/metrics"
	"github.com/raphaelgruber/carechat/internal/models"
	"github.com/raphaelgruber/carechat/internal/service"
)

// Resolver is the root resolver with all dependencies.
type Resolver struct {
	chat    *service.ChatService
	metrics *metrics.Collector
}

// NewResolver creates a new resolver.
func NewResolver(svc *service.ChatService, mc *metrics.Collector) *Resolver {
	return &Resolver{chat: svc, metrics: mc}
}

// object is a resolved GraphQL object keyed by schema field name.
type object map[string]any

type rootField func(ctx context.Context, args map[string]any) (any, error)

func (r *Resolver) queryFields() map[string]rootField {
	return map[string]rootField{
		"subject":     r.subject,
		"subjects":    r.subjects,
		"messages":    r.messages,
		"serverStats": r.serverStats,
	}
}

func (r *Resolver) mutationFields() map[string]rootField {
	return map[string]rootField{
		"appendMessage": r.appendMessage,
		"createSubject": r.createSubject,
	}
}

// =============================================================================
// QUERIES
// =============================================================================

func (r *Resolver) subject(ctx context.Context, args map[string]any) (any, error) {
	s, err := r.chat.GetSubject(ctx, stringArg(args, "id"))
	if errors.Is(err, chat.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return subjectObject(*s), nil
}

func (r *Resolver) subjects(ctx context.Context, _ map[string]any) (any, error) {
	list, err := r.chat.ListSubjects(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]any, len(list))
	for i, s := range list {
		out[i] = subjectObject(s)
	}
	return out, nil
}

func (r *Resolver) messages(ctx context.Context, args map[string]any) (any, error) {
	list, err := r.chat.ListMessages(ctx, stringArg(args, "subjectId"))
	if err != nil {
		return nil, err
	}
	out := make([]any, len(list))
	for i, m := range list {
		out[i] = messageObject(m)
	}
	return out, nil
}

func (r *Resolver) serverStats(_ context.Context, _ map[string]any) (any, error) {
	snap := r.metrics.Snapshot()
	return object{
		"uptimeSeconds": snap.UptimeSeconds,
		"graphql":       statsObject(snap.GraphQL),
		"dbQuery":       statsObject(snap.DBQuery),
		"llmGenerate":   statsObject(snap.LLMGenerate),
		"responderJob":  statsObject(snap.ResponderJob),
	}, nil
}

// =============================================================================
// MUTATIONS
// =============================================================================

func (r *Resolver) appendMessage(ctx context.Context, args map[string]any) (any, error) {
	role := chat.Role(strings.ToLower(stringArg(args, "role")))
	m, err := r.chat.AppendMessage(ctx, stringArg(args, "subjectId"), stringArg(args, "body"), role)
	if err != nil {
		return nil, err
	}
	return messageObject(*m), nil
}

func (r *Resolver) createSubject(ctx context.Context, args map[string]any) (any, error) {
	raw, ok := args["input"].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: input is required", chat.ErrValidation)
	}
	input := models.SubjectInput{
		ID:   stringArg(raw, "id"),
		Name: stringArg(raw, "name"),
	}
	if summary, ok := raw["summary"].(string); ok {
		input.Summary = &summary
	}

	s, err := r.chat.CreateSubject(ctx, input)
	if err != nil {
		return nil, err
	}
	return subjectObject(*s), nil
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func subjectObject(s chat.Subject) object {
	o := object{"id": s.ID, "name": s.Name, "summary": nil}
	if s.Summary != "" {
		o["summary"] = s.Summary
	}
	return o
}

func messageObject(m chat.Message) object {
	return object{
		"id":        m.ID,
		"subjectId": m.SubjectID,
		"role":      strings.ToUpper(string(m.Role)),
		"body":      m.Body,
		"createdAt": m.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func statsObject(s *metrics.OperationSnapshot) any {
	if s == nil {
		return nil
	}
	o := object{
		"count":             s.Count,
		"failures":          s.Failures,
		"totalTimeMs":       s.TotalTimeMs,
		"avgTimeMs":         s.AvgTimeMs,
		"minTimeMs":         s.MinTimeMs,
		"maxTimeMs":         s.MaxTimeMs,
		"totalInputTokens":  nil,
		"totalOutputTokens": nil,
	}
	if s.TotalInputTokens != nil {
		o["totalInputTokens"] = *s.TotalInputTokens
	}
	if s.TotalOutputTokens != nil {
		o["totalOutputTokens"] = *s.TotalOutputTokens
	}
	return o
}

func stringArg(args map[string]any, name string) string {
	s, _ := args[name].(string)
	return s
}
