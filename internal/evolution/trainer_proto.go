package evolution

import (
	"fmt"
	"time"

	"google.golang.org/protobuf/types/known/structpb"
)

// Training requests travel as google.protobuf.Struct and replies as
// google.protobuf.StringValue, so trainers in any language can use the
// well-known types without shared stubs.

func (r TrainingRequest) toProto() (*structpb.Struct, error) {
	contributors := make([]any, len(r.Contributors))
	for i, c := range r.Contributors {
		first := ""
		if !c.FirstContribution.IsZero() {
			first = c.FirstContribution.UTC().Format(time.RFC3339Nano)
		}
		contributors[i] = map[string]any{
			"user_id":            c.UserID,
			"score":              c.Score,
			"interactions":       c.Interactions,
			"first_contribution": first,
		}
	}
	examples := make([]any, len(r.Examples))
	for i, e := range r.Examples {
		examples[i] = map[string]any{
			"user_id":    e.UserID,
			"prompt":     e.Prompt,
			"completion": e.Completion,
			"weight":     e.Weight,
		}
	}

	s, err := structpb.NewStruct(map[string]any{
		"cycle_id":     r.CycleID,
		"contributors": contributors,
		"examples":     examples,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding training request %s: %w", r.CycleID, err)
	}
	return s, nil
}

func trainingRequestFromProto(s *structpb.Struct) (*TrainingRequest, error) {
	fields := s.GetFields()
	req := &TrainingRequest{
		CycleID:      fields["cycle_id"].GetStringValue(),
		Contributors: []Contributor{},
		Examples:     []Example{},
	}
	if req.CycleID == "" {
		return nil, fmt.Errorf("training request has no cycle_id")
	}

	for _, v := range fields["contributors"].GetListValue().GetValues() {
		f := v.GetStructValue().GetFields()
		c := Contributor{
			UserID:       f["user_id"].GetStringValue(),
			Score:        f["score"].GetNumberValue(),
			Interactions: int(f["interactions"].GetNumberValue()),
		}
		if first := f["first_contribution"].GetStringValue(); first != "" {
			t, err := time.Parse(time.RFC3339Nano, first)
			if err != nil {
				return nil, fmt.Errorf("contributor %s: first_contribution: %w", c.UserID, err)
			}
			c.FirstContribution = t
		}
		req.Contributors = append(req.Contributors, c)
	}

	for _, v := range fields["examples"].GetListValue().GetValues() {
		f := v.GetStructValue().GetFields()
		req.Examples = append(req.Examples, Example{
			UserID:     f["user_id"].GetStringValue(),
			Prompt:     f["prompt"].GetStringValue(),
			Completion: f["completion"].GetStringValue(),
			Weight:     f["weight"].GetNumberValue(),
		})
	}
	return req, nil
}
