// ABOUTME: Tests for labels and canned responses
// ABOUTME: Case-insensitive uniqueness and conversation label attach/detach

package store

import (
	"context"
	"errors"
	"testing"
)

func TestCreateLabel_CaseInsensitiveDuplicate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.CreateLabel(ctx, &Label{AccountID: "acct-1", Name: "Urgent"}); err != nil {
		t.Fatalf("CreateLabel failed: %v", err)
	}
	err := s.CreateLabel(ctx, &Label{AccountID: "acct-1", Name: "URGENT"})
	if !errors.Is(err, ErrDuplicateLabel) {
		t.Fatalf("expected ErrDuplicateLabel, got %v", err)
	}

	// Same name under another account is fine.
	if err := s.CreateLabel(ctx, &Label{AccountID: "acct-2", Name: "urgent"}); err != nil {
		t.Errorf("cross-account duplicate rejected: %v", err)
	}
}

func TestConversationLabels(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	conv, _, _ := s.FindOrCreateConversation(ctx, "acct-1", "INB1", "+111", "")
	l := &Label{AccountID: "acct-1", Name: "vip"}
	if err := s.CreateLabel(ctx, l); err != nil {
		t.Fatalf("CreateLabel failed: %v", err)
	}

	if err := s.AddConversationLabel(ctx, conv.ID, l.ID); err != nil {
		t.Fatalf("AddConversationLabel failed: %v", err)
	}
	// Attaching twice is a no-op.
	if err := s.AddConversationLabel(ctx, conv.ID, l.ID); err != nil {
		t.Fatalf("second AddConversationLabel failed: %v", err)
	}

	labels, err := s.ListConversationLabels(ctx, conv.ID)
	if err != nil {
		t.Fatalf("ListConversationLabels failed: %v", err)
	}
	if len(labels) != 1 || labels[0].Name != "vip" {
		t.Errorf("labels = %+v", labels)
	}

	if err := s.RemoveConversationLabel(ctx, conv.ID, l.ID); err != nil {
		t.Fatalf("RemoveConversationLabel failed: %v", err)
	}
	labels, _ = s.ListConversationLabels(ctx, conv.ID)
	if len(labels) != 0 {
		t.Errorf("label not detached")
	}
}

func TestDeleteLabel_Detaches(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	conv, _, _ := s.FindOrCreateConversation(ctx, "acct-1", "INB1", "+111", "")
	l := &Label{AccountID: "acct-1", Name: "stale"}
	if err := s.CreateLabel(ctx, l); err != nil {
		t.Fatalf("CreateLabel failed: %v", err)
	}
	if err := s.AddConversationLabel(ctx, conv.ID, l.ID); err != nil {
		t.Fatalf("AddConversationLabel failed: %v", err)
	}

	if err := s.DeleteLabel(ctx, l.ID); err != nil {
		t.Fatalf("DeleteLabel failed: %v", err)
	}
	labels, _ := s.ListConversationLabels(ctx, conv.ID)
	if len(labels) != 0 {
		t.Errorf("deleted label still attached")
	}
}

func TestCreateCannedResponse_CaseInsensitiveDuplicate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.CreateCannedResponse(ctx, &CannedResponse{AccountID: "acct-1", Shortcut: "greet", Content: "Hello!"}); err != nil {
		t.Fatalf("CreateCannedResponse failed: %v", err)
	}
	err := s.CreateCannedResponse(ctx, &CannedResponse{AccountID: "acct-1", Shortcut: "GREET", Content: "Hi!"})
	if !errors.Is(err, ErrDuplicateCanned) {
		t.Fatalf("expected ErrDuplicateCanned, got %v", err)
	}

	canned, err := s.ListCannedResponses(ctx, "acct-1")
	if err != nil {
		t.Fatalf("ListCannedResponses failed: %v", err)
	}
	if len(canned) != 1 {
		t.Fatalf("got %d canned responses, want 1", len(canned))
	}
	if err := s.DeleteCannedResponse(ctx, canned[0].ID); err != nil {
		t.Fatalf("DeleteCannedResponse failed: %v", err)
	}
}
