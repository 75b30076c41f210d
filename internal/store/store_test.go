package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSaveSession(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	started := time.Now().Add(-time.Minute)

	sess := Session{ID: "s1", Mode: "microphone", State: "Recording", StartedAt: started}
	if err := s.SaveSession(ctx, sess); err != nil {
		t.Fatalf("SaveSession failed: %v", err)
	}

	ended := time.Now()
	sess.State = "Complete"
	sess.StopReason = "manual"
	sess.EncodedBytes = 1234
	sess.Duration = 42 * time.Second
	sess.EndedAt = &ended
	if err := s.SaveSession(ctx, sess); err != nil {
		t.Fatalf("SaveSession update failed: %v", err)
	}

	sessions, err := s.RecentSessions(ctx, 10)
	if err != nil {
		t.Fatalf("RecentSessions failed: %v", err)
	}
	if len(sessions) != 1 {
		t.Fatalf("Expected 1 session, got %d", len(sessions))
	}
	got := sessions[0]
	if got.State != "Complete" || got.StopReason != "manual" || got.EncodedBytes != 1234 {
		t.Errorf("Unexpected session %+v", got)
	}
	if got.Duration != 42*time.Second {
		t.Errorf("Expected 42s, got %v", got.Duration)
	}
	if got.EndedAt == nil {
		t.Error("Expected EndedAt to be set")
	}
	if d := got.StartedAt.Sub(started); d > time.Millisecond || d < -time.Millisecond {
		t.Errorf("StartedAt drifted by %v", d)
	}
}

func TestSaveSessionRequiresID(t *testing.T) {
	s := openTestStore(t)
	if err := s.SaveSession(context.Background(), Session{Mode: "microphone"}); err == nil {
		t.Error("Expected error for missing id")
	}
}

func TestRecentSessionsOrder(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Now()

	for i, id := range []string{"old", "mid", "new"} {
		err := s.SaveSession(ctx, Session{ID: id, Mode: "microphone", State: "Complete",
			StartedAt: base.Add(time.Duration(i) * time.Minute)})
		if err != nil {
			t.Fatalf("SaveSession failed: %v", err)
		}
	}

	sessions, err := s.RecentSessions(ctx, 2)
	if err != nil {
		t.Fatalf("RecentSessions failed: %v", err)
	}
	if len(sessions) != 2 || sessions[0].ID != "new" || sessions[1].ID != "mid" {
		t.Errorf("Unexpected order: %+v", sessions)
	}
}

func TestTranscript(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	s.SaveSession(ctx, Session{ID: "s1", Mode: "microphone", State: "Complete", StartedAt: time.Now()})

	tr, err := s.TranscriptFor(ctx, "s1")
	if err != nil || tr != nil {
		t.Fatalf("Expected no transcript, got %v, %v", tr, err)
	}

	conf := 0.91
	if err := s.SaveTranscript(ctx, Transcript{SessionID: "s1", Text: "first", Provider: "azure", Confidence: &conf}); err != nil {
		t.Fatalf("SaveTranscript failed: %v", err)
	}
	if err := s.SaveTranscript(ctx, Transcript{SessionID: "s1", Text: "edited", Manual: true}); err != nil {
		t.Fatalf("SaveTranscript replace failed: %v", err)
	}

	tr, err = s.TranscriptFor(ctx, "s1")
	if err != nil {
		t.Fatalf("TranscriptFor failed: %v", err)
	}
	if tr.Text != "edited" || !tr.Manual {
		t.Errorf("Expected manual replacement, got %+v", tr)
	}
	if tr.Confidence != nil {
		t.Errorf("Expected confidence cleared, got %v", *tr.Confidence)
	}
}

func TestTranscriptRequiresSession(t *testing.T) {
	s := openTestStore(t)
	err := s.SaveTranscript(context.Background(), Transcript{SessionID: "missing", Text: "x"})
	if err == nil {
		t.Error("Expected foreign key error for unknown session")
	}
}

func TestDocuments(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	s.SaveSession(ctx, Session{ID: "s1", Mode: "microphone", State: "Complete", StartedAt: time.Now()})

	now := time.Now()
	id1, err := s.SaveDocument(ctx, Document{SessionID: "s1", Type: "clinical-summary", Text: "summary", CreatedAt: now})
	if err != nil {
		t.Fatalf("SaveDocument failed: %v", err)
	}
	if id1 == "" {
		t.Error("Expected generated id")
	}
	if _, err := s.SaveDocument(ctx, Document{SessionID: "s1", Type: "referral", Text: "letter", Redacted: true,
		CreatedAt: now.Add(time.Second)}); err != nil {
		t.Fatalf("SaveDocument failed: %v", err)
	}

	docs, err := s.DocumentsFor(ctx, "s1")
	if err != nil {
		t.Fatalf("DocumentsFor failed: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("Expected 2 documents, got %d", len(docs))
	}
	if docs[0].Type != "clinical-summary" || docs[1].Type != "referral" || !docs[1].Redacted {
		t.Errorf("Unexpected documents %+v", docs)
	}
}

func TestPrune(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now()

	s.SaveSession(ctx, Session{ID: "old", Mode: "microphone", State: "Complete", StartedAt: now.AddDate(0, 0, -40)})
	s.SaveSession(ctx, Session{ID: "new", Mode: "microphone", State: "Complete", StartedAt: now})
	s.SaveTranscript(ctx, Transcript{SessionID: "old", Text: "old text"})
	s.SaveDocument(ctx, Document{SessionID: "old", Type: "referral", Text: "letter"})

	n, err := s.Prune(ctx, now.AddDate(0, 0, -30))
	if err != nil {
		t.Fatalf("Prune failed: %v", err)
	}
	if n != 1 {
		t.Errorf("Expected 1 pruned session, got %d", n)
	}

	if tr, _ := s.TranscriptFor(ctx, "old"); tr != nil {
		t.Error("Expected transcript to be removed with its session")
	}
	if docs, _ := s.DocumentsFor(ctx, "old"); len(docs) != 0 {
		t.Errorf("Expected documents to be removed, got %d", len(docs))
	}
	sessions, _ := s.RecentSessions(ctx, 10)
	if len(sessions) != 1 || sessions[0].ID != "new" {
		t.Errorf("Unexpected remaining sessions %+v", sessions)
	}
}

func TestOpenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "history.sqlite")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := s.SaveSession(context.Background(), Session{ID: "s1", Mode: "telephone", State: "Idle", StartedAt: time.Now()}); err != nil {
		t.Fatalf("SaveSession failed: %v", err)
	}
	s.Close()

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("Reopen failed: %v", err)
	}
	defer reopened.Close()
	sessions, err := reopened.RecentSessions(context.Background(), 0)
	if err != nil || len(sessions) != 1 {
		t.Errorf("Expected persisted session, got %v, %v", sessions, err)
	}
}
