package audit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"otp-auth-service/internal/models"
)

type stubEventRepo struct {
	mu     sync.Mutex
	events []*models.SecurityEvent
	err    error
}

func (s *stubEventRepo) Append(_ context.Context, event *models.SecurityEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	cp := *event
	s.events = append(s.events, &cp)
	return nil
}

type stubPublisher struct {
	mu        sync.Mutex
	published []string
	err       error
}

func (s *stubPublisher) PublishJSON(_ context.Context, key string, _ interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.published = append(s.published, key)
	return nil
}

func TestRecordAppendsAndPublishes(t *testing.T) {
	repo := &stubEventRepo{}
	pub := &stubPublisher{}
	log := NewLog(repo, pub, zap.NewNop())

	err := log.Record(context.Background(), &models.SecurityEvent{
		Email:     "user@example.com",
		EventType: models.EventOTPRequested,
	})
	if err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	if len(repo.events) != 1 {
		t.Fatalf("appended %d events, want 1", len(repo.events))
	}
	if repo.events[0].CreatedAt.IsZero() {
		t.Fatal("CreatedAt not defaulted")
	}
	if len(pub.published) != 1 || pub.published[0] != "user@example.com" {
		t.Fatalf("published = %v, want keyed by email", pub.published)
	}
}

func TestRecordTableWriteIsAuthoritative(t *testing.T) {
	repo := &stubEventRepo{err: errors.New("scylla down")}
	log := NewLog(repo, &stubPublisher{}, zap.NewNop())

	err := log.Record(context.Background(), &models.SecurityEvent{
		Email:     "user@example.com",
		EventType: models.EventOTPVerified,
		CreatedAt: time.Now(),
	})
	if err == nil {
		t.Fatal("expected error when the table append fails")
	}
}

func TestRecordPublishIsBestEffort(t *testing.T) {
	repo := &stubEventRepo{}
	pub := &stubPublisher{err: errors.New("kafka down")}
	log := NewLog(repo, pub, zap.NewNop())

	err := log.Record(context.Background(), &models.SecurityEvent{
		Email:     "user@example.com",
		EventType: models.EventOTPVerificationFailed,
	})
	if err != nil {
		t.Fatalf("Record failed on publish error: %v", err)
	}
	if len(repo.events) != 1 {
		t.Fatalf("appended %d events, want 1", len(repo.events))
	}
}

func TestRecordWithoutPublisher(t *testing.T) {
	repo := &stubEventRepo{}
	log := NewLog(repo, nil, zap.NewNop())

	if err := log.Record(context.Background(), &models.SecurityEvent{
		Email:     "user@example.com",
		EventType: models.EventOTPRequested,
	}); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
}
