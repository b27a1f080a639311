package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/geollm/geollm/internal/llm"
)

func TestNextDailyAt(t *testing.T) {
	tests := []struct {
		name   string
		hour   int
		minute int
		after  time.Time
		want   time.Time
	}{
		{
			name:  "before todays run",
			hour:  2,
			after: time.Date(2026, 8, 25, 1, 30, 0, 0, time.UTC),
			want:  time.Date(2026, 8, 25, 2, 0, 0, 0, time.UTC),
		},
		{
			name:  "after todays run rolls to tomorrow",
			hour:  2,
			after: time.Date(2026, 8, 25, 3, 0, 0, 0, time.UTC),
			want:  time.Date(2026, 8, 26, 2, 0, 0, 0, time.UTC),
		},
		{
			name:  "exactly at run time rolls to tomorrow",
			hour:  0,
			after: time.Date(2026, 8, 25, 0, 0, 0, 0, time.UTC),
			want:  time.Date(2026, 8, 26, 0, 0, 0, 0, time.UTC),
		},
		{
			name:  "midnight rollover across month end",
			hour:  0,
			after: time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC),
			want:  time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NextDailyAt(tt.hour, tt.minute)(tt.after)
			if !got.Equal(tt.want) {
				t.Errorf("next run = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNextEvery(t *testing.T) {
	after := time.Date(2026, 8, 25, 6, 0, 0, 0, time.UTC)
	got := NextEvery(6 * time.Hour)(after)
	want := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("next run = %v, want %v", got, want)
	}
}

func TestStreamForQueue(t *testing.T) {
	if got := StreamForQueue(QueueAuth); got != "tasks:auth" {
		t.Errorf("StreamForQueue(auth) = %q", got)
	}
	if got := StreamForQueue(QueueLLM); got != "tasks:llm" {
		t.Errorf("StreamForQueue(llm) = %q", got)
	}
}

func TestParseTask(t *testing.T) {
	valid, _ := json.Marshal(Task{
		ID:      "01TASK",
		Type:    TypeSendWelcomeEmail,
		Payload: map[string]any{"email": "a@example.com"},
	})

	tests := []struct {
		name    string
		values  map[string]interface{}
		wantErr bool
	}{
		{"valid", map[string]interface{}{"payload": string(valid)}, false},
		{"missing payload", map[string]interface{}{}, true},
		{"payload not a string", map[string]interface{}{"payload": 42}, true},
		{"malformed json", map[string]interface{}{"payload": "{"}, true},
		{"empty type", map[string]interface{}{"payload": `{"id":"x"}`}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			task, err := parseTask(redis.XMessage{ID: "1-0", Values: tt.values})
			if tt.wantErr {
				if err == nil {
					t.Error("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("parseTask failed: %v", err)
			}
			if task.Type != TypeSendWelcomeEmail {
				t.Errorf("task type = %q", task.Type)
			}
			if task.Payload["email"] != "a@example.com" {
				t.Errorf("payload = %v", task.Payload)
			}
		})
	}
}

type fakeMailer struct {
	to       string
	username string
	token    string
	err      error
}

func (f *fakeMailer) SendWelcome(_ context.Context, to, username string) error {
	f.to = to
	f.username = username
	return f.err
}

func (f *fakeMailer) SendPasswordReset(_ context.Context, to, username, token string) error {
	f.to = to
	f.username = username
	f.token = token
	return f.err
}

type fakeReports struct {
	historyID string
	userID    string
	intent    *llm.Intent
	err       error
}

func (f *fakeReports) GenerateReport(_ context.Context, historyID, userID string) (string, error) {
	f.historyID = historyID
	f.userID = userID
	if f.err != nil {
		return "", f.err
	}
	return "# Report", nil
}

func (f *fakeReports) WarmGeoCache(_ context.Context, intent *llm.Intent) error {
	f.intent = intent
	return f.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&strings.Builder{}, nil))
}

func TestSendWelcomeEmailHandler(t *testing.T) {
	mail := &fakeMailer{}
	handler := sendWelcomeEmailHandler(mail)

	task := &Task{Type: TypeSendWelcomeEmail, Payload: map[string]any{
		"email":    "alice@example.com",
		"username": "alice",
	}}
	if err := handler(context.Background(), task); err != nil {
		t.Fatalf("handler failed: %v", err)
	}
	if mail.to != "alice@example.com" || mail.username != "alice" {
		t.Errorf("sent to %q/%q", mail.to, mail.username)
	}

	// Missing email is a permanent failure
	if err := handler(context.Background(), &Task{Type: TypeSendWelcomeEmail}); err == nil {
		t.Error("expected error for missing email")
	}
}

func TestSendWelcomeEmailHandler_PublishedPayload(t *testing.T) {
	// The handler must understand exactly what registration publishes
	mail := &fakeMailer{}
	handler := sendWelcomeEmailHandler(mail)

	task := &Task{
		Type:    TypeSendWelcomeEmail,
		Payload: WelcomeEmailPayload("01USER", "alice@example.com", "alice"),
	}
	if err := handler(context.Background(), task); err != nil {
		t.Fatalf("handler failed: %v", err)
	}
	if mail.to != "alice@example.com" {
		t.Errorf("sent to %q", mail.to)
	}
	if mail.username != "alice" {
		t.Errorf("greeting username = %q, want %q", mail.username, "alice")
	}
}

func TestSendPasswordResetHandler(t *testing.T) {
	mail := &fakeMailer{}
	handler := sendPasswordResetHandler(mail)

	task := &Task{
		Type:    TypeSendPasswordReset,
		Payload: PasswordResetPayload("01USER", "bob@example.com", "bob", "reset-token"),
	}
	if err := handler(context.Background(), task); err != nil {
		t.Fatalf("handler failed: %v", err)
	}
	if mail.to != "bob@example.com" || mail.username != "bob" || mail.token != "reset-token" {
		t.Errorf("mail = %+v", mail)
	}

	// Missing token is a permanent failure
	err := handler(context.Background(), &Task{
		Type:    TypeSendPasswordReset,
		Payload: map[string]any{"email": "bob@example.com"},
	})
	if err == nil {
		t.Error("expected error for missing token")
	}
}

func TestWarmGeoCacheHandler(t *testing.T) {
	reports := &fakeReports{}
	handler := warmGeoCacheHandler(reports)

	// Intent arrives as a generic map after the JSON round-trip
	task := &Task{Type: TypeWarmGeoCache, Payload: map[string]any{
		"intent": map[string]any{
			"location":  "Hanoi",
			"data_type": "population",
		},
	}}
	if err := handler(context.Background(), task); err != nil {
		t.Fatalf("handler failed: %v", err)
	}
	if reports.intent == nil || reports.intent.Location == nil || *reports.intent.Location != "Hanoi" {
		t.Errorf("intent = %+v", reports.intent)
	}
	if reports.intent.Parameters == nil {
		t.Error("parameters should be normalized to an empty map")
	}

	if err := handler(context.Background(), &Task{Type: TypeWarmGeoCache}); err == nil {
		t.Error("expected error for missing intent")
	}
}

func TestGenerateReportHandler(t *testing.T) {
	reports := &fakeReports{}
	handler := generateReportHandler(reports, testLogger())

	task := &Task{Type: TypeGenerateReport, Payload: map[string]any{
		"history_id": "01HIST",
		"user_id":    "01USER",
	}}
	if err := handler(context.Background(), task); err != nil {
		t.Fatalf("handler failed: %v", err)
	}
	if reports.historyID != "01HIST" || reports.userID != "01USER" {
		t.Errorf("called with %q/%q", reports.historyID, reports.userID)
	}

	reports.err = errors.New("provider down")
	if err := handler(context.Background(), task); err == nil {
		t.Error("handler should propagate failures for retry")
	}
}

func TestMaybeClaimPending_ThrottlesPerQueue(t *testing.T) {
	// Nothing listens on this address, so any claim that actually runs
	// surfaces a connection error instead of the throttle's nil, nil.
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	w := NewWorker(client, testLogger(), "test-consumer", nil)

	ctx := context.Background()
	if _, err := w.maybeClaimPending(ctx, QueueAuth); err == nil {
		t.Fatal("auth claim should have attempted the call and failed")
	}

	// The auth queue's timestamp must not suppress the other queues
	if _, err := w.maybeClaimPending(ctx, QueueGeo); err == nil {
		t.Error("geo claim was skipped; pending geo tasks would never be reclaimed")
	}
	if _, err := w.maybeClaimPending(ctx, QueueLLM); err == nil {
		t.Error("llm claim was skipped; pending llm tasks would never be reclaimed")
	}

	// Within the interval the same queue is throttled
	if msgs, err := w.maybeClaimPending(ctx, QueueAuth); err != nil || msgs != nil {
		t.Errorf("second auth claim within interval should be a no-op, got msgs=%v err=%v", msgs, err)
	}
}

func TestSchedulerShutdown(t *testing.T) {
	s := NewScheduler(testLogger())
	s.Add(Job{
		Name: "never-runs",
		Next: NextDailyAt(0, 0),
		Run:  func(context.Context) error { return nil },
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	// Give the job loop a moment to arm its timer
	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop after cancellation")
	}
}
