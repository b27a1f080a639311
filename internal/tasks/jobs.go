package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/geollm/geollm/internal/llm"
)

// ReportGenerator is the slice of the query service the ad hoc task
// handlers need.
type ReportGenerator interface {
	GenerateReport(ctx context.Context, historyID, userID string) (string, error)
	WarmGeoCache(ctx context.Context, intent *llm.Intent) error
}

// AccountMailer sends the account lifecycle messages.
type AccountMailer interface {
	SendWelcome(ctx context.Context, to, username string) error
	SendPasswordReset(ctx context.Context, to, username, token string) error
}

// RegisterHandlers wires the ad hoc task types to their handlers.
func RegisterHandlers(w *Worker, reports ReportGenerator, mail AccountMailer, logger *slog.Logger) {
	w.Handle(TypeSendWelcomeEmail, sendWelcomeEmailHandler(mail))
	w.Handle(TypeSendPasswordReset, sendPasswordResetHandler(mail))
	w.Handle(TypeWarmGeoCache, warmGeoCacheHandler(reports))
	w.Handle(TypeGenerateReport, generateReportHandler(reports, logger))
}

func sendWelcomeEmailHandler(mail AccountMailer) HandlerFunc {
	return func(ctx context.Context, task *Task) error {
		email := payloadString(task, "email")
		username := payloadString(task, "username")
		if email == "" {
			return errors.New("welcome email task missing email")
		}
		return mail.SendWelcome(ctx, email, username)
	}
}

func sendPasswordResetHandler(mail AccountMailer) HandlerFunc {
	return func(ctx context.Context, task *Task) error {
		email := payloadString(task, "email")
		username := payloadString(task, "username")
		token := payloadString(task, "token")
		if email == "" || token == "" {
			return errors.New("password reset task missing email or token")
		}
		return mail.SendPasswordReset(ctx, email, username, token)
	}
}

func warmGeoCacheHandler(reports ReportGenerator) HandlerFunc {
	return func(ctx context.Context, task *Task) error {
		raw, ok := task.Payload["intent"]
		if !ok {
			return errors.New("warm cache task missing intent")
		}

		// Payload round-trips through JSON, so the intent arrives as a map
		data, err := json.Marshal(raw)
		if err != nil {
			return fmt.Errorf("marshal intent payload: %w", err)
		}
		var intent llm.Intent
		if err := json.Unmarshal(data, &intent); err != nil {
			return fmt.Errorf("unmarshal intent payload: %w", err)
		}
		if intent.Parameters == nil {
			intent.Parameters = map[string]any{}
		}

		return reports.WarmGeoCache(ctx, &intent)
	}
}

func generateReportHandler(reports ReportGenerator, logger *slog.Logger) HandlerFunc {
	return func(ctx context.Context, task *Task) error {
		historyID := payloadString(task, "history_id")
		userID := payloadString(task, "user_id")
		if historyID == "" || userID == "" {
			return errors.New("report task missing history_id or user_id")
		}

		report, err := reports.GenerateReport(ctx, historyID, userID)
		if err != nil {
			return err
		}

		logger.Info("report generated",
			"history_id", historyID,
			"user_id", userID,
			"report_bytes", len(report),
		)
		return nil
	}
}

func payloadString(task *Task, key string) string {
	if task.Payload == nil {
		return ""
	}
	value, _ := task.Payload[key].(string)
	return value
}
