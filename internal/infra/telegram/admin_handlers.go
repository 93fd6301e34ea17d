package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"patient_recommender/internal/app"
	"patient_recommender/internal/domain/patient"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

const msgUnauthorized = "Error: you are not allowed to run this command."

// AdminConsole answers the operator commands. Each command method returns
// the reply text so handlers stay thin.
type AdminConsole struct {
	admin  *app.AdminService
	logger *logrus.Entry
}

func NewAdminConsole(admin *app.AdminService, baseLogger *logrus.Entry) *AdminConsole {
	return &AdminConsole{admin: admin, logger: baseLogger.WithField("component", "telegram_console")}
}

// RegisterAdminHandlers registers handlers for admin commands.
func RegisterAdminHandlers(ctx context.Context, b *telebot.Bot, console *AdminConsole) {
	b.Handle("/run_round", func(c telebot.Context) error {
		if len(c.Args()) == 0 {
			return c.Send("Choose a round:", roundMenu())
		}
		return c.Send(console.RunRound(ctx, c.Sender().ID, c.Args()))
	})
	b.Handle("/sync", func(c telebot.Context) error {
		return c.Send(console.Sync(ctx, c.Sender().ID))
	})
	b.Handle("/patients", func(c telebot.Context) error {
		return c.Send(console.Patients(ctx, c.Sender().ID, c.Args()))
	})
	b.Handle("/reenroll", func(c telebot.Context) error {
		return c.Send(console.Reenroll(ctx, c.Sender().ID, c.Args()))
	})
}

func (a *AdminConsole) handlerLogger(handler string, senderID int64) *logrus.Entry {
	return a.logger.WithFields(logrus.Fields{
		"handler":   handler,
		"sender_id": senderID,
	})
}

// RunRound expects: /run_round <kind>
func (a *AdminConsole) RunRound(ctx context.Context, senderID int64, args []string) string {
	handlerLogger := a.handlerLogger("/run_round", senderID)
	handlerLogger.Info("Command received")

	if len(args) != 1 {
		return fmt.Sprintf("Invalid command format. Use: /run_round <%s>", joinKinds("|"))
	}
	result, err := a.admin.RunRound(ctx, senderID, args[0])
	if err != nil && result.Processed == 0 {
		logWithError := handlerLogger.WithError(err)
		switch {
		case errors.Is(err, app.ErrAdminNotAuthorized):
			logWithError.Warn("Unauthorized access attempt")
			return msgUnauthorized
		case errors.Is(err, app.ErrUnknownRoundKind):
			logWithError.Warn("Unknown round kind")
			return fmt.Sprintf("Unknown round %q. Available: %s", args[0], joinKinds(", "))
		case errors.Is(err, app.ErrRoundInProgress):
			logWithError.Warn("Round already running")
			return fmt.Sprintf("Round %s is already running.", strings.ToLower(args[0]))
		default:
			logWithError.Error("Failed to run round")
			return fmt.Sprintf("Round failed: %s", err.Error())
		}
	}
	handlerLogger.WithField("processed", result.Processed).Info("Round run from console")
	return FormatRoundResult(result)
}

// FormatRoundResult renders a round summary for chat.
func FormatRoundResult(r app.RoundResult) string {
	return fmt.Sprintf("Round %s finished in %s\nProcessed: %d\nNotified: %d\nEscalated: %d\nSkipped: %d\nFailed: %d",
		r.Kind, r.Duration.Round(time.Millisecond), r.Processed, r.Notified, r.Escalated, r.Skipped, r.Failed)
}

func (a *AdminConsole) Sync(ctx context.Context, senderID int64) string {
	handlerLogger := a.handlerLogger("/sync", senderID)
	handlerLogger.Info("Command received")

	result, err := a.admin.SyncRoster(ctx, senderID)
	if err != nil {
		if errors.Is(err, app.ErrAdminNotAuthorized) {
			handlerLogger.Warn("Unauthorized access attempt")
			return msgUnauthorized
		}
		handlerLogger.WithError(err).Error("Roster sync failed")
		if result.Seen == 0 {
			return fmt.Sprintf("Roster sync failed: %s", err.Error())
		}
	}
	return fmt.Sprintf("Roster synced.\nSeen: %d\nCreated: %d\nReactivated: %d\nDeactivated: %d\nFailed: %d",
		result.Seen, result.Created, result.Reactivated, result.Deactivated, result.Failed)
}

// Patients lists active patients, or all with the "all" argument.
func (a *AdminConsole) Patients(ctx context.Context, senderID int64, args []string) string {
	handlerLogger := a.handlerLogger("/patients", senderID)

	listType := "active" // Default to active
	if len(args) > 0 {
		listType = strings.ToLower(args[0])
	}
	if listType != "active" && listType != "all" {
		return "Invalid argument. Use 'active' or 'all', or leave it empty to list active patients."
	}

	patients, err := a.admin.ListPatients(ctx, senderID)
	if err != nil {
		if errors.Is(err, app.ErrAdminNotAuthorized) {
			handlerLogger.Warn("Unauthorized access attempt")
			return msgUnauthorized
		}
		handlerLogger.WithError(err).Error("Failed to list patients")
		return fmt.Sprintf("Failed to list patients: %s", err.Error())
	}

	var response strings.Builder
	count := 0
	for _, p := range patients {
		if listType == "active" && !p.Active {
			continue
		}
		status := "inactive"
		if p.Active {
			status = "active"
		}
		fmt.Fprintf(&response, "%s  org %s  day %d/%d  %s\n", p.Reference, p.OrganizationCode, p.ParDay, patient.CycleCeiling, status)
		count++
	}
	if count == 0 {
		return "No patients found."
	}
	handlerLogger.WithField("patients_count", count).Info("Patient list sent")
	return fmt.Sprintf("--- Patients (%s): %d ---\n%s", listType, count, response.String())
}

// Reenroll expects: /reenroll <reference>
func (a *AdminConsole) Reenroll(ctx context.Context, senderID int64, args []string) string {
	handlerLogger := a.handlerLogger("/reenroll", senderID)
	handlerLogger.Info("Command received")

	if len(args) != 1 {
		return "Invalid command format. Use: /reenroll <reference>"
	}
	p, err := a.admin.Reenroll(ctx, senderID, args[0])
	if err != nil {
		logWithError := handlerLogger.WithError(err).WithField("patient_reference", args[0])
		switch {
		case errors.Is(err, app.ErrAdminNotAuthorized):
			logWithError.Warn("Unauthorized access attempt")
			return msgUnauthorized
		case errors.Is(err, patient.ErrNotFound):
			logWithError.Warn("Patient to re-enroll not found")
			return fmt.Sprintf("Patient %s not found.", args[0])
		default:
			logWithError.Error("Failed to re-enroll patient")
			return fmt.Sprintf("Failed to re-enroll patient: %s", err.Error())
		}
	}
	handlerLogger.WithField("patient_reference", p.Reference).Info("Patient re-enrolled")
	return fmt.Sprintf("Patient %s restarted the cycle at day 0.", p.Reference)
}

func joinKinds(sep string) string {
	kinds := app.RoundKinds()
	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = string(k)
	}
	return strings.Join(names, sep)
}
