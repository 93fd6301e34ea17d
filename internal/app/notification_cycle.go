package app

import (
	"context"
	"errors"
	"fmt"

	"patient_recommender/internal/catalog"
	"patient_recommender/internal/domain/notification"
	"patient_recommender/internal/domain/patient"
	"patient_recommender/internal/domain/registry"

	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"
)

// Cycle days with an engagement questionnaire check-in.
var ieqDays = map[int]bool{10: true, 15: true, 25: true, 30: true, 35: true, 40: true}

// Cycle days with a weekly IPAQ questionnaire reminder.
var ipaqDays = map[int]bool{7: true, 14: true, 21: true, 28: true, 35: true}

// NotificationCycle advances patients through the scripted activity
// programme and sends the messages each cycle day carries.
type NotificationCycle struct {
	patients   patient.Repository
	registry   registry.Client
	catalog    *catalog.Catalog
	dispatcher *Dispatcher
	metrics    Recorder
	logger     *logrus.Entry
}

func NewNotificationCycle(
	pr patient.Repository,
	rc registry.Client,
	cat *catalog.Catalog,
	dispatcher *Dispatcher,
	metrics Recorder,
	logger *logrus.Entry,
) *NotificationCycle {
	return &NotificationCycle{
		patients:   pr,
		registry:   rc,
		catalog:    cat,
		dispatcher: dispatcher,
		metrics:    metrics,
		logger:     logger.WithField("component", "notification_cycle"),
	}
}

// AdvanceAndNotify moves p one cycle day forward and sends the PAR, IEQ and
// IPAQ messages due that day. With ipaqReminder set the cycle does not move
// and only the IPAQ reminder is sent. Everything appended is saved in one
// commit at the end. It returns the number of notifications issued; the
// error joins delivery failures and the save error.
func (c *NotificationCycle) AdvanceAndNotify(ctx context.Context, p *patient.Patient, ipaqReminder bool) (int, error) {
	log := c.logger.WithFields(logrus.Fields{"patient_reference": p.Reference, "ipaq_reminder": ipaqReminder})
	loc, err := catalog.LocaleFor(p.OrganizationCode)
	if err != nil {
		log.WithField("organization_code", p.OrganizationCode).Warn("Organization has no locale, using default")
	}

	var errs error
	advanced := false
	if !ipaqReminder {
		advanced = p.Advance()
		if !advanced {
			log.WithField("par_day", p.ParDay).Info("Cycle complete, nothing to advance")
		} else {
			day := p.ParDay
			log = log.WithField("par_day", day)
			if text := c.parMessage(ctx, p, day, loc, log); text != "" {
				_, err := c.dispatcher.ToPatient(ctx, p, notification.KindPAR, notification.ChannelMobile, text)
				errs = multierr.Append(errs, err)
			}
			if ieqDays[day] {
				text, err := c.catalog.IEQMessage(day, loc)
				if err != nil {
					log.WithError(err).Warn("IEQ message not available")
				} else {
					_, err := c.dispatcher.ToPatient(ctx, p, notification.KindIEQ, notification.ChannelMobile, text)
					errs = multierr.Append(errs, err)
				}
			}
		}
	}

	if ipaqReminder || (advanced && ipaqDays[p.ParDay]) {
		text, err := c.catalog.General.Text(catalog.KeyIPAQReminder, loc)
		if err != nil {
			log.WithError(err).Warn("IPAQ reminder not available")
		} else {
			_, err := c.dispatcher.ToPatient(ctx, p, notification.KindIPAQReminder, notification.ChannelMobile, text)
			errs = multierr.Append(errs, err)
		}
	}

	issued := len(p.Pending())
	if !advanced && issued == 0 {
		return 0, errs
	}
	save := c.patients.Save
	if !advanced {
		save = c.patients.AppendNotifications
	}
	if err := save(ctx, p); err != nil {
		log.WithError(err).Error("Failed to save patient cycle")
		return issued, multierr.Append(errs, fmt.Errorf("failed to save patient %s: %w", p.Reference, err))
	}
	log.WithField("notifications", issued).Debug("Cycle step saved")
	return issued, errs
}

// parMessage resolves the activity message of a cycle day. Diagnosis
// specific entries need the registry; any failure there yields no message.
func (c *NotificationCycle) parMessage(ctx context.Context, p *patient.Patient, day int, loc catalog.Locale, log *logrus.Entry) string {
	entry, err := c.catalog.PARMessage(day, loc)
	if err != nil {
		log.WithError(err).Debug("No PAR message for this day")
		return ""
	}
	if !entry.ByDiagnosis() {
		text, _ := entry.Plain()
		return text
	}

	code, err := c.registry.Diagnosis(ctx, p.Reference)
	if err != nil {
		log.WithError(err).Error("Failed to fetch diagnosis")
		c.metrics.UpstreamFailure("registry")
		return ""
	}
	category, ok := catalog.CategoryFor(code)
	if !ok {
		log.WithField("diagnosis", code).Info("Diagnosis has no message variants")
		return ""
	}
	text, err := entry.Resolve(category)
	if errors.Is(err, catalog.ErrVariantNotDefined) {
		log.WithError(err).WithField("diagnosis", code).Warn("PAR message variant missing from catalog")
		return ""
	}
	if err != nil {
		log.WithError(err).Error("Failed to resolve PAR message")
		return ""
	}
	return text
}
