// Package service runs the notification fan-out for each marketplace event:
// resolve the people involved, write their in-app records and send the
// localized email.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/shaharia-lab/bookwell/internal/async"
	"github.com/shaharia-lab/bookwell/internal/booking"
	"github.com/shaharia-lab/bookwell/internal/directory"
	"github.com/shaharia-lab/bookwell/internal/mailer"
	"github.com/shaharia-lab/bookwell/internal/metrics"
	"github.com/shaharia-lab/bookwell/internal/notification"
	"github.com/shaharia-lab/bookwell/internal/telemetry"
	"github.com/shaharia-lab/bookwell/internal/templates"
)

// Notifier handles marketplace events. No method reports failure: every
// error is logged, counted and traced, and the caller carries on.
type Notifier interface {
	// BookingConfirmed notifies the client and emails the confirmation.
	BookingConfirmed(ctx context.Context, b booking.Booking)
	// BookingCancelled notifies both the client and the professional. No
	// email is sent.
	BookingCancelled(ctx context.Context, b booking.Booking)
	// AppointmentReminder notifies the client of tomorrow's appointment.
	AppointmentReminder(ctx context.Context, b booking.Booking)
	// NewMessage notifies the recipient of a chat message.
	NewMessage(ctx context.Context, m Message)
	// FeedbackRequested asks the client to review a completed booking.
	FeedbackRequested(ctx context.Context, b booking.Booking)
	// Welcome greets a newly registered user.
	Welcome(ctx context.Context, userID string)
	// ProfessionalVerification tells a professional the outcome of their
	// profile review. Unknown statuses are treated as pending.
	ProfessionalVerification(ctx context.Context, professionalID, status, reason string)
	// ScheduleAppointmentReminders starts one reminder for every confirmed
	// booking dated tomorrow and returns how many were started.
	ScheduleAppointmentReminders(ctx context.Context) int
}

// Message is a chat message between two users.
type Message struct {
	ConversationID string
	SenderID       string
	RecipientID    string
	Body           string
}

// PreviewLength is the number of characters of a message body quoted in
// notifications.
const PreviewLength = 100

// Preview shortens body to PreviewLength characters, marking the cut with
// an ellipsis.
func Preview(body string) string {
	body = strings.TrimSpace(body)
	runes := []rune(body)
	if len(runes) <= PreviewLength {
		return body
	}
	return string(runes[:PreviewLength]) + "..."
}

// Notes writes notification records to one collection.
type Notes interface {
	Create(ctx context.Context, n notification.NewRecord) (string, error)
	CreateOnce(ctx context.Context, key string, n notification.NewRecord) (bool, error)
}

// Renderer produces email bodies and in-app texts.
type Renderer interface {
	Render(name templates.Name, lang string, data templates.Data) (templates.Message, error)
	InApp(event templates.Event, lang string, data templates.Data) (templates.InAppText, error)
}

// Sender delivers one email. *mailer.Dispatcher implements it.
type Sender interface {
	Send(ctx context.Context, msg mailer.Message) mailer.Result
}

// Bookings finds the bookings a reminder sweep covers.
type Bookings interface {
	ListConfirmedOn(ctx context.Context, day string) ([]booking.Booking, error)
}

// Deps are the collaborators of a Notifier.
type Deps struct {
	Profiles directory.Resolver
	Bookings Bookings
	// UserNotes writes to the end-user collection, ProfessionalNotes to the
	// professional one.
	UserNotes         Notes
	ProfessionalNotes Notes
	Renderer          Renderer
	Sender            Sender
	Spawner           async.Spawner
	Logger            *slog.Logger
}

// Options tune a Notifier.
type Options struct {
	// BaseURL is the public URL of the web app; action links are built on it.
	BaseURL string
	// FromName is the sender display name of every email.
	FromName string
	// Location is the timezone that decides which day is tomorrow. Defaults
	// to UTC.
	Location *time.Location
	// Now defaults to time.Now.
	Now func() time.Time
}

type notifier struct {
	profiles  directory.Resolver
	bookings  Bookings
	userNotes Notes
	proNotes  Notes
	renderer  Renderer
	sender    Sender
	spawner   async.Spawner
	logger    *slog.Logger

	baseURL  string
	fromName string
	loc      *time.Location
	now      func() time.Time
}

// NewNotifier creates a Notifier.
func NewNotifier(deps Deps, opts Options) Notifier {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.FromName == "" {
		opts.FromName = templates.DefaultAppName
	}
	return &notifier{
		profiles:  deps.Profiles,
		bookings:  deps.Bookings,
		userNotes: deps.UserNotes,
		proNotes:  deps.ProfessionalNotes,
		renderer:  deps.Renderer,
		sender:    deps.Sender,
		spawner:   deps.Spawner,
		logger:    logger.With("component", "notifier"),
		baseURL:   strings.TrimSuffix(opts.BaseURL, "/"),
		fromName:  opts.FromName,
		loc:       opts.Location,
		now:       opts.Now,
	}
}

// Event names, used as span names, metric labels and email contexts.
const (
	eventBookingConfirmed         = "booking_confirmed"
	eventBookingCancelled         = "booking_cancelled"
	eventAppointmentReminder      = "appointment_reminder"
	eventNewMessage               = "new_message"
	eventFeedbackRequested        = "feedback_requested"
	eventWelcome                  = "welcome"
	eventProfessionalVerification = "professional_verification"
)

func (n *notifier) BookingConfirmed(ctx context.Context, b booking.Booking) {
	n.handle(ctx, eventBookingConfirmed, bookingAttrs(b), func(ctx context.Context) error {
		client, err := n.resolve(ctx, "client", b.ClientID)
		if err != nil {
			return err
		}
		data := n.bookingData(ctx, b, client)
		data.ActionURL = n.link("/bookings/" + b.ID)

		if err := n.record(ctx, n.userNotes, client, templates.EventBookingConfirmed, data, notification.NewRecord{
			Kind:             notification.KindBookingUpdated,
			RelatedBookingID: b.ID,
			RelatedClientID:  b.ClientID,
		}); err != nil {
			return err
		}
		return n.email(ctx, client, templates.BookingConfirmation, data)
	})
}

func (n *notifier) BookingCancelled(ctx context.Context, b booking.Booking) {
	n.handle(ctx, eventBookingCancelled, bookingAttrs(b), func(ctx context.Context) error {
		client, err := n.resolve(ctx, "client", b.ClientID)
		if err != nil {
			return err
		}
		data := n.bookingData(ctx, b, client)
		key := notification.TransitionKey(notification.KindBookingCancelled, b.ID, b.Version)
		rec := notification.NewRecord{
			Kind:             notification.KindBookingCancelled,
			RelatedBookingID: b.ID,
			RelatedClientID:  b.ClientID,
		}

		clientErr := n.recordOnce(ctx, n.userNotes, key, client, templates.EventBookingCancelledClient, data, rec)

		// The professional only needs an id and a language here; a missing
		// profile falls back to the default language.
		pro := &directory.Profile{ID: b.ProfessionalID, PreferredLanguage: templates.DefaultLanguage}
		if p := n.lookup(ctx, b.ProfessionalID); p != nil {
			pro = p
		}
		proErr := n.recordOnce(ctx, n.proNotes, key, pro, templates.EventBookingCancelledProfessional, data, rec)

		return multierror.Append(nil, clientErr, proErr).ErrorOrNil()
	})
}

func (n *notifier) AppointmentReminder(ctx context.Context, b booking.Booking) {
	n.handle(ctx, eventAppointmentReminder, bookingAttrs(b), func(ctx context.Context) error {
		client, err := n.resolve(ctx, "client", b.ClientID)
		if err != nil {
			return err
		}
		data := n.bookingData(ctx, b, client)
		data.ActionURL = n.link("/bookings/" + b.ID)

		if err := n.record(ctx, n.userNotes, client, templates.EventAppointmentReminder, data, notification.NewRecord{
			Kind:             notification.KindReminder,
			RelatedBookingID: b.ID,
			RelatedClientID:  b.ClientID,
		}); err != nil {
			return err
		}
		return n.email(ctx, client, templates.AppointmentReminder, data)
	})
}

func (n *notifier) NewMessage(ctx context.Context, m Message) {
	attrs := []attribute.KeyValue{
		attribute.String("message.conversation_id", m.ConversationID),
		attribute.String("message.recipient_id", m.RecipientID),
	}
	n.handle(ctx, eventNewMessage, attrs, func(ctx context.Context) error {
		recipient, err := n.resolve(ctx, "recipient", m.RecipientID)
		if err != nil {
			return err
		}
		data := templates.Data{
			UserName:       recipient.DisplayName,
			MessagePreview: Preview(m.Body),
			ActionURL:      n.link("/messages/" + m.ConversationID),
		}
		if sender := n.lookup(ctx, m.SenderID); sender != nil {
			data.SenderName = sender.DisplayName
		}

		if err := n.record(ctx, n.userNotes, recipient, templates.EventNewMessage, data, notification.NewRecord{
			Kind: notification.KindMessage,
		}); err != nil {
			return err
		}
		return n.email(ctx, recipient, templates.MessageNotification, data)
	})
}

func (n *notifier) FeedbackRequested(ctx context.Context, b booking.Booking) {
	n.handle(ctx, eventFeedbackRequested, bookingAttrs(b), func(ctx context.Context) error {
		client, err := n.resolve(ctx, "client", b.ClientID)
		if err != nil {
			return err
		}
		data := n.bookingData(ctx, b, client)
		data.ActionURL = n.link("/bookings/" + b.ID + "/review")

		if err := n.record(ctx, n.userNotes, client, templates.EventFeedbackRequest, data, notification.NewRecord{
			Kind:             notification.KindGeneral,
			RelatedBookingID: b.ID,
			RelatedClientID:  b.ClientID,
		}); err != nil {
			return err
		}
		return n.email(ctx, client, templates.FeedbackRequest, data)
	})
}

func (n *notifier) Welcome(ctx context.Context, userID string) {
	n.handle(ctx, eventWelcome, []attribute.KeyValue{attribute.String("user.id", userID)}, func(ctx context.Context) error {
		user, err := n.resolve(ctx, "user", userID)
		if err != nil {
			return err
		}
		data := templates.Data{UserName: user.DisplayName, ActionURL: n.link("/services")}

		if err := n.record(ctx, n.userNotes, user, templates.EventWelcome, data, notification.NewRecord{
			Kind: notification.KindGeneral,
		}); err != nil {
			return err
		}
		return n.email(ctx, user, templates.Welcome, data)
	})
}

func (n *notifier) ProfessionalVerification(ctx context.Context, professionalID, status, reason string) {
	st := templates.ParseVerificationStatus(status)
	attrs := []attribute.KeyValue{
		attribute.String("professional.id", professionalID),
		attribute.String("verification.status", string(st)),
	}
	n.handle(ctx, eventProfessionalVerification, attrs, func(ctx context.Context) error {
		pro, err := n.resolve(ctx, "professional", professionalID)
		if err != nil {
			return err
		}
		data := templates.Data{
			UserName:  pro.DisplayName,
			Status:    st,
			Reason:    reason,
			ActionURL: n.link("/professional/dashboard"),
		}

		if err := n.record(ctx, n.proNotes, pro, st.InAppEvent(), data, notification.NewRecord{
			Kind: notification.KindGeneral,
		}); err != nil {
			return err
		}
		return n.email(ctx, pro, templates.ProfessionalVerification, data)
	})
}

// handle runs one event and accounts for its outcome.
func (n *notifier) handle(ctx context.Context, event string, attrs []attribute.KeyValue, fn func(ctx context.Context) error) {
	ctx, span := telemetry.Tracer().Start(ctx, "notifier."+event, trace.WithAttributes(attrs...))
	defer span.End()

	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v", r)
			}
		}()
		return fn(ctx)
	}()

	var nf *NotFoundError
	switch {
	case err == nil:
		metrics.Events.WithLabelValues(event, metrics.OutcomeOK).Inc()
		n.logger.InfoContext(ctx, "notification delivered", "event", event)
	case errors.As(err, &nf):
		metrics.Events.WithLabelValues(event, metrics.OutcomeNotFound).Inc()
		span.SetStatus(codes.Error, err.Error())
		n.logger.WarnContext(ctx, "notification skipped", "event", event, "error", err)
	default:
		metrics.Events.WithLabelValues(event, metrics.OutcomeFailed).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		n.logger.ErrorContext(ctx, "notification failed", "event", event, "error", err)
	}
}

// resolve looks up the primary recipient of an event.
func (n *notifier) resolve(ctx context.Context, role, id string) (*directory.Profile, error) {
	p, err := n.profiles.Resolve(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("resolving %s %s: %w", role, id, err)
	}
	if p == nil {
		return nil, &NotFoundError{Resource: role, ID: id}
	}
	return p, nil
}

// lookup resolves a counterpart whose absence only costs a display name.
func (n *notifier) lookup(ctx context.Context, id string) *directory.Profile {
	if id == "" {
		return nil
	}
	p, err := n.profiles.Resolve(ctx, id)
	if err != nil {
		n.logger.WarnContext(ctx, "counterpart lookup failed", "user_id", id, "error", err)
		return nil
	}
	return p
}

func (n *notifier) bookingData(ctx context.Context, b booking.Booking, client *directory.Profile) templates.Data {
	data := templates.Data{
		UserName:    client.DisplayName,
		ClientName:  client.DisplayName,
		ServiceName: b.ServiceName,
		Date:        b.Date,
		Time:        b.Time,
		Location:    b.Location,
		BookingID:   b.ID,
	}
	if data.ClientName == "" {
		data.ClientName = b.ClientName
	}
	if pro := n.lookup(ctx, b.ProfessionalID); pro != nil {
		data.ProfessionalName = pro.DisplayName
	}
	return data
}

// record writes rec for to with the in-app text of event.
func (n *notifier) record(ctx context.Context, notes Notes, to *directory.Profile, event templates.Event, data templates.Data, rec notification.NewRecord) error {
	if err := n.fill(&rec, to, event, data); err != nil {
		return err
	}
	if _, err := notes.Create(ctx, rec); err != nil {
		return err
	}
	return nil
}

// recordOnce is record keyed by key; an existing record is not an error.
func (n *notifier) recordOnce(ctx context.Context, notes Notes, key string, to *directory.Profile, event templates.Event, data templates.Data, rec notification.NewRecord) error {
	if err := n.fill(&rec, to, event, data); err != nil {
		return err
	}
	created, err := notes.CreateOnce(ctx, key, rec)
	if err != nil {
		return err
	}
	if !created {
		n.logger.DebugContext(ctx, "notification already exists", "key", key, "recipient_id", to.ID)
	}
	return nil
}

func (n *notifier) fill(rec *notification.NewRecord, to *directory.Profile, event templates.Event, data templates.Data) error {
	text, err := n.renderer.InApp(event, to.PreferredLanguage, data)
	if err != nil {
		return err
	}
	rec.RecipientID = to.ID
	rec.Title = text.Title
	rec.Body = text.Body
	return nil
}

func (n *notifier) email(ctx context.Context, to *directory.Profile, name templates.Name, data templates.Data) error {
	msg, err := n.renderer.Render(name, to.PreferredLanguage, data)
	if err != nil {
		return err
	}
	res := n.sender.Send(ctx, mailer.Message{
		To:       to.Email,
		FromName: n.fromName,
		Subject:  msg.Subject,
		HTML:     msg.HTML,
		Text:     msg.Text,
		Context:  string(name),
	})
	if !res.Success {
		return fmt.Errorf("sending %s to %s via %s: %s", name, to.ID, res.Provider, res.Detail)
	}
	return nil
}

func (n *notifier) link(path string) string {
	return n.baseURL + path
}

func bookingAttrs(b booking.Booking) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("booking.id", b.ID),
		attribute.String("booking.status", string(b.Status)),
	}
}
