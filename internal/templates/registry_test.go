package templates_test

import (
	"errors"
	"os"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaharia-lab/bookwell/internal/templates"
)

func newRegistry(t *testing.T) *templates.Registry {
	t.Helper()
	r, err := templates.New(templates.Options{BaseURL: "https://app.example.com/"})
	require.NoError(t, err)
	return r
}

func fullData() templates.Data {
	return templates.Data{
		UserName:         "Ana",
		ProfessionalName: "Dr. Reyes",
		ClientName:       "Ana",
		SenderName:       "Marco",
		ServiceName:      "Therapy",
		Date:             "2025-11-25",
		Time:             "14:00",
		Location:         "Main St 1",
		BookingID:        "b1",
		MessagePreview:   "See you soon",
		Status:           templates.VerificationApproved,
		Reason:           "missing license",
		ActionURL:        "https://app.example.com/bookings/b1",
	}
}

func TestRender_AllLanguagesAndTemplates(t *testing.T) {
	r := newRegistry(t)

	for _, lang := range templates.Languages {
		for _, name := range templates.Names {
			for _, status := range templates.VerificationStatuses {
				data := fullData()
				data.Status = status

				msg, err := r.Render(name, lang, data)
				require.NoError(t, err, "%s/%s/%s", lang, name, status)

				assert.NotEmpty(t, msg.Subject, "%s/%s", lang, name)
				assert.Contains(t, msg.Text, "Ana", "%s/%s greeting", lang, name)
				assert.Contains(t, msg.HTML, `href="https://app.example.com/bookings/b1"`, "%s/%s action", lang, name)
				assert.Contains(t, msg.HTML, `href="https://app.example.com/settings/notifications"`, "%s/%s unsubscribe", lang, name)
				assert.Contains(t, msg.Text, "https://app.example.com/bookings/b1")
				assert.True(t, strings.HasPrefix(msg.HTML, "<!DOCTYPE html>"))
			}
		}
	}
}

func TestRender_UnknownLanguageFallsBackToEnglish(t *testing.T) {
	r := newRegistry(t)

	msg, err := r.Render(templates.Welcome, "xx", templates.Data{UserName: "Ana"})
	require.NoError(t, err)
	assert.Equal(t, "en", msg.Language)
	assert.Contains(t, msg.HTML, "Hi Ana!")
	assert.Contains(t, msg.Text, "Hi Ana!")
}

func TestRender_LanguageTags(t *testing.T) {
	r := newRegistry(t)

	msg, err := r.Render(templates.Welcome, "pt-BR", templates.Data{UserName: "Ana"})
	require.NoError(t, err)
	assert.Equal(t, "pt", msg.Language)
	assert.Contains(t, msg.Text, "Olá Ana!")

	msg, err = r.Render(templates.Welcome, "ES", templates.Data{UserName: "Ana"})
	require.NoError(t, err)
	assert.Contains(t, msg.Text, "¡Hola Ana!")
}

func TestRender_BookingConfirmationSubject(t *testing.T) {
	r := newRegistry(t)

	msg, err := r.Render(templates.BookingConfirmation, "en", fullData())
	require.NoError(t, err)
	assert.Contains(t, msg.Subject, "Therapy")
	assert.Contains(t, msg.HTML, "2025-11-25")
	assert.Contains(t, msg.HTML, "14:00")
	assert.Contains(t, msg.Text, "Booking reference: b1")
}

func TestRender_MissingFieldsUsePlaceholders(t *testing.T) {
	r := newRegistry(t)

	msg, err := r.Render(templates.BookingConfirmation, "en", templates.Data{ServiceName: "Therapy"})
	require.NoError(t, err)
	assert.Contains(t, msg.Text, "Hi there!")
	assert.Contains(t, msg.Text, "Location: not specified")
	assert.Contains(t, msg.Text, "Your booking with not specified has been confirmed.")

	msg, err = r.Render(templates.BookingConfirmation, "fr", templates.Data{})
	require.NoError(t, err)
	assert.Contains(t, msg.Text, "Lieu: non précisé")
}

func TestRender_EscapesValues(t *testing.T) {
	r := newRegistry(t)

	msg, err := r.Render(templates.Welcome, "en", templates.Data{UserName: "<script>alert(1)</script>"})
	require.NoError(t, err)
	assert.NotContains(t, msg.HTML, "<script>")
	assert.Contains(t, msg.HTML, "&lt;script&gt;")
}

func TestRender_UnknownTemplate(t *testing.T) {
	r := newRegistry(t)

	_, err := r.Render("newsletter", "en", templates.Data{})
	var unknown *templates.UnknownTemplateError
	require.True(t, errors.As(err, &unknown))
	assert.Equal(t, "newsletter", unknown.Name)
}

func TestRender_VerificationVariants(t *testing.T) {
	r := newRegistry(t)

	approved, err := r.Render(templates.ProfessionalVerification, "en", templates.Data{Status: templates.VerificationApproved})
	require.NoError(t, err)
	assert.Contains(t, approved.Subject, "verified")

	rejected, err := r.Render(templates.ProfessionalVerification, "en", templates.Data{Status: templates.VerificationRejected, Reason: "expired license"})
	require.NoError(t, err)
	assert.Contains(t, rejected.Text, "Reason: expired license")

	unknown, err := r.Render(templates.ProfessionalVerification, "en", templates.Data{Status: "on-hold"})
	require.NoError(t, err)
	assert.Contains(t, unknown.Subject, "reviewing")
}

func TestGaps_RejectedVerificationMissingInTwoLocales(t *testing.T) {
	r := newRegistry(t)

	var keys []string
	for _, g := range r.Gaps() {
		keys = append(keys, g.Language+"/"+g.Key)
	}
	assert.ElementsMatch(t, []string{
		"es/professional_verification/rejected",
		"es/notifications.verification_rejected",
		"pt/professional_verification/rejected",
		"pt/notifications.verification_rejected",
	}, keys)
}

func TestRender_GapFallsBackToDefaultLanguage(t *testing.T) {
	r := newRegistry(t)

	msg, err := r.Render(templates.ProfessionalVerification, "es", templates.Data{UserName: "Ana", Status: templates.VerificationRejected})
	require.NoError(t, err)
	assert.Equal(t, "en", msg.Language)
	assert.Contains(t, msg.Subject, "needs changes")

	// Other variants stay localized.
	msg, err = r.Render(templates.ProfessionalVerification, "es", templates.Data{UserName: "Ana", Status: templates.VerificationApproved})
	require.NoError(t, err)
	assert.Equal(t, "es", msg.Language)
}

func TestNew_StrictModeRejectsGaps(t *testing.T) {
	_, err := templates.New(templates.Options{Strict: true})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "es/professional_verification/rejected")
	assert.Contains(t, err.Error(), "pt/professional_verification/rejected")
}

// localesFS returns the shipped catalogues with overrides applied.
func localesFS(t *testing.T, overrides map[string]string) fstest.MapFS {
	t.Helper()
	fsys := fstest.MapFS{}
	for _, lang := range templates.Languages {
		raw, err := os.ReadFile("locales/" + lang + ".yaml")
		require.NoError(t, err)
		fsys["locales/"+lang+".yaml"] = &fstest.MapFile{Data: raw}
	}
	for lang, text := range overrides {
		fsys["locales/"+lang+".yaml"] = &fstest.MapFile{Data: []byte(text)}
	}
	return fsys
}

func editLocale(t *testing.T, lang, old, replacement string) string {
	t.Helper()
	raw, err := os.ReadFile("locales/" + lang + ".yaml")
	require.NoError(t, err)
	require.Contains(t, string(raw), old)
	return strings.Replace(string(raw), old, replacement, 1)
}

func TestNew_DefaultLanguageMustBeComplete(t *testing.T) {
	en := editLocale(t, "en", `    action: "Leave a review"`, "")
	_, err := templates.NewFromFS(localesFS(t, map[string]string{"en": en}), templates.Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "en/feedback_request")
	assert.Contains(t, err.Error(), "action")
}

func TestNew_UnknownFieldReference(t *testing.T) {
	fr := editLocale(t, "fr", `"Laisser un avis"`, `"{{.Rating}}"`)
	_, err := templates.NewFromFS(localesFS(t, map[string]string{"fr": fr}), templates.Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fr/feedback_request.action")
}

func TestNew_MalformedTemplate(t *testing.T) {
	es := editLocale(t, "es", `"Nuevo mensaje de {{.SenderName}}"`, `"Nuevo mensaje de {{.SenderName"`)
	_, err := templates.NewFromFS(localesFS(t, map[string]string{"es": es}), templates.Options{})
	require.Error(t, err)
}

func TestNew_MissingCatalogue(t *testing.T) {
	fsys := localesFS(t, nil)
	delete(fsys, "locales/fr.yaml")
	_, err := templates.NewFromFS(fsys, templates.Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fr catalogue")
}

func TestNew_LocaleGapRecorded(t *testing.T) {
	fr := editLocale(t, "fr", `    action: "Laisser un avis"`, "")
	r, err := templates.NewFromFS(localesFS(t, map[string]string{"fr": fr}), templates.Options{})
	require.NoError(t, err)

	var found bool
	for _, g := range r.Gaps() {
		if g.Language == "fr" && g.Key == "feedback_request" {
			found = true
			assert.Equal(t, []string{"action"}, g.Fields)
		}
	}
	assert.True(t, found)

	msg, err := r.Render(templates.FeedbackRequest, "fr", fullData())
	require.NoError(t, err)
	assert.Equal(t, "en", msg.Language)
	assert.Contains(t, msg.Text, "Leave a review")
}

func TestInApp(t *testing.T) {
	r := newRegistry(t)

	text, err := r.InApp(templates.EventBookingCancelledProfessional, "en", fullData())
	require.NoError(t, err)
	assert.Equal(t, "Booking cancelled", text.Title)
	assert.Contains(t, text.Body, "Ana cancelled the Therapy booking")

	text, err = r.InApp(templates.EventNewBooking, "es", templates.Data{ServiceName: "Yoga"})
	require.NoError(t, err)
	assert.Contains(t, text.Body, "no especificado solicitó Yoga")

	text, err = r.InApp(templates.VerificationRejected.InAppEvent(), "pt", templates.Data{Reason: "x"})
	require.NoError(t, err)
	assert.Equal(t, "Profile needs changes", text.Title)

	_, err = r.InApp("party", "en", templates.Data{})
	assert.Error(t, err)
}

func TestNormalizeLanguage(t *testing.T) {
	cases := map[string]string{
		"":      "en",
		"en":    "en",
		"EN-us": "en",
		"es_MX": "es",
		"fr":    "fr",
		"pt-BR": "pt",
		"de":    "en",
		" pt ":  "pt",
	}
	for in, want := range cases {
		assert.Equal(t, want, templates.NormalizeLanguage(in), "input %q", in)
	}
}

func TestParseVerificationStatus(t *testing.T) {
	assert.Equal(t, templates.VerificationApproved, templates.ParseVerificationStatus("Approved"))
	assert.Equal(t, templates.VerificationRejected, templates.ParseVerificationStatus("rejected"))
	assert.Equal(t, templates.VerificationPending, templates.ParseVerificationStatus(""))
	assert.Equal(t, templates.VerificationPending, templates.ParseVerificationStatus("unknown"))
}
