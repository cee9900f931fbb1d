package templates

import (
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"slices"
	"strings"
	"text/template"

	"github.com/hashicorp/go-multierror"
	"gopkg.in/yaml.v3"
)

//go:embed locales/*.yaml
var locales embed.FS

// DefaultAppName is the brand name used when Options.AppName is empty.
const DefaultAppName = "Bookwell"

// Options configures a Registry.
type Options struct {
	// Strict fails registration on any catalogue gap instead of falling back
	// to the default language.
	Strict bool
	// AppName is the brand shown in the email chrome.
	AppName string
	// BaseURL is the public URL of the web app. It is the action link when
	// Data.ActionURL is empty and the base of the unsubscribe link.
	BaseURL string
	Logger  *slog.Logger
}

// Registry holds the compiled catalogues for every supported language.
// It is safe for concurrent use.
type Registry struct {
	opts   Options
	common map[string]*commonEntry
	email  map[string]map[string]*emailEntry
	inApp  map[string]map[Event]*inAppEntry
	gaps   []Gap
}

// New builds a Registry from the embedded catalogues.
func New(opts Options) (*Registry, error) {
	return newFromFS(locales, opts)
}

func newFromFS(fsys fs.FS, opts Options) (*Registry, error) {
	if opts.AppName == "" {
		opts.AppName = DefaultAppName
	}
	opts.BaseURL = strings.TrimSuffix(opts.BaseURL, "/")
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "templates")

	r := &Registry{
		opts:   opts,
		common: make(map[string]*commonEntry, len(Languages)),
		email:  make(map[string]map[string]*emailEntry, len(Languages)),
		inApp:  make(map[string]map[Event]*inAppEntry, len(Languages)),
	}

	// The default language is loaded first: it is the fallback for every
	// other catalogue and must itself be complete.
	order := append([]string{DefaultLanguage}, slices.DeleteFunc(slices.Clone(Languages), func(l string) bool {
		return l == DefaultLanguage
	})...)

	var errs *multierror.Error
	for _, lang := range order {
		c, err := loadCatalogue(fsys, lang)
		if err != nil {
			errs = multierror.Append(errs, err)
			continue
		}
		comp, err := compileCatalogue(lang, c)
		if err != nil {
			errs = multierror.Append(errs, err)
			continue
		}
		for _, g := range comp.gaps {
			if opts.Strict || lang == DefaultLanguage {
				errs = multierror.Append(errs, fmt.Errorf("catalogue gap %s", g))
				continue
			}
			logger.Warn("catalogue gap, falling back to default language",
				"language", g.Language, "key", g.Key, "fields", strings.Join(g.Fields, ","))
		}
		r.gaps = append(r.gaps, comp.gaps...)
		r.install(lang, comp)
	}
	if err := errs.ErrorOrNil(); err != nil {
		return nil, fmt.Errorf("registering templates: %w", err)
	}
	return r, nil
}

func loadCatalogue(fsys fs.FS, lang string) (catalogue, error) {
	var c catalogue
	raw, err := fs.ReadFile(fsys, "locales/"+lang+".yaml")
	if err != nil {
		return c, fmt.Errorf("reading %s catalogue: %w", lang, err)
	}
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return c, fmt.Errorf("parsing %s catalogue: %w", lang, err)
	}
	return c, nil
}

// install records comp for lang, filling gaps from the default language.
func (r *Registry) install(lang string, comp *compiled) {
	def := DefaultLanguage
	email := make(map[string]*emailEntry, len(r.email[def]))
	inApp := make(map[Event]*inAppEntry, len(r.inApp[def]))
	for k, e := range r.email[def] {
		email[k] = e
	}
	for k, e := range r.inApp[def] {
		inApp[k] = e
	}
	for k, e := range comp.email {
		email[k] = e
	}
	for k, e := range comp.inApp {
		inApp[k] = e
	}
	r.email[lang] = email
	r.inApp[lang] = inApp

	if comp.common != nil {
		r.common[lang] = comp.common
	} else {
		r.common[lang] = r.common[def]
	}
}

// Gaps returns the content missing from non-default catalogues. Rendering a
// gap uses the default language.
func (r *Registry) Gaps() []Gap {
	return slices.Clone(r.gaps)
}

// Render produces the email for template name in lang. Unsupported languages
// use the default language. The only error is an unknown template name.
func (r *Registry) Render(name Name, lang string, data Data) (Message, error) {
	if !slices.Contains(Names, name) {
		return Message{}, &UnknownTemplateError{Name: string(name)}
	}
	lang = NormalizeLanguage(lang)
	entry := r.email[lang][emailKey(name, data.Status)]
	common := r.common[entry.lang]
	v := r.view(data, common)

	l := layout{
		Lang:             entry.lang,
		AppName:          v.AppName,
		Initial:          initial(v.AppName),
		ActionURL:        v.ActionURL,
		UnsubscribeLabel: common.unsubscribe,
		UnsubscribeURL:   v.UnsubscribeURL,
	}
	var errs *multierror.Error
	run := func(t *template.Template, out *string) {
		s, err := execute(t, v)
		if err != nil {
			errs = multierror.Append(errs, err)
		}
		*out = s
	}
	run(entry.subject, &l.Subject)
	run(entry.greeting, &l.Greeting)
	run(entry.action, &l.ActionLabel)
	run(common.footer, &l.Footer)
	l.Lines = make([]string, len(entry.lines))
	for i, t := range entry.lines {
		run(t, &l.Lines[i])
	}
	l.Details = make([]detailRow, len(entry.details))
	for i, d := range entry.details {
		run(d.label, &l.Details[i].Label)
		run(d.value, &l.Details[i].Value)
	}
	if err := errs.ErrorOrNil(); err != nil {
		return Message{}, fmt.Errorf("rendering %s/%s: %w", entry.lang, name, err)
	}

	html, err := renderHTML(l)
	if err != nil {
		return Message{}, fmt.Errorf("rendering %s/%s: %w", entry.lang, name, err)
	}
	return Message{
		Subject:  l.Subject,
		HTML:     html,
		Text:     renderText(l),
		Language: entry.lang,
	}, nil
}

// InApp produces the in-app notification text for event in lang.
func (r *Registry) InApp(event Event, lang string, data Data) (InAppText, error) {
	if !slices.Contains(Events, event) {
		return InAppText{}, fmt.Errorf("unknown notification text %q", event)
	}
	entry := r.inApp[NormalizeLanguage(lang)][event]
	v := r.view(data, r.common[entry.lang])

	title, err := execute(entry.title, v)
	if err != nil {
		return InAppText{}, fmt.Errorf("rendering %s title: %w", event, err)
	}
	body, err := execute(entry.body, v)
	if err != nil {
		return InAppText{}, fmt.Errorf("rendering %s body: %w", event, err)
	}
	return InAppText{Title: title, Body: body}, nil
}

// view fills empty display fields with the locale's placeholder text.
func (r *Registry) view(d Data, c *commonEntry) Data {
	v := d
	if strings.TrimSpace(v.AppName) == "" {
		v.AppName = r.opts.AppName
	}
	if strings.TrimSpace(v.UserName) == "" {
		v.UserName = c.anonymous
	}
	for _, f := range []*string{
		&v.ProfessionalName, &v.ClientName, &v.SenderName, &v.ServiceName,
		&v.Date, &v.Time, &v.Location, &v.BookingID, &v.MessagePreview, &v.Reason,
	} {
		if strings.TrimSpace(*f) == "" {
			*f = c.placeholder
		}
	}
	v.Status = ParseVerificationStatus(string(v.Status))
	if v.ActionURL == "" {
		v.ActionURL = r.opts.BaseURL + "/"
	}
	if v.UnsubscribeURL == "" {
		v.UnsubscribeURL = r.opts.BaseURL + "/settings/notifications"
	}
	return v
}

func initial(name string) string {
	for _, r := range name {
		return strings.ToUpper(string(r))
	}
	return ""
}
