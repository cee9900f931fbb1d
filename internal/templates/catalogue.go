package templates

import (
	"bytes"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"text/template"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/hashicorp/go-multierror"
)

// catalogue is the YAML layout of one locales/<lang>.yaml file.
type catalogue struct {
	Language      string                  `yaml:"language" json:"language"`
	Common        commonSpec              `yaml:"common" json:"common"`
	Templates     map[string]templateSpec `yaml:"templates" json:"templates"`
	Notifications map[string]inAppSpec    `yaml:"notifications" json:"notifications"`
}

type commonSpec struct {
	Footer      string `yaml:"footer" json:"footer"`
	Unsubscribe string `yaml:"unsubscribe" json:"unsubscribe"`
	Placeholder string `yaml:"placeholder" json:"placeholder"`
	Anonymous   string `yaml:"anonymous" json:"anonymous"`
}

func (c commonSpec) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Footer, validation.Required),
		validation.Field(&c.Unsubscribe, validation.Required),
		validation.Field(&c.Placeholder, validation.Required),
		validation.Field(&c.Anonymous, validation.Required),
	)
}

type detailSpec struct {
	Label string `yaml:"label" json:"label"`
	Value string `yaml:"value" json:"value"`
}

func (d detailSpec) Validate() error {
	return validation.ValidateStruct(&d,
		validation.Field(&d.Label, validation.Required),
		validation.Field(&d.Value, validation.Required),
	)
}

// templateSpec is one email template. Templates with variants carry the
// subject and lines per variant instead of at the top level.
type templateSpec struct {
	Subject  string                 `yaml:"subject" json:"subject"`
	Greeting string                 `yaml:"greeting" json:"greeting"`
	Lines    []string               `yaml:"lines" json:"lines"`
	Details  []detailSpec           `yaml:"details" json:"details"`
	Action   string                 `yaml:"action" json:"action"`
	Variants map[string]variantSpec `yaml:"variants" json:"-"`
}

func (t templateSpec) validate(hasVariants bool) error {
	return validation.ValidateStruct(&t,
		validation.Field(&t.Subject, validation.When(!hasVariants, validation.Required)),
		validation.Field(&t.Greeting, validation.Required),
		validation.Field(&t.Lines, validation.When(!hasVariants, validation.Required), validation.Each(validation.Required)),
		validation.Field(&t.Details),
		validation.Field(&t.Action, validation.Required),
	)
}

type variantSpec struct {
	Subject string   `yaml:"subject" json:"subject"`
	Lines   []string `yaml:"lines" json:"lines"`
}

func (v variantSpec) Validate() error {
	return validation.ValidateStruct(&v,
		validation.Field(&v.Subject, validation.Required),
		validation.Field(&v.Lines, validation.Required, validation.Each(validation.Required)),
	)
}

type inAppSpec struct {
	Title string `yaml:"title" json:"title"`
	Body  string `yaml:"body" json:"body"`
}

func (n inAppSpec) Validate() error {
	return validation.ValidateStruct(&n,
		validation.Field(&n.Title, validation.Required),
		validation.Field(&n.Body, validation.Required),
	)
}

// Compiled catalogue entries. lang is the language the content came from.

type emailEntry struct {
	lang     string
	subject  *template.Template
	greeting *template.Template
	lines    []*template.Template
	details  []detailEntry
	action   *template.Template
}

type detailEntry struct {
	label *template.Template
	value *template.Template
}

type inAppEntry struct {
	lang  string
	title *template.Template
	body  *template.Template
}

type commonEntry struct {
	lang        string
	footer      *template.Template
	unsubscribe string
	placeholder string
	anonymous   string
}

// compiled is the validated content of one catalogue. Keys with gaps are
// absent.
type compiled struct {
	common *commonEntry
	email  map[string]*emailEntry
	inApp  map[Event]*inAppEntry
	gaps   []Gap
}

func emailKey(name Name, status VerificationStatus) string {
	if name == ProfessionalVerification {
		return string(name) + "/" + string(ParseVerificationStatus(string(status)))
	}
	return string(name)
}

// sample is used to trial-execute every template so that references to
// unknown fields fail at startup.
var sample = Data{
	UserName: "u", ProfessionalName: "p", ClientName: "c", SenderName: "s",
	ServiceName: "svc", Date: "2025-01-01", Time: "10:00", Location: "loc",
	BookingID: "b", MessagePreview: "m", Status: VerificationPending, Reason: "r",
	ActionURL: "https://example.com", UnsubscribeURL: "https://example.com/u", AppName: "a",
}

// compileCatalogue validates c and compiles every complete entry. Missing
// content is reported as gaps; malformed template text is an error.
func compileCatalogue(lang string, c catalogue) (*compiled, error) {
	out := &compiled{
		email: make(map[string]*emailEntry),
		inApp: make(map[Event]*inAppEntry),
	}
	var errs *multierror.Error

	if c.Language != lang {
		return nil, fmt.Errorf("catalogue %s declares language %q", lang, c.Language)
	}

	if fields := missingFields(c.Common.Validate()); len(fields) > 0 {
		out.gaps = append(out.gaps, Gap{Language: lang, Key: "common", Fields: fields})
	} else {
		footer, err := parse(lang, "common.footer", c.Common.Footer)
		if err != nil {
			errs = multierror.Append(errs, err)
		}
		out.common = &commonEntry{
			lang:        lang,
			footer:      footer,
			unsubscribe: c.Common.Unsubscribe,
			placeholder: c.Common.Placeholder,
			anonymous:   c.Common.Anonymous,
		}
	}

	for _, name := range Names {
		spec, ok := c.Templates[string(name)]
		if !ok {
			if name == ProfessionalVerification {
				for _, st := range VerificationStatuses {
					out.gaps = append(out.gaps, Gap{Language: lang, Key: emailKey(name, st), Fields: []string{"template"}})
				}
				continue
			}
			out.gaps = append(out.gaps, Gap{Language: lang, Key: string(name), Fields: []string{"template"}})
			continue
		}

		if name != ProfessionalVerification {
			if fields := missingFields(spec.validate(false)); len(fields) > 0 {
				out.gaps = append(out.gaps, Gap{Language: lang, Key: string(name), Fields: fields})
				continue
			}
			entry, err := compileEmail(lang, string(name), spec, spec.Subject, spec.Lines)
			if err != nil {
				errs = multierror.Append(errs, err)
				continue
			}
			out.email[string(name)] = entry
			continue
		}

		base := missingFields(spec.validate(true))
		for _, st := range VerificationStatuses {
			key := emailKey(name, st)
			v, ok := spec.Variants[string(st)]
			fields := slices.Clone(base)
			if !ok {
				fields = append(fields, "variant")
			} else {
				for _, f := range missingFields(v.Validate()) {
					fields = append(fields, "variants."+string(st)+"."+f)
				}
			}
			if len(fields) > 0 {
				out.gaps = append(out.gaps, Gap{Language: lang, Key: key, Fields: fields})
				continue
			}
			entry, err := compileEmail(lang, key, spec, v.Subject, v.Lines)
			if err != nil {
				errs = multierror.Append(errs, err)
				continue
			}
			out.email[key] = entry
		}
	}

	for _, ev := range Events {
		spec, ok := c.Notifications[string(ev)]
		key := "notifications." + string(ev)
		if !ok {
			out.gaps = append(out.gaps, Gap{Language: lang, Key: key, Fields: []string{"notification"}})
			continue
		}
		if fields := missingFields(spec.Validate()); len(fields) > 0 {
			out.gaps = append(out.gaps, Gap{Language: lang, Key: key, Fields: fields})
			continue
		}
		title, terr := parse(lang, key+".title", spec.Title)
		body, berr := parse(lang, key+".body", spec.Body)
		if terr != nil || berr != nil {
			errs = multierror.Append(errs, terr, berr)
			continue
		}
		out.inApp[ev] = &inAppEntry{lang: lang, title: title, body: body}
	}

	if err := errs.ErrorOrNil(); err != nil {
		return nil, err
	}
	return out, nil
}

func compileEmail(lang, key string, spec templateSpec, subject string, lines []string) (*emailEntry, error) {
	var errs *multierror.Error
	must := func(field, text string) *template.Template {
		t, err := parse(lang, key+"."+field, text)
		if err != nil {
			errs = multierror.Append(errs, err)
		}
		return t
	}

	e := &emailEntry{
		lang:     lang,
		subject:  must("subject", subject),
		greeting: must("greeting", spec.Greeting),
		action:   must("action", spec.Action),
	}
	for i, l := range lines {
		e.lines = append(e.lines, must("lines."+strconv.Itoa(i), l))
	}
	for i, d := range spec.Details {
		e.details = append(e.details, detailEntry{
			label: must("details."+strconv.Itoa(i)+".label", d.Label),
			value: must("details."+strconv.Itoa(i)+".value", d.Value),
		})
	}
	if err := errs.ErrorOrNil(); err != nil {
		return nil, err
	}
	return e, nil
}

// parse compiles text and trial-executes it against the sample data.
func parse(lang, key, text string) (*template.Template, error) {
	t, err := template.New(key).Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("%s/%s: %w", lang, key, err)
	}
	if _, err := execute(t, sample); err != nil {
		return nil, fmt.Errorf("%s/%s: %w", lang, key, err)
	}
	return t, nil
}

func execute(t *template.Template, d Data) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, d); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// missingFields flattens ozzo validation errors into sorted field paths.
func missingFields(err error) []string {
	if err == nil {
		return nil
	}
	var verrs validation.Errors
	if !errors.As(err, &verrs) {
		return []string{err.Error()}
	}
	var out []string
	for _, k := range slices.Sorted(maps.Keys(verrs)) {
		var nested validation.Errors
		if errors.As(verrs[k], &nested) {
			for _, n := range missingFields(nested) {
				out = append(out, k+"."+n)
			}
			continue
		}
		out = append(out, k)
	}
	return out
}
