// Package emailer turns notification queue messages into rendered emails.
// Delivery itself sits behind the Deliverer interface; this package owns
// recipients, templates, the dedupe cache and the deferred-send schedule.
package emailer

import (
	"embed"
	"fmt"
	"html/template"
	"strings"
	"time"

	nrmodels "namereg/internal/namerequest/models"
	"namereg/internal/platform/config"
	"namereg/internal/queue"
	dErrors "namereg/pkg/domain-errors"
	"namereg/pkg/email"
)

//go:embed templates/*.html
var templateFS embed.FS

const legislationTZ = "America/Vancouver"

// Message is a rendered email ready for delivery.
type Message struct {
	From    string
	To      []string
	Subject string
	Body    string
}

var subjects = map[string]string{
	queue.OptionApproved:        "Results of your Name Request %s",
	queue.OptionConditional:     "Results of your Name Request %s",
	queue.OptionRejected:        "Results of your Name Request %s",
	queue.OptionConsentReceived: "Consent received for Name Request %s",
	queue.OptionBeforeExpiry:    "Name Request %s is expiring soon",
	queue.OptionExpired:         "Name Request %s has expired",
	queue.OptionRenewal:         "Name Request %s has been renewed",
	queue.OptionUpgrade:         "Name Request %s has been upgraded to priority",
	queue.OptionRefund:          "Refund received for Name Request %s",
	queue.OptionReset:           "Name Request %s has been returned for re-examination",
}

// Renderer renders notification templates with the configured public URLs.
type Renderer struct {
	cfg  config.Emailer
	tmpl *template.Template
}

// NewRenderer parses the embedded templates.
func NewRenderer(cfg config.Emailer) (*Renderer, error) {
	tmpl, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse email templates: %w", err)
	}
	return &Renderer{cfg: cfg, tmpl: tmpl}, nil
}

type nameLine struct {
	Name         string
	DecisionText string
}

type templateData struct {
	NRNum           string
	ApplicantName   string
	AcceptedName    string
	DecisionText    string
	ConsentRequired bool
	ExpirationDate  string
	Names           []nameLine
	Restoration     bool

	NameRequestURL    string
	DecideBusinessURL string
	CorpOnlineURL     string
	CorpFormsURL      string
	SocietiesURL      string
	StepsToRestoreURL string
}

// Render builds the email for one notification option against the current
// state of the request. Expiry dates are formatted in the legislation's
// timezone regardless of where the service runs.
func (r *Renderer) Render(option string, req *nrmodels.Request) (*Message, error) {
	subject, ok := subjects[option]
	if !ok {
		return nil, dErrors.New(dErrors.CodeBadRequest, fmt.Sprintf("unknown notification option %q", option))
	}

	data := templateData{
		NRNum:             req.NRNum,
		ApplicantName:     applicantName(req.Applicant),
		ConsentRequired:   req.ConsentFlag == nrmodels.ConsentRequired,
		Restoration:       nrmodels.ExpiryDays(req.RequestType) != nrmodels.DefaultExpiryDays,
		NameRequestURL:    r.cfg.NameRequestURL,
		DecideBusinessURL: r.cfg.DecideBusinessURL,
		CorpOnlineURL:     r.cfg.CorpOnlineURL,
		CorpFormsURL:      r.cfg.CorpFormsURL,
		SocietiesURL:      r.cfg.SocietiesURL,
		StepsToRestoreURL: r.cfg.StepsToRestoreURL,
	}
	if accepted := req.AcceptedName(); accepted != nil {
		data.AcceptedName = accepted.Name
		data.DecisionText = accepted.DecisionText
	}
	if req.ExpirationDate != nil {
		data.ExpirationDate = formatLegislationDate(*req.ExpirationDate)
	}
	for _, n := range req.Names {
		data.Names = append(data.Names, nameLine{Name: n.Name, DecisionText: n.DecisionText})
	}

	var b strings.Builder
	if err := r.tmpl.ExecuteTemplate(&b, templateFile(option), data); err != nil {
		return nil, fmt.Errorf("render %s email for %s: %w", option, req.NRNum, err)
	}

	return &Message{
		From:    r.cfg.From,
		Subject: fmt.Sprintf(subject, req.NRNum),
		Body:    b.String(),
	}, nil
}

func applicantName(a *nrmodels.Applicant) string {
	if a == nil {
		return "Applicant"
	}
	if a.FirstName != "" || a.LastName != "" {
		return strings.TrimSpace(a.FirstName + " " + a.LastName)
	}
	first, last := email.DeriveNameFromEmail(a.EmailAddress)
	return first + " " + last
}

func templateFile(option string) string {
	return strings.ToLower(option) + ".html"
}

func formatLegislationDate(t time.Time) string {
	loc, err := time.LoadLocation(legislationTZ)
	if err != nil {
		loc = time.UTC
	}
	return t.In(loc).Format("January 2, 2006")
}
