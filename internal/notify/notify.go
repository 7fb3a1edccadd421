package notify

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/base64"
	"fmt"
	"html/template"
	"mime"
	"os"
	"path/filepath"
	"time"

	"github.com/wneessen/go-mail"

	"github.com/slok/comicsub/internal/log"
	"github.com/slok/comicsub/internal/model"
	"github.com/slok/comicsub/internal/reconcile"
)

// Notifier notifies about updated comics.
type Notifier interface {
	Notify(ctx context.Context, c model.Comic) error
}

// Noop notifier doesn't notify.
const Noop = noop(0)

type noop int

func (noop) Notify(context.Context, model.Comic) error { return nil }

// CoverResolver returns the local file of a cached cover.
type CoverResolver interface {
	Resolve(publicPath string) (string, bool)
}

// Sender sends mail messages.
type Sender interface {
	Send(ctx context.Context, msgs ...*mail.Msg) error
}

//go:embed templates/update.html.tmpl
var updateTmplData string

var updateTmpl = template.Must(template.New("update").Parse(updateTmplData))

const (
	defaultTimeout = 10 * time.Second
	sslPort        = 465
)

// SMTPConfig is the configuration of the SMTP notifier.
type SMTPConfig struct {
	Settings model.MailSettings
	// Covers resolves the cached covers so they can be embedded on the mail.
	Covers CoverResolver
	// Sender is the mail client, it defaults to an SMTP client built from the settings.
	Sender  Sender
	Timeout time.Duration
	Logger  log.Logger
}

func (c *SMTPConfig) defaults() error {
	if !c.Settings.Complete() {
		return fmt.Errorf("mail settings are incomplete: %w", model.ErrMissingConfig)
	}
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "notify.SMTP"})
	if c.Sender == nil {
		s, err := newSMTPSender(c.Settings, c.Timeout)
		if err != nil {
			return err
		}
		c.Sender = s
	}
	return nil
}

// SMTP sends an HTML mail for every updated comic.
type SMTP struct {
	settings model.MailSettings
	covers   CoverResolver
	sender   Sender
	logger   log.Logger
}

// NewSMTP returns a new SMTP notifier.
func NewSMTP(cfg SMTPConfig) (*SMTP, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &SMTP{
		settings: cfg.Settings,
		covers:   cfg.Covers,
		sender:   cfg.Sender,
		logger:   cfg.Logger,
	}, nil
}

func (s *SMTP) Notify(ctx context.Context, c model.Comic) error {
	body, err := renderBody(c, s.coverDataURI(c.CoverURL))
	if err != nil {
		return fmt.Errorf("could not render mail: %w", err)
	}

	m := mail.NewMsg()
	if err := m.From(s.settings.Username); err != nil {
		return fmt.Errorf("invalid sender: %w", err)
	}
	if err := m.To(s.settings.Recipient); err != nil {
		return fmt.Errorf("invalid recipient: %w", err)
	}
	m.Subject("Comic update: " + c.Name)
	m.SetBodyString(mail.TypeTextHTML, body)

	if err := s.sender.Send(ctx, m); err != nil {
		return fmt.Errorf("could not send mail: %w", err)
	}
	s.logger.WithValues(log.Kv{"comic-id": c.ID}).Infof("Update mail of %q sent", c.Name)

	return nil
}

func (s *SMTP) coverDataURI(cover string) string {
	if s.covers == nil || cover == "" {
		return ""
	}

	local, ok := s.covers.Resolve(cover)
	if !ok {
		return ""
	}

	data, err := os.ReadFile(local)
	if err != nil {
		s.logger.Warningf("Could not read cover %s: %s", local, err)
		return ""
	}

	mimeType := mime.TypeByExtension(filepath.Ext(local))
	if mimeType == "" {
		mimeType = "image/jpeg"
	}
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

type updateTmplVars struct {
	Name       string
	Author     string
	UpdateTime string
	Tags       []string
	Cover      template.URL
}

func renderBody(c model.Comic, coverDataURI string) (string, error) {
	vars := updateTmplVars{
		Name:       c.Name,
		Author:     c.Author,
		UpdateTime: "Unknown",
		Tags:       c.Tags,
		// Only our own data URIs reach the template.
		Cover: template.URL(coverDataURI),
	}
	if vars.Author == "" {
		vars.Author = "N/A"
	}
	if t, ok := reconcile.ParseUpdateTime(c.UpdateTime); ok {
		vars.UpdateTime = t.Format("2006-01-02 15:04")
	}

	var b bytes.Buffer
	if err := updateTmpl.Execute(&b, vars); err != nil {
		return "", err
	}
	return b.String(), nil
}

// smtpSender dials a new client on every send, go-mail clients hold a single
// connection and can't be shared by concurrent sends.
type smtpSender struct {
	server string
	opts   []mail.Option
}

func newSMTPSender(s model.MailSettings, timeout time.Duration) (*smtpSender, error) {
	opts := []mail.Option{
		mail.WithPort(s.Port),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(s.Username),
		mail.WithPassword(s.Password),
		mail.WithTimeout(timeout),
	}
	if s.Port == sslPort {
		opts = append(opts, mail.WithSSL())
	} else {
		opts = append(opts, mail.WithTLSPolicy(mail.TLSMandatory))
	}

	// Fail early on invalid settings.
	if _, err := mail.NewClient(s.Server, opts...); err != nil {
		return nil, fmt.Errorf("could not create smtp client: %w", err)
	}

	return &smtpSender{server: s.Server, opts: opts}, nil
}

func (s *smtpSender) Send(ctx context.Context, msgs ...*mail.Msg) error {
	cli, err := mail.NewClient(s.server, s.opts...)
	if err != nil {
		return fmt.Errorf("could not create smtp client: %w", err)
	}
	return cli.DialAndSendWithContext(ctx, msgs...)
}
