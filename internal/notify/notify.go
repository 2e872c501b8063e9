// Package notify e-mails a summary when a campaign finishes.
package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
	"github.com/google/uuid"

	"github.com/foxzi/wabulk/internal/campaign"
)

// Config holds completion mail settings
type Config struct {
	SMTPAddr      string
	Username      string
	Password      string
	From          string
	To            []string
	SubjectPrefix string
	DKIM          DKIMConfig
}

// DKIMConfig enables DKIM signing of notification mail
type DKIMConfig struct {
	Enabled  bool
	Domain   string
	Selector string
	KeyFile  string
}

type sendFunc func(addr string, a sasl.Client, from string, to []string, r io.Reader) error

// Notifier sends campaign summaries over SMTP
type Notifier struct {
	cfg      Config
	signer   *Signer
	logger   *slog.Logger
	sendMail sendFunc
	now      func() time.Time
}

// New creates a notifier. The DKIM key is loaded eagerly.
func New(cfg Config, logger *slog.Logger) (*Notifier, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if cfg.SMTPAddr == "" {
		return nil, fmt.Errorf("notify: smtp address is required")
	}
	if cfg.From == "" || len(cfg.To) == 0 {
		return nil, fmt.Errorf("notify: from and at least one recipient are required")
	}

	n := &Notifier{
		cfg:      cfg,
		logger:   logger,
		sendMail: smtp.SendMail,
		now:      time.Now,
	}

	if cfg.DKIM.Enabled {
		signer, err := NewSignerFromFile(cfg.DKIM.KeyFile, cfg.DKIM.Domain, cfg.DKIM.Selector)
		if err != nil {
			return nil, err
		}
		n.signer = signer
	}

	return n, nil
}

// Notify sends the summary and logs failures. It has the campaign finish
// hook signature.
func (n *Notifier) Notify(report campaign.Report, progress campaign.Progress) {
	if err := n.Send(report, progress); err != nil {
		n.logger.Error("failed to send completion mail", "report_id", report.ID, "error", err)
		return
	}
	n.logger.Info("completion mail sent", "report_id", report.ID, "to", n.cfg.To)
}

// Send builds, signs and delivers the summary
func (n *Notifier) Send(report campaign.Report, progress campaign.Progress) error {
	msg, err := n.Build(report, progress)
	if err != nil {
		return err
	}

	if n.signer != nil {
		msg, err = n.signer.Sign(msg)
		if err != nil {
			return err
		}
	}

	var auth sasl.Client
	if n.cfg.Username != "" {
		auth = sasl.NewPlainClient("", n.cfg.Username, n.cfg.Password)
	}

	if err := n.sendMail(n.cfg.SMTPAddr, auth, n.cfg.From, n.cfg.To, bytes.NewReader(msg)); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

// Build renders the summary message with CRLF line endings
func (n *Notifier) Build(report campaign.Report, progress campaign.Progress) ([]byte, error) {
	rows, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal report: %w", err)
	}

	subject := fmt.Sprintf("Campaign %s %s: %d sent, %d failed", report.ID, report.Status, progress.Sent, progress.Failed)
	if n.cfg.SubjectPrefix != "" {
		subject = n.cfg.SubjectPrefix + " " + subject
	}

	domain := n.cfg.From
	if at := strings.LastIndex(domain, "@"); at >= 0 {
		domain = domain[at+1:]
	}

	var body strings.Builder
	fmt.Fprintf(&body, "Campaign:  %s\n", report.ID)
	fmt.Fprintf(&body, "Status:    %s\n", report.Status)
	fmt.Fprintf(&body, "Total:     %d\n", progress.Total)
	fmt.Fprintf(&body, "Sent:      %d\n", progress.Sent)
	fmt.Fprintf(&body, "Failed:    %d\n", progress.Failed)
	fmt.Fprintf(&body, "Cooldowns: %d\n", progress.Cooldowns)
	if !report.StartedAt.IsZero() && !report.FinishedAt.IsZero() {
		fmt.Fprintf(&body, "Duration:  %s\n", report.FinishedAt.Sub(report.StartedAt).Round(time.Second))
	}
	counts := report.Counts()
	fmt.Fprintf(&body, "Unresolvable: %d\n\n", counts[campaign.OutcomeUnresolvable])
	body.WriteString("Report:\n")
	body.Write(rows)
	body.WriteString("\n")

	var buf bytes.Buffer
	headers := [][2]string{
		{"From", n.cfg.From},
		{"To", strings.Join(n.cfg.To, ", ")},
		{"Subject", subject},
		{"Date", n.now().Format(time.RFC1123Z)},
		{"Message-ID", fmt.Sprintf("<%s@%s>", uuid.New().String(), domain)},
		{"MIME-Version", "1.0"},
		{"Content-Type", "text/plain; charset=utf-8"},
		{"Content-Transfer-Encoding", "8bit"},
	}
	for _, h := range headers {
		fmt.Fprintf(&buf, "%s: %s\r\n", h[0], h[1])
	}
	buf.WriteString("\r\n")
	buf.WriteString(strings.ReplaceAll(body.String(), "\n", "\r\n"))

	return buf.Bytes(), nil
}
