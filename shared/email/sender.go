// Package email mails the digest of a watch pass over SMTP.
package email

import (
	"bytes"
	_ "embed"
	"fmt"
	"html/template"
	"net/smtp"
	"time"

	"repair-stack/shared/config"
)

//go:embed digest.html
var digestTemplate string

var digestTmpl = template.Must(template.New("digest").Parse(digestTemplate))

// Digest summarises the queries refreshed by one watch pass.
type Digest struct {
	Date    time.Time
	Entries []DigestEntry
	Fresh   int
	Failed  int
}

type DigestEntry struct {
	Query     string
	Device    string
	RequestID string
	Videos    []DigestVideo
}

type DigestVideo struct {
	Title   string
	Channel string
	URL     string
	Events  int
}

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

type Sender struct {
	config config.EmailConfig
	send   sendFunc
}

func NewSender(cfg config.EmailConfig) *Sender {
	return &Sender{config: cfg, send: smtp.SendMail}
}

// SendDigest mails d. A digest without entries is not sent.
func (s *Sender) SendDigest(d *Digest) error {
	if d == nil {
		return fmt.Errorf("digest cannot be nil")
	}
	if len(d.Entries) == 0 {
		return nil
	}

	videos := 0
	for _, e := range d.Entries {
		videos += len(e.Videos)
	}
	subject := fmt.Sprintf("Repair Guide - %d videos for %d queries (%s)",
		videos, len(d.Entries), d.Date.Format("Jan 2, 2006"))

	var body bytes.Buffer
	if err := digestTmpl.Execute(&body, d); err != nil {
		return fmt.Errorf("failed to render digest: %w", err)
	}
	return s.sendHTML(subject, body.String())
}

func (s *Sender) sendHTML(subject, body string) error {
	var auth smtp.Auth
	if s.config.Username != "" {
		auth = smtp.PlainAuth("", s.config.Username, s.config.Password, s.config.SMTPServer)
	}

	msg := []byte(fmt.Sprintf("To: %s\r\nFrom: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/html; charset=UTF-8\r\n\r\n%s",
		s.config.ToEmail, s.config.FromEmail, subject, body))

	addr := fmt.Sprintf("%s:%d", s.config.SMTPServer, s.config.SMTPPort)
	if err := s.send(addr, auth, s.config.FromEmail, []string{s.config.ToEmail}, msg); err != nil {
		return fmt.Errorf("failed to send digest: %w", err)
	}
	return nil
}
