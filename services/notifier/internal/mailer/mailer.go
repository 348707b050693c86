// Package mailer sends plain-text notification mail over SMTP.
package mailer

import (
	"errors"
	"fmt"
	"net/smtp"
	"strings"
)

// Config holds SMTP settings.
type Config struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
}

// SMTP sends mail through one relay.
type SMTP struct {
	config   Config
	server   string
	auth     smtp.Auth
	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func New(config Config) *SMTP {
	var auth smtp.Auth
	if config.Username != "" {
		auth = smtp.PlainAuth("", config.Username, config.Password, config.Host)
	}
	return &SMTP{
		config:   config,
		server:   config.Host + ":" + config.Port,
		auth:     auth,
		sendMail: smtp.SendMail,
	}
}

// IsConfigured reports whether host, port and sender are set.
func (s *SMTP) IsConfigured() bool {
	return s.config.Host != "" && s.config.Port != "" && s.config.From != ""
}

// Send delivers a plain-text message to every address in to.
func (s *SMTP) Send(to []string, subject, body string) error {
	if !s.IsConfigured() {
		return errors.New("smtp not configured")
	}
	if len(to) == 0 {
		return errors.New("no recipients")
	}
	return s.sendMail(s.server, s.auth, s.config.From, to, s.message(to, subject, body))
}

func (s *SMTP) message(to []string, subject, body string) []byte {
	return []byte(fmt.Sprintf(
		"To: %s\r\n"+
			"From: %s\r\n"+
			"Subject: %s\r\n"+
			"MIME-Version: 1.0\r\n"+
			"Content-Type: text/plain; charset=UTF-8\r\n"+
			"\r\n"+
			"%s",
		strings.Join(to, ", "),
		s.config.From,
		headerSafe(subject),
		body,
	))
}

// headerSafe drops line breaks so a subject cannot inject headers.
func headerSafe(s string) string {
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(s)
}
