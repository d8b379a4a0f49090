// Package email provides email sending capabilities via SMTP.
package email

import (
	"fmt"
	"net/smtp"
	"strings"
)

// Config holds SMTP configuration
type Config struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
	FromName string
}

// Service provides email sending
type Service struct {
	config Config
	server string
	auth   smtp.Auth
	send   func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewService creates a new email service
func NewService(config Config) *Service {
	return &Service{
		config: config,
		server: config.Host + ":" + config.Port,
		auth:   smtp.PlainAuth("", config.Username, config.Password, config.Host),
		send:   smtp.SendMail,
	}
}

// IsConfigured returns true if email is configured
func (s *Service) IsConfigured() bool {
	return s.config.Host != "" && s.config.Port != "" && s.config.From != ""
}

// SendEmail sends a plain text email
func (s *Service) SendEmail(to []string, subject, body string) error {
	if !s.IsConfigured() {
		return fmt.Errorf("email not configured")
	}

	from := s.config.From
	if s.config.FromName != "" {
		from = fmt.Sprintf("%s <%s>", s.config.FromName, s.config.From)
	}

	msg := []byte(fmt.Sprintf(
		"To: %s\r\n"+
			"From: %s\r\n"+
			"Subject: %s\r\n"+
			"Content-Type: text/plain; charset=UTF-8\r\n"+
			"\r\n"+
			"%s",
		strings.Join(to, ", "),
		from,
		subject,
		body,
	))

	return s.send(s.server, s.auth, s.config.From, to, msg)
}

// SendVerificationEmail sends the account activation link.
func (s *Service) SendVerificationEmail(to, userName, verificationURL string) error {
	body := fmt.Sprintf(
		"Hi %s,\n\n"+
			"Thanks for signing up for Quotely. Verify your email address to activate your account:\n\n"+
			"%s\n\n"+
			"This link expires in 24 hours. If you didn't create an account, ignore this email.\n",
		userName, verificationURL)
	return s.SendEmail([]string{to}, "Verify your Quotely account", body)
}

// SendPasswordResetEmail sends a password reset link.
func (s *Service) SendPasswordResetEmail(to, userName, resetURL string) error {
	body := fmt.Sprintf(
		"Hi %s,\n\n"+
			"We received a request to reset your password. Use this link to choose a new one:\n\n"+
			"%s\n\n"+
			"The link expires in 1 hour. If you didn't request a reset, your password is unchanged.\n",
		userName, resetURL)
	return s.SendEmail([]string{to}, "Reset your Quotely password", body)
}

// SendShareLinkEmail sends a customer the public link to their proposal.
func (s *Service) SendShareLinkEmail(to, customerName, companyName, shareURL string) error {
	if companyName == "" {
		companyName = "your contractor"
	}
	greeting := "Hello,"
	if customerName != "" {
		greeting = fmt.Sprintf("Hello %s,", customerName)
	}
	body := fmt.Sprintf(
		"%s\n\n"+
			"%s has prepared a proposal for you. View it here:\n\n"+
			"%s\n\n"+
			"You can accept, decline, or leave a comment directly on the page.\n",
		greeting, companyName, shareURL)
	return s.SendEmail([]string{to}, fmt.Sprintf("Your proposal from %s", companyName), body)
}

// SendViewerCodeEmail sends the one-time code for the proposal view challenge.
func (s *Service) SendViewerCodeEmail(to, code string, validMinutes int) error {
	body := fmt.Sprintf(
		"Your verification code is: %s\n\n"+
			"Enter it on the proposal page to continue. The code expires in %d minutes.\n\n"+
			"If you didn't request this code, ignore this email.\n",
		code, validMinutes)
	return s.SendEmail([]string{to}, "Your proposal access code", body)
}
