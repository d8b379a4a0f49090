package email

import (
	"net/smtp"
	"strings"
	"testing"
)

func TestServiceIsConfigured(t *testing.T) {
	tests := []struct {
		name     string
		config   Config
		expected bool
	}{
		{
			name:     "empty config",
			config:   Config{},
			expected: false,
		},
		{
			name: "missing host",
			config: Config{
				Port: "587",
				From: "test@example.com",
			},
			expected: false,
		},
		{
			name: "missing port",
			config: Config{
				Host: "smtp.example.com",
				From: "test@example.com",
			},
			expected: false,
		},
		{
			name: "missing from",
			config: Config{
				Host: "smtp.example.com",
				Port: "587",
			},
			expected: false,
		},
		{
			name: "fully configured",
			config: Config{
				Host: "smtp.example.com",
				Port: "587",
				From: "test@example.com",
			},
			expected: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewService(tt.config)
			if svc.IsConfigured() != tt.expected {
				t.Errorf("IsConfigured() = %v, want %v", svc.IsConfigured(), tt.expected)
			}
		})
	}
}

func captureService() (*Service, *[]byte) {
	svc := NewService(Config{
		Host:     "smtp.example.com",
		Port:     "587",
		From:     "no-reply@example.com",
		FromName: "Quotely",
	})
	var captured []byte
	svc.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		captured = msg
		return nil
	}
	return svc, &captured
}

func TestSendShareLinkEmail(t *testing.T) {
	svc, captured := captureService()

	err := svc.SendShareLinkEmail("customer@example.com", "Ada", "Acme Decks", "https://app.example.com/share/tok-abc")
	if err != nil {
		t.Fatalf("SendShareLinkEmail failed: %v", err)
	}

	msg := string(*captured)
	if !strings.Contains(msg, "Acme Decks") {
		t.Error("message should name the company")
	}
	if !strings.Contains(msg, "https://app.example.com/share/tok-abc") {
		t.Error("message should contain the share URL")
	}
	if !strings.Contains(msg, "Hello Ada,") {
		t.Error("message should greet the customer by name")
	}
	if strings.Contains(msg, "text/html") {
		t.Error("share link emails are plain text")
	}
}

func TestSendViewerCodeEmail(t *testing.T) {
	svc, captured := captureService()

	if err := svc.SendViewerCodeEmail("viewer@example.com", "123456", 5); err != nil {
		t.Fatalf("SendViewerCodeEmail failed: %v", err)
	}

	msg := string(*captured)
	if !strings.Contains(msg, "123456") {
		t.Error("message should contain the code")
	}
	if !strings.Contains(msg, "5 minutes") {
		t.Error("message should state the code lifetime")
	}
}

func TestSendEmailUnconfigured(t *testing.T) {
	svc := NewService(Config{})
	if err := svc.SendEmail([]string{"a@example.com"}, "subject", "body"); err == nil {
		t.Error("expected error when not configured")
	}
}
