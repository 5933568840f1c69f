package email

import (
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

func TestRenderVerificationTemplate(t *testing.T) {
	data := VerificationData{
		AppName:         "TaskDeck",
		UserName:        "Test User",
		VerificationURL: "https://example.com/verify?token=abc123",
	}

	html, err := renderTemplate(verificationEmailTemplate, data)
	if err != nil {
		t.Fatalf("renderTemplate failed: %v", err)
	}

	if !strings.Contains(html, "TaskDeck") {
		t.Error("template should contain app name")
	}
	if !strings.Contains(html, "Test User") {
		t.Error("template should contain user name")
	}
	if !strings.Contains(html, "https://example.com/verify?token=abc123") {
		t.Error("template should contain verification URL")
	}
}

func TestRenderInvitationTemplate(t *testing.T) {
	data := InvitationData{
		AppName:       "TaskDeck",
		WorkspaceName: "Acme Inc",
		InviterName:   "Jordan",
		AcceptURL:     "https://example.com/invitations/accept?token=inv123",
	}

	html, err := renderTemplate(invitationEmailTemplate, data)
	if err != nil {
		t.Fatalf("renderTemplate failed: %v", err)
	}

	if !strings.Contains(html, "Acme Inc") {
		t.Error("template should contain workspace name")
	}
	if !strings.Contains(html, "Jordan") {
		t.Error("template should contain inviter name")
	}
	if !strings.Contains(html, "https://example.com/invitations/accept?token=inv123") {
		t.Error("template should contain accept URL")
	}
}

func TestRenderAssignmentTemplate(t *testing.T) {
	data := AssignmentData{
		AppName:      "TaskDeck",
		AssigneeName: "Riley",
		TaskName:     "Ship onboarding flow",
		BoardName:    "Q3 Roadmap",
		TaskURL:      "https://example.com/boards/brd_1/tasks/tsk_9",
	}

	html, err := renderTemplate(assignmentEmailTemplate, data)
	if err != nil {
		t.Fatalf("renderTemplate failed: %v", err)
	}

	if !strings.Contains(html, "Ship onboarding flow") {
		t.Error("template should contain task name")
	}
	if !strings.Contains(html, "Q3 Roadmap") {
		t.Error("template should contain board name")
	}
	if !strings.Contains(html, "Riley") {
		t.Error("template should contain assignee name")
	}
}
