package whatsapp

import (
	"context"
	"testing"
)

func TestSendMessageValidation(t *testing.T) {
	tests := []struct {
		name string
		to   string
		body string
	}{
		{"empty recipient", "", "time to wrap up"},
		{"empty body", "15550100", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &Client{}
			if err := c.SendMessage(context.Background(), tt.to, tt.body); err == nil {
				t.Error("SendMessage() succeeded, want validation error")
			}
		})
	}
}
