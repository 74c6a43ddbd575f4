package twilio

import "testing"

func TestNewClientRequiresCredentials(t *testing.T) {
	t.Setenv("TWILIO_ACCOUNT_SID", "")
	t.Setenv("TWILIO_AUTH_TOKEN", "")
	t.Setenv("TWILIO_FROM_NUMBER", "")

	tests := []struct {
		name    string
		opts    []Option
		wantErr bool
	}{
		{"nothing provided", nil, true},
		{"missing from number", []Option{WithAccountSID("AC123"), WithAuthToken("tok")}, true},
		{"missing auth token", []Option{WithAccountSID("AC123"), WithFromNumber("+15550100")}, true},
		{"all provided", []Option{WithAccountSID("AC123"), WithAuthToken("tok"), WithFromNumber("+15550100")}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewClient(tt.opts...)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewClient() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestNewClientEnvFallback(t *testing.T) {
	t.Setenv("TWILIO_ACCOUNT_SID", "AC456")
	t.Setenv("TWILIO_AUTH_TOKEN", "envtok")
	t.Setenv("TWILIO_FROM_NUMBER", "+15550101")

	c, err := NewClient()
	if err != nil {
		t.Fatalf("NewClient() with env credentials error = %v", err)
	}
	if c.from != "+15550101" {
		t.Errorf("from = %q, want env value", c.from)
	}
}
