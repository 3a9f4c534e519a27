package config

import "testing"

func TestValidateRequiresFields(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		ok   bool
	}{
		{
			name: "missing everything",
			cfg:  Config{},
			ok:   false,
		},
		{
			name: "missing kv endpoints",
			cfg: Config{
				Prefix:     "key/prod/postgres",
				LocalHost:  "h1",
				StatusAddr: ":8080",
			},
			ok: false,
		},
		{
			name: "missing local host",
			cfg: Config{
				KVEndpoints: []string{"127.0.0.1:8500"},
				Prefix:      "key/prod/postgres",
				StatusAddr:  ":8080",
			},
			ok: false,
		},
		{
			name: "complete",
			cfg: Config{
				KVEndpoints: []string{"127.0.0.1:8500"},
				Prefix:      "key/prod/postgres",
				LocalHost:   "h1",
				StatusAddr:  ":8080",
			},
			ok: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err == nil) != tt.ok {
				t.Errorf("Validate() error = %v, want ok=%v", err, tt.ok)
			}
		})
	}
}

func TestFieldErrorMessage(t *testing.T) {
	err := (&Config{}).Validate()
	fe, ok := err.(*FieldError)
	if !ok {
		t.Fatalf("expected *FieldError, got %T", err)
	}
	if fe.Field != "kv-endpoints" {
		t.Errorf("expected first missing field kv-endpoints, got %s", fe.Field)
	}
}
