package types

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"
)

const testSecret = "twilio-auth-token-12345"

func TestSecretString_Redacts(t *testing.T) {
	s := SecretString(testSecret)

	for _, out := range []string{s.String(), fmt.Sprintf("%s", s), fmt.Sprintf("%v", s)} {
		if strings.Contains(out, testSecret) {
			t.Errorf("formatted output leaked the raw secret: %q", out)
		}
	}
}

func TestSecretString_MarshalJSON(t *testing.T) {
	payload := struct {
		Token SecretString `json:"token"`
	}{Token: SecretString(testSecret)}

	b, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if strings.Contains(string(b), testSecret) {
		t.Errorf("JSON leaked the raw secret: %s", b)
	}
	if string(b) != `{"token":"***REDACTED***"}` {
		t.Errorf("JSON = %s", b)
	}
}

func TestSecretString_Unmask(t *testing.T) {
	s := SecretString(testSecret)
	if s.Unmask() != testSecret {
		t.Errorf("Unmask() = %q, want raw value", s.Unmask())
	}
	if !s.IsSet() {
		t.Error("IsSet() should be true")
	}
	if SecretString("").IsSet() {
		t.Error("empty secret should not be set")
	}
}
