package secrets

import (
	"strings"
	"testing"
)

func TestRedactJSONNested(t *testing.T) {
	in := []byte(`{"appName":"demo","firebase":{"apiKey":"AIza-real","projectId":"p1"},"endpoints":[{"url":"https://x","authToken":"tok"}]}`)
	out, changed, err := RedactJSON(in)
	if err != nil {
		t.Fatalf("redact: %v", err)
	}
	if !changed {
		t.Fatalf("expected redaction")
	}
	s := string(out)
	if strings.Contains(s, "AIza-real") || strings.Contains(s, `"tok"`) {
		t.Fatalf("credential survived redaction: %s", s)
	}
	if !strings.Contains(s, `"projectId":"p1"`) || !strings.Contains(s, `"appName":"demo"`) {
		t.Fatalf("non-sensitive values must survive: %s", s)
	}
}

func TestRedactJSONUntouched(t *testing.T) {
	in := []byte(`{"appName":"demo","color":"#fff"}`)
	out, changed, err := RedactJSON(in)
	if err != nil {
		t.Fatalf("redact: %v", err)
	}
	if changed {
		t.Fatalf("nothing to redact, payload must pass through")
	}
	if string(out) != string(in) {
		t.Fatalf("payload rewritten without need")
	}
}

func TestRedactJSONMalformed(t *testing.T) {
	in := []byte(`{broken`)
	out, changed, err := RedactJSON(in)
	if err == nil || changed {
		t.Fatalf("expected parse error, got changed=%v err=%v", changed, err)
	}
	if string(out) != string(in) {
		t.Fatalf("malformed input must be returned unchanged")
	}
}

func TestSensitiveKey(t *testing.T) {
	for _, key := range []string{"apiKey", "API_KEY", "authToken", "dbPassword", "clientSecret", "private_key_pem"} {
		if !SensitiveKey(key) {
			t.Errorf("%s should be sensitive", key)
		}
	}
	for _, key := range []string{"appName", "url", "theme", "projectId"} {
		if SensitiveKey(key) {
			t.Errorf("%s should not be sensitive", key)
		}
	}
}
