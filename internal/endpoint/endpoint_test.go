// ABOUTME: Tests for endpoint validation invariants
package endpoint

import "testing"

func TestValidateRequiresAtLeastOneDescriptor(t *testing.T) {
	e := Endpoint{ID: "bare"}
	if err := e.Validate(); err == nil {
		t.Error("expected error for endpoint with no descriptors")
	}
}

func TestValidateAcceptsLocalOnly(t *testing.T) {
	e := Endpoint{ID: "kitchen", Local: &LocalAddress{Host: "192.168.1.5", Port: 8927, Path: "/ws"}}
	if err := e.Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestRemoteHandleValidation(t *testing.T) {
	valid := RemoteHandle("ABCDEFGHIJKLMNOPQRSTUVWXYZ")
	if len(valid) != 26 {
		t.Fatalf("test fixture itself is wrong length: %d", len(valid))
	}
	if !valid.Valid() {
		t.Error("expected 26-char upper-case alphanumeric handle to validate")
	}

	cases := []RemoteHandle{
		"",
		"tooshort",
		"abcdefghijklmnopqrstuvwxyz", // lower-case
		"ABCDEFGHIJKLMNOPQRSTUVWXY!", // symbol
		"ABCDEFGHIJKLMNOPQRSTUVWXYZA", // 27 chars
	}
	for _, c := range cases {
		if c.Valid() {
			t.Errorf("handle %q should not validate", c)
		}
	}
}

func TestValidateRejectsMalformedRemoteHandle(t *testing.T) {
	e := Endpoint{ID: "bad-remote", Remote: "not-valid"}
	if err := e.Validate(); err == nil {
		t.Error("expected error for malformed remote handle")
	}
}

func TestHasDescriptorHelpers(t *testing.T) {
	e := Endpoint{
		ID:    "full",
		Local: &LocalAddress{Host: "h", Port: 1, Path: "/"},
		Proxy: &ProxyDescriptor{URL: "wss://proxy.example.com", Auth: ProxyAuth{BearerToken: "tok"}},
	}
	if !e.HasLocal() || e.HasRemote() || !e.HasProxy() {
		t.Errorf("descriptor flags wrong: local=%v remote=%v proxy=%v", e.HasLocal(), e.HasRemote(), e.HasProxy())
	}
	if !e.Proxy.Auth.HasBearer() {
		t.Error("expected bearer auth")
	}
}
