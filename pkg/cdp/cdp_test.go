package cdp

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
)

func TestFrameIsEvent(t *testing.T) {
	cases := []struct {
		raw   string
		event bool
	}{
		{`{"id":3,"result":{}}`, false},
		{`{"id":3,"error":{"code":-32000,"message":"boom"}}`, false},
		{`{"method":"Network.requestWillBeSent","params":{}}`, true},
		{`{"method":"Page.loadEventFired"}`, true},
	}

	for _, tc := range cases {
		var f Frame
		if err := json.Unmarshal([]byte(tc.raw), &f); err != nil {
			t.Fatalf("unmarshal %s: %v", tc.raw, err)
		}
		if f.IsEvent() != tc.event {
			t.Errorf("IsEvent(%s) = %v, want %v", tc.raw, f.IsEvent(), tc.event)
		}
	}
}

func TestMethodDomain(t *testing.T) {
	if got := MethodDomain("Network.requestWillBeSent"); got != "Network" {
		t.Fatalf("MethodDomain = %q", got)
	}
	if got := MethodDomain("Browser.getVersion"); got != "Browser" {
		t.Fatalf("MethodDomain = %q", got)
	}
	if got := MethodDomain("noprefix"); got != "" {
		t.Fatalf("MethodDomain without prefix = %q", got)
	}
	if got := MethodDomain(".leadingDot"); got != "" {
		t.Fatalf("MethodDomain with leading dot = %q", got)
	}
}

func TestDomainErrorUnwrapsToUnavailable(t *testing.T) {
	err := &DomainError{Domain: "Fetch", Err: fmt.Errorf("enable failed")}
	if !errors.Is(err, ErrDomainUnavailable) {
		t.Fatal("DomainError should unwrap to ErrDomainUnavailable")
	}

	var domErr *DomainError
	wrapped := fmt.Errorf("dispatch: %w", err)
	if !errors.As(wrapped, &domErr) || domErr.Domain != "Fetch" {
		t.Fatalf("errors.As failed to recover the DomainError: %v", wrapped)
	}
}

func TestCommandErrorCarriesPayloadVerbatim(t *testing.T) {
	err := &CommandError{
		Method:  "Runtime.evaluate",
		Payload: ErrorPayload{Code: -32602, Message: "Invalid parameters"},
	}

	if !IsProtocolError(err) {
		t.Fatal("CommandError should classify as a protocol error")
	}
	if IsProtocolError(ErrCommandTimeout) {
		t.Fatal("a timeout is not a protocol error")
	}

	var cmdErr *CommandError
	if !errors.As(fmt.Errorf("wrapped: %w", err), &cmdErr) {
		t.Fatal("errors.As failed to recover the CommandError")
	}
	if cmdErr.Payload.Code != -32602 || cmdErr.Payload.Message != "Invalid parameters" {
		t.Fatalf("payload mutated: %+v", cmdErr.Payload)
	}
}

func TestIsRetryable(t *testing.T) {
	for _, err := range []error{ErrPoolExhausted, ErrCommandTimeout, ErrTransportDead} {
		if !IsRetryable(err) {
			t.Errorf("%v should be retryable", err)
		}
	}
	for _, err := range []error{ErrBridgeClosed, ErrDomainUnavailable, nil} {
		if IsRetryable(err) {
			t.Errorf("%v should not be retryable", err)
		}
	}
}

func TestTierFor(t *testing.T) {
	if TierFor("Log", nil) != RiskLow {
		t.Fatal("Log should default to low risk")
	}
	if TierFor("Fetch", nil) != RiskHigh {
		t.Fatal("Fetch should default to high risk")
	}
	if TierFor("SomethingNew", nil) != RiskMedium {
		t.Fatal("unknown domains should default to medium risk")
	}
	overrides := map[string]RiskTier{"Log": RiskHigh}
	if TierFor("Log", overrides) != RiskHigh {
		t.Fatal("override should take precedence over the default")
	}
}

func TestDomainStateString(t *testing.T) {
	want := map[DomainState]string{
		DomainDisabled:     "disabled",
		DomainActivating:   "activating",
		DomainActive:       "active",
		DomainDeactivating: "deactivating",
	}
	for state, s := range want {
		if state.String() != s {
			t.Errorf("state %d = %q, want %q", state, state.String(), s)
		}
	}
}
