package interview

import (
	"errors"
	"fmt"
	"testing"
)

func TestClassifyUnwrapsSentinels(t *testing.T) {
	cases := []struct {
		err  error
		want FailureKind
	}{
		{nil, FailureNone},
		{ErrPermissionDenied, FailurePermissionDenied},
		{fmt.Errorf("open device: %w", ErrNoDevice), FailureNoDevice},
		{fmt.Errorf("start capture: %w", ErrDeviceBusy), FailureDeviceBusy},
		{fmt.Errorf("mint token: %w", ErrBadCredential), FailureBadCredential},
		{fmt.Errorf("dial: %w", ErrAuthRequired), FailureAuthRequired},
		{errors.New("something else"), FailureUnknown},
	}
	for _, c := range cases {
		if got := Classify(c.err); got != c.want {
			t.Fatalf("Classify(%v) = %s, want %s", c.err, got, c.want)
		}
	}
}

func TestRemediationIsSpecificPerKind(t *testing.T) {
	kinds := []FailureKind{
		FailurePermissionDenied,
		FailureNoDevice,
		FailureDeviceBusy,
		FailureBadCredential,
		FailureAuthRequired,
	}
	seen := map[string]FailureKind{}
	for _, k := range kinds {
		msg := Remediation(k, nil)
		if msg == "" {
			t.Fatalf("no message for %s", k)
		}
		if prev, dup := seen[msg]; dup {
			t.Fatalf("%s and %s share a message", prev, k)
		}
		seen[msg] = k
	}
	if got := Remediation(FailureNone, nil); got != "" {
		t.Fatalf("message for no failure: %q", got)
	}
}
