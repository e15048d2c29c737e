package cex

import (
	"strings"
	"testing"
)

type stubVenue struct {
	Venue
	name string
}

func (v stubVenue) Name() string { return v.name }

func TestFactorySelectsRegistered(t *testing.T) {
	Register("test-venue", func(creds Credentials) (Venue, error) {
		if creds.APIKey != "k" {
			t.Errorf("creds not forwarded: %+v", creds)
		}
		return stubVenue{name: "test-venue"}, nil
	})
	v, err := New("test-venue", Credentials{APIKey: "k"})
	if err != nil {
		t.Fatal(err)
	}
	if v.Name() != "test-venue" {
		t.Fatalf("name = %s", v.Name())
	}
}

func TestFactoryUnknownPlatform(t *testing.T) {
	_, err := New("no-such-exchange", Credentials{})
	if err == nil {
		t.Fatal("expected error for unknown platform")
	}
	if !strings.Contains(err.Error(), "no-such-exchange") {
		t.Fatalf("error should name the platform: %v", err)
	}
}
