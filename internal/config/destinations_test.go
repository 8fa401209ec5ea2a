package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestLoadDestinations(t *testing.T) {
	path := writeFile(t, t.TempDir(), "pages.json", `[
		{"page_id": "111", "page_name": "Page One", "access_token": "tok1"},
		{"page_id": " 222 ", "page_name": "Page Two"}
	]`)

	core, logs := observer.New(zap.InfoLevel)
	dests, err := LoadDestinations(path, zap.New(core))
	if err != nil {
		t.Fatalf("LoadDestinations() error = %v", err)
	}

	if len(dests) != 2 {
		t.Fatalf("len = %d, want 2", len(dests))
	}
	if dests[0].ID != "111" || dests[0].Name != "Page One" || dests[0].AccessToken != "tok1" {
		t.Errorf("dests[0] = %+v", dests[0])
	}
	if dests[1].ID != "222" {
		t.Errorf("dests[1].ID = %q, want trimmed 222", dests[1].ID)
	}
	if got := DestinationIDs(dests); strings.Join(got, ",") != "111,222" {
		t.Errorf("DestinationIDs() = %v", got)
	}

	if n := logs.FilterMessage("destination").Len(); n != 2 {
		t.Errorf("logged %d destinations, want 2", n)
	}
	for _, entry := range logs.All() {
		for _, f := range entry.Context {
			if f.String == "tok1" {
				t.Error("access token must not be logged")
			}
		}
	}
}

func TestLoadDestinationsErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"not json", `{{`, "expected a JSON list"},
		{"object not list", `{"page_id": "1"}`, "expected a JSON list"},
		{"empty list", `[]`, "no destinations"},
		{"missing page_id", `[{"page_name": "x"}]`, "'page_id'"},
		{"missing page_name", `[{"page_id": "1"}]`, "'page_name'"},
		{"blank page_name", `[{"page_id": "1", "page_name": "  "}]`, "'page_name'"},
		{"duplicate id", `[{"page_id": "1", "page_name": "a"}, {"page_id": "1", "page_name": "b"}]`, "duplicate"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, t.TempDir(), "pages.json", tt.content)

			_, err := LoadDestinations(path, nil)
			var cerr *ConfigError
			if !errors.As(err, &cerr) {
				t.Fatalf("error = %v, want *ConfigError", err)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %q, want to contain %q", err, tt.want)
			}
		})
	}
}

func TestLoadDestinationsMissingFile(t *testing.T) {
	_, err := LoadDestinations(filepath.Join(t.TempDir(), "absent.json"), nil)

	var cerr *ConfigError
	if !errors.As(err, &cerr) {
		t.Fatalf("error = %v, want *ConfigError", err)
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("error should wrap os.ErrNotExist, got %v", err)
	}
}

func TestEmptyListIsErrNoDestinations(t *testing.T) {
	path := writeFile(t, t.TempDir(), "pages.json", `[]`)
	_, err := LoadDestinations(path, nil)
	if !errors.Is(err, ErrNoDestinations) {
		t.Errorf("error = %v, want ErrNoDestinations", err)
	}
}

func TestDestinationStringOmitsToken(t *testing.T) {
	d := Destination{ID: "1", Name: "n", AccessToken: "secret"}
	if strings.Contains(d.String(), "secret") {
		t.Errorf("String() leaks token: %q", d.String())
	}
}
