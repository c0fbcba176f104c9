package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestResolveProfile(t *testing.T) {
	tempA := 0.5
	tempB := 0.7

	s := &Settings{
		Models: map[string]ModelProfile{
			"base": {
				Temperature: &tempA,
				Encoding:    strPtr("o200k_base"),
				ExtraBody: map[string]interface{}{
					"param1": "value1",
					"nested": map[string]interface{}{
						"a": 1,
						"b": 2,
					},
				},
			},
			"child": {
				Extend:      strPtr("base"),
				Model:       strPtr("o1-preview"),
				Temperature: &tempB,
				ExtraBody: map[string]interface{}{
					"param2": "value2",
					"nested": map[string]interface{}{
						"b": 3,
						"c": 4,
					},
				},
			},
			"grandchild": {
				Extend: strPtr("child"),
				ExtraBody: map[string]interface{}{
					"param3": "value3",
				},
			},
			"cycle-a": {Extend: strPtr("cycle-b")},
			"cycle-b": {Extend: strPtr("cycle-a")},
		},
	}

	t.Run("Base Profile", func(t *testing.T) {
		res, err := s.Resolve("base")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if *res.Temperature != tempA {
			t.Errorf("expected temp %v, got %v", tempA, *res.Temperature)
		}
		if res.UpstreamModel("base") != "base" {
			t.Errorf("expected upstream model to default to the profile name, got %q", res.UpstreamModel("base"))
		}
	})

	t.Run("Child Profile", func(t *testing.T) {
		res, err := s.Resolve("child")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if *res.Temperature != tempB {
			t.Errorf("expected temp %v, got %v", tempB, *res.Temperature)
		}
		if res.UpstreamModel("child") != "o1-preview" {
			t.Errorf("expected upstream o1-preview, got %q", res.UpstreamModel("child"))
		}
		if *res.Encoding != "o200k_base" {
			t.Errorf("expected inherited encoding, got %v", *res.Encoding)
		}

		nested := res.ExtraBody["nested"].(map[string]interface{})
		if nested["a"] != 1 || nested["b"] != 3 || nested["c"] != 4 {
			t.Errorf("unexpected nested merge result: %v", nested)
		}
	})

	t.Run("Grandchild Profile", func(t *testing.T) {
		res, err := s.Resolve("grandchild")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.ExtraBody["param1"] != "value1" || res.ExtraBody["param3"] != "value3" {
			t.Errorf("expected inherited and own params, got %v", res.ExtraBody)
		}
		if res.UpstreamModel("grandchild") != "o1-preview" {
			t.Errorf("expected inherited upstream model, got %q", res.UpstreamModel("grandchild"))
		}
	})

	t.Run("Unknown Model", func(t *testing.T) {
		res, err := s.Resolve("gpt-4o")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.UpstreamModel("gpt-4o") != "gpt-4o" {
			t.Errorf("expected passthrough, got %q", res.UpstreamModel("gpt-4o"))
		}
	})

	t.Run("Circular Dependency", func(t *testing.T) {
		if _, err := s.Resolve("cycle-a"); err == nil {
			t.Fatal("expected error for circular dependency, got nil")
		}
	})

	t.Run("Encodings", func(t *testing.T) {
		enc := s.Encodings()
		if enc["child"] != "o200k_base" || enc["o1-preview"] != "o200k_base" {
			t.Errorf("unexpected encodings map: %v", enc)
		}
		if _, ok := enc["cycle-a"]; ok {
			t.Error("cyclic profiles must not contribute encodings")
		}
	})
}

func TestLoadSettings(t *testing.T) {
	t.Run("Missing File", func(t *testing.T) {
		s, err := LoadSettings(filepath.Join(t.TempDir(), "nope.yaml"), nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if s.RefreshInterval() != time.Second/DefaultRefreshPerSecond {
			t.Errorf("unexpected default refresh interval %v", s.RefreshInterval())
		}
		maxFile, maxTotal, skel := s.ContextLimits()
		if maxFile != DefaultMaxFileKB*1024 || maxTotal != DefaultMaxTotalKB*1024 || !skel {
			t.Errorf("unexpected default context limits %d %d %v", maxFile, maxTotal, skel)
		}
	})

	t.Run("Aliases And Limits", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "settings.yaml")
		os.WriteFile(path, []byte(`
api_base: http://localhost:8080/v1/
refresh_per_second: 10
timeout: 30
context:
  max_file_kb: 4
  skeletonize: false
models:
  reasoning:
    model: o1-preview
    encoding: o200k_base
    aliases: [r, reasoning]
`), 0o644)

		t.Setenv("OPENAI_API_BASE", "")
		s, err := LoadSettings(path, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if s.APIBaseURL() != "http://localhost:8080/v1" {
			t.Errorf("expected trimmed api base, got %q", s.APIBaseURL())
		}
		if s.RefreshInterval() != 100*time.Millisecond {
			t.Errorf("expected 100ms, got %v", s.RefreshInterval())
		}
		if s.RequestTimeout() != 30*time.Second {
			t.Errorf("expected 30s, got %v", s.RequestTimeout())
		}
		maxFile, _, skel := s.ContextLimits()
		if maxFile != 4096 || skel {
			t.Errorf("unexpected context limits %d %v", maxFile, skel)
		}

		res, err := s.Resolve("r")
		if err != nil {
			t.Fatalf("resolve alias: %v", err)
		}
		if res.UpstreamModel("r") != "o1-preview" {
			t.Errorf("alias should resolve to o1-preview, got %q", res.UpstreamModel("r"))
		}
	})

	t.Run("Invalid YAML", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "settings.yaml")
		os.WriteFile(path, []byte("models: [unterminated"), 0o644)
		if _, err := LoadSettings(path, nil); err == nil {
			t.Fatal("expected parse error")
		}
	})

	t.Run("Env Overrides API Base", func(t *testing.T) {
		t.Setenv("OPENAI_API_BASE", "http://env/v1/")
		s := &Settings{APIBase: "http://file/v1"}
		if s.APIBaseURL() != "http://env/v1" {
			t.Errorf("expected env api base, got %q", s.APIBaseURL())
		}
	})
}

func TestParseLogLevel(t *testing.T) {
	for in, want := range map[string]string{"": "WARN", "trace": "DEBUG-4", "Debug": "DEBUG", " info ": "INFO", "error": "ERROR"} {
		lvl, err := ParseLogLevel(in)
		if err != nil {
			t.Errorf("%q: unexpected error %v", in, err)
			continue
		}
		if lvl.String() != want {
			t.Errorf("%q: expected %s, got %s", in, want, lvl)
		}
	}
	if _, err := ParseLogLevel("loud"); err == nil {
		t.Error("expected error for unknown level")
	}
}

func strPtr(s string) *string { return &s }
