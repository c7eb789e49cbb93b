package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spf13/pflag"
)

const testRules = `{
  "rules": [
    {
      "id": "package-security",
      "description": "Dependencies must be allowlisted, popular and maintained",
      "conditions": [{"type": "allowlist"}, {"minStars": 1000}]
    }
  ]
}`

const testAllowlist = `{"packages": {"npm": ["axios", "left-pad"]}}`

type fakeAPI struct {
	server   *httptest.Server
	requests atomic.Int64
	auth     atomic.Value
}

func newFakeAPI(t *testing.T) *fakeAPI {
	t.Helper()
	now := time.Now().UTC()
	api := &fakeAPI{}
	api.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		api.requests.Add(1)
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/search/repositories":
			api.auth.Store(r.Header.Get("Authorization"))
			stars := 105000
			if strings.HasPrefix(r.URL.Query().Get("q"), "left-pad ") {
				stars = 420
			}
			_ = json.NewEncoder(w).Encode(map[string]any{
				"items": []map[string]any{{"stargazers_count": stars, "updated_at": now.Format(time.RFC3339)}},
			})
		case "/axios", "/left-pad":
			_ = json.NewEncoder(w).Encode(map[string]any{
				"dist-tags": map[string]string{"latest": "1.0.0"},
				"time":      map[string]string{"1.0.0": now.AddDate(0, -1, 0).Format(time.RFC3339)},
			})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(api.server.Close)
	return api
}

func writeFiles(t *testing.T, rules, allowlist string) (string, string) {
	t.Helper()
	dir := t.TempDir()
	rulesPath := filepath.Join(dir, "cursor.rules.json")
	allowlistPath := filepath.Join(dir, "allowed-packages.json")
	if err := os.WriteFile(rulesPath, []byte(rules), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(allowlistPath, []byte(allowlist), 0o644); err != nil {
		t.Fatal(err)
	}
	return rulesPath, allowlistPath
}

func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func baseArgs(api *fakeAPI, rules, allowlist string) []string {
	return []string{
		"--rules", rules,
		"--allowlist", allowlist,
		"--github-url", api.server.URL,
		"--npm-url", api.server.URL,
	}
}

func TestRunAllPass(t *testing.T) {
	api := newFakeAPI(t)
	rules, allowlist := writeFiles(t, testRules, testAllowlist)

	code, stdout, stderr := runCLI(t, append(baseArgs(api, rules, allowlist), "axios")...)
	if code != 0 {
		t.Fatalf("exit code = %d, stderr:\n%s", code, stderr)
	}
	if !strings.Contains(stdout, "✅ All packages passed security validation") {
		t.Errorf("stdout = %q", stdout)
	}
}

func TestRunFailureGoesToStderr(t *testing.T) {
	api := newFakeAPI(t)
	rules, allowlist := writeFiles(t, testRules, testAllowlist)

	code, stdout, stderr := runCLI(t, append(baseArgs(api, rules, allowlist), "axios", "left-pad", "node-ipc")...)
	if code != 1 {
		t.Fatalf("exit code = %d, want 1", code)
	}
	if stdout != "" {
		t.Errorf("expected empty stdout, got %q", stdout)
	}
	for _, want := range []string{
		"❌ Security validation failed:",
		"  Package: left-pad\n  • Package has fewer than 1000 GitHub stars (420)",
		"  Package: node-ipc\n  • Package 'node-ipc' is not in the allowlist",
	} {
		if !strings.Contains(stderr, want) {
			t.Errorf("stderr missing %q:\n%s", want, stderr)
		}
	}
	if strings.Contains(stderr, "Package: axios") {
		t.Error("passing package must not be reported")
	}
}

func TestRunJSONOutput(t *testing.T) {
	api := newFakeAPI(t)
	rules, allowlist := writeFiles(t, testRules, testAllowlist)

	args := append(baseArgs(api, rules, allowlist), "--output", "json", "--concurrency", "2", "left-pad", "axios")
	code, stdout, _ := runCLI(t, args...)
	if code != 1 {
		t.Fatalf("exit code = %d, want 1", code)
	}

	var report struct {
		Passed   bool `json:"passed"`
		Checked  int  `json:"checked"`
		Failures []struct {
			Package string `json:"package"`
		} `json:"failures"`
	}
	if err := json.Unmarshal([]byte(stdout), &report); err != nil {
		t.Fatalf("stdout is not JSON: %v\n%s", err, stdout)
	}
	if report.Passed || report.Checked != 2 || len(report.Failures) != 1 || report.Failures[0].Package != "left-pad" {
		t.Errorf("unexpected report: %+v", report)
	}
}

func TestRunYAMLOutput(t *testing.T) {
	api := newFakeAPI(t)
	rules, allowlist := writeFiles(t, testRules, testAllowlist)

	code, stdout, _ := runCLI(t, append(baseArgs(api, rules, allowlist), "-o", "yaml", "axios")...)
	if code != 0 {
		t.Fatalf("exit code = %d, want 0", code)
	}
	if !strings.Contains(stdout, "passed: true") {
		t.Errorf("stdout = %q", stdout)
	}
}

func TestRunNoPackages(t *testing.T) {
	api := newFakeAPI(t)
	rules, allowlist := writeFiles(t, testRules, testAllowlist)

	code, stdout, stderr := runCLI(t, baseArgs(api, rules, allowlist)...)
	if code != 1 {
		t.Fatalf("exit code = %d, want 1", code)
	}
	if stdout != "" {
		t.Errorf("expected no report, got %q", stdout)
	}
	if !strings.Contains(stderr, "No packages to validate") {
		t.Errorf("stderr = %q", stderr)
	}
	if n := api.requests.Load(); n != 0 {
		t.Errorf("expected no network calls, got %d", n)
	}
}

func TestRunConfigErrorIsFatal(t *testing.T) {
	api := newFakeAPI(t)
	rules, allowlist := writeFiles(t, `{"rules": [{"conditions": [{"type": "allowlist"}]}]}`, testAllowlist)

	code, stdout, stderr := runCLI(t, append(baseArgs(api, rules, allowlist), "axios")...)
	if code != 1 {
		t.Fatalf("exit code = %d, want 1", code)
	}
	if stdout != "" {
		t.Errorf("expected empty stdout, got %q", stdout)
	}
	if !strings.Contains(stderr, "Error reading rules or allowlist") || !strings.Contains(stderr, "minStars") {
		t.Errorf("stderr = %q", stderr)
	}
	if n := api.requests.Load(); n != 0 {
		t.Errorf("expected no network calls, got %d", n)
	}
}

func TestRunMissingConfig(t *testing.T) {
	dir := t.TempDir()
	code, _, stderr := runCLI(t,
		"--rules", filepath.Join(dir, "cursor.rules.json"),
		"--allowlist", filepath.Join(dir, "allowed-packages.json"),
		"axios")
	if code != 1 {
		t.Fatalf("exit code = %d, want 1", code)
	}
	if !strings.Contains(stderr, "cursor.rules.json") {
		t.Errorf("stderr does not name the missing file: %q", stderr)
	}
}

func TestRunUnsupportedEcosystem(t *testing.T) {
	api := newFakeAPI(t)
	rules, allowlist := writeFiles(t, testRules, testAllowlist)

	code, _, stderr := runCLI(t, append(baseArgs(api, rules, allowlist), "pkg:pypi/requests")...)
	if code != 1 {
		t.Fatalf("exit code = %d, want 1", code)
	}
	if !strings.Contains(stderr, "unsupported ecosystem") {
		t.Errorf("stderr = %q", stderr)
	}
	if n := api.requests.Load(); n != 0 {
		t.Errorf("expected no network calls, got %d", n)
	}
}

func TestRunUnknownOutputFormat(t *testing.T) {
	api := newFakeAPI(t)
	rules, allowlist := writeFiles(t, testRules, testAllowlist)

	code, _, stderr := runCLI(t, append(baseArgs(api, rules, allowlist), "--output", "xml", "axios")...)
	if code != 1 {
		t.Fatalf("exit code = %d, want 1", code)
	}
	if !strings.Contains(stderr, "unknown output format") {
		t.Errorf("stderr = %q", stderr)
	}
}

func TestRunEnvFallbacks(t *testing.T) {
	api := newFakeAPI(t)
	rules, allowlist := writeFiles(t, testRules, testAllowlist)
	t.Setenv("PKGGATE_RULES", rules)
	t.Setenv("PKGGATE_ALLOWLIST", allowlist)
	t.Setenv("GITHUB_TOKEN", "ghp_from_env")

	code, _, stderr := runCLI(t, "--github-url", api.server.URL, "--npm-url", api.server.URL, "axios")
	if code != 0 {
		t.Fatalf("exit code = %d, stderr:\n%s", code, stderr)
	}
	if got, _ := api.auth.Load().(string); got != "Bearer ghp_from_env" {
		t.Errorf("Authorization = %q", got)
	}
}

func TestFlagBeatsEnv(t *testing.T) {
	t.Setenv("PKGGATE_LOG_LEVEL", "debug")

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	level := fs.String("log-level", "info", "")
	if err := fs.Parse([]string{"--log-level", "error"}); err != nil {
		t.Fatal(err)
	}
	if err := applyEnvFallbacks(fs); err != nil {
		t.Fatal(err)
	}
	if *level != "error" {
		t.Errorf("log-level = %q, want flag value", *level)
	}

	fs = pflag.NewFlagSet("test", pflag.ContinueOnError)
	level = fs.String("log-level", "info", "")
	if err := applyEnvFallbacks(fs); err != nil {
		t.Fatal(err)
	}
	if *level != "debug" {
		t.Errorf("log-level = %q, want env value", *level)
	}
}

func TestValidateConfigCommand(t *testing.T) {
	rules, allowlist := writeFiles(t, testRules, testAllowlist)

	code, stdout, stderr := runCLI(t, "validate-config", "--rules", rules, "--allowlist", allowlist)
	if code != 0 {
		t.Fatalf("exit code = %d, stderr:\n%s", code, stderr)
	}
	if !strings.Contains(stdout, "minStars=1000") || !strings.Contains(stdout, "(2 npm packages)") {
		t.Errorf("stdout = %q", stdout)
	}

	bad, _ := writeFiles(t, `rules: nope`, testAllowlist)
	if code, _, _ := runCLI(t, "validate-config", "--rules", bad, "--allowlist", allowlist); code != 1 {
		t.Errorf("exit code = %d for invalid rules, want 1", code)
	}
}

func TestRootCommandWiring(t *testing.T) {
	root := newRootCmd(&bytes.Buffer{}, &bytes.Buffer{})
	cmd, _, err := root.Find([]string{"validate-config"})
	if err != nil || cmd.Name() != "validate-config" {
		t.Fatalf("validate-config not found: %v", err)
	}
	for _, name := range []string{"rules", "allowlist", "github-token", "github-url", "npm-url", "timeout", "retries", "circuit-breaker", "concurrency", "output", "log-level", "log-format"} {
		if root.Flags().Lookup(name) == nil && root.PersistentFlags().Lookup(name) == nil {
			t.Errorf("flag --%s not registered", name)
		}
	}
}

func TestRunNoPackagesStructuredOutput(t *testing.T) {
	api := newFakeAPI(t)
	rules, allowlist := writeFiles(t, testRules, testAllowlist)

	for _, format := range []string{"json", "yaml"} {
		code, stdout, stderr := runCLI(t, append(baseArgs(api, rules, allowlist), "--output", format)...)
		if code != 1 {
			t.Errorf("%s: exit code = %d, want 1", format, code)
		}
		if stdout != "" {
			t.Errorf("%s: expected no report document, got %q", format, stdout)
		}
		if !strings.Contains(stderr, "No packages to validate") {
			t.Errorf("%s: stderr = %q", format, stderr)
		}
	}
}
