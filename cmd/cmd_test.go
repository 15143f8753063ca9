package cmd

import (
	"bytes"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/zalando/go-keyring"

	"github.com/limberduck/tsccm/internal/credential"
	"github.com/limberduck/tsccm/internal/projector"
	"github.com/limberduck/tsccm/internal/tenablesc"
)

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

const baseConfig = "username: admin\nsecret_store: \"off\"\ntimezone: UTC\n"

func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	c.PersistentFlags().VisitAll(reset)
	c.Flags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

func runWithArgs(t *testing.T, args ...string) (code int, stdout, stderr string) {
	t.Helper()
	resetFlags(rootCmd)
	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(args)
	defer func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	}()
	code = Execute()
	return code, out.String(), errOut.String()
}

type scriptedPrompter struct{ secrets, lines []string }

func (p *scriptedPrompter) Secret(string) (string, error) {
	if len(p.secrets) == 0 {
		return "", credential.ErrAborted
	}
	s := p.secrets[0]
	p.secrets = p.secrets[1:]
	return s, nil
}

func (p *scriptedPrompter) Line(string) (string, error) {
	if len(p.lines) == 0 {
		return "", credential.ErrAborted
	}
	s := p.lines[0]
	p.lines = p.lines[1:]
	return s, nil
}

func usePrompter(t *testing.T, p credential.Prompter) {
	t.Helper()
	old := newPrompter
	newPrompter = func(*cobra.Command) credential.Prompter { return p }
	t.Cleanup(func() { newPrompter = old })
}

// mockSC is a minimal Tenable.sc REST API. Logins from the host "localhost" are rejected.
type mockSC struct {
	responses map[string]any
	gets      atomic.Int32
	logouts   atomic.Int32
	port      string
}

func newMockSC(t *testing.T, responses map[string]any) *mockSC {
	t.Helper()
	m := &mockSC{responses: responses}
	write := func(w http.ResponseWriter, status int, response any, code int, msg string) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"type": "regular", "response": response, "error_code": code, "error_msg": msg,
		})
	}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /rest/token", func(w http.ResponseWriter, r *http.Request) {
		var req tenablesc.LoginRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		host, _, _ := net.SplitHostPort(r.Host)
		if req.Password != "good" || host == "localhost" {
			write(w, http.StatusForbidden, nil, 74, "Invalid login credentials.")
			return
		}
		write(w, http.StatusOK, map[string]any{"token": 99}, 0, "")
	})
	mux.HandleFunc("DELETE /rest/token", func(w http.ResponseWriter, _ *http.Request) {
		m.logouts.Add(1)
		write(w, http.StatusOK, nil, 0, "")
	})
	mux.HandleFunc("GET /rest/{endpoint}", func(w http.ResponseWriter, r *http.Request) {
		m.gets.Add(1)
		resp, ok := m.responses[r.PathValue("endpoint")]
		if !ok {
			write(w, http.StatusOK, nil, 146, "Invalid resource")
			return
		}
		write(w, http.StatusOK, resp, 0, "")
	})
	server := httptest.NewTLSServer(mux)
	t.Cleanup(server.Close)
	u, _ := url.Parse(server.URL)
	_, m.port, _ = net.SplitHostPort(u.Host)
	return m
}

var userList = []any{
	map[string]any{
		"id": "4", "username": "bob", "firstname": "Bob", "lastname": "B",
		"role":        map[string]any{"id": "2", "name": "Security Manager"},
		"createdTime": "1600000000", "modifiedTime": "1600000000", "lastLogin": "0",
		"locked": "0", "failedLogins": "0",
	},
}

func TestExecute_Version(t *testing.T) {
	path := writeTempConfig(t, baseConfig)
	code, out, _ := runWithArgs(t, "--config", path, "version")
	if code != 0 {
		t.Errorf("Execute() = %d, want 0", code)
	}
	if !strings.Contains(out, "tsccm v.dev") {
		t.Errorf("output = %q", out)
	}
}

func TestExecute_VersionCheckOffline(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	defer server.Close()
	path := writeTempConfig(t, baseConfig+"update_url: "+server.URL+"\n")
	code, out, _ := runWithArgs(t, "--config", path, "version", "--check")
	if code != 0 {
		t.Errorf("Execute() = %d, want 0", code)
	}
	if !strings.Contains(out, "Could not check for updates") {
		t.Errorf("output = %q", out)
	}
}

func TestExecute_LoadConfigFails(t *testing.T) {
	code, _, _ := runWithArgs(t, "--config", t.TempDir(), "version")
	if code != 2 {
		t.Errorf("Execute() = %d, want 2", code)
	}
}

func TestExecute_UnknownCommand(t *testing.T) {
	path := writeTempConfig(t, baseConfig)
	code, _, _ := runWithArgs(t, "--config", path, "nonexistent")
	if code != 1 {
		t.Errorf("Execute() = %d, want 1", code)
	}
}

func TestExecute_BadFlag(t *testing.T) {
	path := writeTempConfig(t, baseConfig)
	code, _, _ := runWithArgs(t, "--config", path, "user", "--nope")
	if code != 2 {
		t.Errorf("Execute() = %d, want 2", code)
	}
}

func TestExecute_InvalidFormat(t *testing.T) {
	m := newMockSC(t, nil)
	path := writeTempConfig(t, baseConfig)
	code, _, stderr := runWithArgs(t, "--config", path, "-a", "127.0.0.1", "--port", m.port, "-k", "-p", "good", "-f", "yaml", "user", "--list")
	if code != 2 {
		t.Errorf("Execute() = %d, want 2", code)
	}
	if !strings.Contains(stderr, "format must be one of") {
		t.Errorf("stderr = %q", stderr)
	}
	if m.gets.Load() != 0 {
		t.Error("invalid config must not reach the server")
	}
}

func TestUserList_Table(t *testing.T) {
	m := newMockSC(t, map[string]any{"user": userList})
	path := writeTempConfig(t, baseConfig)
	code, out, stderr := runWithArgs(t, "--config", path, "-a", "127.0.0.1", "--port", m.port, "-k", "-p", "good", "user", "--list")
	if code != 0 {
		t.Fatalf("Execute() = %d, stderr = %q", code, stderr)
	}
	for _, want := range []string{"127.0.0.1", "roleName", "Security Manager", "2020-09-13 12:26:40", "1970-01-01 00:00:00"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if m.logouts.Load() != 1 {
		t.Errorf("logouts = %d, want 1", m.logouts.Load())
	}
}

func TestUserList_JSON(t *testing.T) {
	m := newMockSC(t, map[string]any{"user": userList})
	path := writeTempConfig(t, baseConfig)
	code, out, _ := runWithArgs(t, "--config", path, "-a", "127.0.0.1", "--port", m.port, "-k", "-p", "good", "-f", "json", "user", "--list")
	if code != 0 {
		t.Fatalf("Execute() = %d", code)
	}
	host, body, _ := strings.Cut(out, "\n")
	if host != "127.0.0.1" {
		t.Errorf("first line = %q, want target address", host)
	}
	var got []map[string]any
	if err := json.Unmarshal([]byte(body), &got); err != nil {
		t.Fatalf("decode %q: %v", body, err)
	}
	if len(got) != 1 || got[0]["roleName"] != "Security Manager" || got[0]["lastLogin"] != "1970-01-01 00:00:00" {
		t.Errorf("records = %v", got)
	}
}

func TestScanList_EmptyJSON(t *testing.T) {
	m := newMockSC(t, map[string]any{"scan": map[string]any{"usable": []any{}, "manageable": []any{}}})
	path := writeTempConfig(t, baseConfig)
	code, out, _ := runWithArgs(t, "--config", path, "-a", "127.0.0.1", "--port", m.port, "-k", "-p", "good", "-f", "json", "scan", "--list")
	if code != 0 {
		t.Fatalf("Execute() = %d", code)
	}
	if out != "127.0.0.1\n[]\n" {
		t.Errorf("output = %q", out)
	}
}

func TestScanList_EmptyTable(t *testing.T) {
	m := newMockSC(t, map[string]any{"scan": map[string]any{"usable": []any{}}})
	path := writeTempConfig(t, baseConfig)
	code, out, _ := runWithArgs(t, "--config", path, "-a", "127.0.0.1", "--port", m.port, "-k", "-p", "good", "scan", "--list")
	if code != 0 {
		t.Fatalf("Execute() = %d", code)
	}
	if !strings.Contains(out, "scheduleNextRun") {
		t.Errorf("header missing:\n%s", out)
	}
}

func TestGroup_NoOption(t *testing.T) {
	m := newMockSC(t, map[string]any{"group": []any{}})
	path := writeTempConfig(t, baseConfig)
	code, out, _ := runWithArgs(t, "--config", path, "-a", "127.0.0.1", "--port", m.port, "-k", "-p", "good", "group")
	if code != 0 {
		t.Fatalf("Execute() = %d", code)
	}
	if strings.TrimSpace(out) != noOptionGiven {
		t.Errorf("output = %q", out)
	}
	if m.gets.Load() != 0 {
		t.Errorf("fetches = %d, want 0", m.gets.Load())
	}
	if m.logouts.Load() != 1 {
		t.Error("session not closed")
	}
}

func TestServerIPs_CSV(t *testing.T) {
	m := newMockSC(t, map[string]any{"status": map[string]any{"jobd": "Running", "licensedIPs": "512", "activeIPs": "100"}})
	path := writeTempConfig(t, baseConfig)
	code, out, _ := runWithArgs(t, "--config", path, "-a", "127.0.0.1", "--port", m.port, "-k", "-p", "good", "-f", "csv", "server", "--ips")
	if code != 0 {
		t.Fatalf("Execute() = %d", code)
	}
	want := "127.0.0.1\n#,licensedIPs,activeIPs,leftIPs,leftIPsPercent\n1,512,100,412,80\n"
	if out != want {
		t.Errorf("output = %q, want %q", out, want)
	}
}

func TestServer_ExclusiveFlags(t *testing.T) {
	path := writeTempConfig(t, baseConfig)
	code, _, _ := runWithArgs(t, "--config", path, "server", "--status", "--ips")
	if code == 0 {
		t.Error("expected failure for mutually exclusive flags")
	}
}

func TestRawFormat(t *testing.T) {
	m := newMockSC(t, map[string]any{"role": []any{map[string]any{"id": "1", "name": "Administrator", "extra": map[string]any{"a": 1}}}})
	path := writeTempConfig(t, baseConfig)
	code, out, _ := runWithArgs(t, "--config", path, "-a", "127.0.0.1", "--port", m.port, "-k", "-p", "good", "-f", "raw", "role", "--list")
	if code != 0 {
		t.Fatalf("Execute() = %d", code)
	}
	if !strings.Contains(out, `"extra"`) {
		t.Errorf("raw output lost unprojected field:\n%s", out)
	}
}

func TestFailureIsolation(t *testing.T) {
	m := newMockSC(t, map[string]any{"user": userList})
	path := writeTempConfig(t, baseConfig)
	code, out, stderr := runWithArgs(t, "--config", path, "-a", "localhost", "-a", "127.0.0.1", "--port", m.port, "-k", "-p", "good", "-f", "json", "user", "--list")
	if code != 1 {
		t.Errorf("Execute() = %d, want 1", code)
	}
	if !strings.Contains(stderr, "Can't login to Tenable.sc API via localhost with supplied credentials") {
		t.Errorf("stderr = %q", stderr)
	}
	if !strings.Contains(out, "127.0.0.1") || !strings.Contains(out, "Security Manager") {
		t.Errorf("second target not processed:\n%s", out)
	}
	if !strings.Contains(stderr, "1 of 2 targets failed: localhost") {
		t.Errorf("summary missing: %q", stderr)
	}
}

func TestConnectError(t *testing.T) {
	path := writeTempConfig(t, baseConfig)
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	_, port, _ := net.SplitHostPort(l.Addr().String())
	_ = l.Close()
	code, _, stderr := runWithArgs(t, "--config", path, "-a", "127.0.0.1", "--port", port, "-k", "-p", "good", "user", "--list")
	if code != 1 {
		t.Errorf("Execute() = %d, want 1", code)
	}
	if !strings.Contains(stderr, "Can't reach Tenable.sc API via 127.0.0.1. Please check your connection.") {
		t.Errorf("stderr = %q", stderr)
	}
}

func TestCredentialSavedOnlyAfterLogin(t *testing.T) {
	keyring.MockInit()
	m := newMockSC(t, map[string]any{"group": []any{}})
	path := writeTempConfig(t, "username: admin\nsecret_store: \"on\"\ntimezone: UTC\n")

	usePrompter(t, &scriptedPrompter{secrets: []string{"wrong", "wrong"}})
	code, _, _ := runWithArgs(t, "--config", path, "-a", "127.0.0.1", "--port", m.port, "-k", "group", "--list")
	if code != 1 {
		t.Fatalf("Execute() = %d, want 1", code)
	}
	if _, err := keyring.Get("127.0.0.1", "admin"); !errors.Is(err, keyring.ErrNotFound) {
		t.Fatalf("rejected password was stored: %v", err)
	}

	usePrompter(t, &scriptedPrompter{secrets: []string{"good", "good"}})
	code, _, _ = runWithArgs(t, "--config", path, "-a", "127.0.0.1", "--port", m.port, "-k", "group", "--list")
	if code != 0 {
		t.Fatalf("Execute() = %d, want 0", code)
	}
	if got, err := keyring.Get("127.0.0.1", "admin"); err != nil || got != "good" {
		t.Fatalf("stored = %q, %v", got, err)
	}

	usePrompter(t, &scriptedPrompter{})
	code, _, _ = runWithArgs(t, "--config", path, "-a", "127.0.0.1", "--port", m.port, "-k", "group", "--list")
	if code != 0 {
		t.Fatalf("stored password not used: Execute() = %d", code)
	}
}

func TestIPUsage(t *testing.T) {
	cols := []string{"licensedIPs", "activeIPs"}
	tbl := projector.Table{Columns: cols, Records: []projector.Record{projector.NewRecord(cols, []any{int64(0), "0"})}}
	got, err := ipUsage(tbl)
	if err != nil {
		t.Fatal(err)
	}
	if v, _ := got.Records[0].Get("leftIPsPercent"); v != int64(0) {
		t.Errorf("leftIPsPercent = %v", v)
	}
	if _, err := ipUsage(projector.Table{}); err == nil {
		t.Error("expected error for missing status record")
	}
	bad := projector.Table{Columns: cols, Records: []projector.Record{projector.NewRecord(cols, []any{"many", "1"})}}
	if _, err := ipUsage(bad); err == nil {
		t.Error("expected error for non-numeric licensedIPs")
	}
}

func TestTargetMessage(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{&tenablesc.ConnectError{Host: "h", Err: errors.New("refused")}, "Can't reach Tenable.sc API via h."},
		{&tenablesc.AuthError{Host: "h", Status: 403}, "Can't login to Tenable.sc API via h with supplied credentials."},
		{&tenablesc.APIError{Path: "scan", Code: 146, Message: "bad"}, "returned an error: scan: error 146: bad"},
		{errors.New("boom"), "h: boom"},
	}
	for _, tt := range tests {
		if got := targetMessage("h", tt.err); !strings.Contains(got, tt.want) {
			t.Errorf("targetMessage(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}
