// Package bdd provides Godog step definitions for the tsccm CLI suite.
// Feature files live under repo features/tsccm/.
package bdd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"github.com/cucumber/godog"
)

type ctxKey int

const stateKey ctxKey = 0

type tsccmState struct {
	mockServer *httptest.Server
	port       string
	tsccmBin   string
	configPath string
	lastExit   int
	lastStdout string
	lastStderr string

	mu        sync.Mutex
	password  string
	records   map[string]any // endpoint -> response
	fetches   int
	logouts   int
	tokenSeen bool
}

func getState(ctx context.Context) *tsccmState {
	s, _ := ctx.Value(stateKey).(*tsccmState)
	return s
}

func (s *tsccmState) write(w http.ResponseWriter, status int, response any, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"type": "regular", "response": response, "error_code": code, "error_msg": msg,
		"warnings": []any{}, "timestamp": 1600000000,
	})
}

func (s *tsccmState) mockTenableMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /rest/token", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Username string `json:"username"`
			Password string `json:"password"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.write(w, http.StatusBadRequest, nil, 1, "bad request")
			return
		}
		s.mu.Lock()
		ok := req.Password == s.password
		s.mu.Unlock()
		if !ok {
			s.write(w, http.StatusForbidden, nil, 74, "Invalid login credentials.")
			return
		}
		s.write(w, http.StatusOK, map[string]any{"token": 31337}, 0, "")
	})
	mux.HandleFunc("DELETE /rest/token", func(w http.ResponseWriter, _ *http.Request) {
		s.mu.Lock()
		s.logouts++
		s.mu.Unlock()
		s.write(w, http.StatusOK, nil, 0, "")
	})
	mux.HandleFunc("GET /rest/{endpoint}", func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.fetches++
		s.tokenSeen = r.Header.Get("X-SecurityCenter") == "31337"
		resp, ok := s.records[r.PathValue("endpoint")]
		if !ok {
			s.write(w, http.StatusOK, nil, 146, "Unknown endpoint")
			return
		}
		s.write(w, http.StatusOK, resp, 0, "")
	})
	return mux
}

func (s *tsccmState) runTsccm(args []string, env ...string) (exit int, stdout, stderr string) {
	cmd := exec.Command(s.tsccmBin, args...)
	cmd.Env = append(os.Environ(), env...)
	cmd.Stdin = strings.NewReader("")
	var outBuf, errBuf bytes.Buffer
	cmd.Stdout = &outBuf
	cmd.Stderr = &errBuf
	err := cmd.Run()
	stdout = strings.TrimSpace(outBuf.String())
	stderr = strings.TrimSpace(errBuf.String())
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			exit = exitErr.ExitCode()
		} else {
			exit = -1
		}
	}
	return exit, stdout, stderr
}

// targetArgs are the connection flags for the mock server followed by args.
func (s *tsccmState) targetArgs(addresses []string, args ...string) []string {
	out := []string{"--config", s.configPath, "--port", s.port, "-k", "-u", "admin", "-p", "secret"}
	for _, a := range addresses {
		out = append(out, "-a", a)
	}
	return append(out, args...)
}

// InitializeTsccmSuite sets up the godog suite for tsccm features.
func InitializeTsccmSuite(sc *godog.ScenarioContext, state *tsccmState) {
	sc.Before(func(ctx context.Context, _ *godog.Scenario) (context.Context, error) {
		state.mockServer = httptest.NewTLSServer(state.mockTenableMux())
		u, err := url.Parse(state.mockServer.URL)
		if err != nil {
			return ctx, err
		}
		_, state.port, _ = net.SplitHostPort(u.Host)
		state.password = "secret"
		state.records = map[string]any{}
		state.fetches, state.logouts, state.tokenSeen = 0, 0, false

		wd, err := os.Getwd()
		if err != nil {
			return ctx, err
		}
		root := wd
		if filepath.Base(wd) == "_bdd" {
			root = filepath.Join(wd, "..")
		}
		tmpDir := filepath.Join(root, "tmp")
		_ = os.MkdirAll(tmpDir, 0o755)
		state.configPath = filepath.Join(tmpDir, "tsccm-bdd-config.yaml")
		if err := os.WriteFile(state.configPath, []byte("secret_store: \"off\"\ntimezone: UTC\n"), 0o600); err != nil {
			return ctx, err
		}
		bin := filepath.Join(tmpDir, "tsccm-bdd")
		if _, err := os.Stat(bin); err != nil {
			build := exec.Command("go", "build", "-o", bin, ".")
			build.Dir = root
			build.Env = os.Environ()
			if err := build.Run(); err != nil {
				return ctx, fmt.Errorf("build tsccm: %w", err)
			}
		}
		state.tsccmBin = bin
		return context.WithValue(ctx, stateKey, state), nil
	})

	sc.After(func(ctx context.Context, _ *godog.Scenario, _ error) (context.Context, error) {
		if state.mockServer != nil {
			state.mockServer.Close()
		}
		state.mockServer = nil
		return ctx, nil
	})

	sc.Step(`^a mock Tenable\.sc is running$`, func(ctx context.Context) error {
		if getState(ctx).mockServer == nil {
			return fmt.Errorf("mock Tenable.sc not started")
		}
		return nil
	})

	sc.Step(`^tsccm is built$`, func(ctx context.Context) error {
		if getState(ctx).tsccmBin == "" {
			return fmt.Errorf("tsccm binary path not set")
		}
		return nil
	})

	sc.Step(`^the server password is "([^"]*)"$`, func(ctx context.Context, pw string) error {
		st := getState(ctx)
		st.mu.Lock()
		st.password = pw
		st.mu.Unlock()
		return nil
	})

	sc.Step(`^the endpoint "([^"]*)" returns:$`, func(ctx context.Context, endpoint string, doc *godog.DocString) error {
		var v any
		if err := json.Unmarshal([]byte(doc.Content), &v); err != nil {
			return fmt.Errorf("endpoint %s fixture: %w", endpoint, err)
		}
		st := getState(ctx)
		st.mu.Lock()
		st.records[endpoint] = v
		st.mu.Unlock()
		return nil
	})

	sc.Step(`^I run tsccm "([^"]*)"$`, func(ctx context.Context, args string) error {
		st := getState(ctx)
		st.lastExit, st.lastStdout, st.lastStderr = st.runTsccm(st.targetArgs([]string{"127.0.0.1"}, strings.Fields(args)...))
		return nil
	})

	sc.Step(`^I run tsccm "([^"]*)" against "([^"]*)"$`, func(ctx context.Context, args, targets string) error {
		st := getState(ctx)
		st.lastExit, st.lastStdout, st.lastStderr = st.runTsccm(st.targetArgs(strings.Split(targets, ","), strings.Fields(args)...))
		return nil
	})

	sc.Step(`^I run tsccm without a target "([^"]*)"$`, func(ctx context.Context, args string) error {
		st := getState(ctx)
		st.lastExit, st.lastStdout, st.lastStderr = st.runTsccm(append([]string{"--config", st.configPath}, strings.Fields(args)...))
		return nil
	})

	sc.Step(`^tsccm exits with code (\d+)$`, func(ctx context.Context, want int) error {
		st := getState(ctx)
		if st.lastExit != want {
			return fmt.Errorf("tsccm exit code %d, want %d (stderr: %s)", st.lastExit, want, st.lastStderr)
		}
		return nil
	})

	sc.Step(`^tsccm stdout contains "([^"]*)"$`, func(ctx context.Context, want string) error {
		st := getState(ctx)
		if !strings.Contains(st.lastStdout, want) {
			return fmt.Errorf("stdout %q does not contain %q", st.lastStdout, want)
		}
		return nil
	})

	sc.Step(`^tsccm stdout is:$`, func(ctx context.Context, doc *godog.DocString) error {
		st := getState(ctx)
		if st.lastStdout != strings.TrimSpace(doc.Content) {
			return fmt.Errorf("stdout:\n%s\nwant:\n%s", st.lastStdout, doc.Content)
		}
		return nil
	})

	sc.Step(`^tsccm stderr contains "([^"]*)"$`, func(ctx context.Context, want string) error {
		st := getState(ctx)
		if !strings.Contains(st.lastStderr, want) {
			return fmt.Errorf("stderr %q does not contain %q", st.lastStderr, want)
		}
		return nil
	})

	sc.Step(`^the mock served (\d+) fetch(?:es)?$`, func(ctx context.Context, want int) error {
		st := getState(ctx)
		st.mu.Lock()
		defer st.mu.Unlock()
		if st.fetches != want {
			return fmt.Errorf("fetches = %d, want %d", st.fetches, want)
		}
		if want > 0 && !st.tokenSeen {
			return fmt.Errorf("fetch sent without session token")
		}
		return nil
	})

	sc.Step(`^every session was closed$`, func(ctx context.Context) error {
		st := getState(ctx)
		st.mu.Lock()
		defer st.mu.Unlock()
		if st.logouts == 0 {
			return fmt.Errorf("no logout seen")
		}
		return nil
	})
}
