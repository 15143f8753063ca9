// Package update compares the running version with the latest published release.
package update

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/tidwall/gjson"
)

// Timeout bounds the release lookup so a slow network never delays the CLI noticeably.
const Timeout = 1500 * time.Millisecond

// ProjectURL is printed with every result.
const ProjectURL = "https://github.com/LimberDuck/tsccm"

// State is the outcome of a comparison.
type State int

const (
	UpToDate State = iota
	Outdated
	PreRelease
)

// Result holds both versions and how they compare.
type Result struct {
	Current *semver.Version
	Latest  *semver.Version
	State   State
}

// Compare classifies current against latest.
func Compare(current, latest string) (*Result, error) {
	cur, err := semver.NewVersion(current)
	if err != nil {
		return nil, fmt.Errorf("current version %q: %w", current, err)
	}
	lat, err := semver.NewVersion(latest)
	if err != nil {
		return nil, fmt.Errorf("latest version %q: %w", latest, err)
	}
	res := &Result{Current: cur, Latest: lat}
	switch c := lat.Compare(cur); {
	case c > 0:
		res.State = Outdated
	case c == 0:
		res.State = UpToDate
	default:
		res.State = PreRelease
	}
	return res, nil
}

// Check fetches the latest release from url (a GitHub "latest release" endpoint)
// and compares it with current.
func Check(ctx context.Context, client *http.Client, url, current string) (*Result, error) {
	if client == nil {
		client = &http.Client{Timeout: Timeout}
	}
	ctx, cancel := context.WithTimeout(ctx, Timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("release lookup: HTTP %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	tag := gjson.GetBytes(body, "tag_name").String()
	if tag == "" {
		return nil, fmt.Errorf("release lookup: no tag_name in response")
	}
	return Compare(current, tag)
}

// Message renders the result for the operator.
func (r *Result) Message() string {
	var b strings.Builder
	switch r.State {
	case Outdated:
		fmt.Fprintf(&b, "> A new version of tsccm is available: %s (you have %s)\n", r.Latest, r.Current)
		fmt.Fprintf(&b, "> Download it from %s/releases\n", ProjectURL)
	case UpToDate:
		fmt.Fprintf(&b, "> You are using the latest version of tsccm: %s\n", r.Current)
	case PreRelease:
		fmt.Fprintf(&b, "> You are using a pre-release version of tsccm: %s\n", r.Current)
		fmt.Fprintf(&b, "> Latest released version of tsccm: %s\n", r.Latest)
	}
	fmt.Fprintf(&b, "> Read more: %s\n", ProjectURL)
	return b.String()
}
