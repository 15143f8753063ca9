// Package session opens an authenticated Tenable.sc session for one target
// and fetches the raw records of a resource kind.
package session

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"

	"github.com/limberduck/tsccm/internal/config"
	"github.com/limberduck/tsccm/internal/resource"
	"github.com/limberduck/tsccm/internal/tenablesc"
)

// Session is an authenticated connection to one target.
type Session struct {
	client *tenablesc.Client
	target config.Target
	log    *logrus.Entry
}

// Open connects to target and logs in. The error is a *tenablesc.ConnectError
// when the server cannot be reached and a *tenablesc.AuthError when it rejects the credentials.
func Open(ctx context.Context, target config.Target, username, password, userAgent string, log *logrus.Entry) (*Session, error) {
	client, err := tenablesc.NewClient(target.Host, target.Port, tenablesc.Options{
		Insecure:  target.Insecure,
		CABundle:  target.CABundle,
		Timeout:   target.Timeout,
		UserAgent: userAgent,
	})
	if err != nil {
		return nil, err
	}
	log = log.WithField("target", target.Host)
	log.WithField("url", client.BaseURL).Debug("logging in")
	if err := client.Login(ctx, username, password); err != nil {
		return nil, err
	}
	log.Debug("session opened")
	return &Session{client: client, target: target, log: log}, nil
}

// Target returns the target the session was opened for.
func (s *Session) Target() config.Target { return s.target }

// Fetch issues one GET for kind and returns its records in server order.
func (s *Session) Fetch(ctx context.Context, kind resource.Kind) ([]json.RawMessage, error) {
	spec, err := resource.SpecFor(kind)
	if err != nil {
		return nil, err
	}
	query := url.Values{}
	if fields := spec.Fields(); len(fields) > 0 {
		query.Set("fields", strings.Join(fields, ","))
	}
	s.log.WithFields(logrus.Fields{"endpoint": spec.Endpoint, "fields": query.Get("fields")}).Debug("fetch")
	body, err := s.client.Get(ctx, spec.Endpoint, query)
	if err != nil {
		return nil, err
	}
	records, err := Unwrap(body, spec.Envelope)
	if err != nil {
		return nil, &tenablesc.APIError{Path: spec.Endpoint, Status: 200, Message: err.Error()}
	}
	s.log.WithField("records", len(records)).Debug("fetched")
	return records, nil
}

type shapeError string

func (e shapeError) Error() string { return string(e) }

// Unwrap extracts the records found at path in body: an object is one record,
// an array is one record per element.
func Unwrap(body []byte, path string) ([]json.RawMessage, error) {
	if !gjson.ValidBytes(body) {
		return nil, shapeError("unexpected response shape: invalid JSON")
	}
	res := gjson.GetBytes(body, path)
	switch {
	case res.IsArray():
		items := res.Array()
		out := make([]json.RawMessage, 0, len(items))
		for _, item := range items {
			if !item.IsObject() {
				return nil, shapeError("unexpected response shape: " + path + " holds a non-object element")
			}
			out = append(out, json.RawMessage(item.Raw))
		}
		return out, nil
	case res.IsObject():
		return []json.RawMessage{json.RawMessage(res.Raw)}, nil
	default:
		return nil, shapeError("unexpected response shape at " + path)
	}
}

// Close logs out. Errors are logged and otherwise ignored.
func (s *Session) Close(ctx context.Context) {
	if err := s.client.Logout(ctx); err != nil {
		s.log.WithError(err).Warn("logout failed")
		return
	}
	s.log.Debug("session closed")
}
