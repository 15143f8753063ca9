package credential

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/sirupsen/logrus"
)

// MaxPasswordAttempts bounds the hidden-entry retries on empty input or confirmation mismatch.
const MaxPasswordAttempts = 3

// Source records where the resolved password came from.
type Source int

const (
	Supplied Source = iota
	Stored
	Prompted
)

func (s Source) String() string {
	switch s {
	case Supplied:
		return "supplied"
	case Stored:
		return "stored"
	case Prompted:
		return "prompted"
	default:
		return fmt.Sprintf("Source(%d)", int(s))
	}
}

// Resolver picks the password for a login. Store is nil when the platform has no
// usable secret store; the resolver then never reads or writes one.
type Resolver struct {
	Store    Store
	Prompter Prompter
	Out      io.Writer
	GOOS     string
	Log      *logrus.Entry
}

// Resolution is a resolved password plus the pending secret store write, if any.
type Resolution struct {
	Host     string
	Username string
	Password string
	Source   Source

	write bool
	r     *Resolver
}

// NeedsWrite reports whether Commit will write to the secret store.
func (res *Resolution) NeedsWrite() bool { return res.write }

// Commit performs the pending secret store write. It is a no-op when nothing needs storing.
func (res *Resolution) Commit() error {
	if !res.write {
		return nil
	}
	if err := res.r.Store.Set(res.Host, res.Username, res.Password); err != nil {
		return err
	}
	res.write = false
	res.r.notice(res.Host)
	return nil
}

// Resolve runs Prepare and commits the result immediately.
func (r *Resolver) Resolve(host, username, supplied string) (string, error) {
	res, err := r.Prepare(host, username, supplied)
	if err != nil {
		return "", err
	}
	if err := res.Commit(); err != nil {
		return "", err
	}
	return res.Password, nil
}

// Prepare decides the password to use and whether the secret store should be
// updated, asking the operator when the stored value differs. Nothing is written
// until Commit.
func (r *Resolver) Prepare(host, username, supplied string) (*Resolution, error) {
	res := &Resolution{Host: host, Username: username, Password: supplied, Source: Supplied, r: r}

	if res.Password == "" && r.Store != nil {
		r.log().Info("Looking for password in OS Credential Manager")
		if stored, err := r.lookup(host, username); err == nil && stored != "" {
			r.log().Info("Password found.")
			res.Password, res.Source = stored, Stored
		} else {
			r.log().Info("Password not found.")
		}
	}

	if res.Password == "" {
		pw, err := r.promptPassword(host, username)
		if err != nil {
			return nil, err
		}
		res.Password, res.Source = pw, Prompted
	}

	if r.Store == nil {
		return res, nil
	}
	stored, err := r.lookup(host, username)
	switch {
	case errors.Is(err, ErrNotFound):
		res.write = true
	case err != nil:
		// The entry may exist behind a locked store; never overwrite it unasked.
		r.log().Warn("secret store not updated")
	case stored != res.Password:
		_, _ = fmt.Fprintf(r.out(), "Password for %s @ %s already exist in OS Credential Manager and is different than provided by you!\n", username, host)
		answer, err := r.Prompter.Line("Do you want to update password in OS Credential Manager? (yes): ")
		if err != nil && !errors.Is(err, ErrAborted) {
			return nil, err
		}
		res.write = err == nil && Affirmative(answer)
	}
	return res, nil
}

// Affirmative reports whether answer accepts a question whose default is yes.
func Affirmative(answer string) bool {
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "", "y", "yes":
		return true
	default:
		return false
	}
}

// lookup returns the stored password. The error is ErrNotFound when nothing is
// stored; any other error means the store could not be read.
func (r *Resolver) lookup(host, username string) (string, error) {
	stored, err := r.Store.Get(host, username)
	if err != nil && !errors.Is(err, ErrNotFound) {
		r.log().WithError(err).Warn("secret store lookup failed")
	}
	return stored, err
}

func (r *Resolver) promptPassword(host, username string) (string, error) {
	for attempt := 1; attempt <= MaxPasswordAttempts; attempt++ {
		pw, err := r.Prompter.Secret(fmt.Sprintf("Password for %s @ %s: ", username, host))
		if err != nil {
			return "", err
		}
		if pw == "" {
			_, _ = fmt.Fprintln(r.out(), "Error: the value cannot be empty.")
			continue
		}
		again, err := r.Prompter.Secret("Repeat for confirmation: ")
		if err != nil {
			return "", err
		}
		if again != pw {
			_, _ = fmt.Fprintln(r.out(), "Error: the two entered values do not match.")
			continue
		}
		return pw, nil
	}
	return "", fmt.Errorf("no password entered for %s @ %s after %d attempts", username, host, MaxPasswordAttempts)
}

func (r *Resolver) notice(host string) {
	saved, hint := Location(r.GOOS, host)
	if saved == "" {
		return
	}
	_, _ = fmt.Fprintln(r.out(), saved)
	_, _ = fmt.Fprintln(r.out(), hint)
}

func (r *Resolver) out() io.Writer {
	if r.Out == nil {
		return io.Discard
	}
	return r.Out
}

func (r *Resolver) log() *logrus.Entry {
	if r.Log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		return logrus.NewEntry(l)
	}
	return r.Log
}
