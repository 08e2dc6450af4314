// Package environment reads typed settings from environment variables.
//
// Unset or empty variables take the caller's default. Malformed values are
// never silently replaced by the default: a Lookup records them and reports
// them all at once from Err.
package environment

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// StringOr returns the value of name, or def when it is unset or empty.
func StringOr(name, def string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return def
}

// Lookup reads settings and collects parse failures. The zero value is ready
// to use.
type Lookup struct {
	errs []error
}

// String returns the value of name, or def when it is unset or empty.
func (l *Lookup) String(name, def string) string {
	return StringOr(name, def)
}

// Int returns name parsed as a decimal int.
func (l *Lookup) Int(name string, def int) int {
	v, ok := l.raw(name)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		l.fail(name, v, err)
		return def
	}
	return n
}

// Int64 returns name parsed as a decimal int64. Telegram user and chat ids
// need the full width.
func (l *Lookup) Int64(name string, def int64) int64 {
	v, ok := l.raw(name)
	if !ok {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		l.fail(name, v, err)
		return def
	}
	return n
}

// Duration returns name parsed by time.ParseDuration ("30s", "10m").
func (l *Lookup) Duration(name string, def time.Duration) time.Duration {
	v, ok := l.raw(name)
	if !ok {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		l.fail(name, v, err)
		return def
	}
	return d
}

// Int64List returns name parsed as a comma-separated list of int64 values,
// e.g. ADMIN_IDS="1078401181, 42". Empty elements are skipped.
func (l *Lookup) Int64List(name string) []int64 {
	v, ok := l.raw(name)
	if !ok {
		return nil
	}
	var out []int64
	for _, p := range strings.Split(v, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		n, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			l.fail(name, p, err)
			return nil
		}
		out = append(out, n)
	}
	return out
}

// Err returns every parse failure seen so far, or nil.
func (l *Lookup) Err() error {
	return errors.Join(l.errs...)
}

func (l *Lookup) raw(name string) (string, bool) {
	v := strings.TrimSpace(os.Getenv(name))
	return v, v != ""
}

func (l *Lookup) fail(name, value string, err error) {
	var ne *strconv.NumError
	if errors.As(err, &ne) {
		err = ne.Err
	}
	l.errs = append(l.errs, fmt.Errorf("%s: invalid value %q: %w", name, value, err))
}
