// Package env expands ${NAME} placeholders in configuration values.
package env

import (
	"os"
	"strings"
)

type Var map[string]string

// Env resolves names from explicit overrides first, then the process
// environment captured by FromOS.
type Env struct {
	Var Var
	os  Var
}

func New() *Env {
	return &Env{Var: make(Var)}
}

// FromOS caches the current process environment.
func (e *Env) FromOS() *Env {
	base := make(Var)
	for _, kv := range os.Environ() {
		if i := strings.IndexByte(kv, '='); i > 0 {
			base[kv[:i]] = kv[i+1:]
		}
	}
	e.os = base
	return e
}

func (e *Env) Set(k, v string) *Env {
	if k == "" {
		return e
	}
	if e.Var == nil {
		e.Var = make(Var)
	}
	e.Var[k] = v
	return e
}

func (e *Env) Lookup(k string) (string, bool) {
	if v, ok := e.Var[k]; ok {
		return v, true
	}
	v, ok := e.os[k]
	return v, ok
}

// Expand replaces each ${NAME} with its value. Unknown names and unterminated
// placeholders are left untouched. Substituted values are not expanded again.
func (e *Env) Expand(s string) string {
	if !strings.Contains(s, "${") {
		return s
	}
	var b strings.Builder
	for {
		i := strings.Index(s, "${")
		if i < 0 {
			b.WriteString(s)
			return b.String()
		}
		j := strings.IndexByte(s[i+2:], '}')
		if j < 0 {
			b.WriteString(s)
			return b.String()
		}
		name := s[i+2 : i+2+j]
		b.WriteString(s[:i])
		if v, ok := e.Lookup(name); ok && name != "" {
			b.WriteString(v)
		} else {
			b.WriteString(s[i : i+3+j])
		}
		s = s[i+3+j:]
	}
}

// ExpandAll expands every pointed-to string in place.
func (e *Env) ExpandAll(fields ...*string) {
	for _, f := range fields {
		if f != nil {
			*f = e.Expand(*f)
		}
	}
}
