// Package command defines the small, closed set of RELP command verbs and
// the per-command enable-state policy that governs them. spec.md §9
// recommends modelling the verb as "a variant/enum type over a fixed small
// set... cleaner than a string table once parsed and avoids repeated string
// comparisons" — Verb is that enum; the dispatch itself (verb -> handler)
// is a switch over Verb in package session, next to the session type the
// handlers actually mutate.
package command

import "strings"

// Verb is one of the five RELP command verbs recognized by this engine.
type Verb int

const (
	// Unknown marks a verb string this engine does not recognize.
	Unknown Verb = iota
	Open
	Close
	Serverclose
	Rsp
	Syslog
)

var verbNames = map[Verb]string{
	Open:        "open",
	Close:       "close",
	Serverclose: "serverclose",
	Rsp:         "rsp",
	Syslog:      "syslog",
}

var verbsByName = func() map[string]Verb {
	m := make(map[string]Verb, len(verbNames))
	for v, n := range verbNames {
		m[n] = v
	}
	return m
}()

// String renders the verb's wire name, or "unknown" for Unknown.
func (v Verb) String() string {
	if n, ok := verbNames[v]; ok {
		return n
	}
	return "unknown"
}

// Parse maps a wire command string to its Verb, or Unknown if unrecognized.
func Parse(s string) Verb {
	if v, ok := verbsByName[strings.ToLower(s)]; ok {
		return v
	}
	return Unknown
}

// All lists every verb this engine implements, in a stable order, for
// building the locally-offered "commands" list at open time.
func All() []Verb {
	return []Verb{Open, Close, Serverclose, Rsp, Syslog}
}

// State is a per-command enable state (spec.md §3).
type State int

const (
	// Unset means no policy has been configured yet for this command; after
	// the open handshake completes, every command still Unset becomes
	// Forbidden.
	Unset State = iota
	// Forbidden is sticky: once a command is Forbidden it may never be
	// relaxed to any other state.
	Forbidden
	Desired
	Required
	Enabled
	Disabled
)

func (s State) String() string {
	switch s {
	case Unset:
		return "Unset"
	case Forbidden:
		return "Forbidden"
	case Desired:
		return "Desired"
	case Required:
		return "Required"
	case Enabled:
		return "Enabled"
	case Disabled:
		return "Disabled"
	default:
		return "State(?)"
	}
}

// EnableMap tracks the State of every verb for one session or one side's
// configuration.
type EnableMap map[Verb]State

// NewEnableMap returns a map with every verb Unset.
func NewEnableMap() EnableMap {
	m := make(EnableMap, len(verbNames))
	for _, v := range All() {
		m[v] = Unset
	}
	return m
}

// Set applies state to verb, refusing to relax a Forbidden verb to anything
// else (spec.md §3: "Forbidden is sticky").
func (m EnableMap) Set(v Verb, state State) {
	if m[v] == Forbidden && state != Forbidden {
		return
	}
	m[v] = state
}

// FreezeUnset converts every still-Unset verb to Forbidden. Called once the
// open handshake completes, per spec.md §4.2 ("Feature state ... is now
// frozen for the session").
func (m EnableMap) FreezeUnset() {
	for v, s := range m {
		if s == Unset {
			m[v] = Forbidden
		}
	}
}

// NonForbidden returns the verbs whose local state is not Forbidden, in a
// stable order — the set a side offers as its "commands" capability.
func (m EnableMap) NonForbidden() []Verb {
	var out []Verb
	for _, v := range All() {
		if m[v] != Forbidden {
			out = append(out, v)
		}
	}
	return out
}

// RequiredUnsatisfied returns the verbs still Required after negotiation —
// a non-empty result is the fatal "RqdFeatMissing" mismatch of spec.md §4.4.
func (m EnableMap) RequiredUnsatisfied() []Verb {
	var out []Verb
	for _, v := range All() {
		if m[v] == Required {
			out = append(out, v)
		}
	}
	return out
}
