package offers

import (
	"strconv"
	"strings"

	"github.com/rsyslog/rsyslog-sub006/command"
	"github.com/rsyslog/rsyslog-sub006/errcode"
)

// Software identifies the local implementation for the informational
// relp_software offer (spec.md §4.4: "URL, version, name").
type Software struct {
	URL     string
	Version string
	Name    string
}

// BuildLocal constructs the offer list a side presents at open time, from
// its protocol version, its non-Forbidden commands, and its software
// identity.
func BuildLocal(version int, enabled command.EnableMap, sw Software) *List {
	l := NewList()
	l.Set("relp_version", strconv.Itoa(version))

	verbs := enabled.NonForbidden()
	names := make([]string, len(verbs))
	for i, v := range verbs {
		names[i] = v.String()
	}
	l.Set("commands", names...)

	l.Set("relp_software", sw.URL, sw.Version, sw.Name)
	return l
}

// Negotiated is the outcome of comparing a peer's offers against the local
// side's configuration.
type Negotiated struct {
	Version int
	// Enabled holds the commands this side should now treat as Enabled,
	// based on the peer's offered commands intersected with this side's
	// non-Forbidden set (spec.md §8: "the intersection of each side's
	// non-Forbidden commands with the peer's offered commands list").
	Enabled []command.Verb
}

// Negotiate compares a peer's offer list against the local command-enable
// policy and local protocol version, applying spec.md §4.4's rules:
//   - missing relp_version is fatal
//   - the agreed version is the lesser of the two sides' versions
//   - unknown offer names are ignored (forward compatibility)
//   - every peer-offered command not locally Forbidden becomes Enabled
//
// It mutates local to apply the Enabled states and returns the negotiated
// version/command set for building a response offer list (server side) or
// for the final compatibility check (client side).
func Negotiate(peer *List, localVersion int, local command.EnableMap) (Negotiated, error) {
	verOffer, ok := peer.Get("relp_version")
	if !ok || len(verOffer.Values) == 0 {
		return Negotiated{}, errcode.New(errcode.InvalidOffer, "missing relp_version offer")
	}
	peerVersion := verOffer.IntVal
	if peerVersion < 0 {
		return Negotiated{}, errcode.New(errcode.InvalidOffer, "relp_version is not a valid integer")
	}
	version := localVersion
	if peerVersion < version {
		version = peerVersion
	}

	var enabled []command.Verb
	if cmdsOffer, ok := peer.Get("commands"); ok {
		for _, name := range cmdsOffer.Values {
			v := command.Parse(strings.TrimSpace(name))
			if v == command.Unknown {
				continue
			}
			if local[v] == command.Forbidden {
				continue
			}
			local.Set(v, command.Enabled)
			enabled = append(enabled, v)
		}
	}
	// relp_software is informational only and is intentionally not
	// inspected here.
	return Negotiated{Version: version, Enabled: enabled}, nil
}
