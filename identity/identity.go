// Package identity classifies inbound requests as the panel owner or a
// guest based on the API key they supplied. Nothing is persisted; every
// request is classified from scratch.
package identity

import (
	"crypto/subtle"
	"fmt"
	"strings"
)

type Kind string

const (
	KindOwner Kind = "owner"
	KindGuest Kind = "guest"
)

// Guest labels only ever carry a short prefix of the supplied key so that
// audit entries stay readable without leaking the whole credential.
const guestLabelLength = 6

type Identity struct {
	Kind  Kind
	Label string
}

func (i Identity) IsOwner() bool {
	return i.Kind == KindOwner
}

func (i Identity) String() string {
	return i.Label
}

type Resolver struct {
	ownerKey  string
	ownerName string
}

func NewResolver(ownerKey, ownerName string) *Resolver {
	return &Resolver{
		ownerKey:  strings.TrimSpace(ownerKey),
		ownerName: ownerName,
	}
}

// Resolve maps an API key to an identity. The owner key comparison is
// constant time to avoid leaking the secret through response timing.
// Keys are trimmed before comparing as some HTTP clients sneak whitespace
// into header values.
func (r *Resolver) Resolve(apiKey string) Identity {
	key := strings.TrimSpace(apiKey)
	if key != "" && r.ownerKey != "" && subtle.ConstantTimeCompare([]byte(key), []byte(r.ownerKey)) == 1 {
		return Identity{Kind: KindOwner, Label: r.ownerName}
	}
	if key != "" {
		label := key
		if len(label) > guestLabelLength {
			label = label[:guestLabelLength]
		}
		return Identity{Kind: KindGuest, Label: fmt.Sprintf("Guest(%s)", label)}
	}
	return Identity{Kind: KindGuest, Label: "Anonymous"}
}
