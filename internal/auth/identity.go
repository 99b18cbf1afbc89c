// Package auth models the identity and deploy-token scope rules of
// spec §4.5. It is deliberately narrow: OIDC/OAuth2/WebAuthn/MFA
// identity providers are out of scope for the deploy path (spec §1
// scopes authentication mechanics to an external collaborator; only
// the deploy-token scope rule is this core's concern). Grounded on the
// teacher's internal/middleware/auth.go claims shape, trimmed to the
// fields a deploy request actually needs.
package auth

// Credential distinguishes how the caller authenticated.
type Credential int

const (
	// CredentialCookie is any non-token identity (cookie auth, or a
	// request with no credentials at all); Allows never restricts it by
	// token scope. HTTP Basic credentials never reach this point on the
	// deploy path: Router.requireToken rejects them first.
	CredentialCookie Credential = iota
	// CredentialToken is a deploy token, optionally scoped.
	CredentialToken
)

// TokenScope restricts a deploy token to a group, or a group+artifact
// pair. A nil field wildcards, per spec §4.5.
type TokenScope struct {
	Group    *string
	Artifact *string
}

// Account is the authenticated identity making the request.
type Account struct {
	Username   string
	Credential Credential
	Scope      TokenScope
}

// Allows implements spec §4.5's token-scope check for a request
// targeting (group, artifact):
//
//	(a) the identity is not a token (cookie auth), or
//	(b) the token's (group, artifact) are both nil, or
//	(c) group matches and artifact is nil, or
//	(d) group matches and artifact matches.
func (a Account) Allows(group, artifact string) bool {
	if a.Credential != CredentialToken {
		return true
	}
	if a.Scope.Group == nil && a.Scope.Artifact == nil {
		return true
	}
	if a.Scope.Group != nil && *a.Scope.Group == group {
		if a.Scope.Artifact == nil {
			return true
		}
		return *a.Scope.Artifact == artifact
	}
	return false
}

// GroupMembership resolves and checks membership in a Maven group
// name, consulted on every PUT (spec §3 "Group membership", §4.4 step
// a).
type GroupMembership interface {
	// ActiveNames returns the usernames permitted to deploy under
	// group. An empty, non-error result means the group does not yet
	// exist (claimable by the first deployer).
	ActiveNames(group string) ([]string, error)
	// CheckAndAdd claims group for user if it doesn't yet exist; it is
	// a no-op if user is already a member.
	CheckAndAdd(user, group string) error
}

// CheckGroup implements spec §4.4 step (a): account must belong to
// group, or group must not yet exist (permitting claim).
func CheckGroup(activeNames []string, user, group string) bool {
	if len(activeNames) == 0 {
		return true // unclaimed group: permit claim
	}
	for _, n := range activeNames {
		if n == user {
			return true
		}
	}
	return false
}
