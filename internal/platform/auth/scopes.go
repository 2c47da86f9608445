package auth

import (
	"errors"
	"net/http"
	"sort"
	"strings"
)

var ErrForbidden = errors.New("forbidden")

const (
	ScopeOrgRead  = "org:read"
	ScopeOrgWrite = "org:write"
	ScopeOrgAdmin = "org:admin"
)

// roleScopes expands organization roles found in tokens into scopes.
var roleScopes = map[string][]string{
	"viewer":  {ScopeOrgRead},
	"member":  {ScopeOrgRead, ScopeOrgWrite},
	"manager": {ScopeOrgRead, ScopeOrgWrite, ScopeOrgAdmin},
	"owner":   {ScopeOrgRead, ScopeOrgWrite, ScopeOrgAdmin},
}

// methodScopes lists, per method, the scopes any one of which admits the request.
// Key transactions are personal bookmarks, so DELETE needs no more than POST.
var methodScopes = map[string][]string{
	http.MethodGet:     {ScopeOrgRead, ScopeOrgWrite, ScopeOrgAdmin},
	http.MethodHead:    {ScopeOrgRead, ScopeOrgWrite, ScopeOrgAdmin},
	http.MethodOptions: {ScopeOrgRead, ScopeOrgWrite, ScopeOrgAdmin},
	http.MethodPost:    {ScopeOrgWrite, ScopeOrgAdmin},
	http.MethodPut:     {ScopeOrgWrite, ScopeOrgAdmin},
	http.MethodDelete:  {ScopeOrgWrite, ScopeOrgAdmin},
}

// ScopesForRoles returns the sorted union of the scopes granted by roles.
// Unknown roles grant nothing.
func ScopesForRoles(roles []string) []string {
	set := make(map[string]struct{})
	for _, role := range roles {
		for _, s := range roleScopes[strings.ToLower(strings.TrimSpace(role))] {
			set[s] = struct{}{}
		}
	}
	return sortedSet(set)
}

// splitList reads an OAuth style space separated list, tolerating commas,
// into a sorted lowercase set.
func splitList(raw string) []string {
	set := make(map[string]struct{})
	for _, s := range strings.FieldsFunc(raw, func(r rune) bool { return r == ' ' || r == ',' }) {
		set[strings.ToLower(s)] = struct{}{}
	}
	return sortedSet(set)
}

func sortedSet(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

func AllowedScopes(method string) []string {
	if scopes, ok := methodScopes[strings.ToUpper(method)]; ok {
		return scopes
	}
	return methodScopes[http.MethodPost]
}

// ScopeAuthorizer admits a request when the identity holds any scope
// allowed for the request method.
func ScopeAuthorizer() AuthorizeFunc {
	return func(r *http.Request, identity Identity) error {
		for _, s := range AllowedScopes(r.Method) {
			if identity.HasScope(s) {
				return nil
			}
		}
		return ErrForbidden
	}
}
