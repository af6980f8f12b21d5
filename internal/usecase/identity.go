package usecase

import (
	"fmt"
	"strings"

	"github.com/V4T54L/rumtrack/internal/domain"
)

// ResolveUser reads the user identity from host state. The user record is
// state.user.userInfo when present, else state.user. A nil state yields an
// empty identity.
func ResolveUser(state domain.HostState) domain.UserIdentity {
	if state == nil {
		return domain.UserIdentity{}
	}

	info := userRecord(state.UserModule())

	id := firstString(info, "userId", "id")
	if id == "" {
		if v, ok := state.Getter("user/userId"); ok {
			id = stringify(v)
		}
	}

	perms, ok := getterStrings(state, "user/permissions")
	if !ok {
		perms = stringSlice(info["permissions"])
	}

	return domain.UserIdentity{
		UserID:      id,
		UserName:    firstString(info, "userName", "contact", "name"),
		AccountID:   stringify(info["accountId"]),
		Email:       stringify(info["email"]),
		Roles:       nonNil(stringSlice(info["roles"])),
		Permissions: nonNil(perms),
	}
}

// userRecord returns module.userInfo when present, else module.
func userRecord(module map[string]any) map[string]any {
	if nested, ok := module["userInfo"].(map[string]any); ok && nested != nil {
		return nested
	}
	return module
}

func getterStrings(state domain.HostState, name string) ([]string, bool) {
	v, ok := state.Getter(name)
	if !ok || !truthy(v) {
		return nil, false
	}
	return stringSlice(v), true
}

func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if s := stringify(m[k]); s != "" {
			return s
		}
	}
	return ""
}

// stringify renders scalars the way they would appear in a log field. nil and
// empty values render as "".
func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		if t == float64(int64(t)) {
			return fmt.Sprintf("%d", int64(t))
		}
		return fmt.Sprintf("%v", t)
	default:
		return fmt.Sprint(t)
	}
}

func stringSlice(v any) []string {
	switch t := v.(type) {
	case []string:
		return append([]string(nil), t...)
	case []any:
		out := make([]string, 0, len(t))
		for _, e := range t {
			if s := stringify(e); s != "" {
				out = append(out, s)
			}
		}
		return out
	case string:
		if t == "" {
			return nil
		}
		return strings.Split(t, ",")
	default:
		return nil
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case string:
		return t != ""
	case bool:
		return t
	case int:
		return t != 0
	case int64:
		return t != 0
	case float64:
		return t != 0
	default:
		return true
	}
}
