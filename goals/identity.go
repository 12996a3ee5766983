package goals

import (
	"fmt"
	"strings"

	"github.com/warp/yield-pacing/generic"
)

// =============================================================================
// ROLES & DEPARTMENTS
// =============================================================================

// MapRoleToDepartment matches role text against department keywords. It
// returns "" when nothing matches.
func MapRoleToDepartment(role string) generic.DepartmentKey {
	r := strings.ToLower(strings.TrimSpace(role))
	if r == "" {
		return ""
	}
	switch {
	case containsAny(r, "caller", "call", "teleapo", "cs", "support", "customer_success"):
		return DeptCS
	case containsAny(r, "marketer", "marketing", "market", "admin"):
		return DeptMarketing
	case containsAny(r, "advisor", "sales"):
		return DeptSales
	}
	return ""
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// DepartmentFromRole is MapRoleToDepartment defaulting to sales.
func DepartmentFromRole(role string) generic.DepartmentKey {
	if d := MapRoleToDepartment(role); d != "" {
		return d
	}
	return DeptSales
}

// ResolveUserDepartment tries each candidate (role, department, division,
// team, job title) in order and returns the first that maps to a department.
func ResolveUserDepartment(candidates ...string) (generic.DepartmentKey, bool) {
	for _, c := range candidates {
		if d := MapRoleToDepartment(c); d != "" {
			return d, true
		}
	}
	return "", false
}

// ResolveUserNumericID returns the first candidate that is a positive integer.
// Callers pass advisorUserId, advisor_user_id, employeeId, userId, id in order.
func ResolveUserNumericID(candidates ...any) (generic.AdvisorID, bool) {
	for _, c := range candidates {
		if id := generic.ParseAdvisorID(c); id.Valid() {
			return id, true
		}
	}
	return 0, false
}

func IsAdvisorRole(role string) bool {
	return strings.Contains(strings.ToLower(role), "advisor")
}

// =============================================================================
// MEMBERS
// =============================================================================

type Member struct {
	ID    string         `json:"id"`
	Name  string         `json:"name"`
	Email string         `json:"email"`
	Role  string         `json:"role"`
	Raw   map[string]any `json:"-"`
}

// AdvisorID is the numeric form of ID, or 0.
func (m Member) AdvisorID() generic.AdvisorID {
	return generic.ParseAdvisorID(m.ID)
}

func (m Member) Department() generic.DepartmentKey {
	return DepartmentFromRole(m.Role)
}

// DisplayName falls back to "ID:<id>".
func (m Member) DisplayName() string {
	if m.Name != "" {
		return m.Name
	}
	return "ID:" + m.ID
}

func firstString(raw map[string]any, keys ...string) string {
	for _, k := range keys {
		v, ok := raw[k]
		if !ok || v == nil {
			continue
		}
		s := strings.TrimSpace(fmt.Sprint(v))
		if s != "" {
			return s
		}
	}
	return ""
}

func idString(v any) string {
	switch n := v.(type) {
	case nil:
		return ""
	case float64:
		if n == float64(int64(n)) {
			return fmt.Sprintf("%d", int64(n))
		}
	}
	return strings.TrimSpace(fmt.Sprint(v))
}

// NormalizeMembers accepts a bare array or an object holding the list under
// items, members or users. Members without an id are dropped.
func NormalizeMembers(payload any) []Member {
	var list []any
	switch p := payload.(type) {
	case []any:
		list = p
	case map[string]any:
		for _, key := range []string{"items", "members", "users"} {
			if arr, ok := p[key].([]any); ok {
				list = arr
				break
			}
		}
	}

	members := make([]Member, 0, len(list))
	for _, item := range list {
		raw, ok := item.(map[string]any)
		if !ok {
			continue
		}
		var id string
		for _, key := range []string{"id", "user_id", "userId"} {
			if v, ok := raw[key]; ok && v != nil {
				id = idString(v)
				break
			}
		}
		if id == "" {
			continue
		}
		role := firstString(raw, "role")
		if role == "" {
			if admin, _ := raw["is_admin"].(bool); admin {
				role = "admin"
			} else {
				role = "member"
			}
		}
		members = append(members, Member{
			ID:    id,
			Name:  firstString(raw, "name", "fullName", "displayName"),
			Email: firstString(raw, "email", "user_email", "userEmail", "mail"),
			Role:  role,
			Raw:   raw,
		})
	}
	return members
}

// FindMember matches by id, then case-insensitive email, then exact name.
func FindMember(members []Member, id, email, name string) (Member, bool) {
	if id != "" {
		for _, m := range members {
			if m.ID == id {
				return m, true
			}
		}
	}
	if email != "" {
		for _, m := range members {
			if strings.EqualFold(m.Email, email) {
				return m, true
			}
		}
	}
	if name != "" {
		for _, m := range members {
			if m.Name == name {
				return m, true
			}
		}
	}
	return Member{}, false
}

// Advisors filters members whose role mentions advisor.
func Advisors(members []Member) []Member {
	out := make([]Member, 0, len(members))
	for _, m := range members {
		if IsAdvisorRole(m.Role) {
			out = append(out, m)
		}
	}
	return out
}

// MembersByDepartment filters members by role-derived department.
func MembersByDepartment(members []Member, dept generic.DepartmentKey) []Member {
	out := make([]Member, 0, len(members))
	for _, m := range members {
		if m.Department() == dept {
			out = append(out, m)
		}
	}
	return out
}
