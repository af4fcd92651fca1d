package service

import (
	"slices"

	"github.com/propfront/propfront/internal/domain"
)

type AccessDecisionKind string

const (
	ShowLoading      AccessDecisionKind = "show_loading"
	ShowContent      AccessDecisionKind = "show_content"
	RedirectToSignIn AccessDecisionKind = "redirect_to_sign_in"
	DenyRole         AccessDecisionKind = "deny_role"
	DenyMembership   AccessDecisionKind = "deny_membership"
)

type AccessDecision struct {
	Kind AccessDecisionKind
	// ReturnPath is set only for RedirectToSignIn.
	ReturnPath string
}

// AccessRequirements describes what a protected view needs. Empty Roles or
// MemberLevels place no constraint.
type AccessRequirements struct {
	Roles        []domain.Role
	MemberLevels []domain.MemberLevel
	GuestAllowed bool
}

// EvaluateAccess decides what a protected view shows for session. Checks run
// in a fixed order: loading, then authentication (or guest allowance), then
// role, then member level. The first failing check decides.
func EvaluateAccess(session domain.Session, req AccessRequirements, location string) AccessDecision {
	if session.IsLoading {
		return AccessDecision{Kind: ShowLoading}
	}
	if !session.IsAuthenticated {
		// role and level checks only apply to signed-in actors
		if req.GuestAllowed {
			return AccessDecision{Kind: ShowContent}
		}
		return AccessDecision{Kind: RedirectToSignIn, ReturnPath: location}
	}
	if len(req.Roles) > 0 && !slices.Contains(req.Roles, session.Role()) {
		return AccessDecision{Kind: DenyRole}
	}
	if len(req.MemberLevels) > 0 && !slices.Contains(req.MemberLevels, session.MemberLevel()) {
		return AccessDecision{Kind: DenyMembership}
	}
	return AccessDecision{Kind: ShowContent}
}
