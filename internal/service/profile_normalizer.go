package service

import (
	"strings"

	"github.com/propfront/propfront/internal/domain"
)

// NormalizeProfile maps either server profile shape onto domain.Profile and
// fills every alias, so nothing downstream has to know which shape arrived.
func NormalizeProfile(raw domain.RawProfile) *domain.Profile {
	id := firstInt(raw.UserID, raw.ID)
	active := firstBool(raw.VerifyAccount, raw.IsActive)
	points := firstInt(raw.CurrentPoint, raw.Points, raw.PointBalance)

	name := strings.TrimSpace(raw.Name)
	if name == "" {
		name = strings.TrimSpace(raw.FullName)
	}
	role := raw.Role
	if strings.TrimSpace(role) == "" {
		role = raw.UserType
	}
	level := raw.MemberLevel
	if strings.TrimSpace(level) == "" {
		level = raw.Membership
	}
	memberLevel := domain.ParseMemberLevel(level)
	if memberLevel == "" {
		memberLevel = domain.MemberFree
	}

	p := &domain.Profile{
		ID:            id,
		UserID:        id,
		Email:         strings.TrimSpace(raw.Email),
		Name:          name,
		Phone:         strings.TrimSpace(raw.Phone),
		AvatarURL:     raw.AvatarURL,
		Role:          domain.ParseRole(role),
		MemberLevel:   memberLevel,
		VerifyAccount: active,
		IsActive:      active,
		CurrentPoint:  points,
		Points:        points,
		PointBalance:  points,
	}
	if len(raw.Achievements) > 0 {
		p.Achievements = make(map[string]bool, len(raw.Achievements))
		for k, v := range raw.Achievements {
			p.Achievements[k] = v
		}
	}
	return p
}

// applyProfileUpdate merges non-nil fields of patch into p.
func applyProfileUpdate(p *domain.Profile, patch domain.ProfileUpdate) {
	if patch.Email != nil {
		p.Email = *patch.Email
	}
	if patch.Name != nil {
		p.Name = *patch.Name
	}
	if patch.Phone != nil {
		p.Phone = *patch.Phone
	}
	if patch.AvatarURL != nil {
		p.AvatarURL = *patch.AvatarURL
	}
	if patch.MemberLevel != nil {
		p.MemberLevel = *patch.MemberLevel
	}
	if patch.PointBalance != nil {
		p.PointBalance = *patch.PointBalance
		p.CurrentPoint = *patch.PointBalance
		p.Points = *patch.PointBalance
	}
	if patch.Achievements != nil {
		p.Achievements = make(map[string]bool, len(patch.Achievements))
		for k, v := range patch.Achievements {
			p.Achievements[k] = v
		}
	}
}

func firstInt(vals ...*int64) int64 {
	for _, v := range vals {
		if v != nil {
			return *v
		}
	}
	return 0
}

func firstBool(vals ...*bool) bool {
	for _, v := range vals {
		if v != nil {
			return *v
		}
	}
	return false
}
