package domain

import "strings"

type Role string

const (
	RoleIndividual Role = "individual"
	RoleAgency     Role = "agency"
	RoleDeveloper  Role = "developer"
	RoleAdmin      Role = "admin"
)

type MemberLevel string

const (
	MemberFree     MemberLevel = "free"
	MemberSilver   MemberLevel = "silver"
	MemberGold     MemberLevel = "gold"
	MemberPlatinum MemberLevel = "platinum"
)

func ParseRole(v string) Role {
	return Role(strings.ToLower(strings.TrimSpace(v)))
}

func ParseMemberLevel(v string) MemberLevel {
	return MemberLevel(strings.ToLower(strings.TrimSpace(v)))
}

// Profile is the normalized user record held by the session. The id,
// active-flag and point fields are duplicated under their legacy names
// because consumers read either shape.
type Profile struct {
	ID            int64           `json:"id"`
	UserID        int64           `json:"user_id"`
	Email         string          `json:"email,omitempty"`
	Name          string          `json:"name"`
	Phone         string          `json:"phone,omitempty"`
	AvatarURL     string          `json:"avatar_url,omitempty"`
	Role          Role            `json:"role"`
	MemberLevel   MemberLevel     `json:"member_level"`
	VerifyAccount bool            `json:"verify_account"`
	IsActive      bool            `json:"is_active"`
	CurrentPoint  int64           `json:"current_point"`
	Points        int64           `json:"points"`
	PointBalance  int64           `json:"point_balance"`
	Achievements  map[string]bool `json:"achievements,omitempty"`
	IsGuest       bool            `json:"is_guest"`
}

// Clone returns a deep copy so snapshots never share the achievements map.
func (p *Profile) Clone() *Profile {
	if p == nil {
		return nil
	}
	cp := *p
	if p.Achievements != nil {
		cp.Achievements = make(map[string]bool, len(p.Achievements))
		for k, v := range p.Achievements {
			cp.Achievements[k] = v
		}
	}
	return &cp
}

// GuestProfile is the stand-in record for an actor who declined to sign in.
func GuestProfile() *Profile {
	return &Profile{
		Name:        "Guest",
		MemberLevel: MemberFree,
		IsGuest:     true,
	}
}

// RawProfile is the profile payload as the API sends it. Older and newer
// server versions disagree on field names, so every aliased field is a
// pointer and absent values stay nil.
type RawProfile struct {
	ID            *int64          `json:"id,omitempty"`
	UserID        *int64          `json:"user_id,omitempty"`
	Email         string          `json:"email,omitempty"`
	Name          string          `json:"name,omitempty"`
	FullName      string          `json:"full_name,omitempty"`
	Phone         string          `json:"phone,omitempty"`
	AvatarURL     string          `json:"avatar_url,omitempty"`
	Role          string          `json:"role,omitempty"`
	UserType      string          `json:"user_type,omitempty"`
	MemberLevel   string          `json:"member_level,omitempty"`
	Membership    string          `json:"membership,omitempty"`
	VerifyAccount *bool           `json:"verify_account,omitempty"`
	IsActive      *bool           `json:"is_active,omitempty"`
	CurrentPoint  *int64          `json:"current_point,omitempty"`
	Points        *int64          `json:"points,omitempty"`
	PointBalance  *int64          `json:"point_balance,omitempty"`
	Achievements  map[string]bool `json:"achievements,omitempty"`
}

// ProfileUpdate is a partial profile edit; nil fields are left untouched.
type ProfileUpdate struct {
	Email        *string         `json:"email,omitempty"`
	Name         *string         `json:"name,omitempty"`
	Phone        *string         `json:"phone,omitempty"`
	AvatarURL    *string         `json:"avatar_url,omitempty"`
	MemberLevel  *MemberLevel    `json:"member_level,omitempty"`
	PointBalance *int64          `json:"point_balance,omitempty"`
	Achievements map[string]bool `json:"achievements,omitempty"`
}
