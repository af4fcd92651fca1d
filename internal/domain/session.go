package domain

type SessionState string

const (
	StateSignedOut      SessionState = "signed_out"
	StateLoadingProfile SessionState = "loading_profile"
	StateAuthenticated  SessionState = "authenticated"
	StateGuest          SessionState = "guest"
)

// ActorKind tells who is operating the client without overloading the
// profile id.
type ActorKind string

const (
	ActorAnonymous ActorKind = "anonymous"
	ActorGuest     ActorKind = "guest"
	ActorMember    ActorKind = "member"
)

// Session is a read-only snapshot of the client session. Mutations go
// through the session store; a snapshot never changes after it is taken.
type Session struct {
	User            *Profile     `json:"user"`
	Token           string       `json:"-"`
	IsAuthenticated bool         `json:"is_authenticated"`
	IsLoading       bool         `json:"is_loading"`
	Actor           ActorKind    `json:"actor"`
	State           SessionState `json:"state"`
	Generation      uint64       `json:"generation"`
	Revision        uint64       `json:"revision"`
}

func (s Session) HasToken() bool { return s.Token != "" }

// Role returns the actor role or "" when nobody is signed in.
func (s Session) Role() Role {
	if s.User == nil {
		return ""
	}
	return s.User.Role
}

func (s Session) MemberLevel() MemberLevel {
	if s.User == nil {
		return ""
	}
	return s.User.MemberLevel
}
