package model

import (
	"time"

	"github.com/fsonner/restauth-bridge/internal/domain"
)

type Error struct {
	Code    int    `json:"Code"`
	Message string `json:"Message"`
	// Key is the stable message key the host platform maps to a localized
	// error text. Empty for errors without a remote service cause.
	Key string `json:"Key,omitempty"`
}

// Preference is the wire form of a tagged preference value.
type Preference struct {
	Kind  string `json:"Kind"`
	Value any    `json:"Value,omitempty"`
}

const (
	KindNull   = "null"
	KindString = "string"
	KindInt    = "int"
	KindFloat  = "float"
	KindBool   = "bool"
)

// NewPreference converts a domain preference value to its wire form.
func NewPreference(v domain.PreferenceValue) Preference {
	switch v.Kind {
	case domain.KindString:
		return Preference{Kind: KindString, Value: v.StringVal}
	case domain.KindInt:
		return Preference{Kind: KindInt, Value: v.IntVal}
	case domain.KindFloat:
		return Preference{Kind: KindFloat, Value: v.FloatVal}
	case domain.KindBool:
		return Preference{Kind: KindBool, Value: v.BoolVal}
	default:
		return Preference{Kind: KindNull}
	}
}

// DomainValue converts the wire form back to a domain preference value.
// JSON numbers arrive as float64, integral values are narrowed back.
func (p Preference) DomainValue() domain.PreferenceValue {
	switch p.Kind {
	case KindString:
		s, _ := p.Value.(string)
		return domain.StringValue(s)
	case KindInt:
		f, _ := p.Value.(float64)
		return domain.IntValue(int64(f))
	case KindFloat:
		f, _ := p.Value.(float64)
		return domain.FloatValue(f)
	case KindBool:
		b, _ := p.Value.(bool)
		return domain.BoolValue(b)
	default:
		return domain.NullValue()
	}
}

type User struct {
	Identifier     string     `json:"Identifier"`
	LegacyId       int64      `json:"LegacyId"`
	RealName       string     `json:"RealName"`
	Email          string     `json:"Email"`
	EmailConfirmed bool       `json:"EmailConfirmed"`
	LastRefresh    *time.Time `json:"LastRefresh,omitempty"`

	Groups       []string              `json:"Groups"`
	Preferences  map[string]Preference `json:"Preferences"`
	FormerGroups []string              `json:"FormerGroups,omitempty"`
}

func NewUser(u *domain.User) User {
	prefs := make(map[string]Preference, len(u.Preferences))
	for _, p := range u.Preferences {
		prefs[p.Key] = NewPreference(p.Value())
	}

	former := make([]string, 0, len(u.FormerGroups))
	for _, g := range u.FormerGroups {
		former = append(former, g.Group)
	}

	return User{
		Identifier:     string(u.Identifier),
		LegacyId:       u.LegacyId,
		RealName:       u.RealName,
		Email:          u.Email,
		EmailConfirmed: u.EmailConfirmed,
		LastRefresh:    u.LastRefresh,
		Groups:         u.GroupNames(),
		Preferences:    prefs,
		FormerGroups:   former,
	}
}

type LoginRequest struct {
	Username string `json:"Username"`
	Password string `json:"Password"`
}

type PasswordChangeRequest struct {
	Username    string `json:"Username"`
	OldPassword string `json:"OldPassword"`
	NewPassword string `json:"NewPassword"`
}

type PasswordResetRequest struct {
	Username    string `json:"Username"`
	NewPassword string `json:"NewPassword"`
}

type CreateUserRequest struct {
	Username string `json:"Username"`
	Password string `json:"Password"`
	RealName string `json:"RealName"`
	Email    string `json:"Email"`
}

type InitUserRequest struct {
	LegacyId int64 `json:"LegacyId"`
}

type PageViewRequest struct {
	OwnPreferencesPage bool `json:"OwnPreferencesPage"`
	FormSubmission     bool `json:"FormSubmission"`
}

type SavePreferencesRequest struct {
	RealName       string                `json:"RealName"`
	Email          string                `json:"Email"`
	EmailConfirmed bool                  `json:"EmailConfirmed"`
	Preferences    map[string]Preference `json:"Preferences"`
}

type ExistsResponse struct {
	Exists bool `json:"Exists"`
}

type NormalizedNameResponse struct {
	Name string `json:"Name"`
}

type GroupsResponse struct {
	Groups       []string `json:"Groups"`
	FormerGroups []string `json:"FormerGroups"`
}
