package domain

import (
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

type UserIdentifier string

// LastRefreshKey is the preference key that stores the timestamp of the last
// remote-to-local refresh. It is kept in the preference table so the value
// survives the same persistence path as every other preference.
const LastRefreshKey = "restauth_last_refresh"

// User is the local wiki account that is kept in sync with the remote
// authentication service. Passwords are never stored locally, the remote
// service is the only password authority.
type User struct {
	BaseModel

	Identifier UserIdentifier `gorm:"primaryKey;column:identifier"`
	LegacyId   int64          `gorm:"uniqueIndex;column:legacy_id"` // numeric id used by the host platform's tables

	// core account settings, reconciled with the remote property store
	RealName       string
	Email          string
	EmailConfirmed bool

	LastRefresh *time.Time `gorm:"column:last_refresh"`

	Preferences  []UserPreference  `gorm:"foreignKey:user_identifier"`
	Groups       []UserGroup       `gorm:"foreignKey:user_identifier"`
	FormerGroups []FormerUserGroup `gorm:"foreignKey:user_identifier"`
}

// IsPersisted returns true once the host platform assigned a numeric id.
// Group membership may only be written for persisted accounts.
func (u *User) IsPersisted() bool {
	return u.LegacyId != 0
}

// GroupNames returns the current local group memberships.
func (u *User) GroupNames() []string {
	names := make([]string, 0, len(u.Groups))
	for _, g := range u.Groups {
		names = append(names, g.Group)
	}
	return names
}

// PreferenceMap converts the preference rows into a key to value map.
func (u *User) PreferenceMap() map[string]PreferenceValue {
	prefs := make(map[string]PreferenceValue, len(u.Preferences))
	for _, p := range u.Preferences {
		prefs[p.Key] = p.Value()
	}
	return prefs
}

// UserPreference is a single persisted preference row. Values are stored in
// their normalized string form together with the original type tag so that
// the scalar can be restored losslessly.
type UserPreference struct {
	UserIdentifier string         `gorm:"primaryKey;column:user_identifier"`
	Key            string         `gorm:"primaryKey;column:pref_key"`
	RawValue       string         `gorm:"column:pref_value"`
	Kind           PreferenceKind `gorm:"column:pref_kind"`
}

// Value reconstructs the tagged scalar from the stored row.
func (p UserPreference) Value() PreferenceValue {
	switch p.Kind {
	case KindBool:
		return BoolValue(ParseBoolProperty(p.RawValue))
	case KindInt:
		if n, err := strconv.ParseInt(p.RawValue, 10, 64); err == nil {
			return IntValue(n)
		}
		return StringValue(p.RawValue)
	case KindFloat:
		if f, err := strconv.ParseFloat(p.RawValue, 64); err == nil {
			return FloatValue(f)
		}
		return StringValue(p.RawValue)
	case KindNull:
		return NullValue()
	default:
		return StringValue(p.RawValue)
	}
}

// NewUserPreference creates a preference row from a tagged scalar.
func NewUserPreference(id UserIdentifier, key string, value PreferenceValue) UserPreference {
	return UserPreference{
		UserIdentifier: string(id),
		Key:            key,
		RawValue:       value.Normalize(),
		Kind:           value.Kind,
	}
}

// UserGroup is a single local group membership row.
type UserGroup struct {
	UserIdentifier string    `gorm:"primaryKey;column:user_identifier"`
	Group          string    `gorm:"primaryKey;column:group_name"`
	CreatedAt      time.Time `gorm:"column:created_at"`
}

// FormerUserGroup records that a user has been a member of a group in the
// past. Rows are append-only, they are never removed by the synchronizer.
type FormerUserGroup struct {
	UserIdentifier string    `gorm:"primaryKey;column:user_identifier"`
	Group          string    `gorm:"primaryKey;column:group_name"`
	CreatedAt      time.Time `gorm:"column:created_at"`
}

// CanonicalizeUsername normalizes a username the way the host platform does:
// underscores become spaces, surrounding and repeated whitespace is collapsed
// and the first letter is capitalized. An empty result or a name containing
// characters that are forbidden in page titles yields ErrInvalidUsername.
func CanonicalizeUsername(raw string) (UserIdentifier, error) {
	name := strings.ReplaceAll(raw, "_", " ")
	name = strings.Join(strings.Fields(name), " ")
	if name == "" {
		return "", ErrInvalidUsername
	}

	if strings.ContainsAny(name, "#<>[]|{}/@:") {
		return "", ErrInvalidUsername
	}

	r, size := utf8.DecodeRuneInString(name)
	if r == utf8.RuneError {
		return "", ErrInvalidUsername
	}
	name = string(unicode.ToUpper(r)) + name[size:]

	return UserIdentifier(name), nil
}
