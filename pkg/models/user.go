package models

import (
	"strings"

	"github.com/alim08/cryptobook/pkg/validation"
)

// SubLevel is a user's subscription tier.
type SubLevel string

const (
	SubLevelFree   SubLevel = "FREE"
	SubLevelBronze SubLevel = "BRONZE"
	SubLevelSilver SubLevel = "SILVER"
	SubLevelGold   SubLevel = "GOLD"
)

// SubLevels lists the tiers in ascending order.
var SubLevels = []SubLevel{SubLevelFree, SubLevelBronze, SubLevelSilver, SubLevelGold}

// IsValid reports whether l is one of the known tiers.
func (l SubLevel) IsValid() bool {
	switch l {
	case SubLevelFree, SubLevelBronze, SubLevelSilver, SubLevelGold:
		return true
	}
	return false
}

// ParseSubLevel maps a case-insensitive tier name to a SubLevel.
func ParseSubLevel(s string) (SubLevel, bool) {
	l := SubLevel(strings.ToUpper(strings.TrimSpace(s)))
	return l, l.IsValid()
}

// User is a persisted account. ID is assigned by the record store.
type User struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	UserName string   `json:"userName"`
	Password string   `json:"-"` // bcrypt hash, never serialized
	Avatar   string   `json:"avatar"`
	Bio      string   `json:"bio"`
	SubLevel SubLevel `json:"subLevel"`
}

// Clone returns a copy that shares no state with u.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	return &c
}

// UserInput is the addUser mutation payload.
type UserInput struct {
	Name     string   `json:"name" validate:"max=100"`
	UserName string   `json:"userName" validate:"required,handle"`
	Password string   `json:"password" validate:"maxbytes=72"`
	Avatar   string   `json:"avatar" validate:"omitempty,url,max=2048"`
	Bio      string   `json:"bio" validate:"max=500"`
	SubLevel SubLevel `json:"subLevel" validate:"sublevel"`
}

// Sanitize trims and strips control characters from the free-text fields.
func (in *UserInput) Sanitize() {
	in.Name = validation.SanitizeString(in.Name)
	in.UserName = validation.SanitizeString(in.UserName)
	in.Avatar = validation.SanitizeString(in.Avatar)
	in.Bio = validation.SanitizeString(in.Bio)
}

// Validate validates the UserInput struct
func (in UserInput) Validate() error {
	if errs := validation.ValidateStruct(in); len(errs) > 0 {
		return errs
	}
	return nil
}

// ToUser builds the unsaved user. The tier defaults to FREE and the password
// is replaced by passwordHash.
func (in UserInput) ToUser(passwordHash string) User {
	level := in.SubLevel
	if level == "" {
		level = SubLevelFree
	}
	return User{
		Name:     in.Name,
		UserName: in.UserName,
		Password: passwordHash,
		Avatar:   in.Avatar,
		Bio:      in.Bio,
		SubLevel: level,
	}
}
