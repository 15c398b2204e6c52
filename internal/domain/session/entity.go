package session

import (
	"strings"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// VALUE OBJECTS
// ══════════════════════════════════════════════════════════════════════════════

// Role определяет роль пользователя в портале.
type Role string

const (
	// RoleNone - роль не выбрана (гость или сессия очищена).
	RoleNone Role = ""
	// RoleStudent - ученик.
	RoleStudent Role = "student"
	// RoleTeacher - учитель.
	RoleTeacher Role = "teacher"
	// RoleAdmin - администратор (директор).
	RoleAdmin Role = "admin"
)

// ParseRole нормализует строку в Role. Неизвестные значения дают RoleNone.
func ParseRole(s string) Role {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if r.IsValid() {
		return r
	}
	return RoleNone
}

// IsValid проверяет, что роль одна из трёх допустимых.
func (r Role) IsValid() bool {
	switch r {
	case RoleStudent, RoleTeacher, RoleAdmin:
		return true
	default:
		return false
	}
}

// String возвращает строковое представление роли.
func (r Role) String() string {
	return string(r)
}

// Label возвращает подпись роли для шапки кабинета.
func (r Role) Label() string {
	switch r {
	case RoleAdmin:
		return "Principal"
	case RoleTeacher:
		return "Teacher"
	case RoleStudent:
		return "Student"
	default:
		return "Guest"
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// ENUMS
// ══════════════════════════════════════════════════════════════════════════════

// State - состояние резолвера сессии.
type State int

const (
	// StateUnknown - хранилище ещё не прочитано.
	StateUnknown State = iota
	// StateUnauthenticated - пользователь не вошёл.
	StateUnauthenticated
	// StateAuthenticated - пользователь вошёл, роль проверена.
	StateAuthenticated
)

// String возвращает имя состояния.
func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateAuthenticated:
		return "authenticated"
	default:
		return "unknown"
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// MAIN ENTITY: SESSION
// ══════════════════════════════════════════════════════════════════════════════

// Session - снимок состояния аутентификации. Всегда передаётся по значению,
// поэтому роль и флаг authenticated читаются согласованно.
type Session struct {
	State          State  `json:"state"`
	Authenticated  bool   `json:"authenticated"`
	Role           Role   `json:"role"`
	UserID         string `json:"user_id,omitempty"`
	OnboardingSeen bool   `json:"onboarding_seen"`
}

// Unauthenticated возвращает пустую сессию с сохранённым флагом онбординга.
func Unauthenticated(onboardingSeen bool) Session {
	return Session{
		State:          StateUnauthenticated,
		OnboardingSeen: onboardingSeen,
	}
}

// Authenticated возвращает сессию вошедшего пользователя.
func Authenticated(userID string, role Role, onboardingSeen bool) Session {
	return Session{
		State:          StateAuthenticated,
		Authenticated:  true,
		Role:           role,
		UserID:         userID,
		OnboardingSeen: onboardingSeen,
	}
}

// IsReady возвращает true, когда состояние восстановлено из хранилища.
func (s Session) IsReady() bool {
	return s.State != StateUnknown
}

// Destination - куда навигация должна отправить пользователя.
type Destination string

const (
	DestinationSplash     Destination = "splash"
	DestinationOnboarding Destination = "onboarding"
	DestinationLogin      Destination = "login"
	DestinationStudent    Destination = "student"
	DestinationTeacher    Destination = "teacher"
	DestinationAdmin      Destination = "admin"
)

// Destination выбирает экран для гейтинга навигации.
func (s Session) Destination() Destination {
	switch {
	case !s.IsReady():
		return DestinationSplash
	case !s.Authenticated && !s.OnboardingSeen:
		return DestinationOnboarding
	case !s.Authenticated:
		return DestinationLogin
	case s.Role == RoleAdmin:
		return DestinationAdmin
	case s.Role == RoleTeacher:
		return DestinationTeacher
	default:
		return DestinationStudent
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// PROFILE & TOKENS
// ══════════════════════════════════════════════════════════════════════════════

// Profile - строка таблицы profiles. Роль в профиле - источник истины.
type Profile struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

// DisplayName возвращает "first last" без лишних пробелов.
func (p Profile) DisplayName() string {
	return strings.TrimSpace(p.FirstName + " " + p.LastName)
}

// Tokens - сохранённая сессия бэкенда.
type Tokens struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
	UserID       string    `json:"user_id"`
}

// IsZero возвращает true, если токенов нет.
func (t Tokens) IsZero() bool {
	return t.AccessToken == "" && t.RefreshToken == ""
}

// ExpiresWithin проверяет, истекает ли access token в ближайшие skew.
// Неизвестный срок считается истёкшим.
func (t Tokens) ExpiresWithin(skew time.Duration, now time.Time) bool {
	if t.ExpiresAt.IsZero() {
		return true
	}
	return !now.Add(skew).Before(t.ExpiresAt)
}

// AuthUser - пользователь сервиса аутентификации.
type AuthUser struct {
	ID         string
	Email      string
	FullName   string
	Confirmed  bool
	LastSignIn time.Time
}

// AuthSession - результат успешного входа или обмена токенов.
type AuthSession struct {
	Tokens Tokens
	User   AuthUser
}

// Snapshot - всё, что лежит в локальном хранилище.
type Snapshot struct {
	OnboardingSeen bool
	Role           Role
	Tokens         Tokens
}
