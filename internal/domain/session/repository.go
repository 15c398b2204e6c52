package session

import (
	"context"
)

// ══════════════════════════════════════════════════════════════════════════════
// STORAGE KEYS
// ══════════════════════════════════════════════════════════════════════════════

// Ключи локального хранилища. Значения совместимы с мобильным клиентом.
const (
	KeyOnboardingSeen = "has_seen_onboarding"
	KeyUserRole       = "local_user_role"
	KeyTokens         = "session_tokens"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACES
// Эти интерфейсы определяют контракт для работы с бэкендом и хранилищем.
// Реализации находятся в infrastructure.
// ══════════════════════════════════════════════════════════════════════════════

// AuthGateway - сервис аутентификации бэкенда.
type AuthGateway interface {
	// SignInWithPassword входит по email и паролю.
	// Возвращает shared.ErrInvalidCredentials при неверной паре.
	SignInWithPassword(ctx context.Context, email, password string) (*AuthSession, error)

	// SignUp регистрирует аккаунт. Сессия не создаётся до подтверждения email.
	SignUp(ctx context.Context, email, password, fullName string) (*AuthUser, error)

	// AuthorizeURL строит адрес страницы провайдера без открытия браузера.
	AuthorizeURL(ctx context.Context, provider, redirectURL string) (string, error)

	// SetSession принимает пару токенов из OAuth-редиректа.
	SetSession(ctx context.Context, accessToken, refreshToken string) (*AuthSession, error)

	// RefreshSession обменивает refresh token на новую пару.
	RefreshSession(ctx context.Context, refreshToken string) (*AuthSession, error)

	// GetUser проверяет access token на сервере.
	GetUser(ctx context.Context, accessToken string) (*AuthUser, error)

	// SignOut отзывает сессию на сервере.
	SignOut(ctx context.Context, accessToken string) error
}

// ProfileRepository - таблица profiles.
type ProfileRepository interface {
	// GetByID возвращает профиль пользователя.
	// Возвращает ошибку с shared.ErrNotFound, если строки нет.
	GetByID(ctx context.Context, userID string) (*Profile, error)

	// Create вставляет профиль после регистрации.
	Create(ctx context.Context, profile *Profile) error
}

// LocalStore - локальное хранилище сессии. Все записи, меняющие больше
// одного ключа, атомарны.
type LocalStore interface {
	// Load читает все ключи. Отсутствующие ключи дают нулевые значения.
	Load(ctx context.Context) (Snapshot, error)

	// SaveSignedIn атомарно пишет роль, флаг онбординга и токены.
	SaveSignedIn(ctx context.Context, role Role, tokens Tokens) error

	// SaveRole пишет запрошенную роль (перед OAuth-редиректом).
	SaveRole(ctx context.Context, role Role) error

	// SaveTokens перезаписывает токены после refresh.
	SaveTokens(ctx context.Context, tokens Tokens) error

	// MarkOnboardingSeen идемпотентно ставит has_seen_onboarding=true.
	MarkOnboardingSeen(ctx context.Context) error

	// ClearSession удаляет роль и токены. Флаг онбординга остаётся.
	ClearSession(ctx context.Context) error
}
