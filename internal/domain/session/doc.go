// Package session содержит доменную модель сессии школьного портала.
//
// Пакет определяет:
//
//   - Value Objects: Role, Tokens
//   - Сущности: Session (снимок), Profile, AuthUser
//   - Правила: ResolveEffectiveRole, ResolveRestoredRole
//   - Интерфейсы: AuthGateway, ProfileRepository, LocalStore
//
// # Роли
//
// Роль, выбранная на экране входа, только запрашивается. Решает профиль
// на сервере:
//
//	role, err := ResolveEffectiveRole(RoleAdmin, profile.Role)
//	if errors.Is(err, shared.ErrForbidden) {
//	    // сессию нужно закрыть, пользователь остаётся не вошедшим
//	}
//
// Администратор может войти как учитель, но не наоборот.
//
// # Состояния
//
//	Unknown -> Restore -> Unauthenticated | Authenticated(role)
//	Unauthenticated -> SignIn/OAuth -> Authenticated
//	Authenticated -> SignOut -> Unauthenticated
//
// Session всегда копируется по значению, поэтому роль и флаг входа
// не могут разойтись при чтении.
package session
