package session

import (
	"github.com/jkcollege/school-portal/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// ROLE RESOLUTION
// ══════════════════════════════════════════════════════════════════════════════

// ResolveEffectiveRole решает, с какой ролью пользователь войдёт.
//
//	requested        server           result
//	admin            admin            admin
//	admin            teacher/student  ErrAdminNotVerified
//	teacher/student  any              requested (понижение разрешено)
//	none             valid            server
//	none             none             student
//
// Профиля нет (server == RoleNone): запрошенная роль принимается,
// кроме admin.
func ResolveEffectiveRole(requested, server Role) (Role, error) {
	if !requested.IsValid() {
		requested = RoleNone
	}
	if !server.IsValid() {
		server = RoleNone
	}

	switch requested {
	case RoleAdmin:
		if server == RoleAdmin {
			return RoleAdmin, nil
		}
		return RoleNone, shared.ErrAdminNotVerified
	case RoleTeacher, RoleStudent:
		return requested, nil
	default:
		if server != RoleNone {
			return server, nil
		}
		return RoleStudent, nil
	}
}

// ResolveRestoredRole выбирает роль при старте из кэшированной роли
// и роли профиля. Кэшированный admin без admin-профиля понижается
// до роли профиля (без профиля - до student), пустое значение падает
// на профиль, затем на student.
func ResolveRestoredRole(cached, server Role) Role {
	if !cached.IsValid() {
		cached = RoleNone
	}
	if !server.IsValid() {
		server = RoleNone
	}

	validated := cached
	if cached == RoleAdmin && server != RoleAdmin {
		validated = server
	}

	switch {
	case validated != RoleNone:
		return validated
	case server != RoleNone:
		return server
	default:
		return RoleStudent
	}
}
