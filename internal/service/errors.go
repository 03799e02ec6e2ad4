package service

import "github.com/crlx1q/antimat/internal/apperr"

var (
	ErrInvalidInput       = apperr.Validation("invalid_input", "Некорректные данные запроса")
	ErrInvalidID          = apperr.Validation("invalid_id", "Некорректный идентификатор")
	ErrInvalidCredentials = apperr.Auth("invalid_credentials", "Неверный email или пароль")
	ErrEmailTaken         = apperr.Conflict("email_taken", "Пользователь с таким email уже существует")
	ErrUserNotFound       = apperr.NotFound("user_not_found", "Пользователь не найден")

	ErrWordTooShort = apperr.Validation("word_too_short", "Слово должно содержать минимум 2 символа")
	ErrWordExists   = apperr.Conflict("word_exists", "Это слово уже добавлено")
	ErrWordNotFound = apperr.NotFound("word_not_found", "Слово не найдено")
	ErrWordLimit    = apperr.LimitExceeded("word_limit", "Достигнут лимит слов")

	ErrPenaltyLocked    = apperr.Validation("penalty_amount_locked", "Сумму штрафа можно менять раз в неделю")
	ErrEmptyWord        = apperr.Validation("word_required", "Слово обязательно")
	ErrInvalidPeriod    = apperr.Validation("invalid_period", "Неизвестный период")
	ErrPenaltyNotFound  = apperr.NotFound("penalty_not_found", "Штраф не найден")
	ErrAlreadyForgiven  = apperr.Conflict("already_forgiven", "Штраф уже прощён")
	ErrForgiveForbidden = apperr.Forbidden("forgive_forbidden", "Нет прав для прощения этого штрафа")

	ErrGroupNotFound     = apperr.NotFound("group_not_found", "Группа не найдена")
	ErrGroupNameRequired = apperr.Validation("group_name_required", "Название группы обязательно")
	ErrInviteCodeInvalid = apperr.NotFound("invite_code_invalid", "Группа с таким кодом не найдена")
	ErrAlreadyMember     = apperr.Conflict("already_member", "Вы уже состоите в этой группе")
	ErrNotMember         = apperr.Forbidden("not_member", "Вы не состоите в этой группе")
	ErrGroupLimit        = apperr.LimitExceeded("group_limit", "Достигнут лимит групп")
	ErrOwnerCannotLeave  = apperr.Forbidden("owner_cannot_leave", "Владелец не может покинуть группу. Удалите группу или передайте права")
	ErrNotOwner          = apperr.Forbidden("not_owner", "Только владелец может выполнить это действие")
	ErrNotGroupAdmin     = apperr.Forbidden("not_group_admin", "Недостаточно прав в группе")
	ErrStatsHidden       = apperr.Forbidden("stats_hidden", "Статистика группы скрыта владельцем")
	ErrTransferTarget    = apperr.Validation("transfer_target_invalid", "Новый владелец должен быть участником группы")

	ErrEmptyMessage = apperr.Validation("message_empty", "Сообщение не может быть пустым")
	ErrMessageLong  = apperr.Validation("message_too_long", "Сообщение слишком длинное")

	ErrInvalidAdminPassword = apperr.Auth("invalid_credentials", "Неверный пароль")
	ErrInvalidPremiumPeriod = apperr.Validation("invalid_premium_period", "Неверный период. Доступны: 7d, 14d, 1m, 3m, 6m, 12m")
	ErrAdminNotConfigured   = apperr.New(apperr.KindInternal, "admin_not_configured", "Админский пароль не настроен")
	ErrNoPushTokens         = apperr.Validation("no_push_tokens", "Нет доступных FCM токенов")

	ErrUpdateNotFound  = apperr.NotFound("update_not_found", "Обновление не найдено")
	ErrVersionExists   = apperr.Conflict("version_exists", "Такая версия уже загружена")
	ErrVersionRequired = apperr.Validation("version_required", "Версия обязательна")
	ErrVersionInvalid  = apperr.Validation("version_invalid", "Версия должна состоять из чисел, разделённых точками")
	ErrNotAPK          = apperr.Validation("not_apk", "Разрешены только APK файлы")
	ErrFileRequired    = apperr.Validation("file_required", "APK файл обязателен")
	ErrFileTooLarge    = apperr.Validation("file_too_large", "Файл слишком большой")
	ErrNoRelease       = apperr.NotFound("no_release", "Нет доступных обновлений")
)
