// Package student содержит доменную модель студента платформы практик.
//
// Студент хранит исходные данные (зачисление, ручной уровень) и набор
// денормализованных производных полей:
//
//   - CurrentStreak и LastPracticeDate - из журнала практик и пауз;
//   - SubscriptionStatus - из истории пауз через машину состояний подписки;
//   - Level и Phase - из движка прогресса.
//
// # Архитектурные принципы
//
//  1. Нулевые внешние зависимости - только стандартная библиотека Go
//  2. Dependency Inversion - пакет определяет Repository, реализации в infrastructure
//  3. Производные поля никогда не являются источником истины
//
// # Ручной уровень
//
// ManualLevel (nivel_manual) задаётся администратором и всегда побеждает.
// Сверка никогда не перезаписывает Level, если ManualLevel установлен.
//
// # Пример использования
//
//	s, err := NewStudent(NewStudentParams{
//	    ID:    uuid.New().String(),
//	    Email: "ana@example.com",
//	})
//	if err != nil {
//	    return err
//	}
//	if err := repo.Create(ctx, s); err != nil {
//	    return err
//	}
package student
