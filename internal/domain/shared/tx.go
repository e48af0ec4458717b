package shared

import "context"

// TxManager выполняет функцию в одной транзакции хранилища.
// Транзакция передаётся через ctx: репозитории, вызванные с этим ctx,
// пишут в неё. Вложенный вызов присоединяется к внешней транзакции.
// Если fn вернула ошибку, все записи откатываются.
type TxManager interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}
