// Пакет journal — файловый журнал пакетов импорта.
// Каждый пакет — отдельный файл {tx_id}.journal.json в директории журнала.
// Журнал перечисляет директории элементов, созданные пакетом, чтобы
// незавершённый пакет можно было откатить целиком.
package journal

import (
	"time"
)

// OperationType — тип пакетной операции.
type OperationType string

const (
	// OpImportPaths — импорт файлов по путям
	OpImportPaths OperationType = "import_paths"
	// OpImportPayloads — импорт файлов, переданных в памяти
	OpImportPayloads OperationType = "import_payloads"
)

// TransactionStatus — статус транзакции журнала.
type TransactionStatus string

const (
	// StatusPending — пакет в процессе
	StatusPending TransactionStatus = "pending"
	// StatusCommitted — все элементы пакета импортированы
	StatusCommitted TransactionStatus = "committed"
	// StatusRolledBack — пакет отменён, директории элементов удалены
	StatusRolledBack TransactionStatus = "rolled_back"
)

// Entry — запись журнала.
type Entry struct {
	TransactionID string            `json:"transaction_id"`
	Operation     OperationType     `json:"operation"`
	Status        TransactionStatus `json:"status"`

	// ItemDirs — директории элементов в порядке создания.
	// Директория попадает в журнал до того, как создаётся на диске.
	ItemDirs []string `json:"item_dirs"`

	StartedAt time.Time `json:"started_at"`

	// CompletedAt — nil для pending транзакций.
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

const fileSuffix = ".journal.json"

func entryFileName(txID string) string {
	return txID + fileSuffix
}
