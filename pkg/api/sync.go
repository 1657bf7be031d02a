package api

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// SyncEntry представляет один value-set в пакете репликации
type SyncEntry struct {
	Key   string          `json:"key"`   // "<entry uuid>/<attribute>"
	Value json.RawMessage `json:"value"` // сохраненная форма value-set
}

// SyncBundle представляет снимок всех value-set одной реплики
type SyncBundle struct {
	ExportedAt time.Time   `json:"exported_at"`
	Entries    []SyncEntry `json:"entries"`
	ReplicaID  uuid.UUID   `json:"replica_id"`
}

// SyncResponse представляет итог применения пакета или прохода trim
type SyncResponse struct {
	Merged  int `json:"merged"`  // Изменено слиянием
	Skipped int `json:"skipped"` // Уже совпадали с локальными
	Expired int `json:"expired"` // Отброшено отзывов старше cutoff
	Evicted int `json:"evicted"` // Вытеснено сессий сверх лимита
	Failed  int `json:"failed"`  // Не удалось применить
}
