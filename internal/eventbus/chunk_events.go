package eventbus

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Типы событий жизненного цикла чанков.
const (
	EventChunkReady    = "chunk.ready"
	EventChunkUnloaded = "chunk.unloaded"
)

// ChunkEvent тело события чанка. Сериализуется в Envelope.Payload.
type ChunkEvent struct {
	X        int     `json:"x"`
	Y        int     `json:"y"`
	Items    int     `json:"items"`    // Всего элементов работы чанка
	Failures int     `json:"failures"` // Из них завершились ошибкой
	Elapsed  float64 `json:"elapsed_ms,omitempty"`
}

// NewChunkEnvelope упаковывает ChunkEvent в конверт шины.
// Ошибку сериализации здесь можно игнорировать: ChunkEvent — плоская структура.
func NewChunkEnvelope(eventType string, ev ChunkEvent) *Envelope {
	payload, _ := json.Marshal(ev)
	return &Envelope{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Source:    "stream",
		EventType: eventType,
		Priority:  3,
		Payload:   payload,
	}
}

// DecodeChunkEvent распаковывает тело события чанка.
func DecodeChunkEvent(ev *Envelope) (ChunkEvent, error) {
	var ce ChunkEvent
	err := json.Unmarshal(ev.Payload, &ce)
	return ce, err
}
