package event

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// New は新しいイベントを生成する。
// dataには種類ごとのデータ構造体を渡す。nilの場合はDataを空にする。
func New(kind Kind, access Access, data any) (*Event, error) {
	var jsonData json.RawMessage
	if data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("イベントデータのシリアライズに失敗: %w", err)
		}
		jsonData = b
	}

	return &Event{
		ID:         uuid.New().String(),
		RequestID:  access.RequestID,
		Kind:       kind,
		SecretName: access.SecretName,
		Role:       access.Role,
		Subject:    access.Subject,
		Outcome:    access.Outcome,
		StatusCode: access.StatusCode,
		Data:       jsonData,
		CreatedAt:  time.Now().UTC(),
	}, nil
}

// DecodeData はイベントのDataフィールドを指定された型にデシリアライズする。
func DecodeData[T any](e *Event) (*T, error) {
	var data T
	if len(e.Data) == 0 {
		return &data, nil
	}
	if err := json.Unmarshal(e.Data, &data); err != nil {
		return nil, fmt.Errorf("イベントデータのデシリアライズに失敗: %w", err)
	}
	return &data, nil
}
