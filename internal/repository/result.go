package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"caro-backend/internal/entity"
)

var ErrResultNotFound = errors.New("game result not found")

// ResultRepository archives finished-game results. Room state itself never
// touches storage; only the terminal outcome is recorded.
type ResultRepository interface {
	Save(ctx context.Context, result *entity.GameResult) error
	GetByRoomID(ctx context.Context, roomID string) (*entity.GameResult, error)
}

type dbResult struct {
	client *redis.Client
}

func NewResultRepository(client *redis.Client) ResultRepository {
	return &dbResult{
		client: client,
	}
}

func (that *dbResult) Save(ctx context.Context, result *entity.GameResult) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("could not marshal game result: %w", err)
	}

	resultKey := "result:" + result.RoomID
	if err = that.client.Set(ctx, resultKey, resultJSON, 0).Err(); err != nil {
		return fmt.Errorf("failed to set game result: %w", err)
	}

	return nil
}

func (that *dbResult) GetByRoomID(ctx context.Context, roomID string) (*entity.GameResult, error) {
	resultKey := "result:" + roomID

	response, err := that.client.Get(ctx, resultKey).Result()

	if errors.Is(err, redis.Nil) {
		return nil, ErrResultNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get game result: %w", err)
	}

	var result entity.GameResult
	if err = json.Unmarshal([]byte(response), &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal game result: %w", err)
	}

	return &result, nil
}
