package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/redis/go-redis/v9"
)

// FileStore guarda las metas como JSON en disco.
type FileStore struct {
	path string
}

func NewFileStore(path string) *FileStore { return &FileStore{path: path} }

func (s *FileStore) Load(_ context.Context) (Goals, bool, error) {
	b, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return Goals{}, false, nil
	}
	if err != nil {
		return Goals{}, false, err
	}
	// campos ausentes conservan el valor por defecto
	g := DefaultGoals()
	if err := json.Unmarshal(b, &g); err != nil {
		return Goals{}, false, fmt.Errorf("%s: %w", s.path, err)
	}
	return g, true, nil
}

// Save escribe a un temporal y renombra para no dejar archivos a medias.
func (s *FileStore) Save(_ context.Context, g Goals) error {
	b, err := json.MarshalIndent(g, "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

// RedisStore guarda las metas bajo una sola clave sin expiración.
type RedisStore struct {
	client redis.UniversalClient
	key    string
}

func NewRedisStore(client redis.UniversalClient, key string) *RedisStore {
	if key == "" {
		key = "metta:goals"
	}
	return &RedisStore{client: client, key: key}
}

func (s *RedisStore) Load(ctx context.Context) (Goals, bool, error) {
	b, err := s.client.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return Goals{}, false, nil
	}
	if err != nil {
		return Goals{}, false, err
	}
	g := DefaultGoals()
	if err := json.Unmarshal(b, &g); err != nil {
		return Goals{}, false, err
	}
	return g, true, nil
}

func (s *RedisStore) Save(ctx context.Context, g Goals) error {
	b, err := json.Marshal(g)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.key, b, 0).Err()
}
