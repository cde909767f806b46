package storage

import (
	"context"
	"errors"
	"fmt"

	"backend-postboard/internal/db"
	"backend-postboard/internal/shared/apperr"

	"github.com/jackc/pgx/v5"
)

// Media is a raw upload attached to a post.
type Media struct {
	ContentType string
	Data        []byte
}

type Service struct {
	db db.Querier
}

func NewService(db db.Querier) *Service {
	return &Service{db: db}
}

// PutMedia stores or replaces the media of a post.
func (s *Service) PutMedia(ctx context.Context, postID string, m Media) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO post_media (post_id, content_type, data)
		VALUES ($1,$2,$3)
		ON CONFLICT (post_id) DO UPDATE SET content_type=EXCLUDED.content_type, data=EXCLUDED.data
	`, postID, m.ContentType, m.Data)
	if err != nil {
		return fmt.Errorf("put media: %w", err)
	}
	return nil
}

func (s *Service) GetMedia(ctx context.Context, postID string) (Media, error) {
	var m Media
	err := s.db.QueryRow(ctx, `
		SELECT content_type, data FROM post_media WHERE post_id=$1
	`, postID).Scan(&m.ContentType, &m.Data)
	if errors.Is(err, pgx.ErrNoRows) {
		return Media{}, apperr.NotFound("media not found")
	}
	if err != nil {
		return Media{}, fmt.Errorf("get media: %w", err)
	}
	return m, nil
}

// MediaPosts reports which of the given posts carry media.
func (s *Service) MediaPosts(ctx context.Context, postIDs []string) (map[string]string, error) {
	out := map[string]string{}
	if len(postIDs) == 0 {
		return out, nil
	}
	rows, err := s.db.Query(ctx, `
		SELECT post_id, content_type FROM post_media WHERE post_id = ANY($1)
	`, postIDs)
	if err != nil {
		return nil, fmt.Errorf("list media: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id, contentType string
		if err := rows.Scan(&id, &contentType); err != nil {
			return nil, err
		}
		out[id] = contentType
	}
	return out, rows.Err()
}
