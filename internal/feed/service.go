package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"backend-postboard/internal/db"
	"backend-postboard/internal/shared/apperr"
	"backend-postboard/internal/storage"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const (
	DefaultPageSize = 10
	MaxPageSize     = 50
	DefaultMaxMedia = 4 << 20

	// Topic is the stream topic feed events are broadcast on.
	Topic = "feed"
)

var (
	errPostNotFound    = apperr.NotFound("post not found")
	errCommentNotFound = apperr.NotFound("comment not found")
	errUserNotFound    = apperr.NotFound("user not found")
	errNotAuthor       = apperr.Forbidden("only the author can modify this post")
)

// Broadcaster receives serialized feed events. *stream.Hub satisfies it.
type Broadcaster interface {
	Broadcast(topic string, payload []byte)
}

type Options struct {
	PageSize      int
	MediaMaxBytes int
	Broadcaster   Broadcaster
}

type Service struct {
	db          db.Pool
	pageSize    int
	maxMedia    int
	broadcaster Broadcaster
	now         func() time.Time
}

func NewService(pool db.Pool, opts Options) *Service {
	s := &Service{
		db:          pool,
		pageSize:    opts.PageSize,
		maxMedia:    opts.MediaMaxBytes,
		broadcaster: opts.Broadcaster,
		now:         time.Now,
	}
	if s.pageSize <= 0 {
		s.pageSize = DefaultPageSize
	}
	if s.pageSize > MaxPageSize {
		s.pageSize = MaxPageSize
	}
	if s.maxMedia <= 0 {
		s.maxMedia = DefaultMaxMedia
	}
	return s
}

const postSelect = `
	SELECT p.id, p.content, p.edited, p.created_at, p.updated_at, u.id, u.full_name, u.username
	FROM posts p JOIN users u ON u.id = p.author_id
`

func (s *Service) CreatePost(ctx context.Context, authorID, content string, media *storage.Media) (Post, error) {
	content = strings.TrimSpace(content)
	hasMedia := media != nil && len(media.Data) > 0
	if content == "" && !hasMedia {
		return Post{}, apperr.Validation("post content or media is required")
	}
	if hasMedia {
		if err := s.validateMedia(media); err != nil {
			return Post{}, err
		}
	}

	post := Post{
		ID:       uuid.NewString(),
		Content:  content,
		Author:   Author{ID: authorID},
		Likes:    []string{},
		Comments: []Comment{},
	}
	err := s.inTx(ctx, func(q db.Querier) error {
		err := q.QueryRow(ctx, `
			SELECT full_name, username FROM users WHERE id=$1
		`, authorID).Scan(&post.Author.FullName, &post.Author.Username)
		if errors.Is(err, pgx.ErrNoRows) {
			return apperr.NotFound("author not found")
		}
		if err != nil {
			return fmt.Errorf("load author: %w", err)
		}

		row := q.QueryRow(ctx, `
			INSERT INTO posts (id, author_id, content)
			VALUES ($1,$2,$3)
			RETURNING created_at, updated_at
		`, post.ID, authorID, post.Content)
		if err := row.Scan(&post.CreatedAt, &post.UpdatedAt); err != nil {
			return fmt.Errorf("insert post: %w", err)
		}

		if hasMedia {
			if err := storage.NewService(q).PutMedia(ctx, post.ID, *media); err != nil {
				return err
			}
			post.Media = &MediaInfo{ContentType: media.ContentType, URL: mediaURL(post.ID)}
		}
		return nil
	})
	if err != nil {
		return Post{}, err
	}

	s.publish(EventPostCreated, post.ID, authorID)
	return post, nil
}

// ListPosts returns one offset window of the feed, newest first.
func (s *Service) ListPosts(ctx context.Context, page, pageSize int) (Page, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = s.pageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}
	offset := (page - 1) * pageSize

	rows, err := s.db.Query(ctx, postSelect+`
		ORDER BY p.created_at DESC, p.id DESC
		LIMIT $1 OFFSET $2
	`, pageSize, offset)
	if err != nil {
		return Page{}, fmt.Errorf("list posts: %w", err)
	}
	posts, err := collectPosts(rows)
	if err != nil {
		return Page{}, err
	}

	var total int64
	if err := s.db.QueryRow(ctx, `SELECT count(*) FROM posts`).Scan(&total); err != nil {
		return Page{}, fmt.Errorf("count posts: %w", err)
	}

	if err := s.hydrate(ctx, posts); err != nil {
		return Page{}, err
	}

	return Page{
		Posts:       posts,
		CurrentPage: page,
		TotalPages:  totalPages(int(total), pageSize),
		TotalPosts:  int(total),
		PageSize:    pageSize,
	}, nil
}

func (s *Service) GetPost(ctx context.Context, postID string) (Post, error) {
	if !validID(postID) {
		return Post{}, errPostNotFound
	}
	rows, err := s.db.Query(ctx, postSelect+`WHERE p.id = $1`, postID)
	if err != nil {
		return Post{}, fmt.Errorf("get post: %w", err)
	}
	posts, err := collectPosts(rows)
	if err != nil {
		return Post{}, err
	}
	if len(posts) == 0 {
		return Post{}, errPostNotFound
	}
	if err := s.hydrate(ctx, posts); err != nil {
		return Post{}, err
	}
	return posts[0], nil
}

// UpdatePost replaces the content (when non-empty) and the media (when supplied)
// of a post owned by requesterID and marks it edited.
func (s *Service) UpdatePost(ctx context.Context, postID, requesterID, content string, media *storage.Media) (Post, error) {
	content = strings.TrimSpace(content)
	hasMedia := media != nil && len(media.Data) > 0

	err := s.inTx(ctx, func(q db.Querier) error {
		if err := lockOwnedPost(ctx, q, postID, requesterID); err != nil {
			return err
		}
		if hasMedia {
			if err := s.validateMedia(media); err != nil {
				return err
			}
		}

		if _, err := q.Exec(ctx, `
			UPDATE posts
			SET content = CASE WHEN $2 = '' THEN content ELSE $2 END,
			    edited = true,
			    updated_at = now()
			WHERE id = $1
		`, postID, content); err != nil {
			return fmt.Errorf("update post: %w", err)
		}

		if hasMedia {
			return storage.NewService(q).PutMedia(ctx, postID, *media)
		}
		return nil
	})
	if err != nil {
		return Post{}, err
	}

	s.publish(EventPostUpdated, postID, requesterID)
	return s.GetPost(ctx, postID)
}

// DeletePost removes a post owned by requesterID. Likes, comments, replies and
// media go with it through ON DELETE CASCADE.
func (s *Service) DeletePost(ctx context.Context, postID, requesterID string) error {
	err := s.inTx(ctx, func(q db.Querier) error {
		if err := lockOwnedPost(ctx, q, postID, requesterID); err != nil {
			return err
		}
		if _, err := q.Exec(ctx, `DELETE FROM posts WHERE id=$1`, postID); err != nil {
			return fmt.Errorf("delete post: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.publish(EventPostDeleted, postID, requesterID)
	return nil
}

// ToggleLike flips userID's membership in the post's likes in a single statement.
func (s *Service) ToggleLike(ctx context.Context, postID, userID string) (LikeResult, error) {
	if !validID(postID) {
		return LikeResult{}, errPostNotFound
	}
	if !validID(userID) {
		return LikeResult{}, errUserNotFound
	}

	var (
		found     bool
		userFound bool
		count     int64
		res       LikeResult
	)
	err := s.db.QueryRow(ctx, `
		WITH target AS (
			SELECT id FROM posts WHERE id = $1
		), liker AS (
			SELECT id FROM users WHERE id = $2
		), removed AS (
			DELETE FROM post_likes WHERE post_id = $1 AND user_id = $2
			RETURNING 1
		), added AS (
			INSERT INTO post_likes (post_id, user_id)
			SELECT target.id, liker.id FROM target, liker WHERE NOT EXISTS (SELECT 1 FROM removed)
			ON CONFLICT DO NOTHING
			RETURNING 1
		)
		SELECT EXISTS (SELECT 1 FROM target),
		       EXISTS (SELECT 1 FROM liker),
		       (SELECT count(*) FROM post_likes WHERE post_id = $1)
		         - (SELECT count(*) FROM removed)
		         + (SELECT count(*) FROM added),
		       EXISTS (SELECT 1 FROM added)
	`, postID, userID).Scan(&found, &userFound, &count, &res.Liked)
	if err != nil {
		return LikeResult{}, fmt.Errorf("toggle like: %w", err)
	}
	if !found {
		return LikeResult{}, errPostNotFound
	}
	if !userFound {
		return LikeResult{}, errUserNotFound
	}
	res.Likes = int(count)

	s.publish(EventPostLiked, postID, userID)
	return res, nil
}

func (s *Service) AddComment(ctx context.Context, postID, authorID, content string) (Comment, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return Comment{}, apperr.Validation("comment content is required")
	}
	if !validID(postID) {
		return Comment{}, errPostNotFound
	}
	if !validID(authorID) {
		return Comment{}, errUserNotFound
	}

	comment := Comment{
		ID:      uuid.NewString(),
		PostID:  postID,
		Content: content,
		Author:  Author{ID: authorID},
		Replies: []Reply{},
	}
	err := s.db.QueryRow(ctx, `
		WITH author AS (
			SELECT id, full_name, username FROM users WHERE id = $3
		), inserted AS (
			INSERT INTO post_comments (id, post_id, author_id, content)
			SELECT $1::uuid, p.id, author.id, $4::text FROM posts p, author WHERE p.id = $2
			RETURNING created_at
		)
		SELECT inserted.created_at, author.full_name, author.username FROM inserted, author
	`, comment.ID, postID, authorID, content).Scan(&comment.CreatedAt, &comment.Author.FullName, &comment.Author.Username)
	if errors.Is(err, pgx.ErrNoRows) {
		return Comment{}, s.missingTarget(ctx, postID, authorID, errPostNotFound)
	}
	if err != nil {
		return Comment{}, fmt.Errorf("add comment: %w", err)
	}

	s.publish(EventPostCommented, postID, authorID)
	return comment, nil
}

// AddReply appends a reply to a comment; the comment must belong to postID.
func (s *Service) AddReply(ctx context.Context, postID, commentID, authorID, content string) (Reply, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return Reply{}, apperr.Validation("reply content is required")
	}
	if !validID(postID) {
		return Reply{}, errPostNotFound
	}
	if !validID(commentID) {
		return Reply{}, errCommentNotFound
	}
	if !validID(authorID) {
		return Reply{}, errUserNotFound
	}

	reply := Reply{
		ID:        uuid.NewString(),
		CommentID: commentID,
		Content:   content,
		Author:    Author{ID: authorID},
	}
	err := s.db.QueryRow(ctx, `
		WITH author AS (
			SELECT id, full_name, username FROM users WHERE id = $4
		), inserted AS (
			INSERT INTO comment_replies (id, comment_id, author_id, content)
			SELECT $1::uuid, c.id, author.id, $5::text FROM post_comments c, author
			WHERE c.id = $3 AND c.post_id = $2
			RETURNING created_at
		)
		SELECT inserted.created_at, author.full_name, author.username FROM inserted, author
	`, reply.ID, postID, commentID, authorID, content).Scan(&reply.CreatedAt, &reply.Author.FullName, &reply.Author.Username)
	if errors.Is(err, pgx.ErrNoRows) {
		return Reply{}, s.missingTarget(ctx, postID, authorID, errCommentNotFound)
	}
	if err != nil {
		return Reply{}, fmt.Errorf("add reply: %w", err)
	}

	s.publish(EventPostReplied, postID, authorID)
	return reply, nil
}

func (s *Service) GetMedia(ctx context.Context, postID string) (storage.Media, error) {
	if !validID(postID) {
		return storage.Media{}, apperr.NotFound("media not found")
	}
	return storage.NewService(s.db).GetMedia(ctx, postID)
}

// missingTarget explains why an insert that joins the author and the post
// matched nothing. fallback is returned when both rows exist.
func (s *Service) missingTarget(ctx context.Context, postID, userID string, fallback error) error {
	var userExists, postExists bool
	if err := s.db.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM users WHERE id=$1), EXISTS (SELECT 1 FROM posts WHERE id=$2)
	`, userID, postID).Scan(&userExists, &postExists); err != nil {
		return fmt.Errorf("check target: %w", err)
	}
	switch {
	case !userExists:
		return errUserNotFound
	case !postExists:
		return errPostNotFound
	}
	return fallback
}

// hydrate loads likes, comments, replies and media for posts in place.
func (s *Service) hydrate(ctx context.Context, posts []Post) error {
	if len(posts) == 0 {
		return nil
	}
	ids := make([]string, len(posts))
	index := make(map[string]int, len(posts))
	for i := range posts {
		ids[i] = posts[i].ID
		index[posts[i].ID] = i
	}

	likes, err := s.loadLikes(ctx, ids)
	if err != nil {
		return err
	}
	comments, err := s.loadComments(ctx, ids)
	if err != nil {
		return err
	}
	media, err := storage.NewService(s.db).MediaPosts(ctx, ids)
	if err != nil {
		return err
	}

	for postID, users := range likes {
		posts[index[postID]].Likes = users
	}
	for _, c := range comments {
		i := index[c.PostID]
		posts[i].Comments = append(posts[i].Comments, c)
	}
	for postID, contentType := range media {
		posts[index[postID]].Media = &MediaInfo{ContentType: contentType, URL: mediaURL(postID)}
	}
	for i := range posts {
		posts[i].LikeCount = len(posts[i].Likes)
	}
	return nil
}

func (s *Service) loadLikes(ctx context.Context, postIDs []string) (map[string][]string, error) {
	rows, err := s.db.Query(ctx, `
		SELECT post_id, user_id FROM post_likes
		WHERE post_id = ANY($1)
		ORDER BY created_at, user_id
	`, postIDs)
	if err != nil {
		return nil, fmt.Errorf("load likes: %w", err)
	}
	defer rows.Close()

	likes := map[string][]string{}
	for rows.Next() {
		var postID, userID string
		if err := rows.Scan(&postID, &userID); err != nil {
			return nil, err
		}
		likes[postID] = append(likes[postID], userID)
	}
	return likes, rows.Err()
}

func (s *Service) loadComments(ctx context.Context, postIDs []string) ([]Comment, error) {
	rows, err := s.db.Query(ctx, `
		SELECT c.id, c.post_id, c.content, c.created_at, u.id, u.full_name, u.username
		FROM post_comments c JOIN users u ON u.id = c.author_id
		WHERE c.post_id = ANY($1)
		ORDER BY c.created_at, c.id
	`, postIDs)
	if err != nil {
		return nil, fmt.Errorf("load comments: %w", err)
	}
	defer rows.Close()

	var comments []Comment
	for rows.Next() {
		c := Comment{Replies: []Reply{}}
		if err := rows.Scan(&c.ID, &c.PostID, &c.Content, &c.CreatedAt, &c.Author.ID, &c.Author.FullName, &c.Author.Username); err != nil {
			return nil, err
		}
		comments = append(comments, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(comments) == 0 {
		return nil, nil
	}

	commentIDs := make([]string, len(comments))
	index := make(map[string]int, len(comments))
	for i, c := range comments {
		commentIDs[i] = c.ID
		index[c.ID] = i
	}

	replyRows, err := s.db.Query(ctx, `
		SELECT r.id, r.comment_id, r.content, r.created_at, u.id, u.full_name, u.username
		FROM comment_replies r JOIN users u ON u.id = r.author_id
		WHERE r.comment_id = ANY($1)
		ORDER BY r.created_at, r.id
	`, commentIDs)
	if err != nil {
		return nil, fmt.Errorf("load replies: %w", err)
	}
	defer replyRows.Close()

	for replyRows.Next() {
		var r Reply
		if err := replyRows.Scan(&r.ID, &r.CommentID, &r.Content, &r.CreatedAt, &r.Author.ID, &r.Author.FullName, &r.Author.Username); err != nil {
			return nil, err
		}
		i := index[r.CommentID]
		comments[i].Replies = append(comments[i].Replies, r)
	}
	return comments, replyRows.Err()
}

func (s *Service) validateMedia(m *storage.Media) error {
	if len(m.Data) > s.maxMedia {
		return apperr.Validation(fmt.Sprintf("media exceeds %d bytes", s.maxMedia))
	}
	ct := normalizeContentType(m.ContentType)
	if _, ok := allowedMedia[ct]; !ok {
		return apperr.Validation("media must be a jpeg, png, gif or webp image or an mp4, webm, ogg or quicktime video")
	}
	m.ContentType = ct
	return nil
}

// allowedMedia lists the types served back verbatim on the public media route.
// Scriptable formats such as SVG are excluded.
var allowedMedia = map[string]struct{}{
	"image/jpeg":      {},
	"image/png":       {},
	"image/gif":       {},
	"image/webp":      {},
	"video/mp4":       {},
	"video/webm":      {},
	"video/ogg":       {},
	"video/quicktime": {},
}

func normalizeContentType(ct string) string {
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = ct[:i]
	}
	return strings.ToLower(strings.TrimSpace(ct))
}

func (s *Service) inTx(ctx context.Context, fn func(q db.Querier) error) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (s *Service) publish(kind, postID, actorID string) {
	if s.broadcaster == nil {
		return
	}
	payload, err := json.Marshal(Event{Type: kind, PostID: postID, ActorID: actorID, At: s.now()})
	if err != nil {
		return
	}
	s.broadcaster.Broadcast(Topic, payload)
}

// lockOwnedPost locks the post row and checks that requesterID authored it.
func lockOwnedPost(ctx context.Context, q db.Querier, postID, requesterID string) error {
	if !validID(postID) {
		return errPostNotFound
	}
	var authorID string
	err := q.QueryRow(ctx, `SELECT author_id FROM posts WHERE id=$1 FOR UPDATE`, postID).Scan(&authorID)
	if errors.Is(err, pgx.ErrNoRows) {
		return errPostNotFound
	}
	if err != nil {
		return fmt.Errorf("load post: %w", err)
	}
	if authorID != requesterID {
		return errNotAuthor
	}
	return nil
}

func collectPosts(rows pgx.Rows) ([]Post, error) {
	defer rows.Close()
	posts := []Post{}
	for rows.Next() {
		p := Post{Likes: []string{}, Comments: []Comment{}}
		if err := rows.Scan(&p.ID, &p.Content, &p.Edited, &p.CreatedAt, &p.UpdatedAt, &p.Author.ID, &p.Author.FullName, &p.Author.Username); err != nil {
			return nil, err
		}
		posts = append(posts, p)
	}
	return posts, rows.Err()
}

func totalPages(total, pageSize int) int {
	if total <= 0 || pageSize <= 0 {
		return 0
	}
	return (total + pageSize - 1) / pageSize
}

func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
