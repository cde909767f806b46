package client

import (
	"context"
	"errors"
	"strings"
	"sync"

	"backend-postboard/internal/auth"
	"backend-postboard/internal/feed"
	"backend-postboard/internal/storage"
)

// API is the slice of Client a FeedView drives.
type API interface {
	Me(ctx context.Context) (auth.User, error)
	ListPosts(ctx context.Context, page, pageSize int) (feed.Page, error)
	CreatePost(ctx context.Context, content string, media *storage.Media) (feed.Post, error)
	UpdatePost(ctx context.Context, postID, content string, media *storage.Media) (feed.Post, error)
	DeletePost(ctx context.Context, postID string) error
	ToggleLike(ctx context.Context, postID string) (feed.LikeResult, error)
	AddComment(ctx context.Context, postID, content string) (feed.Comment, error)
	AddReply(ctx context.Context, postID, commentID, content string) (feed.Reply, error)
}

type NoticeKind string

const (
	NoticeSuccess NoticeKind = "success"
	NoticeError   NoticeKind = "error"
)

// Notice is a transient message for the user, shown once and discarded.
type Notice struct {
	Kind    NoticeKind
	Message string
}

var ErrEmptyDraft = errors.New("nothing to submit")

// FeedView is the state of one user's scrolling feed. Network calls are made
// without holding the lock; a generation counter discards page loads that a
// reload has overtaken.
type FeedView struct {
	api      API
	pageSize int

	mu            sync.Mutex
	me            *auth.User
	page          int
	totalPages    int
	posts         []feed.Post
	inflight      int
	gen           int
	expanded      map[string]bool
	commentBox    map[string]bool
	commentDrafts map[string]string
	replyDrafts   map[string]string
	notices       []Notice
}

func NewFeedView(api API, pageSize int) *FeedView {
	return &FeedView{
		api:           api,
		pageSize:      pageSize,
		expanded:      map[string]bool{},
		commentBox:    map[string]bool{},
		commentDrafts: map[string]string{},
		replyDrafts:   map[string]string{},
	}
}

// Mount resolves the current user and loads the first page.
func (v *FeedView) Mount(ctx context.Context) error {
	me, err := v.api.Me(ctx)
	if err != nil {
		v.notify(NoticeError, "Could not load your profile.")
		return err
	}
	v.mu.Lock()
	v.me = &me
	v.page = 0
	v.totalPages = 0
	v.posts = nil
	v.mu.Unlock()

	return v.loadWindow(ctx, 1)
}

// NearBottom loads the next page when one exists and no load is running. It
// reports whether a page was appended.
func (v *FeedView) NearBottom(ctx context.Context) (bool, error) {
	v.mu.Lock()
	if v.inflight > 0 || v.page >= v.totalPages {
		v.mu.Unlock()
		return false, nil
	}
	v.inflight++
	gen := v.gen
	next := v.page + 1
	v.mu.Unlock()

	res, err := v.api.ListPosts(ctx, next, v.pageSize)

	v.mu.Lock()
	defer v.mu.Unlock()
	v.inflight--
	if err != nil {
		v.pushNotice(NoticeError, "Could not load more posts.")
		return false, err
	}
	if gen != v.gen {
		return false, nil
	}
	v.posts = appendUnique(v.posts, res.Posts)
	v.page = next
	v.totalPages = res.TotalPages
	return true, nil
}

// Reload re-fetches every page up to the current one and replaces the list.
func (v *FeedView) Reload(ctx context.Context) error {
	v.mu.Lock()
	pages := v.page
	v.mu.Unlock()
	if pages < 1 {
		pages = 1
	}
	return v.loadWindow(ctx, pages)
}

func (v *FeedView) loadWindow(ctx context.Context, pages int) error {
	v.mu.Lock()
	v.inflight++
	v.gen++
	gen := v.gen
	v.mu.Unlock()

	var (
		posts []feed.Post
		total int
		err   error
	)
	for p := 1; p <= pages; p++ {
		var res feed.Page
		res, err = v.api.ListPosts(ctx, p, v.pageSize)
		if err != nil {
			break
		}
		posts = appendUnique(posts, res.Posts)
		total = res.TotalPages
		if p >= total {
			break
		}
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	v.inflight--
	if err != nil {
		v.pushNotice(NoticeError, "Could not load posts.")
		return err
	}
	if gen != v.gen {
		return nil
	}
	if posts == nil {
		posts = []feed.Post{}
	}
	v.posts = posts
	v.totalPages = total
	v.page = min(pages, max(total, 1))
	return nil
}

func (v *FeedView) Create(ctx context.Context, content string, media *storage.Media) error {
	return v.mutate(ctx, "Post created successfully!", "Post creation failed.", func() error {
		_, err := v.api.CreatePost(ctx, content, media)
		return err
	})
}

func (v *FeedView) Update(ctx context.Context, postID, content string, media *storage.Media) error {
	return v.mutate(ctx, "Post updated!", "Failed to update post.", func() error {
		_, err := v.api.UpdatePost(ctx, postID, content, media)
		return err
	})
}

func (v *FeedView) Delete(ctx context.Context, postID string) error {
	return v.mutate(ctx, "Post deleted successfully!", "Failed to delete post.", func() error {
		return v.api.DeletePost(ctx, postID)
	})
}

func (v *FeedView) ToggleLike(ctx context.Context, postID string) error {
	return v.mutate(ctx, "", "Failed to like post.", func() error {
		_, err := v.api.ToggleLike(ctx, postID)
		return err
	})
}

// SubmitComment posts the comment draft of postID and clears it on success.
func (v *FeedView) SubmitComment(ctx context.Context, postID string) error {
	draft := strings.TrimSpace(v.CommentDraft(postID))
	if draft == "" {
		v.notify(NoticeError, "Comment cannot be empty.")
		return ErrEmptyDraft
	}
	return v.mutate(ctx, "Comment added", "Failed to add comment.", func() error {
		if _, err := v.api.AddComment(ctx, postID, draft); err != nil {
			return err
		}
		v.mu.Lock()
		delete(v.commentDrafts, postID)
		v.mu.Unlock()
		return nil
	})
}

// SubmitReply posts the reply draft of commentID and clears it on success.
func (v *FeedView) SubmitReply(ctx context.Context, postID, commentID string) error {
	draft := strings.TrimSpace(v.ReplyDraft(commentID))
	if draft == "" {
		v.notify(NoticeError, "Reply cannot be empty.")
		return ErrEmptyDraft
	}
	return v.mutate(ctx, "Reply added", "Failed to add reply.", func() error {
		if _, err := v.api.AddReply(ctx, postID, commentID, draft); err != nil {
			return err
		}
		v.mu.Lock()
		delete(v.replyDrafts, commentID)
		v.mu.Unlock()
		return nil
	})
}

func (v *FeedView) mutate(ctx context.Context, success, failure string, call func() error) error {
	if err := call(); err != nil {
		v.notify(NoticeError, failureMessage(failure, err))
		return err
	}
	if success != "" {
		v.notify(NoticeSuccess, success)
	}
	return v.Reload(ctx)
}

func (v *FeedView) ToggleExpanded(postID string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.expanded[postID] = !v.expanded[postID]
	return v.expanded[postID]
}

func (v *FeedView) ToggleCommentBox(postID string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.commentBox[postID] = !v.commentBox[postID]
	return v.commentBox[postID]
}

func (v *FeedView) SetCommentDraft(postID, text string) {
	v.mu.Lock()
	v.commentDrafts[postID] = text
	v.mu.Unlock()
}

func (v *FeedView) SetReplyDraft(commentID, text string) {
	v.mu.Lock()
	v.replyDrafts[commentID] = text
	v.mu.Unlock()
}

func (v *FeedView) Expanded(postID string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.expanded[postID]
}

func (v *FeedView) CommentBoxOpen(postID string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.commentBox[postID]
}

func (v *FeedView) CommentDraft(postID string) string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.commentDrafts[postID]
}

func (v *FeedView) ReplyDraft(commentID string) string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.replyDrafts[commentID]
}

// Posts returns a copy of the loaded list.
func (v *FeedView) Posts() []feed.Post {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]feed.Post(nil), v.posts...)
}

func (v *FeedView) Page() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.page
}

func (v *FeedView) TotalPages() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.totalPages
}

func (v *FeedView) Loading() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.inflight > 0
}

func (v *FeedView) CurrentUser() (auth.User, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.me == nil {
		return auth.User{}, false
	}
	return *v.me, true
}

// CanEdit reports whether the signed-in user authored post.
func (v *FeedView) CanEdit(post feed.Post) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.me != nil && v.me.ID != "" && post.Author.ID == v.me.ID
}

// Notices drains the pending notices, oldest first.
func (v *FeedView) Notices() []Notice {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := v.notices
	v.notices = nil
	return out
}

func (v *FeedView) notify(kind NoticeKind, msg string) {
	v.mu.Lock()
	v.pushNotice(kind, msg)
	v.mu.Unlock()
}

// pushNotice appends a notice. Caller holds v.mu.
func (v *FeedView) pushNotice(kind NoticeKind, msg string) {
	v.notices = append(v.notices, Notice{Kind: kind, Message: msg})
}

func failureMessage(prefix string, err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return prefix + " " + apiErr.Message
	}
	return prefix
}

func appendUnique(dst, src []feed.Post) []feed.Post {
	seen := make(map[string]struct{}, len(dst))
	for _, p := range dst {
		seen[p.ID] = struct{}{}
	}
	for _, p := range src {
		if _, ok := seen[p.ID]; ok {
			continue
		}
		seen[p.ID] = struct{}{}
		dst = append(dst, p)
	}
	return dst
}
