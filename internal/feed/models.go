package feed

import "time"

type Author struct {
	ID       string `json:"id"`
	FullName string `json:"fullName"`
	Username string `json:"username"`
}

type MediaInfo struct {
	ContentType string `json:"contentType"`
	URL         string `json:"url"`
}

type Post struct {
	ID        string     `json:"id"`
	Content   string     `json:"content"`
	Author    Author     `json:"author"`
	Media     *MediaInfo `json:"media,omitempty"`
	Likes     []string   `json:"likes"`
	LikeCount int        `json:"likeCount"`
	Comments  []Comment  `json:"comments"`
	Edited    bool       `json:"edited"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

type Comment struct {
	ID        string    `json:"id"`
	PostID    string    `json:"postId"`
	Content   string    `json:"content"`
	Author    Author    `json:"author"`
	Replies   []Reply   `json:"replies"`
	CreatedAt time.Time `json:"createdAt"`
}

type Reply struct {
	ID        string    `json:"id"`
	CommentID string    `json:"commentId"`
	Content   string    `json:"content"`
	Author    Author    `json:"author"`
	CreatedAt time.Time `json:"createdAt"`
}

type Page struct {
	Posts       []Post `json:"posts"`
	CurrentPage int    `json:"currentPage"`
	TotalPages  int    `json:"totalPages"`
	TotalPosts  int    `json:"totalPosts"`
	PageSize    int    `json:"pageSize"`
}

type LikeResult struct {
	Likes int  `json:"likes"`
	Liked bool `json:"liked"`
}

// Event is pushed to stream subscribers after every successful mutation.
type Event struct {
	Type    string    `json:"type"`
	PostID  string    `json:"postId"`
	ActorID string    `json:"actorId"`
	At      time.Time `json:"at"`
}

const (
	EventPostCreated   = "post.created"
	EventPostUpdated   = "post.updated"
	EventPostDeleted   = "post.deleted"
	EventPostLiked     = "post.liked"
	EventPostCommented = "post.commented"
	EventPostReplied   = "post.replied"
)

func mediaURL(postID string) string {
	return "/posts/media/" + postID
}
