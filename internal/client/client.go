// Package client talks to the postboard HTTP API and keeps the state of a
// scrolling feed session.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"sync"
	"time"

	"backend-postboard/internal/auth"
	"backend-postboard/internal/feed"
	"backend-postboard/internal/storage"
)

const defaultTimeout = 15 * time.Second

// APIError is a non-2xx response. Message is the server's {"message"} text.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.Status, e.Message)
}

// Client is safe for concurrent use. Login stores the bearer token used by
// every later call.
type Client struct {
	baseURL string
	http    *http.Client

	mu    sync.RWMutex
	token string
}

func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
	}
}

func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

func (c *Client) Register(ctx context.Context, req auth.RegisterRequest) (auth.User, error) {
	var out struct {
		User auth.User `json:"user"`
	}
	err := c.doJSON(ctx, http.MethodPost, "/auth/register", req, &out)
	return out.User, err
}

func (c *Client) Login(ctx context.Context, emailOrUsername, password string) (auth.LoginResponse, error) {
	var out auth.LoginResponse
	err := c.doJSON(ctx, http.MethodPost, "/auth/login", auth.LoginRequest{EmailOrUsername: emailOrUsername, Password: password}, &out)
	if err != nil {
		return auth.LoginResponse{}, err
	}
	c.SetToken(out.Token)
	return out, nil
}

// Me asks the server who the current token belongs to.
func (c *Client) Me(ctx context.Context) (auth.User, error) {
	var out auth.User
	err := c.doJSON(ctx, http.MethodGet, "/auth/me", nil, &out)
	return out, err
}

func (c *Client) ListPosts(ctx context.Context, page, pageSize int) (feed.Page, error) {
	q := url.Values{}
	q.Set("page", fmt.Sprint(page))
	if pageSize > 0 {
		q.Set("pageSize", fmt.Sprint(pageSize))
	}
	var out feed.Page
	err := c.doJSON(ctx, http.MethodGet, "/posts?"+q.Encode(), nil, &out)
	return out, err
}

func (c *Client) GetPost(ctx context.Context, postID string) (feed.Post, error) {
	var out feed.Post
	err := c.doJSON(ctx, http.MethodGet, "/posts/"+url.PathEscape(postID), nil, &out)
	return out, err
}

// CreatePost sends JSON, or a multipart form when media is attached.
func (c *Client) CreatePost(ctx context.Context, content string, media *storage.Media) (feed.Post, error) {
	var out feed.Post
	err := c.sendPost(ctx, http.MethodPost, "/posts", content, media, &out)
	return out, err
}

func (c *Client) UpdatePost(ctx context.Context, postID, content string, media *storage.Media) (feed.Post, error) {
	var out feed.Post
	err := c.sendPost(ctx, http.MethodPut, "/posts/"+url.PathEscape(postID), content, media, &out)
	return out, err
}

func (c *Client) DeletePost(ctx context.Context, postID string) error {
	return c.doJSON(ctx, http.MethodDelete, "/posts/"+url.PathEscape(postID), nil, nil)
}

func (c *Client) ToggleLike(ctx context.Context, postID string) (feed.LikeResult, error) {
	var out feed.LikeResult
	err := c.doJSON(ctx, http.MethodPatch, "/posts/like/"+url.PathEscape(postID), nil, &out)
	return out, err
}

func (c *Client) AddComment(ctx context.Context, postID, content string) (feed.Comment, error) {
	var out struct {
		Comment feed.Comment `json:"comment"`
	}
	path := "/posts/" + url.PathEscape(postID) + "/comments"
	err := c.doJSON(ctx, http.MethodPost, path, map[string]string{"content": content}, &out)
	return out.Comment, err
}

func (c *Client) AddReply(ctx context.Context, postID, commentID, content string) (feed.Reply, error) {
	var out struct {
		Reply feed.Reply `json:"reply"`
	}
	path := "/posts/" + url.PathEscape(postID) + "/comments/" + url.PathEscape(commentID) + "/replies"
	err := c.doJSON(ctx, http.MethodPost, path, map[string]string{"content": content}, &out)
	return out.Reply, err
}

// Media downloads the raw media of a post.
func (c *Client) Media(ctx context.Context, postID string) (storage.Media, error) {
	resp, err := c.do(ctx, http.MethodGet, "/posts/media/"+url.PathEscape(postID), nil, "")
	if err != nil {
		return storage.Media{}, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return storage.Media{}, fmt.Errorf("read media: %w", err)
	}
	return storage.Media{ContentType: resp.Header.Get("Content-Type"), Data: data}, nil
}

func (c *Client) sendPost(ctx context.Context, method, path, content string, media *storage.Media, out any) error {
	if media == nil || len(media.Data) == 0 {
		return c.doJSON(ctx, method, path, map[string]string{"content": content}, out)
	}

	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	if err := form.WriteField("content", content); err != nil {
		return err
	}
	header := textproto.MIMEHeader{}
	header.Set("Content-Disposition", `form-data; name="media"; filename="media"`)
	header.Set("Content-Type", media.ContentType)
	part, err := form.CreatePart(header)
	if err != nil {
		return err
	}
	if _, err := part.Write(media.Data); err != nil {
		return err
	}
	if err := form.Close(); err != nil {
		return err
	}

	resp, err := c.do(ctx, method, path, &buf, form.FormDataContentType())
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return decode(resp, out)
}

func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	contentType := ""
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(raw)
		contentType = "application/json"
	}

	resp, err := c.do(ctx, method, path, body, contentType)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return decode(resp, out)
}

// do sends the request and turns non-2xx responses into *APIError. The caller
// closes the body of successful responses.
func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		apiErr := &APIError{Status: resp.StatusCode}
		var payload struct {
			Message string `json:"message"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&payload); err == nil {
			apiErr.Message = payload.Message
		}
		if apiErr.Message == "" {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
		return nil, apiErr
	}
	return resp, nil
}

func decode(resp *http.Response, out any) error {
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
