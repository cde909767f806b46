package feed

import (
	"io"
	"net/http"
	"strings"

	"backend-postboard/internal/auth"
	"backend-postboard/internal/storage"

	"github.com/gofiber/fiber/v2"
)

const mediaField = "media"

type contentBody struct {
	Content string `json:"content"`
}

func RegisterRoutes(r fiber.Router, svc *Service, authMiddleware fiber.Handler) {
	r.Get("/media/:postId", func(c *fiber.Ctx) error {
		m, err := svc.GetMedia(c.Context(), c.Params("postId"))
		if err != nil {
			return err
		}
		c.Set(fiber.HeaderContentType, m.ContentType)
		c.Set(fiber.HeaderXContentTypeOptions, "nosniff")
		c.Set(fiber.HeaderContentSecurityPolicy, "default-src 'none'; sandbox")
		return c.Send(m.Data)
	})

	r.Post("/", authMiddleware, func(c *fiber.Ctx) error {
		content, media, err := readPostInput(c)
		if err != nil {
			return err
		}
		post, err := svc.CreatePost(c.Context(), auth.UserID(c), content, media)
		if err != nil {
			return err
		}
		return c.Status(fiber.StatusCreated).JSON(post)
	})

	r.Get("/", authMiddleware, func(c *fiber.Ctx) error {
		page, err := svc.ListPosts(c.Context(), c.QueryInt("page", 1), c.QueryInt("pageSize", 0))
		if err != nil {
			return err
		}
		return c.JSON(page)
	})

	r.Patch("/like/:postId", authMiddleware, func(c *fiber.Ctx) error {
		res, err := svc.ToggleLike(c.Context(), c.Params("postId"), auth.UserID(c))
		if err != nil {
			return err
		}
		return c.JSON(res)
	})

	r.Get("/:id", authMiddleware, func(c *fiber.Ctx) error {
		post, err := svc.GetPost(c.Context(), c.Params("id"))
		if err != nil {
			return err
		}
		return c.JSON(post)
	})

	r.Put("/:id", authMiddleware, func(c *fiber.Ctx) error {
		content, media, err := readPostInput(c)
		if err != nil {
			return err
		}
		post, err := svc.UpdatePost(c.Context(), c.Params("id"), auth.UserID(c), content, media)
		if err != nil {
			return err
		}
		return c.JSON(post)
	})

	r.Delete("/:id", authMiddleware, func(c *fiber.Ctx) error {
		if err := svc.DeletePost(c.Context(), c.Params("id"), auth.UserID(c)); err != nil {
			return err
		}
		return c.JSON(fiber.Map{"message": "Post deleted successfully"})
	})

	r.Post("/:postId/comments", authMiddleware, func(c *fiber.Ctx) error {
		var body contentBody
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid payload")
		}
		comment, err := svc.AddComment(c.Context(), c.Params("postId"), auth.UserID(c), body.Content)
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{"message": "Comment added", "comment": comment})
	})

	r.Post("/:postId/comments/:commentId/replies", authMiddleware, func(c *fiber.Ctx) error {
		var body contentBody
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid payload")
		}
		reply, err := svc.AddReply(c.Context(), c.Params("postId"), c.Params("commentId"), auth.UserID(c), body.Content)
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{"message": "Reply added", "reply": reply})
	})
}

// readPostInput accepts either a JSON body or a multipart form with a
// "content" field and an optional "media" file.
func readPostInput(c *fiber.Ctx) (string, *storage.Media, error) {
	if !strings.HasPrefix(c.Get(fiber.HeaderContentType), fiber.MIMEMultipartForm) {
		var body contentBody
		if len(c.Body()) > 0 {
			if err := c.BodyParser(&body); err != nil {
				return "", nil, fiber.NewError(fiber.StatusBadRequest, "invalid payload")
			}
		}
		return body.Content, nil, nil
	}

	form, err := c.MultipartForm()
	if err != nil {
		return "", nil, fiber.NewError(fiber.StatusBadRequest, "invalid multipart form")
	}
	var content string
	if values := form.Value["content"]; len(values) > 0 {
		content = values[0]
	}
	files := form.File[mediaField]
	if len(files) == 0 {
		return content, nil, nil
	}

	fh := files[0]
	f, err := fh.Open()
	if err != nil {
		return "", nil, fiber.NewError(fiber.StatusBadRequest, "unreadable media")
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return "", nil, fiber.NewError(fiber.StatusBadRequest, "unreadable media")
	}

	contentType := fh.Header.Get(fiber.HeaderContentType)
	if contentType == "" || contentType == fiber.MIMEOctetStream {
		contentType = http.DetectContentType(data)
	}
	return content, &storage.Media{ContentType: contentType, Data: data}, nil
}
