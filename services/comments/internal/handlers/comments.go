package handlers

import (
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/example/oration/internal/platform/api"
	"github.com/example/oration/internal/platform/httpserver"
	"github.com/example/oration/services/comments/internal/comments"
	"github.com/example/oration/services/comments/internal/config"
	"github.com/example/oration/services/comments/internal/identity"
	"github.com/example/oration/services/comments/internal/tree"
)

type createCommentRequest struct {
	Title   string  `json:"title" validate:"max=512"`
	Path    string  `json:"path" validate:"required,max=2048"`
	Comment string  `json:"comment" validate:"required,max=65535"`
	Name    *string `json:"name,omitempty" validate:"omitempty,max=256"`
	Email   *string `json:"email,omitempty" validate:"omitempty,email,max=256"`
	URL     *string `json:"url,omitempty" validate:"omitempty,url,max=2048"`
	Parent  *int64  `json:"parent,omitempty" validate:"omitempty,gt=0"`
}

type updateCommentRequest struct {
	Comment string  `json:"comment" validate:"required,max=65535"`
	Name    *string `json:"name,omitempty" validate:"omitempty,max=256"`
	Email   *string `json:"email,omitempty" validate:"omitempty,email,max=256"`
	URL     *string `json:"url,omitempty" validate:"omitempty,url,max=2048"`
}

type initResponse struct {
	UserIP     string `json:"user_ip"`
	BlogAuthor string `json:"blog_author"`
}

type listResponse struct {
	Comments []*tree.Node `json:"comments"`
}

type countResponse struct {
	Count int64 `json:"count"`
}

// Init handles GET /oration/init
func Init(cfg config.Config) http.HandlerFunc {
	author := identity.Hash(&cfg.Author.Name, &cfg.Author.Email, &cfg.Author.Website, nil)
	return func(w http.ResponseWriter, r *http.Request) {
		api.WriteJSON(w, http.StatusOK, initResponse{
			UserIP:     identity.HashIP(httpserver.ClientIP(r)),
			BlogAuthor: author,
		})
	}
}

// CreateComment handles POST /oration
func CreateComment(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createCommentRequest
		if !decode(w, r, &req) {
			return
		}
		if strings.TrimSpace(req.Comment) == "" {
			api.BadRequest(w, "EMPTY_COMMENT", "comment must not be empty", httpserver.RequestIDFromContext(r.Context()), nil)
			return
		}

		ip := httpserver.ClientIP(r)
		th, err := d.Threads.Resolve(r.Context(), d.Config.Host, req.Title, req.Path)
		if err != nil {
			writeError(w, r, d.Log, err)
			return
		}

		sub := comments.Submission{
			Text:    req.Comment,
			Author:  blank(req.Name),
			Email:   blank(req.Email),
			Website: blank(req.URL),
			Parent:  req.Parent,
		}
		th, created, err := d.Comments.InsertIntoThread(r.Context(), th, sub, ip, d.Config.NestingLimit)
		if err != nil {
			writeError(w, r, d.Log, err)
			return
		}
		commentsCreated.Inc()

		if d.Notifier != nil {
			d.Notifier.Notify(r.Context(), th, created, sub, ip)
		}
		api.WriteJSON(w, http.StatusCreated, created)
	}
}

// ListComments handles GET /oration/comments?url=
func ListComments(trees TreeLister, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uri, ok := threadURL(w, r)
		if !ok {
			return
		}
		nodes, err := trees.List(r.Context(), uri)
		if err != nil {
			writeError(w, r, log, err)
			return
		}
		if nodes == nil {
			nodes = []*tree.Node{}
		}
		api.WriteJSON(w, http.StatusOK, listResponse{Comments: nodes})
	}
}

// CountComments handles GET /oration/count?url=
func CountComments(svc CommentService, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uri, ok := threadURL(w, r)
		if !ok {
			return
		}
		n, err := svc.Count(r.Context(), uri)
		if err != nil {
			writeError(w, r, log, err)
			return
		}
		api.WriteJSON(w, http.StatusOK, countResponse{Count: n})
	}
}

// UpdateComment handles PUT /oration/comments/{id}
func UpdateComment(svc CommentService, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := commentID(w, r)
		if !ok {
			return
		}
		var req updateCommentRequest
		if !decode(w, r, &req) {
			return
		}
		if err := svc.Authorize(r.Context(), id, r.Header.Get(AuthorHashHeader)); err != nil {
			writeError(w, r, log, err)
			return
		}

		edits, err := svc.Update(r.Context(), id, comments.Edit{
			Text:    req.Comment,
			Author:  blank(req.Name),
			Email:   blank(req.Email),
			Website: blank(req.URL),
		}, httpserver.ClientIP(r))
		if err != nil {
			writeError(w, r, log, err)
			return
		}
		api.WriteJSON(w, http.StatusOK, edits)
	}
}

// DeleteComment handles DELETE /oration/comments/{id}
func DeleteComment(svc CommentService, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := commentID(w, r)
		if !ok {
			return
		}
		if err := svc.Authorize(r.Context(), id, r.Header.Get(AuthorHashHeader)); err != nil {
			writeError(w, r, log, err)
			return
		}
		if err := svc.Delete(r.Context(), id); err != nil {
			writeError(w, r, log, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// VoteComment handles POST /oration/comments/{id}/like and /dislike
func VoteComment(svc CommentService, up bool, log *zap.Logger) http.HandlerFunc {
	direction := "dislike"
	if up {
		direction = "like"
	}
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := commentID(w, r)
		if !ok {
			return
		}
		if err := svc.Vote(r.Context(), id, httpserver.ClientIP(r), up); err != nil {
			votesTotal.WithLabelValues(direction, "rejected").Inc()
			writeError(w, r, log, err)
			return
		}
		votesTotal.WithLabelValues(direction, "counted").Inc()
		w.WriteHeader(http.StatusNoContent)
	}
}
