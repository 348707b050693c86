// Package handlers exposes the comment engine over HTTP under /oration.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/example/oration/internal/platform/api"
	"github.com/example/oration/internal/platform/httpserver"
	"github.com/example/oration/services/comments/internal/comments"
	"github.com/example/oration/services/comments/internal/config"
	"github.com/example/oration/services/comments/internal/fault"
	"github.com/example/oration/services/comments/internal/store"
	"github.com/example/oration/services/comments/internal/tree"
)

// AuthorHashHeader carries the identity hash that authorizes edits.
const AuthorHashHeader = "X-Author-Hash"

const maxBody = 1 << 20

var (
	commentsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "oration_comments_created_total",
		Help: "Comments accepted",
	})
	votesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "oration_votes_total",
		Help: "Votes by direction and outcome",
	}, []string{"direction", "result"})
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// CommentService is the write side used by the handlers.
type CommentService interface {
	Count(ctx context.Context, uri string) (int64, error)
	InsertIntoThread(ctx context.Context, th store.Thread, sub comments.Submission, remoteIP string, nestingLimit int) (store.Thread, comments.InsertedComment, error)
	Update(ctx context.Context, id int64, e comments.Edit, remoteIP string) (comments.CommentEdits, error)
	Authorize(ctx context.Context, id int64, claimedHash string) error
	Delete(ctx context.Context, id int64) error
	Vote(ctx context.Context, id int64, remoteIP string, up bool) error
}

type TreeLister interface {
	List(ctx context.Context, uri string) ([]*tree.Node, error)
}

// ThreadResolver checks a post path; new threads come back with ID 0.
type ThreadResolver interface {
	Resolve(ctx context.Context, host, title, path string) (store.Thread, error)
}

type Notifier interface {
	Notify(ctx context.Context, th store.Thread, c comments.InsertedComment, sub comments.Submission, remoteIP string)
}

// Deps wires the handlers. Notifier and Limiter may be nil.
type Deps struct {
	Config   config.Config
	Comments CommentService
	Trees    TreeLister
	Threads  ThreadResolver
	Notifier Notifier
	Limiter  *httpserver.RateLimiter
	Log      *zap.Logger
}

// Routes registers every /oration endpoint on r.
func Routes(r chi.Router, d Deps) {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	r.Route("/oration", func(r chi.Router) {
		r.Get("/init", Init(d.Config))
		r.Get("/comments", ListComments(d.Trees, d.Log))
		r.Get("/count", CountComments(d.Comments, d.Log))

		r.Group(func(r chi.Router) {
			if d.Limiter != nil {
				r.Use(d.Limiter.Middleware)
			}
			r.Post("/", CreateComment(d))
			r.Put("/comments/{id}", UpdateComment(d.Comments, d.Log))
			r.Delete("/comments/{id}", DeleteComment(d.Comments, d.Log))
			r.Post("/comments/{id}/like", VoteComment(d.Comments, true, d.Log))
			r.Post("/comments/{id}/dislike", VoteComment(d.Comments, false, d.Log))
		})
	})
}

// writeError maps engine errors onto the JSON error envelope.
func writeError(w http.ResponseWriter, r *http.Request, log *zap.Logger, err error) {
	rid := httpserver.RequestIDFromContext(r.Context())
	switch {
	case errors.Is(err, store.ErrInvalidParent):
		api.BadRequest(w, "INVALID_PARENT", "parent is not a comment of this thread", rid, nil)
	case errors.Is(err, fault.ErrAlreadyVoted):
		api.Conflict(w, "ALREADY_VOTED", "already voted on this comment", rid, nil)
	case errors.Is(err, fault.ErrUnauthorized):
		api.Forbidden(w, "UNAUTHORIZED", "not allowed to change this comment", rid)
	case errors.Is(err, fault.ErrPathCheckFailed):
		api.Forbidden(w, "PATH_CHECK_FAILED", "no such post on this blog", rid)
	case errors.Is(err, fault.ErrNotFound):
		api.NotFound(w, "NOT_FOUND", "comment not found", rid)
	default:
		log.Error("request failed",
			zap.String("path", r.URL.Path),
			zap.String("request_id", rid),
			zap.String("kind", fault.KindOf(err).String()),
			zap.Error(err))
		api.Internal(w, rid)
	}
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	rid := httpserver.RequestIDFromContext(r.Context())
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody)).Decode(dst); err != nil {
		api.BadRequest(w, "INVALID_JSON", "invalid JSON", rid, nil)
		return false
	}
	if err := validate.Struct(dst); err != nil {
		details := map[string]any{}
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				details[fe.Field()] = fe.Tag()
			}
		}
		api.BadRequest(w, "VALIDATION_FAILED", "invalid request", rid, details)
		return false
	}
	return true
}

func commentID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(strings.TrimSpace(chi.URLParam(r, "id")), 10, 64)
	if err != nil || id <= 0 {
		api.BadRequest(w, "INVALID_ID", "comment id must be a positive integer", httpserver.RequestIDFromContext(r.Context()), nil)
		return 0, false
	}
	return id, true
}

func threadURL(w http.ResponseWriter, r *http.Request) (string, bool) {
	uri := strings.TrimSpace(r.URL.Query().Get("url"))
	if uri == "" {
		api.BadRequest(w, "MISSING_URL", "url is required", httpserver.RequestIDFromContext(r.Context()), nil)
		return "", false
	}
	return uri, true
}

// blank turns empty optional fields into absent ones.
func blank(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}
