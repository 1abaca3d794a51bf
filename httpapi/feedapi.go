package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strconv"
	"time"

	"fitspo-feed/feed"

	"github.com/gorilla/mux"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100

	userIDHeader = "FitSpo-User-Id"
)

var userIDPattern = regexp.MustCompile(`^[0-9A-Za-z_-]+$`)

// Deps are the services the HTTP handlers read from. Now defaults to
// time.Now and is the only clock the API consults.
type Deps struct {
	Manager   feed.Manager
	Hot       *feed.HotPaginator
	Ranks     *feed.RankCache
	Paginator *feed.Paginator
	Explorer  *feed.Explorer
	Logger    *slog.Logger
	Now       func() time.Time
}

type HTTPHandler struct {
	Deps
}

func NewServer(addr string, deps Deps) *http.Server {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	handler := &HTTPHandler{deps}

	r := mux.NewRouter()
	r.Use(handler.logRequests)
	r.HandleFunc("/api/v1/posts", handler.CreatePost).Methods(http.MethodPost)
	r.HandleFunc("/api/v1/posts/{postId}", handler.GetPost).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/feed/hot", handler.GetHotFeed).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/feed/recent", handler.GetRecentFeed).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/explore", handler.GetExplore).Methods(http.MethodGet)
	r.HandleFunc("/maintenance/ping", handler.CheckIsReady).Methods(http.MethodGet)

	return &http.Server{
		Addr:         addr,
		Handler:      r,
		WriteTimeout: 15 * time.Second,
		ReadTimeout:  15 * time.Second,
	}
}

type CreatePostRequest struct {
	ImageURL string         `json:"imageUrl,omitempty"`
	Caption  string         `json:"caption,omitempty"`
	City     string         `json:"city,omitempty"`
	Hashtags []string       `json:"hashtags,omitempty"`
	Location *feed.GeoPoint `json:"location,omitempty"`
}

type PostResponse struct {
	PostID       string         `json:"id"`
	AuthorID     string         `json:"authorId"`
	CreatedAt    string         `json:"createdAt"`
	LikeCount    int            `json:"likeCount"`
	CommentCount int            `json:"commentCount"`
	ShareCount   int            `json:"shareCount"`
	Location     *feed.GeoPoint `json:"location,omitempty"`
	ImageURL     string         `json:"imageUrl,omitempty"`
	Caption      string         `json:"caption,omitempty"`
	City         string         `json:"city,omitempty"`
	Hashtags     []string       `json:"hashtags,omitempty"`
	Score        *int           `json:"score,omitempty"`
	Rank         *int           `json:"rank,omitempty"`
}

type FeedResponse struct {
	Posts       []PostResponse `json:"posts"`
	NextPage    string         `json:"nextPage"`
	Approximate bool           `json:"approximate"`
}

type ExploreResponse struct {
	Posts []PostResponse `json:"posts"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

func toResponse(post feed.PostRecord) PostResponse {
	return PostResponse{
		PostID:       post.ID,
		AuthorID:     post.AuthorID,
		CreatedAt:    post.CreatedAt.UTC().Format(time.RFC3339Nano),
		LikeCount:    post.LikeCount,
		CommentCount: post.CommentCount,
		ShareCount:   post.ShareCount,
		Location:     post.Location,
		ImageURL:     post.ImageURL,
		Caption:      post.Caption,
		City:         post.City,
		Hashtags:     post.Hashtags,
	}
}

func (h *HTTPHandler) CreatePost(w http.ResponseWriter, r *http.Request) {
	usrID := r.Header.Get(userIDHeader)
	if !userIDPattern.MatchString(usrID) {
		h.writeJSON(w, http.StatusUnauthorized, ErrorResponse{"The user id is not valid"})
		return
	}

	var body CreatePostRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.writeJSON(w, http.StatusBadRequest, ErrorResponse{err.Error()})
		return
	}

	post, err := h.Manager.AddPost(r.Context(), feed.NewPost{
		AuthorID: usrID,
		ImageURL: body.ImageURL,
		Caption:  body.Caption,
		City:     body.City,
		Hashtags: body.Hashtags,
		Location: body.Location,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, toResponse(post))
}

// GetPost returns a post with its position in today's hot feed, if it made
// the top of it. A failed rank refresh is logged and the last good ranks are
// used.
func (h *HTTPHandler) GetPost(w http.ResponseWriter, r *http.Request) {
	postID := mux.Vars(r)["postId"]
	post, err := h.Manager.GetPost(r.Context(), postID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	resp := toResponse(post)
	if h.Ranks != nil {
		if err := h.Ranks.RefreshIfNeeded(r.Context(), h.Now()); err != nil {
			h.Logger.Warn("rank refresh failed, serving last known ranks", "error", err)
		}
		if rank, ok := h.Ranks.Rank(post.ID); ok {
			resp.Rank = &rank
		}
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *HTTPHandler) GetHotFeed(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	size, cursor, err := pageArgs(q.Get("size"), q.Get("page"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	asOf := h.Now()
	if raw := q.Get("asOf"); raw != "" {
		if asOf, err = parseTime("asOf", raw); err != nil {
			h.writeError(w, r, err)
			return
		}
	}

	page, err := h.Hot.FetchHotPage(r.Context(), cursor, size, asOf)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	scorer := h.Hot.Scorer()
	resp := FeedResponse{
		Posts:       make([]PostResponse, 0, len(page.Posts)),
		NextPage:    page.Cursor.Encode(),
		Approximate: page.Approximate,
	}
	for _, post := range page.Posts {
		p := toResponse(post)
		score := scorer(post)
		p.Score = &score
		resp.Posts = append(resp.Posts, p)
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *HTTPHandler) GetRecentFeed(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	size, cursor, err := pageArgs(q.Get("size"), q.Get("page"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	var filters []feed.Filter
	if city := q.Get("city"); city != "" {
		filters = append(filters, feed.CityContains(city))
	}
	if raw := q.Get("since"); raw != "" {
		since, err := parseTime("since", raw)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		filters = append(filters, feed.CreatedSince(since))
	}

	page, err := h.Paginator.FetchPage(r.Context(), cursor, size, feed.OrderRecency, filters...)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	resp := FeedResponse{
		Posts:    make([]PostResponse, 0, len(page.Posts)),
		NextPage: page.Cursor.Encode(),
	}
	for _, post := range page.Posts {
		resp.Posts = append(resp.Posts, toResponse(post))
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// GetExplore serves the "top today" section when neither city nor since is
// given, and a filtered section otherwise.
func (h *HTTPHandler) GetExplore(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := 0
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > maxPageSize {
			h.writeError(w, r, fmt.Errorf("%w: limit must be between 1 and %d", feed.ErrInvalidArgument, maxPageSize))
			return
		}
		limit = n
	}

	query := feed.ExploreQuery{City: q.Get("city"), Limit: limit}
	if raw := q.Get("since"); raw != "" {
		since, err := parseTime("since", raw)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		query.Since = since
	}

	var (
		posts []feed.PostRecord
		err   error
	)
	if query.City == "" && query.Since.IsZero() {
		posts, err = h.Explorer.TopToday(r.Context(), h.Now(), limit)
	} else {
		posts, err = h.Explorer.Section(r.Context(), query)
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	resp := ExploreResponse{Posts: make([]PostResponse, 0, len(posts))}
	for _, post := range posts {
		resp.Posts = append(resp.Posts, toResponse(post))
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *HTTPHandler) CheckIsReady(w http.ResponseWriter, r *http.Request) {
	if !h.Manager.IsReady(r.Context()) {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func pageArgs(rawSize, rawPage string) (int, *feed.Cursor, error) {
	size := defaultPageSize
	if rawSize != "" {
		n, err := strconv.Atoi(rawSize)
		if err != nil || n <= 0 || n > maxPageSize {
			return 0, nil, fmt.Errorf("%w: size must be between 1 and %d", feed.ErrInvalidArgument, maxPageSize)
		}
		size = n
	}
	cursor, err := feed.ParseCursor(rawPage)
	if err != nil {
		return 0, nil, err
	}
	return size, cursor, nil
}

func parseTime(name, raw string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s must be an RFC 3339 timestamp", feed.ErrInvalidArgument, name)
	}
	return t, nil
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, feed.ErrInvalidArgument):
		status = http.StatusBadRequest
	case errors.Is(err, feed.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, feed.ErrStoreFetchFailed), errors.Is(err, feed.ErrStorage):
		status = http.StatusBadGateway
	}
	if status >= http.StatusInternalServerError {
		h.Logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	h.writeJSON(w, status, ErrorResponse{err.Error()})
}

func (h *HTTPHandler) writeJSON(w http.ResponseWriter, status int, body any) {
	rawResponse, err := json.Marshal(body)
	if err != nil {
		h.Logger.Error("encode response", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(rawResponse)
}
