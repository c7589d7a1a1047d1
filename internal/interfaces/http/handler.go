package http

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	appmarketdata "orderbookcollection/internal/application/service/marketdata"
	domainmarketdata "orderbookcollection/internal/domain/entity/marketdata"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

const orderbooksBasePath = "/api/v1/orderbooks"

var (
	errBadID         = errors.New("id must be an unsigned integer")
	errNotFound      = errors.New("order book not found")
	errMissingRange  = errors.New("from/to query params required")
	errNoHistory     = errors.New("view history is not configured")
	errLimitRequired = errors.New("limit query param required")
)

// ViewReader is the read side of the live view store.
type ViewReader interface {
	Get(id uint64) (domainmarketdata.OrderBookView, bool)
	List() []domainmarketdata.OrderBookView
}

type Handler struct {
	router     *gin.Engine
	views      ViewReader
	marketdata *appmarketdata.Service
	cache      *redis.Client
	cacheTTL   time.Duration
	gatherer   prometheus.Gatherer
}

var _ http.Handler = (*Handler)(nil)

// NewHandler serves live views from views and history from md. md, cache
// and gatherer may be nil.
func NewHandler(views ViewReader, md *appmarketdata.Service, cache *redis.Client, cacheTTL time.Duration, gatherer prometheus.Gatherer) *Handler {
	router := gin.New()
	router.Use(gin.Recovery())

	h := &Handler{
		router:     router,
		views:      views,
		marketdata: md,
		cache:      cache,
		cacheTTL:   cacheTTL,
		gatherer:   gatherer,
	}
	h.registerRoutes()
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

func (h *Handler) registerRoutes() {
	h.router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if h.gatherer != nil {
		h.router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{})))
	}

	books := h.router.Group(orderbooksBasePath)
	if h.cache != nil {
		books.Use(h.cacheMiddleware())
	}
	{
		books.GET("", h.listOrderBooks)
		books.GET("/:id", h.getOrderBook)
		books.GET("/:id/history", h.getOrderBookHistory)
		books.GET("/:id/range", h.getOrderBookRange)
	}
}

// listOrderBooks returns the latest view of every book, ordered by id.
func (h *Handler) listOrderBooks(c *gin.Context) {
	depth, err := parseOptionalInt(c, "depth")
	if err != nil {
		writeError(c, http.StatusBadRequest, err)
		return
	}
	views := h.views.List()
	for i := range views {
		views[i] = trimView(views[i], depth)
	}
	c.JSON(http.StatusOK, views)
}

// getOrderBook returns the latest view of one book. An optional depth
// query param keeps the nearest levels per side.
func (h *Handler) getOrderBook(c *gin.Context) {
	id, err := parseIDParam(c)
	if err != nil {
		writeError(c, http.StatusBadRequest, err)
		return
	}
	depth, err := parseOptionalInt(c, "depth")
	if err != nil {
		writeError(c, http.StatusBadRequest, err)
		return
	}
	view, ok := h.views.Get(id)
	if !ok {
		writeError(c, http.StatusNotFound, errNotFound)
		return
	}
	c.JSON(http.StatusOK, trimView(view, depth))
}

func (h *Handler) getOrderBookHistory(c *gin.Context) {
	if h.marketdata == nil {
		writeError(c, http.StatusServiceUnavailable, errNoHistory)
		return
	}
	id, err := parseIDParam(c)
	if err != nil {
		writeError(c, http.StatusBadRequest, err)
		return
	}
	limit, err := parseIntQuery(c, "limit")
	if err != nil {
		writeError(c, http.StatusBadRequest, errLimitRequired)
		return
	}
	views, err := h.marketdata.GetLastOrderBookViews(c.Request.Context(), id, limit)
	if err != nil {
		if errors.Is(err, appmarketdata.ErrInvalidLimit) {
			writeError(c, http.StatusBadRequest, err)
			return
		}
		writeError(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, emptyIfNil(views))
}

func (h *Handler) getOrderBookRange(c *gin.Context) {
	if h.marketdata == nil {
		writeError(c, http.StatusServiceUnavailable, errNoHistory)
		return
	}
	id, err := parseIDParam(c)
	if err != nil {
		writeError(c, http.StatusBadRequest, err)
		return
	}
	from, to, err := parseTimeRange(c)
	if err != nil {
		writeError(c, http.StatusBadRequest, errMissingRange)
		return
	}
	views, err := h.marketdata.GetOrderBookViewsBetween(c.Request.Context(), id, from, to)
	if err != nil {
		writeError(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, emptyIfNil(views))
}

// Helpers

func trimView(view domainmarketdata.OrderBookView, depth int) domainmarketdata.OrderBookView {
	if depth <= 0 {
		return view
	}
	if len(view.Bids) > depth {
		view.Bids = view.Bids[:depth]
	}
	if len(view.Asks) > depth {
		view.Asks = view.Asks[:depth]
	}
	view.Depth = int32(max(len(view.Bids), len(view.Asks)))
	return view
}

func emptyIfNil(views []domainmarketdata.OrderBookView) []domainmarketdata.OrderBookView {
	if views == nil {
		return []domainmarketdata.OrderBookView{}
	}
	return views
}

func parseIDParam(c *gin.Context) (uint64, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return 0, errBadID
	}
	return id, nil
}

func writeError(c *gin.Context, status int, err error) {
	if err == nil {
		status = http.StatusInternalServerError
		err = errors.New("unknown error")
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// cacheMiddleware caches GET responses in Redis.
func (h *Handler) cacheMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if h.cache == nil || c.Request.Method != http.MethodGet {
			c.Next()
			return
		}

		key := h.cacheKey(c)
		ctx := c.Request.Context()

		if cached, err := h.cache.Get(ctx, key).Result(); err == nil {
			c.Data(http.StatusOK, "application/json", []byte(cached))
			c.Abort()
			return
		}

		recorder := &responseRecorder{
			ResponseWriter: c.Writer,
			status:         http.StatusOK,
			body:           &bytes.Buffer{},
		}
		c.Writer = recorder

		c.Next()

		if recorder.status >= 200 && recorder.status < 300 && recorder.body.Len() > 0 {
			_ = h.cache.Set(ctx, key, recorder.body.Bytes(), h.cacheTTL).Err()
		}
	}
}

type responseRecorder struct {
	gin.ResponseWriter
	body   *bytes.Buffer
	status int
}

func (r *responseRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseRecorder) Write(data []byte) (int, error) {
	if len(data) > 0 {
		r.body.Write(data)
	}
	return r.ResponseWriter.Write(data)
}

func (h *Handler) cacheKey(c *gin.Context) string {
	return fmt.Sprintf("cache:%s:%s?%s", c.Request.Method, c.Request.URL.Path, c.Request.URL.RawQuery)
}

func parseIntQuery(c *gin.Context, key string) (int, error) {
	value := c.Query(key)
	if value == "" {
		return 0, fmt.Errorf("%s query param required", key)
	}
	return strconv.Atoi(value)
}

func parseOptionalInt(c *gin.Context, key string) (int, error) {
	value := c.Query(key)
	if value == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer", key)
	}
	return n, nil
}

func parseTimeRange(c *gin.Context) (time.Time, time.Time, error) {
	fromStr := c.Query("from")
	toStr := c.Query("to")
	if fromStr == "" || toStr == "" {
		return time.Time{}, time.Time{}, errMissingRange
	}
	from, err := time.Parse(time.RFC3339, fromStr)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	to, err := time.Parse(time.RFC3339, toStr)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return from, to, nil
}
