package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/insight-curator/internal/crawler"
	"github.com/JakeFAU/insight-curator/internal/id/uuid"
)

const (
	defaultInsightLimit = 50
	maxInsightLimit     = 500
)

type createSourceRequest struct {
	URL     string `json:"url"`
	TopicID string `json:"topic_id"`
	UserID  string `json:"user_id"`
}

type triggerCrawlRequest struct {
	CrawlSourceID string `json:"crawl_source_id"`
}

func (s *Server) listTopics(w http.ResponseWriter, r *http.Request) {
	topics, err := s.deps.Store.ListTopics(r.Context())
	if err != nil {
		s.logger.Error("list topics failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list topics")
		return
	}
	if topics == nil {
		topics = []crawler.Topic{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"topics": topics})
}

// listSources handles GET /v1/sources?user_id=&topic_id=&status=. Sources are
// returned newest first.
func (s *Server) listSources(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := crawler.SourceFilter{
		UserID:  strings.TrimSpace(q.Get("user_id")),
		TopicID: strings.TrimSpace(q.Get("topic_id")),
	}
	if raw := strings.TrimSpace(q.Get("status")); raw != "" {
		status := crawler.SourceStatus(strings.ToLower(raw))
		if !status.Valid() {
			writeError(w, http.StatusBadRequest, "invalid status")
			return
		}
		filter.Status = status
	}
	sources, err := s.deps.Store.ListSources(r.Context(), filter)
	if err != nil {
		s.logger.Error("list sources failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list sources")
		return
	}
	if sources == nil {
		sources = []crawler.CrawlSource{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"sources": sources})
}

func (s *Server) createSource(w http.ResponseWriter, r *http.Request) {
	var req createSourceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	req.URL = strings.TrimSpace(req.URL)
	req.TopicID = strings.TrimSpace(req.TopicID)
	req.UserID = strings.TrimSpace(req.UserID)
	if req.URL == "" || req.TopicID == "" || req.UserID == "" {
		writeError(w, http.StatusBadRequest, "url, topic_id and user_id are required")
		return
	}
	if !crawler.ValidateSourceURL(req.URL) {
		writeError(w, http.StatusBadRequest, "Please enter a valid URL")
		return
	}
	id, err := s.deps.IDs.NewID()
	if err != nil {
		s.logger.Error("generate source id failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to create source")
		return
	}
	created, err := s.deps.Store.CreateSource(r.Context(), crawler.CrawlSource{
		ID:        id,
		URL:       req.URL,
		TopicID:   req.TopicID,
		UserID:    req.UserID,
		CreatedAt: s.deps.Clock.Now().UTC(),
	})
	switch {
	case err == nil:
		writeJSON(w, http.StatusCreated, map[string]any{"source": created})
	case errors.Is(err, crawler.ErrDuplicateSource):
		writeError(w, http.StatusConflict, crawler.ErrDuplicateSource.Error())
	case errors.Is(err, crawler.ErrTopicNotFound):
		writeError(w, http.StatusNotFound, crawler.ErrTopicNotFound.Error())
	default:
		s.logger.Error("create source failed", zap.String("url", req.URL), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to create source")
	}
}

func (s *Server) getSource(w http.ResponseWriter, r *http.Request) {
	sourceID, ok := parseSourceID(w, r)
	if !ok {
		return
	}
	source, err := s.deps.Store.GetSource(r.Context(), sourceID)
	if err != nil {
		if errors.Is(err, crawler.ErrNotFound) {
			writeError(w, http.StatusNotFound, crawler.ErrNotFound.Error())
			return
		}
		s.logger.Error("get source failed", zap.String("source_id", sourceID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load source")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"source": source})
}

// deleteSource handles DELETE /v1/sources/{source_id}. A crawling source is
// refused with 409 so status writes never target a vanished row.
func (s *Server) deleteSource(w http.ResponseWriter, r *http.Request) {
	sourceID, ok := parseSourceID(w, r)
	if !ok {
		return
	}
	err := s.deps.Store.DeleteSource(r.Context(), sourceID)
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, crawler.ErrNotFound):
		writeError(w, http.StatusNotFound, crawler.ErrNotFound.Error())
	case errors.Is(err, crawler.ErrSourceBusy):
		writeError(w, http.StatusConflict, crawler.ErrSourceBusy.Error())
	default:
		s.logger.Error("delete source failed", zap.String("source_id", sourceID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to delete source")
	}
}

// triggerCrawl handles POST /v1/crawls. It answers as soon as the lease is
// taken; the crawl continues on a worker.
func (s *Server) triggerCrawl(w http.ResponseWriter, r *http.Request) {
	var req triggerCrawlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	sourceID := strings.TrimSpace(req.CrawlSourceID)
	if sourceID == "" {
		writeError(w, http.StatusBadRequest, "crawl_source_id is required")
		return
	}
	if !uuid.Valid(sourceID) {
		writeError(w, http.StatusNotFound, crawler.ErrNotFound.Error())
		return
	}
	source, err := s.deps.Trigger.TriggerCrawl(r.Context(), sourceID)
	switch {
	case err == nil:
		writeJSON(w, http.StatusAccepted, map[string]string{
			"crawl_source_id": source.ID,
			"status":          string(crawler.SourceStatusCrawling),
		})
	case errors.Is(err, crawler.ErrNotFound):
		writeError(w, http.StatusNotFound, crawler.ErrNotFound.Error())
	case errors.Is(err, crawler.ErrAlreadyCrawling):
		writeError(w, http.StatusConflict, crawler.ErrAlreadyCrawling.Error())
	case errors.Is(err, crawler.ErrQueueFull):
		writeError(w, http.StatusServiceUnavailable, crawler.ErrQueueFull.Error())
	default:
		s.logger.Error("trigger crawl failed", zap.String("source_id", sourceID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to trigger crawl")
	}
}

// listInsights handles GET /v1/insights?topic_id=&date=&limit=.
func (s *Server) listInsights(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := crawler.InsightFilter{
		TopicID: strings.TrimSpace(q.Get("topic_id")),
		Date:    strings.TrimSpace(q.Get("date")),
	}
	if filter.Date != "" {
		if _, err := time.Parse(crawler.DateLayout, filter.Date); err != nil {
			writeError(w, http.StatusBadRequest, "invalid date")
			return
		}
	}
	limit, err := parseLimit(q.Get("limit"), defaultInsightLimit, maxInsightLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	filter.Limit = limit
	insights, err := s.deps.Store.ListInsights(r.Context(), filter)
	if err != nil {
		s.logger.Error("list insights failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list insights")
		return
	}
	if insights == nil {
		insights = []crawler.Insight{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"insights": insights})
}

// parseSourceID writes a 404 for ids that cannot name a stored source.
func parseSourceID(w http.ResponseWriter, r *http.Request) (string, bool) {
	sourceID := chi.URLParam(r, "source_id")
	if !uuid.Valid(sourceID) {
		writeError(w, http.StatusNotFound, crawler.ErrNotFound.Error())
		return "", false
	}
	return sourceID, true
}

func parseLimit(raw string, def, maxLimit int) (int, error) {
	if raw == "" {
		return def, nil
	}
	val, err := strconv.Atoi(raw)
	if err != nil || val <= 0 {
		return 0, errors.New("invalid limit")
	}
	if val > maxLimit {
		val = maxLimit
	}
	return val, nil
}
