package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/rushteam/embedrec/backfill"
)

var validate = validator.New()

type initializeRequest struct {
	StartID   int64 `validate:"gte=0"`
	BatchSize int   `validate:"gt=0,lte=10000"`
}

type recommendRequest struct {
	UserID int64 `validate:"gt=0"`
	Size   int   `validate:"gte=0"`
}

// UpdateCategory 处理 POST /api/embedding/update/{categoryId}
func (s *Server) UpdateCategory(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "categoryId"), 10, 64)
	if err != nil || id <= 0 {
		s.respondError(w, http.StatusBadRequest, "INVALID_CATEGORY_ID", "invalid category id", err)
		return
	}
	s.enqueue(w, backfill.CategoryJob{ID: id},
		fmt.Sprintf("category %d embedding update started", id))
}

// UpdateAllCategories 处理 POST /api/embedding/update-all-category
func (s *Server) UpdateAllCategories(w http.ResponseWriter, _ *http.Request) {
	s.enqueue(w, backfill.AllCategoriesJob{}, "all category embedding update started")
}

// InitializeItems 处理 POST /api/embedding/initialize/{startId}/{batchSize}
func (s *Server) InitializeItems(w http.ResponseWriter, r *http.Request) {
	var req initializeRequest
	var err error
	if req.StartID, err = strconv.ParseInt(chi.URLParam(r, "startId"), 10, 64); err != nil {
		s.respondError(w, http.StatusBadRequest, "INVALID_START_ID", "invalid start id", err)
		return
	}
	if req.BatchSize, err = strconv.Atoi(chi.URLParam(r, "batchSize")); err != nil {
		s.respondError(w, http.StatusBadRequest, "INVALID_BATCH_SIZE", "invalid batch size", err)
		return
	}
	if err := validate.Struct(req); err != nil {
		s.respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), nil)
		return
	}
	s.enqueue(w, backfill.ItemRangeJob{StartID: req.StartID, BatchSize: req.BatchSize},
		fmt.Sprintf("item embedding initialization started from %d, batch %d", req.StartID, req.BatchSize))
}

// Recommendations 处理 GET /api/recommend/recommendations?userId=&size=
func (s *Server) Recommendations(w http.ResponseWriter, r *http.Request) {
	if s.recommender == nil {
		s.respondError(w, http.StatusServiceUnavailable, "UNAVAILABLE", "recommendation is not configured", nil)
		return
	}

	q := r.URL.Query()
	var req recommendRequest
	var err error
	if req.UserID, err = strconv.ParseInt(q.Get("userId"), 10, 64); err != nil {
		s.respondError(w, http.StatusBadRequest, "INVALID_USER_ID", "invalid user id", err)
		return
	}
	if v := q.Get("size"); v != "" {
		if req.Size, err = strconv.Atoi(v); err != nil {
			s.respondError(w, http.StatusBadRequest, "INVALID_SIZE", "invalid size", err)
			return
		}
	}
	if err := validate.Struct(req); err != nil {
		s.respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), nil)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()

	res, err := s.recommender.Rank(ctx, req.UserID, req.Size)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "RECOMMENDATION_ERROR", "failed to generate recommendations", err)
		return
	}
	writeJSON(w, s.logger, http.StatusOK, &Response{Status: "success", Data: res})
}

func (s *Server) enqueue(w http.ResponseWriter, job backfill.Job, message string) {
	if s.backfill == nil {
		s.respondError(w, http.StatusServiceUnavailable, "UNAVAILABLE", "backfill is not configured", nil)
		return
	}
	if err := s.backfill.Submit(job); err != nil {
		if errors.Is(err, backfill.ErrQueueFull) {
			s.respondError(w, http.StatusServiceUnavailable, "QUEUE_FULL", "backfill queue is full, retry later", err)
			return
		}
		s.respondError(w, http.StatusServiceUnavailable, "BACKFILL_UNAVAILABLE", "backfill is not accepting jobs", err)
		return
	}
	writeJSON(w, s.logger, http.StatusAccepted, &Response{Status: "accepted", Message: message})
}
