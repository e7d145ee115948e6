package server

import (
	"net/http"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
)

// Response 是所有接口统一的响应外壳。
type Response struct {
	Status  string     `json:"status"`
	Message string     `json:"message,omitempty"`
	Data    any        `json:"data,omitempty"`
	Error   *ErrorBody `json:"error,omitempty"`
}

type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, logger zerolog.Logger, status int, resp *Response) {
	data, err := json.Marshal(resp)
	if err != nil {
		logger.Error().Err(err).Msg("failed to marshal response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, code, message string, err error) {
	if err != nil {
		s.logger.Warn().Err(err).Str("code", code).Int("status", status).Msg("api error")
	}
	writeJSON(w, s.logger, status, &Response{
		Status: "error",
		Error:  &ErrorBody{Code: code, Message: message},
	})
}
