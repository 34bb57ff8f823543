package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/Tutortoise/image-classification-service/classification"
	"github.com/Tutortoise/image-classification-service/metrics"
	"github.com/Tutortoise/image-classification-service/models"
	"github.com/Tutortoise/image-classification-service/onnxmodel"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"
)

type imageClassifier interface {
	Classify(ctx context.Context, raw []byte, timings *models.ProcessingTimings) (models.PredictionList, error)
}

type modelState interface {
	Peek() (classification.Model, bool)
}

type poolReporter interface {
	PoolStats() onnxmodel.PoolStats
}

type AppState struct {
	Classifier      imageClassifier
	Models          modelState
	MaxBodyBytes    int64
	CORSAllowOrigin string
	Debug           bool
}

func newRouter(state *AppState) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/classify", handleClassify(state)).Methods(http.MethodPost)
	r.HandleFunc("/health", state.handleHealth).Methods(http.MethodGet)
	state.addMonitoringRoutes(r)
	return r
}

func (s *AppState) addMonitoringRoutes(r *mux.Router) {
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/debug/pool", s.handlePoolStats).Methods(http.MethodGet)
}

// withCORS sets CORS headers on every response and answers preflight requests.
func (s *AppState) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", s.CORSAllowOrigin)
		w.Header().Set("Access-Control-Allow-Headers", CORSAllowHeaders)
		w.Header().Set("Access-Control-Allow-Methods", CORSAllowMethods)

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func handleClassify(state *AppState) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		startTotal := time.Now()
		requestID := r.Header.Get(HeaderRequestID)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(HeaderRequestID, requestID)
		timings := &models.ProcessingTimings{RequestID: requestID}

		r.Body = http.MaxBytesReader(w, r.Body, state.MaxBodyBytes)

		var predictions models.PredictionList
		imgBytes, err := readImage(r, state.MaxBodyBytes)
		if err == nil {
			predictions, err = state.Classifier.Classify(r.Context(), imgBytes, timings)
		}

		timings.Total = time.Since(startTotal)
		metrics.ObserveRequest(timings, err)

		if err != nil {
			logRequestError(requestID, err)
			sendErrorResponse(w, err)
			return
		}

		state.logTimings(timings)
		writeJSON(w, http.StatusOK, models.PredictionResponse{Predictions: predictions})
	}
}

// readImage extracts raw image bytes from a JSON, multipart or raw body.
func readImage(r *http.Request, maxBytes int64) ([]byte, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	switch mediaType {
	case "application/json":
		return handleJSONRequest(r)
	case "multipart/form-data":
		return handleMultipartRequest(r, maxBytes)
	default:
		return handleRawRequest(r)
	}
}

func handleJSONRequest(r *http.Request) ([]byte, error) {
	return decodeImageRequest(r.Body)
}

func decodeImageRequest(body io.Reader) ([]byte, error) {
	var req models.ImageRequest
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		return nil, bodyError(err)
	}
	if req.Image == nil || strings.TrimSpace(*req.Image) == "" {
		return nil, models.ClientInputError(models.StageRequest, models.ErrMissingImage, nil)
	}
	return decodeBase64Image(*req.Image)
}

func handleMultipartRequest(r *http.Request, maxBytes int64) ([]byte, error) {
	if err := r.ParseMultipartForm(maxBytes); err != nil {
		return nil, bodyError(err)
	}

	for _, field := range []string{"image", "file"} {
		file, _, err := r.FormFile(field)
		if errors.Is(err, http.ErrMissingFile) {
			continue
		}
		if err != nil {
			return nil, bodyError(err)
		}
		defer file.Close()

		data, err := io.ReadAll(file)
		if err != nil {
			return nil, bodyError(err)
		}
		if len(data) == 0 {
			continue
		}
		return data, nil
	}
	return nil, models.ClientInputError(models.StageRequest, models.ErrMissingImage, errors.New(MsgUnsupportedField))
}

func handleRawRequest(r *http.Request) ([]byte, error) {
	data, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, bodyError(err)
	}
	if len(data) == 0 {
		return nil, models.ClientInputError(models.StageRequest, models.ErrMissingImage, nil)
	}
	// No image format starts with '{', so this is a JSON body sent without
	// its content type.
	if bytes.HasPrefix(bytes.TrimSpace(data), []byte("{")) {
		return decodeImageRequest(bytes.NewReader(data))
	}
	return data, nil
}

// decodeBase64Image accepts padded or unpadded base64, optionally as a data URL.
func decodeBase64Image(encoded string) ([]byte, error) {
	encoded = strings.TrimSpace(encoded)
	if strings.HasPrefix(encoded, "data:") {
		if i := strings.Index(encoded, ","); i >= 0 {
			encoded = encoded[i+1:]
		}
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		data, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(encoded, "="))
	}
	if err != nil {
		return nil, models.ClientInputError(models.StageRequest, models.ErrInvalidPayload, errors.New(MsgInvalidBase64))
	}
	return data, nil
}

func bodyError(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return models.ClientInputError(models.StageRequest, models.ErrInvalidPayload, errors.New(MsgBodyTooLarge))
	}
	return models.ClientInputError(models.StageRequest, models.ErrInvalidPayload, err)
}

func (s *AppState) handleHealth(w http.ResponseWriter, _ *http.Request) {
	_, loaded := s.Models.Peek()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":       StatusHealthy,
		"model_loaded": loaded,
	})
}

func (s *AppState) handlePoolStats(w http.ResponseWriter, _ *http.Request) {
	model, loaded := s.Models.Peek()
	response := map[string]interface{}{"model_loaded": loaded}
	if reporter, ok := model.(poolReporter); loaded && ok {
		response["pool"] = reporter.PoolStats()
	}
	writeJSON(w, http.StatusOK, response)
}

func (s *AppState) logTimings(t *models.ProcessingTimings) {
	if !s.Debug {
		return
	}
	log.Debug().
		Str("request_id", t.RequestID).
		Dur("image_decode", t.ImageDecode).
		Dur("resize", t.Resize).
		Dur("preprocess", t.Preprocess).
		Dur("model_acquire", t.ModelAcquire).
		Dur("inference", t.Inference).
		Dur("ranking", t.Ranking).
		Dur("total", t.Total).
		Msg("processing times")
}

func logRequestError(requestID string, err error) {
	category := models.CategoryOf(err)
	event := log.Error()
	if category == models.CategoryClientInput {
		event = log.Warn()
	}
	event.Err(err).Str("request_id", requestID).Str("category", category.String()).Msg("classification failed")
}

func sendErrorResponse(w http.ResponseWriter, err error) {
	writeJSON(w, models.StatusCode(err), models.ErrorResponse{
		Error: models.PublicMessage(err),
		Code:  models.CategoryOf(err).String(),
	})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Warn().Err(err).Msg("write response")
	}
}
