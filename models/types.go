package models

import "time"

// Prediction is one ranked class with its presentation confidence.
type Prediction struct {
	Class      string  `json:"class"`
	Confidence float64 `json:"confidence"`
}

// PredictionList is ordered by descending confidence.
type PredictionList []Prediction

// ImageRequest is the JSON body accepted by the classify endpoint.
type ImageRequest struct {
	Image *string `json:"image"`
}

type PredictionResponse struct {
	Predictions PredictionList `json:"predictions"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

type ProcessingTimings struct {
	RequestID    string
	ImageDecode  time.Duration
	Resize       time.Duration
	Preprocess   time.Duration
	ModelAcquire time.Duration
	Inference    time.Duration
	Ranking      time.Duration
	Total        time.Duration
}
