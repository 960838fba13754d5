package models

import "time"

// ResultInvalid is reported in place of a label when an upload is rejected.
const ResultInvalid = "Invalid"

// ZeroPercentage accompanies ResultInvalid.
const ZeroPercentage = "0%"

// PredictURLRequest asks the service to fetch and classify a remote image.
type PredictURLRequest struct {
	URL string `json:"url" binding:"required,url"`
}

// PredictionResponse is the body of /api/predict. Result holds a label name or
// ResultInvalid.
type PredictionResponse struct {
	Result     string           `json:"result"`
	Percentage string           `json:"percentage"`
	ID         string           `json:"id,omitempty"`
	Grayscale  *GrayscaleDetail `json:"grayscale,omitempty"`
	Warnings   []string         `json:"warnings,omitempty"`
	Error      string           `json:"error,omitempty"`
}

// GrayscaleDetail summarises the grayscale check for a request.
type GrayscaleDetail struct {
	Fraction  float64 `json:"fraction"`
	Threshold float64 `json:"threshold"`
	Ratio     float64 `json:"ratio"`
}

// InvalidResponse is the canonical rejection body.
func InvalidResponse() PredictionResponse {
	return PredictionResponse{Result: ResultInvalid, Percentage: ZeroPercentage}
}

// ConfusionMatrixResponse is the JSON view of the accumulated matrix. Rows are
// predicted labels, columns are synthetic true labels.
type ConfusionMatrixResponse struct {
	Labels []string   `json:"labels"`
	Matrix [][]uint64 `json:"matrix"`
	Total  uint64     `json:"total"`
}

// PredictionRecord is one classified request as kept in the history.
type PredictionRecord struct {
	ID             string    `json:"id"`
	Filename       string    `json:"filename"`
	Source         string    `json:"source"`
	Predicted      Label     `json:"predicted"`
	Confidence     float32   `json:"confidence"`
	SyntheticTruth Label     `json:"synthetic_truth"`
	CreatedAt      time.Time `json:"created_at"`
}

// Prediction sources.
const (
	SourceUpload = "upload"
	SourceURL    = "url"
)

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
