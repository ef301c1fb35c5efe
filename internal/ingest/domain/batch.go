package domain

// Phase identifies where in the batch lifecycle a record was rejected.
type Phase string

const (
	PhaseValidation Phase = "validation"
	PhaseExecution  Phase = "execution"
)

// RecordError is one caller-visible rejection. RecordExcerpt is truncated so
// large records cannot blow up the response.
type RecordError struct {
	RecordExcerpt string `json:"record_excerpt"`
	Reason        string `json:"reason"`
	Phase         Phase  `json:"phase"`
}

// MaxReportedErrors caps the error sample returned to callers. Full detail is
// only logged.
const MaxReportedErrors = 10

// BatchResult is the structured outcome of a batch, returned even under
// partial or total failure.
type BatchResult struct {
	BatchID            string        `json:"batch_id,omitempty"`
	Processed          int           `json:"processed"`
	Failed             int           `json:"failed"`
	IsPartial          bool          `json:"is_partial"`
	RejectedReferences int           `json:"rejected_references"`
	Errors             []RecordError `json:"errors"`

	// RejectedReferenceKeys holds the distinct unknown reference keys seen
	// during validation, for one summarized log entry. Not part of the
	// response body.
	RejectedReferenceKeys []string `json:"-"`
}

// AddError appends e unless the sample is already at MaxReportedErrors.
func (r *BatchResult) AddError(e RecordError) {
	if len(r.Errors) >= MaxReportedErrors {
		return
	}
	r.Errors = append(r.Errors, e)
}

// Total returns the number of records accounted for.
func (r *BatchResult) Total() int {
	return r.Processed + r.Failed
}
