package models

// These structs define the JSON payloads exchanged between the HTTP surface
// and its callers.

// ExtractRequest is the input for the extract stage. Exactly one of Text or
// SourceURI is expected; SourceURI is resolved through the ingestion loader.
type ExtractRequest struct {
	Text      string `json:"text"`
	SourceURI string `json:"sourceUri"`
}

// PopulateRequest carries the draft summary text to populate from. When
// empty, the session's current draft summary is used.
type PopulateRequest struct {
	Summary string `json:"summary"`
}

// SessionResponse is returned when a session is created.
type SessionResponse struct {
	SessionID string `json:"sessionId"`
}

// StageResponse is the output of every stage endpoint. Message is the last
// status message the stage emitted.
type StageResponse struct {
	Stage   string      `json:"stage"`
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Result  interface{} `json:"result,omitempty"`
}
