package types

// ErrorBody is the JSON body written for every failed request. Detail is
// always human readable; internal failures carry a generic message.
type ErrorBody struct {
	Detail  string `json:"detail"`
	Code    string `json:"code"`
	Details any    `json:"details,omitempty"`
}

// StatusBody is the acknowledgement written by webhook and admin actions.
type StatusBody struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}
