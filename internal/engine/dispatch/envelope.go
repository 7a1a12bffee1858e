package dispatch

// Response is the uniform envelope every operation returns. Exactly one of
// Data and Error is set, keyed by Success.
type Response struct {
	Success  bool        `json:"success"`
	Data     interface{} `json:"data,omitempty"`
	Error    *ErrorBody  `json:"error,omitempty"`
	Metadata *Metadata   `json:"metadata,omitempty"`
}

// ErrorBody is the machine-readable failure payload.
type ErrorBody struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// Metadata carries pagination for list responses.
type Metadata struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"pageSize"`
	TotalCount int64 `json:"totalCount"`
	HasMore    bool  `json:"hasMore"`
}

// OK wraps a successful result.
func OK(data interface{}) Response {
	return Response{Success: true, Data: data}
}

// OKPaged wraps a successful list result with pagination metadata.
func OKPaged(data interface{}, page, pageSize int, totalCount int64) Response {
	return Response{
		Success: true,
		Data:    data,
		Metadata: &Metadata{
			Page:       page,
			PageSize:   pageSize,
			TotalCount: totalCount,
			HasMore:    int64(page*pageSize) < totalCount,
		},
	}
}

// Fail wraps a failure.
func Fail(code, message string) Response {
	return Response{Success: false, Error: &ErrorBody{Code: code, Message: message}}
}

// FailWithDetails wraps a failure carrying structured detail.
func FailWithDetails(code, message string, details map[string]interface{}) Response {
	return Response{Success: false, Error: &ErrorBody{Code: code, Message: message, Details: details}}
}
