package status

type HTTPError struct {
	Message string
	Code    Code
}

func NewError(code Code, message string) error {
	return HTTPError{
		Code:    code,
		Message: message,
	}
}

func (h HTTPError) Error() string {
	return h.Message
}

// CodeOf extracts the status code carried by err, falling back to 500 for
// everything that isn't an HTTPError.
func CodeOf(err error) Code {
	if http, ok := err.(HTTPError); ok {
		return http.Code
	}

	return InternalServerError
}

// The connection and router failure taxonomy. Parsing and size violations are
// terminal for the connection; ErrRouter is a registration-time condition and
// never surfaces per-request.
var (
	ErrCloseConnection = NewError(BadRequest, "actively closing the connection")

	ErrInvalidUsage    = NewError(BadRequest, "received malformed request")
	ErrPayloadTooLarge = NewError(PayloadTooLarge, "request exceeds the configured size limit")
	ErrRequestTimeout  = NewError(RequestTimeout, "request timed out")
	ErrServerError     = NewError(InternalServerError, "failed to write a response")
	ErrNotFound        = NewError(NotFound, "not found")
	ErrRouter          = NewError(InternalServerError, "malformed route template")

	ErrShutdown         = NewError(ServiceUnavailable, "shutting down")
	ErrGracefulShutdown = NewError(ServiceUnavailable, "graceful shutdown")
)
