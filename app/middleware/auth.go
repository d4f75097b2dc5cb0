package appMiddleware

type contextKey string

const UserIDKey contextKey = "userID"

// UserIDHeader is set by the upstream session layer once it has resolved the caller.
const UserIDHeader = "X-User-ID"
