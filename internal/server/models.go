package server

// AuthSignupRequest registers an admin account.
type AuthSignupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthLoginRequest authenticates an admin account.
type AuthLoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// TokenResponse carries a signed JWT.
type TokenResponse struct {
	Token string `json:"token"`
}

// HTTPError is the unified error envelope every handler returns.
type HTTPError struct {
	Error string `json:"error"`
}

// JobCreateRequest publishes a new posting.
type JobCreateRequest struct {
	Title          string `json:"title"`
	Department     string `json:"department"`
	Location       string `json:"location"`
	EmploymentType string `json:"employment_type"`
	Description    string `json:"description"`
}

// InterviewStartRequest starts a session for an application.
type InterviewStartRequest struct {
	ApplicationID int64 `json:"application_id"`
}

// RoomTokenRequest asks for a LiveKit room token.
type RoomTokenRequest struct {
	Room     string `json:"room"`
	Identity string `json:"identity"`
}

// ChatSessionRequest opens an assistant conversation.
type ChatSessionRequest struct {
	UserID string                 `json:"user_id"`
	State  map[string]interface{} `json:"state"`
}

// ChatMessageRequest sends one user message to the assistant.
type ChatMessageRequest struct {
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}
