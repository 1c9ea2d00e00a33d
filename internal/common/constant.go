package common

// AuthorizationHeader is the HTTP header and gRPC metadata key carrying the
// access token as "Bearer <token>".
const (
	AuthorizationHeader = "Authorization"
	BearerPrefix        = "Bearer "
)

// HTTP paths of the authentication API shared by server and client.
const (
	PathLogin          = "/auth/login"
	PathRegister       = "/auth/register"
	PathRefreshToken   = "/auth/refresh-token"
	PathRevokeToken    = "/auth/revoke-token"
	PathMe             = "/auth/me"
	PathLogoutAll      = "/auth/logout-all"
	PathChangePassword = "/auth/change-password"
)

// ReauthenticateMessage is the single user-facing message every refresh token
// failure collapses to.
const ReauthenticateMessage = "please sign in again"
