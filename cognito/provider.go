package cognito

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	auth "github.com/chimerakang/auth-go"
)

// X-Amz-Target values for the Cognito Identity Provider JSON API.
const (
	targetInitiateAuth          = "AWSCognitoIdentityProviderService.InitiateAuth"
	targetRespondToChallenge    = "AWSCognitoIdentityProviderService.RespondToAuthChallenge"
	targetGlobalSignOut         = "AWSCognitoIdentityProviderService.GlobalSignOut"
	targetSignUp                = "AWSCognitoIdentityProviderService.SignUp"
	targetForgotPassword        = "AWSCognitoIdentityProviderService.ForgotPassword"
	targetConfirmForgotPassword = "AWSCognitoIdentityProviderService.ConfirmForgotPassword"
	targetChangePassword        = "AWSCognitoIdentityProviderService.ChangePassword"
)

// Provider implements auth.Provider against the Cognito Identity Provider
// JSON API (x-amz-json-1.1 over HTTPS).
type Provider struct {
	cfg        auth.Config
	endpoint   string
	httpClient *http.Client
	logger     *slog.Logger
}

// compile-time check
var _ auth.Provider = (*Provider)(nil)

// ProviderOption configures the Provider.
type ProviderOption func(*Provider)

// WithProviderHTTPClient sets a custom HTTP client for API calls.
func WithProviderHTTPClient(c *http.Client) ProviderOption {
	return func(p *Provider) { p.httpClient = c }
}

// WithProviderLogger sets a structured logger.
func WithProviderLogger(l *slog.Logger) ProviderOption {
	return func(p *Provider) { p.logger = l }
}

// NewProvider creates a Cognito provider client for the configured pool.
func NewProvider(cfg auth.Config, opts ...ProviderOption) (*Provider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	timeout := cfg.HTTPTimeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	p := &Provider{
		cfg:        cfg,
		endpoint:   cfg.APIEndpoint(),
		httpClient: &http.Client{Timeout: timeout},
		logger:     slog.Default(),
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// API request/response shapes.

type initiateAuthRequest struct {
	AuthFlow       string            `json:"AuthFlow"`
	ClientID       string            `json:"ClientId"`
	AuthParameters map[string]string `json:"AuthParameters"`
}

type respondToChallengeRequest struct {
	ChallengeName      string            `json:"ChallengeName"`
	ClientID           string            `json:"ClientId"`
	Session            string            `json:"Session"`
	ChallengeResponses map[string]string `json:"ChallengeResponses"`
}

type authResponse struct {
	AuthenticationResult *struct {
		AccessToken  string `json:"AccessToken"`
		IDToken      string `json:"IdToken"`
		RefreshToken string `json:"RefreshToken"`
		ExpiresIn    int32  `json:"ExpiresIn"`
		TokenType    string `json:"TokenType"`
	} `json:"AuthenticationResult"`
	ChallengeName       string            `json:"ChallengeName"`
	Session             string            `json:"Session"`
	ChallengeParameters map[string]string `json:"ChallengeParameters"`
}

type apiError struct {
	Type    string `json:"__type"`
	Message string `json:"message"`
}

// Authenticate performs USER_PASSWORD_AUTH. The returned AuthResult holds
// either a session or a challenge whose Answer continuation is bound to
// the provider conversation started here.
func (p *Provider) Authenticate(ctx context.Context, creds auth.Credentials) (*auth.AuthResult, error) {
	var resp authResponse
	err := p.call(ctx, targetInitiateAuth, initiateAuthRequest{
		AuthFlow: "USER_PASSWORD_AUTH",
		ClientID: p.cfg.AppClientID,
		AuthParameters: map[string]string{
			"USERNAME": creds.Email,
			"PASSWORD": creds.Password,
		},
	}, &resp)
	if err != nil {
		return nil, err
	}
	return p.resultFrom(&resp, creds.Email)
}

// resultFrom maps an API response onto session-or-challenge.
func (p *Provider) resultFrom(resp *authResponse, username string) (*auth.AuthResult, error) {
	if resp.ChallengeName != "" {
		return p.challengeResult(resp, username)
	}
	s := sessionFrom(resp)
	if s == nil {
		return nil, &auth.LoginError{
			Reason:  auth.FailureProviderUnavailable,
			Message: "provider returned neither session nor challenge",
		}
	}
	return &auth.AuthResult{Session: s}, nil
}

// challengeResult wraps the provider's challenge handle in a continuation.
// Each invocation runs one RespondToAuthChallenge round; a failed round
// leaves the conversation handle usable for a retry with a fresh answer.
func (p *Provider) challengeResult(resp *authResponse, username string) (*auth.AuthResult, error) {
	kind := auth.ChallengeKind(resp.ChallengeName)
	session := resp.Session

	var answerKey string
	switch kind {
	case auth.ChallengeNewPassword:
		answerKey = "NEW_PASSWORD"
	case auth.ChallengeTotp:
		answerKey = "SOFTWARE_TOKEN_MFA_CODE"
	default:
		return nil, &auth.LoginError{
			Reason:  auth.FailureUnknown,
			Code:    resp.ChallengeName,
			Message: fmt.Sprintf("unsupported challenge %q", resp.ChallengeName),
		}
	}

	return &auth.AuthResult{Challenge: &auth.ProviderChallenge{
		Kind: kind,
		Answer: func(ctx context.Context, answer string) (*auth.AuthResult, error) {
			var next authResponse
			err := p.call(ctx, targetRespondToChallenge, respondToChallengeRequest{
				ChallengeName: string(kind),
				ClientID:      p.cfg.AppClientID,
				Session:       session,
				ChallengeResponses: map[string]string{
					"USERNAME": username,
					answerKey:  answer,
				},
			}, &next)
			if err != nil {
				return nil, err
			}
			return p.resultFrom(&next, username)
		},
	}}, nil
}

// Refresh exchanges the refresh token for renewed access/id tokens. The
// provider does not rotate the refresh token on this flow, so the renewed
// session carries the one passed in.
func (p *Provider) Refresh(ctx context.Context, refreshToken string) (*auth.Session, error) {
	var resp authResponse
	err := p.call(ctx, targetInitiateAuth, initiateAuthRequest{
		AuthFlow: "REFRESH_TOKEN_AUTH",
		ClientID: p.cfg.AppClientID,
		AuthParameters: map[string]string{
			"REFRESH_TOKEN": refreshToken,
		},
	}, &resp)
	if err != nil {
		return nil, err
	}

	s := sessionFrom(&resp)
	if s == nil {
		return nil, &auth.LoginError{
			Reason:  auth.FailureProviderUnavailable,
			Message: "refresh returned no session",
		}
	}
	if s.RefreshToken == "" {
		s.RefreshToken = refreshToken
	}
	return s, nil
}

// SignOut invalidates all of the user's tokens at the provider.
func (p *Provider) SignOut(ctx context.Context, accessToken string) error {
	return p.call(ctx, targetGlobalSignOut, map[string]string{
		"AccessToken": accessToken,
	}, nil)
}

// SignUp registers a new account keyed by email.
func (p *Provider) SignUp(ctx context.Context, creds auth.Credentials) error {
	return p.call(ctx, targetSignUp, map[string]any{
		"ClientId": p.cfg.AppClientID,
		"Username": creds.Email,
		"Password": creds.Password,
		"UserAttributes": []map[string]string{
			{"Name": "email", "Value": creds.Email},
		},
	}, nil)
}

// ForgotPassword starts the reset flow; the provider delivers a
// confirmation code out of band.
func (p *Provider) ForgotPassword(ctx context.Context, email string) error {
	return p.call(ctx, targetForgotPassword, map[string]string{
		"ClientId": p.cfg.AppClientID,
		"Username": email,
	}, nil)
}

// ConfirmForgotPassword completes a reset with the delivered code.
func (p *Provider) ConfirmForgotPassword(ctx context.Context, email, code, newPassword string) error {
	return p.call(ctx, targetConfirmForgotPassword, map[string]string{
		"ClientId":         p.cfg.AppClientID,
		"Username":         email,
		"ConfirmationCode": code,
		"Password":         newPassword,
	}, nil)
}

// ChangePassword rotates a signed-in user's password.
func (p *Provider) ChangePassword(ctx context.Context, accessToken, oldPassword, newPassword string) error {
	return p.call(ctx, targetChangePassword, map[string]string{
		"AccessToken":      accessToken,
		"PreviousPassword": oldPassword,
		"ProposedPassword": newPassword,
	}, nil)
}

// call performs one API round trip. Non-2xx responses are classified into
// the login error taxonomy; transport failures are transient provider
// failures. Request bodies carry credentials and are never logged.
func (p *Provider) call(ctx context.Context, target string, reqBody any, out any) error {
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("auth/cognito: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("auth/cognito: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-amz-json-1.1")
	req.Header.Set("X-Amz-Target", target)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return &auth.LoginError{
			Reason:  auth.FailureProviderUnavailable,
			Message: "provider unreachable",
		}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &auth.LoginError{
			Reason:  auth.FailureProviderUnavailable,
			Message: "reading provider response failed",
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return p.classify(resp.StatusCode, body)
	}

	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			return &auth.LoginError{
				Reason:  auth.FailureProviderUnavailable,
				Message: "malformed provider response",
			}
		}
	}
	return nil
}

// classify maps a provider error response onto the login taxonomy.
// Unknown-user and wrong-password rejections surface identically so the
// login form cannot be used to probe for accounts; Code keeps the
// distinction for callers that need it.
func (p *Provider) classify(status int, body []byte) error {
	var apiErr apiError
	_ = json.Unmarshal(body, &apiErr)

	le := &auth.LoginError{Code: apiErr.Type, Message: apiErr.Message}
	switch apiErr.Type {
	case "NotAuthorizedException", "UserNotFoundException", "UserLambdaValidationException":
		le.Reason = auth.FailureBadCredentials
	case "PasswordResetRequiredException":
		le.Reason = auth.FailurePasswordResetRequired
	case "CodeMismatchException", "ExpiredCodeException":
		le.Reason = auth.FailureInvalidCode
	case "UserNotConfirmedException":
		le.Reason = auth.FailureUserNotConfirmed
	default:
		if status >= 500 || apiErr.Type == "" {
			le.Reason = auth.FailureProviderUnavailable
		} else {
			le.Reason = auth.FailureUnknown
		}
	}

	p.logger.Debug("provider call rejected",
		"status", status, "type", apiErr.Type, "reason", le.Reason.String())
	return le
}

func sessionFrom(resp *authResponse) *auth.Session {
	r := resp.AuthenticationResult
	if r == nil || r.AccessToken == "" {
		return nil
	}
	return &auth.Session{
		AccessToken:  r.AccessToken,
		IDToken:      r.IDToken,
		RefreshToken: r.RefreshToken,
		ExpiresAt:    time.Now().Add(time.Duration(r.ExpiresIn) * time.Second),
	}
}
