package echoapi

import (
	"strconv"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/uclouvain/osis-partnership-sub000/core"
	"github.com/uclouvain/osis-partnership-sub000/core/perms"
	"github.com/uclouvain/osis-partnership-sub000/core/user"
)

const (
	contextTokenKey   = "userToken"
	contextSubjectKey = "subject"
	tokenAudience     = "osis-partnership"
)

// newJWTConfig returns the JWT auth middleware config signing with the application secret.
func newJWTConfig(conf *core.Config) middleware.JWTConfig {
	return middleware.JWTConfig{
		SigningKey:    []byte(conf.SecretKey),
		SigningMethod: middleware.AlgorithmHS256,
		ContextKey:    contextTokenKey,
		Claims:        new(Claims),
	}
}

// Claims represents the authorization claims transmitted via a JWT.
type Claims struct {
	jwt.StandardClaims
	OrigIssuedAt     int64    `json:"oriat,omitempty"`
	Username         string   `json:"username,omitempty"`
	Email            string   `json:"email,omitempty"`
	IsADRI           bool     `json:"is_adri,omitempty"`
	IsFacultyManager bool     `json:"is_faculty_manager,omitempty"`
	Roles            []string `json:"roles,omitempty"`
}

// UserID returns the ID of the user the token was issued to.
func (c Claims) UserID() (int, error) {
	return strconv.Atoi(c.Subject)
}

// IsStaff reports whether the token was issued to a UCLouvain staff member of the application.
func (c Claims) IsStaff() bool {
	return c.IsADRI || c.IsFacultyManager || core.ContainsString(c.Roles, user.RoleViewer)
}

func GetUserClaims(conf *core.Config, usr user.User, origIat ...int64) *Claims {
	now := time.Now()
	nownix := now.Unix()

	oriat := nownix
	if len(origIat) > 0 {
		oriat = origIat[0]
	}

	return &Claims{
		StandardClaims: jwt.StandardClaims{
			Issuer:    conf.AppName,
			Subject:   strconv.Itoa(usr.ID),
			Audience:  tokenAudience,
			ExpiresAt: now.Add(conf.Server.JWTExpirationDelta).Unix(),
			IssuedAt:  nownix,
		},
		OrigIssuedAt:     oriat,
		Username:         usr.Username,
		Email:            usr.Email,
		IsADRI:           usr.IsADRI(),
		IsFacultyManager: usr.IsFacultyManager(),
		Roles:            usr.Roles,
	}
}

func generateToken(config middleware.JWTConfig, claims *Claims) (string, error) {
	method := jwt.GetSigningMethod(config.SigningMethod)
	token := jwt.NewWithClaims(method, claims)

	ss, err := token.SignedString(config.SigningKey)
	if err != nil {
		return "", errors.Wrap(err, "signing token")
	}
	return ss, nil
}

func authenticate(ctx echo.Context, uname, pwd string, svc user.Service) (user.User, error) {
	usr, err := svc.GetByUsernameOrEmail(ctx.Request().Context(), uname)
	if err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			return user.User{}, errAuthenticationFailed
		}
		return user.User{}, errors.Wrap(err, "finding user by username or email")
	}
	if err = usr.CheckPassword(pwd); err != nil {
		return user.User{}, errAuthenticationFailed
	}
	if !usr.IsActive {
		return user.User{}, errAccountDeactivated
	}
	usr, err = svc.SetLastLogin(ctx.Request().Context(), usr)
	if err != nil {
		return user.User{}, errors.Wrap(err, "setting lastLogin")
	}
	return usr, nil
}

func getContextClaims(ctx echo.Context) (Claims, error) {
	if token, ok := ctx.Get(contextTokenKey).(*jwt.Token); ok {
		if claims, ok := token.Claims.(*Claims); ok {
			return *claims, nil
		}
	}
	return Claims{}, errUnauthorized
}

// getContextSubject returns the subject set by subjectMiddleware.
func getContextSubject(ctx echo.Context) (perms.Subject, error) {
	if s, ok := ctx.Get(contextSubjectKey).(perms.Subject); ok {
		return s, nil
	}
	return perms.Subject{}, errUnauthorized
}

func loadUser(ctx echo.Context, svc user.Service, claims Claims) (user.User, error) {
	id, err := claims.UserID()
	if err != nil {
		return user.User{}, errUnauthorized
	}
	usr, err := svc.GetByID(ctx.Request().Context(), id)
	if err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			return user.User{}, errUnauthorized
		}
		return user.User{}, errors.Wrap(err, "finding user by ID")
	}
	return usr, nil
}

func refreshToken(ctx echo.Context, config middleware.JWTConfig, conf *core.Config, svc user.Service) (string, error) {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return "", errors.Wrap(err, "getting context claims")
	}

	usr, err := loadUser(ctx, svc, claims)
	if err != nil {
		return "", err
	}

	// check if user is still active
	if !usr.IsActive {
		return "", errAccountDeactivated
	}

	// check if refresh has not expired
	expTime := time.Unix(claims.OrigIssuedAt, 0).Add(conf.Server.JWTRefreshExpirationDelta)
	if time.Now().After(expTime) {
		return "", errRefreshExpired
	}

	token, err := generateToken(config, GetUserClaims(conf, usr, claims.OrigIssuedAt))
	return token, errors.Wrap(err, "generating token")
}
