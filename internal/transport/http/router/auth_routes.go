package router

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"go-gin-auth-session/internal/core/auth"
	"go-gin-auth-session/internal/core/oauth"
	"go-gin-auth-session/internal/service"
	mdw "go-gin-auth-session/internal/transport/http/middleware"
)

// authModule /auth/*：注册、登录、刷新、第三方登录、重置密码占位
type authModule struct {
	session *service.SessionService
	tokens  *auth.TokenService
}

func (m *authModule) Priority() int { return 10 }

type signupIn struct {
	Name     string `json:"name"     binding:"required,max=64"`
	Email    string `json:"email"    binding:"required,email,max=254"`
	Password string `json:"password" binding:"required,max=72,password"`
}

type signinIn struct {
	Email    string `json:"email"    binding:"required"`
	Password string `json:"password" binding:"required"`
}

type refreshIn struct {
	RefreshToken string `json:"refreshToken" binding:"required"`
}

type oauthIn struct {
	Code    string `json:"code"`
	IDToken string `json:"idToken"`
}

type oauthURLOut struct {
	URL   string `json:"url"`
	State string `json:"state"`
}

type forgotIn struct {
	Email string `json:"email" binding:"required,email"`
}

type resetIn struct {
	Token    string `json:"token"    binding:"required"`
	Password string `json:"password" binding:"required"`
}

type ack struct {
	OK bool `json:"ok"`
}

func (m *authModule) MountAPI(e EZ) {
	g := e.Group("/auth")

	RegisterAction(g, Action[signupIn, *service.AuthResult]{
		Method: http.MethodPost, Path: "/signup", Binder: BindJSON, Status: http.StatusCreated, Op: "signup",
		Handler: func(c *gin.Context, in *signupIn) (*service.AuthResult, error) {
			return m.session.Signup(c.Request.Context(), in.Name, in.Email, in.Password)
		},
	})

	RegisterAction(g, Action[signinIn, *service.AuthResult]{
		Method: http.MethodPost, Path: "/signin", Binder: BindJSON, Op: "signin",
		Handler: func(c *gin.Context, in *signinIn) (*service.AuthResult, error) {
			return m.session.Signin(c.Request.Context(), in.Email, in.Password)
		},
	})

	RegisterAction(g, Action[refreshIn, *service.RefreshResult]{
		Method: http.MethodPost, Path: "/refresh", Binder: BindJSON, Op: "refresh",
		Handler: func(c *gin.Context, in *refreshIn) (*service.RefreshResult, error) {
			return m.session.Refresh(c.Request.Context(), in.RefreshToken)
		},
	})

	RegisterAction(g, Action[struct{}, oauthURLOut]{
		Method: http.MethodGet, Path: "/oauth/:provider/url", Binder: BindNone,
		Handler: func(c *gin.Context, _ *struct{}) (oauthURLOut, error) {
			p, err := m.session.Identities().Provider(c.Param("provider"))
			if err != nil {
				return oauthURLOut{}, NotFound("unknown provider")
			}
			state, err := oauth.NewState()
			if err != nil {
				return oauthURLOut{}, Internal("internal error", err)
			}
			return oauthURLOut{URL: p.AuthCodeURL(state), State: state}, nil
		},
	})

	RegisterAction(g, Action[oauthIn, *service.AuthResult]{
		Method: http.MethodPost, Path: "/oauth/:provider", Binder: BindJSON, Op: "social_signin",
		Handler: func(c *gin.Context, in *oauthIn) (*service.AuthResult, error) {
			if in.Code == "" && in.IDToken == "" {
				return nil, BadRequest("code or idToken is required")
			}
			a := oauth.Assertion{Code: in.Code, IDToken: in.IDToken}
			return m.session.SocialSignin(c.Request.Context(), c.Param("provider"), a)
		},
	})

	RegisterAction(g, Action[forgotIn, ack]{
		Method: http.MethodPost, Path: "/password/forgot", Binder: BindJSON,
		Handler: func(c *gin.Context, in *forgotIn) (ack, error) {
			return ack{}, m.session.ForgotPassword(c.Request.Context(), in.Email)
		},
	})

	RegisterAction(g, Action[resetIn, ack]{
		Method: http.MethodPost, Path: "/password/reset", Binder: BindJSON,
		Handler: func(c *gin.Context, in *resetIn) (ack, error) {
			return ack{}, m.session.ResetPassword(c.Request.Context(), in.Token, in.Password)
		},
	})

	// 无服务端会话，签出只做审计
	authed := g.Group("", mdw.AuthJWT(m.tokens))
	RegisterAction(authed, Action[struct{}, ack]{
		Method: http.MethodPost, Path: "/signout", Binder: BindNone, Auth: true, Op: "signout",
		Handler: func(c *gin.Context, _ *struct{}) (ack, error) {
			if err := m.session.Signout(c.Request.Context(), c.GetString(mdw.KeyUserID)); err != nil {
				return ack{}, err
			}
			return ack{OK: true}, nil
		},
	})
}
