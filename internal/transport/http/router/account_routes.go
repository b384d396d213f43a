package router

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"go-gin-auth-session/internal/core/auth"
	"go-gin-auth-session/internal/domain"
	"go-gin-auth-session/internal/service"
	mdw "go-gin-auth-session/internal/transport/http/middleware"
)

// accountModule /me：当前用户资料、改密、注销账号，全部要求 bearer
type accountModule struct {
	session *service.SessionService
	tokens  *auth.TokenService
}

func (m *accountModule) Priority() int { return 20 }

type profileIn struct {
	Name  *string `json:"name"  binding:"omitempty,max=64"`
	Email *string `json:"email" binding:"omitempty,email,max=254"`
}

type passwordIn struct {
	CurrentPassword string `json:"currentPassword" binding:"required"`
	NewPassword     string `json:"newPassword"     binding:"required,max=72"`
}

func (m *accountModule) MountAPI(e EZ) {
	g := e.Group("/me", mdw.AuthJWT(m.tokens))

	RegisterAction(g, Action[struct{}, *domain.User]{
		Method: http.MethodGet, Path: "", Binder: BindNone, Auth: true,
		Handler: func(c *gin.Context, _ *struct{}) (*domain.User, error) {
			return m.session.Me(c.Request.Context(), c.GetString(mdw.KeyUserID))
		},
	})

	RegisterAction(g, Action[profileIn, *domain.User]{
		Method: http.MethodPatch, Path: "", Binder: BindJSON, Auth: true,
		Handler: func(c *gin.Context, in *profileIn) (*domain.User, error) {
			return m.session.UpdateProfile(c.Request.Context(), c.GetString(mdw.KeyUserID),
				service.ProfilePatch{Name: in.Name, Email: in.Email})
		},
	})

	// 新密码强度交给服务层判断，先校验旧密码
	RegisterAction(g, Action[passwordIn, ack]{
		Method: http.MethodPut, Path: "/password", Binder: BindJSON, Auth: true, Op: "change_password",
		Handler: func(c *gin.Context, in *passwordIn) (ack, error) {
			err := m.session.ChangePassword(c.Request.Context(), c.GetString(mdw.KeyUserID), in.CurrentPassword, in.NewPassword)
			if err != nil {
				return ack{}, err
			}
			return ack{OK: true}, nil
		},
	})

	RegisterAction(g, Action[struct{}, ack]{
		Method: http.MethodDelete, Path: "", Binder: BindNone, Auth: true,
		Handler: func(c *gin.Context, _ *struct{}) (ack, error) {
			if err := m.session.DeleteAccount(c.Request.Context(), c.GetString(mdw.KeyUserID)); err != nil {
				return ack{}, err
			}
			return ack{OK: true}, nil
		},
	})
}
