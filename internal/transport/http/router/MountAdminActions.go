package router

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"go-gin-auth-session/internal/domain"
	"go-gin-auth-session/internal/service"
)

// usersAdminModule 管理端用户接口：列表、启停、删除
type usersAdminModule struct {
	creds *service.CredentialStore
}

type listQ struct {
	Offset int `form:"offset,default=0" binding:"min=0"`
	Limit  int `form:"limit,default=20"`
}

type listOut struct {
	Total int64         `json:"total"`
	Items []domain.User `json:"items"`
}

func (m *usersAdminModule) MountAdmin(e EZ) {
	// --- GET /admin/v1/users ---
	RegisterAction(e, Action[listQ, listOut]{
		Method: http.MethodGet, Path: "/users", Binder: BindQuery,
		Handler: func(c *gin.Context, in *listQ) (listOut, error) {
			if in.Limit <= 0 || in.Limit > 100 {
				in.Limit = 20
			}
			items, total, err := m.creds.List(c.Request.Context(), in.Offset, in.Limit)
			if err != nil {
				return listOut{}, Internal("list users failed", err)
			}
			return listOut{Total: total, Items: items}, nil
		},
	})

	// --- POST /admin/v1/users/:id/activate | deactivate ---
	for path, active := range map[string]bool{"/users/:id/activate": true, "/users/:id/deactivate": false} {
		path, active := path, active
		RegisterAction(e, Action[struct{}, *domain.User]{
			Method: http.MethodPost, Path: path, Binder: BindNone,
			Handler: func(c *gin.Context, _ *struct{}) (*domain.User, error) {
				return m.creds.SetActive(c.Request.Context(), c.Param("id"), active)
			},
		})
	}

	// --- DELETE /admin/v1/users/:id  硬删除 ---
	RegisterAction(e, Action[struct{}, gin.H]{
		Method: http.MethodDelete, Path: "/users/:id", Binder: BindNone,
		Handler: func(c *gin.Context, _ *struct{}) (gin.H, error) {
			id := c.Param("id")
			if err := m.creds.DeleteUser(c.Request.Context(), id); err != nil {
				return nil, err
			}
			return gin.H{"id": id}, nil
		},
	})
}
