package router

import (
	"github.com/gin-gonic/gin"

	"go-gin-auth-session/internal/core/server"
	mdw "go-gin-auth-session/internal/transport/http/middleware"
)

// NewAdminEngine 后台端：静态 X-Admin-Token 守卫，不走用户角色
func NewAdminEngine(d Deps, adminToken string) *gin.Engine {
	r := server.NewEngine(nil)
	r.Use(baseMiddlewares(d)...)
	mountOps(r, d)

	var reg Registry
	reg.Register(&usersAdminModule{creds: d.Session.Credentials()})
	reg.MountAdmin(New(r.Group("/admin/v1", mdw.AdminToken(adminToken)), d.Log, d.Metrics))
	return r
}
