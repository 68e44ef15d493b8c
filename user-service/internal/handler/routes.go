package handler

import "github.com/gin-gonic/gin"

// Handlers groups the HTTP handlers of the user service.
type Handlers struct {
	Users       *UserHandler
	Permissions *PermissionHandler
	Collections *CollectionHandler
}

// RegisterRoutes mounts the API under api. auth authenticates the caller;
// adminKey guards the bootstrap routes that run before any superuser exists.
func RegisterRoutes(api *gin.RouterGroup, h Handlers, auth, adminKey gin.HandlerFunc) {
	api.POST("/builtin-users", h.Users.CreateUser)
	api.GET("/users/me", auth, h.Users.GetCurrentUser)

	admin := api.Group("/admin")
	{
		admin.POST("/superuser/:identifier", adminKey, h.Users.SetSuperuser)
		admin.GET("/actionLog", auth, h.Users.ListActionLog)

		users := admin.Group("/authenticatedUsers/:identifier", auth)
		users.GET("", h.Users.GetUser)
		users.POST("/disable", h.Users.DisableUser)
		users.GET("/traces", h.Users.GetTraces)
		users.POST("/mergeIntoUser/:target", h.Users.MergeAccounts)
	}

	dataverses := api.Group("/dataverses", auth)
	{
		dataverses.POST("", h.Collections.CreateDataverse)
		dataverses.POST("/:alias/datasets", h.Collections.CreateDataset)
		dataverses.POST("/:alias/assignments", h.Permissions.GrantOnDataverse)
		dataverses.GET("/:alias/assignments", h.Permissions.ListAssignments)
		dataverses.POST("/:alias/groups", h.Permissions.CreateGroup)
		dataverses.POST("/:alias/groups/:group/roleAssignees", h.Permissions.AddGroupMembers)
	}

	api.POST("/datasets/:id/assignments", auth, h.Permissions.GrantOnDataset)
}
