package extension

import (
	"bytes"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Stasshe/Pyxis-CodeCanvas-sub005/internal/capreg"
	"github.com/Stasshe/Pyxis-CodeCanvas-sub005/internal/ziphost"
)

// RegisterRoutes mounts the extension-management HTTP surface under router,
// following the teacher's handleList/handleEnable/handleDisable naming and
// gin.H response shape.
func (m *Manager) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/extensions", m.handleList)
	router.POST("/extensions/install", m.handleInstall)
	router.POST("/extensions/install-zip", m.handleInstallZip)
	router.POST("/extensions/:id/enable", m.handleEnable)
	router.POST("/extensions/:id/disable", m.handleDisable)
	router.DELETE("/extensions/:id", m.handleUninstall)
	router.GET("/extensions/:id/update", m.handleCheckForUpdate)
	router.POST("/commands/:id/execute", m.handleExecuteCommand)
	router.GET("/commands", m.handleListCommands)
	router.GET("/commands/:id", m.handleDescribeCommand)
	router.GET("/sidebar/panels", m.handleListPanels)
	router.POST("/sidebar/panels/:id/activate", m.handleActivatePanel)
	router.GET("/tabs/types", m.handleListTabTypes)
	router.GET("/explorer-menu/items", m.handleListExplorerMenuItems)
}

func (m *Manager) handleList(c *gin.Context) {
	c.JSON(http.StatusOK, m.GetInstalledExtensions())
}

type installRequest struct {
	ManifestURL string `json:"manifestUrl" binding:"required"`
}

func (m *Manager) handleInstall(c *gin.Context) {
	var req installRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	rec, err := m.Install(req.ManifestURL)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (m *Manager) handleEnable(c *gin.Context) {
	rec, err := m.Enable(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (m *Manager) handleDisable(c *gin.Context) {
	if !m.Disable(c.Param("id")) {
		c.JSON(http.StatusNotFound, gin.H{"error": "extension not active"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "extension disabled"})
}

func (m *Manager) handleCheckForUpdate(c *gin.Context) {
	hasUpdate, latest, err := m.CheckForUpdate(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"hasUpdate": hasUpdate, "latest": latest})
}

func (m *Manager) handleUninstall(c *gin.Context) {
	if !m.Uninstall(c.Param("id")) {
		c.JSON(http.StatusNotFound, gin.H{"error": "extension not installed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "extension uninstalled"})
}

// handleInstallZip reads a multipart-uploaded ZIP package (field name
// "file"), resolves it through ziphost, and feeds the result into
// InstallFromZip. This is the §4.5 ZIP-upload install path's only caller.
func (m *Manager) handleInstallZip(c *gin.Context) {
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	_ = header // size comes from len(data); header kept for future content-type checks

	result, err := ziphost.Install(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	rec, err := m.InstallFromZip(result.Manifest, result.Cache)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, rec)
}

type executeCommandRequest struct {
	Args map[string]any `json:"args"`
	Ctx  map[string]any `json:"ctx"`
}

// handleExecuteCommand is the HTTP surface for CommandRegistry.Execute, the
// one operation spec §4.7/§7 name as propagating a raw error to its caller
// rather than a boolean/404.
func (m *Manager) handleExecuteCommand(c *gin.Context) {
	var req executeCommandRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	result, err := m.Commands().Execute(c.Param("id"), req.Args, req.Ctx)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"result": result})
}

func (m *Manager) handleListCommands(c *gin.Context) {
	c.JSON(http.StatusOK, m.Commands().List())
}

// handleDescribeCommand reports whether a command name is registered and,
// if so, which extension owns it — the HTTP surface for
// CommandRegistry.Has/Describe.
func (m *Manager) handleDescribeCommand(c *gin.Context) {
	name := c.Param("id")
	if !m.Commands().Has(name) {
		c.JSON(http.StatusNotFound, gin.H{"registered": false})
		return
	}
	owner, _ := m.Commands().Describe(name)
	c.JSON(http.StatusOK, gin.H{"registered": true, "extensionId": owner})
}

func (m *Manager) handleListPanels(c *gin.Context) {
	c.JSON(http.StatusOK, m.Sidebar().List())
}

// handleActivatePanel fires the sidebar panel's activation listeners,
// letting a host UI drive SidebarRegistry.ActivatePanel without reaching
// into the registry directly.
func (m *Manager) handleActivatePanel(c *gin.Context) {
	m.Sidebar().ActivatePanel(c.Param("id"))
	c.JSON(http.StatusOK, gin.H{"message": "panel activated"})
}

func (m *Manager) handleListTabTypes(c *gin.Context) {
	c.JSON(http.StatusOK, m.Tabs().Types())
}

// handleListExplorerMenuItems returns the menu items applicable to one file
// explorer entry, described by the path/isFolder/isBinary query parameters —
// the HTTP surface for ExplorerMenuRegistry.ItemsFor.
func (m *Manager) handleListExplorerMenuItems(c *gin.Context) {
	item := capreg.FileItem{
		Path:     c.Query("path"),
		IsFolder: c.Query("isFolder") == "true",
		IsBinary: c.Query("isBinary") == "true",
	}
	c.JSON(http.StatusOK, m.ExplorerMenu().ItemsFor(item))
}
