package main

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/Stasshe/Pyxis-CodeCanvas-sub005/internal/codefetch"
	"github.com/Stasshe/Pyxis-CodeCanvas-sub005/internal/config"
	"github.com/Stasshe/Pyxis-CodeCanvas-sub005/internal/extension"
	"github.com/Stasshe/Pyxis-CodeCanvas-sub005/internal/extmodel"
	"github.com/Stasshe/Pyxis-CodeCanvas-sub005/internal/hostlog"
	"github.com/Stasshe/Pyxis-CodeCanvas-sub005/internal/registryfetch"
	"github.com/Stasshe/Pyxis-CodeCanvas-sub005/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	setupLogging(cfg.LogLevel)
	log.Info("Starting extension host...")

	st, err := store.Open(cfg.StorePath)
	if err != nil {
		log.Fatalf("Failed to open extension store: %v", err)
	}
	defer st.Close()

	registry := registryfetch.New(cfg.RegistryURL)
	registry.StartBackgroundRefresh(registryfetch.DefaultTTL)
	defer registry.Close()

	code := codefetch.New(cfg.ExtensionsBaseURL)
	logBuffer := hostlog.NewBuffer(cfg.LogBufferCapacity)

	manager := extension.NewManager(extension.ManagerConfig{
		Store:     st,
		Registry:  registry,
		Code:      code,
		BinaryDir: cfg.BinaryDir,
		LogSink:   logBuffer.Sink(),
		ExtensionRoot: func(id string) string {
			return cfg.ExtensionsDir + "/" + id
		},
	})

	if cfg.ReleaseMode {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.Default()

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.CORSOrigins
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})

	api := router.Group("/api")
	manager.RegisterRoutes(api)
	api.GET("/extensions/logs", func(c *gin.Context) {
		c.JSON(http.StatusOK, logBuffer.Tail(0))
	})

	mounted := make(map[string]bool)
	manager.OnChange(func(event extmodel.ChangeEvent) {
		mountServiceProxies(router, manager, mounted)
	})

	firstRun := manager.Init()
	if firstRun {
		log.Info("No persisted extensions found, running first-run bootstrap")
		extension.NewAutoInstaller(manager).Run(cfg.HostLocale)
	}
	mountServiceProxies(router, manager, mounted)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Infof("Extension host listening on port %d", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down extension host...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Errorf("Server forced to shutdown: %v", err)
	}
	log.Info("Extension host exited")
}

// mountServiceProxies reverse-proxies every active native service
// extension's HTTP endpoint under /api/extensions/:id/proxy, following the
// teacher's path-stripping Director pattern. gin refuses to register the
// same route twice, so mounted tracks which extension ids already got a
// route for the lifetime of this process.
func mountServiceProxies(router *gin.Engine, manager *extension.Manager, mounted map[string]bool) {
	for _, id := range manager.ActiveServiceExtensionIDs() {
		if mounted[id] {
			continue
		}
		endpoint, ok := manager.HTTPEndpoint(id)
		if !ok {
			continue
		}
		mountOneServiceProxy(router, id, endpoint)
		mounted[id] = true
	}
}

func mountOneServiceProxy(router *gin.Engine, id, endpoint string) {
	target, err := url.Parse("http://" + endpoint)
	if err != nil {
		log.Errorf("extension: invalid HTTP endpoint %q for %s: %v", endpoint, id, err)
		return
	}

	proxy := httputil.NewSingleHostReverseProxy(target)
	mountPath := "/api/extensions/" + id + "/proxy"

	originalDirector := proxy.Director
	proxy.Director = func(req *http.Request) {
		originalDirector(req)
		req.URL.Path = strings.TrimPrefix(req.URL.Path, mountPath)
		if req.URL.Path == "" {
			req.URL.Path = "/"
		}
		req.Header.Set("X-Forwarded-Host", req.Host)
	}
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		log.Errorf("extension: proxy error for %s: %v", id, err)
		http.Error(w, "extension proxy error", http.StatusBadGateway)
	}

	handler := func(c *gin.Context) { proxy.ServeHTTP(c.Writer, c.Request) }
	router.Any(mountPath+"/*path", handler)
	router.Any(mountPath, handler)
}

func setupLogging(level string) {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	switch level {
	case "debug":
		log.SetLevel(log.DebugLevel)
	case "warn":
		log.SetLevel(log.WarnLevel)
	case "error":
		log.SetLevel(log.ErrorLevel)
	default:
		log.SetLevel(log.InfoLevel)
	}
}
