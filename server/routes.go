package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/BearBiscuit05/verl/api"
	"github.com/BearBiscuit05/verl/convert"
	"github.com/BearBiscuit05/verl/envconfig"
	"github.com/BearBiscuit05/verl/logutil"
	"github.com/BearBiscuit05/verl/ml"
	"github.com/BearBiscuit05/verl/parallel"
	"github.com/BearBiscuit05/verl/version"
)

const requestIDHeader = "X-Request-Id"

type Server struct {
	// topology is used for requests that do not carry their own.
	topology parallel.Reporter
}

func New(topology parallel.Reporter) *Server {
	return &Server{topology: topology}
}

// requestMiddleware tags each request with an id and a logger carrying it.
func requestMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}

		c.Header(requestIDHeader, id)

		logger := slog.With("request_id", id)
		c.Request = c.Request.WithContext(logutil.WithLogger(c.Request.Context(), logger))

		start := time.Now()
		c.Next()

		logger.Debug("request", "method", c.Request.Method, "path", c.Request.URL.Path, "status", c.Writer.Status(), "duration", time.Since(start))
	}
}

func (s *Server) ArchitecturesHandler(c *gin.Context) {
	archs := convert.Architectures()

	resp := api.ListArchitecturesResponse{
		Architectures: make([]api.ArchitectureResponse, len(archs)),
	}
	for i, a := range archs {
		resp.Architectures[i] = api.ArchitectureResponse{
			Name:      a.Name,
			Family:    string(a.Family),
			Supported: a.Supported,
		}
	}

	c.JSON(http.StatusOK, resp)
}

func (s *Server) ConvertHandler(c *gin.Context) {
	logger := logutil.FromContext(c.Request.Context())

	var req api.ConvertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if req.Config == nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "config is required"})
		return
	}

	if req.DType == "" {
		req.DType = envconfig.DType()
	}
	if req.DType == "" {
		req.DType = ml.DTypeBF16.String()
	}

	dtype, err := ml.ParseDType(req.DType)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	cfg, err := convert.ConfigFromMap(req.Config)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	arch, err := convert.Lookup(cfg.Architecture())
	if err != nil {
		c.AbortWithStatusJSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}

	reporter := s.topology
	if req.Topology != nil {
		reporter = parallel.Static(*req.Topology)
	}

	topology, err := reporter.Topology()
	if err == nil {
		err = topology.Validate()
	}
	if err != nil {
		c.AbortWithStatusJSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}

	logutil.TraceContext(c.Request.Context(), "convert request", "architecture", arch.Name, "dtype", dtype, "topology", topology, "world_size", topology.WorldSize())

	tc, err := convert.Convert(cfg, dtype, topology)
	if err != nil {
		logger.Debug("conversion failed", "architecture", arch.Name, "error", err)
		c.AbortWithStatusJSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}

	logger.Info("converted", "architecture", arch.Name, "family", arch.Family, "dtype", dtype, "topology", topology)
	c.JSON(http.StatusOK, api.ConvertResponse{
		Architecture: arch.Name,
		Family:       string(arch.Family),
		Parameters:   tc.NumParameters(),
		Config:       tc,
	})
}

func statusFor(err error) int {
	var missing *convert.MissingFieldError
	switch {
	case errors.Is(err, convert.ErrUnknownArchitecture):
		return http.StatusNotFound
	case errors.Is(err, convert.ErrUnsupportedArchitecture):
		return http.StatusUnprocessableEntity
	case errors.As(err, &missing),
		errors.Is(err, parallel.ErrInvalidTopology),
		errors.Is(err, envconfig.ErrInvalidSize):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) GenerateRoutes() http.Handler {
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowWildcard = true
	corsConfig.AllowBrowserExtensions = true
	corsConfig.AllowHeaders = []string{
		"Authorization",
		"Content-Type",
		"User-Agent",
		"Accept",
		"X-Requested-With",
		requestIDHeader,
	}
	corsConfig.ExposeHeaders = []string{requestIDHeader}
	corsConfig.AllowOrigins = envconfig.AllowedOrigins()

	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(
		gin.Recovery(),
		cors.New(corsConfig),
		requestMiddleware(),
	)

	r.HEAD("/", func(c *gin.Context) { c.String(http.StatusOK, "verl is running") })
	r.GET("/", func(c *gin.Context) { c.String(http.StatusOK, "verl is running") })
	r.HEAD("/api/version", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"version": version.Version}) })
	r.GET("/api/version", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"version": version.Version}) })

	r.GET("/api/architectures", s.ArchitecturesHandler)
	r.POST("/api/convert", s.ConvertHandler)

	return r
}

func Serve(ln net.Listener) error {
	slog.SetDefault(logutil.NewLogger(os.Stderr, envconfig.LogLevel()))
	slog.Info("server config", "env", envconfig.Values())

	if envconfig.LogLevel() > slog.LevelDebug {
		gin.SetMode(gin.ReleaseMode)
	}

	s := New(parallel.FromEnv())

	srvr := &http.Server{
		Handler: s.GenerateRoutes(),
	}

	ctx, done := context.WithCancel(context.Background())

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-signals
		srvr.Close()
		done()
	}()

	slog.Info(fmt.Sprintf("Listening on %s (version %s)", ln.Addr(), version.Version))
	if err := srvr.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	<-ctx.Done()
	return nil
}
