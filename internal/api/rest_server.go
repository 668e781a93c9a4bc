package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/annel0/citystream/internal/middleware"
	"github.com/annel0/citystream/internal/stream"
	"github.com/annel0/citystream/internal/vec"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// ViewerControl даёт REST-серверу доступ к позиции зрителя:
// чтение для отладочной панели, запись для телепорта.
type ViewerControl interface {
	Position() vec.Vec2Float
	MoveTo(pos vec.Vec2Float)
}

// RestServer представляет REST API сервер
type RestServer struct {
	router   *gin.Engine
	streamer *stream.Streamer
	viewer   ViewerControl
	port     string
	metrics  *ProcessStats
}

// Config содержит конфигурацию для REST сервера
type Config struct {
	Port     string           // порт для запуска сервера
	Streamer *stream.Streamer // ядро стриминга
	Viewer   ViewerControl    // управление позицией зрителя (может быть nil)
}

// NewRestServer создает новый REST API сервер
func NewRestServer(config Config) *RestServer {
	if config.Port == "" {
		config.Port = ":8090"
	}

	// Устанавливаем режим релиза для gin
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()        // без стандартного logger/recovery
	router.Use(gin.Recovery()) // добавим только recovery

	// === Observability middleware ===
	// otelgin первым: RequestLogger берёт trace-id из его спана
	router.Use(otelgin.Middleware("citystream_rest"))
	router.Use(middleware.RequestLogger())

	httpMetrics := middleware.NewHTTPMetrics()
	router.Use(httpMetrics.Handler())
	httpMetrics.MetricsEndpoint(router)

	server := &RestServer{
		router:   router,
		streamer: config.Streamer,
		viewer:   config.Viewer,
		port:     config.Port,
		metrics:  NewProcessStats(),
	}

	// Настраиваем маршруты
	server.setupRoutes()

	return server
}

// setupRoutes настраивает маршруты REST API
func (rs *RestServer) setupRoutes() {
	// Middleware для CORS
	rs.router.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PATCH, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	api := rs.router.Group("/api")
	{
		api.GET("/stats", rs.handleStats)
		api.GET("/chunks", rs.handleChunks)
		api.GET("/server", rs.handleServerInfo)
		api.GET("/settings", rs.handleGetSettings)
		api.PATCH("/settings", rs.handlePatchSettings)
		api.GET("/viewer", rs.handleGetViewer)
		api.POST("/viewer", rs.handleMoveViewer)
	}

	// Health check
	rs.router.GET("/health", rs.handleHealth)
}

// GenericResponse представляет общий ответ API
type GenericResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// handleStats возвращает статистику планировщика и процесса
func (rs *RestServer) handleStats(c *gin.Context) {
	stats := make(map[string]interface{})

	sched := rs.streamer.Stats()
	perKind := make(map[string]int, len(sched.QueuePerKind))
	for kind, n := range sched.QueuePerKind {
		perKind[kind.String()] = n
	}
	stats["scheduler"] = sched
	stats["queue_per_kind"] = perKind

	index := rs.streamer.Index()
	stats["index"] = map[string]interface{}{
		"features":   index.FeatureCount(),
		"chunks":     index.ChunkCount(),
		"skipped":    index.SkippedCount(),
		"chunk_size": index.ChunkSize(),
	}
	stats["scene_nodes"] = rs.streamer.SceneNodeCount()

	// Метрики сервера
	stats["server"] = map[string]interface{}{
		"uptime":      rs.metrics.Uptime(),
		"heap_mb":     fmt.Sprintf("%.2f", rs.metrics.HeapMB()),
		"cpu_percent": fmt.Sprintf("%.2f", rs.metrics.CPUPercent()),
		"system_cpu":  fmt.Sprintf("%.2f", rs.metrics.SystemCPUPercent()),
		"server_time": time.Now().Unix(),
	}

	// Детальная статистика памяти
	stats["memory_details"] = rs.metrics.MemoryDetails()

	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Статистика получена",
		Data:    stats,
	})
}

// chunkView плоское представление записи чанка для JSON
type chunkView struct {
	X          int     `json:"x"`
	Y          int     `json:"y"`
	State      string  `json:"state"`
	Pending    int     `json:"pending"`
	ItemsTotal int     `json:"items_total"`
	Attempted  int     `json:"attempted"`
	Failures   int     `json:"failures"`
	Nodes      int     `json:"nodes"`
	AgeSeconds float64 `json:"age_seconds"`
}

// handleChunks возвращает снимок активных чанков
func (rs *RestServer) handleChunks(c *gin.Context) {
	records := rs.streamer.ChunkSnapshot()
	views := make([]chunkView, 0, len(records))
	for _, rec := range records {
		views = append(views, chunkView{
			X:          rec.Key.X,
			Y:          rec.Key.Y,
			State:      rec.State.String(),
			Pending:    rec.Pending,
			ItemsTotal: rec.ItemsTotal,
			Attempted:  rec.Attempted,
			Failures:   rec.Failures,
			Nodes:      rec.Container.NodeCount(),
			AgeSeconds: time.Since(rec.ActivatedAt).Seconds(),
		})
	}

	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Активные чанки",
		Data: map[string]interface{}{
			"chunks": views,
			"total":  len(views),
		},
	})
}

// handleServerInfo возвращает информацию о сервере
func (rs *RestServer) handleServerInfo(c *gin.Context) {
	info := map[string]interface{}{
		"version":     "v0.1.0",
		"name":        "CityStream Server",
		"status":      "running",
		"uptime":      rs.metrics.Uptime(),
		"heap_mb":     fmt.Sprintf("%.1f", rs.metrics.HeapMB()),
		"cpu_percent": fmt.Sprintf("%.1f", rs.metrics.CPUPercent()),
	}

	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Информация о сервере",
		Data:    info,
	})
}

// settingsView настройки стриминга в JSON-представлении
type settingsView struct {
	ChunkSize             float64 `json:"chunk_size"`
	LoadRadius            float64 `json:"load_radius"`
	UnloadRadius          float64 `json:"unload_radius"`
	UpdateIntervalSeconds float64 `json:"update_interval_seconds"`
	FrameBudgetMs         float64 `json:"frame_budget_ms"`
	MaxTransitionsPerTick int     `json:"max_transitions_per_tick"`
	DistantAreaThreshold  float64 `json:"distant_area_threshold"`
}

func viewOfSettings(s stream.Settings) settingsView {
	return settingsView{
		ChunkSize:             s.ChunkSize,
		LoadRadius:            s.LoadRadius,
		UnloadRadius:          s.UnloadRadius,
		UpdateIntervalSeconds: s.UpdateInterval.Seconds(),
		FrameBudgetMs:         float64(s.FrameBudget) / float64(time.Millisecond),
		MaxTransitionsPerTick: s.MaxTransitionsPerTick,
		DistantAreaThreshold:  s.DistantAreaThreshold,
	}
}

// handleGetSettings возвращает действующие настройки стриминга
func (rs *RestServer) handleGetSettings(c *gin.Context) {
	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Настройки стриминга",
		Data:    viewOfSettings(rs.streamer.Settings()),
	})
}

// settingsPatch частичное обновление настроек: nil-поля не трогаются
type settingsPatch struct {
	LoadRadius            *float64 `json:"load_radius"`
	UnloadRadius          *float64 `json:"unload_radius"`
	UpdateIntervalSeconds *float64 `json:"update_interval_seconds"`
	FrameBudgetMs         *float64 `json:"frame_budget_ms"`
	MaxTransitionsPerTick *int     `json:"max_transitions_per_tick"`
	DistantAreaThreshold  *float64 `json:"distant_area_threshold"`
}

// handlePatchSettings применяет частичное обновление настроек.
// Проходит тот же путь валидации, что и загрузка конфига; отклонённые
// значения не затрагивают текущие, принятые вступают в силу со
// следующей переоценки.
func (rs *RestServer) handlePatchSettings(c *gin.Context) {
	var patch settingsPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, GenericResponse{
			Success: false,
			Message: "Неверный формат запроса: " + err.Error(),
		})
		return
	}

	s := rs.streamer.Settings()
	if patch.LoadRadius != nil {
		s.LoadRadius = *patch.LoadRadius
	}
	if patch.UnloadRadius != nil {
		s.UnloadRadius = *patch.UnloadRadius
	}
	if patch.UpdateIntervalSeconds != nil {
		s.UpdateInterval = time.Duration(*patch.UpdateIntervalSeconds * float64(time.Second))
	}
	if patch.FrameBudgetMs != nil {
		s.FrameBudget = time.Duration(*patch.FrameBudgetMs * float64(time.Millisecond))
	}
	if patch.MaxTransitionsPerTick != nil {
		s.MaxTransitionsPerTick = *patch.MaxTransitionsPerTick
	}
	if patch.DistantAreaThreshold != nil {
		s.DistantAreaThreshold = *patch.DistantAreaThreshold
	}

	if err := rs.streamer.ApplySettings(s); err != nil {
		c.JSON(http.StatusBadRequest, GenericResponse{
			Success: false,
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Настройки приняты, вступят в силу со следующей переоценки",
		Data:    viewOfSettings(s),
	})
}

// handleGetViewer возвращает текущую позицию зрителя
func (rs *RestServer) handleGetViewer(c *gin.Context) {
	if rs.viewer == nil {
		c.JSON(http.StatusNotFound, GenericResponse{
			Success: false,
			Message: "Управление зрителем недоступно",
		})
		return
	}

	pos := rs.viewer.Position()
	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Позиция зрителя",
		Data:    map[string]float64{"x": pos.X, "y": pos.Y},
	})
}

// handleMoveViewer телепортирует зрителя в указанную точку
func (rs *RestServer) handleMoveViewer(c *gin.Context) {
	if rs.viewer == nil {
		c.JSON(http.StatusNotFound, GenericResponse{
			Success: false,
			Message: "Управление зрителем недоступно",
		})
		return
	}

	var req struct {
		X float64 `json:"x"`
		Y float64 `json:"y"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, GenericResponse{
			Success: false,
			Message: "Неверный формат запроса: " + err.Error(),
		})
		return
	}

	rs.viewer.MoveTo(vec.Vec2Float{X: req.X, Y: req.Y})
	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Зритель перемещён",
		Data:    map[string]float64{"x": req.X, "y": req.Y},
	})
}

// handleHealth проверка состояния сервера
func (rs *RestServer) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().Unix(),
	})
}

// Start запускает REST сервер
func (rs *RestServer) Start() error {
	return rs.router.Run(rs.port)
}
