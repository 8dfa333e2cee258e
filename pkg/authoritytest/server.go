// Package authoritytest is an in-memory stand-in for the remote
// authority, implementing the REST and push contract the sync core
// consumes. It exists for package tests; it is not a production server.
package authoritytest

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/example/possync/pkg/models"
)

// Server holds authoritative state behind a gin router and broadcasts a
// content-free push frame after every mutation.
type Server struct {
	mu sync.Mutex

	products  []models.Product
	tables    []models.Table
	completed []models.CompletedOrder

	// failures holds one-shot induced errors keyed by "METHOD path-prefix".
	failures map[string]int

	conns    map[*websocket.Conn]struct{}
	upgrader websocket.Upgrader

	httpServer *httptest.Server
}

func New() *Server {
	gin.SetMode(gin.TestMode)

	s := &Server{
		failures: make(map[string]int),
		conns:    make(map[*websocket.Conn]struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}

	router := gin.New()
	router.Use(s.failureMiddleware())

	router.GET("/products", s.listProducts)
	router.POST("/products", s.createProduct)
	router.PATCH("/products/:id", s.updateProduct)
	router.DELETE("/products/:id", s.deleteProduct)

	router.GET("/tables", s.listTables)
	router.POST("/tables", s.createTable)
	router.GET("/tables/:id", s.tableDetail)
	router.DELETE("/tables/:id", s.deleteTable)

	router.POST("/tables/:id/order", s.addOrderItem)
	router.PATCH("/tables/:id/order/items/:itemId", s.updateOrderItem)
	router.DELETE("/tables/:id/order/items/:itemId", s.removeOrderItem)
	router.POST("/tables/:id/order/complete", s.completeOrder)

	router.GET("/completed-orders", s.listCompleted)
	router.GET("/completed-orders/date", s.listCompletedByDate)
	router.GET("/completed-orders/:id", s.completedDetail)

	router.GET("/ws", s.handleWS)

	s.httpServer = httptest.NewServer(router)
	return s
}

func (s *Server) Close() {
	s.mu.Lock()
	for conn := range s.conns {
		conn.Close()
	}
	s.conns = map[*websocket.Conn]struct{}{}
	s.mu.Unlock()
	s.httpServer.Close()
}

// URL is the REST base URL.
func (s *Server) URL() string { return s.httpServer.URL }

// WSURL is the push endpoint.
func (s *Server) WSURL() string {
	return "ws" + strings.TrimPrefix(s.httpServer.URL, "http") + "/ws"
}

// FailNext makes the next request matching method and path prefix fail
// with 500 and a message body.
func (s *Server) FailNext(method, pathPrefix string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[method+" "+pathPrefix]++
}

// SeedProduct installs a product, assigning an id when empty.
func (s *Server) SeedProduct(p models.Product) models.Product {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	s.products = append(s.products, p)
	return p
}

// SeedTable installs an empty table, assigning an id when empty.
func (s *Server) SeedTable(t models.Table) models.Table {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.Order == nil {
		t.Order = []models.OrderItem{}
	}
	t.NormalizeStatus()
	s.tables = append(s.tables, t)
	return t
}

// SeedCompletedOrder installs an archival record directly.
func (s *Server) SeedCompletedOrder(o models.CompletedOrder) models.CompletedOrder {
	s.mu.Lock()
	defer s.mu.Unlock()
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	s.completed = append(s.completed, o)
	return o
}

// CompletedOrderRecords returns a copy of the archived orders.
func (s *Server) CompletedOrderRecords() []models.CompletedOrder {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.CompletedOrder(nil), s.completed...)
}

// DropConnections severs every live push connection while keeping the
// server up, simulating a network blip for reconnect tests.
func (s *Server) DropConnections() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.conns {
		conn.Close()
	}
	s.conns = map[*websocket.Conn]struct{}{}
}

// Broadcast pushes a state-changed frame to all connected listeners.
func (s *Server) Broadcast() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.broadcastLocked()
}

func (s *Server) broadcastLocked() {
	frame := map[string]string{"event": "state_changed"}
	for conn := range s.conns {
		if err := conn.WriteJSON(frame); err != nil {
			conn.Close()
			delete(s.conns, conn)
		}
	}
}

func (s *Server) failureMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.Request.Method + " "
		s.mu.Lock()
		for k, n := range s.failures {
			if n > 0 && strings.HasPrefix(key+c.Request.URL.Path, k) {
				s.failures[k]--
				s.mu.Unlock()
				c.AbortWithStatusJSON(http.StatusInternalServerError,
					gin.H{"message": "induced failure"})
				return
			}
		}
		s.mu.Unlock()
		c.Next()
	}
}

func (s *Server) handleWS(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	s.mu.Lock()
	s.conns[conn] = struct{}{}
	s.mu.Unlock()

	// Drain (and ignore) anything the client sends; unregister on close.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				s.mu.Lock()
				delete(s.conns, conn)
				s.mu.Unlock()
				conn.Close()
				return
			}
		}
	}()
}

func (s *Server) listProducts(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c.JSON(http.StatusOK, append([]models.Product{}, s.products...))
}

func (s *Server) createProduct(c *gin.Context) {
	var in struct {
		Name     string  `json:"name"`
		Price    float64 `json:"price"`
		Category string  `json:"category"`
	}
	if err := c.BindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}
	p := models.Product{ID: uuid.NewString(), Name: in.Name, Price: in.Price, Category: in.Category}
	s.mu.Lock()
	s.products = append(s.products, p)
	s.broadcastLocked()
	s.mu.Unlock()
	c.JSON(http.StatusCreated, p)
}

func (s *Server) updateProduct(c *gin.Context) {
	var in struct {
		Name     string  `json:"name"`
		Price    float64 `json:"price"`
		Category string  `json:"category"`
	}
	if err := c.BindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}
	id := c.Param("id")
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.products {
		if s.products[i].ID == id {
			s.products[i].Name = in.Name
			s.products[i].Price = in.Price
			s.products[i].Category = in.Category
			s.broadcastLocked()
			c.JSON(http.StatusOK, s.products[i])
			return
		}
	}
	c.JSON(http.StatusNotFound, gin.H{"message": "product not found"})
}

func (s *Server) deleteProduct(c *gin.Context) {
	id := c.Param("id")
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.products {
		if s.products[i].ID == id {
			s.products = append(s.products[:i], s.products[i+1:]...)
			s.broadcastLocked()
			c.Status(http.StatusNoContent)
			return
		}
	}
	c.JSON(http.StatusNotFound, gin.H{"message": "product not found"})
}

func (s *Server) listTables(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	// Summary listing: line detail omitted, status authoritative.
	out := make([]models.Table, len(s.tables))
	for i, t := range s.tables {
		out[i] = models.Table{ID: t.ID, Name: t.Name, Status: t.Status}
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) createTable(c *gin.Context) {
	var in struct {
		Name string `json:"name"`
	}
	if err := c.BindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}
	t := models.Table{ID: uuid.NewString(), Name: in.Name, Order: []models.OrderItem{}, Status: models.TableStatusEmpty}
	s.mu.Lock()
	s.tables = append(s.tables, t)
	s.broadcastLocked()
	s.mu.Unlock()
	c.JSON(http.StatusCreated, t)
}

func (s *Server) tableDetail(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.findTableLocked(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"message": "table not found"})
		return
	}
	c.JSON(http.StatusOK, *t)
}

func (s *Server) deleteTable(c *gin.Context) {
	id := c.Param("id")
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.tables {
		if s.tables[i].ID == id {
			s.tables = append(s.tables[:i], s.tables[i+1:]...)
			s.broadcastLocked()
			c.Status(http.StatusNoContent)
			return
		}
	}
	c.JSON(http.StatusNotFound, gin.H{"message": "table not found"})
}

func (s *Server) addOrderItem(c *gin.Context) {
	var in struct {
		ProductID string `json:"productId"`
		Quantity  int    `json:"quantity"`
	}
	if err := c.BindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}
	if in.Quantity < 1 {
		in.Quantity = 1
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.findTableLocked(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"message": "table not found"})
		return
	}
	product, ok := s.findProductLocked(in.ProductID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"message": "product not found"})
		return
	}

	// An existing line for the same product is incremented, not duplicated.
	incremented := false
	for i := range t.Order {
		if t.Order[i].Product.ID == product.ID {
			t.Order[i].Quantity += in.Quantity
			incremented = true
			break
		}
	}
	if !incremented {
		t.Order = append(t.Order, models.OrderItem{
			ID:       uuid.NewString(),
			Product:  product,
			Quantity: in.Quantity,
		})
	}
	t.NormalizeStatus()
	s.broadcastLocked()
	c.JSON(http.StatusOK, *t)
}

func (s *Server) updateOrderItem(c *gin.Context) {
	var in struct {
		Quantity int `json:"quantity"`
	}
	if err := c.BindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}
	if in.Quantity < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"message": "quantity must be at least 1"})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.findTableLocked(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"message": "table not found"})
		return
	}
	for i := range t.Order {
		if t.Order[i].ID == c.Param("itemId") {
			t.Order[i].Quantity = in.Quantity
			t.NormalizeStatus()
			s.broadcastLocked()
			c.JSON(http.StatusOK, *t)
			return
		}
	}
	c.JSON(http.StatusNotFound, gin.H{"message": "order item not found"})
}

func (s *Server) removeOrderItem(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.findTableLocked(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"message": "table not found"})
		return
	}
	for i := range t.Order {
		if t.Order[i].ID == c.Param("itemId") {
			t.Order = append(t.Order[:i], t.Order[i+1:]...)
			t.NormalizeStatus()
			s.broadcastLocked()
			c.JSON(http.StatusOK, *t)
			return
		}
	}
	c.JSON(http.StatusNotFound, gin.H{"message": "order item not found"})
}

func (s *Server) completeOrder(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.findTableLocked(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"message": "table not found"})
		return
	}
	if len(t.Order) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"message": "order is empty"})
		return
	}

	var total float64
	items := make([]models.OrderItem, len(t.Order))
	copy(items, t.Order)
	for _, item := range items {
		total += item.Product.Price * float64(item.Quantity)
	}

	record := models.CompletedOrder{
		ID:        uuid.NewString(),
		TableID:   t.ID,
		TableName: t.Name,
		Items:     items,
		Total:     total,
		Timestamp: time.Now().UTC(),
	}
	s.completed = append(s.completed, record)

	t.Order = []models.OrderItem{}
	t.NormalizeStatus()
	s.broadcastLocked()
	c.JSON(http.StatusCreated, record)
}

func (s *Server) listCompleted(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c.JSON(http.StatusOK, append([]models.CompletedOrder{}, s.completed...))
}

func (s *Server) listCompletedByDate(c *gin.Context) {
	date := c.Query("date")
	s.mu.Lock()
	defer s.mu.Unlock()
	if date == "" {
		c.JSON(http.StatusOK, append([]models.CompletedOrder{}, s.completed...))
		return
	}
	out := []models.CompletedOrder{}
	for _, o := range s.completed {
		if o.Timestamp.UTC().Format("2006-01-02") == date {
			out = append(out, o)
		}
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) completedDetail(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range s.completed {
		if o.ID == c.Param("id") {
			c.JSON(http.StatusOK, o)
			return
		}
	}
	c.JSON(http.StatusNotFound, gin.H{"message": "completed order not found"})
}

func (s *Server) findTableLocked(id string) (*models.Table, bool) {
	for i := range s.tables {
		if s.tables[i].ID == id {
			return &s.tables[i], true
		}
	}
	return nil, false
}

func (s *Server) findProductLocked(id string) (models.Product, bool) {
	for _, p := range s.products {
		if p.ID == id {
			return p, true
		}
	}
	return models.Product{}, false
}
