package runner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/zeu5/rl-frame/types"
)

// RelayServer exposes an in-memory board and queue over HTTP so actors and
// the learner can run as separate processes without a redis instance.
type RelayServer struct {
	Addr   string
	server *http.Server

	board *MemoryBoard
	queue *MemoryQueue
}

func NewRelayServer(addr string, queueCapacity int) *RelayServer {
	s := &RelayServer{
		Addr:  addr,
		board: NewMemoryBoard(),
		queue: NewMemoryQueue(queueCapacity),
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.POST("/parameter", s.handlePublish)
	r.GET("/parameter", s.handleLatest)
	r.POST("/experience", s.handlePush)
	r.POST("/experience/pop", s.handlePop)
	s.server = &http.Server{
		Addr:    addr,
		Handler: r,
	}
	return s
}

// Handler exposes the routes for serving on an external listener.
func (s *RelayServer) Handler() http.Handler { return s.server.Handler }

func (s *RelayServer) Start() {
	go func() {
		s.server.ListenAndServe()
	}()
}

func (s *RelayServer) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *RelayServer) handlePublish(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read body"})
		return
	}
	if err := s.board.Publish(types.Blob(body)); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "ok"})
}

func (s *RelayServer) handleLatest(c *gin.Context) {
	blob, ok, err := s.board.Latest()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no parameter published"})
		return
	}
	c.Data(http.StatusOK, "application/json", []byte(blob))
}

func (s *RelayServer) handlePush(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read body"})
		return
	}
	if err := s.queue.Push(body); err != nil {
		c.JSON(http.StatusInsufficientStorage, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "ok"})
}

type popRequest struct {
	Max int `json:"max"`
}

type popResponse struct {
	Payloads []json.RawMessage `json:"payloads"`
}

func (s *RelayServer) handlePop(c *gin.Context) {
	var req popRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to unmarshal request"})
		return
	}
	payloads, err := s.queue.Pop(req.Max)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	resp := popResponse{Payloads: make([]json.RawMessage, len(payloads))}
	for i, p := range payloads {
		resp.Payloads[i] = p
	}
	c.JSON(http.StatusOK, resp)
}

// RelayClient is the actor/learner side of a RelayServer.
type RelayClient struct {
	baseURL string
	client  *http.Client
}

var (
	_ ParameterBoard  = &RelayClient{}
	_ ExperienceQueue = &RelayClient{}
)

func NewRelayClient(addr string) *RelayClient {
	return &RelayClient{
		baseURL: "http://" + addr,
		client: &http.Client{
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout:   5 * time.Second,
					KeepAlive: 5 * time.Second,
				}).DialContext,
				TLSHandshakeTimeout:   5 * time.Second,
				ResponseHeaderTimeout: 5 * time.Second,
				ExpectContinueTimeout: 1 * time.Second,
			},
		},
	}
}

func (r *RelayClient) Publish(blob types.Blob) error {
	resp, err := r.client.Post(r.baseURL+"/parameter", "application/json", bytes.NewBuffer(blob))
	if err != nil {
		return fmt.Errorf("post parameter: %w", err)
	}
	defer drainAndClose(resp)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("post parameter: status %d", resp.StatusCode)
	}
	return nil
}

func (r *RelayClient) Latest() (types.Blob, bool, error) {
	resp, err := r.client.Get(r.baseURL + "/parameter")
	if err != nil {
		return nil, false, fmt.Errorf("get parameter: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		io.ReadAll(resp.Body)
		return nil, false, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, false, fmt.Errorf("get parameter: status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, false, fmt.Errorf("read parameter: %w", err)
	}
	return types.Blob(body), true, nil
}

func (r *RelayClient) Push(payload []byte) error {
	resp, err := r.client.Post(r.baseURL+"/experience", "application/json", bytes.NewBuffer(payload))
	if err != nil {
		return fmt.Errorf("post experience: %w", err)
	}
	defer drainAndClose(resp)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("post experience: status %d", resp.StatusCode)
	}
	return nil
}

func (r *RelayClient) Pop(max int) ([][]byte, error) {
	bs, err := json.Marshal(popRequest{Max: max})
	if err != nil {
		return nil, err
	}
	resp, err := r.client.Post(r.baseURL+"/experience/pop", "application/json", bytes.NewBuffer(bs))
	if err != nil {
		return nil, fmt.Errorf("pop experiences: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		io.ReadAll(resp.Body)
		return nil, fmt.Errorf("pop experiences: status %d", resp.StatusCode)
	}
	var out popResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode pop response: %w", err)
	}
	payloads := make([][]byte, len(out.Payloads))
	for i, p := range out.Payloads {
		payloads[i] = p
	}
	return payloads, nil
}

func drainAndClose(resp *http.Response) {
	io.ReadAll(resp.Body)
	resp.Body.Close()
}
