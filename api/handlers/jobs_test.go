package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/BaSui01/clipforge/api"
	"github.com/BaSui01/clipforge/pipeline"
	"github.com/BaSui01/clipforge/storage"
	"github.com/BaSui01/clipforge/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

// =============================================================================
// 🔧 测试辅助
// =============================================================================

type submittedJob struct {
	sourcePath string
	filename   string
	opts       pipeline.Options
}

// fakeJobService 任务服务假实现。Subscribe 走真实 Broadcaster，
// 事件流测试可以通过 publish 注入事件。
type fakeJobService struct {
	mu          sync.Mutex
	broadcaster *pipeline.Broadcaster
	jobs        map[string]*pipeline.Job
	order       []string
	submitted   []submittedJob
	submitErr   error
	cancelErr   error
	cancelled   []string
}

func newFakeJobService() *fakeJobService {
	return &fakeJobService{
		broadcaster: pipeline.NewBroadcaster(zap.NewNop()),
		jobs:        make(map[string]*pipeline.Job),
	}
}

func (f *fakeJobService) Submit(ctx context.Context, sourcePath, filename string, opts pipeline.Options) (*pipeline.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	f.submitted = append(f.submitted, submittedJob{sourcePath: sourcePath, filename: filename, opts: opts})
	job := &pipeline.Job{
		ID:         fmt.Sprintf("job-%d", len(f.submitted)),
		SourcePath: sourcePath,
		Filename:   filename,
		Options:    opts,
		Status:     pipeline.StatusReady,
		CreatedAt:  time.Now(),
	}
	f.jobs[job.ID] = job
	f.order = append(f.order, job.ID)
	return f.cloneLocked(job.ID), nil
}

func (f *fakeJobService) Job(jobID string) (*pipeline.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.jobs[jobID]; !ok {
		return nil, types.NewError(types.ErrJobNotFound, "job not found").WithHTTPStatus(http.StatusNotFound)
	}
	return f.cloneLocked(jobID), nil
}

func (f *fakeJobService) Jobs() []*pipeline.Job {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*pipeline.Job, 0, len(f.order))
	for i := len(f.order) - 1; i >= 0; i-- {
		out = append(out, f.cloneLocked(f.order[i]))
	}
	return out
}

func (f *fakeJobService) Cancel(jobID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cancelErr != nil {
		return f.cancelErr
	}
	if _, ok := f.jobs[jobID]; !ok {
		return types.NewError(types.ErrJobNotFound, "job not found").WithHTTPStatus(http.StatusNotFound)
	}
	f.cancelled = append(f.cancelled, jobID)
	return nil
}

func (f *fakeJobService) Subscribe(jobID string) (*pipeline.Subscriber, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.jobs[jobID]; !ok {
		return nil, types.NewError(types.ErrJobNotFound, "job not found").WithHTTPStatus(http.StatusNotFound)
	}
	return f.broadcaster.Subscribe(jobID), nil
}

func (f *fakeJobService) cloneLocked(jobID string) *pipeline.Job {
	clone := *f.jobs[jobID]
	return &clone
}

// setJob 覆盖（或插入）一个任务快照
func (f *fakeJobService) setJob(job *pipeline.Job) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.jobs[job.ID]; !ok {
		f.order = append(f.order, job.ID)
	}
	f.jobs[job.ID] = job
}

// publish 通过真实 Broadcaster 推送事件
func (f *fakeJobService) publish(ev pipeline.Event) {
	f.broadcaster.Publish(ev)
}

func (f *fakeJobService) submittedJobs() []submittedJob {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]submittedJob(nil), f.submitted...)
}

func (f *fakeJobService) cancelledJobs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.cancelled...)
}

// newTestRouter 用假任务服务装配完整路由
func newTestRouter(t *testing.T, svc *fakeJobService) (*http.ServeMux, *DownloadSigner) {
	t.Helper()
	return newTestRouterWithRepo(t, svc, setupHandlerRepository(t))
}

func newTestRouterWithRepo(t *testing.T, svc *fakeJobService, repo *storage.Repository) (*http.ServeMux, *DownloadSigner) {
	t.Helper()
	logger := zaptest.NewLogger(t)

	signer, err := NewDownloadSigner("test-secret", time.Minute)
	require.NoError(t, err)

	cfg := RouterConfig{
		Upload:    NewUploadHandler(svc, testStorageConfig(t), logger),
		Jobs:      NewJobsHandler(svc, signer, logger),
		Events:    NewEventsHandler(svc, logger),
		Download:  NewDownloadHandler(svc, signer, logger),
		History:   NewHistoryHandler(repo, logger),
		Health:    NewHealthHandler(logger),
		Version:   "test",
		BuildTime: "now",
		GitCommit: "deadbeef",
	}
	return NewRouter(cfg), signer
}

// decodeData 将 Response.Data 再解码到目标结构
func decodeData(t *testing.T, resp Response, dst any) {
	t.Helper()
	raw, err := json.Marshal(resp.Data)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, dst))
}

func doJSON(t *testing.T, mux *http.ServeMux, method, target, body string) (*httptest.ResponseRecorder, Response) {
	t.Helper()
	var r *http.Request
	if body != "" {
		r = httptest.NewRequest(method, target, strings.NewReader(body))
		r.Header.Set("Content-Type", "application/json")
	} else {
		r = httptest.NewRequest(method, target, nil)
	}
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, r)

	var resp Response
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	return w, resp
}

// =============================================================================
// 🧪 JobsHandler 测试
// =============================================================================

func TestJobsHandler_Submit(t *testing.T) {
	svc := newFakeJobService()
	mux, _ := newTestRouter(t, svc)

	body := `{"path":"/data/videos/demo.mp4","options":{"auto_captions":true,"meme_mode":false,"broll":true,"whisper_model":"small"}}`
	w, resp := doJSON(t, mux, http.MethodPost, "/api/v1/jobs", body)

	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.True(t, resp.Success)

	var view api.JobView
	decodeData(t, resp, &view)
	assert.Equal(t, "job-1", view.ID)
	assert.Equal(t, "demo.mp4", view.Filename)
	assert.Equal(t, pipeline.StatusReady, view.Status)
	assert.Empty(t, view.DownloadURL)

	submitted := svc.submittedJobs()
	require.Len(t, submitted, 1)
	assert.Equal(t, "/data/videos/demo.mp4", submitted[0].sourcePath)
	assert.Equal(t, "demo.mp4", submitted[0].filename)
	assert.True(t, submitted[0].opts.AutoCaptions)
	assert.True(t, submitted[0].opts.BRoll)
	assert.Equal(t, types.WhisperSmall, submitted[0].opts.WhisperModel)
}

func TestJobsHandler_Submit_MissingPath(t *testing.T) {
	svc := newFakeJobService()
	mux, _ := newTestRouter(t, svc)

	w, resp := doJSON(t, mux, http.MethodPost, "/api/v1/jobs", `{"path":"  "}`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.False(t, resp.Success)
	require.NotNil(t, resp.Error)
	assert.Equal(t, string(types.ErrInvalidRequest), resp.Error.Code)
	assert.Empty(t, svc.submittedJobs())
}

func TestJobsHandler_Submit_UnknownField(t *testing.T) {
	svc := newFakeJobService()
	mux, _ := newTestRouter(t, svc)

	w, resp := doJSON(t, mux, http.MethodPost, "/api/v1/jobs", `{"path":"/x.mp4","bogus":true}`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.False(t, resp.Success)
}

func TestJobsHandler_Submit_RequiresJSONContentType(t *testing.T) {
	svc := newFakeJobService()
	mux, _ := newTestRouter(t, svc)

	r := httptest.NewRequest(http.MethodPost, "/api/v1/jobs", strings.NewReader(`{"path":"/x.mp4"}`))
	r.Header.Set("Content-Type", "text/plain")
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, r)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestJobsHandler_Submit_PipelineError(t *testing.T) {
	svc := newFakeJobService()
	svc.submitErr = types.NewError(types.ErrRateLimited, "processing queue is full, try again later").WithHTTPStatus(http.StatusTooManyRequests)
	mux, _ := newTestRouter(t, svc)

	w, resp := doJSON(t, mux, http.MethodPost, "/api/v1/jobs", `{"path":"/data/x.mp4"}`)

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	require.NotNil(t, resp.Error)
	assert.Equal(t, string(types.ErrRateLimited), resp.Error.Code)
}

func TestJobsHandler_Get(t *testing.T) {
	svc := newFakeJobService()
	mux, _ := newTestRouter(t, svc)

	svc.setJob(&pipeline.Job{
		ID:       "abc",
		Filename: "clip.mp4",
		Status:   pipeline.StatusProcessing,
		Progress: pipeline.Progress{Stage: "transcribe", Percent: 25, Message: "transcribing"},
	})

	w, resp := doJSON(t, mux, http.MethodGet, "/api/v1/jobs/abc", "")

	assert.Equal(t, http.StatusOK, w.Code)

	var view api.JobView
	decodeData(t, resp, &view)
	assert.Equal(t, "abc", view.ID)
	assert.Equal(t, "transcribe", view.Progress.Stage)
	assert.Empty(t, view.DownloadURL)
}

func TestJobsHandler_Get_NotFound(t *testing.T) {
	svc := newFakeJobService()
	mux, _ := newTestRouter(t, svc)

	w, resp := doJSON(t, mux, http.MethodGet, "/api/v1/jobs/missing", "")

	assert.Equal(t, http.StatusNotFound, w.Code)
	require.NotNil(t, resp.Error)
	assert.Equal(t, string(types.ErrJobNotFound), resp.Error.Code)
}

func TestJobsHandler_Get_CompletedCarriesDownloadURL(t *testing.T) {
	svc := newFakeJobService()
	mux, signer := newTestRouter(t, svc)

	svc.setJob(&pipeline.Job{
		ID:         "done",
		Filename:   "clip.mp4",
		Status:     pipeline.StatusCompleted,
		ResultPath: "/outputs/clip.mp4",
		Result:     &pipeline.JobResult{OutputPath: "/outputs/clip.mp4", ProcessingTime: 12.5},
	})

	_, resp := doJSON(t, mux, http.MethodGet, "/api/v1/jobs/done", "")

	var view api.JobView
	decodeData(t, resp, &view)
	require.NotEmpty(t, view.DownloadURL)
	assert.Contains(t, view.DownloadURL, "/api/v1/jobs/done/download?token=")

	// 链接里的令牌可被同一 signer 校验
	parts := strings.SplitN(view.DownloadURL, "token=", 2)
	require.Len(t, parts, 2)
	assert.NoError(t, signer.Verify(parts[1], "done"))
}

func TestJobsHandler_List(t *testing.T) {
	svc := newFakeJobService()
	mux, _ := newTestRouter(t, svc)

	for i := 0; i < 3; i++ {
		_, _ = doJSON(t, mux, http.MethodPost, "/api/v1/jobs", fmt.Sprintf(`{"path":"/data/v%d.mp4"}`, i))
	}

	w, resp := doJSON(t, mux, http.MethodGet, "/api/v1/jobs", "")

	assert.Equal(t, http.StatusOK, w.Code)

	var list api.JobListView
	decodeData(t, resp, &list)
	assert.Equal(t, 3, list.Count)
	require.Len(t, list.Jobs, 3)
	// 新的在前
	assert.Equal(t, "v2.mp4", list.Jobs[0].Filename)
	assert.Equal(t, "v0.mp4", list.Jobs[2].Filename)
}

func TestJobsHandler_List_Empty(t *testing.T) {
	svc := newFakeJobService()
	mux, _ := newTestRouter(t, svc)

	w, resp := doJSON(t, mux, http.MethodGet, "/api/v1/jobs", "")

	assert.Equal(t, http.StatusOK, w.Code)

	var list api.JobListView
	decodeData(t, resp, &list)
	assert.Equal(t, 0, list.Count)
	assert.NotNil(t, list.Jobs)
}

func TestJobsHandler_Cancel(t *testing.T) {
	svc := newFakeJobService()
	mux, _ := newTestRouter(t, svc)

	svc.setJob(&pipeline.Job{ID: "run", Status: pipeline.StatusProcessing})

	w, resp := doJSON(t, mux, http.MethodDelete, "/api/v1/jobs/run", "")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, resp.Success)
	assert.Equal(t, []string{"run"}, svc.cancelledJobs())
}

func TestJobsHandler_Cancel_Finished(t *testing.T) {
	svc := newFakeJobService()
	svc.cancelErr = types.NewError(types.ErrInvalidRequest, "job already finished").WithHTTPStatus(http.StatusConflict)
	mux, _ := newTestRouter(t, svc)

	svc.setJob(&pipeline.Job{ID: "done", Status: pipeline.StatusCompleted})

	w, resp := doJSON(t, mux, http.MethodDelete, "/api/v1/jobs/done", "")

	assert.Equal(t, http.StatusConflict, w.Code)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "job already finished", resp.Error.Message)
}

func TestRouter_MethodNotAllowed(t *testing.T) {
	svc := newFakeJobService()
	mux, _ := newTestRouter(t, svc)

	r := httptest.NewRequest(http.MethodPut, "/api/v1/jobs", strings.NewReader("{}"))
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, r)

	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}
