package handlers

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/BaSui01/clipforge/pipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// =============================================================================
// 🧪 DownloadSigner 测试
// =============================================================================

func TestDownloadSigner_MintVerify(t *testing.T) {
	signer, err := NewDownloadSigner("secret", time.Minute)
	require.NoError(t, err)

	token, err := signer.Mint("job-1")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	assert.NoError(t, signer.Verify(token, "job-1"))
}

func TestDownloadSigner_RejectsWrongJob(t *testing.T) {
	signer, err := NewDownloadSigner("secret", time.Minute)
	require.NoError(t, err)

	token, err := signer.Mint("job-1")
	require.NoError(t, err)

	err = signer.Verify(token, "job-2")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not match")
}

func TestDownloadSigner_RejectsExpiredToken(t *testing.T) {
	signer, err := NewDownloadSigner("secret", time.Minute)
	require.NoError(t, err)

	token, err := signer.Mint("job-1")
	require.NoError(t, err)

	// 把校验时钟拨到有效期之后
	signer.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	assert.Error(t, signer.Verify(token, "job-1"))
}

func TestDownloadSigner_RejectsTamperedToken(t *testing.T) {
	signer, err := NewDownloadSigner("secret", time.Minute)
	require.NoError(t, err)

	token, err := signer.Mint("job-1")
	require.NoError(t, err)

	assert.Error(t, signer.Verify(token+"x", "job-1"))
}

func TestDownloadSigner_RandomSecretsDoNotCrossVerify(t *testing.T) {
	a, err := NewDownloadSigner("", time.Minute)
	require.NoError(t, err)
	b, err := NewDownloadSigner("", time.Minute)
	require.NoError(t, err)

	token, err := a.Mint("job-1")
	require.NoError(t, err)

	assert.NoError(t, a.Verify(token, "job-1"))
	assert.Error(t, b.Verify(token, "job-1"))
}

func TestDownloadSigner_DownloadURL(t *testing.T) {
	signer, err := NewDownloadSigner("secret", time.Minute)
	require.NoError(t, err)

	raw, err := signer.DownloadURL("job-1")
	require.NoError(t, err)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "/api/v1/jobs/job-1/download", u.Path)
	assert.NoError(t, signer.Verify(u.Query().Get("token"), "job-1"))
}

// =============================================================================
// 🧪 DownloadHandler 测试
// =============================================================================

func setupDownloadTest(t *testing.T) (*fakeJobService, *DownloadHandler, *DownloadSigner, string) {
	t.Helper()

	svc := newFakeJobService()
	signer, err := NewDownloadSigner("secret", time.Minute)
	require.NoError(t, err)
	h := NewDownloadHandler(svc, signer, zaptest.NewLogger(t))

	resultPath := filepath.Join(t.TempDir(), "captioned_demo.mp4")
	require.NoError(t, os.WriteFile(resultPath, []byte("final video bytes"), 0o644))

	svc.setJob(&pipeline.Job{
		ID:         "done",
		Filename:   "demo.mp4",
		Status:     pipeline.StatusCompleted,
		ResultPath: resultPath,
		Result:     &pipeline.JobResult{OutputPath: resultPath},
	})
	return svc, h, signer, resultPath
}

func downloadRequest(t *testing.T, h *DownloadHandler, jobID, token string) *httptest.ResponseRecorder {
	t.Helper()
	target := "/api/v1/jobs/" + jobID + "/download"
	if token != "" {
		target += "?token=" + url.QueryEscape(token)
	}
	r := httptest.NewRequest(http.MethodGet, target, nil)
	r.SetPathValue("id", jobID)
	w := httptest.NewRecorder()
	h.HandleDownload(w, r)
	return w
}

func TestDownloadHandler_ServesResult(t *testing.T) {
	_, h, signer, _ := setupDownloadTest(t)

	token, err := signer.Mint("done")
	require.NoError(t, err)

	w := downloadRequest(t, h, "done", token)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "final video bytes", w.Body.String())
	assert.Contains(t, w.Header().Get("Content-Disposition"), `attachment; filename="captioned_demo.mp4"`)
}

func TestDownloadHandler_MissingToken(t *testing.T) {
	_, h, _, _ := setupDownloadTest(t)

	w := downloadRequest(t, h, "done", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestDownloadHandler_InvalidToken(t *testing.T) {
	_, h, _, _ := setupDownloadTest(t)

	w := downloadRequest(t, h, "done", "not-a-jwt")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestDownloadHandler_TokenForOtherJob(t *testing.T) {
	svc, h, signer, resultPath := setupDownloadTest(t)

	svc.setJob(&pipeline.Job{
		ID:         "other",
		Status:     pipeline.StatusCompleted,
		ResultPath: resultPath,
	})

	token, err := signer.Mint("other")
	require.NoError(t, err)

	w := downloadRequest(t, h, "done", token)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestDownloadHandler_JobNotFound(t *testing.T) {
	_, h, signer, _ := setupDownloadTest(t)

	token, err := signer.Mint("missing")
	require.NoError(t, err)

	w := downloadRequest(t, h, "missing", token)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDownloadHandler_JobNotFinished(t *testing.T) {
	svc, h, signer, _ := setupDownloadTest(t)

	svc.setJob(&pipeline.Job{ID: "running", Status: pipeline.StatusProcessing})

	token, err := signer.Mint("running")
	require.NoError(t, err)

	w := downloadRequest(t, h, "running", token)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestDownloadHandler_ResultFileGone(t *testing.T) {
	_, h, signer, resultPath := setupDownloadTest(t)

	require.NoError(t, os.Remove(resultPath))

	token, err := signer.Mint("done")
	require.NoError(t, err)

	w := downloadRequest(t, h, "done", token)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
