package handlers

import (
	"crypto/rand"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/BaSui01/clipforge/pipeline"
	"github.com/BaSui01/clipforge/types"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

const (
	downloadTokenIssuer = "clipforge"
	// defaultDownloadTokenTTL 未配置时的令牌有效期。
	defaultDownloadTokenTTL = 15 * time.Minute
)

// =============================================================================
// 🔏 下载令牌签名器
// =============================================================================

// DownloadSigner 签发与校验下载令牌。HS256 JWT，subject 绑定任务 ID，
// 令牌只对单个任务有效，过期后需重新查询任务获取新链接。
type DownloadSigner struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewDownloadSigner 创建下载令牌签名器。
// secret 为空时随机生成，重启后旧令牌全部失效。
func NewDownloadSigner(secret string, ttl time.Duration) (*DownloadSigner, error) {
	key := []byte(secret)
	if len(key) == 0 {
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("generate download secret: %w", err)
		}
	}
	if ttl <= 0 {
		ttl = defaultDownloadTokenTTL
	}
	return &DownloadSigner{
		secret: key,
		ttl:    ttl,
		now:    time.Now,
	}, nil
}

// Mint 为任务签发下载令牌。
func (s *DownloadSigner) Mint(jobID string) (string, error) {
	now := s.now()
	claims := jwt.RegisteredClaims{
		Subject:   jobID,
		Issuer:    downloadTokenIssuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign download token: %w", err)
	}
	return signed, nil
}

// Verify 校验令牌签名、有效期与任务绑定。
func (s *DownloadSigner) Verify(tokenStr, jobID string) error {
	parsed, err := jwt.ParseWithClaims(tokenStr, &jwt.RegisteredClaims{},
		func(t *jwt.Token) (any, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(downloadTokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return fmt.Errorf("parse download token: %w", err)
	}
	claims, ok := parsed.Claims.(*jwt.RegisteredClaims)
	if !ok || !parsed.Valid {
		return errors.New("invalid download token claims")
	}
	if claims.Subject != jobID {
		return errors.New("download token does not match job")
	}
	return nil
}

// DownloadURL 生成带令牌的下载链接。
func (s *DownloadSigner) DownloadURL(jobID string) (string, error) {
	token, err := s.Mint(jobID)
	if err != nil {
		return "", err
	}
	q := url.Values{"token": {token}}
	return fmt.Sprintf("/api/v1/jobs/%s/download?%s", url.PathEscape(jobID), q.Encode()), nil
}

// =============================================================================
// 📥 下载 Handler
// =============================================================================

// DownloadHandler 处理带令牌校验的结果下载。
type DownloadHandler struct {
	jobs   JobService
	signer *DownloadSigner
	logger *zap.Logger
}

// NewDownloadHandler 创建下载处理器
func NewDownloadHandler(jobs JobService, signer *DownloadSigner, logger *zap.Logger) *DownloadHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DownloadHandler{
		jobs:   jobs,
		signer: signer,
		logger: logger.With(zap.String("component", "download_handler")),
	}
}

// HandleDownload 处理 GET /api/v1/jobs/{id}/download
// @Summary 下载处理结果
// @Description 校验签名令牌后返回成品视频文件，支持 Range 请求
// @Tags 任务
// @Produce octet-stream
// @Param id path string true "任务 ID"
// @Param token query string true "签名下载令牌"
// @Success 200 {file} file "成品视频"
// @Failure 401 {object} Response "令牌缺失或无效"
// @Failure 404 {object} Response "任务或结果不存在"
// @Failure 409 {object} Response "任务尚无结果"
// @Router /v1/jobs/{id}/download [get]
func (h *DownloadHandler) HandleDownload(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	token := r.URL.Query().Get("token")
	if token == "" {
		WriteErrorMessage(w, http.StatusUnauthorized, types.ErrUnauthorized, "download token is required", h.logger)
		return
	}
	if err := h.signer.Verify(token, id); err != nil {
		h.logger.Debug("download token rejected", zap.String("job_id", id), zap.Error(err))
		WriteErrorMessage(w, http.StatusUnauthorized, types.ErrUnauthorized, "invalid or expired download token", h.logger)
		return
	}

	job, err := h.jobs.Job(id)
	if err != nil {
		writeJobError(w, err, h.logger)
		return
	}
	if job.Status != pipeline.StatusCompleted || job.ResultPath == "" {
		WriteErrorMessage(w, http.StatusConflict, types.ErrInvalidRequest, "job has no downloadable result", h.logger)
		return
	}
	if _, err := os.Stat(job.ResultPath); err != nil {
		WriteErrorMessage(w, http.StatusNotFound, types.ErrNotFound, "result file no longer available", h.logger)
		return
	}

	h.logger.Info("serving result download",
		zap.String("job_id", id),
		zap.String("path", job.ResultPath),
	)

	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filepath.Base(job.ResultPath)))
	http.ServeFile(w, r, job.ResultPath)
}
