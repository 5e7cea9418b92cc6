package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/langchou/ringgazer/internal/api/ring"
	"github.com/langchou/ringgazer/internal/metrics"
)

// TokenStore 持久化刷新令牌
type TokenStore interface {
	Rotate(newToken, oldToken string) error
}

// persistTokens 消费令牌轮换事件并写回配置文件
func (s *RingService) persistTokens(ctx context.Context, rotations <-chan ring.TokenRotation) {
	for {
		select {
		case <-ctx.Done():
			return
		case rot := <-rotations:
			s.handleTokenRotation(rot)
		}
	}
}

func (s *RingService) handleTokenRotation(rot ring.TokenRotation) {
	s.logger.Info("Refresh token updated")

	if rot.OldRefreshToken == "" {
		metrics.TokenRotationsTotal.WithLabelValues(metrics.ResultSkipped).Inc()
		return
	}

	if err := s.tokens.Rotate(rot.NewRefreshToken, rot.OldRefreshToken); err != nil {
		metrics.TokenRotationsTotal.WithLabelValues(metrics.ResultError).Inc()
		s.logger.Error("Failed to persist refresh token", zap.Error(err))
		return
	}

	metrics.TokenRotationsTotal.WithLabelValues(metrics.ResultSuccess).Inc()
	s.logger.Debug("Refresh token persisted")
}
