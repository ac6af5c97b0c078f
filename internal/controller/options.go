package controller

import (
	"context"
	"time"

	"github.com/ruminaider/euiccctl/internal/lpa"
	"go.uber.org/zap"
)

// Metrics receives operation and refresh results.
type Metrics interface {
	ObserveOperation(slot int, op, outcome string, d time.Duration)
	ObserveRefresh(slot int, ok bool)
	SetChannelValid(slot int, valid bool)
}

type nopMetrics struct{}

func (nopMetrics) ObserveOperation(int, string, string, time.Duration) {}
func (nopMetrics) ObserveRefresh(int, bool)                           {}
func (nopMetrics) SetChannelValid(int, bool)                          {}

// Downloader runs the profile download workflow over an LPA client.
type Downloader interface {
	Download(ctx context.Context, client lpa.Client, req lpa.DownloadRequest, progress lpa.ProgressFunc) error
}

type directDownloader struct{}

func (directDownloader) Download(ctx context.Context, client lpa.Client, req lpa.DownloadRequest, progress lpa.ProgressFunc) error {
	return client.Download(ctx, req, progress)
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the operation logger.
func WithLogger(log *zap.Logger) Option {
	return func(c *Controller) {
		c.log = log
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m Metrics) Option {
	return func(c *Controller) {
		c.metrics = m
	}
}

// WithDownloader sets the download workflow. By default the LPA client's
// Download is called directly.
func WithDownloader(d Downloader) Option {
	return func(c *Controller) {
		c.downloader = d
	}
}
