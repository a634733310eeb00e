package planner

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/zapponejosh/weekend-planner/internal/database"
	"github.com/zapponejosh/weekend-planner/internal/logger"
)

// MaxBackgroundBytes is the largest accepted background image.
const MaxBackgroundBytes = 2 << 20

// Background is the page background image.
type Background struct {
	ContentType string `json:"content_type"`
	DataURL     string `json:"data_url"`
}

// Background returns the stored background, or database.ErrNotFound.
func (s *Service) Background(ctx context.Context) (*Background, error) {
	url, err := s.store.GetPreference(ctx, database.PrefBackgroundImage)
	if err != nil {
		return nil, err
	}
	return &Background{ContentType: dataURLType(url), DataURL: url}, nil
}

// SetBackground stores raw image bytes as a data URL. The type is sniffed
// from the content, not taken from the client.
func (s *Service) SetBackground(ctx context.Context, data []byte) (*Background, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty image", database.ErrInvalid)
	}
	if len(data) > MaxBackgroundBytes {
		return nil, fmt.Errorf("%w: image is %d bytes, max %d", database.ErrInvalid, len(data), MaxBackgroundBytes)
	}

	mt := mimetype.Detect(data)
	contentType := mt.String()
	if i := strings.IndexByte(contentType, ';'); i >= 0 {
		contentType = contentType[:i]
	}
	if !strings.HasPrefix(contentType, "image/") {
		return nil, fmt.Errorf("%w: %s is not an image", database.ErrInvalid, contentType)
	}

	bg := &Background{
		ContentType: contentType,
		DataURL:     "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(data),
	}
	if err := s.store.SetPreference(ctx, database.PrefBackgroundImage, bg.DataURL); err != nil {
		return nil, err
	}

	logger.Info(ctx, s.logger, "background updated",
		slog.String("content_type", contentType),
		slog.Int("bytes", len(data)),
	)
	return bg, nil
}

// ClearBackground removes the background image.
func (s *Service) ClearBackground(ctx context.Context) error {
	return s.store.DeletePreference(ctx, database.PrefBackgroundImage)
}

// dataURLType returns the media type of a data URL, or "" if it is not one.
func dataURLType(url string) string {
	rest, ok := strings.CutPrefix(url, "data:")
	if !ok {
		return ""
	}
	if i := strings.IndexAny(rest, ";,"); i >= 0 {
		return rest[:i]
	}
	return ""
}

func validBackgroundURL(url string) bool {
	return strings.HasPrefix(dataURLType(url), "image/") && strings.Contains(url, ";base64,")
}
