package tui

import (
	"context"

	"github.com/panelflow/panelflow/pkg/engine"
)

// LoadingOverlay implements engine.LoadingHandler on a Screen.
type LoadingOverlay struct {
	screen *Screen
}

// NewLoadingOverlay creates a loading handler drawing on screen.
func NewLoadingOverlay(screen *Screen) *LoadingOverlay {
	return &LoadingOverlay{screen: screen}
}

func (l *LoadingOverlay) ShowLoading(ctx context.Context, cfg engine.LoadingConfig) (engine.LoadingController, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.screen.update(func() {
		l.screen.loading = LoadingView{
			Visible: true,
			Type:    cfg.Type,
			Title:   cfg.Title,
			Text:    cfg.Text,
		}
	})
	return &loadingController{screen: l.screen}, nil
}

func (l *LoadingOverlay) HideLoading(context.Context) error {
	l.screen.update(func() { l.screen.loading = LoadingView{} })
	return nil
}

type loadingController struct {
	screen *Screen
}

func (c *loadingController) SetProgress(fraction float64) {
	if fraction < 0 {
		fraction = 0
	} else if fraction > 1 {
		fraction = 1
	}
	c.screen.update(func() { c.screen.loading.Progress = fraction })
}

func (c *loadingController) SetText(text string) {
	c.screen.update(func() { c.screen.loading.Text = text })
}

func (c *loadingController) SetTitle(title string) {
	c.screen.update(func() { c.screen.loading.Title = title })
}
