package acquire

import (
	"context"
	"log/slog"

	"github.com/nao1215/productscan/internal/browser"
)

// overlaySelectors match cookie banners, popups and login modals that
// cover the listing.
var overlaySelectors = []string{
	`button[id*="cookie"]`,
	`button[class*="popup"]`,
	`div[class*="overlay"]`,
	`[class*="modal"] button[class*="close"]`,
	`button[aria-label="Close"]`,
}

// DismissOverlays clicks every visible overlay control. Failures are
// logged and ignored; an overlay that cannot be dismissed rarely hides the
// markup the extractor reads.
func DismissOverlays(ctx context.Context, page browser.Page, logger *slog.Logger) int {
	dismissed := 0
	for _, sel := range overlaySelectors {
		els, err := page.QueryAll(ctx, sel)
		if err != nil {
			logger.Debug("overlay query failed", "selector", sel, "error", err)
			continue
		}
		for _, el := range els {
			if visible, err := el.Visible(ctx); err != nil || !visible {
				continue
			}
			if err := el.Click(ctx); err != nil {
				logger.Debug("overlay click failed", "selector", sel, "error", err)
				continue
			}
			dismissed++
		}
	}
	return dismissed
}
