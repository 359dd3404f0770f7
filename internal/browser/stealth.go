package browser

import (
	"context"
	"fmt"
)

// StealthScript runs before any page script and hides the most common
// automation signals.
const StealthScript = `Object.defineProperty(navigator, 'webdriver', {get: () => undefined});
Object.defineProperty(navigator, 'plugins', {get: () => [1, 2, 3, 4, 5]});
Object.defineProperty(navigator, 'languages', {get: () => ['en-US', 'en']});
window.chrome = {runtime: {}};`

// WindowWidth and WindowHeight are the viewport of launched browsers.
const (
	WindowWidth  = 1920
	WindowHeight = 1080
)

// Scripts used by the scroll helpers.
const (
	scrollHeightScript   = `document.body ? document.body.scrollHeight : 0`
	scrollToBottomScript = `window.scrollTo(0, document.body ? document.body.scrollHeight : 0), true`
)

// blockedResourceTypes are aborted when LaunchOptions.BlockResources is set.
// Documents, scripts and XHR/fetch always pass because listings are
// frequently assembled client side.
var blockedResourceTypes = map[string]bool{
	"Image":      true,
	"Media":      true,
	"Font":       true,
	"Stylesheet": true,
	"Manifest":   true,
}

// blockedURLPatterns are the URL-pattern equivalent for engines that block
// by URL rather than by resource type.
var blockedURLPatterns = []string{
	"*.png", "*.jpg", "*.jpeg", "*.gif", "*.webp", "*.svg", "*.ico",
	"*.woff", "*.woff2", "*.ttf", "*.otf", "*.css", "*.mp4", "*.webm",
}

// ScrollHeight returns document.body.scrollHeight.
func ScrollHeight(ctx context.Context, p Page) (int, error) {
	v, err := p.Evaluate(ctx, scrollHeightScript)
	if err != nil {
		return 0, err
	}
	switch n := v.(type) {
	case float64:
		return int(n), nil
	case int:
		return n, nil
	default:
		return 0, fmt.Errorf("unexpected scrollHeight value %T", v)
	}
}

// ScrollToBottom scrolls the window to the end of the document.
func ScrollToBottom(ctx context.Context, p Page) error {
	_, err := p.Evaluate(ctx, scrollToBottomScript)
	return err
}
