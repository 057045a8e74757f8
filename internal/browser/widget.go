// internal/browser/widget.go
package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/input"
)

// ErrWidgetNotReady indicates the challenge widget has not been attached to
// the document yet. Callers should back off and retry.
var ErrWidgetNotReady = errors.New("browser: challenge widget not ready")

// hiddenStyleFragment marks a widget parked off-screen by the challenge page.
const hiddenStyleFragment = "display: none;"

// WidgetLocator finds the clickable challenge widget in the live document.
// The traversal strategy is swappable; challenge pages restructure their
// markup often enough that locating deserves its own seam.
type WidgetLocator interface {
	Locate(ctx context.Context) (*Widget, error)
}

// Widget is a point-in-time handle on the located challenge element.
// Visibility is captured at locate time; callers re-locate each poll cycle
// rather than holding a stale handle across document mutations.
type Widget struct {
	backendNodeID cdp.BackendNodeID
	style         string
}

// Hidden reports whether the widget was styled invisible when located.
func (w *Widget) Hidden() bool {
	return strings.Contains(w.style, hiddenStyleFragment)
}

// ClickCenter computes the widget's content box and dispatches a primary
// button press and release at its center.
func (w *Widget) ClickCenter(ctx context.Context) error {
	box, err := dom.GetBoxModel().WithBackendNodeID(w.backendNodeID).Do(ctx)
	if err != nil {
		return fmt.Errorf("%w: box model unavailable: %v", ErrWidgetNotReady, err)
	}
	x, y, err := contentCenter(box)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrWidgetNotReady, err)
	}

	press := input.DispatchMouseEvent(input.MousePressed, x, y).
		WithButton(input.MouseButton("left")).
		WithClickCount(1)
	if err := press.Do(ctx); err != nil {
		return fmt.Errorf("dispatching mouse press: %w", err)
	}
	release := input.DispatchMouseEvent(input.MouseReleased, x, y).
		WithButton(input.MouseButton("left")).
		WithClickCount(1)
	if err := release.Do(ctx); err != nil {
		return fmt.Errorf("dispatching mouse release: %w", err)
	}
	return nil
}

// contentCenter returns the midpoint of a box model's content quad.
func contentCenter(box *dom.BoxModel) (float64, float64, error) {
	if box == nil || len(box.Content) < 8 {
		return 0, 0, errors.New("content quad missing")
	}
	// Quad order: x1,y1 x2,y2 x3,y3 x4,y4 starting at the top-left corner.
	x := (box.Content[0] + box.Content[2] + box.Content[4] + box.Content[6]) / 4
	y := (box.Content[1] + box.Content[3] + box.Content[5] + box.Content[7]) / 4
	return x, y, nil
}

// shadowChildLocator walks the pierced document tree for the first element
// with the anchor tag, then takes the first child of its parent's shadow
// root. The challenge page hosts its clickable widget behind exactly that
// shape of closed shadow tree.
type shadowChildLocator struct {
	anchorTag string
}

// NewShadowChildLocator returns a WidgetLocator anchored on the given tag.
func NewShadowChildLocator(anchorTag string) WidgetLocator {
	return &shadowChildLocator{anchorTag: strings.ToLower(anchorTag)}
}

func (l *shadowChildLocator) Locate(ctx context.Context) (*Widget, error) {
	root, err := dom.GetDocument().WithDepth(-1).WithPierce(true).Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading document tree: %w", err)
	}

	anchor, parent := findAnchor(root, nil, l.anchorTag)
	if anchor == nil || parent == nil {
		return nil, fmt.Errorf("%w: no <%s> anchor in document", ErrWidgetNotReady, l.anchorTag)
	}
	if len(parent.ShadowRoots) == 0 {
		return nil, fmt.Errorf("%w: shadow root not attached", ErrWidgetNotReady)
	}

	child := firstElementChild(parent.ShadowRoots[0])
	if child == nil {
		return nil, fmt.Errorf("%w: shadow root empty", ErrWidgetNotReady)
	}

	return &Widget{
		backendNodeID: child.BackendNodeID,
		style:         attributeValue(child, "style"),
	}, nil
}

// findAnchor depth-first searches the tree (including pierced shadow trees
// and inline frames) for the first element with the given local name,
// returning the node and its direct parent.
func findAnchor(node, parent *cdp.Node, tag string) (*cdp.Node, *cdp.Node) {
	if node == nil {
		return nil, nil
	}
	if node.NodeType == cdp.NodeTypeElement && strings.EqualFold(node.LocalName, tag) {
		return node, parent
	}
	for _, child := range node.Children {
		if found, p := findAnchor(child, node, tag); found != nil {
			return found, p
		}
	}
	for _, shadow := range node.ShadowRoots {
		if found, p := findAnchor(shadow, node, tag); found != nil {
			return found, p
		}
	}
	if node.ContentDocument != nil {
		if found, p := findAnchor(node.ContentDocument, node, tag); found != nil {
			return found, p
		}
	}
	return nil, nil
}

// firstElementChild returns the first element node under n, skipping text
// and comment nodes.
func firstElementChild(n *cdp.Node) *cdp.Node {
	if n == nil {
		return nil
	}
	for _, child := range n.Children {
		if child.NodeType == cdp.NodeTypeElement {
			return child
		}
	}
	return nil
}

// attributeValue reads a flattened name/value attribute pair list.
func attributeValue(n *cdp.Node, name string) string {
	for i := 0; i+1 < len(n.Attributes); i += 2 {
		if strings.EqualFold(n.Attributes[i], name) {
			return n.Attributes[i+1]
		}
	}
	return ""
}
