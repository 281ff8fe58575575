package functions

import (
	"context"
	"fmt"

	"copilots/internal/chat"

	"github.com/samber/lo"
)

type widgetArgs struct {
	WidgetUUID string `json:"widget_uuid" jsonschema:"description=The UUID of the widget whose data should be retrieved."`
}

// WidgetData fetches the data of a dashboard widget. The terminal owns the
// data, so the call is delegated unless the request already carries it.
type WidgetData struct {
	schema map[string]any
}

func NewWidgetData() *WidgetData {
	return &WidgetData{schema: schemaOf(&widgetArgs{})}
}

func (w *WidgetData) Name() string { return "get_widget_data" }

func (w *WidgetData) Description() string {
	return "Retrieve data for a widget by specifying the widget UUID."
}

func (w *WidgetData) Parameters() map[string]any { return w.schema }

func (w *WidgetData) Available(scope chat.Scope) bool {
	return len(scope.Widgets) > 0
}

func (w *WidgetData) Resolve(_ context.Context, raw map[string]any, scope chat.Scope) (chat.Resolution, error) {
	var args widgetArgs
	if err := decodeArgs(raw, &args); err != nil {
		return chat.Resolution{}, fmt.Errorf("%w: get_widget_data arguments: %v", chat.ErrUpstreamProtocol, err)
	}

	if !lo.ContainsBy(scope.Widgets, func(wd chat.Widget) bool { return wd.UUID == args.WidgetUUID }) {
		return chat.Resolution{}, fmt.Errorf("%w: %q", chat.ErrUnknownWidget, args.WidgetUUID)
	}

	if scope.Context != nil {
		if item, ok := lo.Find(scope.Context.Items, func(it chat.ContextItem) bool {
			return it.UUID == args.WidgetUUID && it.Content != ""
		}); ok {
			return chat.Resolution{Content: item.Content}, nil
		}
	}
	return chat.Resolution{Delegate: true}, nil
}
