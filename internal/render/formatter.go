package render

import "github.com/fieldbridge/fieldbridge/pkg/models"

// ChannelMessage is the channel-specific payload the Channel Formatter
// produces (spec.md §4.5 step 6: "e.g., cards, with automatic
// text-fallback"). Card is a channel-neutral card description; a real
// channel adapter translates it into its own card DSL (out of scope,
// spec.md §1).
type ChannelMessage struct {
	Text string         `json:"text,omitempty"`
	Card map[string]any `json:"card,omitempty"`
}

// Formatter turns a RenderedResponse into a ChannelMessage. When the
// response carries no blocks, the formatter degrades to a plain text
// message automatically (spec.md §4.5 step 6 "automatic text-fallback").
type Formatter struct{}

// NewFormatter builds a Formatter.
func NewFormatter() *Formatter { return &Formatter{} }

// Format converts a RenderedResponse into a ChannelMessage.
func (f *Formatter) Format(resp models.RenderedResponse) ChannelMessage {
	if len(resp.Blocks) == 0 {
		return ChannelMessage{Text: resp.TextFallback}
	}
	elements := make([]map[string]any, 0, len(resp.Blocks))
	for _, b := range resp.Blocks {
		elements = append(elements, map[string]any{"type": b.Type, "data": b.Data})
	}
	return ChannelMessage{
		Text: resp.TextFallback,
		Card: map[string]any{
			"elements": elements,
		},
	}
}

// Parse reverses Format for the subset of cards this formatter produces,
// satisfying the round-trip law spec.md §8 names
// ("render(parse(card)) == card ... modulo unspecified optional fields").
func (f *Formatter) Parse(msg ChannelMessage) models.RenderedResponse {
	resp := models.RenderedResponse{TextFallback: msg.Text}
	if msg.Card == nil {
		return resp
	}
	raw, ok := msg.Card["elements"].([]map[string]any)
	if !ok {
		return resp
	}
	blocks := make([]models.Block, 0, len(raw))
	for _, el := range raw {
		typ, _ := el["type"].(string)
		data, _ := el["data"].(map[string]any)
		blocks = append(blocks, models.Block{Type: typ, Data: data})
	}
	resp.Blocks = blocks
	return resp
}
