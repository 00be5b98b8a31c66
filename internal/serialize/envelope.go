package serialize

// Envelopes configures the optional wrapper keys on wire payloads. An
// empty key means "no wrapping": the payload sits at the top level.
type Envelopes struct {
	List   string
	Single string
	Meta   string
	Groups string

	// UseOnParse applies the Single envelope to write bodies too.
	UseOnParse bool
}

// DefaultEnvelopes is the conventional data/meta shape.
var DefaultEnvelopes = Envelopes{
	List:   "data",
	Single: "",
	Meta:   "meta",
	Groups: "data",
}

// WrapList assembles a list response. Without a list envelope there is
// nowhere to attach meta, so the bare array is returned.
func (e Envelopes) WrapList(objects []map[string]any, meta any) any {
	if objects == nil {
		objects = []map[string]any{}
	}
	if e.List == "" {
		return objects
	}
	body := map[string]any{e.List: objects}
	if e.Meta != "" && meta != nil {
		body[e.Meta] = meta
	}
	return body
}

// WrapSingle assembles a single-record response.
func (e Envelopes) WrapSingle(object map[string]any) any {
	if e.Single == "" {
		return object
	}
	return map[string]any{e.Single: object}
}

// WrapGroups assembles an aggregation response.
func (e Envelopes) WrapGroups(payload any, meta any) any {
	if e.Groups == "" {
		return payload
	}
	body := map[string]any{e.Groups: payload}
	if e.Meta != "" && meta != nil {
		body[e.Meta] = meta
	}
	return body
}

// ParseEnvelope returns the key write bodies are wrapped under, if any.
func (e Envelopes) ParseEnvelope() string {
	if e.UseOnParse && e.Single != "" {
		return e.Single
	}
	return ""
}
