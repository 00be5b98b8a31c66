// Package rest exposes entities as paginated, filterable, sortable HTTP
// collections. Each Resource owns one entity's routes, allow-lists,
// serializers and hooks.
package rest

import (
	"context"
	"net/http"
	"strings"

	"github.com/jinzhu/inflection"

	"tidb-rest/internal/entity"
	"tidb-rest/internal/query"
	"tidb-rest/internal/serialize"
	"tidb-rest/internal/store"
)

// Operation names one exposed endpoint class.
type Operation string

const (
	OpIndex  Operation = "index"
	OpRead   Operation = "read"
	OpCreate Operation = "create"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
	OpGroup  Operation = "group"
	OpStats  Operation = "stats"
	OpSample Operation = "sample"
)

// AllOperations is the default enabled set.
var AllOperations = []Operation{
	OpIndex, OpRead, OpCreate, OpUpdate, OpDelete, OpGroup, OpStats, OpSample,
}

// ParamNames configures the query parameter surface per resource.
type ParamNames struct {
	Page     string
	PageSize string
	SortBy   string
	Where    string
}

// DefaultParamNames is the conventional parameter surface.
var DefaultParamNames = ParamNames{
	Page:     "page",
	PageSize: "page_size",
	SortBy:   "sort_by",
	Where:    "where",
}

// Callbacks are per-resource hooks invoked around writes, in
// registration order. Before-hooks may veto the operation by returning
// an error, surfaced as a validation failure.
type Callbacks struct {
	AfterParse   []func(ctx context.Context, attrs map[string]any)
	BeforeCreate []func(ctx context.Context, attrs map[string]any) error
	AfterCreate  []func(ctx context.Context, record store.Record)
	BeforeUpdate []func(ctx context.Context, pk any, attrs map[string]any) error
	AfterUpdate  []func(ctx context.Context, record store.Record)
	AfterDelete  []func(ctx context.Context, pk any)
}

// ErrorBuilders produce the wire bodies for the error taxonomy. Each is
// independently replaceable per resource.
type ErrorBuilders struct {
	BadRequest func() any
	NotFound   func() any
	Validation func(fields map[string]string) any
}

// DefaultErrorBuilders matches the conventional errors envelope.
var DefaultErrorBuilders = ErrorBuilders{
	BadRequest: func() any {
		return map[string]any{"errors": map[string]any{"request": "bad request"}}
	},
	NotFound: func() any {
		return map[string]any{"errors": map[string]any{"id": "record not found"}}
	},
	Validation: func(fields map[string]string) any {
		return map[string]any{"errors": fields}
	},
}

// ScopeFunc narrows the collection a request operates over. The returned
// predicate is ANDed with the client filter; nil means no narrowing.
type ScopeFunc func(r *http.Request) query.Node

// Resource binds one entity to its HTTP exposure.
type Resource struct {
	Entity     *entity.Entity
	Store      *store.Store
	Serializer *serialize.Serializer
	Parser     *serialize.Parser

	Envelopes serialize.Envelopes
	Bounds    serialize.PageSizeBounds
	Meta      serialize.MetaBuilder

	QueryAllow query.AllowList
	SortAllow  query.AllowList
	GroupAllow query.AllowList
	StatsAllow query.AllowList

	Params      ParamNames
	DefaultSort string

	// BasePath defaults to "/" plus the pluralized entity name.
	BasePath string

	Enabled   map[Operation]bool
	Scope     ScopeFunc
	Callbacks Callbacks
	Errors    ErrorBuilders

	// UseEngineWrites is reserved for engines where record-level hooks
	// replace raw writes; this store always writes through the engine.
	UseEngineWrites bool
}

// NewResource wires a resource with the process defaults.
func NewResource(e *entity.Entity, st *store.Store, ser *serialize.Serializer, par *serialize.Parser) *Resource {
	enabled := make(map[Operation]bool, len(AllOperations))
	for _, op := range AllOperations {
		enabled[op] = true
	}
	return &Resource{
		Entity:      e,
		Store:       st,
		Serializer:  ser,
		Parser:      par,
		Envelopes:   serialize.DefaultEnvelopes,
		Bounds:      serialize.DefaultPageSizeBounds,
		Meta:        serialize.BuildMeta,
		Params:      DefaultParamNames,
		DefaultSort: "-" + e.PrimaryKey,
		BasePath:    "/" + inflection.Plural(e.Name),
		Enabled:     enabled,
		Errors:      DefaultErrorBuilders,
	}
}

// EnableOnly restricts the resource to the named operations.
func (rs *Resource) EnableOnly(ops ...Operation) *Resource {
	for op := range rs.Enabled {
		rs.Enabled[op] = false
	}
	for _, op := range ops {
		rs.Enabled[op] = true
	}
	return rs
}

// Disable turns the named operations off.
func (rs *Resource) Disable(ops ...Operation) *Resource {
	for _, op := range ops {
		rs.Enabled[op] = false
	}
	return rs
}

// Register mounts the enabled routes on the mux using method patterns.
// It also freezes the parse envelope; Register runs at setup, before any
// request can reach the parser.
func (rs *Resource) Register(mux *http.ServeMux) {
	rs.Parser.Envelope = rs.Envelopes.ParseEnvelope()
	base := strings.TrimSuffix(rs.BasePath, "/")

	if rs.Enabled[OpIndex] {
		mux.HandleFunc("GET "+base, rs.handleIndex)
		mux.HandleFunc("GET "+base+"/{$}", rs.handleIndex)
	}
	if rs.Enabled[OpStats] {
		mux.HandleFunc("GET "+base+"/stats", rs.handleStats)
	}
	if rs.Enabled[OpSample] {
		mux.HandleFunc("GET "+base+"/sample", rs.handleSample)
	}
	if rs.Enabled[OpGroup] {
		mux.HandleFunc("GET "+base+"/group/{field}", rs.handleGroup)
	}
	if rs.Enabled[OpRead] {
		mux.HandleFunc("GET "+base+"/{id}", rs.handleRead)
	}
	if rs.Enabled[OpCreate] {
		mux.HandleFunc("POST "+base, rs.handleCreate)
	}
	if rs.Enabled[OpUpdate] {
		mux.HandleFunc("PUT "+base+"/{id}", rs.handleUpdate)
		mux.HandleFunc("PATCH "+base+"/{id}", rs.handleUpdate)
	}
	if rs.Enabled[OpDelete] {
		mux.HandleFunc("DELETE "+base+"/{id}", rs.handleDelete)
	}
}
