package rest

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"tidb-rest/internal/entity"
	"tidb-rest/internal/planner"
	"tidb-rest/internal/query"
	"tidb-rest/internal/serialize"
	"tidb-rest/internal/store"
)

// requestWhere compiles the client filter and ANDs in the scope hook.
func (rs *Resource) requestWhere(r *http.Request) (query.Node, error) {
	raw := r.URL.Query().Get(rs.Params.Where)
	node, err := query.Compile([]byte(raw), rs.QueryAllow)
	if err != nil {
		return nil, err
	}
	if rs.Scope != nil {
		if scoped := rs.Scope(r); scoped != nil {
			if node == nil {
				node = scoped
			} else {
				node = query.Logical{Op: query.LogicalAnd, Children: []query.Node{scoped, node}}
			}
		}
	}
	return node, nil
}

func (rs *Resource) pathPK(r *http.Request) (any, bool) {
	raw := r.PathValue("id")
	f, ok := rs.Entity.Field(rs.Entity.PrimaryKey)
	if ok && f.Type == entity.TypeInt {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, false
		}
		return n, true
	}
	return raw, true
}

func (rs *Resource) handleIndex(w http.ResponseWriter, r *http.Request) {
	where, err := rs.requestWhere(r)
	if err != nil {
		rs.badRequest(w)
		return
	}

	params := r.URL.Query()
	page, pageSize := serialize.ComputePagination(
		params.Get(rs.Params.Page), params.Get(rs.Params.PageSize), rs.Bounds)
	orderBy := planner.ParseSort(params.Get(rs.Params.SortBy), rs.SortAllow, rs.DefaultSort)

	total, err := rs.Store.Count(r.Context(), rs.Entity, where)
	if err != nil {
		rs.writeError(w, r, err)
		return
	}

	limit := uint64(pageSize)
	offset := serialize.Offset(page, pageSize)
	records, err := rs.Store.Select(r.Context(), rs.Entity, rs.Serializer.Fields(), &planner.ListFilters{
		Where:   where,
		OrderBy: orderBy,
		Limit:   &limit,
		Offset:  &offset,
	})
	if err != nil {
		rs.writeError(w, r, err)
		return
	}

	meta := rs.Meta(total, page, pageSize)
	writeJSON(w, http.StatusOK, rs.Envelopes.WrapList(rs.Serializer.Many(records), meta))
}

func (rs *Resource) handleRead(w http.ResponseWriter, r *http.Request) {
	pk, ok := rs.pathPK(r)
	if !ok {
		rs.notFound(w)
		return
	}

	record, err := rs.fetchOne(r, pk)
	if err != nil {
		rs.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rs.Envelopes.WrapSingle(rs.Serializer.One(record)))
}

func (rs *Resource) handleCreate(w http.ResponseWriter, r *http.Request) {
	attrs, ok := rs.parseBody(w, r)
	if !ok {
		return
	}

	for _, hook := range rs.Callbacks.BeforeCreate {
		if err := hook(r.Context(), attrs); err != nil {
			rs.writeError(w, r, err)
			return
		}
	}

	id, err := rs.Store.Insert(r.Context(), rs.Entity, attrs)
	if err != nil {
		rs.writeError(w, r, err)
		return
	}
	pk := any(id)
	if supplied, ok := attrs[rs.Entity.PrimaryKey]; ok {
		pk = supplied
	}

	record, err := rs.Store.GetByPK(r.Context(), rs.Entity, rs.Serializer.Fields(), pk)
	if err != nil {
		rs.writeError(w, r, err)
		return
	}
	for _, hook := range rs.Callbacks.AfterCreate {
		hook(r.Context(), record)
	}
	writeJSON(w, http.StatusCreated, rs.Envelopes.WrapSingle(rs.Serializer.One(record)))
}

func (rs *Resource) handleUpdate(w http.ResponseWriter, r *http.Request) {
	pk, ok := rs.pathPK(r)
	if !ok {
		rs.notFound(w)
		return
	}
	attrs, ok := rs.parseBody(w, r)
	if !ok {
		return
	}

	for _, hook := range rs.Callbacks.BeforeUpdate {
		if err := hook(r.Context(), pk, attrs); err != nil {
			rs.writeError(w, r, err)
			return
		}
	}

	if len(attrs) > 0 {
		if err := rs.Store.Update(r.Context(), rs.Entity, pk, attrs); err != nil {
			rs.writeError(w, r, err)
			return
		}
	}

	record, err := rs.fetchOne(r, pk)
	if err != nil {
		rs.writeError(w, r, err)
		return
	}
	for _, hook := range rs.Callbacks.AfterUpdate {
		hook(r.Context(), record)
	}
	writeJSON(w, http.StatusOK, rs.Envelopes.WrapSingle(rs.Serializer.One(record)))
}

func (rs *Resource) handleDelete(w http.ResponseWriter, r *http.Request) {
	pk, ok := rs.pathPK(r)
	if !ok {
		rs.notFound(w)
		return
	}

	if err := rs.Store.Delete(r.Context(), rs.Entity, pk); err != nil {
		rs.writeError(w, r, err)
		return
	}
	for _, hook := range rs.Callbacks.AfterDelete {
		hook(r.Context(), pk)
	}
	writeJSON(w, http.StatusOK, map[string]any{})
}

func (rs *Resource) handleGroup(w http.ResponseWriter, r *http.Request) {
	field := r.PathValue("field")
	if !rs.GroupAllow.Contains(field) {
		rs.badRequest(w)
		return
	}
	where, err := rs.requestWhere(r)
	if err != nil {
		rs.badRequest(w)
		return
	}

	// Buckets sort only by count: "count" ascends, "-count" (the
	// default) descends. Other sort terms are ignored.
	ascending := r.URL.Query().Get(rs.Params.SortBy) == planner.GroupCountAlias

	buckets, err := rs.Store.Group(r.Context(), rs.Entity, field, where, ascending)
	if err != nil {
		rs.writeError(w, r, err)
		return
	}
	// Meta reports the records behind the buckets, not the bucket count.
	total, err := rs.Store.Count(r.Context(), rs.Entity, where)
	if err != nil {
		rs.writeError(w, r, err)
		return
	}
	meta := rs.Meta(total, 1, maxInt(int(total), 1))
	writeJSON(w, http.StatusOK, rs.Envelopes.WrapGroups(buckets, meta))
}

func (rs *Resource) handleStats(w http.ResponseWriter, r *http.Request) {
	var fields []string
	for _, raw := range strings.Split(r.URL.Query().Get("fields"), ",") {
		if f := strings.TrimSpace(raw); f != "" {
			fields = append(fields, f)
		}
	}
	if len(fields) == 0 {
		rs.badRequest(w)
		return
	}
	for _, f := range fields {
		if !rs.StatsAllow.Contains(f) {
			rs.badRequest(w)
			return
		}
	}
	where, err := rs.requestWhere(r)
	if err != nil {
		rs.badRequest(w)
		return
	}

	stats, err := rs.Store.Stats(r.Context(), rs.Entity, fields, where)
	if err != nil {
		rs.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rs.Envelopes.WrapGroups(stats, nil))
}

// handleSample ignores sorting and serves a random page; meta reports
// the returned rows.
func (rs *Resource) handleSample(w http.ResponseWriter, r *http.Request) {
	where, err := rs.requestWhere(r)
	if err != nil {
		rs.badRequest(w)
		return
	}
	_, pageSize := serialize.ComputePagination(
		"", r.URL.Query().Get(rs.Params.PageSize), rs.Bounds)

	records, err := rs.Store.Sample(r.Context(), rs.Entity, rs.Serializer.Fields(), where, uint64(pageSize))
	if err != nil {
		rs.writeError(w, r, err)
		return
	}
	meta := rs.Meta(int64(len(records)), 1, pageSize)
	writeJSON(w, http.StatusOK, rs.Envelopes.WrapList(rs.Serializer.Many(records), meta))
}

// fetchOne applies the scope hook to single-record lookups too, so a
// scoped-out row reads as absent.
func (rs *Resource) fetchOne(r *http.Request, pk any) (map[string]any, error) {
	if rs.Scope == nil {
		return rs.Store.GetByPK(r.Context(), rs.Entity, rs.Serializer.Fields(), pk)
	}

	where := query.Node(query.Comparison{Field: rs.Entity.PrimaryKey, Op: query.OpEq, Operand: pk})
	if scoped := rs.Scope(r); scoped != nil {
		where = query.Logical{Op: query.LogicalAnd, Children: []query.Node{scoped, where}}
	}
	limit := uint64(1)
	records, err := rs.Store.Select(r.Context(), rs.Entity, rs.Serializer.Fields(), &planner.ListFilters{
		Where: where,
		Limit: &limit,
	})
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, store.ErrNotFound
	}
	return records[0], nil
}

func (rs *Resource) parseBody(w http.ResponseWriter, r *http.Request) (map[string]any, bool) {
	var input map[string]any
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		rs.badRequest(w)
		return nil, false
	}

	attrs, err := rs.Parser.Parse(input)
	if err != nil {
		rs.writeError(w, r, err)
		return nil, false
	}
	for _, hook := range rs.Callbacks.AfterParse {
		hook(r.Context(), attrs)
	}
	return attrs, true
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
