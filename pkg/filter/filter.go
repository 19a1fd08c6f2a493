// Package filter computes the subset of source objects to migrate and
// records that decision into the catalog's filter_entry table, so
// downstream components answer "skip?" with a local indexed lookup
// instead of re-evaluating the filter specification per object.
package filter

import (
	"context"

	"github.com/pgbulk/pgbulk/pkg/catalog"
)

// Spec is the declarative filter specification: include/exclude lists by
// schema, table and sequence name, plus the global extension/collation
// switches.
type Spec struct {
	IncludeSchemas   []string
	ExcludeSchemas   []string
	IncludeTables    []string
	ExcludeTables    []string
	IncludeSequences []string
	ExcludeSequences []string
	SkipExtensions   bool
	SkipCollations   bool
}

func (s Spec) tableIncluded(qname, nspname string) bool {
	if contains(s.ExcludeSchemas, nspname) || contains(s.ExcludeTables, qname) {
		return false
	}
	if len(s.IncludeSchemas) == 0 && len(s.IncludeTables) == 0 {
		return true
	}
	return contains(s.IncludeSchemas, nspname) || contains(s.IncludeTables, qname)
}

func (s Spec) sequenceIncluded(qname string) bool {
	if contains(s.ExcludeSequences, qname) {
		return false
	}
	if len(s.IncludeSequences) == 0 {
		return true
	}
	return contains(s.IncludeSequences, qname)
}

func contains(list []string, v string) bool {
	for _, e := range list {
		if e == v {
			return true
		}
	}
	return false
}

// Engine materialises filter decisions for one run.
type Engine struct {
	source *catalog.Store
	filter *catalog.Store
	spec   Spec
}

// New returns an Engine that reads source and writes decisions into
// filterStore.
func New(source, filterStore *catalog.Store, spec Spec) *Engine {
	return &Engine{source: source, filter: filterStore, spec: spec}
}

// Run performs the single declarative insertion pass per object kind
// described by the filter rules, and marks the filters section done.
func (e *Engine) Run(ctx context.Context) error {
	selectedTables := map[int64]bool{}

	if err := e.filterTables(ctx, selectedTables); err != nil {
		return err
	}
	if err := e.filterIndexesAndConstraints(ctx, selectedTables); err != nil {
		return err
	}
	selectedSequences, err := e.filterSequences(ctx, selectedTables)
	if err != nil {
		return err
	}
	if err := e.filterDepends(ctx, selectedSequences); err != nil {
		return err
	}
	if err := e.filterExtensionsAndCollations(ctx); err != nil {
		return err
	}
	return nil
}

// filterTables applies the include/exclude rules to every table and
// materialised view, recording an inclusion entry for each selected one.
// Tables, materialised views, indexes and constraints map 1:1 to filter
// rows.
func (e *Engine) filterTables(ctx context.Context, selected map[int64]bool) error {
	it, err := e.source.ListTables(ctx)
	if err != nil {
		return err
	}
	defer it.Close()

	for it.Next() {
		t := it.Item()
		if !e.spec.tableIncluded(t.Qname, t.Nspname) {
			continue
		}
		selected[t.OID] = true
		if err := e.filter.AddFilterEntry(ctx, catalog.FilterEntry{
			OID: t.OID, RestoreListName: t.RestoreListName, Kind: catalog.FilterKindTable,
		}); err != nil {
			return err
		}
	}
	return it.Err()
}

// filterIndexesAndConstraints carries every index belonging to a selected
// table, and records every constraint whether or not its table is selected
// (neither has an inclusion/exclusion rule of its own; constraints lack a
// restore-list name, so they are recorded keyed by oid only).
func (e *Engine) filterIndexesAndConstraints(ctx context.Context, selected map[int64]bool) error {
	idxIt, err := e.source.ListAllIndexes(ctx)
	if err != nil {
		return err
	}
	defer idxIt.Close()
	for idxIt.Next() {
		idx := idxIt.Item()
		if !selected[idx.TableOID] {
			continue
		}
		if err := e.filter.AddFilterEntry(ctx, catalog.FilterEntry{
			OID: idx.OID, RestoreListName: idx.Qname, Kind: catalog.FilterKindIndex,
		}); err != nil {
			return err
		}
	}
	if err := idxIt.Err(); err != nil {
		return err
	}

	conIt, err := e.source.ListConstraints(ctx)
	if err != nil {
		return err
	}
	defer conIt.Close()
	for conIt.Next() {
		c := conIt.Item()
		if err := e.filter.AddFilterEntry(ctx, catalog.FilterEntry{
			OID: c.OID, RestoreListName: "", Kind: catalog.FilterKindConstraint,
		}); err != nil {
			return err
		}
	}
	return conIt.Err()
}

// filterSequences implements the three-archive-entry-kind rule: the
// sequence itself (by oid), the "owned by" clause (by restore-list name),
// and the owning attribute's DEFAULT expression (by attribute oid). A
// sequence's entries are recorded only when it is not in the source
// selection; its "owned by" clause is additionally recorded only when the
// owning table itself is also not selected, reproducing the corresponding
// archive-filter edge case.
func (e *Engine) filterSequences(ctx context.Context, selectedTables map[int64]bool) (map[int64]bool, error) {
	selected := map[int64]bool{}

	it, err := e.source.ListSequences(ctx)
	if err != nil {
		return nil, err
	}
	defer it.Close()

	for it.Next() {
		seq := it.Item()
		if e.spec.sequenceIncluded(seq.Qname) {
			continue
		}
		selected[seq.OID] = true

		if err := e.filter.AddFilterEntry(ctx, catalog.FilterEntry{
			OID: seq.OID, RestoreListName: seq.Qname, Kind: catalog.FilterKindSequence,
		}); err != nil {
			return nil, err
		}

		ownerSelected := seq.OwnerTableOID.Valid && selectedTables[seq.OwnerTableOID.Int64]
		if !ownerSelected {
			if err := e.filter.AddFilterEntry(ctx, catalog.FilterEntry{
				OID: 0, RestoreListName: seq.Qname + " OWNED BY", Kind: catalog.FilterKindSequence,
			}); err != nil {
				return nil, err
			}
		}
		if seq.OwnerTableOID.Valid {
			if err := e.filter.AddFilterEntry(ctx, catalog.FilterEntry{
				OID: seq.OwnerTableOID.Int64, RestoreListName: "", Kind: catalog.FilterKindSequence,
			}); err != nil {
				return nil, err
			}
		}
	}
	return selected, it.Err()
}

// filterDepends carries a pg_depend row unless its target object is not a
// selected sequence.
func (e *Engine) filterDepends(ctx context.Context, selectedSequences map[int64]bool) error {
	it, err := e.source.ListDepends(ctx)
	if err != nil {
		return err
	}
	defer it.Close()

	for it.Next() {
		d := it.Item()
		if d.Type == "sequence" && !selectedSequences[d.RefObjID] {
			continue
		}
		if err := e.filter.AddFilterEntry(ctx, catalog.FilterEntry{
			OID: d.ObjID, RestoreListName: d.Identity, Kind: catalog.FilterKindNamespace,
		}); err != nil {
			return err
		}
	}
	return it.Err()
}

// filterExtensionsAndCollations records the skip-extensions/skip-collations
// global switches into the filter table so the restore steps can check
// them by kind without re-reading the spec.
func (e *Engine) filterExtensionsAndCollations(ctx context.Context) error {
	if e.spec.SkipExtensions {
		if err := e.filter.AddFilterEntry(ctx, catalog.FilterEntry{Kind: catalog.FilterKindExtension}); err != nil {
			return err
		}
	}
	if e.spec.SkipCollations {
		if err := e.filter.AddFilterEntry(ctx, catalog.FilterEntry{Kind: catalog.FilterKindCollation}); err != nil {
			return err
		}
	}
	return nil
}
